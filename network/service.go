// Package network talks to a BSV node over JSON-RPC. The custody daemon
// uses it to fund, broadcast and track the transactions that anchor the
// ledger tip on chain.
package network

import "context"

// Chain is the subset of node functionality the anchoring worker needs.
type Chain interface {
	// ListUnspent returns the unspent outputs paying to address.
	ListUnspent(ctx context.Context, address string) ([]*UTXO, error)

	// BroadcastTx submits a raw transaction hex and returns its txid.
	BroadcastTx(ctx context.Context, rawTxHex string) (string, error)

	// GetTxStatus returns the confirmation status of a transaction.
	GetTxStatus(ctx context.Context, txid string) (*TxStatus, error)

	// BestBlockHeight returns the height of the node's chain tip.
	BestBlockHeight(ctx context.Context) (uint64, error)
}

// UTXO is an unspent transaction output.
type UTXO struct {
	TxID          string `json:"txid"`
	Vout          uint32 `json:"vout"`
	Amount        uint64 `json:"amount"` // satoshis
	ScriptPubKey  string `json:"script_pubkey"`
	Address       string `json:"address"`
	Confirmations int64  `json:"confirmations"`
}

// TxStatus is the confirmation status of a transaction.
type TxStatus struct {
	Confirmed     bool   `json:"confirmed"`
	Confirmations int64  `json:"confirmations"`
	BlockHash     string `json:"block_hash"`
	BlockHeight   uint64 `json:"block_height"`
}
