package network

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Compile-time interface check.
var _ Chain = (*RPCClient)(nil)

// btcToSat converts a BTC amount as reported by the node to satoshis.
func btcToSat(btc float64) uint64 {
	return uint64(math.Round(btc * 1e8))
}

type listUnspentResult struct {
	TxID          string  `json:"txid"`
	Vout          uint32  `json:"vout"`
	Amount        float64 `json:"amount"`
	ScriptPubKey  string  `json:"scriptPubKey"`
	Address       string  `json:"address"`
	Confirmations int64   `json:"confirmations"`
}

// ListUnspent calls `listunspent 0 9999999 ["address"]`.
func (c *RPCClient) ListUnspent(ctx context.Context, address string) ([]*UTXO, error) {
	var results []listUnspentResult
	if err := c.Call(ctx, "listunspent", []any{0, 9999999, []string{address}}, &results); err != nil {
		return nil, err
	}
	utxos := make([]*UTXO, 0, len(results))
	for _, r := range results {
		utxos = append(utxos, &UTXO{
			TxID:          r.TxID,
			Vout:          r.Vout,
			Amount:        btcToSat(r.Amount),
			ScriptPubKey:  r.ScriptPubKey,
			Address:       r.Address,
			Confirmations: r.Confirmations,
		})
	}
	return utxos, nil
}

// BroadcastTx calls `sendrawtransaction "hex"`. A transaction the node
// already has in its chain counts as broadcast; txid is then empty.
func (c *RPCClient) BroadcastTx(ctx context.Context, rawTxHex string) (string, error) {
	var txid string
	err := c.Call(ctx, "sendrawtransaction", []any{rawTxHex}, &txid)
	var rpcErr *RPCError
	switch {
	case err == nil:
		return txid, nil
	case errors.As(err, &rpcErr) && rpcErr.Code == codeVerifyAlreadyInMain:
		return "", nil
	case errors.As(err, &rpcErr):
		return "", fmt.Errorf("%w: %w", ErrBroadcastRejected, err)
	default:
		return "", err
	}
}

type verboseTxResult struct {
	Confirmations int64  `json:"confirmations"`
	BlockHash     string `json:"blockhash"`
	BlockHeight   uint64 `json:"blockheight"`
}

// GetTxStatus calls `getrawtransaction "txid" true`.
func (c *RPCClient) GetTxStatus(ctx context.Context, txid string) (*TxStatus, error) {
	var result verboseTxResult
	err := c.Call(ctx, "getrawtransaction", []any{txid, true}, &result)
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == codeInvalidAddressOrKey {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, txid)
	}
	if err != nil {
		return nil, err
	}
	return &TxStatus{
		Confirmed:     result.Confirmations > 0,
		Confirmations: result.Confirmations,
		BlockHash:     result.BlockHash,
		BlockHeight:   result.BlockHeight,
	}, nil
}

// BestBlockHeight calls `getblockcount`.
func (c *RPCClient) BestBlockHeight(ctx context.Context) (uint64, error) {
	var height uint64
	if err := c.Call(ctx, "getblockcount", nil, &height); err != nil {
		return 0, err
	}
	return height, nil
}
