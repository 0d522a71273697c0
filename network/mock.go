package network

import "context"

// MockChain is a test double for Chain. Unset function fields panic.
type MockChain struct {
	ListUnspentFn     func(ctx context.Context, address string) ([]*UTXO, error)
	BroadcastTxFn     func(ctx context.Context, rawTxHex string) (string, error)
	GetTxStatusFn     func(ctx context.Context, txid string) (*TxStatus, error)
	BestBlockHeightFn func(ctx context.Context) (uint64, error)
}

// Compile-time interface check.
var _ Chain = (*MockChain)(nil)

func (m *MockChain) ListUnspent(ctx context.Context, address string) ([]*UTXO, error) {
	return m.ListUnspentFn(ctx, address)
}
func (m *MockChain) BroadcastTx(ctx context.Context, rawTxHex string) (string, error) {
	return m.BroadcastTxFn(ctx, rawTxHex)
}
func (m *MockChain) GetTxStatus(ctx context.Context, txid string) (*TxStatus, error) {
	return m.GetTxStatusFn(ctx, txid)
}
func (m *MockChain) BestBlockHeight(ctx context.Context) (uint64, error) {
	return m.BestBlockHeightFn(ctx)
}
