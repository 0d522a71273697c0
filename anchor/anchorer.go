package anchor

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"

	"github.com/bitfsorg/custody-go/ledger"
	"github.com/bitfsorg/custody-go/network"
)

// TipSource returns the latest ledger block.
type TipSource interface {
	Tip(ctx context.Context) (*ledger.Block, error)
}

// Anchor records one broadcast anchor transaction.
type Anchor struct {
	TxID       string    `json:"txid"`
	TipHash    string    `json:"tip_hash"`
	Index      uint64    `json:"index"`
	Fee        uint64    `json:"fee"`
	AnchoredAt time.Time `json:"anchored_at"`
}

// Anchorer builds and broadcasts anchor transactions for the ledger tip.
type Anchorer struct {
	tips    TipSource
	chain   network.Chain
	key     *ec.PrivateKey
	address string
	mainnet bool
	feeRate uint64
	logger  *slog.Logger
	now     func() time.Time

	mu   sync.Mutex
	last *Anchor
}

// Option configures an Anchorer.
type Option func(*Anchorer)

// WithFeeRate sets the fee rate in sat/KB.
func WithFeeRate(rate uint64) Option {
	return func(a *Anchorer) { a.feeRate = rate }
}

// WithMainnet selects mainnet addresses for funding and change.
func WithMainnet(mainnet bool) Option {
	return func(a *Anchorer) { a.mainnet = mainnet }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Anchorer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAnchorer creates an Anchorer funded by key.
func NewAnchorer(tips TipSource, chain network.Chain, key *ec.PrivateKey, opts ...Option) (*Anchorer, error) {
	if tips == nil || chain == nil || key == nil {
		return nil, fmt.Errorf("%w: tips, chain and key are required", ErrNilParam)
	}
	a := &Anchorer{
		tips:    tips,
		chain:   chain,
		key:     key,
		feeRate: DefaultFeeRate,
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	addr, err := Address(key, a.mainnet)
	if err != nil {
		return nil, err
	}
	a.address = addr
	return a, nil
}

// Address returns the funding address of the anchor key.
func (a *Anchorer) Address() string { return a.address }

// Last returns the most recent anchor, or nil.
func (a *Anchorer) Last() *Anchor {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil {
		return nil
	}
	cp := *a.last
	return &cp
}

// AnchorTip anchors the current ledger tip. It returns ErrTipUnchanged when
// the tip was already anchored and ErrNothingToAnchor on an empty ledger.
func (a *Anchorer) AnchorTip(ctx context.Context) (*Anchor, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tip, err := a.tips.Tip(ctx)
	if errors.Is(err, ledger.ErrEmptyChain) {
		return nil, ErrNothingToAnchor
	}
	if err != nil {
		return nil, fmt.Errorf("anchor: read tip: %w", err)
	}
	if a.last != nil && a.last.TipHash == tip.Hash {
		return nil, ErrTipUnchanged
	}

	utxos, err := a.chain.ListUnspent(ctx, a.address)
	if err != nil {
		return nil, fmt.Errorf("anchor: list unspent: %w", err)
	}
	inputs := make([]*UTXO, 0, len(utxos))
	for _, u := range utxos {
		if u.Amount == 0 {
			continue
		}
		in := &UTXO{TxID: u.TxID, Vout: u.Vout, Amount: u.Amount}
		if u.ScriptPubKey != "" {
			if in.ScriptPubKey, err = hex.DecodeString(u.ScriptPubKey); err != nil {
				return nil, fmt.Errorf("anchor: utxo %s:%d script: %w", u.TxID, u.Vout, err)
			}
		}
		inputs = append(inputs, in)
	}

	built, err := BuildAnchorTx(&TxParams{
		TipHash: tip.Hash,
		Index:   tip.Index,
		Inputs:  inputs,
		Key:     a.key,
		FeeRate: a.feeRate,
		Mainnet: a.mainnet,
	})
	if err != nil {
		return nil, err
	}

	txid, err := a.chain.BroadcastTx(ctx, built.Hex)
	if err != nil {
		return nil, fmt.Errorf("anchor: broadcast: %w", err)
	}
	if txid == "" {
		txid = built.TxID
	}

	a.last = &Anchor{
		TxID:       txid,
		TipHash:    tip.Hash,
		Index:      tip.Index,
		Fee:        built.Fee,
		AnchoredAt: a.now().UTC(),
	}
	a.logger.Info("ledger tip anchored", "txid", txid, "index", tip.Index, "hash", tip.Hash, "fee", built.Fee)
	cp := *a.last
	return &cp, nil
}

// Run anchors the tip every interval until ctx is done.
func (a *Anchorer) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("anchor: interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	a.logger.Info("anchoring started", "address", a.address, "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, err := a.AnchorTip(ctx)
			switch {
			case err == nil, errors.Is(err, ErrTipUnchanged), errors.Is(err, ErrNothingToAnchor):
			case ctx.Err() != nil:
				return ctx.Err()
			default:
				a.logger.Warn("anchoring failed", "error", err)
			}
		}
	}
}
