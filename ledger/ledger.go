// Package ledger is the tamper-evident custody ledger: a hash-linked chain
// of blocks, each signed by the single trusted validator, kept consistent
// with a separate integrity index.
package ledger

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bitfsorg/custody-go/authority"
	"github.com/bitfsorg/custody-go/index"
)

// DefaultStoreTimeout bounds each call to the ledger store and the index.
const DefaultStoreTimeout = 10 * time.Second

// Ledger appends blocks. All appends run one at a time; reads do not wait
// for them.
type Ledger struct {
	store  Store
	index  index.Index
	policy authority.Policy

	storeTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu sync.Mutex // held across every append, from tip lookup to index write
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithStoreTimeout sets the per-call timeout for store and index calls.
// Zero or negative disables it.
func WithStoreTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.storeTimeout = d }
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock sets the time source for block timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a Ledger over the given store, index and validator policy.
func New(store Store, idx index.Index, policy authority.Policy, opts ...Option) (*Ledger, error) {
	if store == nil || idx == nil || policy == nil {
		return nil, fmt.Errorf("ledger: store, index and policy are required")
	}
	l := &Ledger{
		store:        store,
		index:        idx,
		policy:       policy,
		storeTimeout: DefaultStoreTimeout,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *Ledger) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.storeTimeout)
}

func transportFailure(err error) bool {
	return errors.Is(err, ErrStoreIO) ||
		errors.Is(err, index.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// CreateBlock appends a block recording an operation on the content with
// the given digest. callerKey is the caller's validator private key in PEM
// form; it is used for this call only.
//
// On error nothing was written unless the error says otherwise. A block
// that was stored but could not be cross-indexed is returned without error
// and with Outcome PersistedUnindexed.
func (l *Ledger) CreateBlock(ctx context.Context, digest string, meta Metadata, callerKey string) (Receipt, error) {
	if digest == "" {
		return Receipt{}, l.fail(newError(ErrInvalidInput, StepValidate, nil, "content digest is empty"))
	}
	if meta == nil {
		meta = Metadata{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// 1. Previous hash.
	prevHash, err := l.latestHash(ctx)
	if err != nil {
		return Receipt{}, l.fail(err)
	}

	// 2. The tip must have been cross-indexed.
	if err := l.checkIntegrity(ctx, prevHash); err != nil {
		return Receipt{}, l.fail(err)
	}

	// 3. Proof of authority.
	key, validator, proof, err := l.proveAuthority(prevHash, callerKey)
	if err != nil {
		return Receipt{}, l.fail(err)
	}

	// 4. Next index.
	next, err := l.allocateIndex(ctx)
	if err != nil {
		return Receipt{}, l.fail(err)
	}

	// 5-6. Assemble, hash and sign.
	b := &Block{
		Index:        next,
		Timestamp:    l.now().UTC().Truncate(time.Microsecond),
		Data:         digest,
		PreviousHash: prevHash,
		Metadata:     meta,
		Proof:        proof,
		Validator:    validator,
	}
	if err := sealBlock(b, key); err != nil {
		return Receipt{}, l.fail(err)
	}

	// 7. Two-store write.
	return l.commit(ctx, b)
}

// Bootstrap writes the genesis block of an empty chain: index 0, an all-zero
// previous hash and digest, operation "genesis". It is an explicit operator
// action; CreateBlock never creates a genesis block on its own.
func (l *Ledger) Bootstrap(ctx context.Context, callerKey string) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sctx, cancel := l.withTimeout(ctx)
	_, ok, err := l.store.MaxIndex(sctx)
	cancel()
	if err != nil {
		return Receipt{}, l.fail(newError(ErrStoreUnavailable, StepBootstrapCheck, err, "read chain state"))
	}
	if ok {
		return Receipt{}, l.fail(newError(ErrChainNotEmpty, StepBootstrapCheck, nil, "genesis already written"))
	}

	key, validator, proof, err := l.proveAuthority(ZeroHash, callerKey)
	if err != nil {
		return Receipt{}, l.fail(err)
	}
	b := &Block{
		Index:        0,
		Timestamp:    l.now().UTC().Truncate(time.Microsecond),
		Data:         ZeroHash,
		PreviousHash: ZeroHash,
		Metadata:     Metadata{MetaOperation: index.OpGenesis},
		Proof:        proof,
		Validator:    validator,
	}
	if err := sealBlock(b, key); err != nil {
		return Receipt{}, l.fail(err)
	}
	return l.commit(ctx, b)
}

func (l *Ledger) latestHash(ctx context.Context) (string, error) {
	sctx, cancel := l.withTimeout(ctx)
	defer cancel()
	prev, err := l.store.LatestHash(sctx)
	switch {
	case errors.Is(err, ErrEmptyChain):
		return "", newError(ErrNoPreviousHash, StepPreviousHash, err, "ledger has no blocks")
	case err != nil && transportFailure(err):
		return "", newError(ErrStoreUnavailable, StepPreviousHash, err, "read chain tip")
	case err != nil:
		return "", newError(ErrNoPreviousHash, StepPreviousHash, err, "chain tip unreadable")
	case prev == "":
		return "", newError(ErrNoPreviousHash, StepPreviousHash, nil, "chain tip has no hash")
	}
	return prev, nil
}

func (l *Ledger) checkIntegrity(ctx context.Context, prevHash string) error {
	sctx, cancel := l.withTimeout(ctx)
	defer cancel()
	ok, err := l.index.HashExists(sctx, prevHash)
	if err != nil {
		return newError(ErrStoreUnavailable, StepIntegrity, err, "query integrity index")
	}
	if !ok {
		return newError(ErrIntegrityCompromised, StepIntegrity, nil, "chain tip %s is not in the integrity index", prevHash)
	}
	return nil
}

func (l *Ledger) proveAuthority(prevHash, callerKey string) (*rsa.PrivateKey, string, string, error) {
	key, err := authority.ParsePrivateKey(callerKey)
	if err != nil {
		return nil, "", "", newError(ErrKeyFormat, StepAuthority, err, "parse caller key")
	}
	validator, err := authority.EncodePublicKey(&key.PublicKey)
	if err != nil {
		return nil, "", "", newError(ErrKeyFormat, StepAuthority, err, "derive public key")
	}
	if !l.policy.IsAuthorized(validator) {
		return nil, "", "", newError(ErrUnauthorizedValidator, StepAuthority, nil, "caller key is not the trusted validator")
	}
	proof, err := authority.SignProof([]byte(prevHash), key)
	if err != nil {
		return nil, "", "", newError(ErrSigning, StepAuthority, err, "sign previous hash")
	}
	return key, validator, proof, nil
}

func (l *Ledger) allocateIndex(ctx context.Context) (uint64, error) {
	sctx, cancel := l.withTimeout(ctx)
	defer cancel()
	maxIdx, ok, err := l.store.MaxIndex(sctx)
	if err != nil {
		return 0, newError(ErrIndexAllocationFailed, StepAllocateIndex, err, "read max index")
	}
	if !ok {
		return 1, nil
	}
	return maxIdx + 1, nil
}

// sealBlock fills ProofSignature, Hash and Signature.
func sealBlock(b *Block, key *rsa.PrivateKey) error {
	var err error
	if b.ProofSignature, err = authority.SignProof([]byte(b.Proof), key); err != nil {
		return newError(ErrSigning, StepAssemble, err, "sign proof")
	}
	if b.Hash, err = ComputeHash(b); err != nil {
		return newError(ErrInvalidInput, StepAssemble, err, "hash block")
	}
	canonical, err := CanonicalSigned(b)
	if err != nil {
		return newError(ErrInvalidInput, StepSign, err, "encode block")
	}
	if b.Signature, err = authority.SignBlock(canonical, key); err != nil {
		return newError(ErrSigning, StepSign, err, "sign block")
	}
	return nil
}

// commit appends b and then records its cross reference. The index is
// written only after the append succeeded.
func (l *Ledger) commit(ctx context.Context, b *Block) (Receipt, error) {
	sctx, cancel := l.withTimeout(ctx)
	storageID, err := l.store.Append(sctx, b)
	cancel()
	if err == nil && storageID == "" {
		err = errors.New("store returned no identifier")
	}
	if err != nil {
		return Receipt{Hash: b.Hash, Index: b.Index, Outcome: NotPersisted},
			l.fail(newError(ErrPersistenceFailed, StepPersist, err, "append block %d", b.Index))
	}

	receipt := Receipt{Hash: b.Hash, Index: b.Index, StorageID: storageID, Outcome: Persisted}
	ref := index.CrossReference{
		BlockHash:     b.Hash,
		ContentDigest: b.Data,
		FileID:        b.Metadata.String(MetaFileID),
		StorageID:     storageID,
		FileName:      b.Metadata.FileName(),
		Operation:     b.Metadata.String(MetaOperation),
		RecordedAt:    b.Timestamp,
	}
	if ref.Operation == "" {
		ref.Operation = index.OpStore
	}

	sctx, cancel = l.withTimeout(ctx)
	err = l.index.RecordCrossReference(sctx, ref)
	cancel()
	if err != nil {
		receipt.Outcome = PersistedUnindexed
		receipt.IndexErr = newError(ErrCrossReferenceWriteFailed, StepCrossReference, err, "index block %s", b.Hash)
		l.logger.Warn("block persisted without cross reference",
			"index", b.Index, "block_hash", b.Hash, "storage_id", storageID, "error", err)
		return receipt, nil
	}

	l.logger.Info("block appended",
		"index", b.Index, "block_hash", b.Hash, "storage_id", storageID, "operation", ref.Operation)
	return receipt, nil
}

func (l *Ledger) fail(err error) error {
	var e *Error
	if errors.As(err, &e) {
		l.logger.Error("ledger append failed", "kind", e.Kind.Error(), "step", e.Step, "error", err)
	} else {
		l.logger.Error("ledger append failed", "error", err)
	}
	return err
}

// Tip returns the most recently appended block.
func (l *Ledger) Tip(ctx context.Context) (*Block, error) {
	sctx, cancel := l.withTimeout(ctx)
	defer cancel()
	hash, err := l.store.LatestHash(sctx)
	if err != nil {
		return nil, err
	}
	return l.store.BlockByHash(sctx, hash)
}

// BlockByHash returns the block with the given hash.
func (l *Ledger) BlockByHash(ctx context.Context, hash string) (*Block, error) {
	sctx, cancel := l.withTimeout(ctx)
	defer cancel()
	return l.store.BlockByHash(sctx, hash)
}

// BlockByIndex returns the block at index.
func (l *Ledger) BlockByIndex(ctx context.Context, i uint64) (*Block, error) {
	sctx, cancel := l.withTimeout(ctx)
	defer cancel()
	return l.store.BlockByIndex(sctx, i)
}
