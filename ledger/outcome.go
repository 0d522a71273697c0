package ledger

// Outcome is the state of the two-store write after CreateBlock.
type Outcome int

const (
	// NotPersisted means nothing was written; the call may be retried.
	NotPersisted Outcome = iota
	// Persisted means the block is stored and cross-indexed.
	Persisted
	// PersistedUnindexed means the block is stored but its cross reference
	// is missing. Retrying would fork the chain; the next CreateBlock
	// reports ErrIntegrityCompromised until the index is repaired.
	PersistedUnindexed
)

func (o Outcome) String() string {
	switch o {
	case NotPersisted:
		return "not_persisted"
	case Persisted:
		return "persisted"
	case PersistedUnindexed:
		return "persisted_unindexed"
	default:
		return "unknown"
	}
}

// Retryable reports whether the whole operation can safely be repeated.
func (o Outcome) Retryable() bool { return o == NotPersisted }

// Receipt describes a block created by CreateBlock or Bootstrap.
type Receipt struct {
	Hash      string
	Index     uint64
	StorageID string
	Outcome   Outcome

	// IndexErr holds the cross reference failure when Outcome is
	// PersistedUnindexed. It matches ErrCrossReferenceWriteFailed.
	IndexErr error
}
