package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// Failure kinds returned by CreateBlock and Bootstrap. Every failure is an
// *Error whose Kind is one of these; errors.Is matches the kind.
var (
	// ErrNoPreviousHash indicates an empty chain or an unreadable tip.
	ErrNoPreviousHash = errors.New("ledger: no previous hash")

	// ErrIntegrityCompromised indicates the chain tip is missing from the integrity index.
	ErrIntegrityCompromised = errors.New("ledger: integrity compromised")

	// ErrUnauthorizedValidator indicates the caller key is not the trusted validator key.
	ErrUnauthorizedValidator = errors.New("ledger: unauthorized validator")

	// ErrKeyFormat indicates caller key material that cannot be parsed.
	ErrKeyFormat = errors.New("ledger: key format error")

	// ErrSigning indicates a proof or block signature could not be produced.
	ErrSigning = errors.New("ledger: signing error")

	// ErrIndexAllocationFailed indicates the next block index could not be read.
	ErrIndexAllocationFailed = errors.New("ledger: index allocation failed")

	// ErrPersistenceFailed indicates the block was not written to the ledger store.
	ErrPersistenceFailed = errors.New("ledger: persistence failed")

	// ErrCrossReferenceWriteFailed indicates a persisted block could not be indexed.
	ErrCrossReferenceWriteFailed = errors.New("ledger: cross reference write failed")

	// ErrInvalidInput indicates an empty content digest or metadata that cannot
	// be encoded.
	ErrInvalidInput = errors.New("ledger: invalid input")

	// ErrStoreUnavailable indicates a transport failure talking to either store.
	ErrStoreUnavailable = errors.New("ledger: store unavailable")

	// ErrChainNotEmpty indicates Bootstrap was called on a chain that already has blocks.
	ErrChainNotEmpty = errors.New("ledger: chain is not empty")

	// ErrInvalidBlock indicates a block whose hash or signatures do not verify.
	ErrInvalidBlock = errors.New("ledger: invalid block")
)

// Error is the structured failure returned by the ledger.
type Error struct {
	Kind   error  // one of the Err* kinds above
	Step   string // step that failed, e.g. "resolve_previous_hash"
	Detail string // human-readable detail
	Err    error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Step != "" {
		b.WriteString(" [")
		b.WriteString(e.Step)
		b.WriteString("]")
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the failure kind of err, or nil if err is not a ledger *Error.
func KindOf(err error) error {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return nil
}

// Steps of CreateBlock, used in Error.Step and logs.
const (
	StepValidate       = "validate_input"
	StepPreviousHash   = "resolve_previous_hash"
	StepIntegrity      = "integrity_check"
	StepAuthority      = "proof_of_authority"
	StepAllocateIndex  = "allocate_index"
	StepAssemble       = "assemble_block"
	StepSign           = "sign_block"
	StepPersist        = "persist_block"
	StepCrossReference = "record_cross_reference"
	StepBootstrapCheck = "bootstrap_check"
)

func newError(kind error, step string, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Step: step, Detail: fmt.Sprintf(format, args...), Err: cause}
}
