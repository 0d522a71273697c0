package anchor

import "errors"

var (
	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("anchor: required parameter is nil")

	// ErrInvalidTip indicates the tip hash is not a 64-character hex digest.
	ErrInvalidTip = errors.New("anchor: invalid tip hash")

	// ErrInsufficientFunds indicates the funding outputs cannot cover the fee.
	ErrInsufficientFunds = errors.New("anchor: insufficient funds")

	// ErrScriptBuild indicates script construction failed.
	ErrScriptBuild = errors.New("anchor: script build failed")

	// ErrSigningFailed indicates transaction signing failed.
	ErrSigningFailed = errors.New("anchor: signing failed")

	// ErrInvalidOPReturn indicates an OP_RETURN script is malformed.
	ErrInvalidOPReturn = errors.New("anchor: invalid OP_RETURN format")

	// ErrNotAnchor indicates the script does not carry a custody anchor.
	ErrNotAnchor = errors.New("anchor: not a custody anchor")

	// ErrInvalidKey indicates the funding key could not be parsed.
	ErrInvalidKey = errors.New("anchor: invalid funding key")

	// ErrNothingToAnchor indicates the ledger has no blocks yet.
	ErrNothingToAnchor = errors.New("anchor: ledger is empty")

	// ErrTipUnchanged indicates the current tip was already anchored.
	ErrTipUnchanged = errors.New("anchor: tip already anchored")
)
