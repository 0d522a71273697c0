package authority

import "errors"

var (
	// ErrKeyFormat indicates key material that is not a usable RSA key.
	ErrKeyFormat = errors.New("authority: invalid key format")

	// ErrSigning indicates a signature could not be produced.
	ErrSigning = errors.New("authority: signing failed")

	// ErrBadSignature indicates a signature did not verify.
	ErrBadSignature = errors.New("authority: signature verification failed")

	// ErrTrustStoreUnavailable indicates the trusted validator key could not be loaded.
	ErrTrustStoreUnavailable = errors.New("authority: trust store unavailable")

	// ErrDNSLookupFailed indicates a DNS query for the validator record failed.
	ErrDNSLookupFailed = errors.New("authority: DNS lookup failed")

	// ErrDNSSECValidationFailed indicates the resolver did not authenticate the answer.
	ErrDNSSECValidationFailed = errors.New("authority: DNSSEC validation failed")

	// ErrNilParam indicates a required parameter was nil.
	ErrNilParam = errors.New("authority: required parameter is nil")
)
