package httpapi

import (
	"errors"
	"net/http"

	"github.com/bitfsorg/custody-go/custody"
	"github.com/bitfsorg/custody-go/ledger"
	"github.com/bitfsorg/custody-go/storage"
	"github.com/bitfsorg/custody-go/token"
)

var (
	// ErrBadRequest indicates a malformed request body or parameter.
	ErrBadRequest = errors.New("httpapi: bad request")

	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("httpapi: not found")
)

// statusFor maps an error from the custody service or the ledger to an
// HTTP status code. Ledger failures are classified by kind alone.
func statusFor(err error) int {
	if kind := ledger.KindOf(err); kind != nil {
		switch kind {
		case ledger.ErrUnauthorizedValidator, ledger.ErrKeyFormat:
			return http.StatusForbidden
		case ledger.ErrIntegrityCompromised:
			return http.StatusConflict
		case ledger.ErrInvalidInput:
			return http.StatusBadRequest
		case ledger.ErrStoreUnavailable, ledger.ErrNoPreviousHash:
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}

	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &tooBig), errors.Is(err, storage.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, custody.ErrUnauthorized), errors.Is(err, token.ErrMissingToken), errors.Is(err, token.ErrMalformed):
		return http.StatusUnauthorized
	case errors.Is(err, ErrBadRequest), errors.Is(err, custody.ErrInvalidName), errors.Is(err, storage.ErrEmptyContent):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound), errors.Is(err, custody.ErrFileNotFound),
		errors.Is(err, ledger.ErrBlockNotFound), errors.Is(err, ledger.ErrEmptyChain):
		return http.StatusNotFound
	case errors.Is(err, custody.ErrFileExists):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
