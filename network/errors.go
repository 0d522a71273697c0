package network

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionFailed indicates the client could not reach the node.
	ErrConnectionFailed = errors.New("network: connection failed")

	// ErrAuthFailed indicates the node rejected the RPC credentials.
	ErrAuthFailed = errors.New("network: authentication failed")

	// ErrTxNotFound indicates the node does not know the transaction.
	ErrTxNotFound = errors.New("network: transaction not found")

	// ErrBroadcastRejected indicates the node refused the transaction.
	ErrBroadcastRejected = errors.New("network: broadcast rejected")

	// ErrInvalidResponse indicates a malformed or unexpected response.
	ErrInvalidResponse = errors.New("network: invalid response")

	// ErrNotConfigured indicates no RPC endpoint could be resolved.
	ErrNotConfigured = errors.New("network: RPC endpoint not configured")
)

// Node error codes the client interprets.
const (
	codeInvalidAddressOrKey = -5  // unknown transaction
	codeVerifyAlreadyInMain = -27 // transaction already in chain
)

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("network: rpc error %d: %s", e.Code, e.Message)
}
