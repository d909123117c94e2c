package oracle

import (
	"fmt"

	"github.com/pkg/errors"
)

// Package errors.
var (
	// ErrNoEndpoints is returned when no RPC endpoints are available.
	ErrNoEndpoints = errors.New("no RPC endpoints available")

	// ErrUnknownState is returned for an unrecognized stake activation state.
	ErrUnknownState = errors.New("unknown stake activation state")
)

// RPCError represents a JSON-RPC error response.
type RPCError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// IsAccountNotFound reports whether err is the cluster's answer for a
// missing account.
func IsAccountNotFound(err error) bool {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		// -32602: invalid params, returned by getStakeActivation for
		// accounts that do not exist.
		return rpcErr.Code == -32602
	}
	return false
}
