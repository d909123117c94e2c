package rpc

import (
	"fmt"

	"github.com/fortiblox/x1-stakepool/pkg/stakepool"
)

// JSON-RPC 2.0 standard error codes.
const (
	// ParseError indicates invalid JSON was received.
	ParseError = -32700

	// InvalidRequest indicates the JSON sent is not a valid Request object.
	InvalidRequest = -32600

	// MethodNotFound indicates the method does not exist.
	MethodNotFound = -32601

	// InvalidParams indicates invalid method parameters.
	InvalidParams = -32602

	// InternalError indicates an internal JSON-RPC error.
	InternalError = -32603
)

// Server error codes.
const (
	// NodeUnhealthy indicates the server is unhealthy.
	NodeUnhealthy = -32005

	// OracleUnavailable indicates the epoch oracle could not be queried.
	OracleUnavailable = -32006

	// JournalUnavailable indicates the server has no journal source.
	JournalUnavailable = -32007

	// PoolErrorBase offsets stake pool error codes. A pool error with code
	// c is reported as PoolErrorBase - c.
	PoolErrorBase = -32100
)

// Common error messages.
var (
	ErrParseError         = NewRPCError(ParseError, "Parse error")
	ErrInvalidRequest     = NewRPCError(InvalidRequest, "Invalid Request")
	ErrMethodNotFound     = NewRPCError(MethodNotFound, "Method not found")
	ErrInvalidParams      = NewRPCError(InvalidParams, "Invalid params")
	ErrInternalError      = NewRPCError(InternalError, "Internal error")
	ErrNodeUnhealthy      = NewRPCError(NodeUnhealthy, "Node is unhealthy")
	ErrJournalUnavailable = NewRPCError(JournalUnavailable, "Journal not available on this node")
)

// NewRPCError creates a new RPC error.
func NewRPCError(code int, message string) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
	}
}

// NewRPCErrorWithData creates a new RPC error with additional data.
func NewRPCErrorWithData(code int, message string, data interface{}) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("RPC error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// InvalidParamsError creates an invalid params error with a custom message.
func InvalidParamsError(msg string) *RPCError {
	return NewRPCError(InvalidParams, msg)
}

// InvalidParamsErrorf creates an invalid params error with a formatted message.
func InvalidParamsErrorf(format string, args ...interface{}) *RPCError {
	return NewRPCError(InvalidParams, fmt.Sprintf(format, args...))
}

// InternalServerErrorf creates an internal server error with a formatted message.
func InternalServerErrorf(format string, args ...interface{}) *RPCError {
	return NewRPCError(InternalError, fmt.Sprintf(format, args...))
}

// OracleError creates an error for a failed oracle query.
func OracleError(err error) *RPCError {
	return NewRPCError(OracleUnavailable, fmt.Sprintf("Epoch oracle unavailable: %v", err))
}

// PoolErrorCode returns the JSON-RPC code for a stake pool error code.
func PoolErrorCode(code stakepool.ErrorCode) int {
	return PoolErrorBase - int(code)
}

// FromError converts err into an RPC error. Stake pool errors keep their
// code in the data field; anything else is an internal error.
func FromError(err error) *RPCError {
	if code := stakepool.CodeOf(err); code != 0 {
		return NewRPCErrorWithData(PoolErrorCode(code), err.Error(),
			map[string]uint32{"poolErrorCode": uint32(code)})
	}
	return NewRPCError(InternalError, err.Error())
}
