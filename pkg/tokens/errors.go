// Package tokens implements pool token ledgers: balances of the fungible
// token a stake pool issues against its lamports.
//
// Two implementations are provided. Memory keeps balances in a map and is
// used by tests and simulations. BadgerLedger persists balances in BadgerDB
// so that a daemon restart preserves holder balances alongside the pool
// state kept by poolstore.
package tokens

import "github.com/pkg/errors"

var (
	// ErrInsufficientBalance is returned when a burn or transfer exceeds
	// the source balance.
	ErrInsufficientBalance = errors.New("insufficient token balance")

	// ErrOverflow is returned when a credit would overflow a balance.
	ErrOverflow = errors.New("token balance overflow")

	// ErrClosed is returned when operating on a closed ledger.
	ErrClosed = errors.New("ledger closed")
)
