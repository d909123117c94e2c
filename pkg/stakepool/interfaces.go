package stakepool

import (
	"context"

	"github.com/fortiblox/x1-stakepool/internal/types"
)

// StakeAccountState is the realized state of one stake account.
type StakeAccountState struct {
	Lamports     uint64
	Activating   bool
	Deactivating bool
}

// Settled reports whether the account is neither activating nor deactivating.
func (s StakeAccountState) Settled() bool {
	return !s.Activating && !s.Deactivating
}

// ValidatorStake is the oracle's view of a validator's two stake accounts.
type ValidatorStake struct {
	Active    StakeAccountState
	Transient StakeAccountState
}

// Oracle reports the current epoch and realized stake balances.
// Implementations must be safe for concurrent use.
type Oracle interface {
	// CurrentEpoch returns the epoch the cluster is in.
	CurrentEpoch(ctx context.Context) (uint64, error)

	// ValidatorStake returns the realized state of the stake accounts the
	// pool holds with the validator described by record.
	ValidatorStake(ctx context.Context, pool types.Pubkey, record ValidatorRecord) (ValidatorStake, error)
}

// TokenLedger mints, burns and moves pool tokens.
type TokenLedger interface {
	Mint(account types.Pubkey, amount uint64) error
	Burn(account types.Pubkey, amount uint64) error
	Transfer(from, to types.Pubkey, amount uint64) error
	BalanceOf(account types.Pubkey) (uint64, error)
}

// Store persists committed pool state together with its journal entry.
// Commit must write both or neither.
type Store interface {
	Commit(pool *Pool, receipt *Receipt) error
}

// Recorder observes operation outcomes and post-commit pool state.
type Recorder interface {
	ObserveOperation(op Operation, code ErrorCode)
	ObservePool(pool *Pool)
}
