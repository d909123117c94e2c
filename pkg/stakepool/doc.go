// Package stakepool implements the accounting and rebalancing engine of a
// stake pool.
//
// A pool holds lamports in a reserve and in stake accounts delegated to a
// registry of validators, and issues fungible pool tokens against them. The
// exchange rate is TotalStakeLamports / TotalPoolTokens.
//
// # Epochs
//
// Stake moves between the reserve and validators through transient stake
// accounts that settle only at an epoch boundary. Once per epoch the owner
// calls Engine.Update, which reads realized balances from an Oracle, folds
// settled transients back into active stake or the reserve, recomputes the
// pool total and mints the epoch fee. Every other operation fails with
// ErrStaleLedger until the pass for the current epoch has committed.
//
// # Withdrawal priority
//
// Stake withdrawals are served from the preferred withdraw validator, then
// the validator with the most active stake above the minimum floor, then the
// largest transient, and only when every validator is at the floor, from the
// reserve.
//
// # Atomicity
//
// Each operation computes its mutation on a private clone and commits only
// if the pool version is unchanged, otherwise it fails with
// ErrConcurrentModification. Rejected operations leave the pool untouched.
package stakepool
