package oracle

import (
	"context"
	"sync"

	"github.com/fortiblox/x1-stakepool/internal/types"
	"github.com/fortiblox/x1-stakepool/pkg/stakepool"
)

// Memory is a deterministic in-process oracle for tests and simulation.
//
// It derives stake balances from the record it is asked about: active stake
// plus any rewards paid at epoch boundaries the record has not yet observed,
// and the recorded transient, which settles once ActivationDelay epochs have
// passed since it was created.
type Memory struct {
	mu        sync.RWMutex
	epoch     uint64
	delay     uint64
	rewards   map[types.Pubkey]map[uint64]uint64 // vote -> payout epoch -> lamports
	failures  map[types.Pubkey]error
	overrides map[types.Pubkey]stakepool.ValidatorStake
	epochErr  error
}

// NewMemory creates an oracle at epoch with a one-epoch activation delay.
func NewMemory(epoch uint64) *Memory {
	return &Memory{
		epoch:     epoch,
		delay:     1,
		rewards:   make(map[types.Pubkey]map[uint64]uint64),
		failures:  make(map[types.Pubkey]error),
		overrides: make(map[types.Pubkey]stakepool.ValidatorStake),
	}
}

// SetActivationDelay sets how many epochs a transient takes to settle.
func (m *Memory) SetActivationDelay(epochs uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = epochs
}

// SetEpoch moves the oracle to epoch.
func (m *Memory) SetEpoch(epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch = epoch
}

// AdvanceEpoch moves to the next epoch and returns it.
func (m *Memory) AdvanceEpoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch++
	return m.epoch
}

// AddRewards credits lamports earned by vote during the current epoch. They
// are paid into its active stake at the next epoch boundary, so a pool that
// has already updated in the current epoch observes them in the next one.
func (m *Memory) AddRewards(vote types.Pubkey, lamports uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byEpoch, ok := m.rewards[vote]
	if !ok {
		byEpoch = make(map[uint64]uint64)
		m.rewards[vote] = byEpoch
	}
	byEpoch[m.epoch+1] += lamports
}

// Fail makes every query for vote return err. A nil err clears the failure.
func (m *Memory) Fail(vote types.Pubkey, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, vote)
		return
	}
	m.failures[vote] = err
}

// FailEpoch makes CurrentEpoch return err. A nil err clears the failure.
func (m *Memory) FailEpoch(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epochErr = err
}

// Override pins the report for vote regardless of the record.
func (m *Memory) Override(vote types.Pubkey, st stakepool.ValidatorStake) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[vote] = st
}

// ClearOverride removes a pinned report.
func (m *Memory) ClearOverride(vote types.Pubkey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides, vote)
}

// CurrentEpoch implements stakepool.Oracle.
func (m *Memory) CurrentEpoch(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.epochErr != nil {
		return 0, m.epochErr
	}
	return m.epoch, nil
}

// ValidatorStake implements stakepool.Oracle.
func (m *Memory) ValidatorStake(ctx context.Context, pool types.Pubkey, rec stakepool.ValidatorRecord) (stakepool.ValidatorStake, error) {
	if err := ctx.Err(); err != nil {
		return stakepool.ValidatorStake{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failures[rec.VoteAccount]; err != nil {
		return stakepool.ValidatorStake{}, err
	}
	if st, ok := m.overrides[rec.VoteAccount]; ok {
		return st, nil
	}

	active := rec.ActiveStakeLamports
	for epoch, lamports := range m.rewards[rec.VoteAccount] {
		if epoch > rec.LastUpdateEpoch && epoch <= m.epoch {
			active += lamports
		}
	}
	st := stakepool.ValidatorStake{
		Active: stakepool.StakeAccountState{Lamports: active},
	}
	if rec.HasTransient() {
		settled := m.epoch >= rec.TransientEpoch+m.delay
		st.Transient = stakepool.StakeAccountState{
			Lamports:     rec.TransientStakeLamports,
			Activating:   rec.TransientDirection == stakepool.TransientActivating && !settled,
			Deactivating: rec.TransientDirection == stakepool.TransientDeactivating && !settled,
		}
	}
	return st, nil
}
