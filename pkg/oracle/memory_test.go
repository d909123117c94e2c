package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/fortiblox/x1-stakepool/internal/types"
	"github.com/fortiblox/x1-stakepool/pkg/stakepool"
)

func TestMemorySettlement(t *testing.T) {
	m := NewMemory(10)
	m.SetActivationDelay(2)
	vote := types.Pubkey{3}
	rec := stakepool.ValidatorRecord{
		VoteAccount:            vote,
		ActiveStakeLamports:    100,
		TransientStakeLamports: 50,
		TransientDirection:     stakepool.TransientActivating,
		TransientEpoch:         10,
		LastUpdateEpoch:        10,
	}
	ctx := context.Background()

	for epoch, wantSettled := range map[uint64]bool{10: false, 11: false, 12: true} {
		m.SetEpoch(epoch)
		st, err := m.ValidatorStake(ctx, types.Pubkey{}, rec)
		if err != nil {
			t.Fatalf("ValidatorStake failed: %v", err)
		}
		if st.Transient.Settled() != wantSettled {
			t.Errorf("epoch %d: settled = %v, want %v", epoch, st.Transient.Settled(), wantSettled)
		}
		if st.Transient.Deactivating {
			t.Errorf("epoch %d: activating transient reported as deactivating", epoch)
		}
	}
}

func TestMemoryRewardsOncePerEpoch(t *testing.T) {
	m := NewMemory(1)
	vote := types.Pubkey{4}
	ctx := context.Background()

	m.AddRewards(vote, 30)
	m.AdvanceEpoch()
	rec := stakepool.ValidatorRecord{VoteAccount: vote, ActiveStakeLamports: 100, LastUpdateEpoch: 1}
	st, _ := m.ValidatorStake(ctx, types.Pubkey{}, rec)
	if st.Active.Lamports != 130 {
		t.Errorf("Expected 130, got %d", st.Active.Lamports)
	}

	rec.ActiveStakeLamports, rec.LastUpdateEpoch = 130, 2
	st, _ = m.ValidatorStake(ctx, types.Pubkey{}, rec)
	if st.Active.Lamports != 130 {
		t.Errorf("Rewards counted twice: %d", st.Active.Lamports)
	}
}

func TestMemoryRewardsAfterSameEpochUpdate(t *testing.T) {
	m := NewMemory(2)
	vote := types.Pubkey{6}
	ctx := context.Background()
	rec := stakepool.ValidatorRecord{VoteAccount: vote, ActiveStakeLamports: 100, LastUpdateEpoch: 2}

	m.AddRewards(vote, 7)
	st, _ := m.ValidatorStake(ctx, types.Pubkey{}, rec)
	if st.Active.Lamports != 100 {
		t.Errorf("Rewards paid before the boundary: %d", st.Active.Lamports)
	}

	m.AdvanceEpoch()
	st, _ = m.ValidatorStake(ctx, types.Pubkey{}, rec)
	if st.Active.Lamports != 107 {
		t.Errorf("Expected 107, got %d", st.Active.Lamports)
	}
}

func TestMemoryFailures(t *testing.T) {
	m := NewMemory(1)
	vote := types.Pubkey{5}
	boom := errors.New("boom")
	ctx := context.Background()

	m.Fail(vote, boom)
	if _, err := m.ValidatorStake(ctx, types.Pubkey{}, stakepool.ValidatorRecord{VoteAccount: vote}); !errors.Is(err, boom) {
		t.Errorf("Expected injected failure, got %v", err)
	}
	m.Fail(vote, nil)
	if _, err := m.ValidatorStake(ctx, types.Pubkey{}, stakepool.ValidatorRecord{VoteAccount: vote}); err != nil {
		t.Errorf("Unexpected error after clearing: %v", err)
	}

	m.FailEpoch(boom)
	if _, err := m.CurrentEpoch(ctx); !errors.Is(err, boom) {
		t.Errorf("Expected epoch failure, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	m.FailEpoch(nil)
	if _, err := m.CurrentEpoch(cancelled); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
