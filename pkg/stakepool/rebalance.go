package stakepool

import (
	"context"

	"github.com/pkg/errors"

	"github.com/fortiblox/x1-stakepool/internal/types"
)

// AddValidator registers vote with the pool. The caller funds the new
// validator stake account with the pool's minimum floor, which becomes part
// of the pool's total stake.
func (e *Engine) AddValidator(ctx context.Context, staker, vote types.Pubkey) (*Receipt, error) {
	return e.execute(ctx, OpAddValidator, func(tx *txn) error {
		p := tx.pool
		if err := requireSigner(staker, p.Staker, ErrWrongStaker); err != nil {
			return err
		}
		if p.findValidator(vote) >= 0 {
			return errors.Wrapf(ErrValidatorAlreadyAdded, "%s", vote)
		}
		if uint32(len(p.Validators)) >= p.Limits.MaxValidators {
			return errors.Wrapf(ErrRegistryFull, "capacity %d", p.Limits.MaxValidators)
		}
		total, err := checkedAdd(p.TotalStakeLamports, p.Limits.MinimumFloor)
		if err != nil {
			return err
		}
		p.TotalStakeLamports = total
		p.Validators = append(p.Validators, ValidatorRecord{
			VoteAccount:         vote,
			ActiveStakeLamports: p.Limits.MinimumFloor,
			LastUpdateEpoch:     tx.epoch,
		})
		tx.receipt.Validator = vote
		tx.receipt.Lamports = p.Limits.MinimumFloor
		return nil
	})
}

// RemoveValidator drops vote from the registry once its stake is back at the
// minimum floor, returning the remaining lamports to destination. Preferred
// validator pins pointing at vote are cleared.
func (e *Engine) RemoveValidator(ctx context.Context, staker, vote, destination types.Pubkey) (*Receipt, error) {
	return e.execute(ctx, OpRemoveValidator, func(tx *txn) error {
		p := tx.pool
		if err := requireSigner(staker, p.Staker, ErrWrongStaker); err != nil {
			return err
		}
		v, err := p.validator(vote)
		if err != nil {
			return err
		}
		stake := v.StakeLamports()
		if stake != p.Limits.MinimumFloor {
			return errors.Wrapf(ErrValidatorNotEmpty, "validator %s holds %d, floor %d", vote, stake, p.Limits.MinimumFloor)
		}
		if p.TotalStakeLamports, err = checkedSub(p.TotalStakeLamports, stake); err != nil {
			return err
		}
		p.removeValidator(vote)
		if p.PreferredDepositValidator != nil && *p.PreferredDepositValidator == vote {
			p.PreferredDepositValidator = nil
		}
		if p.PreferredWithdrawValidator != nil && *p.PreferredWithdrawValidator == vote {
			p.PreferredWithdrawValidator = nil
		}
		tx.receipt.Validator = vote
		tx.receipt.Account = destination
		tx.receipt.Lamports = stake
		return nil
	})
}

// DecreaseValidatorStake starts deactivating lamports of vote's active stake.
// The lamports reach the reserve at the first update pass after they settle.
func (e *Engine) DecreaseValidatorStake(ctx context.Context, staker, vote types.Pubkey, lamports uint64) (*Receipt, error) {
	return e.execute(ctx, OpDecreaseValidatorStake, func(tx *txn) error {
		p := tx.pool
		v, err := p.transientTarget(staker, vote, lamports)
		if err != nil {
			return err
		}
		if avail := p.availableStake(v); lamports > avail {
			return errors.Wrapf(ErrInsufficientValidatorStake, "requested %d, available %d", lamports, avail)
		}
		v.ActiveStakeLamports -= lamports
		v.startTransient(TransientDeactivating, lamports, tx.epoch)
		tx.receipt.Validator = vote
		tx.receipt.Lamports = lamports
		return nil
	})
}

// IncreaseValidatorStake moves lamports from the reserve into an activating
// transient delegated to vote.
func (e *Engine) IncreaseValidatorStake(ctx context.Context, staker, vote types.Pubkey, lamports uint64) (*Receipt, error) {
	return e.execute(ctx, OpIncreaseValidatorStake, func(tx *txn) error {
		p := tx.pool
		v, err := p.transientTarget(staker, vote, lamports)
		if err != nil {
			return err
		}
		if lamports > p.Reserve.Lamports {
			return errors.Wrapf(ErrInsufficientReserve, "requested %d, reserve %d", lamports, p.Reserve.Lamports)
		}
		p.Reserve.Lamports -= lamports
		v.startTransient(TransientActivating, lamports, tx.epoch)
		tx.receipt.Validator = vote
		tx.receipt.Lamports = lamports
		return nil
	})
}

// transientTarget performs the checks shared by increase and decrease.
func (p *Pool) transientTarget(staker, vote types.Pubkey, lamports uint64) (*ValidatorRecord, error) {
	if err := requireSigner(staker, p.Staker, ErrWrongStaker); err != nil {
		return nil, err
	}
	if lamports == 0 || lamports < p.Limits.MinimumTransient {
		return nil, errors.Wrapf(ErrBelowMinimumFloor, "amount %d, minimum %d", lamports, p.Limits.MinimumTransient)
	}
	v, err := p.validator(vote)
	if err != nil {
		return nil, err
	}
	if v.HasTransient() {
		return nil, errors.Wrapf(ErrTransientAlreadyInFlight, "validator %s is %s %d lamports",
			vote, v.TransientDirection, v.TransientStakeLamports)
	}
	return v, nil
}

func (v *ValidatorRecord) startTransient(dir TransientDirection, lamports, epoch uint64) {
	v.TransientSeed++
	v.TransientDirection = dir
	v.TransientStakeLamports = lamports
	v.TransientEpoch = epoch
}
