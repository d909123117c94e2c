package stakepool

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/fortiblox/x1-stakepool/internal/types"
)

// PreferredKind selects the deposit or withdraw preferred validator.
type PreferredKind uint8

const (
	PreferredDeposit PreferredKind = iota
	PreferredWithdraw
)

func (k PreferredKind) String() string {
	if k == PreferredDeposit {
		return "deposit"
	}
	return "withdraw"
}

// SetFee schedules a new fee rate for kind. It takes effect at the first
// update pass of the next epoch.
func (e *Engine) SetFee(ctx context.Context, manager types.Pubkey, kind FeeKind, fee Fee) (*Receipt, error) {
	return e.execute(ctx, OpSetFee, func(tx *txn) error {
		p := tx.pool
		if err := requireSigner(manager, p.Manager, ErrWrongManager); err != nil {
			return err
		}
		entry := p.Fees.Entry(kind)
		if entry == nil {
			return errors.Wrapf(ErrInvalidFee, "unknown fee kind %d", uint8(kind))
		}
		if err := fee.Validate(); err != nil {
			return err
		}
		if kind.IsWithdrawal() {
			if err := checkWithdrawalFeeIncrease(entry.latest(), fee); err != nil {
				return err
			}
		}
		entry.schedule(fee, tx.epoch+1)
		tx.receipt.Note = fmt.Sprintf("%s fee %s from epoch %d", kind, fee, tx.epoch+1)
		return nil
	})
}

// SetFundingAuthority restricts channel to authority, or lifts the
// restriction when authority is nil.
func (e *Engine) SetFundingAuthority(ctx context.Context, manager types.Pubkey, channel FundingChannel, authority *types.Pubkey) (*Receipt, error) {
	return e.execute(ctx, OpSetFundingAuthority, func(tx *txn) error {
		p := tx.pool
		if err := requireSigner(manager, p.Manager, ErrWrongManager); err != nil {
			return err
		}
		slot, err := p.Funding.slot(channel)
		if err != nil {
			return err
		}
		*slot = clonePubkey(authority)
		if authority != nil {
			tx.receipt.Account = *authority
		}
		tx.receipt.Note = fmt.Sprintf("%s authority set=%t", channel, authority != nil)
		return nil
	})
}

// SetPreferredValidator pins deposits or withdrawals to vote, or clears the
// pin when vote is nil.
func (e *Engine) SetPreferredValidator(ctx context.Context, staker types.Pubkey, kind PreferredKind, vote *types.Pubkey) (*Receipt, error) {
	return e.execute(ctx, OpSetPreferredValidator, func(tx *txn) error {
		p := tx.pool
		if err := requireSigner(staker, p.Staker, ErrWrongStaker); err != nil {
			return err
		}
		if vote != nil {
			if _, err := p.validator(*vote); err != nil {
				return err
			}
			tx.receipt.Validator = *vote
		}
		if kind == PreferredDeposit {
			p.PreferredDepositValidator = clonePubkey(vote)
		} else {
			p.PreferredWithdrawValidator = clonePubkey(vote)
		}
		tx.receipt.Note = fmt.Sprintf("preferred %s set=%t", kind, vote != nil)
		return nil
	})
}

// SetManager hands the manager role to newManager.
func (e *Engine) SetManager(ctx context.Context, manager, newManager types.Pubkey) (*Receipt, error) {
	return e.execute(ctx, OpSetManager, func(tx *txn) error {
		if err := requireSigner(manager, tx.pool.Manager, ErrWrongManager); err != nil {
			return err
		}
		if newManager.IsZero() {
			return errors.New("new manager must not be zero")
		}
		tx.pool.Manager = newManager
		tx.receipt.Account = newManager
		return nil
	})
}

// SetManagerFeeAccount redirects manager fee tokens to account.
func (e *Engine) SetManagerFeeAccount(ctx context.Context, manager, account types.Pubkey) (*Receipt, error) {
	return e.execute(ctx, OpSetManagerFeeAccount, func(tx *txn) error {
		if err := requireSigner(manager, tx.pool.Manager, ErrWrongManager); err != nil {
			return err
		}
		if account.IsZero() {
			return errors.New("manager fee account must not be zero")
		}
		tx.pool.ManagerFeeAccount = account
		tx.receipt.Account = account
		return nil
	})
}

// SetStaker hands the staker role to newStaker. Either the manager or the
// current staker may sign.
func (e *Engine) SetStaker(ctx context.Context, signer, newStaker types.Pubkey) (*Receipt, error) {
	return e.execute(ctx, OpSetStaker, func(tx *txn) error {
		p := tx.pool
		if signer != p.Manager && signer != p.Staker {
			return errors.Wrapf(ErrWrongStaker, "signer %s is neither manager nor staker", signer)
		}
		if newStaker.IsZero() {
			return errors.New("new staker must not be zero")
		}
		p.Staker = newStaker
		tx.receipt.Account = newStaker
		return nil
	})
}
