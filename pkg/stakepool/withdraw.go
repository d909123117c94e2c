package stakepool

import (
	"context"

	"github.com/pkg/errors"

	"github.com/fortiblox/x1-stakepool/internal/types"
)

// WithdrawSolRequest redeems pool tokens for reserve lamports.
type WithdrawSolRequest struct {
	// Owner is the pool token account the tokens are taken from.
	Owner      types.Pubkey
	PoolTokens uint64
	// Destination receives the lamports.
	Destination        types.Pubkey
	MinimumLamportsOut uint64
	Signers            []types.Pubkey
}

// WithdrawStakeRequest redeems pool tokens for a split of pool stake.
// Stake withdrawal can never be restricted by a funding authority.
type WithdrawStakeRequest struct {
	Owner      types.Pubkey
	PoolTokens uint64
	// Recipient becomes the authority of the split stake account.
	Recipient          types.Pubkey
	MinimumLamportsOut uint64
}

// WithdrawSol burns pool tokens and releases their lamport value from the
// reserve. The withdrawal fee is paid in pool tokens to the manager.
func (e *Engine) WithdrawSol(ctx context.Context, req WithdrawSolRequest) (*Receipt, error) {
	return e.execute(ctx, OpWithdrawSol, func(tx *txn) error {
		p := tx.pool
		if err := p.Funding.check(FundingSolWithdraw, req.Signers); err != nil {
			return err
		}
		burn, lamports, err := e.prepareWithdraw(tx, req.Owner, req.PoolTokens, p.Fees.SolWithdrawal.Current)
		if err != nil {
			return err
		}
		if lamports > p.Reserve.Lamports {
			return errors.Wrapf(ErrInsufficientReserve, "requested %d, reserve %d", lamports, p.Reserve.Lamports)
		}
		if lamports < req.MinimumLamportsOut {
			return errors.Wrapf(ErrExceededSlippage, "would release %d lamports, minimum %d", lamports, req.MinimumLamportsOut)
		}
		p.Reserve.Lamports -= lamports
		p.TotalStakeLamports -= lamports
		if err := tx.burn(req.Owner, burn); err != nil {
			return err
		}
		tx.receipt.Account = req.Destination
		return nil
	})
}

// WithdrawStake burns pool tokens and splits their lamport value off pool
// stake. The source is chosen in priority order: the preferred withdraw
// validator, the validator with the most active stake above the floor, the
// largest transient, and finally the reserve, which is used only once every
// validator is at the minimum floor.
func (e *Engine) WithdrawStake(ctx context.Context, req WithdrawStakeRequest) (*Receipt, error) {
	return e.execute(ctx, OpWithdrawStake, func(tx *txn) error {
		p := tx.pool
		burn, lamports, err := e.prepareWithdraw(tx, req.Owner, req.PoolTokens, p.Fees.StakeWithdrawal.Current)
		if err != nil {
			return err
		}
		if lamports < req.MinimumLamportsOut {
			return errors.Wrapf(ErrExceededSlippage, "would release %d lamports, minimum %d", lamports, req.MinimumLamportsOut)
		}
		source, idx := p.selectWithdrawSource(lamports)
		switch source {
		case SourcePreferred, SourceActive:
			v := &p.Validators[idx]
			v.ActiveStakeLamports -= lamports
			tx.receipt.Validator = v.VoteAccount
		case SourceTransient:
			v := &p.Validators[idx]
			v.TransientStakeLamports -= lamports
			if v.TransientStakeLamports == 0 {
				v.clearTransient()
			}
			tx.receipt.Validator = v.VoteAccount
		case SourceReserve:
			p.Reserve.Lamports -= lamports
		default:
			return errors.Wrapf(ErrNoEligibleSource, "%d lamports", lamports)
		}
		p.TotalStakeLamports -= lamports
		if err := tx.burn(req.Owner, burn); err != nil {
			return err
		}
		tx.receipt.Source = source
		tx.receipt.Account = req.Recipient
		return nil
	})
}

// prepareWithdraw validates the token amount, queues the fee transfer and
// returns the tokens to burn and the lamports they redeem.
func (e *Engine) prepareWithdraw(tx *txn, owner types.Pubkey, tokens uint64, fee Fee) (burn, lamports uint64, err error) {
	p := tx.pool
	if tokens == 0 {
		return 0, 0, ErrZeroAmount
	}
	balance, err := e.tokens.BalanceOf(owner)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "balance of %s", owner)
	}
	if balance < tokens {
		return 0, 0, errors.Wrapf(ErrInsufficientPoolTokens, "balance %d, requested %d", balance, tokens)
	}
	var feeTokens uint64
	if owner != p.ManagerFeeAccount {
		if feeTokens, err = fee.Apply(tokens); err != nil {
			return 0, 0, err
		}
	}
	burn = tokens - feeTokens
	if lamports, err = p.LamportsForPoolTokens(burn); err != nil {
		return 0, 0, err
	}
	if lamports == 0 {
		return 0, 0, errors.Wrapf(ErrWithdrawalTooSmall, "%d pool tokens", tokens)
	}
	tx.transfer(owner, p.ManagerFeeAccount, feeTokens)
	tx.receipt.PoolTokens = burn
	tx.receipt.FeeTokens = feeTokens
	tx.receipt.Lamports = lamports
	return burn, lamports, nil
}

// selectWithdrawSource picks the withdrawal tier for lamports and, for the
// validator tiers, the registry index.
func (p *Pool) selectWithdrawSource(lamports uint64) (WithdrawSource, int) {
	if pref := p.PreferredWithdrawValidator; pref != nil {
		if i := p.findValidator(*pref); i >= 0 && p.availableStake(&p.Validators[i]) >= lamports {
			return SourcePreferred, i
		}
	}

	best, bestAvail := -1, uint64(0)
	for i := range p.Validators {
		if avail := p.availableStake(&p.Validators[i]); avail >= lamports && avail > bestAvail {
			best, bestAvail = i, avail
		}
	}
	if best >= 0 {
		return SourceActive, best
	}

	best, bestTransient := -1, uint64(0)
	for i := range p.Validators {
		if tr := p.Validators[i].TransientStakeLamports; tr >= lamports && tr > bestTransient {
			best, bestTransient = i, tr
		}
	}
	if best >= 0 {
		return SourceTransient, best
	}

	if p.allAtFloor() && p.Reserve.Lamports >= lamports {
		return SourceReserve, -1
	}
	return SourceNone, -1
}
