package stakepool

import (
	"context"

	"github.com/pkg/errors"

	"github.com/fortiblox/x1-stakepool/internal/types"
)

// DepositSolRequest deposits lamports into the reserve.
type DepositSolRequest struct {
	Lamports uint64
	// Recipient receives the minted pool tokens.
	Recipient types.Pubkey
	// Referrer receives the referral share of the deposit fee. Zero means
	// the manager keeps the whole fee.
	Referrer             types.Pubkey
	MinimumPoolTokensOut uint64
	Signers              []types.Pubkey
}

// StakeAccount describes a stake account offered for deposit.
type StakeAccount struct {
	Address           types.Pubkey
	VoteAccount       types.Pubkey
	Lamports          uint64
	RentExemptReserve uint64
	Activating        bool
	Deactivating      bool
}

// DepositStakeRequest deposits a fully active stake account.
type DepositStakeRequest struct {
	Stake                StakeAccount
	Recipient            types.Pubkey
	Referrer             types.Pubkey
	MinimumPoolTokensOut uint64
	Signers              []types.Pubkey
}

// DepositSol converts lamports into pool tokens at the current rate.
func (e *Engine) DepositSol(ctx context.Context, req DepositSolRequest) (*Receipt, error) {
	return e.execute(ctx, OpDepositSol, func(tx *txn) error {
		p := tx.pool
		if err := p.Funding.check(FundingSolDeposit, req.Signers); err != nil {
			return err
		}
		if req.Lamports == 0 {
			return ErrZeroAmount
		}
		newTokens, err := p.PoolTokensForDeposit(req.Lamports)
		if err != nil {
			return err
		}
		if newTokens == 0 {
			return errors.Wrapf(ErrDepositTooSmall, "%d lamports", req.Lamports)
		}
		fee, err := p.Fees.SolDeposit.Current.Apply(newTokens)
		if err != nil {
			return err
		}
		if p.Reserve.Lamports, err = checkedAdd(p.Reserve.Lamports, req.Lamports); err != nil {
			return err
		}
		if p.TotalStakeLamports, err = checkedAdd(p.TotalStakeLamports, req.Lamports); err != nil {
			return err
		}
		tx.receipt.Lamports = req.Lamports
		return tx.distribute(newTokens, fee, p.Fees.SolReferral.Current, req.Recipient, req.Referrer, req.MinimumPoolTokensOut)
	})
}

// DepositStake merges an active stake account into the matching validator's
// stake. The delegated lamports join the validator's active stake and the
// rent-exempt reserve joins the pool reserve.
func (e *Engine) DepositStake(ctx context.Context, req DepositStakeRequest) (*Receipt, error) {
	return e.execute(ctx, OpDepositStake, func(tx *txn) error {
		p := tx.pool
		st := req.Stake
		if err := p.Funding.check(FundingStakeDeposit, req.Signers); err != nil {
			return err
		}
		if st.Lamports == 0 {
			return ErrZeroAmount
		}
		if st.RentExemptReserve > st.Lamports {
			return errors.Wrapf(ErrInvalidStakeAccount, "rent exempt reserve %d exceeds balance %d", st.RentExemptReserve, st.Lamports)
		}
		if st.Activating || st.Deactivating {
			return errors.Wrapf(ErrStakeNotActive, "stake account %s", st.Address)
		}
		if pref := p.PreferredDepositValidator; pref != nil && *pref != st.VoteAccount {
			return errors.Wrapf(ErrPreferredValidatorMismatch, "stake delegated to %s, preferred %s", st.VoteAccount, pref)
		}
		v, err := p.validator(st.VoteAccount)
		if err != nil {
			return err
		}

		delegation := st.Lamports - st.RentExemptReserve
		newTokens, err := p.PoolTokensForDeposit(st.Lamports)
		if err != nil {
			return err
		}
		if newTokens == 0 {
			return errors.Wrapf(ErrDepositTooSmall, "%d lamports", st.Lamports)
		}
		stakeTokens, err := p.PoolTokensForDeposit(delegation)
		if err != nil {
			return err
		}
		if stakeTokens > newTokens {
			stakeTokens = newTokens
		}
		stakeFee, err := p.Fees.StakeDeposit.Current.Apply(stakeTokens)
		if err != nil {
			return err
		}
		solFee, err := p.Fees.SolDeposit.Current.Apply(newTokens - stakeTokens)
		if err != nil {
			return err
		}

		if v.ActiveStakeLamports, err = checkedAdd(v.ActiveStakeLamports, delegation); err != nil {
			return err
		}
		if p.Reserve.Lamports, err = checkedAdd(p.Reserve.Lamports, st.RentExemptReserve); err != nil {
			return err
		}
		if p.TotalStakeLamports, err = checkedAdd(p.TotalStakeLamports, st.Lamports); err != nil {
			return err
		}
		tx.receipt.Validator = st.VoteAccount
		tx.receipt.Lamports = st.Lamports
		return tx.distribute(newTokens, stakeFee+solFee, p.Fees.StakeReferral.Current, req.Recipient, req.Referrer, req.MinimumPoolTokensOut)
	})
}

// distribute mints newTokens split between the depositor, the manager and
// the referrer. The deposited lamports must already be credited.
func (tx *txn) distribute(newTokens, fee uint64, referralFee Fee, recipient, referrer types.Pubkey, minOut uint64) error {
	p := tx.pool
	if fee > newTokens {
		fee = newTokens
	}
	userTokens := newTokens - fee
	if userTokens < minOut {
		return errors.Wrapf(ErrExceededSlippage, "would mint %d pool tokens, minimum %d", userTokens, minOut)
	}
	var referral uint64
	if !referrer.IsZero() {
		var err error
		if referral, err = referralFee.Apply(fee); err != nil {
			return err
		}
	}
	if err := tx.mint(recipient, userTokens); err != nil {
		return err
	}
	if err := tx.mint(p.ManagerFeeAccount, fee-referral); err != nil {
		return err
	}
	if err := tx.mint(referrer, referral); err != nil {
		return err
	}
	tx.receipt.Account = recipient
	tx.receipt.PoolTokens = userTokens
	tx.receipt.FeeTokens = fee - referral
	tx.receipt.ReferralTokens = referral
	return nil
}
