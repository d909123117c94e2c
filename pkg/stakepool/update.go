package stakepool

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// UpdateOptions control an epoch update pass.
type UpdateOptions struct {
	// Force re-runs transient merging and total recomputation when the pool
	// was already updated this epoch. Fees and rewards are not re-applied.
	Force bool
}

// Merge describes one settled transient folded back into the ledger.
type Merge struct {
	Validator ValidatorRecord
	Direction TransientDirection
	Lamports  uint64
}

// UpdateResult reports the outcome of Update.
type UpdateResult struct {
	Epoch uint64
	// NotRequired is set when the pool was already current and Force was
	// not requested. Nothing was committed.
	NotRequired bool
	Merges      []Merge
	Rewards     uint64
	FeeTokens   uint64
	AppliedFees []FeeKind
	Receipt     *Receipt
}

// Update reconciles realized stake balances for the current epoch, merges
// settled transients, applies due fee changes and mints the epoch fee. The
// pass is all or nothing: any oracle failure rejects it and leaves the pool
// untouched.
func (e *Engine) Update(ctx context.Context, opts UpdateOptions) (*UpdateResult, error) {
	res, err := e.update(ctx, opts)
	if res == nil || !res.NotRequired {
		e.observe(OpUpdate, err)
	}
	return res, err
}

func (e *Engine) update(ctx context.Context, opts UpdateOptions) (*UpdateResult, error) {
	epoch, err := e.oracle.CurrentEpoch(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "query current epoch")
	}
	snap := e.Pool()
	if epoch < snap.LastUpdateEpoch {
		return nil, errors.Wrapf(ErrOracleInconsistent, "epoch %d precedes last update epoch %d", epoch, snap.LastUpdateEpoch)
	}
	sameEpoch := epoch == snap.LastUpdateEpoch
	if sameEpoch && !opts.Force {
		return &UpdateResult{Epoch: epoch, NotRequired: true}, nil
	}

	stakes, err := e.queryValidators(ctx, snap)
	if err != nil {
		return nil, err
	}

	res := &UpdateResult{Epoch: epoch}
	tx := &txn{pool: snap, epoch: epoch, receipt: Receipt{Operation: OpUpdate, Epoch: epoch}}
	p := tx.pool

	for i := range p.Validators {
		v := &p.Validators[i]
		st := stakes[i]
		if err := checkOracleReport(v, st); err != nil {
			return nil, err
		}
		if !sameEpoch {
			v.ActiveStakeLamports = st.Active.Lamports
		}
		if v.HasTransient() && st.Transient.Settled() {
			m := Merge{Direction: v.TransientDirection, Lamports: st.Transient.Lamports}
			switch v.TransientDirection {
			case TransientDeactivating:
				if p.Reserve.Lamports, err = checkedAdd(p.Reserve.Lamports, m.Lamports); err != nil {
					return nil, err
				}
			case TransientActivating:
				if v.ActiveStakeLamports, err = checkedAdd(v.ActiveStakeLamports, m.Lamports); err != nil {
					return nil, err
				}
			}
			v.clearTransient()
			m.Validator = *v
			res.Merges = append(res.Merges, m)
		} else if v.HasTransient() {
			v.TransientStakeLamports = st.Transient.Lamports
		}
		if !sameEpoch {
			v.LastUpdateEpoch = epoch
		}
	}

	previousTotal := p.TotalStakeLamports
	total := p.Reserve.Lamports
	for i := range p.Validators {
		if total, err = checkedAdd(total, p.Validators[i].StakeLamports()); err != nil {
			return nil, err
		}
	}
	p.TotalStakeLamports = total

	if !sameEpoch {
		res.AppliedFees = p.Fees.activate(epoch)
		if total > previousTotal {
			res.Rewards = total - previousTotal
		}
		feeTokens, err := p.epochFeeTokens(res.Rewards)
		if err != nil {
			return nil, err
		}
		if err := tx.mint(p.ManagerFeeAccount, feeTokens); err != nil {
			return nil, err
		}
		res.FeeTokens = feeTokens
		p.LastEpochPoolTokenSupply = p.TotalPoolTokens
		p.LastEpochTotalLamports = p.TotalStakeLamports
		p.LastUpdateEpoch = epoch
	}

	tx.receipt.Account = p.ManagerFeeAccount
	tx.receipt.Lamports = res.Rewards
	tx.receipt.FeeTokens = res.FeeTokens
	tx.receipt.Note = fmt.Sprintf("merged=%d force=%t", len(res.Merges), sameEpoch)

	receipt, err := e.commit(tx, snap.Version)
	if err != nil {
		return nil, err
	}
	res.Receipt = receipt
	e.log.Info("Epoch update committed", "epoch", epoch, "merged", len(res.Merges),
		"rewards", res.Rewards, "feeTokens", res.FeeTokens, "force", sameEpoch)
	return res, nil
}

// queryValidators fetches every validator's stake concurrently. Results are
// indexed like snap.Validators.
func (e *Engine) queryValidators(ctx context.Context, snap *Pool) ([]ValidatorStake, error) {
	out := make([]ValidatorStake, len(snap.Validators))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.UpdateConcurrency)
	for i := range snap.Validators {
		i := i
		rec := snap.Validators[i]
		g.Go(func() error {
			st, err := e.oracle.ValidatorStake(gctx, snap.Address, rec)
			if err != nil {
				return errors.Wrapf(err, "query stake for validator %s", rec.VoteAccount)
			}
			out[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// checkOracleReport rejects reports that contradict the registry.
func checkOracleReport(v *ValidatorRecord, st ValidatorStake) error {
	tr := st.Transient
	if tr.Activating && tr.Deactivating {
		return errors.Wrapf(ErrOracleInconsistent, "validator %s: transient both activating and deactivating", v.VoteAccount)
	}
	if !v.HasTransient() {
		if tr.Lamports != 0 || !tr.Settled() {
			return errors.Wrapf(ErrOracleInconsistent, "validator %s: transient reported but none recorded", v.VoteAccount)
		}
		return nil
	}
	if tr.Lamports == 0 {
		return errors.Wrapf(ErrOracleInconsistent, "validator %s: recorded transient has no balance", v.VoteAccount)
	}
	if (v.TransientDirection == TransientActivating && tr.Deactivating) ||
		(v.TransientDirection == TransientDeactivating && tr.Activating) {
		return errors.Wrapf(ErrOracleInconsistent, "validator %s: transient direction mismatch", v.VoteAccount)
	}
	return nil
}
