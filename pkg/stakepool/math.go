package stakepool

import (
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// mulDiv returns floor(a*b/c) computed with a 256-bit intermediate.
func mulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, errors.Wrap(ErrCalculationFailure, "division by zero")
	}
	x := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	x.Div(x, uint256.NewInt(c))
	if !x.IsUint64() {
		return 0, errors.Wrapf(ErrCalculationFailure, "%d*%d/%d overflows u64", a, b, c)
	}
	return x.Uint64(), nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	s := a + b
	if s < a {
		return 0, errors.Wrapf(ErrCalculationFailure, "%d+%d overflows u64", a, b)
	}
	return s, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, errors.Wrapf(ErrCalculationFailure, "%d-%d underflows", a, b)
	}
	return a - b, nil
}

// PoolTokensForDeposit converts lamports into pool tokens at the current rate.
// An empty pool mints one token per lamport.
func (p *Pool) PoolTokensForDeposit(lamports uint64) (uint64, error) {
	if p.TotalStakeLamports == 0 || p.TotalPoolTokens == 0 {
		return lamports, nil
	}
	return mulDiv(lamports, p.TotalPoolTokens, p.TotalStakeLamports)
}

// LamportsForPoolTokens converts pool tokens into lamports at the current
// rate, rounding down. Amounts worth less than one lamport yield zero.
func (p *Pool) LamportsForPoolTokens(tokens uint64) (uint64, error) {
	if p.TotalPoolTokens == 0 {
		return 0, nil
	}
	num := new(uint256.Int).Mul(uint256.NewInt(tokens), uint256.NewInt(p.TotalStakeLamports))
	den := uint256.NewInt(p.TotalPoolTokens)
	if num.Lt(den) {
		return 0, nil
	}
	num.Div(num, den)
	if !num.IsUint64() {
		return 0, errors.Wrap(ErrCalculationFailure, "lamport amount overflows u64")
	}
	return num.Uint64(), nil
}

// epochFeeTokens returns the pool tokens to mint so that the manager's share
// of the new supply equals the epoch fee applied to reward. It must be called
// after TotalStakeLamports already includes reward.
func (p *Pool) epochFeeTokens(reward uint64) (uint64, error) {
	fee := p.Fees.Epoch.Current
	if reward == 0 || fee.IsZero() {
		return 0, nil
	}
	feeLamports, err := fee.Apply(reward)
	if err != nil {
		return 0, err
	}
	if feeLamports == 0 {
		return 0, nil
	}
	if p.TotalStakeLamports == feeLamports || p.TotalPoolTokens == 0 {
		return reward, nil
	}
	return mulDiv(p.TotalPoolTokens, feeLamports, p.TotalStakeLamports-feeLamports)
}

// ExchangeRate returns lamports per pool token as a float for display and
// metrics. An empty pool reports 1.
func (p *Pool) ExchangeRate() float64 {
	if p.TotalPoolTokens == 0 || p.TotalStakeLamports == 0 {
		return 1
	}
	return float64(p.TotalStakeLamports) / float64(p.TotalPoolTokens)
}
