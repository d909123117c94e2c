package stakepool

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// Fee is a rational fee rate. A zero denominator means no fee.
type Fee struct {
	Numerator   uint64 `yaml:"numerator" json:"numerator"`
	Denominator uint64 `yaml:"denominator" json:"denominator"`
}

// Withdrawal fee increase limits. A new withdrawal fee may be at most 3/2 of
// the larger of the current fee and the 0.1% baseline.
var (
	maxWithdrawalFeeIncrease = Fee{Numerator: 3, Denominator: 2}
	withdrawalBaselineFee    = Fee{Numerator: 1, Denominator: 1000}
)

// IsZero reports whether the fee charges nothing.
func (f Fee) IsZero() bool {
	return f.Numerator == 0 || f.Denominator == 0
}

// Apply returns floor(amount * numerator / denominator).
func (f Fee) Apply(amount uint64) (uint64, error) {
	if f.IsZero() {
		return 0, nil
	}
	return mulDiv(amount, f.Numerator, f.Denominator)
}

// Validate checks that the fee is well formed and at most 100%.
func (f Fee) Validate() error {
	if f.Denominator == 0 && f.Numerator != 0 {
		return errors.Wrapf(ErrInvalidFee, "fee %s has zero denominator", f)
	}
	if f.Numerator > f.Denominator {
		return errors.Wrapf(ErrFeeTooHigh, "fee %s", f)
	}
	return nil
}

// greater reports whether f > other, comparing cross products in 128 bits.
func (f Fee) greater(other Fee) bool {
	if f.IsZero() {
		return false
	}
	if other.IsZero() {
		return true
	}
	lhs := new(uint256.Int).Mul(uint256.NewInt(f.Numerator), uint256.NewInt(other.Denominator))
	rhs := new(uint256.Int).Mul(uint256.NewInt(other.Numerator), uint256.NewInt(f.Denominator))
	return lhs.Gt(rhs)
}

// String formats the fee as "numerator/denominator".
func (f Fee) String() string {
	return fmt.Sprintf("%d/%d", f.Numerator, f.Denominator)
}

// checkWithdrawalFeeIncrease enforces the withdrawal fee increase limit.
func checkWithdrawalFeeIncrease(old, next Fee) error {
	base := old
	if withdrawalBaselineFee.greater(base) {
		base = withdrawalBaselineFee
	}
	if next.IsZero() {
		return nil
	}
	// next > base * 3/2  <=>  next.num * base.den * 2 > base.num * 3 * next.den
	lhs := new(uint256.Int).Mul(uint256.NewInt(next.Numerator), uint256.NewInt(base.Denominator))
	lhs.Mul(lhs, uint256.NewInt(maxWithdrawalFeeIncrease.Denominator))
	rhs := new(uint256.Int).Mul(uint256.NewInt(base.Numerator), uint256.NewInt(maxWithdrawalFeeIncrease.Numerator))
	rhs.Mul(rhs, uint256.NewInt(next.Denominator))
	if lhs.Gt(rhs) {
		return errors.Wrapf(ErrFeeIncreaseTooHigh, "new fee %s exceeds 3/2 of %s", next, base)
	}
	return nil
}

// FeeKind names one of the pool's fee rates.
type FeeKind uint8

// Fee kinds.
const (
	FeeEpoch FeeKind = iota
	FeeStakeDeposit
	FeeSolDeposit
	FeeStakeWithdrawal
	FeeSolWithdrawal
	FeeStakeReferral
	FeeSolReferral
)

var feeKindNames = []string{
	"epoch",
	"stake-deposit",
	"sol-deposit",
	"stake-withdrawal",
	"sol-withdrawal",
	"stake-referral",
	"sol-referral",
}

// String returns the kebab-case name of the fee kind.
func (k FeeKind) String() string {
	if int(k) < len(feeKindNames) {
		return feeKindNames[k]
	}
	return fmt.Sprintf("fee-kind(%d)", uint8(k))
}

// ParseFeeKind parses a fee kind name as produced by String.
func ParseFeeKind(s string) (FeeKind, error) {
	for i, name := range feeKindNames {
		if strings.EqualFold(s, name) {
			return FeeKind(i), nil
		}
	}
	return 0, errors.Errorf("unknown fee kind %q", s)
}

// FeeKinds returns every fee kind in schedule order.
func FeeKinds() []FeeKind {
	kinds := make([]FeeKind, len(feeKindNames))
	for i := range kinds {
		kinds[i] = FeeKind(i)
	}
	return kinds
}

// IsWithdrawal reports whether the fee is subject to the increase limit.
func (k FeeKind) IsWithdrawal() bool {
	return k == FeeStakeWithdrawal || k == FeeSolWithdrawal
}

// ScheduledFee holds the fee in force and an optional pending value that
// becomes current at EffectiveEpoch.
type ScheduledFee struct {
	Current        Fee
	Pending        *Fee
	EffectiveEpoch uint64
}

// latest returns the pending value if one is scheduled, else the current one.
func (s *ScheduledFee) latest() Fee {
	if s.Pending != nil {
		return *s.Pending
	}
	return s.Current
}

func (s *ScheduledFee) schedule(f Fee, epoch uint64) {
	pending := f
	s.Pending = &pending
	s.EffectiveEpoch = epoch
}

// activate promotes the pending value once its epoch has arrived.
func (s *ScheduledFee) activate(epoch uint64) bool {
	if s.Pending == nil || epoch < s.EffectiveEpoch {
		return false
	}
	s.Current = *s.Pending
	s.Pending = nil
	s.EffectiveEpoch = 0
	return true
}

// FeeSchedule is the full set of pool fees.
type FeeSchedule struct {
	Epoch           ScheduledFee
	StakeDeposit    ScheduledFee
	SolDeposit      ScheduledFee
	StakeWithdrawal ScheduledFee
	SolWithdrawal   ScheduledFee
	StakeReferral   ScheduledFee
	SolReferral     ScheduledFee
}

// Entry returns the schedule entry for kind, or nil for an unknown kind.
func (s *FeeSchedule) Entry(kind FeeKind) *ScheduledFee {
	switch kind {
	case FeeEpoch:
		return &s.Epoch
	case FeeStakeDeposit:
		return &s.StakeDeposit
	case FeeSolDeposit:
		return &s.SolDeposit
	case FeeStakeWithdrawal:
		return &s.StakeWithdrawal
	case FeeSolWithdrawal:
		return &s.SolWithdrawal
	case FeeStakeReferral:
		return &s.StakeReferral
	case FeeSolReferral:
		return &s.SolReferral
	default:
		return nil
	}
}

// activate promotes every pending fee due at epoch and returns their kinds.
func (s *FeeSchedule) activate(epoch uint64) []FeeKind {
	var applied []FeeKind
	for kind := FeeEpoch; kind <= FeeSolReferral; kind++ {
		if s.Entry(kind).activate(epoch) {
			applied = append(applied, kind)
		}
	}
	return applied
}

func (s FeeSchedule) clone() FeeSchedule {
	out := s
	for kind := FeeEpoch; kind <= FeeSolReferral; kind++ {
		if src := s.Entry(kind).Pending; src != nil {
			p := *src
			out.Entry(kind).Pending = &p
		}
	}
	return out
}

// InitialFees are the fee rates a pool is created with.
type InitialFees struct {
	Epoch           Fee `yaml:"epoch"`
	StakeDeposit    Fee `yaml:"stake_deposit"`
	SolDeposit      Fee `yaml:"sol_deposit"`
	StakeWithdrawal Fee `yaml:"stake_withdrawal"`
	SolWithdrawal   Fee `yaml:"sol_withdrawal"`
	StakeReferral   Fee `yaml:"stake_referral"`
	SolReferral     Fee `yaml:"sol_referral"`
}

func (f InitialFees) schedule() (FeeSchedule, error) {
	fees := []Fee{f.Epoch, f.StakeDeposit, f.SolDeposit, f.StakeWithdrawal, f.SolWithdrawal, f.StakeReferral, f.SolReferral}
	var s FeeSchedule
	for i, fee := range fees {
		if err := fee.Validate(); err != nil {
			return s, errors.WithMessagef(err, "%s fee", FeeKind(i))
		}
		s.Entry(FeeKind(i)).Current = fee
	}
	return s, nil
}
