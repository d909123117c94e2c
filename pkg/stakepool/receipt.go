package stakepool

import (
	"fmt"
	"time"

	"github.com/fortiblox/x1-stakepool/internal/types"
)

// Operation identifies a committed state transition.
type Operation uint8

const (
	OpCreate Operation = iota
	OpUpdate
	OpAddValidator
	OpRemoveValidator
	OpIncreaseValidatorStake
	OpDecreaseValidatorStake
	OpDepositSol
	OpDepositStake
	OpWithdrawSol
	OpWithdrawStake
	OpSetFee
	OpSetFundingAuthority
	OpSetPreferredValidator
	OpSetManager
	OpSetStaker
	OpSetManagerFeeAccount
)

var operationNames = []string{
	"create",
	"update",
	"add_validator",
	"remove_validator",
	"increase_validator_stake",
	"decrease_validator_stake",
	"deposit_sol",
	"deposit_stake",
	"withdraw_sol",
	"withdraw_stake",
	"set_fee",
	"set_funding_authority",
	"set_preferred_validator",
	"set_manager",
	"set_staker",
	"set_manager_fee_account",
}

func (o Operation) String() string {
	if int(o) < len(operationNames) {
		return operationNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Operation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Operation) UnmarshalText(text []byte) error {
	for i, name := range operationNames {
		if name == string(text) {
			*o = Operation(i)
			return nil
		}
	}
	return fmt.Errorf("unknown operation %q", text)
}

// Operations lists every operation, in declaration order.
func Operations() []Operation {
	ops := make([]Operation, len(operationNames))
	for i := range ops {
		ops[i] = Operation(i)
	}
	return ops
}

// WithdrawSource is the tier a stake withdrawal was served from.
type WithdrawSource uint8

const (
	SourceNone WithdrawSource = iota
	SourcePreferred
	SourceActive
	SourceTransient
	SourceReserve
)

func (s WithdrawSource) String() string {
	switch s {
	case SourceNone:
		return "none"
	case SourcePreferred:
		return "preferred"
	case SourceActive:
		return "active"
	case SourceTransient:
		return "transient"
	case SourceReserve:
		return "reserve"
	default:
		return fmt.Sprintf("source(%d)", uint8(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s WithdrawSource) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *WithdrawSource) UnmarshalText(text []byte) error {
	for src := SourceNone; src <= SourceReserve; src++ {
		if src.String() == string(text) {
			*s = src
			return nil
		}
	}
	return fmt.Errorf("unknown withdraw source %q", text)
}

// Receipt describes a committed operation. Amount fields are zero when they
// do not apply to the operation.
type Receipt struct {
	Operation Operation `json:"operation"`
	Epoch     uint64    `json:"epoch"`
	Version   uint64    `json:"version"`
	Timestamp int64     `json:"timestamp"`

	// Account is the principal counterparty: the token recipient of a
	// deposit, the token owner of a withdrawal, or the lamport destination
	// of a validator removal.
	Account   types.Pubkey   `json:"account"`
	Validator types.Pubkey   `json:"validator"`
	Source    WithdrawSource `json:"source"`

	Lamports       uint64 `json:"lamports"`
	PoolTokens     uint64 `json:"poolTokens"`
	FeeTokens      uint64 `json:"feeTokens"`
	ReferralTokens uint64 `json:"referralTokens"`
	Note           string `json:"note,omitempty"`

	TotalPoolTokens    uint64     `json:"totalPoolTokens"`
	TotalStakeLamports uint64     `json:"totalStakeLamports"`
	ReserveLamports    uint64     `json:"reserveLamports"`
	Digest             types.Hash `json:"digest"`
}

// seal stamps the post-commit balances and digest.
func (r *Receipt) seal(p *Pool, now time.Time) {
	r.Version = p.Version
	r.Timestamp = now.Unix()
	r.TotalPoolTokens = p.TotalPoolTokens
	r.TotalStakeLamports = p.TotalStakeLamports
	r.ReserveLamports = p.Reserve.Lamports
	r.Digest = p.Digest()
}

// GenesisReceipt returns the journal entry recording pool creation.
func GenesisReceipt(p *Pool, now time.Time) *Receipt {
	r := &Receipt{Operation: OpCreate, Epoch: p.LastUpdateEpoch, Account: p.Manager}
	r.seal(p, now)
	return r
}
