package stakepool

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/zeebo/blake3"

	"github.com/fortiblox/x1-stakepool/internal/types"
)

// TransientDirection is the direction of a validator's in-flight stake move.
type TransientDirection uint8

const (
	TransientNone TransientDirection = iota
	TransientActivating
	TransientDeactivating
)

func (d TransientDirection) String() string {
	switch d {
	case TransientNone:
		return "none"
	case TransientActivating:
		return "activating"
	case TransientDeactivating:
		return "deactivating"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// FundingChannel identifies an operation that may require a co-signer.
// Stake withdrawal has no channel and can never be restricted.
type FundingChannel uint8

const (
	FundingSolDeposit FundingChannel = iota
	FundingStakeDeposit
	FundingSolWithdraw
)

var fundingChannelNames = []string{"sol-deposit", "stake-deposit", "sol-withdraw"}

func (c FundingChannel) String() string {
	if int(c) < len(fundingChannelNames) {
		return fundingChannelNames[c]
	}
	return fmt.Sprintf("channel(%d)", uint8(c))
}

// ParseFundingChannel parses a channel name as produced by String.
func ParseFundingChannel(s string) (FundingChannel, error) {
	for i, name := range fundingChannelNames {
		if strings.EqualFold(s, name) {
			return FundingChannel(i), nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidFundingChannel, "%q", s)
}

// FundingAuthorities holds the optional co-signer per funding channel.
type FundingAuthorities struct {
	SolDeposit   *types.Pubkey
	StakeDeposit *types.Pubkey
	SolWithdraw  *types.Pubkey
}

func (f *FundingAuthorities) slot(c FundingChannel) (**types.Pubkey, error) {
	switch c {
	case FundingSolDeposit:
		return &f.SolDeposit, nil
	case FundingStakeDeposit:
		return &f.StakeDeposit, nil
	case FundingSolWithdraw:
		return &f.SolWithdraw, nil
	default:
		return nil, errors.Wrapf(ErrInvalidFundingChannel, "%s", c)
	}
}

// Authority returns the co-signer for channel, or nil when unrestricted.
func (f FundingAuthorities) Authority(c FundingChannel) *types.Pubkey {
	slot, err := f.slot(c)
	if err != nil {
		return nil
	}
	return *slot
}

// check fails unless the channel is unrestricted or its authority signed.
func (f FundingAuthorities) check(c FundingChannel, signers []types.Pubkey) error {
	auth := f.Authority(c)
	if auth == nil {
		return nil
	}
	for _, s := range signers {
		if s == *auth {
			return nil
		}
	}
	return errors.Wrapf(ErrFundingAuthorityRequired, "%s requires %s", c, auth)
}

// ValidatorRecord tracks the pool's stake with one validator.
type ValidatorRecord struct {
	VoteAccount            types.Pubkey
	ActiveStakeLamports    uint64
	TransientStakeLamports uint64
	TransientDirection     TransientDirection
	// TransientSeed is the address suffix of the most recent transient
	// stake account.
	TransientSeed   uint64
	TransientEpoch  uint64
	LastUpdateEpoch uint64
}

// StakeLamports is active plus transient stake.
func (v ValidatorRecord) StakeLamports() uint64 {
	return v.ActiveStakeLamports + v.TransientStakeLamports
}

// HasTransient reports whether a transient move is in flight.
func (v ValidatorRecord) HasTransient() bool {
	return v.TransientDirection != TransientNone
}

func (v *ValidatorRecord) clearTransient() {
	v.TransientStakeLamports = 0
	v.TransientDirection = TransientNone
	v.TransientEpoch = 0
}

// Reserve holds undelegated pool lamports.
type Reserve struct {
	Lamports uint64
}

// Limits are fixed when the pool is created.
type Limits struct {
	MinimumFloor     uint64 `yaml:"minimum_floor"`
	MaxValidators    uint32 `yaml:"max_validators"`
	MinimumTransient uint64 `yaml:"minimum_transient"`
}

// Validate checks the limits.
func (l Limits) Validate() error {
	if l.MinimumFloor == 0 {
		return errors.New("minimum floor must be positive")
	}
	if l.MaxValidators == 0 {
		return errors.New("max validators must be positive")
	}
	return nil
}

// Pool is the complete ledger state of one stake pool.
type Pool struct {
	Address           types.Pubkey
	Manager           types.Pubkey
	Staker            types.Pubkey
	ManagerFeeAccount types.Pubkey

	TotalPoolTokens    uint64
	TotalStakeLamports uint64
	LastUpdateEpoch    uint64

	LastEpochPoolTokenSupply uint64
	LastEpochTotalLamports   uint64

	Fees    FeeSchedule
	Funding FundingAuthorities

	PreferredDepositValidator  *types.Pubkey
	PreferredWithdrawValidator *types.Pubkey

	Limits     Limits
	Reserve    Reserve
	Validators []ValidatorRecord

	// Version increases by one on every commit.
	Version uint64
}

// PoolParams describe a new pool.
type PoolParams struct {
	Address           types.Pubkey
	Manager           types.Pubkey
	Staker            types.Pubkey
	ManagerFeeAccount types.Pubkey
	Epoch             uint64
	Limits            Limits
	Fees              InitialFees
}

// NewPool creates an empty pool whose ledger is current as of params.Epoch.
func NewPool(params PoolParams) (*Pool, error) {
	if params.Address.IsZero() {
		return nil, errors.New("pool address is required")
	}
	if params.Manager.IsZero() || params.Staker.IsZero() || params.ManagerFeeAccount.IsZero() {
		return nil, errors.New("manager, staker and manager fee account are required")
	}
	if err := params.Limits.Validate(); err != nil {
		return nil, err
	}
	fees, err := params.Fees.schedule()
	if err != nil {
		return nil, err
	}
	return &Pool{
		Address:           params.Address,
		Manager:           params.Manager,
		Staker:            params.Staker,
		ManagerFeeAccount: params.ManagerFeeAccount,
		LastUpdateEpoch:   params.Epoch,
		Fees:              fees,
		Limits:            params.Limits,
		Validators:        []ValidatorRecord{},
	}, nil
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	out := *p
	out.Fees = p.Fees.clone()
	out.Funding = FundingAuthorities{
		SolDeposit:   clonePubkey(p.Funding.SolDeposit),
		StakeDeposit: clonePubkey(p.Funding.StakeDeposit),
		SolWithdraw:  clonePubkey(p.Funding.SolWithdraw),
	}
	out.PreferredDepositValidator = clonePubkey(p.PreferredDepositValidator)
	out.PreferredWithdrawValidator = clonePubkey(p.PreferredWithdrawValidator)
	out.Validators = make([]ValidatorRecord, len(p.Validators))
	copy(out.Validators, p.Validators)
	return &out
}

func clonePubkey(k *types.Pubkey) *types.Pubkey {
	if k == nil {
		return nil
	}
	c := *k
	return &c
}

// CheckInvariant verifies that total stake equals reserve plus all
// validator stake.
func (p *Pool) CheckInvariant() error {
	sum := p.Reserve.Lamports
	for i := range p.Validators {
		var err error
		if sum, err = checkedAdd(sum, p.Validators[i].StakeLamports()); err != nil {
			return err
		}
	}
	if sum != p.TotalStakeLamports {
		return errors.Errorf("lamport invariant violated: total %d, reserve+validators %d", p.TotalStakeLamports, sum)
	}
	return nil
}

// Digest returns the BLAKE3 hash of the serialized pool.
func (p *Pool) Digest() types.Hash {
	return types.Hash(blake3.Sum256(p.Serialize()))
}
