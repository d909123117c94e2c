package rpc

import (
	"encoding/json"

	"github.com/fortiblox/x1-stakepool/internal/types"
	"github.com/fortiblox/x1-stakepool/pkg/stakepool"
)

// JSON-RPC 2.0 constants.
const (
	JSONRPCVersion = "2.0"
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Context carries the pool version and epoch a response was read at.
type Context struct {
	Version uint64 `json:"version"`
	Epoch   uint64 `json:"epoch"`
}

// ResponseWithContext wraps a value with context.
type ResponseWithContext struct {
	Context Context     `json:"context"`
	Value   interface{} `json:"value"`
}

// VersionInfo represents server version information.
type VersionInfo struct {
	Version       string `json:"version"`
	LayoutVersion uint8  `json:"layoutVersion"`
}

// FeeInfo is one fee schedule entry.
type FeeInfo struct {
	Current        stakepool.Fee  `json:"current"`
	Pending        *stakepool.Fee `json:"pending,omitempty"`
	EffectiveEpoch uint64         `json:"effectiveEpoch,omitempty"`
}

// StakePoolInfo is the result of getStakePool.
type StakePoolInfo struct {
	Address                    string             `json:"address"`
	Manager                    string             `json:"manager"`
	Staker                     string             `json:"staker"`
	ManagerFeeAccount          string             `json:"managerFeeAccount"`
	TotalPoolTokens            uint64             `json:"totalPoolTokens"`
	TotalStakeLamports         uint64             `json:"totalStakeLamports"`
	ReserveLamports            uint64             `json:"reserveLamports"`
	LastUpdateEpoch            uint64             `json:"lastUpdateEpoch"`
	LastEpochPoolTokenSupply   uint64             `json:"lastEpochPoolTokenSupply"`
	LastEpochTotalLamports     uint64             `json:"lastEpochTotalLamports"`
	MinimumFloor               uint64             `json:"minimumFloor"`
	MaxValidators              uint32             `json:"maxValidators"`
	ValidatorCount             int                `json:"validatorCount"`
	PreferredDepositValidator  *string            `json:"preferredDepositValidator"`
	PreferredWithdrawValidator *string            `json:"preferredWithdrawValidator"`
	SolDepositAuthority        *string            `json:"solDepositAuthority"`
	StakeDepositAuthority      *string            `json:"stakeDepositAuthority"`
	SolWithdrawAuthority       *string            `json:"solWithdrawAuthority"`
	Fees                       map[string]FeeInfo `json:"fees"`
	Digest                     string             `json:"digest"`
}

// ValidatorInfo is one registry entry.
type ValidatorInfo struct {
	VoteAccount            string `json:"voteAccount"`
	ActiveStakeLamports    uint64 `json:"activeStakeLamports"`
	TransientStakeLamports uint64 `json:"transientStakeLamports"`
	TransientDirection     string `json:"transientDirection"`
	TransientSeed          uint64 `json:"transientSeed"`
	TransientEpoch         uint64 `json:"transientEpoch,omitempty"`
	LastUpdateEpoch        uint64 `json:"lastUpdateEpoch"`
}

// ExchangeRate is the result of getExchangeRate.
type ExchangeRate struct {
	TotalStakeLamports uint64  `json:"totalStakeLamports"`
	TotalPoolTokens    uint64  `json:"totalPoolTokens"`
	LamportsPerToken   float64 `json:"lamportsPerToken"`
}

// EpochInfo is the result of getEpochInfo.
type EpochInfo struct {
	Epoch           uint64 `json:"epoch"`
	LastUpdateEpoch uint64 `json:"lastUpdateEpoch"`
	UpdateRequired  bool   `json:"updateRequired"`
}

// TokenBalance is the result of getTokenBalance.
type TokenBalance struct {
	Account  string `json:"account"`
	Amount   uint64 `json:"amount"`
	Lamports uint64 `json:"lamports"`
}

func pubkeyToString(p types.Pubkey) string {
	return p.String()
}

func optionalPubkey(p *types.Pubkey) *string {
	if p == nil {
		return nil
	}
	s := p.String()
	return &s
}

func validatorInfo(v stakepool.ValidatorRecord) ValidatorInfo {
	return ValidatorInfo{
		VoteAccount:            pubkeyToString(v.VoteAccount),
		ActiveStakeLamports:    v.ActiveStakeLamports,
		TransientStakeLamports: v.TransientStakeLamports,
		TransientDirection:     v.TransientDirection.String(),
		TransientSeed:          v.TransientSeed,
		TransientEpoch:         v.TransientEpoch,
		LastUpdateEpoch:        v.LastUpdateEpoch,
	}
}

func stakePoolInfo(p *stakepool.Pool) StakePoolInfo {
	fees := make(map[string]FeeInfo)
	for _, kind := range stakepool.FeeKinds() {
		entry := p.Fees.Entry(kind)
		fees[kind.String()] = FeeInfo{
			Current:        entry.Current,
			Pending:        entry.Pending,
			EffectiveEpoch: entry.EffectiveEpoch,
		}
	}
	return StakePoolInfo{
		Address:                    pubkeyToString(p.Address),
		Manager:                    pubkeyToString(p.Manager),
		Staker:                     pubkeyToString(p.Staker),
		ManagerFeeAccount:          pubkeyToString(p.ManagerFeeAccount),
		TotalPoolTokens:            p.TotalPoolTokens,
		TotalStakeLamports:         p.TotalStakeLamports,
		ReserveLamports:            p.Reserve.Lamports,
		LastUpdateEpoch:            p.LastUpdateEpoch,
		LastEpochPoolTokenSupply:   p.LastEpochPoolTokenSupply,
		LastEpochTotalLamports:     p.LastEpochTotalLamports,
		MinimumFloor:               p.Limits.MinimumFloor,
		MaxValidators:              p.Limits.MaxValidators,
		ValidatorCount:             len(p.Validators),
		PreferredDepositValidator:  optionalPubkey(p.PreferredDepositValidator),
		PreferredWithdrawValidator: optionalPubkey(p.PreferredWithdrawValidator),
		SolDepositAuthority:        optionalPubkey(p.Funding.SolDeposit),
		StakeDepositAuthority:      optionalPubkey(p.Funding.StakeDeposit),
		SolWithdrawAuthority:       optionalPubkey(p.Funding.SolWithdraw),
		Fees:                       fees,
		Digest:                     p.Digest().String(),
	}
}
