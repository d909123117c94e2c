package rpc

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/fortiblox/x1-stakepool/internal/types"
	"github.com/fortiblox/x1-stakepool/pkg/stakepool"
)

// Version is the server version reported by getVersion.
const Version = "stakepoold-1.0.0"

// Journal page sizes.
const (
	defaultJournalLimit = 20
	maxJournalLimit     = 1000
)

// parseArgs decodes positional params. Missing params decode as no args.
func parseArgs(params json.RawMessage) ([]json.RawMessage, *RPCError) {
	if len(params) == 0 || string(params) == "null" {
		return nil, nil
	}
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, InvalidParamsError("invalid params")
	}
	return args, nil
}

// parsePubkeyArg decodes the base58 pubkey at args[0].
func parsePubkeyArg(args []json.RawMessage, name string) (types.Pubkey, *RPCError) {
	if len(args) < 1 {
		return types.Pubkey{}, InvalidParamsErrorf("missing %s parameter", name)
	}
	var str string
	if err := json.Unmarshal(args[0], &str); err != nil {
		return types.Pubkey{}, InvalidParamsErrorf("invalid %s", name)
	}
	key, err := types.PubkeyFromBase58(str)
	if err != nil {
		return types.Pubkey{}, InvalidParamsErrorf("invalid %s format", name)
	}
	return key, nil
}

func contextOf(p *stakepool.Pool) Context {
	return Context{Version: p.Version, Epoch: p.LastUpdateEpoch}
}

// Node methods

func (s *Server) getHealth(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	if !s.IsHealthy() {
		return nil, ErrNodeUnhealthy
	}
	return "ok", nil
}

func (s *Server) getVersion(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	return VersionInfo{Version: Version, LayoutVersion: stakepool.LayoutVersion}, nil
}

// Pool methods

func (s *Server) getStakePool(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	p := s.backend.Pool.Pool()
	return ResponseWithContext{Context: contextOf(p), Value: stakePoolInfo(p)}, nil
}

func (s *Server) getValidatorList(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	p := s.backend.Pool.Pool()
	list := make([]ValidatorInfo, 0, len(p.Validators))
	for _, v := range p.Validators {
		list = append(list, validatorInfo(v))
	}
	return ResponseWithContext{Context: contextOf(p), Value: list}, nil
}

// getValidator returns one registry entry by vote account.
func (s *Server) getValidator(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	args, rpcErr := parseArgs(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	vote, rpcErr := parsePubkeyArg(args, "vote account")
	if rpcErr != nil {
		return nil, rpcErr
	}
	p := s.backend.Pool.Pool()
	v, ok := p.Validator(vote)
	if !ok {
		return nil, FromError(errors.Wrapf(stakepool.ErrValidatorNotFound, "%s", vote))
	}
	return ResponseWithContext{Context: contextOf(p), Value: validatorInfo(v)}, nil
}

func (s *Server) getExchangeRate(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	p := s.backend.Pool.Pool()
	return ResponseWithContext{
		Context: contextOf(p),
		Value: ExchangeRate{
			TotalStakeLamports: p.TotalStakeLamports,
			TotalPoolTokens:    p.TotalPoolTokens,
			LamportsPerToken:   p.ExchangeRate(),
		},
	}, nil
}

// Epoch methods

// getEpochInfo compares the cluster epoch with the pool's last update.
func (s *Server) getEpochInfo(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	if s.backend.Epochs == nil {
		return nil, OracleError(errors.New("no epoch source"))
	}
	epoch, err := s.backend.Epochs.CurrentEpoch(ctx)
	if err != nil {
		return nil, OracleError(err)
	}
	p := s.backend.Pool.Pool()
	return EpochInfo{
		Epoch:           epoch,
		LastUpdateEpoch: p.LastUpdateEpoch,
		UpdateRequired:  epoch != p.LastUpdateEpoch,
	}, nil
}

// History methods

// getJournal returns recent receipts, newest first. Params: [limit?].
func (s *Server) getJournal(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	if s.backend.Journal == nil {
		return nil, ErrJournalUnavailable
	}
	args, rpcErr := parseArgs(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	limit := defaultJournalLimit
	if len(args) > 0 {
		if err := json.Unmarshal(args[0], &limit); err != nil || limit <= 0 {
			return nil, InvalidParamsError("invalid limit")
		}
	}
	if limit > maxJournalLimit {
		limit = maxJournalLimit
	}
	receipts, err := s.backend.Journal.Journal(limit)
	if err != nil {
		return nil, InternalServerErrorf("failed to read journal: %v", err)
	}
	if receipts == nil {
		receipts = []stakepool.Receipt{}
	}
	return receipts, nil
}

// Token methods

// getTokenBalance returns an account's pool tokens and their lamport value.
func (s *Server) getTokenBalance(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	if s.backend.Balances == nil {
		return nil, NewRPCError(MethodNotFound, "Token balances not available on this node")
	}
	args, rpcErr := parseArgs(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	account, rpcErr := parsePubkeyArg(args, "account")
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, err := s.backend.Balances.BalanceOf(account)
	if err != nil {
		return nil, InternalServerErrorf("failed to read balance: %v", err)
	}
	p := s.backend.Pool.Pool()
	lamports, err := p.LamportsForPoolTokens(amount)
	if err != nil {
		return nil, FromError(err)
	}
	return ResponseWithContext{
		Context: contextOf(p),
		Value:   TokenBalance{Account: account.String(), Amount: amount, Lamports: lamports},
	}, nil
}
