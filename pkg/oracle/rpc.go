package oracle

import (
	"context"
	"encoding/binary"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"

	"github.com/fortiblox/x1-stakepool/internal/types"
	"github.com/fortiblox/x1-stakepool/pkg/stakepool"
)

var transientSeedPrefix = []byte("transient")

// Stake activation states reported by getStakeActivation.
const (
	stateActive       = "active"
	stateInactive     = "inactive"
	stateActivating   = "activating"
	stateDeactivating = "deactivating"
)

// RPCConfig configures the JSON-RPC oracle.
type RPCConfig struct {
	// Endpoints are the RPC URLs to rotate over.
	Endpoints []string `yaml:"endpoints"`

	// Timeout bounds a single request.
	Timeout time.Duration `yaml:"timeout"`

	// Commitment is the commitment level for every query.
	Commitment string `yaml:"commitment"`

	// ProgramID derives the pool's stake account addresses.
	ProgramID types.Pubkey `yaml:"program_id"`

	// CacheSize bounds the address and activation caches.
	CacheSize int `yaml:"cache_size"`

	// HealthCheckPeriod enables periodic epoch checks of every endpoint
	// when positive. Zero rotates over the endpoints without checking them.
	HealthCheckPeriod time.Duration `yaml:"health_check_period"`

	// EpochLagThreshold is how many epochs an endpoint may trail the
	// highest reported epoch before it is excluded.
	EpochLagThreshold uint64 `yaml:"epoch_lag_threshold"`
}

// DefaultRPCConfig returns the default RPC oracle configuration.
func DefaultRPCConfig() RPCConfig {
	return RPCConfig{
		Timeout:    10 * time.Second,
		Commitment: "finalized",
		ProgramID:  types.StakePoolProgramAddr,
		CacheSize:  4096,
	}
}

// Validate checks the configuration.
func (c RPCConfig) Validate() error {
	if len(c.Endpoints) == 0 {
		return ErrNoEndpoints
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.CacheSize <= 0 {
		return errors.New("cache size must be positive")
	}
	switch c.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return errors.Errorf("invalid commitment %q", c.Commitment)
	}
	return nil
}

// RPC is a stakepool.Oracle backed by a JSON-RPC cluster.
type RPC struct {
	cfg         RPCConfig
	client      *client
	epochs      *EpochPool
	addresses   *lru.Cache
	activations *lru.Cache
	log         log15.Logger
}

type addressKey struct {
	pool types.Pubkey
	vote types.Pubkey
	seed uint64
	// transient distinguishes the transient account from the validator
	// account, whose key carries seed zero.
	transient bool
}

type activationKey struct {
	epoch   uint64
	account types.Pubkey
}

// NewRPC creates an RPC oracle over cfg.Endpoints. With a positive
// HealthCheckPeriod the endpoints are held in an EpochPool, checked once
// Start is called.
func NewRPC(cfg RPCConfig) (*RPC, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.HealthCheckPeriod <= 0 {
		return NewRPCWithPool(cfg, NewSimplePool(cfg.Endpoints))
	}
	pool := NewEpochPool(cfg.Endpoints, cfg.EpochLagThreshold, cfg.HealthCheckPeriod, cfg.Timeout)
	o, err := NewRPCWithPool(cfg, pool)
	if err != nil {
		return nil, err
	}
	o.epochs = pool
	return o, nil
}

// Start begins endpoint health checks. It is a no-op without an EpochPool.
func (o *RPC) Start(ctx context.Context) {
	if o.epochs != nil {
		o.epochs.Start(ctx)
	}
}

// Close stops endpoint health checks.
func (o *RPC) Close() {
	if o.epochs != nil {
		o.epochs.Stop()
	}
}

// Endpoints reports endpoint health, or nil without an EpochPool.
func (o *RPC) Endpoints() []EndpointInfo {
	if o.epochs == nil {
		return nil
	}
	return o.epochs.EndpointStatus()
}

// NewRPCWithPool creates an RPC oracle over a caller-supplied endpoint pool.
func NewRPCWithPool(cfg RPCConfig, pool Pool) (*RPC, error) {
	addresses, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "create address cache")
	}
	activations, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "create activation cache")
	}
	return &RPC{
		cfg:         cfg,
		client:      newClient(pool, cfg.Timeout),
		addresses:   addresses,
		activations: activations,
		log:         log15.New("module", "oracle"),
	}, nil
}

// EpochInfo is the cluster's epoch progress.
type EpochInfo struct {
	Epoch        uint64 `json:"epoch"`
	SlotIndex    uint64 `json:"slotIndex"`
	SlotsInEpoch uint64 `json:"slotsInEpoch"`
	AbsoluteSlot uint64 `json:"absoluteSlot"`
}

// EpochInfo fetches the cluster's current epoch progress.
func (o *RPC) EpochInfo(ctx context.Context) (EpochInfo, error) {
	var info EpochInfo
	if err := o.client.call(ctx, "getEpochInfo", []interface{}{o.commitment()}, &info); err != nil {
		return EpochInfo{}, err
	}
	return info, nil
}

// CurrentEpoch implements stakepool.Oracle.
func (o *RPC) CurrentEpoch(ctx context.Context) (uint64, error) {
	info, err := o.EpochInfo(ctx)
	if err != nil {
		return 0, err
	}
	return info.Epoch, nil
}

// ValidatorStake implements stakepool.Oracle.
func (o *RPC) ValidatorStake(ctx context.Context, pool types.Pubkey, rec stakepool.ValidatorRecord) (stakepool.ValidatorStake, error) {
	var st stakepool.ValidatorStake

	validatorAddr, err := o.ValidatorStakeAddress(pool, rec.VoteAccount)
	if err != nil {
		return st, err
	}
	if st.Active.Lamports, err = o.balance(ctx, validatorAddr); err != nil {
		return st, errors.Wrapf(err, "validator stake %s", validatorAddr)
	}

	transientAddr, err := o.TransientStakeAddress(pool, rec.VoteAccount, rec.TransientSeed)
	if err != nil {
		return st, err
	}
	if st.Transient.Lamports, err = o.balance(ctx, transientAddr); err != nil {
		return st, errors.Wrapf(err, "transient stake %s", transientAddr)
	}
	if st.Transient.Lamports == 0 {
		return st, nil
	}
	state, err := o.activation(ctx, transientAddr)
	if err != nil {
		return st, errors.Wrapf(err, "transient activation %s", transientAddr)
	}
	st.Transient.Activating = state == stateActivating
	st.Transient.Deactivating = state == stateDeactivating
	return st, nil
}

// ValidatorStakeAddress derives the pool's stake account for vote.
func (o *RPC) ValidatorStakeAddress(pool, vote types.Pubkey) (types.Pubkey, error) {
	key := addressKey{pool: pool, vote: vote}
	return o.derive(key, [][]byte{vote.Bytes(), pool.Bytes()})
}

// TransientStakeAddress derives the pool's transient stake account for vote
// and seed.
func (o *RPC) TransientStakeAddress(pool, vote types.Pubkey, seed uint64) (types.Pubkey, error) {
	key := addressKey{pool: pool, vote: vote, seed: seed, transient: true}
	var seedBytes [8]byte
	binary.LittleEndian.PutUint64(seedBytes[:], seed)
	return o.derive(key, [][]byte{transientSeedPrefix, vote.Bytes(), pool.Bytes(), seedBytes[:]})
}

func (o *RPC) derive(key addressKey, seeds [][]byte) (types.Pubkey, error) {
	if v, ok := o.addresses.Get(key); ok {
		return v.(types.Pubkey), nil
	}
	addr, _, err := types.FindProgramAddress(seeds, o.cfg.ProgramID)
	if err != nil {
		return types.Pubkey{}, errors.Wrap(err, "derive stake address")
	}
	o.addresses.Add(key, addr)
	return addr, nil
}

type balanceResult struct {
	Value uint64 `json:"value"`
}

func (o *RPC) balance(ctx context.Context, account types.Pubkey) (uint64, error) {
	var res balanceResult
	if err := o.client.call(ctx, "getBalance", []interface{}{account.String(), o.commitment()}, &res); err != nil {
		return 0, err
	}
	return res.Value, nil
}

type activationResult struct {
	State    string `json:"state"`
	Active   uint64 `json:"active"`
	Inactive uint64 `json:"inactive"`
}

// activation returns the account's activation state. Terminal states are
// cached for the rest of the epoch.
func (o *RPC) activation(ctx context.Context, account types.Pubkey) (string, error) {
	epoch, err := o.CurrentEpoch(ctx)
	if err != nil {
		return "", err
	}
	key := activationKey{epoch: epoch, account: account}
	if v, ok := o.activations.Get(key); ok {
		return v.(string), nil
	}

	var res activationResult
	err = o.client.call(ctx, "getStakeActivation", []interface{}{account.String(), o.commitment()}, &res)
	if IsAccountNotFound(err) {
		return stateInactive, nil
	}
	if err != nil {
		return "", err
	}
	switch res.State {
	case stateActive, stateInactive:
		o.activations.Add(key, res.State)
	case stateActivating, stateDeactivating:
	default:
		return "", errors.Wrapf(ErrUnknownState, "%q", res.State)
	}
	o.log.Debug("Stake activation", "account", account, "epoch", epoch, "state", res.State)
	return res.State, nil
}

func (o *RPC) commitment() map[string]interface{} {
	return map[string]interface{}{"commitment": o.cfg.Commitment}
}
