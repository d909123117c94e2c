package main

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/fortiblox/x1-stakepool/internal/types"
	"github.com/fortiblox/x1-stakepool/pkg/dashboard"
	"github.com/fortiblox/x1-stakepool/pkg/oracle"
	"github.com/fortiblox/x1-stakepool/pkg/rpc"
	"github.com/fortiblox/x1-stakepool/pkg/stakepool"
)

// PoolConfig describes the pool created by the init command.
type PoolConfig struct {
	Address           types.Pubkey          `yaml:"address"`
	Manager           types.Pubkey          `yaml:"manager"`
	Staker            types.Pubkey          `yaml:"staker"`
	ManagerFeeAccount types.Pubkey          `yaml:"manager_fee_account"`
	Limits            stakepool.Limits      `yaml:"limits"`
	Fees              stakepool.InitialFees `yaml:"fees"`
	Funding           FundingConfig         `yaml:"funding"`
}

// FundingConfig lists optional funding authorities.
type FundingConfig struct {
	SolDeposit   *types.Pubkey `yaml:"sol_deposit"`
	StakeDeposit *types.Pubkey `yaml:"stake_deposit"`
	SolWithdraw  *types.Pubkey `yaml:"sol_withdraw"`
}

// EngineConfig mirrors stakepool.Config for YAML.
type EngineConfig struct {
	UpdateConcurrency int `yaml:"update_concurrency"`
}

// StoreConfig holds storage settings that outlive init.
type StoreConfig struct {
	NoSync        bool   `yaml:"no_sync"`
	JournalRetain uint64 `yaml:"journal_retain"`
}

// Config is the daemon configuration file.
type Config struct {
	Pool      PoolConfig       `yaml:"pool"`
	Engine    EngineConfig     `yaml:"engine"`
	Store     StoreConfig      `yaml:"store"`
	Oracle    oracle.RPCConfig `yaml:"oracle"`
	RPC       rpc.Config       `yaml:"rpc"`
	Dashboard dashboard.Config `yaml:"dashboard"`
}

// defaultConfig returns a configuration with every optional section filled.
func defaultConfig() Config {
	return Config{
		Engine:    EngineConfig{UpdateConcurrency: stakepool.DefaultConfig().UpdateConcurrency},
		Oracle:    oracle.DefaultRPCConfig(),
		RPC:       rpc.DefaultConfig(),
		Dashboard: dashboard.DefaultConfig(),
	}
}

// loadConfig reads a YAML configuration file over the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// engineConfig returns the validated engine configuration.
func (c Config) engineConfig() (stakepool.Config, error) {
	cfg := stakepool.Config{UpdateConcurrency: c.Engine.UpdateConcurrency}
	return cfg, cfg.Validate()
}

// newPool builds the initial pool current as of epoch.
func (c PoolConfig) newPool(epoch uint64) (*stakepool.Pool, error) {
	pool, err := stakepool.NewPool(stakepool.PoolParams{
		Address:           c.Address,
		Manager:           c.Manager,
		Staker:            c.Staker,
		ManagerFeeAccount: c.ManagerFeeAccount,
		Epoch:             epoch,
		Limits:            c.Limits,
		Fees:              c.Fees,
	})
	if err != nil {
		return nil, err
	}
	pool.Funding = stakepool.FundingAuthorities{
		SolDeposit:   c.Funding.SolDeposit,
		StakeDeposit: c.Funding.StakeDeposit,
		SolWithdraw:  c.Funding.SolWithdraw,
	}
	return pool, nil
}
