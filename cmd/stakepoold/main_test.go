package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-stakepool/internal/types"
	"github.com/fortiblox/x1-stakepool/pkg/oracle"
	"github.com/fortiblox/x1-stakepool/pkg/stakepool"
	"github.com/fortiblox/x1-stakepool/pkg/tokens"
)

func TestMain(m *testing.M) {
	log15.Root().SetHandler(log15.DiscardHandler())
	os.Exit(m.Run())
}

func key(b byte) types.Pubkey {
	var k types.Pubkey
	for i := range k {
		k[i] = b
	}
	return k
}

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	body := fmt.Sprintf(`pool:
  address: %s
  manager: %s
  staker: %s
  manager_fee_account: %s
  limits:
    minimum_floor: 1000
    max_validators: 8
    minimum_transient: 1000
  fees:
    epoch: {numerator: 5, denominator: 100}
    sol_deposit: {numerator: 1, denominator: 1000}
  funding:
    sol_withdraw: %s
engine:
  update_concurrency: 2
store:
  journal_retain: 100
oracle:
  endpoints: ["http://127.0.0.1:8899"]
  timeout: 3s
%s`, key(1), key(2), key(3), key(4), key(9), extra)
	path := filepath.Join(t.TempDir(), "stakepool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, key(2), cfg.Pool.Manager)
	assert.Equal(t, uint64(1000), cfg.Pool.Limits.MinimumFloor)
	assert.Equal(t, stakepool.Fee{Numerator: 5, Denominator: 100}, cfg.Pool.Fees.Epoch)
	require.NotNil(t, cfg.Pool.Funding.SolWithdraw)
	assert.Equal(t, key(9), *cfg.Pool.Funding.SolWithdraw)
	assert.Nil(t, cfg.Pool.Funding.SolDeposit)
	assert.Equal(t, 3*time.Second, cfg.Oracle.Timeout)
	assert.Equal(t, "finalized", cfg.Oracle.Commitment, "unset fields keep defaults")
	assert.Equal(t, ":8899", cfg.RPC.Addr)
	assert.Equal(t, uint64(100), cfg.Store.JournalRetain)

	engineCfg, err := cfg.engineConfig()
	require.NoError(t, err)
	assert.Equal(t, 2, engineCfg.UpdateConcurrency)

	pool, err := cfg.Pool.newPool(9)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), pool.LastUpdateEpoch)
	assert.Equal(t, key(9), *pool.Funding.SolWithdraw)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = loadConfig(writeConfig(t, "bogus: true\n"))
	assert.Error(t, err, "unknown fields are rejected")

	cfg, err := loadConfig(writeConfig(t, "rpc:\n  addr: \":9000\"\n"))
	require.NoError(t, err)
	cfg.Engine.UpdateConcurrency = 0
	_, err = cfg.engineConfig()
	assert.Error(t, err)
}

func runApp(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	require.NoError(t, app.Run(append([]string{"stakepoold", "--log-level", "error"}, args...)))
	return out.String()
}

func TestCommands(t *testing.T) {
	config := writeConfig(t, "")
	dataDir := filepath.Join(t.TempDir(), "data")

	runApp(t, "--data-dir", dataDir, "--config", config, "init", "--epoch", "5")

	out := runApp(t, "--data-dir", dataDir, "info")
	assert.Contains(t, out, key(1).String())
	assert.Regexp(t, `Last update epoch:\s+5\n`, out)

	var pool stakepool.Pool
	out = runApp(t, "--data-dir", dataDir, "info", "--json")
	require.NoError(t, json.Unmarshal([]byte(out), &pool))
	assert.Equal(t, key(3), pool.Staker)

	out = runApp(t, "--data-dir", dataDir, "journal")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	var genesis stakepool.Receipt
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &genesis))
	assert.Equal(t, stakepool.OpCreate, genesis.Operation)
	assert.Equal(t, pool.Digest(), genesis.Digest)

	app := newApp()
	app.Writer = &bytes.Buffer{}
	err := app.Run([]string{"stakepoold", "--log-level", "error", "--data-dir", dataDir, "--config", config, "init", "--epoch", "5"})
	assert.Error(t, err, "init refuses an initialized store")

	snapshot := filepath.Join(t.TempDir(), "pool.zst")
	runApp(t, "--data-dir", dataDir, "export", "--out", snapshot)

	restored := filepath.Join(t.TempDir(), "restored")
	runApp(t, "--data-dir", restored, "import", "--in", snapshot)

	var got stakepool.Pool
	out = runApp(t, "--data-dir", restored, "info", "--json")
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, pool.Digest(), got.Digest())
}

// healthFlag records the last health report.
type healthFlag struct {
	healthy bool
	calls   int
}

func (h *healthFlag) SetHealthy(healthy bool) {
	h.healthy = healthy
	h.calls++
}

func TestUpdaterPoll(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, ""))
	require.NoError(t, err)
	pool, err := cfg.Pool.newPool(5)
	require.NoError(t, err)

	ctx := context.Background()
	orc := oracle.NewMemory(5)
	ledger := tokens.NewMemory()
	engine, err := stakepool.NewEngine(pool, orc, ledger)
	require.NoError(t, err)
	vote := key(20)
	_, err = engine.AddValidator(ctx, key(3), vote)
	require.NoError(t, err)
	_, err = engine.DepositSol(ctx, stakepool.DepositSolRequest{
		Lamports:  99000,
		Recipient: key(30),
	})
	require.NoError(t, err)

	health := &healthFlag{}
	u := &updater{engine: engine, epochs: orc, health: health, log: log15.New()}

	res, err := u.poll(ctx)
	require.NoError(t, err)
	assert.Nil(t, res, "no pass while the ledger is current")
	assert.True(t, health.healthy)

	orc.AddRewards(vote, 1000)
	orc.AdvanceEpoch()
	res, err = u.poll(ctx)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, uint64(6), res.Epoch)
	assert.Equal(t, uint64(1000), res.Rewards)
	assert.Positive(t, res.FeeTokens)
	assert.Equal(t, uint64(6), engine.Pool().LastUpdateEpoch)

	orc.FailEpoch(errors.New("cluster unreachable"))
	_, err = u.poll(ctx)
	assert.Error(t, err)
	assert.False(t, health.healthy)

	orc.FailEpoch(nil)
	res, err = u.poll(ctx)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.True(t, health.healthy)
}

func TestUpdaterLoopStops(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, ""))
	require.NoError(t, err)
	pool, err := cfg.Pool.newPool(5)
	require.NoError(t, err)
	orc := oracle.NewMemory(5)
	engine, err := stakepool.NewEngine(pool, orc, tokens.NewMemory())
	require.NoError(t, err)

	health := &healthFlag{}
	u := &updater{engine: engine, epochs: orc, health: health, log: log15.New()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		u.loop(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("updater loop did not stop")
	}
}
