package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-stakepool/internal/types"
	"github.com/fortiblox/x1-stakepool/pkg/oracle"
	"github.com/fortiblox/x1-stakepool/pkg/stakepool"
	"github.com/fortiblox/x1-stakepool/pkg/tokens"
)

func key(b byte) types.Pubkey {
	var k types.Pubkey
	for i := range k {
		k[i] = b
	}
	return k
}

func TestRecorderWithEngine(t *testing.T) {
	staker := key(3)
	pool, err := stakepool.NewPool(stakepool.PoolParams{
		Address:           key(1),
		Manager:           key(2),
		Staker:            staker,
		ManagerFeeAccount: key(4),
		Epoch:             5,
		Limits:            stakepool.Limits{MinimumFloor: 10, MaxValidators: 2, MinimumTransient: 1},
	})
	require.NoError(t, err)

	rec := NewRecorder(false)
	engine, err := stakepool.NewEngine(pool, oracle.NewMemory(5), tokens.NewMemory(), stakepool.WithRecorder(rec))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = engine.AddValidator(ctx, staker, key(10))
	require.NoError(t, err)
	_, err = engine.DepositSol(ctx, stakepool.DepositSolRequest{Lamports: 90, Recipient: key(5)})
	require.NoError(t, err)
	_, err = engine.DepositSol(ctx, stakepool.DepositSolRequest{Recipient: key(5)})
	require.ErrorIs(t, err, stakepool.ErrZeroAmount)
	_, err = engine.DecreaseValidatorStake(ctx, staker, key(10), 0)
	require.Error(t, err)

	ok := rec.operations.WithLabelValues("deposit_sol", "ok", "0")
	assert.Equal(t, 1.0, testutil.ToFloat64(ok))
	zero := strconv.FormatUint(uint64(stakepool.CodeZeroAmount), 10)
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.operations.WithLabelValues("deposit_sol", "rejected", zero)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.operations.WithLabelValues("add_validator", "ok", "0")))

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.version))
	assert.Equal(t, 100.0, testutil.ToFloat64(rec.totalStake))
	assert.Equal(t, 90.0, testutil.ToFloat64(rec.reserve))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.validators))
	assert.Equal(t, 5.0, testutil.ToFloat64(rec.epoch))
}

func TestObservePoolTransient(t *testing.T) {
	rec := NewRecorder(false)
	p := &stakepool.Pool{
		TotalStakeLamports: 200,
		TotalPoolTokens:    100,
		Validators: []stakepool.ValidatorRecord{
			{VoteAccount: key(10), ActiveStakeLamports: 50, TransientStakeLamports: 30, TransientDirection: stakepool.TransientActivating},
			{VoteAccount: key(11), ActiveStakeLamports: 70, TransientStakeLamports: 20, TransientDirection: stakepool.TransientDeactivating},
		},
	}
	rec.ObservePool(p)

	assert.Equal(t, 30.0, testutil.ToFloat64(rec.transient.WithLabelValues("activating")))
	assert.Equal(t, 20.0, testutil.ToFloat64(rec.transient.WithLabelValues("deactivating")))
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.rate))
	assert.Equal(t, 70.0, testutil.ToFloat64(rec.active.WithLabelValues(key(11).String())))

	p.Validators = p.Validators[:1]
	rec.ObservePool(p)
	assert.Equal(t, 1, testutil.CollectAndCount(rec.active))
}

func TestHandler(t *testing.T) {
	rec := NewRecorder(true)
	rec.ObserveOperation(stakepool.OpUpdate, 0)

	srv := httptest.NewServer(rec.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `stakepool_operations_total{code="0",op="update",outcome="ok"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
