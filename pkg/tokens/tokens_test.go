package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-stakepool/internal/types"
	"github.com/fortiblox/x1-stakepool/pkg/stakepool"
)

type ledger interface {
	stakepool.TokenLedger
	Supply() uint64
}

var (
	_ stakepool.TokenLedger = (*Memory)(nil)
	_ stakepool.TokenLedger = (*BadgerLedger)(nil)
)

func testLedgers(t *testing.T) map[string]ledger {
	t.Helper()
	b, err := OpenBadger(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return map[string]ledger{"memory": NewMemory(), "badger": b}
}

func TestLedgerOperations(t *testing.T) {
	alice, bob := types.Pubkey{1}, types.Pubkey{2}

	for name, l := range testLedgers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, l.Mint(alice, 100))
			require.NoError(t, l.Transfer(alice, bob, 30))
			require.NoError(t, l.Burn(bob, 10))

			bal, err := l.BalanceOf(alice)
			require.NoError(t, err)
			assert.Equal(t, uint64(70), bal)
			bal, err = l.BalanceOf(bob)
			require.NoError(t, err)
			assert.Equal(t, uint64(20), bal)
			assert.Equal(t, uint64(90), l.Supply())

			assert.ErrorIs(t, l.Burn(bob, 21), ErrInsufficientBalance)
			assert.ErrorIs(t, l.Transfer(bob, alice, 21), ErrInsufficientBalance)
			assert.ErrorIs(t, l.Mint(alice, ^uint64(0)), ErrOverflow)
			assert.Equal(t, uint64(90), l.Supply())

			require.NoError(t, l.Burn(bob, 20))
			bal, err = l.BalanceOf(bob)
			require.NoError(t, err)
			assert.Zero(t, bal)
		})
	}
}

func TestBadgerLedgerPersists(t *testing.T) {
	dir := t.TempDir()
	alice := types.Pubkey{7}

	l, err := OpenBadger(DefaultBadgerConfig(dir))
	require.NoError(t, err)
	require.NoError(t, l.Mint(alice, 500))
	require.NoError(t, l.Mint(types.Pubkey{8}, 5))
	require.NoError(t, l.Close())
	assert.ErrorIs(t, l.Close(), ErrClosed)

	l, err = OpenBadger(DefaultBadgerConfig(dir))
	require.NoError(t, err)
	defer l.Close()

	bal, err := l.BalanceOf(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), bal)
	assert.Equal(t, uint64(505), l.Supply())

	var holders []types.Pubkey
	require.NoError(t, l.IterateBalances(func(account types.Pubkey, balance uint64) error {
		holders = append(holders, account)
		return nil
	}))
	assert.Equal(t, []types.Pubkey{alice, {8}}, holders)
}
