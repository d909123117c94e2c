package stakepool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-stakepool/internal/types"
)

func key(b byte) types.Pubkey {
	var k types.Pubkey
	for i := range k {
		k[i] = b
	}
	return k
}

func samplePool() *Pool {
	gate := key(9)
	pref := key(20)
	pending := Fee{Numerator: 3, Denominator: 1000}
	p := &Pool{
		Address:                  key(1),
		Manager:                  key(2),
		Staker:                   key(3),
		ManagerFeeAccount:        key(4),
		TotalPoolTokens:          900,
		TotalStakeLamports:       1000,
		LastUpdateEpoch:          7,
		LastEpochPoolTokenSupply: 880,
		LastEpochTotalLamports:   970,
		Funding:                  FundingAuthorities{SolWithdraw: &gate},
		Limits:                   Limits{MinimumFloor: 10, MaxValidators: 8, MinimumTransient: 2},
		Reserve:                  Reserve{Lamports: 400},
		Version:                  12,
		Validators: []ValidatorRecord{
			{VoteAccount: key(20), ActiveStakeLamports: 300, LastUpdateEpoch: 7},
			{VoteAccount: key(21), ActiveStakeLamports: 200, TransientStakeLamports: 100,
				TransientDirection: TransientActivating, TransientSeed: 3, TransientEpoch: 7, LastUpdateEpoch: 7},
		},
	}
	p.PreferredWithdrawValidator = &pref
	p.Fees.Epoch.Current = Fee{Numerator: 1, Denominator: 20}
	p.Fees.SolWithdrawal = ScheduledFee{Current: Fee{Numerator: 2, Denominator: 1000}, Pending: &pending, EffectiveEpoch: 8}
	return p
}

func TestPoolSerializeRoundTrip(t *testing.T) {
	p := samplePool()
	require.NoError(t, p.CheckInvariant())

	got, err := DeserializePool(p.Serialize())
	require.NoError(t, err)
	assert.Equal(t, p, got)
	assert.Equal(t, p.Digest(), got.Digest())
}

func TestDeserializeRejectsMalformed(t *testing.T) {
	data := samplePool().Serialize()

	_, err := DeserializePool(data[:len(data)-1])
	assert.ErrorIs(t, err, ErrInvalidData)

	_, err = DeserializePool(append(append([]byte{}, data...), 0))
	assert.ErrorIs(t, err, ErrInvalidData)

	bad := append([]byte{}, data...)
	bad[0] = 99
	_, err = DeserializePool(bad)
	assert.ErrorIs(t, err, ErrUnsupportedLayout)

	_, err = DeserializePool(nil)
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestCloneIsDeep(t *testing.T) {
	p := samplePool()
	c := p.Clone()
	c.Validators[0].ActiveStakeLamports = 1
	c.Fees.SolWithdrawal.Pending.Numerator = 99
	*c.Funding.SolWithdraw = key(30)

	assert.Equal(t, uint64(300), p.Validators[0].ActiveStakeLamports)
	assert.Equal(t, uint64(3), p.Fees.SolWithdrawal.Pending.Numerator)
	assert.Equal(t, key(9), *p.Funding.SolWithdraw)
	assert.NotEqual(t, p.Digest(), c.Digest())
}
