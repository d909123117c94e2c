package stakepool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeeApply(t *testing.T) {
	got, err := Fee{Numerator: 1, Denominator: 100}.Apply(199)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got)

	got, err = Fee{}.Apply(1000)
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestFeeValidate(t *testing.T) {
	assert.NoError(t, Fee{}.Validate())
	assert.NoError(t, Fee{Numerator: 1, Denominator: 1}.Validate())
	assert.ErrorIs(t, Fee{Numerator: 3, Denominator: 2}.Validate(), ErrFeeTooHigh)
	assert.ErrorIs(t, Fee{Numerator: 1}.Validate(), ErrInvalidFee)
}

func TestWithdrawalFeeIncrease(t *testing.T) {
	tests := []struct {
		name    string
		old     Fee
		next    Fee
		wantErr bool
	}{
		{"from zero to baseline limit", Fee{}, Fee{Numerator: 15, Denominator: 10000}, false},
		{"from zero above limit", Fee{}, Fee{Numerator: 16, Denominator: 10000}, true},
		{"half increase", Fee{Numerator: 2, Denominator: 100}, Fee{Numerator: 3, Denominator: 100}, false},
		{"double", Fee{Numerator: 2, Denominator: 100}, Fee{Numerator: 4, Denominator: 100}, true},
		{"decrease", Fee{Numerator: 5, Denominator: 100}, Fee{Numerator: 1, Denominator: 100}, false},
		{"to zero", Fee{Numerator: 5, Denominator: 100}, Fee{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkWithdrawalFeeIncrease(tt.old, tt.next)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrFeeIncreaseTooHigh)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScheduledFeeActivation(t *testing.T) {
	s := ScheduledFee{Current: Fee{Numerator: 1, Denominator: 100}}
	next := Fee{Numerator: 2, Denominator: 100}
	s.schedule(next, 5)
	assert.Equal(t, next, s.latest())

	assert.False(t, s.activate(4))
	assert.Equal(t, uint64(1), s.Current.Numerator)
	assert.True(t, s.activate(5))
	assert.Equal(t, next, s.Current)
	assert.Nil(t, s.Pending)
	assert.False(t, s.activate(6))
}

func TestParseFeeKind(t *testing.T) {
	for kind := FeeEpoch; kind <= FeeSolReferral; kind++ {
		got, err := ParseFeeKind(kind.String())
		require.NoError(t, err)
		assert.Equal(t, kind, got)
	}
	_, err := ParseFeeKind("bogus")
	assert.Error(t, err)
}
