package pricing

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPYToBasisPoints(t *testing.T) {
	cases := []struct {
		name string
		apy  float64
		want int64
	}{
		{"whole percent", 5.0, 500},
		{"fractional percent", 5.3, 530},
		{"rounds half away from zero", 12.615, 1262},
		{"sub-bps rounds", 0.456, 46},
		{"zero", 0, 0},
		{"clamps above ceiling", 150.0, 10000},
		{"clamps below zero", -2.5, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := APYToBasisPoints(tc.apy)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAPYToBasisPoints_RejectsNonFinite(t *testing.T) {
	for _, apy := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := APYToBasisPoints(apy)
		require.ErrorIs(t, err, ErrInvalidConversion)
	}
}

func TestUSDToSats(t *testing.T) {
	rate := decimal.NewFromInt(65000)

	cases := []struct {
		name string
		usd  float64
		want int64
	}{
		{"one btc worth", 65000, 100_000_000},
		{"half btc worth", 32500, 50_000_000},
		{"one dollar rounds", 1, 1538}, // 1538.46... sats
		{"zero", 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := USDToSats(tc.usd, rate)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestUSDToSats_LargePoolStaysExact(t *testing.T) {
	// A $1.2B pool at $60k/BTC is 20,000 BTC: the conversion must not lose
	// precision on amounts far beyond float32 territory.
	got, err := USDToSats(1_200_000_000, decimal.NewFromInt(60000))
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000_000_000), got)
}

func TestUSDToSats_RejectsBadInputs(t *testing.T) {
	rate := decimal.NewFromInt(65000)

	_, err := USDToSats(math.NaN(), rate)
	require.ErrorIs(t, err, ErrInvalidConversion)

	_, err = USDToSats(-5, rate)
	require.ErrorIs(t, err, ErrInvalidConversion)

	_, err = USDToSats(100, decimal.Zero)
	require.ErrorIs(t, err, ErrInvalidConversion)

	_, err = USDToSats(100, decimal.NewFromInt(-1))
	require.ErrorIs(t, err, ErrInvalidConversion)
}
