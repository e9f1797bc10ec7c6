package commission

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	fee, seller, err := Split(20, 0.15)
	require.NoError(t, err)
	require.Equal(t, 3.0, fee)
	require.Equal(t, 17.0, seller)
}

func TestSplitRoundsToCents(t *testing.T) {
	fee, seller, err := Split(10.01, 0.15)
	require.NoError(t, err)
	require.Equal(t, 1.5, fee)
	require.Equal(t, 8.51, seller)
}

// The two shares always reconstruct the total exactly, whatever the
// rounding did to the commission.
func TestSplitSumsToTotal(t *testing.T) {
	totals := []float64{0, 0.01, 9.99, 10.01, 33.33, 100, 12345.67, 0.03}
	rates := []float64{0, 0.1, 0.15, 0.333, 1}

	for _, total := range totals {
		for _, rate := range rates {
			fee, seller, err := Split(total, rate)
			require.NoError(t, err)
			require.InDelta(t, total, fee+seller, 1e-9, "total %v rate %v", total, rate)
			require.GreaterOrEqual(t, fee, 0.0)
		}
	}
}

func TestSplitRejectsBadInput(t *testing.T) {
	cases := []struct {
		total, rate float64
	}{
		{-1, 0.15},
		{10, -0.1},
		{10, 1.5},
		{math.NaN(), 0.15},
		{10, math.NaN()},
		{math.Inf(1), 0.15},
	}
	for _, tc := range cases {
		_, _, err := Split(tc.total, tc.rate)
		require.ErrorIs(t, err, ErrInvalidInput, "total %v rate %v", tc.total, tc.rate)
	}
}
