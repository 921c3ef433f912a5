package ckconv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-ckconv/tensor"
)

func TestSamplingRateRatio(t *testing.T) {
	cases := []struct {
		name           string
		train, current int
		want           float64
	}{
		{"Identity", 100, 100, 1.0},
		{"Downsampled by 2", 100, 50, 2.0},
		{"Upsampled by 2", 100, 200, 0.5},
		{"Non-integer ratio rounds", 100, 260, 1.0 / 3.0},
		{"Near-identity rounds to 1", 100, 110, 1.0},
		{"Half ratio rounds to even, finer", 100, 250, 0.5},
		{"Half ratio rounds to even, coarser", 250, 100, 2.0},
		{"Half ratio rounds up past even", 100, 350, 1.0 / 4.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SamplingRateRatio(tc.train, tc.current)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}

	t.Run("Degenerate lengths", func(t *testing.T) {
		_, err := SamplingRateRatio(1, 100)
		assert.ErrorIs(t, err, ErrDegenerateRatio)
		_, err = SamplingRateRatio(100, 1)
		assert.ErrorIs(t, err, ErrDegenerateRatio)
		_, err = SamplingRateRatio(0, 0)
		assert.ErrorIs(t, err, ErrDegenerateRatio)
	})
}

func TestCalculateMax(t *testing.T) {
	t.Run("Identity keeps the training endpoint", func(t *testing.T) {
		got, err := CalculateMax(100, 100)
		require.NoError(t, err)
		assert.Equal(t, 1.0, got)
	})

	t.Run("Coarser grid drops unaligned taps", func(t *testing.T) {
		// sr=2: (100-1) mod 2 = 1 leftover training step.
		got, err := CalculateMax(100, 50)
		require.NoError(t, err)
		assert.InDelta(t, 1.0-1.0*2.0/99.0, got, 1e-9)
		assert.InDelta(t, 0.97980, got, 1e-5)
	})

	t.Run("Finer grid extends past the training endpoint", func(t *testing.T) {
		// sr=0.5: (200-1) mod 2 = 1 extra half step.
		got, err := CalculateMax(100, 200)
		require.NoError(t, err)
		assert.InDelta(t, 1.0+0.5*2.0/99.0, got, 1e-9)
	})

	t.Run("Degenerate current length", func(t *testing.T) {
		_, err := CalculateMax(100, 1)
		assert.ErrorIs(t, err, ErrDegenerateRatio)
	})
}

func TestPositionGridGet(t *testing.T) {
	grid := NewPositionGrid(tensor.CPU)

	t.Run("First call latches train length and builds the grid", func(t *testing.T) {
		s := NewState()
		pos, err := grid.Get(10, s)
		require.NoError(t, err)
		assert.Equal(t, 10, s.TrainLength)
		assert.True(t, s.Locked())
		assert.Equal(t, []int{1, 1, 10}, pos.Shape)
		assert.InDelta(t, -1.0, float64(pos.Data[0]), 1e-6)
		assert.InDelta(t, 1.0, float64(pos.Data[9]), 1e-6)
		assert.Equal(t, 1.0, s.SRChange())
		_, smooth := s.Sigma()
		assert.False(t, smooth)
	})

	t.Run("Cache returns the identical tensor", func(t *testing.T) {
		s := NewState()
		first, err := grid.Get(10, s)
		require.NoError(t, err)
		second, err := grid.Get(10, s)
		require.NoError(t, err)
		assert.Same(t, first, second)

		// The cache never invalidates on length change: a call with a
		// different length still returns the stale grid. Callers that
		// resample must Invalidate explicitly.
		third, err := grid.Get(20, s)
		require.NoError(t, err)
		assert.Same(t, first, third)
		assert.Equal(t, 10, third.Shape[2])
	})

	t.Run("Invalidate recomputes against the latched train length", func(t *testing.T) {
		s := NewState()
		_, err := grid.Get(10, s)
		require.NoError(t, err)

		s.Invalidate()
		pos, err := grid.Get(20, s)
		require.NoError(t, err)
		assert.Equal(t, 10, s.TrainLength)
		assert.Equal(t, 20, pos.Shape[2])
		assert.Equal(t, 0.5, s.SRChange())
		sigma, smooth := s.Sigma()
		assert.True(t, smooth)
		assert.Equal(t, 0.5, sigma)
	})

	t.Run("Coarser inference grid sets no sigma", func(t *testing.T) {
		s := NewState()
		s.TrainLength = 100
		_, err := grid.Get(50, s)
		require.NoError(t, err)
		assert.Equal(t, 2.0, s.SRChange())
		_, smooth := s.Sigma()
		assert.False(t, smooth)
	})

	t.Run("Degenerate length surfaces", func(t *testing.T) {
		s := NewState()
		_, err := grid.Get(1, s)
		assert.ErrorIs(t, err, ErrDegenerateRatio)
	})

	t.Run("Failed first call does not latch", func(t *testing.T) {
		s := NewState()
		_, err := grid.Get(1, s)
		require.ErrorIs(t, err, ErrDegenerateRatio)
		assert.Equal(t, 0, s.TrainLength)
		assert.False(t, s.Locked())

		// A retry at a usable length latches as if the bad call never
		// happened.
		pos, err := grid.Get(50, s)
		require.NoError(t, err)
		assert.Equal(t, 50, s.TrainLength)
		assert.Equal(t, []int{1, 1, 50}, pos.Shape)
		assert.Equal(t, 1.0, s.SRChange())
	})
}
