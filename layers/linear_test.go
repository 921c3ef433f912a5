package layers

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-ckconv/tensor"
)

func TestLinear1d(t *testing.T) {
	t.Run("Position-wise dense", func(t *testing.T) {
		l, err := NewLinear1d(2, 1, true, tensor.CPU)
		require.NoError(t, err)
		copy(l.Weight.Data, []float32{2, -1})
		l.Bias.Data[0] = 0.5

		// Channels: [1, 2, 3] and [10, 20, 30].
		x := bcl(t, []float32{1, 2, 3, 10, 20, 30}, 2)
		out, err := l.Forward(x)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 1, 3}, out.Shape)
		assert.InDeltaSlice(t, []float32{-7.5, -15.5, -23.5}, out.Data, 1e-6)
	})

	t.Run("Channel mismatch", func(t *testing.T) {
		l, err := NewLinear1d(2, 1, false, tensor.CPU)
		require.NoError(t, err)
		x := bcl(t, []float32{1, 2, 3}, 1)
		_, err = l.Forward(x)
		assert.Error(t, err)
	})

	t.Run("Rank check", func(t *testing.T) {
		l, err := NewLinear1d(1, 1, false, tensor.CPU)
		require.NoError(t, err)
		x, _ := tensor.New([]int{2, 2}, tensor.CPU, nil)
		_, err = l.Forward(x)
		assert.Error(t, err)
	})
}

func TestWeightNorm(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	t.Run("Rebind preserves the effective weight", func(t *testing.T) {
		l, err := NewLinear1d(3, 2, true, tensor.CPU)
		require.NoError(t, err)
		for i := range l.Weight.Data {
			l.Weight.Data[i] = float32(rng.NormFloat64())
		}
		l.Bias.Data[0], l.Bias.Data[1] = 0.25, -0.75

		wn := NewWeightNorm(l)
		x := bcl(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, 3)

		plain, err := l.Forward(x)
		require.NoError(t, err)
		normed, err := wn.Forward(x)
		require.NoError(t, err)
		assert.InDeltaSlice(t, plain.Data, normed.Data, 1e-5)
	})

	t.Run("Gain scales output rows", func(t *testing.T) {
		l, err := NewLinear1d(1, 1, false, tensor.CPU)
		require.NoError(t, err)
		l.Weight.Data[0] = 2
		wn := NewWeightNorm(l)
		wn.Gain().Data[0] = 2 // direction norm is 2, so effective weight = 2 * (2/2) = 2

		x := bcl(t, []float32{1, 2}, 1)
		out, err := wn.Forward(x)
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float32{2, 4}, out.Data, 1e-6)

		wn.Gain().Data[0] = 4 // doubling g doubles the effective weight
		out, err = wn.Forward(x)
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float32{4, 8}, out.Data, 1e-6)
	})

	t.Run("Restore rejects wrong shapes", func(t *testing.T) {
		l, err := NewLinear1d(2, 2, false, tensor.CPU)
		require.NoError(t, err)
		wn := NewWeightNorm(l)

		bad, _ := tensor.New([]int{3, 2}, tensor.CPU, nil)
		g, _ := tensor.New([]int{2}, tensor.CPU, nil)
		assert.Error(t, wn.Restore(bad, g))

		v, _ := tensor.New([]int{2, 2}, tensor.CPU, []float32{1, 0, 0, 1})
		badG, _ := tensor.New([]int{3}, tensor.CPU, nil)
		assert.Error(t, wn.Restore(v, badG))
	})

	t.Run("Restore round trip", func(t *testing.T) {
		l, err := NewLinear1d(2, 1, false, tensor.CPU)
		require.NoError(t, err)
		copy(l.Weight.Data, []float32{3, 4})
		wn := NewWeightNorm(l)

		v := wn.Direction().Clone()
		g := wn.Gain().Clone()

		l2, err := NewLinear1d(2, 1, false, tensor.CPU)
		require.NoError(t, err)
		wn2 := NewWeightNorm(l2)
		require.NoError(t, wn2.Restore(v, g))
		assert.InDeltaSlice(t, []float32{3, 4}, l2.Weight.Data, 1e-6)
	})
}
