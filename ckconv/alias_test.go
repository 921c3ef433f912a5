package ckconv

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-ckconv/tensor"
)

func randomKernel(t *testing.T, out, in, size int, seed int64) *tensor.Tensor {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	k, err := tensor.Zeros([]int{out, in, size}, tensor.CPU)
	require.NoError(t, err)
	for i := range k.Data {
		k.Data[i] = float32(rng.NormFloat64())
	}
	return k
}

func TestGaussianWindow(t *testing.T) {
	t.Run("Window size follows the ratio", func(t *testing.T) {
		assert.Len(t, GaussianWindow(0.5, 0.5), 5)
		assert.Len(t, GaussianWindow(0.25, 0.5), 9)
		// Minimum of 3 taps even when the ratio implies fewer.
		assert.Len(t, GaussianWindow(1.0, 0.5), 3)
	})

	t.Run("Symmetric and energy preserving", func(t *testing.T) {
		w := GaussianWindow(0.5, 0.5)
		var sum float64
		for i := range w {
			sum += w[i]
			assert.InDelta(t, w[i], w[len(w)-1-i], 1e-12)
		}
		assert.InDelta(t, 1.0, sum, 0.02)
	})

	t.Run("Density peaks at the center", func(t *testing.T) {
		w := GaussianWindow(0.5, 0.5)
		peak := 1 / (0.5 * math.Sqrt(2*math.Pi))
		assert.InDelta(t, peak, w[len(w)/2], 1e-12)
		for i := range w {
			assert.LessOrEqual(t, w[i], w[len(w)/2])
		}
	})
}

func TestAliasCompensatorApply(t *testing.T) {
	comp := NewAliasCompensator(tensor.CPU)

	t.Run("No mismatch is a pass-through", func(t *testing.T) {
		kernel := randomKernel(t, 2, 1, 16, 1)
		out, err := comp.Apply(kernel, 1.0, 0, false)
		require.NoError(t, err)
		assert.Same(t, kernel, out)
	})

	t.Run("Coarser grid only rescales", func(t *testing.T) {
		kernel := randomKernel(t, 1, 1, 8, 2)
		before := kernel.Clone()
		out, err := comp.Apply(kernel, 2.0, 0, false)
		require.NoError(t, err)
		for i := range out.Data {
			assert.InDelta(t, float64(before.Data[i])*2, float64(out.Data[i]), 1e-6)
		}
		// Input untouched.
		assert.Equal(t, before.Data, kernel.Data)
	})

	t.Run("Finer grid smooths the interior and rescales", func(t *testing.T) {
		const srChange = 0.5
		kernel := randomKernel(t, 2, 2, 32, 3)
		before := kernel.Clone()

		out, err := comp.Apply(kernel, srChange, 0.5, true)
		require.NoError(t, err)

		window := GaussianWindow(srChange, 0.5)
		h := len(window) / 2
		size := kernel.Shape[2]
		rows := kernel.Shape[0] * kernel.Shape[1]
		for r := 0; r < rows; r++ {
			// Edge taps: bit-identical up to the rescale.
			for _, tt := range []int{0, h - 1, size - h, size - 1} {
				want := before.Data[r*size+tt] * srChange
				assert.Equal(t, want, out.Data[r*size+tt], "row %d tap %d", r, tt)
			}
			// Interior taps: valid convolution with the window, then rescale.
			for tt := h; tt < size-h; tt++ {
				var acc float64
				for j := 0; j < len(window); j++ {
					acc += window[j] * float64(before.Data[r*size+tt-h+j])
				}
				assert.InDelta(t, acc*srChange, float64(out.Data[r*size+tt]), 1e-5, "row %d tap %d", r, tt)
			}
		}
	})

	t.Run("Kernel shorter than the window", func(t *testing.T) {
		kernel := randomKernel(t, 1, 1, 4, 4)
		// srChange 0.25 implies a 9-tap window, h=4; length 4 <= 8.
		_, err := comp.Apply(kernel, 0.25, 0.5, true)
		assert.ErrorIs(t, err, ErrSmoothingLength)
	})
}
