package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMul(t *testing.T) {
	t.Run("Elementwise product", func(t *testing.T) {
		a, _ := New([]int{3}, CPU, []float32{1, 2, 3})
		b, _ := New([]int{3}, CPU, []float32{2, 2, 2})
		prod, err := Mul(a, b)
		require.NoError(t, err)
		assert.Equal(t, []float32{2, 4, 6}, prod.Data)
	})

	t.Run("Shape mismatch", func(t *testing.T) {
		a, _ := New([]int{2}, CPU, nil)
		b, _ := New([]int{3}, CPU, nil)
		_, err := Mul(a, b)
		assert.Error(t, err)
	})

	t.Run("Device mismatch", func(t *testing.T) {
		a, _ := New([]int{2}, CPU, nil)
		b, _ := New([]int{2}, GPU, nil)
		_, err := Mul(a, b)
		assert.Error(t, err)
	})
}

func TestScale(t *testing.T) {
	a, _ := New([]int{3}, CPU, []float32{1, 2, 3})

	t.Run("Returns scaled copy", func(t *testing.T) {
		s := Scale(a, 0.5)
		assert.Equal(t, []float32{0.5, 1, 1.5}, s.Data)
		assert.Equal(t, []float32{1, 2, 3}, a.Data)
	})

	t.Run("In place", func(t *testing.T) {
		b := a.Clone()
		ScaleInPlace(b, 2)
		assert.Equal(t, []float32{2, 4, 6}, b.Data)
	})
}
