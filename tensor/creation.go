package tensor

import (
	"fmt"
	"math/rand"
)

// New creates a tensor with the given shape and data. Data length must
// match the shape's element count; nil data allocates zeros.
func New(shape []int, device DeviceType, data []float32) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	numElems := calculateNumElements(shape)
	if data == nil {
		data = make([]float32, numElems)
	} else if len(data) != numElems {
		return nil, fmt.Errorf("data length %d does not match tensor size %d", len(data), numElems)
	}

	return &Tensor{
		Shape:    append([]int(nil), shape...),
		Strides:  calculateStrides(shape),
		Device:   device,
		Data:     data,
		NumElems: numElems,
	}, nil
}

func Zeros(shape []int, device DeviceType) (*Tensor, error) {
	return New(shape, device, nil)
}

func Full(shape []int, value float32, device DeviceType) (*Tensor, error) {
	t, err := New(shape, device, nil)
	if err != nil {
		return nil, err
	}
	for i := range t.Data {
		t.Data[i] = value
	}
	return t, nil
}

// Linspace creates a 1-D tensor of n evenly spaced values from start to
// stop inclusive. n must be at least 2 so the step is defined.
func Linspace(start, stop float64, n int, device DeviceType) (*Tensor, error) {
	if n < 2 {
		return nil, fmt.Errorf("linspace requires at least 2 steps, got %d", n)
	}
	data := make([]float32, n)
	step := (stop - start) / float64(n-1)
	for i := range data {
		data[i] = float32(start + float64(i)*step)
	}
	return New([]int{n}, device, data)
}

// FillUniform overwrites the tensor with draws from U(lo, hi). The caller
// supplies the source so initialization stays reproducible under a fixed
// seed.
func FillUniform(t *Tensor, lo, hi float64, rng *rand.Rand) {
	for i := range t.Data {
		t.Data[i] = float32(lo + rng.Float64()*(hi-lo))
	}
}

// FillNormal overwrites the tensor with draws from N(mean, std²).
func FillNormal(t *Tensor, mean, std float64, rng *rand.Rand) {
	for i := range t.Data {
		t.Data[i] = float32(rng.NormFloat64()*std + mean)
	}
}
