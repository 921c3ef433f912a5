package layers

import (
	"math"

	"github.com/tsawler/go-ckconv/tensor"
)

// ReLULayer implements max(0, x).
type ReLULayer struct{}

func (l *ReLULayer) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out := x.Clone()
	for i, v := range out.Data {
		if v < 0 {
			out.Data[i] = 0
		}
	}
	return out, nil
}

// LeakyReLULayer implements x for x >= 0 and NegativeSlope*x otherwise.
type LeakyReLULayer struct {
	NegativeSlope float32
}

func (l *LeakyReLULayer) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out := x.Clone()
	for i, v := range out.Data {
		if v < 0 {
			out.Data[i] = l.NegativeSlope * v
		}
	}
	return out, nil
}

// SwishLayer implements x·sigmoid(x).
type SwishLayer struct{}

func (l *SwishLayer) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	gate := x.Clone()
	for i, v := range gate.Data {
		gate.Data[i] = sigmoid(v)
	}
	return tensor.Mul(x, gate)
}

// SineLayer implements sin(x), the oscillatory activation. The frequency
// scale is applied by a preceding Multiply layer.
type SineLayer struct{}

func (l *SineLayer) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out := x.Clone()
	for i, v := range out.Data {
		out.Data[i] = float32(math.Sin(float64(v)))
	}
	return out, nil
}

// Multiply scales its input by a constant factor.
type Multiply struct {
	Factor float32
}

func (l *Multiply) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.Scale(x, l.Factor), nil
}

func sigmoid(v float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(-float64(v))))
}
