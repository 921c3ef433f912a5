// Package layers implements the position-wise layers a kernel-generating
// network is assembled from: weight-normalized dense layers, channel
// normalization, activations and dropout. All layers operate on tensors
// shaped [batch, channels, length].
package layers

import (
	"fmt"
	"math/rand"

	"github.com/tsawler/go-ckconv/tensor"
)

// Layer is the uniform forward contract shared by every layer.
type Layer interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
}

// ActivationType selects the nonlinearity of a kernel network.
type ActivationType int

const (
	ReLU ActivationType = iota
	LeakyReLU
	Swish
	Sine
)

func (a ActivationType) String() string {
	switch a {
	case ReLU:
		return "ReLU"
	case LeakyReLU:
		return "LeakyReLU"
	case Swish:
		return "Swish"
	case Sine:
		return "Sine"
	default:
		return "Unknown"
	}
}

// NormType selects the normalization applied between dense layers.
type NormType int

const (
	NormNone NormType = iota
	NormBatch
	NormLayer
)

func (n NormType) String() string {
	switch n {
	case NormNone:
		return "None"
	case NormBatch:
		return "BatchNorm"
	case NormLayer:
		return "LayerNorm"
	default:
		return "Unknown"
	}
}

// ParseActivation maps a configuration string to an ActivationType.
func ParseActivation(s string) (ActivationType, error) {
	switch s {
	case "ReLU":
		return ReLU, nil
	case "LeakyReLU":
		return LeakyReLU, nil
	case "Swish":
		return Swish, nil
	case "Sine":
		return Sine, nil
	default:
		return 0, fmt.Errorf("unknown activation %q", s)
	}
}

// ParseNorm maps a configuration string to a NormType. The empty string
// means no normalization.
func ParseNorm(s string) (NormType, error) {
	switch s {
	case "", "None":
		return NormNone, nil
	case "BatchNorm":
		return NormBatch, nil
	case "LayerNorm":
		return NormLayer, nil
	default:
		return 0, fmt.Errorf("unknown normalization %q", s)
	}
}

// NewActivation maps an ActivationType to its implementation.
func NewActivation(kind ActivationType) (Layer, error) {
	switch kind {
	case ReLU:
		return &ReLULayer{}, nil
	case LeakyReLU:
		return &LeakyReLULayer{NegativeSlope: 0.01}, nil
	case Swish:
		return &SwishLayer{}, nil
	case Sine:
		return &SineLayer{}, nil
	default:
		return nil, fmt.Errorf("unsupported activation type: %s", kind)
	}
}

// NewNorm maps a NormType to its implementation for the given channel count.
func NewNorm(kind NormType, numFeatures int, device tensor.DeviceType) (Layer, error) {
	switch kind {
	case NormNone:
		return &Identity{}, nil
	case NormBatch:
		return NewBatchNorm1d(numFeatures, 1e-5, 0.1, device)
	case NormLayer:
		return NewLayerNorm(numFeatures, 1e-5, device)
	default:
		return nil, fmt.Errorf("unsupported norm type: %s", kind)
	}
}

// Identity passes its input through unchanged.
type Identity struct{}

func (l *Identity) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return x, nil
}

// Dropout zeroes elements with probability Rate during training and
// rescales survivors by 1/(1-Rate). In inference mode it is the identity.
type Dropout struct {
	Rate     float64
	Training bool
	rng      *rand.Rand
}

func NewDropout(rate float64, rng *rand.Rand) (*Dropout, error) {
	if rate < 0 || rate >= 1 {
		return nil, fmt.Errorf("dropout rate must be in [0, 1), got %g", rate)
	}
	return &Dropout{Rate: rate, Training: true, rng: rng}, nil
}

func (l *Dropout) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if !l.Training || l.Rate == 0 {
		return x, nil
	}
	out := x.Clone()
	keep := float32(1.0 / (1.0 - l.Rate))
	for i := range out.Data {
		if l.rng.Float64() < l.Rate {
			out.Data[i] = 0
		} else {
			out.Data[i] *= keep
		}
	}
	return out, nil
}

func checkBCL(x *tensor.Tensor, op string) error {
	if len(x.Shape) != 3 {
		return fmt.Errorf("%s expects input shaped [batch, channels, length], got %v", op, x.Shape)
	}
	return nil
}
