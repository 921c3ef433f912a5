package layers

import (
	"fmt"
	"math"

	"github.com/tsawler/go-ckconv/tensor"
)

// LayerNorm normalizes over the channel dimension independently at every
// (batch, position) pair, with learnable per-channel scale and shift.
type LayerNorm struct {
	NumFeatures int
	Eps         float64
	Gamma       *tensor.Tensor // [numFeatures]
	Beta        *tensor.Tensor // [numFeatures]
}

func NewLayerNorm(numFeatures int, eps float64, device tensor.DeviceType) (*LayerNorm, error) {
	if numFeatures <= 0 {
		return nil, fmt.Errorf("layernorm features must be positive, got %d", numFeatures)
	}
	gamma, err := tensor.Full([]int{numFeatures}, 1.0, device)
	if err != nil {
		return nil, err
	}
	beta, err := tensor.Zeros([]int{numFeatures}, device)
	if err != nil {
		return nil, err
	}
	return &LayerNorm{NumFeatures: numFeatures, Eps: eps, Gamma: gamma, Beta: beta}, nil
}

func (l *LayerNorm) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkBCL(x, "LayerNorm"); err != nil {
		return nil, err
	}
	batch, channels, length := x.Shape[0], x.Shape[1], x.Shape[2]
	if channels != l.NumFeatures {
		return nil, fmt.Errorf("LayerNorm expects %d channels, got %d", l.NumFeatures, channels)
	}

	out := x.Clone()
	for b := 0; b < batch; b++ {
		for t := 0; t < length; t++ {
			var mean float64
			for c := 0; c < channels; c++ {
				mean += float64(x.Data[(b*channels+c)*length+t])
			}
			mean /= float64(channels)

			var variance float64
			for c := 0; c < channels; c++ {
				d := float64(x.Data[(b*channels+c)*length+t]) - mean
				variance += d * d
			}
			variance /= float64(channels)

			inv := 1.0 / math.Sqrt(variance+l.Eps)
			for c := 0; c < channels; c++ {
				idx := (b*channels+c)*length + t
				norm := (float64(x.Data[idx]) - mean) * inv
				out.Data[idx] = float32(norm)*l.Gamma.Data[c] + l.Beta.Data[c]
			}
		}
	}
	return out, nil
}

// BatchNorm1d normalizes each channel over the batch and length dimensions.
// Batch statistics are used in training mode and folded into running
// statistics with the given momentum; inference mode uses the running
// statistics.
type BatchNorm1d struct {
	NumFeatures int
	Eps         float64
	Momentum    float64
	Training    bool

	Gamma       *tensor.Tensor // [numFeatures]
	Beta        *tensor.Tensor // [numFeatures]
	RunningMean *tensor.Tensor // [numFeatures]
	RunningVar  *tensor.Tensor // [numFeatures]
}

func NewBatchNorm1d(numFeatures int, eps, momentum float64, device tensor.DeviceType) (*BatchNorm1d, error) {
	if numFeatures <= 0 {
		return nil, fmt.Errorf("batchnorm features must be positive, got %d", numFeatures)
	}
	gamma, err := tensor.Full([]int{numFeatures}, 1.0, device)
	if err != nil {
		return nil, err
	}
	beta, err := tensor.Zeros([]int{numFeatures}, device)
	if err != nil {
		return nil, err
	}
	mean, err := tensor.Zeros([]int{numFeatures}, device)
	if err != nil {
		return nil, err
	}
	variance, err := tensor.Full([]int{numFeatures}, 1.0, device)
	if err != nil {
		return nil, err
	}
	return &BatchNorm1d{
		NumFeatures: numFeatures,
		Eps:         eps,
		Momentum:    momentum,
		Training:    true,
		Gamma:       gamma,
		Beta:        beta,
		RunningMean: mean,
		RunningVar:  variance,
	}, nil
}

func (l *BatchNorm1d) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkBCL(x, "BatchNorm1d"); err != nil {
		return nil, err
	}
	batch, channels, length := x.Shape[0], x.Shape[1], x.Shape[2]
	if channels != l.NumFeatures {
		return nil, fmt.Errorf("BatchNorm1d expects %d channels, got %d", l.NumFeatures, channels)
	}

	out := x.Clone()
	n := float64(batch * length)
	if l.Training && n < 2 {
		return nil, fmt.Errorf("BatchNorm1d needs at least 2 values per channel in training mode, got %d", batch*length)
	}

	for c := 0; c < channels; c++ {
		var mean, variance float64
		if l.Training {
			for b := 0; b < batch; b++ {
				for t := 0; t < length; t++ {
					mean += float64(x.Data[(b*channels+c)*length+t])
				}
			}
			mean /= n
			for b := 0; b < batch; b++ {
				for t := 0; t < length; t++ {
					d := float64(x.Data[(b*channels+c)*length+t]) - mean
					variance += d * d
				}
			}
			variance /= n

			l.RunningMean.Data[c] = float32((1-l.Momentum)*float64(l.RunningMean.Data[c]) + l.Momentum*mean)
			l.RunningVar.Data[c] = float32((1-l.Momentum)*float64(l.RunningVar.Data[c]) + l.Momentum*variance*n/(n-1))
		} else {
			mean = float64(l.RunningMean.Data[c])
			variance = float64(l.RunningVar.Data[c])
		}

		inv := 1.0 / math.Sqrt(variance+l.Eps)
		for b := 0; b < batch; b++ {
			for t := 0; t < length; t++ {
				idx := (b*channels+c)*length + t
				norm := (float64(x.Data[idx]) - mean) * inv
				out.Data[idx] = float32(norm)*l.Gamma.Data[c] + l.Beta.Data[c]
			}
		}
	}
	return out, nil
}
