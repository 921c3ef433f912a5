package ckconv

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/tsawler/go-ckconv/layers"
	"github.com/tsawler/go-ckconv/tensor"
)

// KernelNetConfig configures the network that parameterizes a convolution
// kernel. Immutable after construction.
type KernelNetConfig struct {
	// InputDim is the dimensionality of a relative-position coordinate.
	InputDim int `json:"input_dim"`
	// OutputChannels is the flat kernel width, outChannels*inChannels of
	// the convolution the kernel is generated for.
	OutputChannels int `json:"output_channels"`
	// HiddenChannels is the width of the two hidden stages.
	HiddenChannels int                   `json:"hidden_channels"`
	Activation     layers.ActivationType `json:"activation"`
	Norm           layers.NormType       `json:"norm"`
	// SpatialDim is the spatial dimensionality of the signal; only 1 is
	// supported.
	SpatialDim int  `json:"spatial_dim"`
	Bias       bool `json:"bias"`
	// Omega0 is the frequency scale of the oscillatory activation.
	Omega0 float64 `json:"omega_0"`
	// WeightDropout is the dropout rate applied to the sampled kernel.
	WeightDropout float64 `json:"weight_dropout"`
}

func (c KernelNetConfig) validate() error {
	if c.InputDim <= 0 {
		return fmt.Errorf("kernel net input dim must be positive, got %d", c.InputDim)
	}
	if c.OutputChannels <= 0 {
		return fmt.Errorf("kernel net output channels must be positive, got %d", c.OutputChannels)
	}
	if c.HiddenChannels < 2 {
		return fmt.Errorf("kernel net hidden channels must be at least 2, got %d", c.HiddenChannels)
	}
	if c.SpatialDim != 1 {
		return fmt.Errorf("kernel net supports spatial dim 1 only, got %d", c.SpatialDim)
	}
	if c.Activation == layers.Sine && c.Omega0 == 0 {
		return fmt.Errorf("oscillatory kernel net requires a non-zero omega_0")
	}
	if c.WeightDropout < 0 || c.WeightDropout >= 1 {
		return fmt.Errorf("weight dropout must be in [0, 1), got %g", c.WeightDropout)
	}
	return nil
}

// KernelNet is the 3-stage function approximator mapping relative-position
// coordinates [1, inputDim, L] to kernel values [1, outputChannels, L].
// Forward is stateless given the weights; the weights come from one of two
// activation-dependent initialization schemes and are reproducible under a
// fixed random source.
type KernelNet struct {
	cfg    KernelNetConfig
	device tensor.DeviceType

	// chain is the ordered forward pipeline; dense lists the trainable
	// layers in the same order, built once at construction so the
	// initializers never have to inspect layer types at runtime.
	chain      []layers.Layer
	dense      []*layers.WeightNorm
	norms      []*layers.BatchNorm1d
	layerNorms []*layers.LayerNorm
	dropout    *layers.Dropout
}

func NewKernelNet(cfg KernelNetConfig, device tensor.DeviceType, rng *rand.Rand) (*KernelNet, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	k := &KernelNet{cfg: cfg, device: device}
	isSiren := cfg.Activation == layers.Sine

	addBlock := func(in, out int) error {
		lin, err := layers.NewLinear1d(in, out, cfg.Bias, device)
		if err != nil {
			return err
		}
		wn := layers.NewWeightNorm(lin)
		k.dense = append(k.dense, wn)
		k.chain = append(k.chain, wn)

		if isSiren {
			k.chain = append(k.chain, &layers.Multiply{Factor: float32(cfg.Omega0)})
		} else {
			norm, err := layers.NewNorm(cfg.Norm, out, device)
			if err != nil {
				return err
			}
			switch n := norm.(type) {
			case *layers.BatchNorm1d:
				k.norms = append(k.norms, n)
			case *layers.LayerNorm:
				k.layerNorms = append(k.layerNorms, n)
			}
			k.chain = append(k.chain, norm)
		}

		act, err := layers.NewActivation(cfg.Activation)
		if err != nil {
			return err
		}
		k.chain = append(k.chain, act)
		return nil
	}

	if err := addBlock(cfg.InputDim, cfg.HiddenChannels); err != nil {
		return nil, err
	}
	if err := addBlock(cfg.HiddenChannels, cfg.HiddenChannels); err != nil {
		return nil, err
	}

	final, err := layers.NewLinear1d(cfg.HiddenChannels, cfg.OutputChannels, cfg.Bias, device)
	if err != nil {
		return nil, err
	}
	wn := layers.NewWeightNorm(final)
	k.dense = append(k.dense, wn)
	k.chain = append(k.chain, wn)

	if cfg.WeightDropout != 0 {
		dp, err := layers.NewDropout(cfg.WeightDropout, rng)
		if err != nil {
			return nil, err
		}
		k.dropout = dp
		k.chain = append(k.chain, dp)
	}

	if isSiren {
		k.initializeOscillatory(rng)
	} else {
		k.initializeRectified(rng)
	}
	return k, nil
}

// Forward evaluates the network at the given coordinates.
func (k *KernelNet) Forward(positions *tensor.Tensor) (*tensor.Tensor, error) {
	if len(positions.Shape) != 3 || positions.Shape[1] != k.cfg.InputDim {
		return nil, fmt.Errorf("kernel net expects positions shaped [1, %d, length], got %v",
			k.cfg.InputDim, positions.Shape)
	}
	out := positions
	var err error
	for _, layer := range k.chain {
		if out, err = layer.Forward(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Config returns the immutable configuration.
func (k *KernelNet) Config() KernelNetConfig {
	return k.cfg
}

// TrainableLayers returns the weight-normalized dense layers in forward
// order, for checkpointing and regularization.
func (k *KernelNet) TrainableLayers() []*layers.WeightNorm {
	return k.dense
}

// BatchNorms returns the batch-normalization layers in forward order.
func (k *KernelNet) BatchNorms() []*layers.BatchNorm1d {
	return k.norms
}

// LayerNorms returns the layer-normalization layers in forward order.
func (k *KernelNet) LayerNorms() []*layers.LayerNorm {
	return k.layerNorms
}

// SetTraining switches dropout and batch normalization between training
// and inference behavior.
func (k *KernelNet) SetTraining(training bool) {
	if k.dropout != nil {
		k.dropout.Training = training
	}
	for _, bn := range k.norms {
		bn.Training = training
	}
}

// initializeOscillatory draws the weights the way oscillatory-activation
// networks need for stable training: the first layer uniform in (-1, 1),
// every later layer uniform in ±sqrt(6/fanIn)/omega0, and every bias
// uniform in (-1, 1).
func (k *KernelNet) initializeOscillatory(rng *rand.Rand) {
	for idx, wn := range k.dense {
		l := wn.Linear()
		if idx == 0 {
			tensor.FillUniform(l.Weight, -1, 1, rng)
		} else {
			bound := math.Sqrt(6.0/float64(l.InChannels)) / k.cfg.Omega0
			tensor.FillUniform(l.Weight, -bound, bound, rng)
		}
		if l.Bias != nil {
			tensor.FillUniform(l.Bias, -1, 1, rng)
		}
		wn.Rebind()
	}
}

// initializeRectified draws every weight from N(0, 0.01) and sets the
// biases deterministically so the first two layers spread their rectifier
// breakpoints evenly across [-1, 1], which materially shapes the kernel
// early in training. Later layers get zero bias.
func (k *KernelNet) initializeRectified(rng *rand.Rand) {
	var firstWeight, firstBias []float64

	for idx, wn := range k.dense {
		l := wn.Linear()
		tensor.FillNormal(l.Weight, 0, 0.01, rng)

		if l.Bias != nil {
			switch idx {
			case 0:
				// Place breakpoint j at linspace(-1,1)[j]:
				// relu(w·x + b) bends where x = -b/w.
				n := l.OutChannels
				grid := evenGrid(n)
				firstWeight = make([]float64, n)
				firstBias = make([]float64, n)
				for j := 0; j < n; j++ {
					w := float64(l.Weight.Data[j*l.InChannels])
					b := -grid[j] * w
					l.Bias.Data[j] = float32(b)
					firstWeight[j] = w
					firstBias[j] = b
				}
			case 1:
				// Shift the first layer's breakpoint grid by one
				// step, map it through that layer's affine
				// transform, and cancel it per output unit.
				n := l.InChannels
				grid := evenGrid(n)
				step := grid[1] - grid[0]
				shifted := make([]float64, n)
				for i := 0; i < n; i++ {
					shifted[i] = (grid[i]+step)*firstWeight[i] + firstBias[i]
				}
				for o := 0; o < l.OutChannels; o++ {
					var acc float64
					for i := 0; i < n; i++ {
						acc += float64(l.Weight.Data[o*l.InChannels+i]) * shifted[i]
					}
					l.Bias.Data[o] = float32(-acc)
				}
			default:
				for j := range l.Bias.Data {
					l.Bias.Data[j] = 0
				}
			}
		}
		wn.Rebind()
	}
}

// evenGrid returns n evenly spaced values from -1 to 1 inclusive.
func evenGrid(n int) []float64 {
	grid := make([]float64, n)
	step := 2.0 / float64(n-1)
	for i := range grid {
		grid[i] = -1 + float64(i)*step
	}
	return grid
}
