// Package ckconv implements a continuous kernel convolution layer: the
// convolution weights are not a learned filter bank but the output of a
// small network evaluated at relative-position coordinates. One trained
// filter therefore generalizes to other sequence lengths and sampling
// rates, with an anti-aliasing correction when the inference-time rate is
// finer than the training-time one.
package ckconv

import (
	"fmt"
	"math/rand"

	"github.com/tsawler/go-ckconv/functional"
	"github.com/tsawler/go-ckconv/layers"
	"github.com/tsawler/go-ckconv/tensor"
)

// Config configures a CKConv layer.
type Config struct {
	InChannels     int                   `json:"in_channels" yaml:"in_channels"`
	OutChannels    int                   `json:"out_channels" yaml:"out_channels"`
	HiddenChannels int                   `json:"hidden_channels" yaml:"hidden_channels"`
	Activation     layers.ActivationType `json:"activation" yaml:"activation"`
	Norm           layers.NormType       `json:"norm" yaml:"norm"`
	SpatialDim     int                   `json:"spatial_dim" yaml:"spatial_dim"`
	Bias           bool                  `json:"bias" yaml:"bias"`
	Omega0         float64               `json:"omega_0" yaml:"omega_0"`
	WeightDropout  float64               `json:"weight_dropout" yaml:"weight_dropout"`
}

func (c Config) validate() error {
	if c.InChannels <= 0 || c.OutChannels <= 0 {
		return fmt.Errorf("ckconv channels must be positive, got in=%d out=%d", c.InChannels, c.OutChannels)
	}
	return nil
}

// CKConv is a continuous kernel convolution layer. A single instance is
// not safe for concurrent Forward calls; serialize access or keep one
// instance per worker.
type CKConv struct {
	cfg    Config
	device tensor.DeviceType

	kernelNet *KernelNet
	bias      *tensor.Tensor // [outChannels], nil without bias
	grid      *PositionGrid
	alias     *AliasCompensator
	state     *State
}

// New builds a CKConv layer. The random source seeds the kernel network's
// initialization, making construction reproducible.
func New(cfg Config, device tensor.DeviceType, rng *rand.Rand) (*CKConv, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	net, err := NewKernelNet(KernelNetConfig{
		InputDim:       cfg.SpatialDim,
		OutputChannels: cfg.OutChannels * cfg.InChannels,
		HiddenChannels: cfg.HiddenChannels,
		Activation:     cfg.Activation,
		Norm:           cfg.Norm,
		SpatialDim:     cfg.SpatialDim,
		Bias:           cfg.Bias,
		Omega0:         cfg.Omega0,
		WeightDropout:  cfg.WeightDropout,
	}, device, rng)
	if err != nil {
		return nil, err
	}

	c := &CKConv{
		cfg:       cfg,
		device:    device,
		kernelNet: net,
		grid:      NewPositionGrid(device),
		alias:     NewAliasCompensator(device),
		state:     NewState(),
	}
	if cfg.Bias {
		b, err := tensor.Zeros([]int{cfg.OutChannels}, device)
		if err != nil {
			return nil, err
		}
		c.bias = b
	}
	return c, nil
}

// Forward convolves the signal [batch, inChannels, length] with the
// generated kernel and returns [batch, outChannels, length]. The first
// call latches the training length; shorter signals afterwards run through
// the spatial primitive, everything else through the spectral one (the
// spectral path gets noisy on very short inputs).
func (c *CKConv) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 3 {
		return nil, fmt.Errorf("ckconv expects input shaped [batch, channels, length], got %v", x.Shape)
	}
	if x.Shape[1] != c.cfg.InChannels {
		return nil, fmt.Errorf("ckconv expects %d input channels, got %d", c.cfg.InChannels, x.Shape[1])
	}
	length := x.Shape[2]

	positions, err := c.grid.Get(length, c.state)
	if err != nil {
		return nil, err
	}

	raw, err := c.kernelNet.Forward(positions)
	if err != nil {
		return nil, err
	}
	width := raw.Shape[1]
	if width != c.cfg.OutChannels*c.cfg.InChannels {
		return nil, fmt.Errorf("%w: width %d, want %d out x %d in",
			ErrKernelShape, width, c.cfg.OutChannels, c.cfg.InChannels)
	}
	kernel, err := raw.Reshape(c.cfg.OutChannels, c.cfg.InChannels, raw.Shape[2])
	if err != nil {
		return nil, err
	}

	sigma, smooth := c.state.Sigma()
	kernel, err = c.alias.Apply(kernel, c.state.SRChange(), sigma, smooth)
	if err != nil {
		return nil, err
	}
	c.state.lastKernel = kernel

	if length < c.state.TrainLength {
		return functional.CausalConv(x, kernel, c.bias)
	}
	return functional.CausalFFTConv(x, kernel, c.bias)
}

// State exposes the mutable per-instance state.
func (c *CKConv) State() *State {
	return c.state
}

// KernelNet exposes the kernel-generating network.
func (c *CKConv) KernelNet() *KernelNet {
	return c.kernelNet
}

// Bias returns the learnable output bias, or nil.
func (c *CKConv) Bias() *tensor.Tensor {
	return c.bias
}

// LastKernel returns the kernel produced by the most recent forward call,
// for external regularization such as kernel weight decay.
func (c *CKConv) LastKernel() *tensor.Tensor {
	return c.state.LastKernel()
}

// Config returns the layer configuration.
func (c *CKConv) Config() Config {
	return c.cfg
}

// SetTraining switches the kernel network between training and inference
// behavior.
func (c *CKConv) SetTraining(training bool) {
	c.kernelNet.SetTraining(training)
}
