package ckconv

import (
	"fmt"
	"math"

	"github.com/tsawler/go-ckconv/tensor"
)

// AliasCompensator corrects a generated kernel for a train/inference
// sampling-rate mismatch: Gaussian smoothing when the inference grid is
// finer than the training grid, and a magnitude rescale so the discretized
// kernel keeps approximating the same continuous-time integral.
type AliasCompensator struct {
	device tensor.DeviceType
}

func NewAliasCompensator(device tensor.DeviceType) *AliasCompensator {
	return &AliasCompensator{device: device}
}

// Apply returns the compensated kernel. kernel is [outChannels,
// inChannels, size]; smooth selects whether the Gaussian pass runs, with
// sigma as its bandwidth. The input tensor is never modified.
func (a *AliasCompensator) Apply(kernel *tensor.Tensor, srChange, sigma float64, smooth bool) (*tensor.Tensor, error) {
	out := kernel
	if smooth {
		smoothed, err := a.smoothKernel(kernel, srChange, sigma)
		if err != nil {
			return nil, err
		}
		out = smoothed
	}
	if srChange != 1.0 {
		if out == kernel {
			out = kernel.Clone()
		}
		tensor.ScaleInPlace(out, float32(srChange))
	}
	return out, nil
}

// GaussianWindow builds the odd-length smoothing window for the given
// ratio and bandwidth: n = 2·round(1/srChange)+1 taps, at least 3,
// evaluated at integer offsets in [-h, h].
func GaussianWindow(srChange, sigma float64) []float64 {
	n := 2*int(math.Round(1/srChange)) + 1
	if n < 3 {
		n = 3
	}
	h := n / 2

	window := make([]float64, n)
	norm := 1 / (sigma * math.Sqrt(2*math.Pi))
	for i := range window {
		x := float64(i - h)
		window[i] = norm * math.Exp(-x*x/(2*sigma*sigma))
	}
	return window
}

// smoothKernel valid-convolves the Gaussian window against the kernel
// interior and splices the result back, leaving the first and last h taps
// untouched.
func (a *AliasCompensator) smoothKernel(kernel *tensor.Tensor, srChange, sigma float64) (*tensor.Tensor, error) {
	if len(kernel.Shape) != 3 {
		return nil, fmt.Errorf("kernel must be shaped [out, in, size], got %v", kernel.Shape)
	}
	size := kernel.Shape[2]

	window := GaussianWindow(srChange, sigma)
	n := len(window)
	h := n / 2
	if size <= 2*h {
		return nil, fmt.Errorf("%w: kernel length %d, window half-width %d", ErrSmoothingLength, size, h)
	}

	out := kernel.Clone()
	rows := kernel.Shape[0] * kernel.Shape[1]
	valid := size - 2*h
	for r := 0; r < rows; r++ {
		src := kernel.Data[r*size : (r+1)*size]
		dst := out.Data[r*size : (r+1)*size]
		for t := 0; t < valid; t++ {
			var acc float64
			for j := 0; j < n; j++ {
				acc += window[j] * float64(src[t+j])
			}
			dst[h+t] = float32(acc)
		}
	}
	return out, nil
}
