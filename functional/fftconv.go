package functional

import (
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/tsawler/go-ckconv/tensor"
)

// CausalFFTConv computes the same causal convolution as CausalConv through
// pointwise products of real FFTs, zero padded to a power of two covering
// the full linear convolution. Much faster than the spatial path once the
// signal is long.
func CausalFFTConv(x, kernel, bias *tensor.Tensor) (*tensor.Tensor, error) {
	batch, inChannels, length, outChannels, kernelSize, err := checkConvArgs(x, kernel, bias)
	if err != nil {
		return nil, err
	}

	n := nextPowerOfTwo(length + kernelSize - 1)
	fft := fourier.NewFFT(n)
	nCoeff := n/2 + 1

	// FFT every input channel once per batch element, and every kernel
	// row once; the O(out*in) accumulation then happens in the frequency
	// domain.
	xHat := make([][]complex128, batch*inChannels)
	seq := make([]float64, n)
	for b := 0; b < batch; b++ {
		for i := 0; i < inChannels; i++ {
			src := x.Data[(b*inChannels+i)*length : (b*inChannels+i+1)*length]
			fillPadded(seq, src)
			xHat[b*inChannels+i] = fft.Coefficients(make([]complex128, nCoeff), seq)
		}
	}
	kHat := make([][]complex128, outChannels*inChannels)
	for o := 0; o < outChannels; o++ {
		for i := 0; i < inChannels; i++ {
			ker := kernel.Data[(o*inChannels+i)*kernelSize : (o*inChannels+i+1)*kernelSize]
			fillPadded(seq, ker)
			kHat[o*inChannels+i] = fft.Coefficients(make([]complex128, nCoeff), seq)
		}
	}

	out, err := tensor.Zeros([]int{batch, outChannels, length}, x.Device)
	if err != nil {
		return nil, err
	}
	acc := make([]complex128, nCoeff)
	inv := 1.0 / float64(n)
	for b := 0; b < batch; b++ {
		for o := 0; o < outChannels; o++ {
			for c := range acc {
				acc[c] = 0
			}
			for i := 0; i < inChannels; i++ {
				xs := xHat[b*inChannels+i]
				ks := kHat[o*inChannels+i]
				for c := range acc {
					acc[c] += xs[c] * ks[c]
				}
			}
			full := fft.Sequence(seq, acc)
			dst := out.Data[(b*outChannels+o)*length : (b*outChannels+o+1)*length]
			var biasVal float32
			if bias != nil {
				biasVal = bias.Data[o]
			}
			for t := 0; t < length; t++ {
				dst[t] = biasVal + float32(full[t]*inv)
			}
		}
	}
	return out, nil
}

func fillPadded(dst []float64, src []float32) {
	for i := range dst {
		if i < len(src) {
			dst[i] = float64(src[i])
		} else {
			dst[i] = 0
		}
	}
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
