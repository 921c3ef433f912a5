// Package functional provides the causal convolution primitives the
// continuous-kernel layer dispatches to. Both primitives share one
// contract: out[b][o][t] = bias[o] + Σ_i Σ_{k<=min(t,K-1)}
// kernel[o][i][k]·x[b][i][t-k], with output length equal to input length
// (left zero padding). The spatial and spectral implementations agree
// within float32 tolerance.
package functional

import (
	"fmt"

	"github.com/tsawler/go-ckconv/tensor"
)

func checkConvArgs(x, kernel, bias *tensor.Tensor) (batch, inChannels, length, outChannels, kernelSize int, err error) {
	if len(x.Shape) != 3 {
		return 0, 0, 0, 0, 0, fmt.Errorf("signal must be shaped [batch, channels, length], got %v", x.Shape)
	}
	if len(kernel.Shape) != 3 {
		return 0, 0, 0, 0, 0, fmt.Errorf("kernel must be shaped [out, in, size], got %v", kernel.Shape)
	}
	batch, inChannels, length = x.Shape[0], x.Shape[1], x.Shape[2]
	outChannels, kernelSize = kernel.Shape[0], kernel.Shape[2]
	if kernel.Shape[1] != inChannels {
		return 0, 0, 0, 0, 0, fmt.Errorf("kernel expects %d input channels, signal has %d", kernel.Shape[1], inChannels)
	}
	if bias != nil {
		if len(bias.Shape) != 1 || bias.Shape[0] != outChannels {
			return 0, 0, 0, 0, 0, fmt.Errorf("bias must be shaped [%d], got %v", outChannels, bias.Shape)
		}
	}
	return batch, inChannels, length, outChannels, kernelSize, nil
}

// CausalConv computes the causal convolution directly in the spatial
// domain. Preferred for short signals, where the spectral path gets noisy.
func CausalConv(x, kernel, bias *tensor.Tensor) (*tensor.Tensor, error) {
	batch, inChannels, length, outChannels, kernelSize, err := checkConvArgs(x, kernel, bias)
	if err != nil {
		return nil, err
	}

	out, err := tensor.Zeros([]int{batch, outChannels, length}, x.Device)
	if err != nil {
		return nil, err
	}
	for b := 0; b < batch; b++ {
		for o := 0; o < outChannels; o++ {
			dst := out.Data[(b*outChannels+o)*length : (b*outChannels+o+1)*length]
			if bias != nil {
				for t := range dst {
					dst[t] = bias.Data[o]
				}
			}
			for i := 0; i < inChannels; i++ {
				src := x.Data[(b*inChannels+i)*length : (b*inChannels+i+1)*length]
				ker := kernel.Data[(o*inChannels+i)*kernelSize : (o*inChannels+i+1)*kernelSize]
				for t := 0; t < length; t++ {
					kmax := t
					if kernelSize-1 < kmax {
						kmax = kernelSize - 1
					}
					// Accumulate in float64 so the spatial and
					// spectral paths stay within tolerance of
					// each other on long kernels.
					var acc float64
					for k := 0; k <= kmax; k++ {
						acc += float64(ker[k]) * float64(src[t-k])
					}
					dst[t] += float32(acc)
				}
			}
		}
	}
	return out, nil
}
