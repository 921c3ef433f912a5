package layers

import (
	"fmt"
	"math"

	"github.com/tsawler/go-ckconv/tensor"
)

// Linear1d is a position-wise dense layer over the channel dimension of a
// [batch, channels, length] tensor, equivalent to a 1x1 convolution. The
// weight tensor is shaped [outChannels, inChannels]; its second dimension
// is the fan-in, which the initialization routines rely on.
type Linear1d struct {
	InChannels  int
	OutChannels int
	Weight      *tensor.Tensor // [outChannels, inChannels]
	Bias        *tensor.Tensor // [outChannels], nil when the layer has no bias
}

func NewLinear1d(inChannels, outChannels int, bias bool, device tensor.DeviceType) (*Linear1d, error) {
	if inChannels <= 0 || outChannels <= 0 {
		return nil, fmt.Errorf("linear1d channels must be positive, got in=%d out=%d", inChannels, outChannels)
	}
	w, err := tensor.Zeros([]int{outChannels, inChannels}, device)
	if err != nil {
		return nil, err
	}
	l := &Linear1d{InChannels: inChannels, OutChannels: outChannels, Weight: w}
	if bias {
		b, err := tensor.Zeros([]int{outChannels}, device)
		if err != nil {
			return nil, err
		}
		l.Bias = b
	}
	return l, nil
}

func (l *Linear1d) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return l.forwardWith(l.Weight, x)
}

func (l *Linear1d) forwardWith(weight *tensor.Tensor, x *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkBCL(x, "Linear1d"); err != nil {
		return nil, err
	}
	batch, channels, length := x.Shape[0], x.Shape[1], x.Shape[2]
	if channels != l.InChannels {
		return nil, fmt.Errorf("Linear1d expects %d input channels, got %d", l.InChannels, channels)
	}

	out, err := tensor.Zeros([]int{batch, l.OutChannels, length}, x.Device)
	if err != nil {
		return nil, err
	}
	for b := 0; b < batch; b++ {
		for o := 0; o < l.OutChannels; o++ {
			var bias float32
			if l.Bias != nil {
				bias = l.Bias.Data[o]
			}
			dst := out.Data[(b*l.OutChannels+o)*length : (b*l.OutChannels+o+1)*length]
			for t := range dst {
				dst[t] = bias
			}
			for i := 0; i < l.InChannels; i++ {
				w := weight.Data[o*l.InChannels+i]
				if w == 0 {
					continue
				}
				src := x.Data[(b*channels+i)*length : (b*channels+i+1)*length]
				for t := range dst {
					dst[t] += w * src[t]
				}
			}
		}
	}
	return out, nil
}

// WeightNorm reparametrizes a Linear1d as w = g · v/‖v‖ per output unit.
// Rebind captures the wrapped layer's current weight as the direction v
// with gains g equal to the row norms, so the effective weight right after
// a Rebind equals the raw weight the initializer wrote.
type WeightNorm struct {
	linear *Linear1d
	v      *tensor.Tensor // [outChannels, inChannels]
	g      *tensor.Tensor // [outChannels]
}

func NewWeightNorm(l *Linear1d) *WeightNorm {
	wn := &WeightNorm{linear: l}
	wn.Rebind()
	return wn
}

// Linear exposes the wrapped layer for initialization and checkpointing.
func (w *WeightNorm) Linear() *Linear1d {
	return w.linear
}

// Gain exposes the per-output-unit magnitudes for checkpointing.
func (w *WeightNorm) Gain() *tensor.Tensor {
	return w.g
}

// Direction exposes the direction tensor for checkpointing.
func (w *WeightNorm) Direction() *tensor.Tensor {
	return w.v
}

// Rebind recomputes the reparametrization from the wrapped layer's weight.
// Call after writing Weight directly.
func (w *WeightNorm) Rebind() {
	l := w.linear
	w.v = l.Weight.Clone()
	g, _ := tensor.Zeros([]int{l.OutChannels}, l.Weight.Device)
	for o := 0; o < l.OutChannels; o++ {
		g.Data[o] = rowNorm(w.v, o, l.InChannels)
	}
	w.g = g
}

// Restore overwrites the reparametrization, e.g. from a checkpoint, and
// refreshes the wrapped layer's effective weight.
func (w *WeightNorm) Restore(v, g *tensor.Tensor) error {
	l := w.linear
	if len(v.Shape) != 2 || v.Shape[0] != l.OutChannels || v.Shape[1] != l.InChannels {
		return fmt.Errorf("weight-norm direction shape %v does not match layer [%d %d]", v.Shape, l.OutChannels, l.InChannels)
	}
	if len(g.Shape) != 1 || g.Shape[0] != l.OutChannels {
		return fmt.Errorf("weight-norm gain shape %v does not match layer [%d]", g.Shape, l.OutChannels)
	}
	w.v = v.Clone()
	w.g = g.Clone()
	eff, err := w.effectiveWeight()
	if err != nil {
		return err
	}
	l.Weight = eff
	return nil
}

func (w *WeightNorm) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	eff, err := w.effectiveWeight()
	if err != nil {
		return nil, err
	}
	return w.linear.forwardWith(eff, x)
}

func (w *WeightNorm) effectiveWeight() (*tensor.Tensor, error) {
	l := w.linear
	eff, err := tensor.Zeros([]int{l.OutChannels, l.InChannels}, w.v.Device)
	if err != nil {
		return nil, err
	}
	for o := 0; o < l.OutChannels; o++ {
		norm := rowNorm(w.v, o, l.InChannels)
		if norm == 0 {
			return nil, fmt.Errorf("weight-norm direction row %d has zero norm", o)
		}
		scale := w.g.Data[o] / norm
		for i := 0; i < l.InChannels; i++ {
			eff.Data[o*l.InChannels+i] = w.v.Data[o*l.InChannels+i] * scale
		}
	}
	return eff, nil
}

func rowNorm(w *tensor.Tensor, row, width int) float32 {
	var sum float64
	for i := 0; i < width; i++ {
		v := float64(w.Data[row*width+i])
		sum += v * v
	}
	return float32(math.Sqrt(sum))
}
