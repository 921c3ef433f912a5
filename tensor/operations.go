package tensor

import (
	"fmt"
)

func checkCompatibility(t1, t2 *Tensor) error {
	if t1.Device != t2.Device {
		return fmt.Errorf("tensors must be on same device: %s vs %s", t1.Device, t2.Device)
	}
	if len(t1.Shape) != len(t2.Shape) {
		return fmt.Errorf("tensor shapes must have same number of dimensions: %v vs %v", t1.Shape, t2.Shape)
	}
	for i := range t1.Shape {
		if t1.Shape[i] != t2.Shape[i] {
			return fmt.Errorf("tensor shapes must match: %v vs %v", t1.Shape, t2.Shape)
		}
	}
	return nil
}

// Mul returns the elementwise product of two tensors of identical shape.
func Mul(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}
	result, err := Zeros(t1.Shape, t1.Device)
	if err != nil {
		return nil, err
	}
	for i := 0; i < t1.NumElems; i++ {
		result.Data[i] = t1.Data[i] * t2.Data[i]
	}
	return result, nil
}

// Scale returns the tensor with every element multiplied by s.
func Scale(t *Tensor, s float32) *Tensor {
	result := t.Clone()
	for i := range result.Data {
		result.Data[i] *= s
	}
	return result
}

// ScaleInPlace multiplies every element by s without allocating.
func ScaleInPlace(t *Tensor, s float32) {
	for i := range t.Data {
		t.Data[i] *= s
	}
}
