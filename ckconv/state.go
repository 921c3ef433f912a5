package ckconv

import (
	"github.com/tsawler/go-ckconv/tensor"
)

// State carries the per-instance mutable state of a CKConv layer. Only
// TrainLength persists across serialization; everything else is transient
// and rebuilt lazily. State is not safe for concurrent Forward calls on
// the same instance.
type State struct {
	// TrainLength is latched exactly once, from the sequence length of
	// the first forward call. Zero means unset.
	TrainLength int

	relPositions *tensor.Tensor
	srChange     float64
	sigma        float64
	hasSigma     bool
	lastKernel   *tensor.Tensor
}

func NewState() *State {
	return &State{srChange: 1.0}
}

// RelPositions returns the cached coordinate grid, or nil before the
// first forward call.
func (s *State) RelPositions() *tensor.Tensor {
	return s.relPositions
}

// SRChange returns the ratio of train-time to inference-time sampling
// rate. 1.0 means no mismatch.
func (s *State) SRChange() float64 {
	return s.srChange
}

// Sigma returns the smoothing bandwidth and whether smoothing is active.
// It is active iff the inference grid is finer than the training grid.
func (s *State) Sigma() (float64, bool) {
	return s.sigma, s.hasSigma
}

// LastKernel returns the kernel produced by the most recent forward call.
// It is exposed for external regularization and never consumed internally.
func (s *State) LastKernel() *tensor.Tensor {
	return s.lastKernel
}

// Locked reports whether the instance has latched its training length.
func (s *State) Locked() bool {
	return s.TrainLength != 0
}

// Invalidate drops the cached coordinate grid and sampling-rate values so
// the next forward call recomputes them against TrainLength. TrainLength
// itself is never reset.
func (s *State) Invalidate() {
	s.relPositions = nil
	s.srChange = 1.0
	s.sigma = 0
	s.hasSigma = false
}
