package ckconv

import (
	"fmt"
	"math"

	"github.com/tsawler/go-ckconv/tensor"
)

// PositionGrid builds and caches the relative-position coordinates fed to
// the kernel network, and derives the train/inference sampling-rate ratio.
type PositionGrid struct {
	device tensor.DeviceType
}

func NewPositionGrid(device tensor.DeviceType) *PositionGrid {
	return &PositionGrid{device: device}
}

// Get returns the coordinate grid for the given sequence length, computing
// and caching it into the state on first use. On the first call it also
// latches the state's TrainLength. Once a grid is cached it is returned
// unchanged, even if a later call passes a different length; callers that
// resample between calls must Invalidate the state first.
//
// The latch only commits with the grid, so a call that fails (a length
// too short to define a sampling rate) leaves the state untouched and a
// later call with a valid length proceeds normally.
func (g *PositionGrid) Get(length int, s *State) (*tensor.Tensor, error) {
	if s.relPositions != nil {
		return s.relPositions, nil
	}

	trainLength := s.TrainLength
	if trainLength == 0 {
		trainLength = length
	}

	maxPos, err := CalculateMax(trainLength, length)
	if err != nil {
		return nil, err
	}
	positions, err := tensor.Linspace(-1.0, maxPos, length, g.device)
	if err != nil {
		return nil, err
	}
	// KernelNet consumes coordinates as [batch=1, coordDim=1, length].
	positions, err = positions.Reshape(1, 1, length)
	if err != nil {
		return nil, err
	}

	srChange, err := SamplingRateRatio(trainLength, length)
	if err != nil {
		return nil, err
	}

	s.TrainLength = trainLength
	s.relPositions = positions
	s.srChange = srChange
	if srChange < 1 {
		// Inference grid is finer than the training grid; the
		// generated kernel gets Gaussian smoothing before use.
		s.sigma = 0.5
		s.hasSigma = true
	} else {
		s.sigma = 0
		s.hasSigma = false
	}
	return s.relPositions, nil
}

// SamplingRateRatio computes the ratio between the sampling rate implied
// by the training length and the one implied by the current length. Values
// above 1 mean a coarser inference grid, below 1 a finer one. Half-integer
// length ratios round to even, so a 2.5x resampling counts as 2x.
func SamplingRateRatio(trainLength, currentLength int) (float64, error) {
	if trainLength <= 1 || currentLength <= 1 {
		return 0, fmt.Errorf("%w: train length %d, current length %d", ErrDegenerateRatio, trainLength, currentLength)
	}
	if trainLength > currentLength {
		r := math.RoundToEven(float64(trainLength) / float64(currentLength))
		if r == 0 {
			return 0, fmt.Errorf("%w: train length %d, current length %d", ErrDegenerateRatio, trainLength, currentLength)
		}
		return r, nil
	}
	r := math.RoundToEven(float64(currentLength) / float64(trainLength))
	if r == 0 {
		return 0, fmt.Errorf("%w: train length %d, current length %d", ErrDegenerateRatio, trainLength, currentLength)
	}
	return 1 / r, nil
}

// CalculateMax computes the right endpoint of the relative-position
// interval so that positions sampled on the inference-time grid coincide
// with positions that occurred on the training-time grid. Without this
// alignment the generated kernel drifts in phase under resampling. The
// maximum at training time is always 1.
func CalculateMax(trainLength, currentLength int) (float64, error) {
	srChange, err := SamplingRateRatio(trainLength, currentLength)
	if err != nil {
		return 0, err
	}

	trainStep := 2.0 / float64(trainLength-1)
	currentStep := trainStep * srChange

	if srChange > 1 {
		// Coarser inference grid: drop the taps past the last aligned one.
		k := math.Mod(float64(trainLength-1), srChange)
		return 1 - k*trainStep, nil
	}
	// Same or finer inference grid: extend past 1 to the next aligned tap.
	k := math.Mod(float64(currentLength-1), 1/srChange)
	return 1 + k*currentStep, nil
}
