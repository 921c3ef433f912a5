package ckconv

import "errors"

var (
	// ErrDegenerateRatio reports a sequence length that makes the
	// sampling-rate ratio or grid step undefined.
	ErrDegenerateRatio = errors.New("degenerate sampling-rate ratio")

	// ErrKernelShape reports a generated kernel whose flat width cannot
	// be split into [outChannels, inChannels].
	ErrKernelShape = errors.New("kernel width does not match channel configuration")

	// ErrSmoothingLength reports a kernel too short for the computed
	// smoothing window.
	ErrSmoothingLength = errors.New("kernel shorter than smoothing window")
)
