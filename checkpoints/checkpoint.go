// Package checkpoints serializes continuous-kernel convolution layers.
// A checkpoint carries the layer configuration, every trainable tensor,
// the normalization statistics, and the persisted training length, which
// is the one scalar of runtime state that must survive restoration.
package checkpoints

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/tsawler/go-ckconv/ckconv"
	"github.com/tsawler/go-ckconv/tensor"
)

// CheckpointFormat defines the serialization format.
type CheckpointFormat int

const (
	FormatJSON CheckpointFormat = iota
)

func (cf CheckpointFormat) String() string {
	switch cf {
	case FormatJSON:
		return "JSON"
	default:
		return "Unknown"
	}
}

// Checkpoint represents a complete CKConv layer state.
type Checkpoint struct {
	Config      ckconv.Config  `json:"config"`
	Weights     []WeightTensor `json:"weights"`
	TrainLength int            `json:"train_length"`

	Metadata CheckpointMetadata `json:"metadata"`
}

// WeightTensor represents one parameter tensor with its data.
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
	Type  string    `json:"type"` // "direction", "gain", "bias", "gamma", "beta", "running_mean", "running_var"
}

// CheckpointMetadata contains checkpoint metadata.
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// CheckpointSaver handles saving and loading checkpoints.
type CheckpointSaver struct {
	format CheckpointFormat
}

func NewCheckpointSaver(format CheckpointFormat) *CheckpointSaver {
	return &CheckpointSaver{format: format}
}

// SaveCheckpoint writes a checkpoint to disk.
func (cs *CheckpointSaver) SaveCheckpoint(checkpoint *Checkpoint, path string) error {
	switch cs.format {
	case FormatJSON:
		return cs.saveJSON(checkpoint, path)
	default:
		return fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
}

// LoadCheckpoint reads a checkpoint from disk.
func (cs *CheckpointSaver) LoadCheckpoint(path string) (*Checkpoint, error) {
	switch cs.format {
	case FormatJSON:
		return cs.loadJSON(path)
	default:
		return nil, fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
}

func (cs *CheckpointSaver) saveJSON(checkpoint *Checkpoint, path string) error {
	if checkpoint.Metadata.Framework == "" {
		checkpoint.Metadata.Framework = "go-ckconv"
		checkpoint.Metadata.Version = "1.0.0"
		checkpoint.Metadata.CreatedAt = time.Now()
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %v", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(checkpoint); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %v", err)
	}
	return nil
}

func (cs *CheckpointSaver) loadJSON(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %v", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %v", err)
	}
	return &checkpoint, nil
}

// Capture extracts a checkpoint from a live layer.
func Capture(layer *ckconv.CKConv) (*Checkpoint, error) {
	cp := &Checkpoint{
		Config:      layer.Config(),
		TrainLength: layer.State().TrainLength,
	}

	net := layer.KernelNet()
	for i, wn := range net.TrainableLayers() {
		prefix := fmt.Sprintf("kernel_net.dense%d", i)
		cp.Weights = append(cp.Weights,
			newWeight(prefix+".direction", "direction", wn.Direction()),
			newWeight(prefix+".gain", "gain", wn.Gain()),
		)
		if b := wn.Linear().Bias; b != nil {
			cp.Weights = append(cp.Weights, newWeight(prefix+".bias", "bias", b))
		}
	}
	for i, bn := range net.BatchNorms() {
		prefix := fmt.Sprintf("kernel_net.batchnorm%d", i)
		cp.Weights = append(cp.Weights,
			newWeight(prefix+".gamma", "gamma", bn.Gamma),
			newWeight(prefix+".beta", "beta", bn.Beta),
			newWeight(prefix+".running_mean", "running_mean", bn.RunningMean),
			newWeight(prefix+".running_var", "running_var", bn.RunningVar),
		)
	}
	for i, ln := range net.LayerNorms() {
		prefix := fmt.Sprintf("kernel_net.layernorm%d", i)
		cp.Weights = append(cp.Weights,
			newWeight(prefix+".gamma", "gamma", ln.Gamma),
			newWeight(prefix+".beta", "beta", ln.Beta),
		)
	}
	if b := layer.Bias(); b != nil {
		cp.Weights = append(cp.Weights, newWeight("bias", "bias", b))
	}
	return cp, nil
}

// Restore rebuilds a layer from a checkpoint on the given device. The
// restored instance comes back in the LOCKED state, with the persisted
// training length in place and every tensor overwritten from the
// checkpoint; the random source only seeds throwaway construction-time
// weights.
func Restore(cp *Checkpoint, device tensor.DeviceType, rng *rand.Rand) (*ckconv.CKConv, error) {
	layer, err := ckconv.New(cp.Config, device, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild layer from checkpoint config: %v", err)
	}

	byName := make(map[string]WeightTensor, len(cp.Weights))
	for _, w := range cp.Weights {
		byName[w.Name] = w
	}

	net := layer.KernelNet()
	for i, wn := range net.TrainableLayers() {
		prefix := fmt.Sprintf("kernel_net.dense%d", i)
		v, err := lookupTensor(byName, prefix+".direction", device)
		if err != nil {
			return nil, err
		}
		g, err := lookupTensor(byName, prefix+".gain", device)
		if err != nil {
			return nil, err
		}
		if err := wn.Restore(v, g); err != nil {
			return nil, fmt.Errorf("failed to restore %s: %v", prefix, err)
		}
		if wn.Linear().Bias != nil {
			b, err := lookupTensor(byName, prefix+".bias", device)
			if err != nil {
				return nil, err
			}
			if err := copyInto(wn.Linear().Bias, b); err != nil {
				return nil, fmt.Errorf("failed to restore %s.bias: %v", prefix, err)
			}
		}
	}
	for i, bn := range net.BatchNorms() {
		prefix := fmt.Sprintf("kernel_net.batchnorm%d", i)
		for name, dst := range map[string]*tensor.Tensor{
			prefix + ".gamma":        bn.Gamma,
			prefix + ".beta":         bn.Beta,
			prefix + ".running_mean": bn.RunningMean,
			prefix + ".running_var":  bn.RunningVar,
		} {
			src, err := lookupTensor(byName, name, device)
			if err != nil {
				return nil, err
			}
			if err := copyInto(dst, src); err != nil {
				return nil, fmt.Errorf("failed to restore %s: %v", name, err)
			}
		}
	}
	for i, ln := range net.LayerNorms() {
		prefix := fmt.Sprintf("kernel_net.layernorm%d", i)
		for name, dst := range map[string]*tensor.Tensor{
			prefix + ".gamma": ln.Gamma,
			prefix + ".beta":  ln.Beta,
		} {
			src, err := lookupTensor(byName, name, device)
			if err != nil {
				return nil, err
			}
			if err := copyInto(dst, src); err != nil {
				return nil, fmt.Errorf("failed to restore %s: %v", name, err)
			}
		}
	}
	if layer.Bias() != nil {
		b, err := lookupTensor(byName, "bias", device)
		if err != nil {
			return nil, err
		}
		if err := copyInto(layer.Bias(), b); err != nil {
			return nil, fmt.Errorf("failed to restore bias: %v", err)
		}
	}

	layer.State().TrainLength = cp.TrainLength
	return layer, nil
}

func newWeight(name, kind string, t *tensor.Tensor) WeightTensor {
	return WeightTensor{
		Name:  name,
		Shape: append([]int(nil), t.Shape...),
		Data:  append([]float32(nil), t.Data...),
		Type:  kind,
	}
}

func lookupTensor(byName map[string]WeightTensor, name string, device tensor.DeviceType) (*tensor.Tensor, error) {
	w, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("checkpoint is missing tensor %q", name)
	}
	return tensor.New(w.Shape, device, append([]float32(nil), w.Data...))
}

func copyInto(dst, src *tensor.Tensor) error {
	if len(src.Data) != len(dst.Data) {
		return fmt.Errorf("size mismatch: %d vs %d", len(src.Data), len(dst.Data))
	}
	copy(dst.Data, src.Data)
	return nil
}
