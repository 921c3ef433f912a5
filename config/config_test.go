package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-ckconv/layers"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	layerCfg, err := cfg.ToLayer()
	require.NoError(t, err)
	assert.Equal(t, layers.Sine, layerCfg.Activation)
	assert.Equal(t, layers.NormNone, layerCfg.Norm)
	assert.Equal(t, 30.0, layerCfg.Omega0)
	assert.Equal(t, 1, layerCfg.SpatialDim)
}

func TestLoad(t *testing.T) {
	t.Run("File overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "layer.yaml")
		require.NoError(t, os.WriteFile(path, []byte(
			"in_channels: 4\nactivation: ReLU\nnorm: BatchNorm\nomega_0: 1\n"), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 4, cfg.InChannels)
		assert.Equal(t, "ReLU", cfg.Activation)
		// Untouched fields keep their defaults.
		assert.Equal(t, 16, cfg.OutChannels)
		assert.Equal(t, int64(42), cfg.Seed)

		layerCfg, err := cfg.ToLayer()
		require.NoError(t, err)
		assert.Equal(t, layers.ReLU, layerCfg.Activation)
		assert.Equal(t, layers.NormBatch, layerCfg.Norm)
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("Malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("in_channels: [\n"), 0o644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestToLayerValidation(t *testing.T) {
	t.Run("Unknown activation", func(t *testing.T) {
		cfg := Defaults()
		cfg.Activation = "Tanh"
		_, err := cfg.ToLayer()
		assert.Error(t, err)
	})

	t.Run("Unknown norm", func(t *testing.T) {
		cfg := Defaults()
		cfg.Norm = "GroupNorm"
		_, err := cfg.ToLayer()
		assert.Error(t, err)
	})

	t.Run("Zero spatial dim defaults to 1", func(t *testing.T) {
		cfg := Defaults()
		cfg.SpatialDim = 0
		layerCfg, err := cfg.ToLayer()
		require.NoError(t, err)
		assert.Equal(t, 1, layerCfg.SpatialDim)
	})
}
