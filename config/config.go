// Package config loads CKConv layer settings from YAML files.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tsawler/go-ckconv/ckconv"
	"github.com/tsawler/go-ckconv/layers"
)

// LayerConfig is the YAML representation of a CKConv configuration.
// Activation and normalization are named by string and mapped onto the
// typed enums during conversion.
type LayerConfig struct {
	InChannels     int     `yaml:"in_channels"`
	OutChannels    int     `yaml:"out_channels"`
	HiddenChannels int     `yaml:"hidden_channels"`
	Activation     string  `yaml:"activation"`
	Norm           string  `yaml:"norm"`
	SpatialDim     int     `yaml:"spatial_dim"`
	Bias           bool    `yaml:"bias"`
	Omega0         float64 `yaml:"omega_0"`
	WeightDropout  float64 `yaml:"weight_dropout"`
	Seed           int64   `yaml:"seed"`
}

// Defaults returns the configuration the reference audio experiments use:
// an oscillatory kernel network with omega_0 = 30.
func Defaults() LayerConfig {
	return LayerConfig{
		InChannels:     1,
		OutChannels:    16,
		HiddenChannels: 32,
		Activation:     "Sine",
		Norm:           "",
		SpatialDim:     1,
		Bias:           true,
		Omega0:         30,
		WeightDropout:  0,
		Seed:           42,
	}
}

// Load reads a LayerConfig from a YAML file, starting from Defaults so a
// file only needs to name the settings it changes.
func Load(path string) (LayerConfig, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %v", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %v", err)
	}
	return cfg, nil
}

// ToLayer converts the YAML representation into a typed ckconv.Config.
func (c LayerConfig) ToLayer() (ckconv.Config, error) {
	activation, err := layers.ParseActivation(c.Activation)
	if err != nil {
		return ckconv.Config{}, err
	}
	norm, err := layers.ParseNorm(c.Norm)
	if err != nil {
		return ckconv.Config{}, err
	}
	if c.SpatialDim == 0 {
		c.SpatialDim = 1
	}
	return ckconv.Config{
		InChannels:     c.InChannels,
		OutChannels:    c.OutChannels,
		HiddenChannels: c.HiddenChannels,
		Activation:     activation,
		Norm:           norm,
		SpatialDim:     c.SpatialDim,
		Bias:           c.Bias,
		Omega0:         c.Omega0,
		WeightDropout:  c.WeightDropout,
	}, nil
}
