// Command ckconv is a small workbench around the continuous kernel
// convolution layer: run a forward pass over a synthetic signal, save a
// freshly initialized layer as a checkpoint, or inspect one.
package main

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tsawler/go-ckconv/checkpoints"
	"github.com/tsawler/go-ckconv/ckconv"
	"github.com/tsawler/go-ckconv/config"
	"github.com/tsawler/go-ckconv/tensor"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

func main() {
	root := &cobra.Command{
		Use:           "ckconv",
		Short:         "Continuous kernel convolution workbench",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(demoCmd(), saveCmd(), inspectCmd())

	if err := root.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func loadLayer(configPath string) (*ckconv.CKConv, config.LayerConfig, error) {
	cfg := config.Defaults()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, cfg, err
		}
		cfg = loaded
	}
	layerCfg, err := cfg.ToLayer()
	if err != nil {
		return nil, cfg, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	layer, err := ckconv.New(layerCfg, tensor.CPU, rng)
	if err != nil {
		return nil, cfg, err
	}
	return layer, cfg, nil
}

func demoCmd() *cobra.Command {
	var (
		configPath string
		length     int
		testLength int
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run forward passes over a synthetic signal",
		RunE: func(cmd *cobra.Command, args []string) error {
			layer, cfg, err := loadLayer(configPath)
			if err != nil {
				return err
			}
			layer.SetTraining(false)
			logger.Info("layer built",
				"activation", cfg.Activation,
				"in", cfg.InChannels, "out", cfg.OutChannels,
				"hidden", cfg.HiddenChannels)

			if err := runForward(layer, cfg.InChannels, length); err != nil {
				return err
			}
			if testLength != 0 && testLength != length {
				// Resampled second pass: drop the cached grid so
				// the layer recomputes the rate ratio and, on
				// finer grids, applies anti-alias smoothing.
				layer.State().Invalidate()
				if err := runForward(layer, cfg.InChannels, testLength); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "YAML layer configuration")
	cmd.Flags().IntVar(&length, "length", 1000, "sequence length of the first forward pass")
	cmd.Flags().IntVar(&testLength, "test-length", 0, "optional second sequence length")
	return cmd
}

func runForward(layer *ckconv.CKConv, channels, length int) error {
	signal, err := syntheticSignal(channels, length)
	if err != nil {
		return err
	}
	start := time.Now()
	out, err := layer.Forward(signal)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	var sum, sumSq float64
	for _, v := range out.Data {
		sum += float64(v)
		sumSq += float64(v) * float64(v)
	}
	n := float64(out.NumElems)
	mean := sum / n
	std := math.Sqrt(sumSq/n - mean*mean)

	logger.Info("forward pass",
		"length", length,
		"train_length", layer.State().TrainLength,
		"sr_change", layer.State().SRChange(),
		"output_mean", fmt.Sprintf("%.6f", mean),
		"output_std", fmt.Sprintf("%.6f", std),
		"elapsed", elapsed)
	return nil
}

func syntheticSignal(channels, length int) (*tensor.Tensor, error) {
	signal, err := tensor.Zeros([]int{1, channels, length}, tensor.CPU)
	if err != nil {
		return nil, err
	}
	for c := 0; c < channels; c++ {
		freq := 2 * math.Pi * float64(c+1)
		for t := 0; t < length; t++ {
			x := float64(t) / float64(length)
			signal.Data[c*length+t] = float32(math.Sin(freq * x))
		}
	}
	return signal, nil
}

func saveCmd() *cobra.Command {
	var (
		configPath string
		outPath    string
		length     int
	)
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Initialize a layer, run one forward pass, and checkpoint it",
		RunE: func(cmd *cobra.Command, args []string) error {
			layer, cfg, err := loadLayer(configPath)
			if err != nil {
				return err
			}
			layer.SetTraining(false)
			// One pass latches the training length so the
			// checkpoint restores into the LOCKED state.
			if err := runForward(layer, cfg.InChannels, length); err != nil {
				return err
			}

			cp, err := checkpoints.Capture(layer)
			if err != nil {
				return err
			}
			saver := checkpoints.NewCheckpointSaver(checkpoints.FormatJSON)
			if err := saver.SaveCheckpoint(cp, outPath); err != nil {
				return err
			}
			logger.Info("checkpoint written", "path", outPath, "tensors", len(cp.Weights))
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "YAML layer configuration")
	cmd.Flags().StringVar(&outPath, "out", "ckconv.json", "checkpoint output path")
	cmd.Flags().IntVar(&length, "length", 1000, "sequence length used to latch the training length")
	return cmd
}

func inspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <checkpoint>",
		Short: "Print a checkpoint summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			saver := checkpoints.NewCheckpointSaver(checkpoints.FormatJSON)
			cp, err := saver.LoadCheckpoint(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("framework:    %s %s\n", cp.Metadata.Framework, cp.Metadata.Version)
			fmt.Printf("created:      %s\n", cp.Metadata.CreatedAt.Format(time.RFC3339))
			fmt.Printf("channels:     %d -> %d (hidden %d)\n",
				cp.Config.InChannels, cp.Config.OutChannels, cp.Config.HiddenChannels)
			fmt.Printf("activation:   %s\n", cp.Config.Activation)
			fmt.Printf("train_length: %d\n", cp.TrainLength)
			fmt.Printf("tensors:      %d\n", len(cp.Weights))
			for _, w := range cp.Weights {
				fmt.Printf("  %-40s %-12s %v\n", w.Name, w.Type, w.Shape)
			}
			return nil
		},
	}
	return cmd
}
