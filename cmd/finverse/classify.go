package main

import (
	"encoding/json"
	"fmt"
	"image"
	_ "image/png"
	"os"

	"github.com/spf13/cobra"

	"github.com/finverse/finverse/pkg/domain"
)

func newClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <drawing.png>...",
		Short: "Run the classification gate on PNG drawings",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runClassify,
	}
	cmd.Flags().String("endpoint", "", "Inference server URL (overrides model.endpoint)")
	cmd.Flags().String("model", "", "Model name (overrides model.name)")
	return cmd
}

type classifyResult struct {
	File string `json:"file"`
	domain.Decision
	State domain.GateState `json:"state"`
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("endpoint"); v != "" {
		cfg.Model.Endpoint = v
	}
	if v, _ := cmd.Flags().GetString("model"); v != "" {
		cfg.Model.Name = v
	}
	logger := newLogger(cmd, cfg)

	loader := newModelLoader(cfg.Model, logger, nil)
	g := newGate(cfg.Model, loader, logger)

	enc := json.NewEncoder(cmd.OutOrStdout())
	for i, path := range args {
		img, err := readImage(path)
		if err != nil {
			return err
		}
		d, err := g.Evaluate(cmd.Context(), img, uint64(i+1))
		if err != nil {
			return fmt.Errorf("classify %s: %w", path, err)
		}
		if err := enc.Encode(classifyResult{File: path, Decision: d, State: domain.StateFor(d)}); err != nil {
			return err
		}
	}
	return nil
}

func readImage(path string) (image.Image, error) {
	//nolint:gosec // Drawing path is supplied by the operator
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}
