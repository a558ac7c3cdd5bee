package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xela07ax/pdm-core/internal/alerting"
	"github.com/xela07ax/pdm-core/internal/failure"
	"github.com/xela07ax/pdm-core/internal/features"
	"github.com/xela07ax/pdm-core/internal/history"
	"github.com/xela07ax/pdm-core/internal/inference"
	"github.com/xela07ax/pdm-core/internal/infra"
	"github.com/xela07ax/pdm-core/internal/ingest"
	"github.com/xela07ax/pdm-core/internal/pipeline"
)

func newReplayCmd(configPath *string) *cobra.Command {
	var (
		file      string
		modelDir  string
		threshold float64
		predict   bool
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Run recorded readings through the pipeline with local models and print results as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := infra.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			logger, err := infra.NewLogger(cfg.Logger)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open readings: %w", err)
			}
			defer f.Close()
			readings, err := ingest.DecodeAll(f, time.Now())
			if err != nil {
				return err
			}

			if modelDir == "" {
				modelDir = cfg.Inference.ModelDir
			}
			registry := inference.DefaultRegistry()
			if err := registry.LoadDir(modelDir); err != nil {
				return err
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = cfg.Pipeline.DetectionThreshold
			}

			gateway := inference.NewGateway(registry, nil, logger, inference.WithTimeout(cfg.Inference.Timeout))
			store := history.NewStore(cfg.Pipeline.HistoryCapacity, nil)
			pipe := pipeline.New(
				features.NewWindow(cfg.Pipeline.WindowCapacity),
				gateway,
				failure.NewEstimator(gateway, cfg.Pipeline.FailureFeatureWindow, logger),
				alerting.NewDispatcher(alerting.NewLogSink(logger), nil, logger),
				store,
				logger,
				pipeline.WithThresholds(pipeline.StaticThreshold(threshold)),
			)

			enc := json.NewEncoder(cmd.OutOrStdout())
			seen := make(map[string]struct{})
			for _, r := range readings {
				if err := enc.Encode(pipe.Process(cmd.Context(), r)); err != nil {
					return err
				}
				seen[r.MachineID] = struct{}{}
			}
			if predict {
				for id := range seen {
					if err := enc.Encode(pipe.PredictFailure(cmd.Context(), id)); err != nil {
						return err
					}
				}
			}

			logger.Info("replay finished",
				zap.Int("readings", len(readings)),
				zap.Int("machines", len(seen)),
				zap.Any("counts", store.Counts()),
			)
			return enc.Encode(store.Report())
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON array of sensor readings")
	cmd.Flags().StringVar(&modelDir, "models", "", "directory with local model files (default: inference.model_dir)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.75, "anomaly detection threshold")
	cmd.Flags().BoolVar(&predict, "predict", true, "run failure prediction per machine after replay")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
