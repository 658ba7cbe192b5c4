package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Septimus4/Futurisys/internal/config"
	"github.com/Septimus4/Futurisys/internal/features"
	"github.com/Septimus4/Futurisys/internal/inference"
)

const (
	artifactFile = "energy_rf.json"
	cardFile     = "model_card.json"
)

var (
	trainCSV     string
	trainOut     string
	trainVersion string
	trainOpts    = inference.DefaultTrainOptions()
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fit a forest artifact and model card from a CSV export",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(trainCSV)
		if err != nil {
			return fmt.Errorf("failed to open training data: %w", err)
		}
		defer f.Close()

		samples, skipped, err := inference.ReadTrainingCSV(f, features.NewValidator())
		if err != nil {
			return err
		}
		logger.Info("Training data loaded",
			zap.String("csv", trainCSV),
			zap.Int("rows", len(samples)),
			zap.Int("skipped", skipped))

		artifact, metrics, err := inference.Train(samples, trainOpts)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(trainOut, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		version := trainVersion
		if version == "" {
			version = config.DefaultModelVersion(time.Now())
		}
		artifactPath := filepath.Join(trainOut, artifactFile)
		contract := artifact.FeatureContract
		card := inference.Card{
			ModelName:       "sklearn-random-forest",
			ModelVersion:    version,
			ArtifactPath:    artifactPath,
			TargetVariable:  inference.TargetColumn,
			PredictedField:  "predicted_source_eui_wn_kbtu_sf",
			Algorithm:       "RandomForestRegressor",
			FeatureContract: &contract,
			Metrics:         &metrics,
		}

		if err := inference.WriteJSON(artifactPath, artifact); err != nil {
			return err
		}
		if err := inference.WriteJSON(filepath.Join(trainOut, cardFile), card); err != nil {
			return err
		}

		logger.Info("Model artifacts written",
			zap.String("artifact", artifactPath),
			zap.String("version", version),
			zap.Float64("mae", metrics.MAE),
			zap.Float64("rmse", metrics.RMSE),
			zap.Float64("r2", metrics.R2))
		return nil
	},
}

func init() {
	trainCmd.Flags().StringVar(&trainCSV, "csv", "", "path to the CSV data file")
	trainCmd.Flags().StringVar(&trainOut, "out", "model", "output directory for model artifacts")
	trainCmd.Flags().StringVar(&trainVersion, "version", "", "model version (default YYYYMMDD_rf_v1)")
	trainCmd.Flags().IntVar(&trainOpts.Trees, "trees", trainOpts.Trees, "number of trees")
	trainCmd.Flags().IntVar(&trainOpts.MaxDepth, "max-depth", trainOpts.MaxDepth, "maximum tree depth")
	trainCmd.Flags().Int64Var(&trainOpts.Seed, "seed", trainOpts.Seed, "random seed")
	_ = trainCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(trainCmd)
}
