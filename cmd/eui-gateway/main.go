package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Septimus4/Futurisys/internal/config"
	"github.com/Septimus4/Futurisys/internal/logging"
)

var (
	envFile string
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "eui-gateway",
	Short:         "Building energy use intensity prediction service",
	Long:          "Serves source EUI predictions for buildings and keeps an auditable ledger of every request.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		lc, err := config.LoadLogging(envFile)
		if err != nil {
			return err
		}
		logger, err = logging.New(lc.Level, lc.Format)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// loadConfig reads the full service configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "dotenv file read before the environment")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
