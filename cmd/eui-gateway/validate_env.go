package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Septimus4/Futurisys/internal/config"
	"github.com/Septimus4/Futurisys/internal/storage"
)

// minAPIKeyLength is the shortest API key accepted without a warning.
const minAPIKeyLength = 16

var validateEnvCmd = &cobra.Command{
	Use:   "validate-env",
	Short: "Check configuration, database connectivity and model files",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(envFile); err != nil {
			logger.Warn("Env file not found; using process environment only", zap.String("env_file", envFile))
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger.Info("Settings loaded")

		var problems []error
		for _, issue := range credentialIssues(cfg) {
			logger.Warn(issue)
		}

		ctx := cmd.Context()
		db, err := storage.NewDB(ctx, storage.DBConfig{URL: cfg.Database.URL, MaxOpenConns: 1, MaxIdleConns: 1})
		if err != nil {
			problems = append(problems, fmt.Errorf("database connection failed: %w", err))
		} else {
			start := time.Now()
			healthErr := db.Health(ctx)
			db.Close()
			if healthErr != nil {
				problems = append(problems, healthErr)
			} else {
				logger.Info("Database connection successful", zap.Duration("latency", time.Since(start)))
			}
		}

		for _, path := range []string{cfg.Model.ArtifactPath, cfg.Model.CardPath} {
			if _, err := os.Stat(path); err != nil {
				logger.Warn("Model file not found", zap.String("path", path))
			} else {
				logger.Info("Model file found", zap.String("path", path))
			}
		}

		switch {
		case cfg.APIKey == "":
			logger.Info("API key authentication is disabled")
		case len(cfg.APIKey) < minAPIKeyLength:
			logger.Warn("API key is very short; consider a longer key")
		default:
			logger.Info("API key is configured")
		}

		if len(problems) > 0 {
			return errors.Join(problems...)
		}
		logger.Info("Environment looks good")
		return nil
	},
}

// credentialIssues flags default passwords left in the configuration.
func credentialIssues(cfg *config.Config) []string {
	var issues []string
	if u, err := url.Parse(cfg.Database.URL); err == nil && u.User != nil {
		if pw, ok := u.User.Password(); ok && pw == "password" {
			issues = append(issues, "DATABASE_URL contains default password 'password'; change it")
		}
	}
	if os.Getenv("POSTGRES_PASSWORD") == "password" {
		issues = append(issues, "POSTGRES_PASSWORD is set to default 'password'; change it")
	}
	return issues
}

func init() {
	rootCmd.AddCommand(validateEnvCmd)
}
