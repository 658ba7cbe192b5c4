package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Septimus4/Futurisys/internal/httpapi"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the prediction API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		deps, err := httpapi.NewDependencies(ctx, cfg, logger)
		if err != nil {
			return err
		}

		port := cfg.HTTP.Port
		if servePort != "" {
			port = servePort
		}
		srv := &http.Server{
			Addr:         ":" + port,
			Handler:      httpapi.NewRouter(deps),
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
			IdleTimeout:  cfg.HTTP.IdleTimeout,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("Energy prediction API listening",
				zap.String("addr", srv.Addr),
				zap.String("version", httpapi.APIVersion))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				deps.Close(context.Background())
				return fmt.Errorf("server listen: %w", err)
			}
		case <-ctx.Done():
		}

		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", zap.Error(err))
		}
		if err := deps.Close(shutdownCtx); err != nil {
			logger.Error("Failed to release dependencies", zap.Error(err))
		}

		logger.Info("Server exited")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (default HTTP_PORT)")
	rootCmd.AddCommand(serveCmd)
}
