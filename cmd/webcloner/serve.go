package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kononmatsumoto/webcloner/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API (POST /clone, POST /scrape, /mcp)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := build(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				logger.Error("close", "error", err)
			}
		}()

		scfg := server.Config{
			Cloner:        a.pipeline,
			Guard:         a.guard,
			Metrics:       a.metrics,
			MaxConcurrent: cfg.Server.MaxConcurrent,
			MCP:           *cfg.Server.MCP,
			Version:       version,
			Logger:        logger,
		}
		if a.runs != nil {
			scfg.Runs = a.runs
			go retain(ctx, a, cfg.Ledger.RetentionDays)
		}

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           server.New(scfg).Handler(),
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
			IdleTimeout:       60 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("server starting",
				"addr", srv.Addr,
				"renderer", cfg.Fetch.Renderer,
				"provider", cfg.Synth.Provider,
				"auth", a.guard != nil,
				"ledger", cfg.Ledger.Path != "")
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "error", err)
			_ = srv.Close()
		}
		logger.Info("server stopped")
		return nil
	},
}

// retain prunes ledger entries older than days, once at startup and then
// daily.
func retain(ctx context.Context, a *app, days int) {
	t := time.NewTicker(24 * time.Hour)
	defer t.Stop()
	for {
		if n, err := a.runs.Cleanup(ctx, days); err != nil {
			if ctx.Err() == nil {
				a.logger.Warn("ledger cleanup", "error", err)
			}
		} else if n > 0 {
			a.logger.Info("ledger cleanup", "deleted", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (overrides config and PORT)")
}
