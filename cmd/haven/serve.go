package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/haven-org/haven/internal/auth"
	"github.com/haven-org/haven/internal/config"
	"github.com/haven-org/haven/internal/logger"
	"github.com/haven-org/haven/internal/server"
	"github.com/haven-org/haven/internal/settings"
)

const storeCheckInterval = 30 * time.Second

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Haven API server",
		Long:  "Serves the donation settings and admin settings API until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "haven.yaml", "path to Haven config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("Close settings store", zap.Error(err))
		}
	}()
	log.Info("Settings store ready", zap.String("driver", cfg.Database.Driver))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx, server.StartOpts{
			Store:          b.store,
			Verifier:       auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer),
			Logger:         log,
			Port:           cfg.Server.Port,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Out:            cmd.OutOrStdout(),
		})
	})
	g.Go(func() error {
		watchStore(gctx, b.store, log.Named("store"), storeCheckInterval)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Haven API stopped.")
	return nil
}

// watchStore pings the store every interval and logs transitions between
// reachable and unreachable.
func watchStore(ctx context.Context, store settings.Store, log *zap.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	healthy := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := store.Ping(pingCtx)
			cancel()
			switch {
			case err != nil && healthy:
				log.Warn("Settings store unreachable", zap.Error(err))
			case err == nil && !healthy:
				log.Info("Settings store reachable again")
			}
			healthy = err == nil
		}
	}
}
