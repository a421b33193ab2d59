package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/7homasISPG/HappyPlaceAIMode/internal/config"
	"github.com/7homasISPG/HappyPlaceAIMode/internal/logger"
	"github.com/7homasISPG/HappyPlaceAIMode/internal/server"
	"github.com/7homasISPG/HappyPlaceAIMode/internal/store"
	"github.com/7homasISPG/HappyPlaceAIMode/pkg/bridge"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HappyPlace service",
	Long: `Run the HappyPlace service in the foreground. The service exposes the
HTTP API and the realtime channel, and reloads its configuration when
the config file changes on disk.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)

	// Bootstrap logging before the config manager so load failures are
	// visible.
	bootCfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// The flag wins over the config file when set explicitly.
	level := bootCfg.Logging.Level
	if cmd.Flags().Changed("log-level") || level == "" {
		level = logLevel
	}

	log, err := logger.New(logger.Config{
		Level:     level,
		File:      bootCfg.Logging.File,
		Console:   true,
		Pretty:    true,
		Redaction: true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	zl := log.GetZerolog()

	manager, err := config.NewManager(loader, zl)
	if err != nil {
		return err
	}
	cfg := manager.Current()

	st, err := store.New(store.Config{Path: cfg.Store.Path, Logger: zl})
	if err != nil {
		return err
	}
	defer st.Close()

	retention := store.NewRetention(st, cfg.Store.RetentionDays, zl)
	if err := retention.Start(); err != nil {
		return err
	}
	defer retention.Stop()

	br := bridge.New(st, zl)

	srv, err := server.NewServer(server.Config{
		Manager: manager,
		Store:   st,
		Bridge:  br,
		Logger:  zl,
	})
	if err != nil {
		return err
	}

	if err := srv.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	go func() {
		if err := manager.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zl.Error().Err(err).Msg("Config watcher stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		zl.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case <-ctx.Done():
	}

	cancel()
	return srv.Stop()
}
