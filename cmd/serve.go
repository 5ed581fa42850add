package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vitalsync/vitalsync/internal/auth/oauth"
	"github.com/vitalsync/vitalsync/internal/config"
	"github.com/vitalsync/vitalsync/internal/db"
	"github.com/vitalsync/vitalsync/internal/providers/catalog"
	"github.com/vitalsync/vitalsync/internal/ratelimit"
	"github.com/vitalsync/vitalsync/internal/server"
	"github.com/vitalsync/vitalsync/internal/sync"
	"github.com/vitalsync/vitalsync/internal/upstream"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sync service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen address (default: from VITALSYNC_HOST)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default: from VITALSYNC_PORT)")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if serveHost != "" {
		cfg.Host = serveHost
	}
	if servePort > 0 {
		cfg.Port = servePort
	}

	log.Logger = config.InitLogger(cfg.LogLevel)
	log.Info().Str("log_level", cfg.LogLevel).Msg("logger initialized")

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	database, err := db.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}

	creds := db.NewCredentialStore(database)
	states := db.NewOAuthStateStore(database)
	syncLog := db.NewSyncLogStore(database)
	cache := db.NewCacheStore(database)

	manager := oauth.NewManager(creds, states, cat,
		cfg.ProviderClientID, cfg.ProviderClientSecret, cfg.RedirectURL, log.Logger)
	limiter := ratelimit.New(cat.MinuteLimit, cat.DayLimit, cat.Pacing, log.Logger)
	client := upstream.NewClient(cat, manager, limiter, log.Logger)
	engine := sync.NewEngine(syncLog, cache, client, cat, log.Logger)

	srv := server.New(cfg, server.Deps{
		Flow:    manager,
		Data:    engine,
		SyncLog: syncLog,
		Limits:  limiter,
		Catalog: cat,
	}, log.Logger)

	startErrCh := make(chan error, 1)
	go func() {
		startErrCh <- srv.Start()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-startErrCh:
		if err != nil {
			log.Error().Err(err).Msg("serve exited with error")
		}
		return err
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Stop(shutdownCtx); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("serve shutdown failed")
			return err
		}

		select {
		case err := <-startErrCh:
			if err != nil {
				log.Error().Err(err).Msg("serve exited after shutdown with error")
			}
			return err
		case <-time.After(10 * time.Second):
			log.Error().Msg("serve shutdown timed out")
			return fmt.Errorf("shutdown timeout")
		}
	}
}
