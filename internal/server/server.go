// Package server exposes the HTTP surface: the account-link OAuth
// endpoints, the metrics data API, and operational introspection.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/vitalsync/vitalsync/internal/auth/oauth"
	"github.com/vitalsync/vitalsync/internal/config"
	"github.com/vitalsync/vitalsync/internal/db/models"
	"github.com/vitalsync/vitalsync/internal/providers/catalog"
	"github.com/vitalsync/vitalsync/internal/ratelimit"
	"github.com/vitalsync/vitalsync/internal/sync"
)

// OAuthFlow is the account-link lifecycle. *oauth.Manager satisfies it.
type OAuthFlow interface {
	Initiate(ctx context.Context, accountID string) (*oauth.Authorization, error)
	CompleteCallback(ctx context.Context, code, state string) (*models.Credential, error)
}

// DataProvider serves metric data per account. *sync.Engine satisfies it.
type DataProvider interface {
	GetData(ctx context.Context, accountID, dataType string, opts sync.Options) (*sync.Result, error)
}

// SyncStatusLister reports per-type sync state. *db.SyncLogStore satisfies it.
type SyncStatusLister interface {
	ListByAccount(ctx context.Context, accountID string) ([]models.SyncLogEntry, error)
}

// LimitReporter snapshots the provider call budgets.
type LimitReporter interface {
	Status() ratelimit.Status
}

// Deps are the wired components the server routes to.
type Deps struct {
	Flow    OAuthFlow
	Data    DataProvider
	SyncLog SyncStatusLister
	Limits  LimitReporter
	Catalog *catalog.Catalog
}

type Server struct {
	deps       Deps
	log        zerolog.Logger
	httpServer *http.Server
}

func New(cfg *config.Config, deps Deps, log zerolog.Logger) *Server {
	s := &Server{
		deps: deps,
		log:  log.With().Str("component", "server").Logger(),
	}
	s.httpServer = &http.Server{
		Addr:    cfg.Addr(),
		Handler: s.routes(),
	}
	return s
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("start server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("stop server: %w", err)
	}
	return nil
}
