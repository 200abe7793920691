// Package server implements the PosterChat HTTP server.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/NicolasHaas/posterchat/pkg/account"
	"github.com/NicolasHaas/posterchat/pkg/avatar"
	"github.com/NicolasHaas/posterchat/pkg/conference"
	"github.com/NicolasHaas/posterchat/pkg/datastore"
)

// Config holds server configuration.
type Config struct {
	Addr        string // HTTP API bind address (e.g. ":8080")
	MetricsAddr string // HTTP bind address for /metrics endpoint (empty = disabled)
	DBPath      string // SQLite database path
	DataDir     string // directory for uploaded avatars
	SeedFile    string // YAML file defining conferences to create on startup

	ShutdownTimeout time.Duration // grace period for in-flight requests
	MetricsLogEvery time.Duration // periodic metrics log interval (0 = disabled)

	// CLI-only actions (run and exit)
	ExportUsers       bool // export all users as YAML and exit
	ExportConferences bool // export all conferences as YAML and exit
}

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Store and will Close() it on shutdown.
type Dependencies struct {
	Store datastore.DataProviderFactory
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		MetricsAddr:     ":8081",
		DBPath:          "posterchat.db",
		DataDir:         ".",
		ShutdownTimeout: 10 * time.Second,
		MetricsLogEvery: 60 * time.Second,
	}
}

// Server is the main PosterChat server.
type Server struct {
	cfg         Config
	metrics     *Metrics
	store       datastore.DataProviderFactory
	accounts    *account.Service
	conferences *conference.Service
	avatars     *avatar.Store
	live        *LiveHub
	httpSrv     *http.Server
	ctx         context.Context
	cancel      context.CancelFunc
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) (*Server, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("server: missing store dependency")
	}
	avatars, err := avatar.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	metrics := NewMetrics()
	live := NewLiveHub(metrics, ctx.Done())
	return &Server{
		cfg:         cfg,
		metrics:     metrics,
		store:       deps.Store,
		accounts:    account.NewService(deps.Store),
		conferences: conference.NewService(deps.Store, live),
		avatars:     avatars,
		live:        live,
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Accounts returns the account service.
func (s *Server) Accounts() *account.Service {
	return s.accounts
}

// Conferences returns the conference service.
func (s *Server) Conferences() *conference.Service {
	return s.conferences
}

// Live returns the live comment hub.
func (s *Server) Live() *LiveHub {
	return s.live
}
