package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Start seeds the store, binds the API listener and begins serving in the
// background. It returns the bound address.
func (s *Server) Start() (net.Addr, error) {
	if s.cfg.SeedFile != "" {
		if _, err := LoadConferencesFromYAML(s.ctx, s.cfg.SeedFile, s.store); err != nil {
			slog.Error("failed to load conferences config", "err", err)
		}
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
	}
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "err", err)
		}
	}()

	// Start Prometheus metrics HTTP endpoint
	s.StartMetricsHTTP()

	if s.cfg.MetricsLogEvery > 0 {
		s.metrics.StartPeriodicLog(s.cfg.MetricsLogEvery, s.ctx.Done())
	}

	slog.Info("PosterChat server running", "addr", ln.Addr().String(), "data", s.cfg.DataDir)
	return ln.Addr(), nil
}

// Run starts the server and blocks until shutdown signal.
func (s *Server) Run() error {
	defer func() { _ = s.store.Close() }()

	if _, err := s.Start(); err != nil {
		return err
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	return s.Shutdown()
}

// Shutdown stops accepting requests, waits for in-flight ones up to the
// configured timeout and closes live feeds.
func (s *Server) Shutdown() error {
	s.cancel()
	if s.httpSrv == nil {
		return nil
	}
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
