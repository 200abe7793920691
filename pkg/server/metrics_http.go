package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// StartMetricsHTTP starts a lightweight HTTP server that exposes /metrics
// in Prometheus text exposition format. It runs in the background and
// shuts down when the server context is cancelled.
//
// Bind address is :8081 by default, configurable via Config.MetricsAddr.
func (s *Server) StartMetricsHTTP() {
	addr := s.cfg.MetricsAddr
	if addr == "" {
		return // metrics endpoint disabled
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /healthz", handleHealthz)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics HTTP listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics HTTP error", "err", err)
		}
	}()

	go func() {
		<-s.ctx.Done()
		_ = srv.Close()
	}()
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.metrics
	uptime := time.Since(m.startTime).Seconds()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Write errors to http.ResponseWriter are non-actionable; suppress errcheck.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}
	writeFloat := func(name, help, mtype string, value float64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %f\n", name, value)
	}

	writeFloat("posterchat_uptime_seconds", "Server uptime in seconds.", "gauge", uptime)

	write("posterchat_http_requests_total", "API requests served.", "counter",
		m.Requests.Load())
	write("posterchat_http_server_errors_total", "API responses with a 5xx status.", "counter",
		m.ServerErrors.Load())

	write("posterchat_signups_total", "Accounts created.", "counter",
		m.Signups.Load())
	write("posterchat_validation_failures_total", "Identity fields rejected by the validators.", "counter",
		m.FailedValidations.Load())
	write("posterchat_logins_total", "Successful logins.", "counter",
		m.LoginsOK.Load())
	write("posterchat_logins_failed_total", "Rejected logins.", "counter",
		m.LoginsFailed.Load())
	write("posterchat_avatars_uploaded_total", "Avatar images stored.", "counter",
		m.AvatarsUploaded.Load())

	write("posterchat_conferences_created_total", "Conferences created.", "counter",
		m.ConferencesCreated.Load())
	write("posterchat_posters_created_total", "Posters created.", "counter",
		m.PostersCreated.Load())
	write("posterchat_comments_total", "Comments posted.", "counter",
		m.CommentsPosted.Load())

	write("posterchat_live_subscribers", "Current live comment subscribers.", "gauge",
		m.LiveSubscribers.Load())
	write("posterchat_live_dropped_total", "Live comments dropped for slow subscribers.", "counter",
		m.LiveDropped.Load())
}
