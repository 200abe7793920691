package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// HTTP counters
	Requests     atomic.Int64 // API requests served
	ServerErrors atomic.Int64 // responses with a 5xx status

	// Account counters
	Signups           atomic.Int64 // accounts created
	FailedValidations atomic.Int64 // identity fields rejected by the validators
	LoginsOK          atomic.Int64 // successful logins
	LoginsFailed      atomic.Int64 // rejected logins
	AvatarsUploaded   atomic.Int64 // avatar images stored

	// Conference counters
	ConferencesCreated atomic.Int64
	PostersCreated     atomic.Int64
	CommentsPosted     atomic.Int64

	// Live feed
	LiveSubscribers atomic.Int64 // current websocket subscribers
	LiveDropped     atomic.Int64 // comments dropped for slow subscribers
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	Requests     int64 `json:"requests"`
	ServerErrors int64 `json:"server_errors"`

	Signups           int64 `json:"signups"`
	FailedValidations int64 `json:"failed_validations"`
	LoginsOK          int64 `json:"logins_ok"`
	LoginsFailed      int64 `json:"logins_failed"`
	AvatarsUploaded   int64 `json:"avatars_uploaded"`

	ConferencesCreated int64 `json:"conferences_created"`
	PostersCreated     int64 `json:"posters_created"`
	CommentsPosted     int64 `json:"comments_posted"`

	LiveSubscribers int64 `json:"live_subscribers"`
	LiveDropped     int64 `json:"live_dropped"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:             uptime.Truncate(time.Second).String(),
		UptimeSeconds:      int64(uptime.Seconds()),
		Requests:           m.Requests.Load(),
		ServerErrors:       m.ServerErrors.Load(),
		Signups:            m.Signups.Load(),
		FailedValidations:  m.FailedValidations.Load(),
		LoginsOK:           m.LoginsOK.Load(),
		LoginsFailed:       m.LoginsFailed.Load(),
		AvatarsUploaded:    m.AvatarsUploaded.Load(),
		ConferencesCreated: m.ConferencesCreated.Load(),
		PostersCreated:     m.PostersCreated.Load(),
		CommentsPosted:     m.CommentsPosted.Load(),
		LiveSubscribers:    m.LiveSubscribers.Load(),
		LiveDropped:        m.LiveDropped.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"requests", s.Requests,
		"signups", s.Signups,
		"failed_validations", s.FailedValidations,
		"logins_failed", s.LoginsFailed,
		"comments", s.CommentsPosted,
		"live_subscribers", s.LiveSubscribers,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}
