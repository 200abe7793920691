package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/NicolasHaas/posterchat/pkg/datastore"
	"github.com/NicolasHaas/posterchat/pkg/logging"
	"github.com/NicolasHaas/posterchat/pkg/server"
	"github.com/NicolasHaas/posterchat/pkg/version"
)

func main() {
	cfg := server.DefaultConfig()

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP API bind address")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "HTTP bind address for Prometheus /metrics (empty to disable)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database file path")
	flag.StringVar(&cfg.DataDir, "data", cfg.DataDir, "Data directory for uploaded avatars")
	flag.StringVar(&cfg.SeedFile, "conferences-file", "", "YAML file defining conferences to create on startup")
	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Grace period for in-flight requests on shutdown")
	flag.DurationVar(&cfg.MetricsLogEvery, "metrics-log-interval", cfg.MetricsLogEvery, "Interval for periodic metrics log lines (0 to disable)")
	flag.BoolVar(&cfg.ExportUsers, "export-users", false, "Export all users as YAML and exit")
	flag.BoolVar(&cfg.ExportConferences, "export-conferences", false, "Export all conferences as YAML and exit")

	logLevel := flag.String("log-level", "info", "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("posterchat", version.Full())
		return
	}

	// Configure structured logging
	if err := logging.Setup(logging.Options{
		Level:  *logLevel,
		Format: *logFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	st, err := datastore.NewProviderFactory(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}

	// Handle export commands (run and exit)
	if cfg.ExportUsers || cfg.ExportConferences {
		defer func() { _ = st.Close() }()
		ctx := context.Background()

		if cfg.ExportUsers {
			data, err := server.ExportUsersYAML(ctx, st)
			if err != nil {
				slog.Error("export users", "err", err)
				os.Exit(1)
			}
			fmt.Print(string(data))
		}
		if cfg.ExportConferences {
			data, err := server.ExportConferencesYAML(ctx, st)
			if err != nil {
				slog.Error("export conferences", "err", err)
				os.Exit(1)
			}
			fmt.Print(string(data))
		}
		return
	}

	slog.Info("starting PosterChat", "version", version.String())
	srv, err := server.New(cfg, server.Dependencies{Store: st})
	if err != nil {
		slog.Error("server setup", "err", err)
		os.Exit(1)
	}
	if err := srv.Run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
