package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/codedrift/driftscan/internal/api"
	"github.com/codedrift/driftscan/internal/config"
	"github.com/codedrift/driftscan/internal/db"
	"github.com/codedrift/driftscan/internal/scan"
	"github.com/codedrift/driftscan/internal/scheduler"
)

// Injected at build time via -ldflags; defaults to "dev".
var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	root := flag.String("root", "", "project root (overrides config)")
	once := flag.Bool("once", false, "run a single scan, print the summary, and exit")
	discover := flag.Bool("discover", false, "run discovery only and print candidate paths")
	flag.Parse()

	// Logging (initial, overridden below once config is loaded).
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if *root != "" {
		cfg.Root = *root
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("driftscan starting",
		"version", version,
		"root", cfg.Root,
		"db_path", cfg.DBPath,
		"log_level", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := cfg.ScanOptions()

	if *discover {
		scanner := scan.New(nil, opts, nil)
		candidates, errs, err := scanner.DiscoverOnly(ctx)
		if err != nil {
			slog.Error("discover", "error", err)
			os.Exit(1)
		}
		for _, c := range candidates {
			fmt.Println(c.Path)
		}
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "error: %s: %s\n", e.Path, e.Err)
		}
		return
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.RunMigrations(database); err != nil {
		slog.Error("run migrations", "error", err)
		os.Exit(1)
	}

	if *once {
		scanner := scan.New(database, opts, scan.LogSink{})
		d, err := scanner.Scan(ctx)
		if err != nil {
			os.Exit(1)
		}
		out, _ := json.MarshalIndent(d.Summary(), "", "  ")
		fmt.Println(string(out))
		return
	}

	// Serve mode: API plus scheduled scans.
	if err := scan.MarkStaleScansFailed(database); err != nil {
		slog.Warn("mark stale scans", "error", err)
	}

	mgr := scan.NewManager(database, opts, scan.LogSink{})

	sched := scheduler.New()
	if cfg.Schedule != "" {
		if err := sched.SetJob(cfg.Schedule, func() {
			slog.Info("scheduled scan triggered")
			if _, err := mgr.Start(context.Background(), "schedule"); err != nil {
				slog.Warn("scheduled scan start", "error", err)
			}
		}); err != nil {
			slog.Warn("invalid cron expression", "expr", cfg.Schedule, "error", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	srv := api.New(cfg.HTTPAddr, database, mgr, sched, version)
	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	// Let an in-flight scan observe cancellation and commit its partial diff.
	if _, err := mgr.Cancel(); err == nil {
		slog.Info("waiting for active scan to wind down")
		for mgr.Active() != nil {
			time.Sleep(50 * time.Millisecond)
		}
	}
	slog.Info("driftscan stopped")
}

// parseLogLevel converts a config string ("debug", "info", "warn", "error")
// to its slog.Level equivalent. Unknown values default to Info.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
