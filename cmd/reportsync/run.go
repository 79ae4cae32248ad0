package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	slogmulti "github.com/samber/slog-multi"

	"github.com/njoerd114/reportsync/internal/config"
	"github.com/njoerd114/reportsync/internal/logging"
	"github.com/njoerd114/reportsync/internal/model"
	"github.com/njoerd114/reportsync/internal/publish"
	"github.com/njoerd114/reportsync/internal/reportsapi"
	"github.com/njoerd114/reportsync/internal/state"
	syncp "github.com/njoerd114/reportsync/internal/sync"
	"github.com/njoerd114/reportsync/internal/telemetry"
)

// startSync is the shared implementation for daemon and sync-once modes.
func startSync(parent context.Context, f flags, daemon bool) error {
	if parent == nil {
		parent = context.Background()
	}

	// --- Config --------------------------------------------------------------

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("loading config from %q: %w", f.configPath, err)
	}

	// --- Logger --------------------------------------------------------------

	logger, level, closeLog := newLogger(cfg, f.verbose)
	defer closeLog.Close()
	slog.SetDefault(logger)

	logger.Info("config loaded",
		"api_url", cfg.APIURL,
		"poll_interval", cfg.PollInterval,
		"storage", cfg.Storage.Backend,
		"page_limit", cfg.PageLimit,
	)

	// --- Telemetry (optional) ------------------------------------------------

	if cfg.Telemetry != nil {
		shutdownTel, err := telemetry.Setup(parent, telemetry.Config{
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			Insecure:     cfg.Telemetry.Insecure,
			ServiceName:  cfg.Telemetry.ServiceName,
			Headers:      cfg.Telemetry.Headers,
			Version:      version,
		})
		if err != nil {
			logger.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			logger = slog.New(slogmulti.Fanout(logger.Handler(), telemetry.LogHandler(level)))
			slog.SetDefault(logger)
			logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.OTLPEndpoint)
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTel(flushCtx); err != nil {
					logger.Error("telemetry shutdown error", "error", err)
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// --- Cache store ---------------------------------------------------------

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("closing cache store", "error", closeErr)
		}
	}()
	logger.Info("cache store opened", "backend", cfg.Storage.Backend)

	// --- Reports API client --------------------------------------------------

	client, err := reportsapi.New(cfg.APIURL, logger,
		reportsapi.WithTimeout(cfg.RequestTimeout),
		reportsapi.WithRetryPolicy(reportsapi.RetryPolicy{
			Retries:   cfg.Retry.RetryCount(),
			BaseDelay: cfg.Retry.BaseDelay,
			MaxDelay:  cfg.Retry.MaxDelay,
		}),
	)
	if err != nil {
		return fmt.Errorf("initialising reports API client: %w", err)
	}

	// --- Sinks ---------------------------------------------------------------

	slots := publish.NewSlots()
	var sink syncp.Sink = slots
	if cfg.Output != "" {
		sink = publish.NewFileSink(cfg.Output, slots, logger)
		logger.Info("publishing to file", "path", cfg.Output)
	}

	// --- Sync engine ---------------------------------------------------------

	syncer := syncp.NewSyncer(client, store, sink, syncp.Options{
		PageLimit:      cfg.PageLimit,
		MaxPages:       cfg.MaxPages,
		LookbackMonths: cfg.LookbackMonths,
	}, logger)
	engine := syncp.NewEngine(syncer, cfg.PollInterval, logger)

	// --- Dispatch mode -------------------------------------------------------

	if !daemon {
		logger.Info("running single sync pass")
		res, err := engine.RunOnce(ctx)
		logger.Info("sync complete",
			"state", res.State.String(),
			"published", len(res.Published),
			"stored", res.Stored,
			"pages", res.Pages,
			"errors", len(res.Errors),
		)
		if f.print {
			if reports, ok := slots.Reports(); ok {
				if perr := writeJSON(os.Stdout, reports); perr != nil {
					return perr
				}
			}
		}
		if res.State == syncp.Failed {
			if err == nil {
				return errors.New("sync failed")
			}
			return fmt.Errorf("sync failed: %w", err)
		}
		if err != nil {
			logger.Warn("sync finished with errors", "message", slots.ErrorMessage(), "error", err)
		}
		return nil
	}

	logger.Info("daemon starting", "poll_interval", cfg.PollInterval)
	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("sync engine: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// newLogger builds the process logger from cfg. verbose forces debug level.
func newLogger(cfg *config.Config, verbose bool) (*slog.Logger, slog.Level, io.Closer) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	logger, closer := logging.New(logging.Options{
		Level:      level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	return logger, level, closer
}

func openStore(ctx context.Context, cfg *config.Config) (state.Store, error) {
	store, err := state.Open(ctx, state.Options{
		Backend:    cfg.Storage.Backend,
		SQLitePath: cfg.Storage.Path,
		Redis: state.RedisConfig{
			Addr:      cfg.Storage.RedisAddr,
			Password:  cfg.Storage.RedisPassword,
			DB:        cfg.Storage.RedisDB,
			KeyPrefix: cfg.Storage.KeyPrefix,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s cache store: %w", cfg.Storage.Backend, err)
	}
	return store, nil
}

func writeJSON(w io.Writer, reports []model.Report) error {
	data, err := model.EncodeDataset(reports)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
		return fmt.Errorf("writing reports: %w", err)
	}
	return nil
}
