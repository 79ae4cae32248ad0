package setup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/njoerd114/reportsync/internal/config"
	"github.com/njoerd114/reportsync/internal/state"
)

// CheckFunc requests one page from apiURL and returns how many records it
// held. The wizard uses it to check the endpoint before saving.
type CheckFunc func(ctx context.Context, apiURL string) (int, error)

// Wizard walks the user through writing a configuration file.
type Wizard struct {
	prompt *Prompter
	check  CheckFunc
	logger *slog.Logger
	w      io.Writer
}

// NewWizard creates a Wizard wired to the given I/O. check may be nil to
// skip the connectivity check.
func NewWizard(r io.Reader, w io.Writer, check CheckFunc, logger *slog.Logger) *Wizard {
	return &Wizard{
		prompt: NewPrompter(r, w),
		check:  check,
		logger: logger,
		w:      w,
	}
}

// Run asks for the API endpoint, cache backend, schedule and output file,
// then writes and re-validates the configuration at cfgPath.
func (wiz *Wizard) Run(ctx context.Context, cfgPath string) error {
	fmt.Fprintf(wiz.w, "\nWelcome to reportsync setup!\n")
	fmt.Fprintf(wiz.w, "This wizard writes a configuration file to %s.\n\n", cfgPath)

	if _, statErr := os.Stat(cfgPath); statErr == nil {
		fmt.Fprintf(wiz.w, "  Existing config found at %s\n", cfgPath)
		if !wiz.prompt.Confirm("Overwrite existing configuration?", false) {
			fmt.Fprintf(wiz.w, "\n  Keeping existing config.\n")
			return nil
		}
		fmt.Fprintf(wiz.w, "\n")
	}

	cfg := &config.Config{}

	// Step 1: API endpoint.
	fmt.Fprintf(wiz.w, "Step 1/4: Reports API\n")
	apiURL, err := wiz.askAPIURL(ctx)
	if err != nil {
		return err
	}
	cfg.APIURL = apiURL

	// Step 2: Cache backend.
	fmt.Fprintf(wiz.w, "Step 2/4: Cache\n")
	storage, err := wiz.askStorage()
	if err != nil {
		return err
	}
	cfg.Storage = storage

	// Step 3: Schedule.
	fmt.Fprintf(wiz.w, "Step 3/4: Schedule\n")
	cfg.PollInterval = wiz.prompt.Duration("How often should the daemon sync?", config.DefaultPollInterval, time.Minute, 24*time.Hour)
	cfg.LookbackMonths = wiz.prompt.Int("Months of history to fetch on first sync", config.DefaultLookbackMonths, 1, 120)
	fmt.Fprintf(wiz.w, "\n")

	// Step 4: Output and save.
	fmt.Fprintf(wiz.w, "Step 4/4: Output\n")
	cfg.Output = wiz.prompt.Optional("Write published reports to file")

	if err := cfg.Write(cfgPath); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if _, err := config.Load(cfgPath); err != nil {
		return fmt.Errorf("written config does not load: %w", err)
	}
	fmt.Fprintf(wiz.w, "  ✓ Config written to %s\n\n", cfgPath)

	fmt.Fprintf(wiz.w, "Setup complete!\n")
	fmt.Fprintf(wiz.w, "  Sync once:  reportsync sync-once\n")
	fmt.Fprintf(wiz.w, "  Run:        reportsync daemon\n")
	fmt.Fprintf(wiz.w, "  Status:     reportsync status\n\n")
	return nil
}

// askAPIURL prompts until a valid http(s) URL is given, then checks it.
func (wiz *Wizard) askAPIURL(ctx context.Context) (string, error) {
	var apiURL string
	for {
		apiURL = wiz.prompt.String("Reports API URL", "")
		u, err := url.ParseRequestURI(apiURL)
		if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
			break
		}
		fmt.Fprintf(wiz.w, "  (enter an http or https URL)\n")
	}

	if wiz.check == nil {
		fmt.Fprintf(wiz.w, "\n")
		return apiURL, nil
	}

	fmt.Fprintf(wiz.w, "  Contacting the reports API...")
	n, err := wiz.check(ctx, apiURL)
	if err != nil {
		fmt.Fprintf(wiz.w, " ✗\n")
		wiz.logger.Warn("reports API check failed", "url", apiURL, "error", err)
		if !wiz.prompt.Confirm(fmt.Sprintf("Could not reach the API (%v). Save anyway?", err), false) {
			return "", fmt.Errorf("cannot reach reports API: %w", err)
		}
		fmt.Fprintf(wiz.w, "\n")
		return apiURL, nil
	}
	fmt.Fprintf(wiz.w, " ✓ (%d recent record(s))\n\n", n)
	return apiURL, nil
}

func (wiz *Wizard) askStorage() (config.StorageConfig, error) {
	idx, err := wiz.prompt.Select("Cache backend", []string{
		"SQLite (local file)",
		"Redis (shared between hosts)",
	})
	if err != nil {
		return config.StorageConfig{}, fmt.Errorf("selecting cache backend: %w", err)
	}

	var sc config.StorageConfig
	if idx == 0 {
		defaultPath, err := state.DefaultDBPath()
		if err != nil {
			return config.StorageConfig{}, err
		}
		sc.Backend = state.BackendSQLite
		if p := wiz.prompt.String("Database file", defaultPath); p != defaultPath {
			sc.Path = p
		}
	} else {
		sc.Backend = state.BackendRedis
		sc.RedisAddr = wiz.prompt.String("Redis address", "localhost:6379")
		sc.RedisPassword = wiz.prompt.Optional("Redis password")
		sc.RedisDB = wiz.prompt.Int("Redis database", 0, 0, 15)
	}
	fmt.Fprintf(wiz.w, "\n")
	return sc, nil
}
