package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/njoerd114/reportsync/internal/config"
	"github.com/njoerd114/reportsync/internal/model"
	"github.com/njoerd114/reportsync/internal/state"
	syncp "github.com/njoerd114/reportsync/internal/sync"
)

// cacheSummary describes the cached dataset.
type cacheSummary struct {
	Records    int
	Tombstones int
	Newest     string // newest updated_at, "" when empty
	Bytes      int
}

func summarize(raw []byte) (cacheSummary, error) {
	ds, err := model.DecodeDataset(raw)
	if err != nil {
		return cacheSummary{}, err
	}
	s := cacheSummary{Records: len(ds), Bytes: len(raw), Newest: syncp.LatestUpdatedAt(ds)}
	for _, r := range ds {
		if r.IsDeleted() {
			s.Tombstones++
		}
	}
	return s, nil
}

// runStatus prints the configuration and the state of the cache.
func runStatus(ctx context.Context, w io.Writer, cfgPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	fmt.Fprintln(w, "reportsync status")
	fmt.Fprintln(w, "─────────────────")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(w, "  Config:    %s (%v)\n", cfgPath, err)
		return nil
	}
	fmt.Fprintf(w, "  Config:    %s ✓\n", cfgPath)
	fmt.Fprintf(w, "  API URL:   %s\n", cfg.APIURL)
	fmt.Fprintf(w, "  Poll:      %s\n", cfg.PollInterval)
	fmt.Fprintf(w, "  Storage:   %s\n", cfg.Storage.Backend)

	// status must not create the SQLite file as a side effect.
	if cfg.Storage.Backend == state.BackendSQLite {
		path, err := sqlitePath(cfg)
		if err != nil {
			fmt.Fprintf(w, "  Cache:     unavailable (%v)\n", err)
			return nil
		}
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(w, "  Cache:     empty (no cache file at %s)\n", path)
			return nil
		}
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(w, "  Cache:     unavailable (%v)\n", err)
		return nil
	}
	defer store.Close()

	raw, found, err := store.Get(ctx, syncp.ActiveKey)
	switch {
	case err != nil:
		fmt.Fprintf(w, "  Cache:     unreadable (%v)\n", err)
		return nil
	case !found:
		fmt.Fprintln(w, "  Cache:     empty (next pass is a cold sync)")
	default:
		sum, err := summarize(raw)
		if err != nil {
			fmt.Fprintf(w, "  Cache:     corrupt (%v)\n", err)
			break
		}
		fmt.Fprintf(w, "  Cache:     %d record(s), %d deleted, %s\n", sum.Records, sum.Tombstones, humanSize(int64(sum.Bytes)))
		if sum.Newest != "" {
			fmt.Fprintf(w, "  Newest:    %s\n", sum.Newest)
		}
		if at, err := store.UpdatedAt(ctx, syncp.ActiveKey); err == nil && !at.IsZero() {
			fmt.Fprintf(w, "  Written:   %s\n", at.Local().Format("2006-01-02 15:04:05"))
		}
	}

	for _, key := range syncp.DefaultLegacyKeys {
		if _, found, err := store.Get(ctx, key); err == nil && found {
			fmt.Fprintf(w, "  Legacy:    %q present (removed on next pass)\n", key)
		}
	}
	return nil
}

// sqlitePath resolves the cache file the sqlite backend would open.
func sqlitePath(cfg *config.Config) (string, error) {
	if cfg.Storage.Path != "" {
		return cfg.Storage.Path, nil
	}
	return state.DefaultDBPath()
}

// humanSize returns a human-readable byte count.
func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
