package state

import (
	"context"
	"fmt"
	"time"
)

// Backend names accepted by [Open].
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Store is the interface shared by both backends.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	UpdatedAt(ctx context.Context, key string) (time.Time, error)
	Close() error
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*RedisStore)(nil)
)

// Options selects and configures a backend.
type Options struct {
	Backend string

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string

	Redis RedisConfig
}

// Open opens the backend named in opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendSQLite:
		path := opts.SQLitePath
		if path == "" {
			p, err := DefaultDBPath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		s, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendRedis:
		s, err := OpenRedis(ctx, opts.Redis)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
