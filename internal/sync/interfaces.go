// Package sync implements incremental synchronisation of the remote reports
// dataset into the local cache.
//
// The package contains three layers:
//
//   - [Merge], [Published] and [LatestUpdatedAt] are pure functions over
//     datasets.
//   - [PageFetcher] walks the API with an updated_since cursor, folding
//     every page into the working dataset with Merge.
//   - [Syncer] runs one pass as an explicit state machine (cold, warm and
//     fallback paths), persisting to a [Store] and publishing to a [Sink].
//
// [Engine] wraps a Syncer with telemetry, refuses overlapping passes and
// provides the polling loop used by the daemon.
package sync

import (
	"context"

	"github.com/njoerd114/reportsync/internal/model"
)

// PageSource returns one page of reports updated since the cursor.
// Implemented by [reportsapi.Client]. Implementations retry transient
// failures themselves; a returned error is terminal for the pass.
type PageSource interface {
	FetchPage(ctx context.Context, updatedSince string, limit int) ([]model.Report, error)
}

// Store is the persistent key-value store holding the cached dataset.
// Implemented by [state.SQLiteStore] and [state.RedisStore].
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// Sink receives the externally visible results of a pass.
// Implemented by [publish.Slots] and [publish.FileSink].
type Sink interface {
	// PublishReports replaces the published dataset. Tombstones have
	// already been removed.
	PublishReports(reports []model.Report)

	// ReportError replaces the current human-readable error message.
	ReportError(message string)
}
