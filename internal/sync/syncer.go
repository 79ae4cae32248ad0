package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/njoerd114/reportsync/internal/model"
)

// State is a step of the sync pass state machine.
type State int

const (
	// ColdSync fetches from the lookback horizon with no cached data.
	ColdSync State = iota + 1
	// WarmSync fetches updates since the newest cached record.
	WarmSync
	// FallbackCache publishes the cached view unchanged.
	FallbackCache
	// FallbackFetch is a cold fetch after the cache could not be read.
	FallbackFetch
	// Done means the pass published a dataset.
	Done
	// Failed means the pass ended without publishing.
	Failed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case ColdSync:
		return "cold_sync"
	case WarmSync:
		return "warm_sync"
	case FallbackCache:
		return "fallback_cache"
	case FallbackFetch:
		return "fallback_fetch"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result describes one finished pass.
type Result struct {
	// State is the terminal state, Done or Failed.
	State State

	// Path lists every state visited, ending with State.
	Path []State

	// Published is the view handed to the sink. Nil when nothing was
	// published.
	Published []model.Report

	// Persisted reports whether the dataset was written to the store.
	Persisted bool

	// Stored is the number of records in the dataset that was persisted
	// (tombstones included); zero when nothing was written.
	Stored int

	Pages   int
	Fetched int
	Cursor  string

	// Errors lists every failure reported during the pass, in order.
	Errors []*Error
}

// DidPublish reports whether the sink received a dataset.
func (r Result) DidPublish() bool { return r.Published != nil }

// Err joins the pass errors, or returns nil when there were none.
func (r Result) Err() error {
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

func (r *Result) enter(s State) { r.Path = append(r.Path, s) }

func (r *Result) finish(s State) {
	r.State = s
	r.Path = append(r.Path, s)
}

// Options configures a [Syncer]. Zero values select the defaults.
type Options struct {
	// Key is the cache key of the dataset. Defaults to [ActiveKey].
	Key string

	// LegacyKeys are removed before each pass. Nil selects
	// [DefaultLegacyKeys]; an empty non-nil slice disables cleanup.
	LegacyKeys []string

	// PageLimit is the API page size. Defaults to [DefaultPageLimit].
	PageLimit int

	// MaxPages caps one fetch loop. Defaults to [DefaultMaxPages].
	MaxPages int

	// LookbackMonths is how far back a cold sync starts. Defaults to 1.
	LookbackMonths int

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Syncer runs sync passes. It holds no state between passes and does not
// guard against concurrent calls to Sync: overlapping passes race on the
// store key and the sink. Use [Engine] to serialise them.
type Syncer struct {
	store      Store
	sink       Sink
	fetcher    *PageFetcher
	key        string
	legacyKeys []string
	lookback   int
	now        func() time.Time
	log        *slog.Logger
}

// NewSyncer creates a Syncer reading pages from source, persisting to store
// and publishing to sink.
func NewSyncer(source PageSource, store Store, sink Sink, opts Options, logger *slog.Logger) *Syncer {
	s := &Syncer{
		store:      store,
		sink:       sink,
		fetcher:    NewPageFetcher(source, opts.PageLimit, opts.MaxPages, logger),
		key:        opts.Key,
		legacyKeys: opts.LegacyKeys,
		lookback:   opts.LookbackMonths,
		now:        opts.Now,
		log:        logger,
	}
	if s.key == "" {
		s.key = ActiveKey
	}
	if s.legacyKeys == nil {
		s.legacyKeys = DefaultLegacyKeys
	}
	if s.lookback <= 0 {
		s.lookback = 1
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// start is the CacheLoader's verdict.
type start int

const (
	startCold start = iota
	startWarm
	startLoadFailed
)

// Sync runs one pass: legacy cleanup, cache load, fetch loop, then persist
// and publish according to the path taken. It never panics on collaborator
// failures; every failure is reported to the sink and listed in the result.
func (s *Syncer) Sync(ctx context.Context) Result {
	var res Result

	for _, e := range CleanupLegacy(ctx, s.store, s.legacyKeys, s.log) {
		s.report(&res, e)
	}

	cached, verdict, loadErr := s.loadCache(ctx)
	switch verdict {
	case startWarm:
		s.warmSync(ctx, &res, cached)
	case startLoadFailed:
		s.report(&res, loadErr)
		s.coldSync(ctx, &res, FallbackFetch)
	default:
		s.coldSync(ctx, &res, ColdSync)
	}

	s.log.Info("sync pass finished",
		"state", res.State.String(),
		"path", pathString(res.Path),
		"pages", res.Pages,
		"fetched", res.Fetched,
		"published", len(res.Published),
		"persisted", res.Persisted,
		"errors", len(res.Errors),
	)
	return res
}

// loadCache reads the dataset under the active key. An absent key, a JSON
// null and an empty array all mean cold start.
func (s *Syncer) loadCache(ctx context.Context) ([]model.Report, start, *Error) {
	raw, found, err := s.store.Get(ctx, s.key)
	if err != nil {
		return nil, startLoadFailed, &Error{Kind: KindStorageRead, Key: s.key, op: opLoadCache, Err: err}
	}
	if !found {
		return nil, startCold, nil
	}
	ds, err := model.DecodeDataset(raw)
	if err != nil {
		return nil, startLoadFailed, &Error{Kind: KindStorageRead, Key: s.key, op: opLoadCache, Err: err}
	}
	if len(ds) == 0 {
		return nil, startCold, nil
	}
	return ds, startWarm, nil
}

// Horizon returns the cold-start cursor: LookbackMonths calendar months
// before now, in UTC.
func (s *Syncer) Horizon() string {
	return s.now().UTC().AddDate(0, -s.lookback, 0).Format(model.TimestampLayout)
}

// coldSync runs the ColdSync or FallbackFetch path. Both start from the
// horizon with an empty working set.
func (s *Syncer) coldSync(ctx context.Context, res *Result, state State) {
	res.enter(state)

	fr := s.fetcher.Fetch(ctx, s.Horizon(), nil)
	res.record(fr)

	switch fr.Outcome {
	case FetchEmpty:
		s.report(res, &Error{Kind: KindAPIEmptyResult, op: opEmptyAPI, Err: ErrEmptyResult})
		res.finish(Failed)
	case FetchFailed:
		s.report(res, &Error{Kind: KindAPI, op: opLoadAPI, Err: fr.Err})
		// Partial pages are published but never persisted.
		if len(fr.Working) > 0 {
			s.publish(res, fr.Working)
			res.finish(Done)
			return
		}
		res.finish(Failed)
	default:
		s.persist(ctx, res, fr.Working, opStoreCache)
		s.publish(res, fr.Working)
		res.finish(Done)
	}
}

// warmSync runs the WarmSync path seeded with the cached dataset.
func (s *Syncer) warmSync(ctx context.Context, res *Result, cached []model.Report) {
	res.enter(WarmSync)

	cursor := LatestUpdatedAt(cached)
	if cursor == "" {
		s.log.Warn("cached reports carry no updated_at, resuming from horizon", "records", len(cached))
		cursor = s.Horizon()
	}
	fr := s.fetcher.Fetch(ctx, cursor, cached)
	res.record(fr)

	switch fr.Outcome {
	case FetchEmpty:
		res.enter(FallbackCache)
		s.log.Debug("no report updates available", "cursor", fr.Cursor)
		s.publish(res, cached)
	case FetchFailed:
		res.enter(FallbackCache)
		s.report(res, &Error{Kind: KindAPI, op: opUpdateAPI, Err: fr.Err})
		s.publish(res, cached)
	default:
		s.persist(ctx, res, fr.Working, opUpdateCache)
		s.publish(res, fr.Working)
	}
	res.finish(Done)
}

func (r *Result) record(fr FetchResult) {
	r.Pages = fr.Pages
	r.Fetched = fr.Fetched
	r.Cursor = fr.Cursor
}

// persist writes ds under the active key. A failure is reported and does
// not stop the caller from publishing.
func (s *Syncer) persist(ctx context.Context, res *Result, ds []model.Report, o op) {
	data, err := model.EncodeDataset(ds)
	if err == nil {
		err = s.store.Set(ctx, s.key, data)
	}
	if err != nil {
		s.report(res, &Error{Kind: KindStorageWrite, Key: s.key, op: o, Err: err})
		return
	}
	res.Persisted = true
	res.Stored = len(ds)
}

// publish hands the tombstone-filtered view of ds to the sink.
func (s *Syncer) publish(res *Result, ds []model.Report) {
	view := Published(ds)
	s.sink.PublishReports(view)
	res.Published = view
}

func (s *Syncer) report(res *Result, e *Error) {
	res.Errors = append(res.Errors, e)
	s.log.Warn("sync error", "kind", e.Kind.String(), "error", e)
	s.sink.ReportError(e.Message())
}

func pathString(path []State) string {
	out := ""
	for i, st := range path {
		if i > 0 {
			out += ">"
		}
		out += st.String()
	}
	return out
}
