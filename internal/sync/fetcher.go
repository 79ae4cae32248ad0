package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/njoerd114/reportsync/internal/model"
)

const (
	// DefaultPageLimit is the page size requested from the API.
	DefaultPageLimit = 20000

	// DefaultMaxPages bounds a fetch loop whose cursor never advances.
	DefaultMaxPages = 10000
)

// FetchOutcome is how a fetch loop ended.
type FetchOutcome int

const (
	// FetchComplete means a short page (or an empty page after at least
	// one non-empty page) ended the stream.
	FetchComplete FetchOutcome = iota
	// FetchEmpty means the very first page was empty; nothing was fetched.
	FetchEmpty
	// FetchFailed means a page request failed; Err holds the cause and
	// Working holds whatever was merged before the failure.
	FetchFailed
)

// String returns the outcome name.
func (o FetchOutcome) String() string {
	switch o {
	case FetchComplete:
		return "complete"
	case FetchEmpty:
		return "empty"
	case FetchFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FetchResult is the result of one fetch loop.
type FetchResult struct {
	Working []model.Report
	Cursor  string // cursor after the last successful page
	Pages   int    // non-empty pages merged
	Fetched int    // records received across those pages
	Outcome FetchOutcome
	Err     error
}

// PageFetcher pages through the API from a cursor, folding every page into
// a working dataset.
type PageFetcher struct {
	source   PageSource
	limit    int
	maxPages int
	log      *slog.Logger
}

// NewPageFetcher creates a PageFetcher. Non-positive limit and maxPages
// select [DefaultPageLimit] and [DefaultMaxPages].
func NewPageFetcher(source PageSource, limit, maxPages int, logger *slog.Logger) *PageFetcher {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &PageFetcher{source: source, limit: limit, maxPages: maxPages, log: logger}
}

// Limit returns the page size the fetcher requests.
func (f *PageFetcher) Limit() int { return f.limit }

// Fetch requests pages starting at cursor and merges them into seed. Only
// an exactly full page continues the loop. After each non-empty page the
// cursor moves to the updated_at of that page's last record. seed is not
// modified.
func (f *PageFetcher) Fetch(ctx context.Context, cursor string, seed []model.Report) FetchResult {
	res := FetchResult{Working: seed, Cursor: cursor}

	for {
		if res.Pages >= f.maxPages {
			res.Outcome = FetchFailed
			res.Err = fmt.Errorf("%w: %d pages from cursor %q", ErrTooManyPages, res.Pages, res.Cursor)
			return res
		}
		if err := ctx.Err(); err != nil {
			res.Outcome = FetchFailed
			res.Err = err
			return res
		}

		page, err := f.source.FetchPage(ctx, res.Cursor, f.limit)
		if err != nil {
			f.log.Debug("page fetch failed", "cursor", res.Cursor, "pages", res.Pages, "error", err)
			res.Outcome = FetchFailed
			res.Err = err
			return res
		}

		if len(page) == 0 {
			if res.Pages == 0 {
				res.Outcome = FetchEmpty
			} else {
				res.Outcome = FetchComplete
			}
			return res
		}

		res.Working = Merge(res.Working, page)
		res.Pages++
		res.Fetched += len(page)
		res.Cursor = page[len(page)-1].UpdatedAt

		f.log.Debug("merged page",
			"page", res.Pages,
			"records", len(page),
			"working", len(res.Working),
			"cursor", res.Cursor,
		)

		if len(page) != f.limit {
			res.Outcome = FetchComplete
			return res
		}
	}
}
