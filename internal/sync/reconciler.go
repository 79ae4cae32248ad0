package sync

import (
	"time"

	"github.com/njoerd114/reportsync/internal/model"
)

// Merge returns working with page applied: every record whose id appears
// in page is dropped, then the page's records are appended in order. When
// an id occurs more than once in page only its last occurrence is kept.
// Neither input is modified.
func Merge(working, page []model.Report) []model.Report {
	// Index page positions by id; the last occurrence wins.
	last := make(map[string]int, len(page))
	for i, r := range page {
		last[r.ID] = i
	}

	out := make([]model.Report, 0, len(working)+len(last))
	for _, r := range working {
		if _, replaced := last[r.ID]; !replaced {
			out = append(out, r)
		}
	}
	for i, r := range page {
		if last[r.ID] == i {
			out = append(out, r)
		}
	}
	return out
}

// Published returns the records of ds that are not tombstones, in order.
// The result is never nil.
func Published(ds []model.Report) []model.Report {
	out := make([]model.Report, 0, len(ds))
	for _, r := range ds {
		if !r.IsDeleted() {
			out = append(out, r)
		}
	}
	return out
}

// LatestUpdatedAt returns the updated_at string of the most recently
// updated record in ds. Parseable timestamps are compared as times and
// always beat unparseable ones, which fall back to string comparison.
// Returns "" for an empty dataset.
func LatestUpdatedAt(ds []model.Report) string {
	var (
		best     string
		bestTime time.Time
		parsed   bool
	)
	for _, r := range ds {
		t, err := r.UpdatedTime()
		if err != nil {
			if !parsed && r.UpdatedAt > best {
				best = r.UpdatedAt
			}
			continue
		}
		if !parsed || t.After(bestTime) {
			best, bestTime, parsed = r.UpdatedAt, t, true
		}
	}
	return best
}
