// Package publish holds the downstream sinks a sync pass writes to.
//
// [Slots] keeps the latest published view and the latest error message in
// memory with overwrite semantics. [FileSink] additionally mirrors every
// published view to a JSON file.
package publish

import (
	gosync "sync"

	"github.com/njoerd114/reportsync/internal/model"
)

// Slots is an in-memory sink. Each publish replaces the previous view and
// each error replaces the previous message. Safe for concurrent use.
type Slots struct {
	mu        gosync.RWMutex
	reports   []model.Report
	published bool
	message   string
}

// NewSlots returns empty slots.
func NewSlots() *Slots { return &Slots{} }

// PublishReports replaces the reports slot.
func (s *Slots) PublishReports(reports []model.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = reports
	s.published = true
}

// ReportError replaces the error slot.
func (s *Slots) ReportError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// Reports returns the last published view and whether anything has been
// published yet.
func (s *Slots) Reports() ([]model.Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reports, s.published
}

// ErrorMessage returns the last reported message, or "" when none.
func (s *Slots) ErrorMessage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.message
}
