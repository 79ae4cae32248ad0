package publish

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/njoerd114/reportsync/internal/model"
)

// Sink receives published views and error messages.
type Sink interface {
	PublishReports(reports []model.Report)
	ReportError(message string)
}

// FileSink writes every published view to a JSON file and forwards both
// views and errors to an inner sink.
type FileSink struct {
	path  string
	inner Sink
	log   *slog.Logger
}

// NewFileSink creates a FileSink writing to path. inner may be nil.
func NewFileSink(path string, inner Sink, logger *slog.Logger) *FileSink {
	return &FileSink{path: path, inner: inner, log: logger}
}

// PublishReports writes reports to the output file, then forwards them. A
// write failure is logged; the inner sink still receives the view.
func (f *FileSink) PublishReports(reports []model.Report) {
	if err := f.write(reports); err != nil {
		f.log.Error("writing published reports", "path", f.path, "error", err)
	} else {
		f.log.Debug("wrote published reports", "path", f.path, "records", len(reports))
	}
	if f.inner != nil {
		f.inner.PublishReports(reports)
	}
}

// ReportError forwards message to the inner sink.
func (f *FileSink) ReportError(message string) {
	if f.inner != nil {
		f.inner.ReportError(message)
	}
}

// write replaces the output file atomically: readers see either the old or
// the new view, never a partial one.
func (f *FileSink) write(reports []model.Report) error {
	data, err := model.EncodeDataset(reports)
	if err != nil {
		return fmt.Errorf("encoding reports: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".reports-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("setting file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replacing %s: %w", f.path, err)
	}
	return nil
}
