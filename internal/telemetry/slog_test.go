package telemetry

import (
	"context"
	"errors"
	"log/slog"
	gosync "sync"
	"testing"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// memExporter keeps exported records in memory.
type memExporter struct {
	mu      gosync.Mutex
	records []sdklog.Record
}

func (e *memExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *memExporter) Shutdown(context.Context) error   { return nil }
func (e *memExporter) ForceFlush(context.Context) error { return nil }

func newTestLogger(t *testing.T, level slog.Level) (*slog.Logger, *memExporter) {
	t.Helper()
	exp := &memExporter{}
	lp := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exp)))
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })
	return slog.New(newLogHandler(lp, level)), exp
}

func attrs(r sdklog.Record) map[string]otellog.Value {
	out := map[string]otellog.Value{}
	r.WalkAttributes(func(kv otellog.KeyValue) bool {
		out[kv.Key] = kv.Value
		return true
	})
	return out
}

// members returns the key/values of a map attribute.
func members(v otellog.Value) map[string]otellog.Value {
	out := map[string]otellog.Value{}
	for _, kv := range v.AsMap() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestLogHandler_EmitsRecord(t *testing.T) {
	logger, exp := newTestLogger(t, slog.LevelInfo)

	logger.With("component", "engine").
		WithGroup("sync").
		Warn("sync error", "kind", "api", "pages", 2, "error", errors.New("boom"))

	if len(exp.records) != 1 {
		t.Fatalf("records = %d, want 1", len(exp.records))
	}
	r := exp.records[0]
	if r.Body().AsString() != "sync error" {
		t.Errorf("body = %q", r.Body().AsString())
	}
	if r.Severity() != otellog.SeverityWarn {
		t.Errorf("severity = %v, want warn", r.Severity())
	}
	if r.InstrumentationScope().Name != logScope {
		t.Errorf("scope = %q, want %q", r.InstrumentationScope().Name, logScope)
	}
	got := attrs(r)
	if got["component"].AsString() != "engine" {
		t.Errorf("component = %v", got["component"])
	}
	group := members(got["sync"])
	if group["kind"].AsString() != "api" {
		t.Errorf("sync.kind = %v", group["kind"])
	}
	if group["pages"].AsInt64() != 2 {
		t.Errorf("sync.pages = %v", group["pages"])
	}
	if group["error"].AsString() != "boom" {
		t.Errorf("sync.error = %v", group["error"])
	}
}

func TestLogHandler_FiltersByLevel(t *testing.T) {
	logger, exp := newTestLogger(t, slog.LevelWarn)

	logger.Info("dropped")
	logger.Error("kept")

	if len(exp.records) != 1 || exp.records[0].Body().AsString() != "kept" {
		t.Errorf("records = %d, want only the error record", len(exp.records))
	}
}

func TestLogHandler_Severity(t *testing.T) {
	logger, exp := newTestLogger(t, slog.LevelDebug)
	want := []otellog.Severity{
		otellog.SeverityDebug,
		otellog.SeverityInfo,
		otellog.SeverityWarn,
		otellog.SeverityError,
	}

	logger.Debug("d")
	logger.Info("i")
	logger.Warn("w")
	logger.Error("e")

	if len(exp.records) != len(want) {
		t.Fatalf("records = %d, want %d", len(exp.records), len(want))
	}
	for i, r := range exp.records {
		if r.Severity() != want[i] {
			t.Errorf("record %q severity = %v, want %v", r.Body().AsString(), r.Severity(), want[i])
		}
	}
}

func TestLogHandler_InlineGroup(t *testing.T) {
	logger, exp := newTestLogger(t, slog.LevelDebug)

	logger.Debug("page", slog.Group("fetch", slog.Int("records", 5), slog.String("cursor", "c1")))

	if len(exp.records) != 1 {
		t.Fatalf("records = %d, want 1", len(exp.records))
	}
	group := members(attrs(exp.records[0])["fetch"])
	if group["records"].AsInt64() != 5 || group["cursor"].AsString() != "c1" {
		t.Errorf("fetch = %v", group)
	}
}
