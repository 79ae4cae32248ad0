package sync

import (
	"context"
	"errors"
	"log/slog"
	gosync "sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const (
	otelScope       = "reportsync/sync"
	spanPass        = "reportsync.pass"
	metricPasses    = "reportsync.sync.passes"
	metricFetched   = "reportsync.sync.records.fetched"
	metricPages     = "reportsync.sync.pages"
	metricPublished = "reportsync.sync.records.published"
	metricErrors    = "reportsync.sync.errors"
	metricDuration  = "reportsync.sync.duration"
)

// ErrPassInProgress is returned by [Engine.RunOnce] when another pass is
// still running.
var ErrPassInProgress = errors.New("sync pass already in progress")

// Engine runs [Syncer] passes one at a time, records a trace span and
// metrics for each, and drives the polling loop. Create one with
// [NewEngine] and start it with [Engine.Run].
type Engine struct {
	syncer       *Syncer
	pollInterval time.Duration
	log          *slog.Logger

	// running guards against overlapping passes.
	running gosync.Mutex

	// OTel instruments; no-ops when telemetry is disabled.
	tracer       trace.Tracer
	cntPasses    metric.Int64Counter
	cntFetched   metric.Int64Counter
	cntPages     metric.Int64Counter
	cntPublished metric.Int64Counter
	cntErrors    metric.Int64Counter
	histDuration metric.Float64Histogram
}

// NewEngine creates an Engine around syncer.
func NewEngine(syncer *Syncer, pollInterval time.Duration, logger *slog.Logger) *Engine {
	tracer := otel.Tracer(otelScope)
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	hist, err := meter.Float64Histogram(metricDuration,
		metric.WithDescription("Duration of a sync pass"),
		metric.WithUnit("s"),
	)
	if err != nil {
		logger.Error("creating OTel histogram", "name", metricDuration, "error", err)
		hist = noop.Float64Histogram{}
	}

	return &Engine{
		syncer:       syncer,
		pollInterval: pollInterval,
		log:          logger,

		tracer:       tracer,
		cntPasses:    mustCounter(metricPasses, "Number of sync passes by terminal state"),
		cntFetched:   mustCounter(metricFetched, "Number of report records received from the API"),
		cntPages:     mustCounter(metricPages, "Number of non-empty pages merged"),
		cntPublished: mustCounter(metricPublished, "Number of records in the published view"),
		cntErrors:    mustCounter(metricErrors, "Number of sync errors by kind"),
		histDuration: hist,
	}
}

// pass runs one Syncer pass, recording a trace span and metrics.
func (e *Engine) pass(ctx context.Context) Result {
	ctx, span := e.tracer.Start(ctx, spanPass)
	defer span.End()

	started := time.Now()
	res := e.syncer.Sync(ctx)

	stateAttr := attribute.String("sync.state", res.State.String())
	e.cntPasses.Add(ctx, 1, metric.WithAttributes(stateAttr))
	e.histDuration.Record(ctx, time.Since(started).Seconds(), metric.WithAttributes(stateAttr))
	if res.Fetched > 0 {
		e.cntFetched.Add(ctx, int64(res.Fetched))
	}
	if res.Pages > 0 {
		e.cntPages.Add(ctx, int64(res.Pages))
	}
	if res.DidPublish() {
		e.cntPublished.Add(ctx, int64(len(res.Published)))
	}
	for _, se := range res.Errors {
		e.cntErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("sync.error_kind", se.Kind.String())))
		span.RecordError(se)
	}

	span.SetAttributes(
		stateAttr,
		attribute.String("sync.path", pathString(res.Path)),
		attribute.Int("sync.pages", res.Pages),
		attribute.Int("sync.fetched", res.Fetched),
		attribute.Int("sync.published", len(res.Published)),
		attribute.Bool("sync.persisted", res.Persisted),
		attribute.String("sync.cursor", res.Cursor),
	)
	if res.State == Failed {
		span.SetStatus(codes.Error, "sync pass failed")
	}
	return res
}

// RunOnce performs a single pass and returns its result together with the
// joined pass errors. If a pass is already running it returns immediately
// with [ErrPassInProgress].
func (e *Engine) RunOnce(ctx context.Context) (Result, error) {
	if !e.running.TryLock() {
		return Result{}, ErrPassInProgress
	}
	defer e.running.Unlock()

	res := e.pass(ctx)
	return res, res.Err()
}

// Run performs a pass immediately and then one per poll interval until ctx
// is cancelled. Passes never overlap: a tick that arrives while a pass is
// still running is dropped by the ticker.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	e.runLogged(ctx, "initial sync pass")

	for {
		select {
		case <-ctx.Done():
			e.log.Info("sync engine shutting down")
			return ctx.Err()
		case <-ticker.C:
			e.runLogged(ctx, "sync pass")
		}
	}
}

func (e *Engine) runLogged(ctx context.Context, what string) {
	res, err := e.RunOnce(ctx)
	if errors.Is(err, ErrPassInProgress) {
		e.log.Warn(what+" skipped", "error", err)
		return
	}
	if err != nil {
		e.log.Error(what+" reported errors", "state", res.State.String(), "error", err)
	}
}
