package telemetry

import (
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"

	slogmulti "github.com/samber/slog-multi"

	"github.com/njoerd114/reportsync/internal/logging"
)

const logScope = "reportsync"

// LogHandler returns a slog handler that emits records at or above level
// through the global OTel logger provider. Call it after [Setup]; before
// that the global provider discards everything.
func LogHandler(level slog.Leveler) slog.Handler {
	return newLogHandler(global.GetLoggerProvider(), level)
}

func newLogHandler(provider otellog.LoggerProvider, level slog.Leveler) slog.Handler {
	bridge := otelslog.NewHandler(logScope, otelslog.WithLoggerProvider(provider))
	return slogmulti.Pipe(logging.MinLevel(level)).Handler(bridge)
}
