package database

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ecobazaar/storefront/pkg/tracing"
)

var slowQueryCfg struct {
	mu        sync.RWMutex
	threshold time.Duration
	logger    *slog.Logger
}

// SetSlowQueryLogging logs operations slower than threshold as warnings.
// A zero threshold disables it.
func SetSlowQueryLogging(threshold time.Duration, logger *slog.Logger) {
	slowQueryCfg.mu.Lock()
	defer slowQueryCfg.mu.Unlock()
	slowQueryCfg.threshold = threshold
	slowQueryCfg.logger = logger
}

func getSlowQueryConfig() (time.Duration, *slog.Logger) {
	slowQueryCfg.mu.RLock()
	defer slowQueryCfg.mu.RUnlock()
	return slowQueryCfg.threshold, slowQueryCfg.logger
}

// TraceQuery starts a client span for a storage operation against system
// ("postgresql", "redis"). Call the returned func with the operation's error:
//
//	ctx, end := database.TraceQuery(ctx, "postgresql", "kv.get", getSQL)
//	defer func() { end(err) }()
func TraceQuery(ctx context.Context, system, operation, statement string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", system),
			attribute.String("db.operation", operation),
			attribute.String("db.statement", statement),
		),
	)

	return ctx, func(err error) {
		tracing.RecordError(span, err)
		span.End()

		threshold, logger := getSlowQueryConfig()
		if threshold <= 0 || logger == nil {
			return
		}
		if elapsed := time.Since(start); elapsed >= threshold {
			attrs := []any{
				slog.String("db.system", system),
				slog.String("operation", operation),
				slog.Duration("duration", elapsed),
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			}
			logger.WarnContext(ctx, "slow query detected", attrs...)
		}
	}
}
