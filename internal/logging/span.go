package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Span represents a logical unit of work, such as one verification or one webhook
// reconciliation, tied to a request trace.
type Span struct {
	name   string
	logger *slog.Logger
	start  time.Time
	failed error
}

// StartSpan derives a child span from ctx, enriching the logger with trace and span ids.
func StartSpan(ctx context.Context, name string, attrs ...any) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := FromContext(ctx)

	traceID := stringFrom(ctx, traceIDKey)
	if traceID == "" {
		traceID = uuid.NewString()
		ctx = withString(ctx, traceIDKey, traceID)
		logger = logger.With(slog.String("trace_id", traceID))
	}

	spanID := uuid.NewString()
	logger = logger.With(slog.String("span_id", spanID), slog.String("span_name", name))
	if parent := stringFrom(ctx, spanIDKey); parent != "" {
		logger = logger.With(slog.String("parent_span_id", parent))
	}
	if len(attrs) > 0 {
		logger = logger.With(attrs...)
	}

	ctx = WithLogger(ctx, logger)
	ctx = withString(ctx, spanIDKey, spanID)

	return ctx, &Span{name: name, logger: logger, start: time.Now()}
}

// Fail marks the span as failed; End then logs at error level.
func (s *Span) Fail(err error) {
	if s != nil {
		s.failed = err
	}
}

// End finalizes the span and emits a completion log entry.
func (s *Span) End() {
	if s == nil {
		return
	}
	if s.failed != nil {
		s.logger.Error("span failed", slog.Duration("duration", time.Since(s.start)), slog.Any("error", s.failed))
		return
	}
	s.logger.Info("span completed", slog.Duration("duration", time.Since(s.start)))
}
