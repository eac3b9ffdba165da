// Package ctxlogger decorates zap loggers with what the context knows about
// the caller: correlation id, span and acting user.
package ctxlogger

import (
	"context"
	"sync/atomic"

	"github.com/smallbiznis/aquabill/internal/actor"
	"github.com/smallbiznis/aquabill/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var serviceName atomic.Pointer[string]

// SetServiceName configures the service name added to every log entry.
func SetServiceName(name string) {
	serviceName.Store(&name)
}

// FromContext returns the global logger enriched with context metadata.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext enriches base with the fields ctx carries. Absent values are
// omitted rather than logged empty.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil {
		return base
	}

	fields := make([]zap.Field, 0, 6)
	if id := correlation.ID(ctx); id != "" {
		fields = append(fields, zap.String("correlation_id", id))
	}
	fields = append(fields, spanFields(ctx)...)
	if name := serviceName.Load(); name != nil {
		fields = append(fields, zap.String("service", *name))
	}
	if a, ok := actor.FromContext(ctx); ok {
		fields = append(fields, zap.String("actor_role", string(a.Role)))
		if a.UserID != 0 {
			fields = append(fields, zap.String("actor_id", a.UserID.String()))
		}
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

func spanFields(ctx context.Context) []zap.Field {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}
