// Package requestctx carries per-request values between the edge middlewares, handlers and
// services.
package requestctx

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type key uint8

const (
	loggerKey key = iota + 1
	clientIPKey
	traceProjectKey
)

var nop = zap.NewNop()

func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// Logger returns the request logger or a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	return LoggerOr(ctx, nop)
}

// LoggerOr returns the request logger, or fallback outside a request.
func LoggerOr(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	return fallback
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, strings.TrimSpace(ip))
}

// ClientIP is the caller address resolved at the edge, or "".
func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

// WithTraceProject records the GCP project traces are exported to, for log correlation.
func WithTraceProject(ctx context.Context, projectID string) context.Context {
	return context.WithValue(ctx, traceProjectKey, strings.TrimSpace(projectID))
}

// TraceID is the hex id of the active span, or "".
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// CloudTrace returns the logging.googleapis.com/trace value linking a log line to its trace.
func CloudTrace(ctx context.Context) string {
	project, _ := ctx.Value(traceProjectKey).(string)
	id := TraceID(ctx)
	if project == "" || id == "" {
		return ""
	}
	return "projects/" + project + "/traces/" + id
}
