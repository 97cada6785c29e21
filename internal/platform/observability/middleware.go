package observability

import (
	"net"
	"net/http"
	"net/netip"
	"runtime/debug"
	"strings"
	"time"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vnshop/api/internal/platform/httpx"
	"github.com/vnshop/api/internal/platform/requestctx"
)

// RequestScope seeds the request context with base and the resolved caller address.
func RequestScope(base *zap.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestctx.WithLogger(r.Context(), base)
			ctx = requestctx.WithClientIP(ctx, ClientIP(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP resolves the caller address: the left-most parseable X-Forwarded-For entry, else the
// connection peer. IPv4-mapped addresses are unmapped. Returns "" when nothing parses.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	for _, hop := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if addr, err := netip.ParseAddr(strings.TrimSpace(hop)); err == nil {
			return addr.Unmap().String()
		}
	}
	host := strings.TrimSpace(r.RemoteAddr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap().String()
	}
	return ""
}

// AccessLog attaches request_id, trace and caller fields to the request logger and writes one
// line per finished request. 5xx responses mark the server span as failed.
func AccessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			fields := []zap.Field{
				zap.String("request_id", middleware.GetReqID(ctx)),
				zap.String("method", sanitize(r.Method, 10)),
			}
			if id := requestctx.TraceID(ctx); id != "" {
				fields = append(fields, zap.String("trace_id", id))
			}
			if ref := requestctx.CloudTrace(ctx); ref != "" {
				fields = append(fields, zap.String("logging.googleapis.com/trace", ref))
			}
			if ip := requestctx.ClientIP(ctx); ip != "" {
				fields = append(fields, zap.String("remote_ip", ip))
			}
			logger := requestctx.Logger(ctx).With(fields...)
			r = r.WithContext(requestctx.WithLogger(ctx, logger))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				route := routeOf(r)

				span := trace.SpanFromContext(r.Context())
				span.SetAttributes(semconv.HTTPResponseStatusCode(status), semconv.HTTPRoute(route))
				if status >= http.StatusInternalServerError {
					span.SetStatus(codes.Error, http.StatusText(status))
				}

				if ce := logger.Check(levelFor(status), "request completed"); ce != nil {
					ce.Write(
						zap.String("route", route),
						zap.Int("status", status),
						zap.Duration("latency", time.Since(started)),
						zap.Int("bytes", ww.BytesWritten()),
					)
				}
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func levelFor(status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= http.StatusBadRequest:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

// Recover turns a panic into a 500 envelope. http.ErrAbortHandler is re-raised so net/http can
// drop the connection.
func Recover(fallback *zap.Logger) func(http.Handler) http.Handler {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				switch v {
				case nil:
					return
				case http.ErrAbortHandler:
					panic(v)
				}
				requestctx.LoggerOr(r.Context(), fallback).Error("panic recovered",
					zap.Any("panic", v),
					zap.ByteString("stack", debug.Stack()),
				)
				httpx.WriteError(r.Context(), w, httpx.NewError("internal", "Internal server error", http.StatusInternalServerError))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// routeOf prefers the chi pattern so that ids do not explode log cardinality.
func routeOf(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return sanitize(p, 180)
		}
	}
	if r.URL == nil || r.URL.Path == "" {
		return "/"
	}
	return sanitize(r.URL.Path, 180)
}

// sanitize drops control runes and keeps at most limit runes.
func sanitize(s string, limit int) string {
	var b strings.Builder
	n := 0
	for _, c := range s {
		if n == limit {
			break
		}
		if unicode.IsControl(c) {
			continue
		}
		b.WriteRune(c)
		n++
	}
	return b.String()
}
