package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vnshop/api/internal/platform/auth"
	"github.com/vnshop/api/internal/platform/httpx"
	"github.com/vnshop/api/internal/platform/requestctx"
)

const (
	defaultHeader  = "Idempotency-Key"
	replayHeader   = "X-Idempotent-Replay"
	maxKeyLength   = 255
	defaultMaxBody = 1 << 20
	anonymousScope = "anonymous"
	fingerprintSep = "\n"
)

// Option configures Middleware.
type Option func(*guard)

// WithHeader overrides the header carrying the key.
func WithHeader(name string) Option {
	return func(g *guard) {
		if name = strings.TrimSpace(name); name != "" {
			g.header = name
		}
	}
}

// WithTTL sets how long completed responses are replayed.
func WithTTL(ttl time.Duration) Option {
	return func(g *guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithLockTimeout sets how long an unfinished request holds its key.
func WithLockTimeout(lock time.Duration) Option {
	return func(g *guard) {
		if lock > 0 {
			g.lock = lock
		}
	}
}

// WithMaxBody caps the request body read for fingerprinting.
func WithMaxBody(n int64) Option {
	return func(g *guard) {
		if n > 0 {
			g.maxBody = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(g *guard) {
		if clock != nil {
			g.now = clock
		}
	}
}

type guard struct {
	store   Store
	header  string
	ttl     time.Duration
	lock    time.Duration
	maxBody int64
	now     func() time.Time
}

// Middleware makes a route safe to retry. Requests without the key header run normally. With a
// key, the first 2xx response is stored and replayed for the same request from the same caller;
// any other response frees the key so the client can retry after fixing the problem.
func Middleware(store Store, opts ...Option) func(http.Handler) http.Handler {
	g := &guard{
		store:   store,
		header:  defaultHeader,
		ttl:     DefaultTTL,
		lock:    DefaultLockTimeout,
		maxBody: defaultMaxBody,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.serve(w, r, next)
		})
	}
}

func (g *guard) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	raw, present := r.Header[http.CanonicalHeaderKey(g.header)]
	if !present {
		next.ServeHTTP(w, r)
		return
	}
	ctx := r.Context()
	value := strings.TrimSpace(strings.Join(raw, ","))
	if !validKey(value) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_idempotency_key", "Idempotency key must be 1-255 printable characters", http.StatusBadRequest))
		return
	}

	body, err := g.bufferBody(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "Request body is too large", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_body", "Unable to read request body", http.StatusBadRequest))
		return
	}

	key := Key{Scope: scopeOf(r), Value: value}
	fingerprint := fingerprintOf(r, body)
	logger := requestctx.Logger(ctx).With(zap.String("idempotencyScope", key.Scope))

	claim, err := g.store.Claim(ctx, key, fingerprint, g.now().UTC(), g.lock)
	switch {
	case errors.Is(err, ErrKeyReused):
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "Idempotency key already used for a different request", http.StatusConflict))
		return
	case err != nil:
		logger.Error("idempotency claim failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_unavailable", "Unable to process idempotency key", http.StatusServiceUnavailable))
		return
	}

	switch claim.Outcome {
	case OutcomeReplay:
		replay(w, claim.Entry)
		return
	case OutcomeInFlight:
		w.Header().Set("Retry-After", "1")
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "Another request is processing this idempotency key", http.StatusConflict))
		return
	}

	rec := &recorder{header: http.Header{}}
	next.ServeHTTP(rec, r)

	if rec.code() >= 200 && rec.code() < 300 {
		resp := Response{Status: rec.code(), Header: rec.header, Body: rec.body.Bytes()}
		if err := g.store.Complete(ctx, key, fingerprint, resp, g.now().UTC(), g.ttl); err != nil {
			logger.Warn("idempotency complete failed", zap.Error(err))
			g.abandon(r, key, logger)
		}
	} else {
		g.abandon(r, key, logger)
	}
	rec.writeTo(w)
}

func (g *guard) abandon(r *http.Request, key Key, logger *zap.Logger) {
	if err := g.store.Abandon(r.Context(), key); err != nil {
		logger.Warn("idempotency abandon failed", zap.Error(err))
	}
}

func (g *guard) bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, g.maxBody+1))
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > g.maxBody {
		return nil, &http.MaxBytesError{Limit: g.maxBody}
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func validKey(value string) bool {
	if value == "" || len(value) > maxKeyLength {
		return false
	}
	for i := 0; i < len(value); i++ {
		if value[i] < 0x21 || value[i] > 0x7e {
			return false
		}
	}
	return true
}

// scopeOf keeps keys from different users apart.
func scopeOf(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.UID != "" {
		return identity.UID
	}
	return anonymousScope
}

func fingerprintOf(r *http.Request, body []byte) string {
	h := sha256.New()
	for _, part := range []string{r.Method, r.URL.Path, r.URL.RawQuery} {
		_, _ = io.WriteString(h, part)
		_, _ = io.WriteString(h, fingerprintSep)
	}
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func replay(w http.ResponseWriter, entry Entry) {
	for name, values := range entry.Header {
		w.Header()[name] = append([]string(nil), values...)
	}
	w.Header().Set(replayHeader, "true")
	status := entry.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(entry.Body)
}

type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *recorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(p)
}

func (r *recorder) code() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *recorder) writeTo(w http.ResponseWriter) {
	for name, values := range r.header {
		w.Header()[name] = values
	}
	w.WriteHeader(r.code())
	_, _ = w.Write(r.body.Bytes())
}
