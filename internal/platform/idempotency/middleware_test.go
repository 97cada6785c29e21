package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnshop/api/internal/platform/auth"
)

var t0 = time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

func placeOrder(uid, body, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid}))
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.False(t, body.Success)
	return body.Error
}

type countingHandler struct {
	calls  int
	status int
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.calls++
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(h.status)
	_, _ = w.Write([]byte(`{"success":true,"data":{"id":"ord_1"}}`))
}

func TestMiddlewareWithoutKeyAlwaysRuns(t *testing.T) {
	next := &countingHandler{status: http.StatusCreated}
	h := Middleware(NewMemoryStore())(next)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusCreated, serve(h, placeOrder("uid-1", `{"a":1}`, "")).Code)
	}
	assert.Equal(t, 2, next.calls)
}

func TestMiddlewareReplaysFirstSuccess(t *testing.T) {
	next := &countingHandler{status: http.StatusCreated}
	h := Middleware(NewMemoryStore(), WithClock(func() time.Time { return t0 }))(next)

	first := serve(h, placeOrder("uid-1", `{"a":1}`, "k-1"))
	second := serve(h, placeOrder("uid-1", `{"a":1}`, "k-1"))

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(replayHeader))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestMiddlewareScopesKeysPerUser(t *testing.T) {
	next := &countingHandler{status: http.StatusCreated}
	h := Middleware(NewMemoryStore())(next)

	serve(h, placeOrder("uid-1", `{"a":1}`, "shared"))
	rr := serve(h, placeOrder("uid-2", `{"a":1}`, "shared"))

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Empty(t, rr.Header().Get(replayHeader))
	assert.Equal(t, 2, next.calls)
}

func TestMiddlewareRejectsReusedKey(t *testing.T) {
	h := Middleware(NewMemoryStore())(&countingHandler{status: http.StatusOK})

	serve(h, placeOrder("uid-1", `{"a":1}`, "k-2"))
	rr := serve(h, placeOrder("uid-1", `{"a":2}`, "k-2"))

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "idempotency_key_conflict", errorCode(t, rr))
}

func TestMiddlewareInFlightKey(t *testing.T) {
	store := NewMemoryStore()
	next := &countingHandler{status: http.StatusCreated}
	h := Middleware(store, WithClock(func() time.Time { return t0 }), WithLockTimeout(time.Minute))(next)

	req := placeOrder("uid-1", `{"a":1}`, "k-3")
	key := Key{Scope: "uid-1", Value: "k-3"}
	_, err := store.Claim(context.Background(), key, fingerprintOf(req, []byte(`{"a":1}`)), t0, time.Minute)
	require.NoError(t, err)

	rr := serve(h, req)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
	assert.Equal(t, "idempotency_in_progress", errorCode(t, rr))
	assert.Zero(t, next.calls)

	// A stale claim from a crashed request frees itself once the lock expires.
	late := Middleware(store, WithClock(func() time.Time { return t0.Add(2 * time.Minute) }))(next)
	assert.Equal(t, http.StatusCreated, serve(late, placeOrder("uid-1", `{"a":1}`, "k-3")).Code)
	assert.Equal(t, 1, next.calls)
}

func TestMiddlewareFailureFreesKey(t *testing.T) {
	next := &countingHandler{status: http.StatusConflict}
	h := Middleware(NewMemoryStore())(next)

	assert.Equal(t, http.StatusConflict, serve(h, placeOrder("uid-1", `{"a":1}`, "k-4")).Code)
	next.status = http.StatusCreated
	assert.Equal(t, http.StatusCreated, serve(h, placeOrder("uid-1", `{"a":1}`, "k-4")).Code)
	assert.Equal(t, 2, next.calls)
}

func TestMiddlewareValidatesKeyAndBody(t *testing.T) {
	next := &countingHandler{status: http.StatusCreated}
	h := Middleware(NewMemoryStore(), WithMaxBody(8))(next)

	blank := placeOrder("uid-1", `{}`, "")
	blank.Header.Set("Idempotency-Key", "  ")
	rr := serve(h, blank)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_idempotency_key", errorCode(t, rr))

	rr = serve(h, placeOrder("uid-1", `{}`, strings.Repeat("k", maxKeyLength+1)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(h, placeOrder("uid-1", `{"items":[1,2,3]}`, "k-5"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, "payload_too_large", errorCode(t, rr))
	assert.Zero(t, next.calls)
}

type failingStore struct {
	*MemoryStore
	completeErr error
	abandoned   bool
}

func (s *failingStore) Complete(context.Context, Key, string, Response, time.Time, time.Duration) error {
	return s.completeErr
}

func (s *failingStore) Abandon(ctx context.Context, key Key) error {
	s.abandoned = true
	return s.MemoryStore.Abandon(ctx, key)
}

func TestMiddlewareCompleteFailureStillResponds(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore(), completeErr: errors.New("firestore unavailable")}
	h := Middleware(store)(&countingHandler{status: http.StatusCreated})

	rr := serve(h, placeOrder("uid-1", `{"a":1}`, "k-6"))

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), "ord_1")
	assert.True(t, store.abandoned)
}

func TestMemoryStorePurge(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	short := Key{Scope: "uid-1", Value: "short"}
	long := Key{Scope: "uid-1", Value: "long"}

	_, err := store.Claim(ctx, short, "f", t0, time.Minute)
	require.NoError(t, err)
	_, err = store.Claim(ctx, long, "f", t0, time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, long, "f", Response{Status: http.StatusCreated}, t0, time.Hour))

	removed, err := store.Purge(ctx, t0.Add(2*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	claim, err := store.Claim(ctx, long, "f", t0.Add(3*time.Minute), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplay, claim.Outcome)
	assert.Equal(t, http.StatusCreated, claim.Entry.Status)
}

func TestReplayableHeaderDropsHopByHop(t *testing.T) {
	got := replayableHeader(http.Header{
		"Content-Type":   {"application/json"},
		"Content-Length": {"42"},
		"Set-Cookie":     {"session=1"},
		"Location":       {"/orders/ord_1"},
	})
	assert.Equal(t, map[string][]string{
		"Content-Type": {"application/json"},
		"Location":     {"/orders/ord_1"},
	}, got)
}
