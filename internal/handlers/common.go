package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domain "github.com/vnshop/api/internal/domain"
	"github.com/vnshop/api/internal/platform/auth"
	"github.com/vnshop/api/internal/platform/httpx"
	"github.com/vnshop/api/internal/platform/pagination"
	"github.com/vnshop/api/internal/platform/requestctx"
	"github.com/vnshop/api/internal/services"
)

const defaultBodySize = 64 * 1024

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeBody reads a JSON body into dst and writes the failure response itself; callers return
// when it reports false.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, limit)
	if err != nil {
		switch {
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Request body is required", http.StatusBadRequest))
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "Request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Unable to read request body", http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Invalid JSON payload", http.StatusBadRequest))
		return false
	}
	return true
}

// requireIdentity returns the authenticated caller or writes 401.
func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "Authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func actorFrom(identity *auth.Identity) services.Actor {
	return services.Actor{UserID: strings.TrimSpace(identity.UID), Admin: identity.IsAdmin()}
}

func pathParam(r *http.Request, name string) string {
	return strings.TrimSpace(chi.URLParam(r, name))
}

// writeServiceError maps service failures onto the error envelope. FieldError messages are
// client safe; anything else is reported as a generic failure. 5xx causes are logged with the
// request logger since the envelope hides them.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, services.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, services.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, services.ErrInsufficientStock):
		status, code = http.StatusConflict, "insufficient_stock"
	case errors.Is(err, services.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, services.ErrInvalidSignature):
		status, code = http.StatusBadRequest, "invalid_signature"
	case errors.Is(err, services.ErrValidation):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, services.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, services.ErrUnavailable):
		status, code = http.StatusServiceUnavailable, "unavailable"
	}

	if status >= http.StatusInternalServerError {
		requestctx.Logger(ctx).Error("request failed", zap.Int("status", status), zap.Error(err))
	}

	message := http.StatusText(status)
	var fieldErr *services.FieldError
	if errors.As(err, &fieldErr) {
		message = fieldErr.Message
		httpx.WriteError(ctx, w, httpx.NewError(code, message, status).WithField(fieldErr.Field))
		return
	}
	if status == http.StatusInternalServerError {
		message = "Server error"
	}
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}

// pageFromQuery parses page, limit and sort for admin list endpoints.
func pageFromQuery(w http.ResponseWriter, r *http.Request, defaultLimit int, sortFields map[string]string) (domain.Page, bool) {
	params, err := pagination.Parse(r.URL.Query(), pagination.Options{
		DefaultLimit: defaultLimit,
		SortFields:   sortFields,
	})
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "Invalid sort field", http.StatusBadRequest).WithField("sort"))
		return domain.Page{}, false
	}
	order := domain.SortAsc
	if params.Sort.Desc {
		order = domain.SortDesc
	}
	return domain.Page{
		Page:      params.Page,
		Limit:     params.Limit,
		SortField: params.Sort.Field,
		SortOrder: order,
	}, true
}

func writePage[T any](w http.ResponseWriter, items []T, page domain.Page, total int) {
	if items == nil {
		items = []T{}
	}
	httpx.WritePage(w, items, httpx.NewMeta(page.Page, page.Limit, total))
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func mapSlice[S, T any](items []S, fn func(S) T) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		out = append(out, fn(item))
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	value := t.UTC().Format(time.RFC3339Nano)
	return &value
}

// parseOptionalTime accepts RFC3339 timestamps or plain YYYY-MM-DD dates.
func parseOptionalTime(raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	value := strings.TrimSpace(*raw)
	if value == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		ts = ts.UTC()
		return &ts, nil
	}
	ts, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

func queryValue(values url.Values, key string) string {
	return strings.TrimSpace(values.Get(key))
}
