package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnshop/api/internal/services"
)

type stubReviewService struct {
	createFn func(context.Context, services.CreateReviewCommand) (services.Review, error)
	threadFn func(context.Context, string) ([]services.ReviewView, error)
	deleteFn func(context.Context, services.Actor, string) (int, error)
}

func (s *stubReviewService) Create(ctx context.Context, cmd services.CreateReviewCommand) (services.Review, error) {
	return s.createFn(ctx, cmd)
}

func (s *stubReviewService) ListByProduct(ctx context.Context, productID string) ([]services.ReviewView, error) {
	return s.threadFn(ctx, productID)
}

func (s *stubReviewService) ListThread(ctx context.Context, rootID string) ([]services.ReviewView, error) {
	return s.threadFn(ctx, rootID)
}

func (s *stubReviewService) Delete(ctx context.Context, actor services.Actor, id string) (int, error) {
	return s.deleteFn(ctx, actor, id)
}

func reviewRouter(svc services.ReviewService) chi.Router {
	router := chi.NewRouter()
	router.Route("/reviews", NewReviewHandlers(nil, svc).Routes)
	return router
}

func TestReviewHandlersCreateReply(t *testing.T) {
	var captured services.CreateReviewCommand
	svc := &stubReviewService{
		createFn: func(_ context.Context, cmd services.CreateReviewCommand) (services.Review, error) {
			captured = cmd
			return services.Review{ID: "r2", ProductID: cmd.ProductID, UserID: cmd.UserID, Content: cmd.Content, ParentID: "r1", RootID: "r1", Level: 1}, nil
		},
	}

	body := `{"product_id":"p1","content":"Đúng size","parent_id":"r1"}`
	req := withUser(httptest.NewRequest(http.MethodPost, "/reviews", strings.NewReader(body)), "user-9")
	rr := httptest.NewRecorder()
	reviewRouter(svc).ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, services.CreateReviewCommand{UserID: "user-9", ProductID: "p1", Content: "Đúng size", ParentID: "r1"}, captured)
	envelope := decodeEnvelope(t, rr)
	assert.Equal(t, "Review created", envelope["message"])
	data := envelope["data"].(map[string]any)
	assert.Equal(t, "r1", data["root_id"])
	assert.EqualValues(t, 1, data["level"])
}

func TestReviewHandlersCreateRequiresIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/reviews", strings.NewReader(`{"product_id":"p1"}`))
	rr := httptest.NewRecorder()
	reviewRouter(&stubReviewService{}).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestReviewHandlersMissingParent(t *testing.T) {
	svc := &stubReviewService{
		createFn: func(context.Context, services.CreateReviewCommand) (services.Review, error) {
			return services.Review{}, &services.FieldError{Kind: services.ErrNotFound, Field: "parent_id", Message: "Parent review not found"}
		},
	}
	req := withUser(httptest.NewRequest(http.MethodPost, "/reviews", strings.NewReader(`{"product_id":"p1","content":"x","parent_id":"gone"}`)), "user-9")
	rr := httptest.NewRecorder()
	reviewRouter(svc).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	body := decodeEnvelope(t, rr)
	assert.Equal(t, "Parent review not found", body["message"])
	assert.Equal(t, "parent_id", body["field"])
}

func TestReviewHandlersListThread(t *testing.T) {
	created := time.Date(2025, 5, 2, 3, 4, 5, 0, time.UTC)
	var asked string
	svc := &stubReviewService{
		threadFn: func(_ context.Context, id string) ([]services.ReviewView, error) {
			asked = id
			return []services.ReviewView{
				{Review: services.Review{ID: "r1", ProductID: "p1", UserID: "u1", Content: "Tốt", Rating: 5, CreatedAt: created}, Username: "lan"},
				{Review: services.Review{ID: "r2", ProductID: "p1", UserID: "u2", Content: "Cảm ơn", ParentID: "r1", RootID: "r1", Level: 1, CreatedAt: created}},
			}, nil
		},
	}
	rr := httptest.NewRecorder()
	reviewRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reviews/thread/r1", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "r1", asked)
	items := decodeEnvelope(t, rr)["data"].([]any)
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	assert.Equal(t, "lan", first["username"])
	assert.EqualValues(t, 5, first["rating"])
	assert.Equal(t, "r1", items[1].(map[string]any)["parent_id"])
}

func TestReviewHandlersDelete(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		deleted int
	}{
		{name: "owner", status: http.StatusOK, deleted: 3},
		{name: "not owner", err: &services.FieldError{Kind: services.ErrForbidden, Message: "Not allowed"}, status: http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var actor services.Actor
			svc := &stubReviewService{
				deleteFn: func(_ context.Context, a services.Actor, id string) (int, error) {
					actor = a
					assert.Equal(t, "r1", id)
					return tc.deleted, tc.err
				},
			}
			rr := httptest.NewRecorder()
			reviewRouter(svc).ServeHTTP(rr, withUser(httptest.NewRequest(http.MethodDelete, "/reviews/r1", nil), "user-9"))

			assert.Equal(t, tc.status, rr.Code)
			assert.Equal(t, "user-9", actor.UserID)
			body := decodeEnvelope(t, rr)
			if tc.err != nil {
				assert.Equal(t, "Not allowed", body["message"])
				return
			}
			assert.EqualValues(t, tc.deleted, body["data"].(map[string]any)["deleted"])
		})
	}
}
