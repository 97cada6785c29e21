package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vnshop/api/internal/platform/auth"
	"github.com/vnshop/api/internal/platform/httpx"
	"github.com/vnshop/api/internal/services"
)

const maxReviewBodySize = 32 * 1024

// ReviewHandlers exposes product reviews and their reply threads.
type ReviewHandlers struct {
	authn   *auth.Authenticator
	reviews services.ReviewService
}

// NewReviewHandlers constructs a new ReviewHandlers instance.
func NewReviewHandlers(authn *auth.Authenticator, reviews services.ReviewService) *ReviewHandlers {
	return &ReviewHandlers{
		authn:   authn,
		reviews: reviews,
	}
}

// Routes registers the /reviews endpoints. Reads are public.
func (h *ReviewHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/product/{productID}", h.listByProduct)
	r.Get("/thread/{rootID}", h.listThread)
	r.Group(func(authed chi.Router) {
		if h.authn != nil {
			authed.Use(h.authn.RequireFirebaseAuth())
		}
		authed.Post("/", h.createReview)
		authed.Delete("/{reviewID}", h.deleteReview)
	})
}

type createReviewRequest struct {
	ProductID string `json:"product_id"`
	Content   string `json:"content"`
	Rating    int    `json:"rating"`
	ParentID  string `json:"parent_id"`
}

func (h *ReviewHandlers) createReview(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req createReviewRequest
	if !decodeBody(w, r, maxReviewBodySize, &req) {
		return
	}
	review, err := h.reviews.Create(r.Context(), services.CreateReviewCommand{
		UserID:    identity.UID,
		ProductID: req.ProductID,
		Content:   req.Content,
		Rating:    req.Rating,
		ParentID:  req.ParentID,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusCreated, "Review created", buildReviewPayload(services.ReviewView{Review: review}))
}

func (h *ReviewHandlers) listByProduct(w http.ResponseWriter, r *http.Request) {
	views, err := h.reviews.ListByProduct(r.Context(), pathParam(r, "productID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, mapSlice(views, buildReviewPayload))
}

func (h *ReviewHandlers) listThread(w http.ResponseWriter, r *http.Request) {
	views, err := h.reviews.ListThread(r.Context(), pathParam(r, "rootID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, mapSlice(views, buildReviewPayload))
}

func (h *ReviewHandlers) deleteReview(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	deleted, err := h.reviews.Delete(r.Context(), actorFrom(identity), pathParam(r, "reviewID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "Review deleted", map[string]int{"deleted": deleted})
}
