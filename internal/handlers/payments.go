package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vnshop/api/internal/platform/auth"
	"github.com/vnshop/api/internal/platform/httpx"
	"github.com/vnshop/api/internal/platform/observability"
	"github.com/vnshop/api/internal/platform/requestctx"
	"github.com/vnshop/api/internal/services"
)

const maxPaymentBodySize = 4 * 1024

// PaymentHandlers serves the VNPay redirect flow.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentService
}

// NewPaymentHandlers constructs payment handlers.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService) *PaymentHandlers {
	return &PaymentHandlers{authn: authn, payments: payments}
}

// Routes registers the /payments endpoints. The return URL is called by the shopper's browser
// after VNPay redirects, so it carries no bearer token and relies on the signature instead.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/vnpay/return", h.vnpayReturn)
	r.Group(func(authed chi.Router) {
		if h.authn != nil {
			authed.Use(h.authn.RequireFirebaseAuth())
		}
		authed.Post("/vnpay", h.createVNPayURL)
	})
}

type createPaymentRequest struct {
	OrderID string `json:"order_id"`
}

func (h *PaymentHandlers) createVNPayURL(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req createPaymentRequest
	if !decodeBody(w, r, maxPaymentBodySize, &req) {
		return
	}
	clientIP := requestctx.ClientIP(r.Context())
	if clientIP == "" {
		clientIP = observability.ClientIP(r)
	}
	url, err := h.payments.CreatePaymentURL(r.Context(), services.CreatePaymentURLCommand{
		Actor:    actorFrom(identity),
		OrderID:  strings.TrimSpace(req.OrderID),
		ClientIP: clientIP,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, map[string]string{"payment_url": url})
}

type paymentResultPayload struct {
	OrderID      string `json:"order_id"`
	Status       string `json:"status"`
	ResponseCode string `json:"response_code"`
	Duplicate    bool   `json:"duplicate,omitempty"`
}

// vnpayReturn answers success for every verified callback, including declined payments;
// data.status says whether the order was paid.
func (h *PaymentHandlers) vnpayReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.payments.HandleReturn(ctx, r.URL.Query())
	if err != nil {
		requestctx.Logger(ctx).Warn("vnpay return rejected", zap.Error(err))
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, result.Message, paymentResultPayload{
		OrderID:      result.OrderID,
		Status:       string(result.Status),
		ResponseCode: result.ResponseCode,
		Duplicate:    result.Duplicate,
	})
}
