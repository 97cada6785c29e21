package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vnshop/api/internal/platform/httpx"
	"github.com/vnshop/api/internal/services"
)

const maxVoucherBodySize = 8 * 1024

// VoucherHandlers exposes voucher quoting to shoppers.
type VoucherHandlers struct {
	vouchers services.VoucherService
}

// NewVoucherHandlers constructs voucher handlers.
func NewVoucherHandlers(vouchers services.VoucherService) *VoucherHandlers {
	return &VoucherHandlers{vouchers: vouchers}
}

// Routes registers the /vouchers endpoints.
func (h *VoucherHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/apply", h.apply)
}

type applyVoucherRequest struct {
	Code     string `json:"code"`
	Subtotal int64  `json:"subtotal"`
}

type voucherQuotePayload struct {
	Voucher  voucherPayload `json:"voucher"`
	Subtotal int64          `json:"subtotal"`
	Discount int64          `json:"discount"`
	Total    int64          `json:"total"`
}

func (h *VoucherHandlers) apply(w http.ResponseWriter, r *http.Request) {
	var req applyVoucherRequest
	if !decodeBody(w, r, maxVoucherBodySize, &req) {
		return
	}
	quote, err := h.vouchers.Apply(r.Context(), services.ApplyVoucherCommand{Code: req.Code, Subtotal: req.Subtotal})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "Voucher applied", voucherQuotePayload{
		Voucher: voucherPayload{
			Code:        quote.Code,
			Type:        string(quote.Type),
			Value:       quote.Value,
			MinOrder:    quote.MinOrder,
			MaxDiscount: quote.MaxDiscount,
			UsageLimit:  quote.UsageLimit,
			Used:        quote.Used,
			StartAt:     formatTime(quote.StartAt),
			EndAt:       formatTime(quote.EndAt),
		},
		Subtotal: quote.Subtotal,
		Discount: quote.Discount,
		Total:    quote.Total,
	})
}
