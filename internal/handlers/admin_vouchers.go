package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vnshop/api/internal/platform/httpx"
	"github.com/vnshop/api/internal/services"
)

func (h *AdminHandlers) voucherRoutes(r chi.Router) {
	r.Get("/", h.listVouchers)
	r.Post("/", h.createVoucher)
	r.Get("/{voucherID}", h.getVoucher)
	r.Patch("/{voucherID}", h.updateVoucher)
	r.Delete("/{voucherID}", h.deleteVoucher)
}

func (h *AdminHandlers) listVouchers(w http.ResponseWriter, r *http.Request) {
	page, ok := pageFromQuery(w, r, adminVoucherPageSize, voucherSortFields)
	if !ok {
		return
	}
	result, err := h.vouchers.List(r.Context(), services.VoucherFilter{
		Status: queryValue(r.URL.Query(), "status"),
		Page:   page,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writePage(w, mapSlice(result.Items, buildVoucherPayload), page, result.Total)
}

type voucherRequest struct {
	Code        *string `json:"code"`
	Type        *string `json:"type"`
	Value       *int64  `json:"value"`
	MinOrder    *int64  `json:"min_order"`
	MaxDiscount *int64  `json:"max_discount"`
	UsageLimit  *int64  `json:"usage_limit"`
	Used        *int64  `json:"used"`
	StartAt     *string `json:"start_at"`
	EndAt       *string `json:"end_at"`
	Status      *string `json:"status"`
}

// window parses start_at and end_at, writing a 400 on failure.
func (req voucherRequest) window(w http.ResponseWriter, r *http.Request) (*time.Time, *time.Time, bool) {
	start, err := parseOptionalTime(req.StartAt)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "Invalid startAt", http.StatusBadRequest).WithField("start_at"))
		return nil, nil, false
	}
	end, err := parseOptionalTime(req.EndAt)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "Invalid endAt", http.StatusBadRequest).WithField("end_at"))
		return nil, nil, false
	}
	return start, end, true
}

func (h *AdminHandlers) createVoucher(w http.ResponseWriter, r *http.Request) {
	var req voucherRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	start, end, ok := req.window(w, r)
	if !ok {
		return
	}
	input := services.VoucherInput{
		Code:        deref(req.Code),
		Type:        deref(req.Type),
		MinOrder:    req.MinOrder,
		MaxDiscount: req.MaxDiscount,
		UsageLimit:  req.UsageLimit,
		Used:        req.Used,
		StartAt:     start,
		EndAt:       end,
		Status:      deref(req.Status),
	}
	if req.Value != nil {
		input.Value = *req.Value
	}
	voucher, err := h.vouchers.Create(r.Context(), input)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusCreated, "Voucher created", buildVoucherPayload(voucher))
}

func (h *AdminHandlers) getVoucher(w http.ResponseWriter, r *http.Request) {
	voucher, err := h.vouchers.Get(r.Context(), pathParam(r, "voucherID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildVoucherPayload(voucher))
}

func (h *AdminHandlers) updateVoucher(w http.ResponseWriter, r *http.Request) {
	var req voucherRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	start, end, ok := req.window(w, r)
	if !ok {
		return
	}
	voucher, err := h.vouchers.Update(r.Context(), pathParam(r, "voucherID"), services.VoucherPatch{
		Code:        req.Code,
		Type:        req.Type,
		Value:       req.Value,
		MinOrder:    req.MinOrder,
		MaxDiscount: req.MaxDiscount,
		UsageLimit:  req.UsageLimit,
		Used:        req.Used,
		StartAt:     start,
		EndAt:       end,
		Status:      req.Status,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "Voucher updated", buildVoucherPayload(voucher))
}

func (h *AdminHandlers) deleteVoucher(w http.ResponseWriter, r *http.Request) {
	if err := h.vouchers.Delete(r.Context(), pathParam(r, "voucherID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "Voucher deleted", nil)
}
