package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/vnshop/api/internal/domain"
	"github.com/vnshop/api/internal/platform/httpx"
	"github.com/vnshop/api/internal/services"
)

func (h *AdminHandlers) orderRoutes(r chi.Router) {
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Patch("/{orderID}", h.updateOrder)
	r.Patch("/{orderID}/status", h.updateOrderStatus)
	r.Delete("/{orderID}", h.deleteOrder)
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	page, ok := pageFromQuery(w, r, adminOrderPageSize, orderSortFields)
	if !ok {
		return
	}
	query := r.URL.Query()
	result, err := h.orders.AdminList(r.Context(), services.AdminOrderFilter{
		Query:  queryValue(query, "q"),
		Status: queryValue(query, "status"),
		Page:   page,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	items := mapSlice(result.Orders.Items, func(o domain.Order) orderPayload {
		payload := buildOrderPayload(o)
		payload.Username = result.Usernames[o.UserID]
		return payload
	})
	writePage(w, items, page, result.Orders.Total)
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Get(r.Context(), services.Actor{Admin: true}, pathParam(r, "orderID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildOrderPayload(order))
}

type adminUpdateOrderRequest struct {
	Status          *string                 `json:"status"`
	PaymentMethod   *string                 `json:"payment_method"`
	TotalAmount     *int64                  `json:"total_amount"`
	ShippingAddress *shippingAddressPayload `json:"shipping_address"`
	Items           *[]orderItemRequest     `json:"items"`
}

func (h *AdminHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	var req adminUpdateOrderRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	cmd := services.UpdateOrderCommand{
		OrderID:       pathParam(r, "orderID"),
		Status:        req.Status,
		PaymentMethod: req.PaymentMethod,
		TotalAmount:   req.TotalAmount,
	}
	if req.ShippingAddress != nil {
		address := req.ShippingAddress.toDomain()
		cmd.ShippingAddress = &address
	}
	if req.Items != nil {
		lines := mapSlice(*req.Items, func(item orderItemRequest) domain.OrderLine {
			return domain.OrderLine{
				Brand:     item.Brand,
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Quantity:  item.Quantity,
				Price:     item.Price,
			}
		})
		cmd.Items = &lines
	}
	order, err := h.orders.AdminUpdate(r.Context(), cmd)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "Order updated", buildOrderPayload(order))
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req orderStatusRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	order, err := h.orders.UpdateStatus(r.Context(), pathParam(r, "orderID"), domain.OrderStatus(req.Status))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "Order status updated", buildOrderPayload(order))
}

func (h *AdminHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), pathParam(r, "orderID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "Order deleted", nil)
}
