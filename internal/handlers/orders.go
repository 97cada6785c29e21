package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vnshop/api/internal/platform/auth"
	"github.com/vnshop/api/internal/platform/httpx"
	"github.com/vnshop/api/internal/services"
)

const maxOrderBodySize = 32 * 1024

// OrderHandlers exposes the shopper order endpoints.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	createGuard func(http.Handler) http.Handler
}

// OrderHandlersOption customises OrderHandlers.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderCreateMiddleware wraps POST /orders, typically with the idempotency middleware.
func WithOrderCreateMiddleware(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.createGuard = mw
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	create := http.Handler(http.HandlerFunc(h.createOrder))
	if h.createGuard != nil {
		create = h.createGuard(create)
	}
	r.Method(http.MethodPost, "/", create)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/cancel", h.cancelOrder)
	r.Post("/{orderID}/reorder", h.reorder)
	r.Put("/{orderID}/shipping-address", h.updateShippingAddress)
}

type orderItemRequest struct {
	Brand     string `json:"brand"`
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
}

type createOrderRequest struct {
	Items           []orderItemRequest     `json:"items"`
	ShippingAddress shippingAddressPayload `json:"shipping_address"`
	PaymentMethod   string                 `json:"payment_method"`
	TotalAmount     int64                  `json:"total_amount"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req createOrderRequest
	if !decodeBody(w, r, maxOrderBodySize, &req) {
		return
	}

	items := make([]services.OrderItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.OrderItemInput{
			Brand:     strings.TrimSpace(item.Brand),
			ProductID: strings.TrimSpace(item.ProductID),
			VariantID: strings.TrimSpace(item.VariantID),
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}

	order, err := h.orders.Create(r.Context(), services.CreateOrderCommand{
		UserID:          identity.UID,
		Items:           items,
		ShippingAddress: req.ShippingAddress.toDomain(),
		PaymentMethod:   req.PaymentMethod,
		TotalAmount:     req.TotalAmount,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusCreated, "Order created successfully", buildOrderPayload(order))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	orders, err := h.orders.ListForUser(r.Context(), identity.UID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, mapSlice(orders, buildOrderPayload))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	order, err := h.orders.Get(r.Context(), actorFrom(identity), pathParam(r, "orderID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	order, err := h.orders.Cancel(r.Context(), actorFrom(identity), pathParam(r, "orderID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "Order cancelled", buildOrderPayload(order))
}

type reorderItemPayload struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

func (h *OrderHandlers) reorder(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	payload, err := h.orders.Reorder(r.Context(), actorFrom(identity), pathParam(r, "orderID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, map[string]any{
		"order_id": payload.OrderID,
		"items": mapSlice(payload.Items, func(item services.ReorderItem) reorderItemPayload {
			return reorderItemPayload{ProductID: item.ProductID, VariantID: item.VariantID, Quantity: item.Quantity}
		}),
	})
}

func (h *OrderHandlers) updateShippingAddress(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req shippingAddressPayload
	if !decodeBody(w, r, maxOrderBodySize, &req) {
		return
	}
	order, err := h.orders.UpdateShippingAddress(r.Context(), actorFrom(identity), pathParam(r, "orderID"), req.toDomain())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "Shipping address updated", buildOrderPayload(order))
}
