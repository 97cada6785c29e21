package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	domain "github.com/vnshop/api/internal/domain"
	"github.com/vnshop/api/internal/platform/auth"
	"github.com/vnshop/api/internal/platform/httpx"
	"github.com/vnshop/api/internal/services"
)

const maxAdminBodySize = 64 * 1024

// Admin list defaults and sortable fields.
const (
	adminUserPageSize    = 50
	adminBrandPageSize   = 30
	adminProductPageSize = 50
	adminOrderPageSize   = 30
	adminVoucherPageSize = 30
)

var (
	userSortFields    = map[string]string{"created_at": "created_at", "updated_at": "updated_at", "username": "username", "email": "email"}
	brandSortFields   = map[string]string{"created_at": "created_at", "updated_at": "updated_at", "name": "name"}
	productSortFields = map[string]string{"created_at": "created_at", "updated_at": "updated_at", "base_price": "base_price", "sold": "sold", "views": "views"}
	orderSortFields   = map[string]string{"created_at": "created_at", "updated_at": "updated_at", "total_amount": "total_amount"}
	voucherSortFields = map[string]string{"created_at": "created_at", "updated_at": "updated_at", "start_at": "start_at", "end_at": "end_at"}
)

// AdminHandlers serves the back office. Every route requires the admin role.
type AdminHandlers struct {
	authn     *auth.Authenticator
	users     services.UserService
	catalog   services.CatalogService
	orders    services.OrderService
	vouchers  services.VoucherService
	dashboard services.DashboardService
	uploads   services.UploadService
}

// AdminServices bundles the services behind the admin routes. Uploads may be nil.
type AdminServices struct {
	Users     services.UserService
	Catalog   services.CatalogService
	Orders    services.OrderService
	Vouchers  services.VoucherService
	Dashboard services.DashboardService
	Uploads   services.UploadService
}

// NewAdminHandlers constructs admin handlers.
func NewAdminHandlers(authn *auth.Authenticator, svc AdminServices) *AdminHandlers {
	return &AdminHandlers{
		authn:     authn,
		users:     svc.Users,
		catalog:   svc.Catalog,
		orders:    svc.Orders,
		vouchers:  svc.Vouchers,
		dashboard: svc.Dashboard,
		uploads:   svc.Uploads,
	}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	r.Get("/dashboard", h.getDashboard)
	r.Route("/users", h.userRoutes)
	r.Route("/brands", h.brandRoutes)
	r.Route("/products", h.productRoutes)
	r.Route("/variants", h.variantRoutes)
	r.Route("/orders", h.orderRoutes)
	r.Route("/vouchers", h.voucherRoutes)
}

type dailyRevenuePayload struct {
	Date    string `json:"date"`
	Revenue int64  `json:"revenue"`
	Orders  int    `json:"orders"`
}

type dashboardPayload struct {
	Days   int `json:"days"`
	Counts struct {
		Users    int `json:"users"`
		Brands   int `json:"brands"`
		Products int `json:"products"`
		Orders   int `json:"orders"`
	} `json:"counts"`
	PaidRevenue  int64                 `json:"paid_revenue"`
	Daily        []dailyRevenuePayload `json:"daily_revenue"`
	TopProducts  []productPayload      `json:"top_products"`
	RecentOrders []orderPayload        `json:"recent_orders"`
	From         string                `json:"from"`
	To           string                `json:"to"`
}

func (h *AdminHandlers) getDashboard(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(queryValue(r.URL.Query(), "days"))
	stats, err := h.dashboard.Stats(r.Context(), days)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	payload := dashboardPayload{
		Days:        stats.Days,
		PaidRevenue: stats.PaidRevenue,
		Daily: mapSlice(stats.Daily, func(d domain.DailyRevenue) dailyRevenuePayload {
			return dailyRevenuePayload{Date: d.Date, Revenue: d.Revenue, Orders: d.Orders}
		}),
		TopProducts:  mapSlice(stats.TopProducts, buildProductPayload),
		RecentOrders: mapSlice(stats.RecentOrders, buildOrderPayload),
		From:         formatTime(stats.From),
		To:           formatTime(stats.To),
	}
	payload.Counts.Users = stats.Users
	payload.Counts.Brands = stats.Brands
	payload.Counts.Products = stats.Products
	payload.Counts.Orders = stats.Orders
	httpx.WriteData(w, http.StatusOK, payload)
}
