package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vnshop/api/internal/platform/httpx"
)

// RouteRegistrar adds one group's routes.
type RouteRegistrar func(r chi.Router)

// Route groups mounted under /api/v1.
const (
	GroupBrands        = "brands"
	GroupProducts      = "products"
	GroupVouchers      = "vouchers"
	GroupUsers         = "users"
	GroupProfile       = "profile"
	GroupAddresses     = "addresses"
	GroupOrders        = "orders"
	GroupPayments      = "payments"
	GroupNotifications = "notifications"
	GroupReviews       = "reviews"
	GroupAdmin         = "admin"
)

const (
	apiPrefix      = "/api/v1"
	requestTimeout = 60 * time.Second
)

type group struct {
	name        string
	routes      RouteRegistrar
	middlewares []func(http.Handler) http.Handler
}

type routerConfig struct {
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	groups      []*group
}

func (c *routerConfig) group(name string) *group {
	for _, g := range c.groups {
		if g.name == name {
			return g
		}
	}
	g := &group{name: name}
	c.groups = append(c.groups, g)
	return g
}

type Option func(*routerConfig)

// WithMiddlewares appends global middleware, run after request id, path cleaning and timeout.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(c *routerConfig) { c.middlewares = append(c.middlewares, mw...) }
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(c *routerConfig) { c.health = h }
}

// WithRoutes mounts reg at /api/v1/<name>.
func WithRoutes(name string, reg RouteRegistrar) Option {
	return func(c *routerConfig) { c.group(name).routes = reg }
}

// WithGroupMiddlewares wraps only the named group, e.g. a tighter rate limit on vouchers.
func WithGroupMiddlewares(name string, mw ...func(http.Handler) http.Handler) Option {
	return func(c *routerConfig) {
		g := c.group(name)
		g.middlewares = append(g.middlewares, mw...)
	}
}

// NewRouter builds the HTTP handler: health checks at the root, API groups under /api/v1. Request
// bodies under /api/v1 must be JSON.
func NewRouter(opts ...Option) chi.Router {
	cfg := &routerConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.CleanPath, middleware.Timeout(requestTimeout))
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", "No route for "+req.Method+" "+req.URL.Path, http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", req.Method+" is not allowed on "+req.URL.Path, http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(apiPrefix, func(api chi.Router) {
		api.Use(middleware.AllowContentType("application/json"))
		for _, g := range cfg.groups {
			if g.routes == nil {
				continue
			}
			api.Route("/"+g.name, func(sub chi.Router) {
				for _, mw := range g.middlewares {
					if mw != nil {
						sub.Use(mw)
					}
				}
				g.routes(sub)
			})
		}
	})
	return r
}
