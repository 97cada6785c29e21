package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vnshop/api/internal/platform/auth"
	"github.com/vnshop/api/internal/platform/httpx"
	"github.com/vnshop/api/internal/services"
)

const maxFavoriteBodySize = 4 * 1024

// CatalogHandlers serves the public brand and product catalog plus favorites.
type CatalogHandlers struct {
	authn     *auth.Authenticator
	catalog   services.CatalogService
	favorites services.FavoriteService
}

// NewCatalogHandlers constructs catalog handlers. favorites may be nil, in which case the
// favorite routes are not registered.
func NewCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogService, favorites services.FavoriteService) *CatalogHandlers {
	return &CatalogHandlers{
		authn:     authn,
		catalog:   catalog,
		favorites: favorites,
	}
}

// BrandRoutes registers the /brands endpoints.
func (h *CatalogHandlers) BrandRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listBrands)
	r.Get("/{slug}", h.getBrand)
}

// ProductRoutes registers the /products endpoints.
func (h *CatalogHandlers) ProductRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.searchProducts)
	r.Get("/search", h.searchProducts)
	for _, feed := range []string{"foryou", "popular", "newest"} {
		r.Get("/"+feed, h.feed(feed))
	}
	r.Get("/brand/{brandID}", h.listByBrand)

	if h.favorites != nil {
		r.Group(func(authed chi.Router) {
			if h.authn != nil {
				authed.Use(h.authn.RequireFirebaseAuth())
			}
			authed.Post("/favorite", h.toggleFavorite)
			authed.Get("/favorites", h.listFavorites)
		})
	}

	r.Get("/{productID}", h.getProduct)
}

func (h *CatalogHandlers) listBrands(w http.ResponseWriter, r *http.Request) {
	brands, err := h.catalog.ListBrands(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, mapSlice(brands, buildBrandPayload))
}

func (h *CatalogHandlers) getBrand(w http.ResponseWriter, r *http.Request) {
	brand, err := h.catalog.GetBrandBySlug(r.Context(), pathParam(r, "slug"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildBrandPayload(brand))
}

func (h *CatalogHandlers) feed(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		products, err := h.catalog.Feed(r.Context(), name)
		if err != nil {
			writeServiceError(r.Context(), w, err)
			return
		}
		httpx.WriteData(w, http.StatusOK, mapSlice(products, buildProductPayload))
	}
}

func (h *CatalogHandlers) listByBrand(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListByBrand(r.Context(), pathParam(r, "brandID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, mapSlice(products, buildProductPayload))
}

func (h *CatalogHandlers) searchProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.Search(r.Context(), queryValue(r.URL.Query(), "q"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, mapSlice(products, buildProductPayload))
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	detail, err := h.catalog.ViewProduct(r.Context(), pathParam(r, "productID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	payload := buildProductPayload(detail.Product)
	payload.Variants = mapSlice(detail.Variants, buildVariantPayload)
	httpx.WriteData(w, http.StatusOK, payload)
}

type toggleFavoriteRequest struct {
	ProductID string `json:"product_id"`
}

func (h *CatalogHandlers) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req toggleFavoriteRequest
	if !decodeBody(w, r, maxFavoriteBodySize, &req) {
		return
	}
	favorited, err := h.favorites.Toggle(r.Context(), identity.UID, strings.TrimSpace(req.ProductID))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	message := "Removed from favorites"
	if favorited {
		message = "Added to favorites"
	}
	httpx.WriteMessage(w, http.StatusOK, message, map[string]bool{"favorited": favorited})
}

type favoritePayload struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	CreatedAt string          `json:"created_at"`
	Product   *productPayload `json:"product"`
}

func (h *CatalogHandlers) listFavorites(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	favorites, err := h.favorites.List(r.Context(), identity.UID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, mapSlice(favorites, func(f services.FavoriteProduct) favoritePayload {
		payload := favoritePayload{
			ID:        f.Favorite.ID,
			ProductID: f.Favorite.ProductID,
			CreatedAt: formatTime(f.Favorite.CreatedAt),
		}
		if f.Product != nil {
			product := buildProductPayload(*f.Product)
			payload.Product = &product
		}
		return payload
	}))
}
