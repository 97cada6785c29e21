package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vnshop/api/internal/platform/httpx"
	pstorage "github.com/vnshop/api/internal/platform/storage"
	"github.com/vnshop/api/internal/services"
)

func (h *AdminHandlers) brandRoutes(r chi.Router) {
	r.Get("/", h.listBrands)
	r.Post("/", h.createBrand)
	r.Get("/{brandID}", h.getBrand)
	r.Patch("/{brandID}", h.updateBrand)
	r.Delete("/{brandID}", h.deleteBrand)
}

func (h *AdminHandlers) productRoutes(r chi.Router) {
	r.Get("/", h.listProducts)
	r.Post("/", h.createProduct)
	if h.uploads != nil {
		r.Post("/images/upload-url", h.productImageUploadURL)
	}
	r.Get("/{productID}", h.getProduct)
	r.Patch("/{productID}", h.updateProduct)
	r.Delete("/{productID}", h.deleteProduct)
	r.Get("/{productID}/variants", h.listVariants)
	r.Post("/{productID}/variants", h.createVariant)
}

func (h *AdminHandlers) variantRoutes(r chi.Router) {
	r.Patch("/{variantID}", h.updateVariant)
	r.Delete("/{variantID}", h.deleteVariant)
}

func (h *AdminHandlers) listBrands(w http.ResponseWriter, r *http.Request) {
	page, ok := pageFromQuery(w, r, adminBrandPageSize, brandSortFields)
	if !ok {
		return
	}
	result, err := h.catalog.AdminListBrands(r.Context(), services.CatalogFilter{
		Query: queryValue(r.URL.Query(), "q"),
		Page:  page,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writePage(w, mapSlice(result.Items, buildBrandPayload), page, result.Total)
}

type brandRequest struct {
	Name        *string `json:"name"`
	Slug        *string `json:"slug"`
	Logo        *string `json:"logo"`
	Description *string `json:"description"`
}

func (req brandRequest) patch() services.BrandPatch {
	return services.BrandPatch{Name: req.Name, Slug: req.Slug, Logo: req.Logo, Description: req.Description}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func (h *AdminHandlers) createBrand(w http.ResponseWriter, r *http.Request) {
	var req brandRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	brand, err := h.catalog.CreateBrand(r.Context(), services.BrandInput{
		Name:        deref(req.Name),
		Slug:        deref(req.Slug),
		Logo:        deref(req.Logo),
		Description: deref(req.Description),
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusCreated, "Brand created", buildBrandPayload(brand))
}

func (h *AdminHandlers) getBrand(w http.ResponseWriter, r *http.Request) {
	brand, err := h.catalog.GetBrand(r.Context(), pathParam(r, "brandID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildBrandPayload(brand))
}

func (h *AdminHandlers) updateBrand(w http.ResponseWriter, r *http.Request) {
	var req brandRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	brand, err := h.catalog.UpdateBrand(r.Context(), pathParam(r, "brandID"), req.patch())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "Brand updated", buildBrandPayload(brand))
}

func (h *AdminHandlers) deleteBrand(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteBrand(r.Context(), pathParam(r, "brandID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "Brand deleted", nil)
}

func (h *AdminHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	page, ok := pageFromQuery(w, r, adminProductPageSize, productSortFields)
	if !ok {
		return
	}
	query := r.URL.Query()
	result, err := h.catalog.AdminListProducts(r.Context(), services.CatalogFilter{
		Query:   queryValue(query, "q"),
		BrandID: queryValue(query, "brand_id"),
		Page:    page,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writePage(w, mapSlice(result.Items, buildProductPayload), page, result.Total)
}

type productRequest struct {
	BrandID     *string   `json:"brand_id"`
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	BasePrice   *int64    `json:"base_price"`
	Category    *string   `json:"category"`
	Discount    *int64    `json:"discount"`
	Images      *[]string `json:"images"`
}

func (h *AdminHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	input := services.ProductInput{
		BrandID:     deref(req.BrandID),
		Name:        deref(req.Name),
		Description: deref(req.Description),
		Category:    deref(req.Category),
	}
	if req.BasePrice != nil {
		input.BasePrice = *req.BasePrice
	}
	if req.Discount != nil {
		input.Discount = *req.Discount
	}
	if req.Images != nil {
		input.Images = *req.Images
	}
	product, err := h.catalog.CreateProduct(r.Context(), input)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusCreated, "Product created", buildProductPayload(product))
}

func (h *AdminHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.GetProduct(r.Context(), pathParam(r, "productID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildProductPayload(product))
}

func (h *AdminHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	product, err := h.catalog.UpdateProduct(r.Context(), pathParam(r, "productID"), services.ProductPatch{
		BrandID:     req.BrandID,
		Name:        req.Name,
		Description: req.Description,
		BasePrice:   req.BasePrice,
		Category:    req.Category,
		Discount:    req.Discount,
		Images:      req.Images,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "Product updated", buildProductPayload(product))
}

func (h *AdminHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteProduct(r.Context(), pathParam(r, "productID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "Product deleted", nil)
}

func (h *AdminHandlers) listVariants(w http.ResponseWriter, r *http.Request) {
	variants, err := h.catalog.ListVariants(r.Context(), pathParam(r, "productID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, mapSlice(variants, buildVariantPayload))
}

type variantRequest struct {
	Color *string `json:"color"`
	Size  *string `json:"size"`
	Stock *int    `json:"stock"`
	Price *int64  `json:"price"`
}

func (h *AdminHandlers) createVariant(w http.ResponseWriter, r *http.Request) {
	var req variantRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	input := services.VariantInput{Color: deref(req.Color), Size: deref(req.Size)}
	if req.Stock != nil {
		input.Stock = *req.Stock
	}
	if req.Price != nil {
		input.Price = *req.Price
	}
	variant, err := h.catalog.CreateVariant(r.Context(), pathParam(r, "productID"), input)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusCreated, "Variant created", buildVariantPayload(variant))
}

func (h *AdminHandlers) updateVariant(w http.ResponseWriter, r *http.Request) {
	var req variantRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	variant, err := h.catalog.UpdateVariant(r.Context(), pathParam(r, "variantID"), services.VariantPatch{
		Color: req.Color,
		Size:  req.Size,
		Stock: req.Stock,
		Price: req.Price,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "Variant updated", buildVariantPayload(variant))
}

func (h *AdminHandlers) deleteVariant(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteVariant(r.Context(), pathParam(r, "variantID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "Variant deleted", nil)
}

func (h *AdminHandlers) productImageUploadURL(w http.ResponseWriter, r *http.Request) {
	var req uploadURLRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	upload, err := h.uploads.IssueUpload(r.Context(), services.UploadCommand{
		Purpose:     pstorage.PurposeProductImage,
		OwnerID:     strings.TrimSpace(req.ProductID),
		ContentType: req.ContentType,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, buildUploadPayload(upload))
}
