package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/vnshop/api/internal/domain"
	"github.com/vnshop/api/internal/platform/textutil"
	"github.com/vnshop/api/internal/repositories"
)

const (
	feedLimit               = 4
	searchLimit             = 50
	defaultBrandPageLimit   = 30
	defaultProductPageLimit = 50
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Brands      repositories.BrandRepository
	Products    repositories.ProductRepository
	Variants    repositories.VariantRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	brands   repositories.BrandRepository
	products repositories.ProductRepository
	variants repositories.VariantRepository
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Brands == nil {
		return nil, errors.New("catalog service: brand repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Variants == nil {
		return nil, errors.New("catalog service: variant repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{
		brands:   deps.Brands,
		products: deps.Products,
		variants: deps.Variants,
		clock:    func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
	}, nil
}

func (s *catalogService) ListBrands(ctx context.Context) ([]Brand, error) {
	brands, err := s.brands.ListAll(ctx)
	if err != nil {
		return nil, mapRepositoryError(err, "")
	}
	return brands, nil
}

func (s *catalogService) GetBrandBySlug(ctx context.Context, slug string) (Brand, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Brand{}, notFound("Brand not found")
	}
	brand, err := s.brands.FindBySlug(ctx, slug)
	if err != nil {
		return Brand{}, mapRepositoryError(err, "Brand not found")
	}
	return brand, nil
}

func (s *catalogService) AdminListBrands(ctx context.Context, filter CatalogFilter) (domain.PageResult[Brand], error) {
	page := filter.Page
	if page.Limit <= 0 {
		page.Limit = defaultBrandPageLimit
	}
	result, err := s.brands.List(ctx, repositories.BrandListFilter{Query: filter.Query, Page: page})
	if err != nil {
		return domain.PageResult[Brand]{}, mapRepositoryError(err, "")
	}
	return result, nil
}

func (s *catalogService) GetBrand(ctx context.Context, id string) (Brand, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Brand{}, invalidField("id", "Invalid brand id")
	}
	brand, err := s.brands.Get(ctx, id)
	if err != nil {
		return Brand{}, mapRepositoryError(err, "Brand not found")
	}
	return brand, nil
}

func (s *catalogService) CreateBrand(ctx context.Context, input BrandInput) (Brand, error) {
	name := strings.TrimSpace(input.Name)
	slug := strings.TrimSpace(input.Slug)
	logo := strings.TrimSpace(input.Logo)
	if name == "" || slug == "" || logo == "" {
		return Brand{}, invalidField("", "Missing required fields: name, slug, logo")
	}
	if err := s.ensureBrandUnique(ctx, "", name, slug); err != nil {
		return Brand{}, err
	}

	now := s.clock()
	brand := Brand{
		ID:          s.newID(),
		Name:        name,
		Slug:        slug,
		Logo:        logo,
		Description: textutil.Plain(input.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.brands.Insert(ctx, brand); err != nil {
		return Brand{}, mapRepositoryError(err, "")
	}
	return brand, nil
}

func (s *catalogService) UpdateBrand(ctx context.Context, id string, patch BrandPatch) (Brand, error) {
	brand, err := s.GetBrand(ctx, id)
	if err != nil {
		return Brand{}, err
	}

	var name, slug string
	if patch.Name != nil {
		if name = strings.TrimSpace(*patch.Name); name == "" {
			return Brand{}, invalidField("name", "Name is required")
		}
	}
	if patch.Slug != nil {
		if slug = strings.TrimSpace(*patch.Slug); slug == "" {
			return Brand{}, invalidField("slug", "Slug is required")
		}
	}
	if err := s.ensureBrandUnique(ctx, brand.ID, name, slug); err != nil {
		return Brand{}, err
	}
	if name != "" {
		brand.Name = name
	}
	if slug != "" {
		brand.Slug = slug
	}
	if patch.Logo != nil {
		logo := strings.TrimSpace(*patch.Logo)
		if logo == "" {
			return Brand{}, invalidField("logo", "Logo is required")
		}
		brand.Logo = logo
	}
	if patch.Description != nil {
		brand.Description = textutil.Plain(*patch.Description)
	}
	brand.UpdatedAt = s.clock()

	if err := s.brands.Save(ctx, brand); err != nil {
		return Brand{}, mapRepositoryError(err, "Brand not found")
	}
	return brand, nil
}

// ensureBrandUnique rejects a name or slug held by a brand other than selfID. Empty values are
// not checked.
func (s *catalogService) ensureBrandUnique(ctx context.Context, selfID, name, slug string) error {
	if name != "" {
		existing, err := s.brands.FindByName(ctx, name)
		switch {
		case err == nil && existing.ID != selfID:
			return fieldFailure(ErrConflict, "name", "Name đã tồn tại")
		case err != nil && !isRepositoryNotFound(err):
			return mapRepositoryError(err, "")
		}
	}
	if slug != "" {
		existing, err := s.brands.FindBySlug(ctx, slug)
		switch {
		case err == nil && existing.ID != selfID:
			return fieldFailure(ErrConflict, "slug", "Slug đã tồn tại")
		case err != nil && !isRepositoryNotFound(err):
			return mapRepositoryError(err, "")
		}
	}
	return nil
}

func (s *catalogService) DeleteBrand(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return invalidField("id", "Invalid brand id")
	}
	return mapRepositoryError(s.brands.Delete(ctx, id), "Brand not found")
}

// Feed returns one of the storefront rankings, four products long.
func (s *catalogService) Feed(ctx context.Context, feed string) ([]Product, error) {
	name := repositories.ProductFeed(strings.TrimSpace(feed))
	switch name {
	case repositories.ProductFeedForYou, repositories.ProductFeedPopular, repositories.ProductFeedNewest, repositories.ProductFeedBestSelling:
	default:
		return nil, invalidField("feed", "Unknown feed")
	}
	products, err := s.products.Feed(ctx, name, feedLimit)
	if err != nil {
		return nil, mapRepositoryError(err, "")
	}
	return products, nil
}

func (s *catalogService) ListByBrand(ctx context.Context, brandID string) ([]Product, error) {
	brandID = strings.TrimSpace(brandID)
	if brandID == "" {
		return nil, invalidField("brand_id", "Brand is required")
	}
	page, err := s.products.List(ctx, repositories.ProductListFilter{
		BrandID: brandID,
		Page:    domain.Page{SortField: "created_at", SortOrder: domain.SortDesc},
	})
	if err != nil {
		return nil, mapRepositoryError(err, "")
	}
	return page.Items, nil
}

// Search matches products whose normalized name starts with query. An empty query lists the
// newest products.
func (s *catalogService) Search(ctx context.Context, query string) ([]Product, error) {
	page, err := s.products.List(ctx, repositories.ProductListFilter{
		Query: strings.TrimSpace(query),
		Page:  domain.Page{Limit: searchLimit, SortField: "created_at", SortOrder: domain.SortDesc},
	})
	if err != nil {
		return nil, mapRepositoryError(err, "")
	}
	return page.Items, nil
}

// ViewProduct loads a product with its variants and counts the view.
func (s *catalogService) ViewProduct(ctx context.Context, id string) (ProductDetail, error) {
	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return ProductDetail{}, err
	}
	if err := s.products.IncrementViews(ctx, product.ID); err != nil {
		s.logger(ctx, "catalog.product.views_failed", map[string]any{
			"productId": product.ID,
			"error":     err.Error(),
		})
	} else {
		product.Views++
	}
	variants, err := s.variants.ListByProduct(ctx, product.ID)
	if err != nil {
		return ProductDetail{}, mapRepositoryError(err, "")
	}
	return ProductDetail{Product: product, Variants: variants}, nil
}

func (s *catalogService) AdminListProducts(ctx context.Context, filter CatalogFilter) (domain.PageResult[Product], error) {
	page := filter.Page
	if page.Limit <= 0 {
		page.Limit = defaultProductPageLimit
	}
	result, err := s.products.List(ctx, repositories.ProductListFilter{
		BrandID: strings.TrimSpace(filter.BrandID),
		Query:   filter.Query,
		Page:    page,
	})
	if err != nil {
		return domain.PageResult[Product]{}, mapRepositoryError(err, "")
	}
	return result, nil
}

func (s *catalogService) GetProduct(ctx context.Context, id string) (Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Product{}, invalidField("id", "Invalid product id")
	}
	product, err := s.products.Get(ctx, id)
	if err != nil {
		return Product{}, mapRepositoryError(err, "Product not found")
	}
	return product, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	brandID := strings.TrimSpace(input.BrandID)
	name := strings.TrimSpace(input.Name)
	description := textutil.Plain(input.Description)
	if brandID == "" || name == "" || description == "" {
		return Product{}, invalidField("", "Missing: brand_id, name, description")
	}
	images := cleanImages(input.Images)
	if len(images) == 0 {
		return Product{}, invalidField("images", "Images is required (array)")
	}
	if input.BasePrice < 0 {
		return Product{}, invalidField("base_price", "Base price must not be negative")
	}
	if _, err := s.brands.Get(ctx, brandID); err != nil {
		if isRepositoryNotFound(err) {
			return Product{}, invalidField("brand_id", "Brand not found")
		}
		return Product{}, mapRepositoryError(err, "")
	}

	now := s.clock()
	product := Product{
		ID:          s.newID(),
		BrandID:     brandID,
		Name:        name,
		Description: description,
		BasePrice:   input.BasePrice,
		Category:    strings.TrimSpace(input.Category),
		Discount:    max(0, input.Discount),
		Images:      images,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, mapRepositoryError(err, "")
	}
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (Product, error) {
	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if patch.BrandID != nil {
		brandID := strings.TrimSpace(*patch.BrandID)
		if brandID == "" {
			return Product{}, invalidField("brand_id", "Brand is required")
		}
		if brandID != product.BrandID {
			if _, err := s.brands.Get(ctx, brandID); err != nil {
				if isRepositoryNotFound(err) {
					return Product{}, invalidField("brand_id", "Brand not found")
				}
				return Product{}, mapRepositoryError(err, "")
			}
		}
		product.BrandID = brandID
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return Product{}, invalidField("name", "Name is required")
		}
		product.Name = name
	}
	if patch.Description != nil {
		product.Description = textutil.Plain(*patch.Description)
	}
	if patch.BasePrice != nil {
		if *patch.BasePrice < 0 {
			return Product{}, invalidField("base_price", "Base price must not be negative")
		}
		product.BasePrice = *patch.BasePrice
	}
	if patch.Category != nil {
		product.Category = strings.TrimSpace(*patch.Category)
	}
	if patch.Discount != nil {
		product.Discount = max(0, *patch.Discount)
	}
	if patch.Images != nil {
		product.Images = cleanImages(*patch.Images)
	}
	product.UpdatedAt = s.clock()

	if err := s.products.Save(ctx, product); err != nil {
		return Product{}, mapRepositoryError(err, "Product not found")
	}
	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return invalidField("id", "Invalid product id")
	}
	return mapRepositoryError(s.products.Delete(ctx, id), "Product not found")
}

func (s *catalogService) ListVariants(ctx context.Context, productID string) ([]Variant, error) {
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	variants, err := s.variants.ListByProduct(ctx, product.ID)
	if err != nil {
		return nil, mapRepositoryError(err, "")
	}
	return variants, nil
}

func (s *catalogService) CreateVariant(ctx context.Context, productID string, input VariantInput) (Variant, error) {
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return Variant{}, err
	}
	color := strings.ToUpper(strings.TrimSpace(input.Color))
	size := strings.TrimSpace(input.Size)
	if color == "" {
		return Variant{}, invalidField("color", "Missing color")
	}
	if size == "" {
		return Variant{}, invalidField("size", "Missing size")
	}
	if input.Price <= 0 {
		return Variant{}, invalidField("price", "Price must be > 0")
	}
	if err := s.ensureVariantUnique(ctx, product.ID, "", color, size); err != nil {
		return Variant{}, err
	}

	now := s.clock()
	variant := Variant{
		ID:        s.newID(),
		ProductID: product.ID,
		Color:     color,
		Size:      size,
		Stock:     max(0, input.Stock),
		Price:     input.Price,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.variants.Insert(ctx, variant); err != nil {
		return Variant{}, mapRepositoryError(err, "")
	}
	return variant, nil
}

func (s *catalogService) UpdateVariant(ctx context.Context, id string, patch VariantPatch) (Variant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Variant{}, invalidField("id", "Invalid variant id")
	}
	variant, err := s.variants.Get(ctx, id)
	if err != nil {
		return Variant{}, mapRepositoryError(err, "Variant not found")
	}

	color, size := variant.Color, variant.Size
	if patch.Color != nil {
		if color = strings.ToUpper(strings.TrimSpace(*patch.Color)); color == "" {
			return Variant{}, invalidField("color", "Missing color")
		}
	}
	if patch.Size != nil {
		if size = strings.TrimSpace(*patch.Size); size == "" {
			return Variant{}, invalidField("size", "Missing size")
		}
	}
	if color != variant.Color || size != variant.Size {
		if err := s.ensureVariantUnique(ctx, variant.ProductID, variant.ID, color, size); err != nil {
			return Variant{}, err
		}
	}
	variant.Color, variant.Size = color, size
	if patch.Price != nil {
		if *patch.Price <= 0 {
			return Variant{}, invalidField("price", "Price must be > 0")
		}
		variant.Price = *patch.Price
	}
	if patch.Stock != nil {
		if *patch.Stock < 0 {
			return Variant{}, invalidField("stock", "Stock must not be negative")
		}
		variant.Stock = *patch.Stock
	}
	variant.UpdatedAt = s.clock()

	if err := s.variants.Save(ctx, variant); err != nil {
		return Variant{}, mapRepositoryError(err, "Variant not found")
	}
	return variant, nil
}

func (s *catalogService) ensureVariantUnique(ctx context.Context, productID, selfID, color, size string) error {
	existing, err := s.variants.FindByAttributes(ctx, productID, color, size)
	switch {
	case err == nil && existing.ID != selfID:
		return fieldFailure(ErrConflict, "size", "Variant đã tồn tại (cùng color + size)")
	case err != nil && !isRepositoryNotFound(err):
		return mapRepositoryError(err, "")
	}
	return nil
}

func (s *catalogService) DeleteVariant(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return invalidField("id", "Invalid variant id")
	}
	return mapRepositoryError(s.variants.Delete(ctx, id), "Variant not found")
}

func cleanImages(images []string) []string {
	out := make([]string, 0, len(images))
	for _, img := range images {
		if img = strings.TrimSpace(img); img != "" {
			out = append(out, img)
		}
	}
	return out
}
