package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/vnshop/api/internal/domain"
	"github.com/vnshop/api/internal/repositories"
)

type catalogFixture struct {
	svc      CatalogService
	brands   *stubBrandRepo
	products *stubProductRepo
	variants *stubVariantRepo
}

func newCatalogFixture(t *testing.T) catalogFixture {
	t.Helper()
	brands := newStubBrandRepo(domain.Brand{ID: "b1", Name: "Nike", Slug: "nike", Logo: "nike.png"})
	products := newStubProductRepo(
		domain.Product{ID: "p1", BrandID: "b1", Name: "Air Max", Views: 10},
		domain.Product{ID: "p2", BrandID: "b1", Name: "Pegasus"},
	)
	variants := newStubVariantRepo(
		domain.Variant{ID: "v1", ProductID: "p1", Color: "RED", Size: "42", Price: 100},
	)
	svc, err := NewCatalogService(CatalogServiceDeps{
		Brands:      brands,
		Products:    products,
		Variants:    variants,
		Clock:       fixedClock(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)),
		IDGenerator: sequenceIDs("N1", "N2", "N3"),
	})
	if err != nil {
		t.Fatalf("new catalog service: %v", err)
	}
	return catalogFixture{svc: svc, brands: brands, products: products, variants: variants}
}

func requireMessage(t *testing.T, err error, kind error, message string) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
	var fe *FieldError
	if !errors.As(err, &fe) || fe.Message != message {
		t.Fatalf("expected message %q, got %v", message, err)
	}
}

func TestCatalogServiceBrandLifecycle(t *testing.T) {
	fx := newCatalogFixture(t)
	ctx := context.Background()

	_, err := fx.svc.CreateBrand(ctx, BrandInput{Name: "Adidas", Slug: "adidas"})
	requireMessage(t, err, ErrValidation, "Missing required fields: name, slug, logo")

	_, err = fx.svc.CreateBrand(ctx, BrandInput{Name: "nike", Slug: "nike-2", Logo: "x"})
	var fe *FieldError
	if !errors.As(err, &fe) || fe.Field != "name" || !errors.Is(err, ErrConflict) {
		t.Fatalf("expected name conflict, got %v", err)
	}
	_, err = fx.svc.CreateBrand(ctx, BrandInput{Name: "Other", Slug: "nike", Logo: "x"})
	if !errors.As(err, &fe) || fe.Field != "slug" {
		t.Fatalf("expected slug conflict, got %v", err)
	}

	brand, err := fx.svc.CreateBrand(ctx, BrandInput{Name: " Adidas ", Slug: "adidas", Logo: "a.png", Description: "<b>Three</b> stripes"})
	if err != nil {
		t.Fatalf("create brand: %v", err)
	}
	if brand.ID != "N1" || brand.Name != "Adidas" || brand.Description != "Three stripes" {
		t.Fatalf("unexpected brand %+v", brand)
	}

	name := "Adidas Originals"
	updated, err := fx.svc.UpdateBrand(ctx, brand.ID, BrandPatch{Name: &name})
	if err != nil {
		t.Fatalf("update brand: %v", err)
	}
	if updated.Name != name || updated.Slug != "adidas" {
		t.Fatalf("unexpected update %+v", updated)
	}

	slug := "nike"
	if _, err := fx.svc.UpdateBrand(ctx, brand.ID, BrandPatch{Slug: &slug}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected slug conflict, got %v", err)
	}

	got, err := fx.svc.GetBrandBySlug(ctx, "adidas")
	if err != nil || got.ID != brand.ID {
		t.Fatalf("get by slug: %+v %v", got, err)
	}
	if err := fx.svc.DeleteBrand(ctx, brand.ID); err != nil {
		t.Fatalf("delete brand: %v", err)
	}
	_, err = fx.svc.GetBrandBySlug(ctx, "adidas")
	requireMessage(t, err, ErrNotFound, "Brand not found")
}

func TestCatalogServiceFeedLimitsToFour(t *testing.T) {
	fx := newCatalogFixture(t)
	fx.products.feeds[repositories.ProductFeedForYou] = make([]domain.Product, 6)

	items, err := fx.svc.Feed(context.Background(), "foryou")
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(items) != 4 || fx.products.lastLimit != 4 {
		t.Fatalf("expected 4 products, got %d", len(items))
	}
	if _, err := fx.svc.Feed(context.Background(), "trending"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected unknown feed error, got %v", err)
	}
}

func TestCatalogServiceViewProductCountsViews(t *testing.T) {
	fx := newCatalogFixture(t)

	detail, err := fx.svc.ViewProduct(context.Background(), "p1")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if detail.Product.Views != 11 || fx.products.products["p1"].Views != 11 {
		t.Fatalf("expected views incremented, got %d", detail.Product.Views)
	}
	if len(detail.Variants) != 1 || detail.Variants[0].ID != "v1" {
		t.Fatalf("unexpected variants %+v", detail.Variants)
	}

	fx.products.viewErr = errBoom
	if _, err := fx.svc.ViewProduct(context.Background(), "p1"); err != nil {
		t.Fatalf("view counter failure must not fail the read: %v", err)
	}

	_, err = fx.svc.ViewProduct(context.Background(), "missing")
	requireMessage(t, err, ErrNotFound, "Product not found")
}

func TestCatalogServiceSearchAndBrandListing(t *testing.T) {
	fx := newCatalogFixture(t)

	items, err := fx.svc.Search(context.Background(), "air")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != 1 || items[0].ID != "p1" {
		t.Fatalf("unexpected search result %+v", items)
	}
	byBrand, err := fx.svc.ListByBrand(context.Background(), "b1")
	if err != nil || len(byBrand) != 2 {
		t.Fatalf("list by brand: %d %v", len(byBrand), err)
	}

	if _, err := fx.svc.AdminListProducts(context.Background(), CatalogFilter{}); err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if fx.products.lastList.Page.Limit != 50 {
		t.Fatalf("expected default limit 50, got %d", fx.products.lastList.Page.Limit)
	}
}

func TestCatalogServiceCreateProductValidation(t *testing.T) {
	fx := newCatalogFixture(t)
	ctx := context.Background()

	_, err := fx.svc.CreateProduct(ctx, ProductInput{BrandID: "b1", Name: "Zoom"})
	requireMessage(t, err, ErrValidation, "Missing: brand_id, name, description")

	_, err = fx.svc.CreateProduct(ctx, ProductInput{BrandID: "b1", Name: "Zoom", Description: "Fast", Images: []string{" ", ""}})
	requireMessage(t, err, ErrValidation, "Images is required (array)")

	_, err = fx.svc.CreateProduct(ctx, ProductInput{BrandID: "nope", Name: "Zoom", Description: "Fast", Images: []string{"a.jpg"}})
	requireMessage(t, err, ErrValidation, "Brand not found")

	product, err := fx.svc.CreateProduct(ctx, ProductInput{BrandID: "b1", Name: "Zoom", Description: "Fast", BasePrice: 2000000, Images: []string{" a.jpg "}})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if product.Images[0] != "a.jpg" || product.Sold != 0 || product.Views != 0 {
		t.Fatalf("unexpected product %+v", product)
	}
}

func TestCatalogServiceVariants(t *testing.T) {
	fx := newCatalogFixture(t)
	ctx := context.Background()

	_, err := fx.svc.CreateVariant(ctx, "p1", VariantInput{Size: "42", Price: 1})
	requireMessage(t, err, ErrValidation, "Missing color")
	_, err = fx.svc.CreateVariant(ctx, "p1", VariantInput{Color: "red", Price: 1})
	requireMessage(t, err, ErrValidation, "Missing size")
	_, err = fx.svc.CreateVariant(ctx, "p1", VariantInput{Color: "red", Size: "43"})
	requireMessage(t, err, ErrValidation, "Price must be > 0")
	_, err = fx.svc.CreateVariant(ctx, "missing", VariantInput{Color: "red", Size: "43", Price: 1})
	requireMessage(t, err, ErrNotFound, "Product not found")

	_, err = fx.svc.CreateVariant(ctx, "p1", VariantInput{Color: " red ", Size: "42", Price: 1})
	var fe *FieldError
	if !errors.Is(err, ErrConflict) || !errors.As(err, &fe) || fe.Field != "size" {
		t.Fatalf("expected duplicate variant on size, got %v", err)
	}

	variant, err := fx.svc.CreateVariant(ctx, "p1", VariantInput{Color: "blue", Size: "42", Stock: 5, Price: 150})
	if err != nil {
		t.Fatalf("create variant: %v", err)
	}
	if variant.Color != "BLUE" || variant.Stock != 5 {
		t.Fatalf("unexpected variant %+v", variant)
	}

	red := "red"
	if _, err := fx.svc.UpdateVariant(ctx, variant.ID, VariantPatch{Color: &red}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on update, got %v", err)
	}
	stock := 9
	updated, err := fx.svc.UpdateVariant(ctx, variant.ID, VariantPatch{Stock: &stock})
	if err != nil || updated.Stock != 9 {
		t.Fatalf("update variant: %+v %v", updated, err)
	}
	if err := fx.svc.DeleteVariant(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
