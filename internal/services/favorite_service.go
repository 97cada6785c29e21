package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vnshop/api/internal/repositories"
)

// FavoriteServiceDeps wires the favorite service.
type FavoriteServiceDeps struct {
	Favorites repositories.FavoriteRepository
	Products  repositories.ProductRepository
	Clock     func() time.Time
}

type favoriteService struct {
	favorites repositories.FavoriteRepository
	products  repositories.ProductRepository
	clock     func() time.Time
}

// NewFavoriteService constructs a FavoriteService.
func NewFavoriteService(deps FavoriteServiceDeps) (FavoriteService, error) {
	if deps.Favorites == nil {
		return nil, errors.New("favorite service: favorite repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("favorite service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &favoriteService{
		favorites: deps.Favorites,
		products:  deps.Products,
		clock:     func() time.Time { return clock().UTC() },
	}, nil
}

// Toggle flips the favorite and reports whether the product is now a favorite.
func (s *favoriteService) Toggle(ctx context.Context, userID, productID string) (bool, error) {
	userID, productID = strings.TrimSpace(userID), strings.TrimSpace(productID)
	if userID == "" {
		return false, invalidField("user_id", "User is required")
	}
	if productID == "" {
		return false, invalidField("product_id", "product_id is required")
	}
	favorited, err := s.favorites.Toggle(ctx, userID, productID, s.clock())
	if err != nil {
		return false, mapRepositoryError(err, "Product not found")
	}
	return favorited, nil
}

func (s *favoriteService) List(ctx context.Context, userID string) ([]FavoriteProduct, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, invalidField("user_id", "User is required")
	}
	favorites, err := s.favorites.List(ctx, userID)
	if err != nil {
		return nil, mapRepositoryError(err, "")
	}
	if len(favorites) == 0 {
		return []FavoriteProduct{}, nil
	}

	ids := make([]string, 0, len(favorites))
	for _, fav := range favorites {
		ids = append(ids, fav.ProductID)
	}
	products, err := s.products.GetMany(ctx, ids)
	if err != nil {
		return nil, mapRepositoryError(err, "")
	}

	out := make([]FavoriteProduct, 0, len(favorites))
	for _, fav := range favorites {
		item := FavoriteProduct{Favorite: fav}
		if product, ok := products[fav.ProductID]; ok {
			item.Product = &product
		}
		out = append(out, item)
	}
	return out, nil
}
