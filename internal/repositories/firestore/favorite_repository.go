package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/vnshop/api/internal/domain"
	pfirestore "github.com/vnshop/api/internal/platform/firestore"
	"github.com/vnshop/api/internal/repositories"
)

const favoriteCollectionPattern = "users/%s/favorites"

// FavoriteRepository stores favorites as users/{uid}/favorites/{productID} so the pair is unique
// by construction.
type FavoriteRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.Collection[productDocument]
}

// NewFavoriteRepository constructs a Firestore-backed favorite repository.
func NewFavoriteRepository(provider *pfirestore.Provider) (*FavoriteRepository, error) {
	if provider == nil {
		return nil, errors.New("favorite repository requires firestore provider")
	}
	return &FavoriteRepository{
		provider: provider,
		products: pfirestore.NewCollection[productDocument](provider, productCollection),
	}, nil
}

// Toggle flips the favorite and moves the product's favorites counter in the same transaction.
// The counter never drops below zero.
func (r *FavoriteRepository) Toggle(ctx context.Context, userID, productID string, now time.Time) (bool, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return false, err
	}
	productID = strings.TrimSpace(productID)
	productRef, err := r.products.Doc(ctx, productID)
	if err != nil {
		return false, err
	}
	favRef := coll.Doc(productID)

	var favorited bool
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snaps, err := tx.GetAll([]*firestore.DocumentRef{productRef, favRef})
		if err != nil {
			return err
		}
		productSnap, favSnap := snaps[0], snaps[1]
		if !productSnap.Exists() {
			return pfirestore.NotFoundError("favorites.toggle", productID)
		}
		product, err := r.products.Decode(productSnap)
		if err != nil {
			return err
		}

		if favSnap.Exists() {
			favorited = false
			if err := tx.Delete(favRef); err != nil {
				return err
			}
			next := product.Data.Favorites - 1
			if next < 0 {
				next = 0
			}
			return tx.Update(productRef, []firestore.Update{{Path: productFieldFavorites, Value: next}})
		}

		favorited = true
		if err := tx.Create(favRef, favoriteDocument{ProductID: productID, CreatedAt: now.UTC()}); err != nil {
			return err
		}
		return tx.Update(productRef, []firestore.Update{{Path: productFieldFavorites, Value: firestore.Increment(1)}})
	})
	if err != nil {
		return false, pfirestore.WrapError("favorites.toggle", err)
	}
	return favorited, nil
}

// List returns the user's favorites, most recent first.
func (r *FavoriteRepository) List(ctx context.Context, userID string) ([]domain.Favorite, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return nil, err
	}
	docs, err := pfirestore.Collect[favoriteDocument](ctx, coll.OrderBy(fieldCreatedAt, firestore.Desc))
	if err != nil {
		return nil, pfirestore.WrapError("favorites.list", err)
	}
	out := make([]domain.Favorite, 0, len(docs))
	for _, doc := range docs {
		productID := doc.Data.ProductID
		if productID == "" {
			productID = doc.ID
		}
		out = append(out, domain.Favorite{
			ID:        doc.ID,
			UserID:    strings.TrimSpace(userID),
			ProductID: productID,
			CreatedAt: doc.Data.CreatedAt,
		})
	}
	return out, nil
}

func (r *FavoriteRepository) collection(ctx context.Context, userID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("favorite repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("favorite repository: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(fmt.Sprintf(favoriteCollectionPattern, uid)), nil
}

type favoriteDocument struct {
	ProductID string    `firestore:"product_id"`
	CreatedAt time.Time `firestore:"created_at"`
}

var _ repositories.FavoriteRepository = (*FavoriteRepository)(nil)
