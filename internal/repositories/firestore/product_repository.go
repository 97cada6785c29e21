package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/vnshop/api/internal/domain"
	pfirestore "github.com/vnshop/api/internal/platform/firestore"
	"github.com/vnshop/api/internal/platform/textutil"
	"github.com/vnshop/api/internal/repositories"
)

const (
	productCollection = "products"

	productFieldSearchName = "search_name"
	productFieldViews      = "views"
	productFieldSold       = "sold"
	productFieldFavorites  = "favorites"
)

// ProductRepository persists catalog products. Counter fields are only changed with
// firestore.Increment outside of transactions.
type ProductRepository struct {
	base     *pfirestore.Collection[productDocument]
	variants *pfirestore.Collection[variantDocument]
	provider *pfirestore.Provider
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		base:     pfirestore.NewCollection[productDocument](provider, productCollection),
		variants: pfirestore.NewCollection[variantDocument](provider, variantCollection),
		provider: provider,
	}, nil
}

func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	return r.base.Create(ctx, product.ID, fromDomainProduct(product))
}

func (r *ProductRepository) Save(ctx context.Context, product domain.Product) error {
	return r.base.Set(ctx, product.ID, fromDomainProduct(product))
}

func (r *ProductRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return toDomainProduct(doc), nil
}

func (r *ProductRepository) GetMany(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	docs, err := getMany(ctx, r.provider, r.base, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Product, len(docs))
	for _, doc := range docs {
		out[doc.ID] = toDomainProduct(doc)
	}
	return out, nil
}

// Delete removes the product and its variants in one transaction.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	productRef, err := r.base.Doc(ctx, id)
	if err != nil {
		return err
	}
	variantColl, err := r.variants.Ref(ctx)
	if err != nil {
		return err
	}
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(productRef)
		if err != nil {
			return err
		}
		variants, err := tx.Documents(variantColl.Where(variantFieldProductID, "==", id)).GetAll()
		if err != nil {
			return err
		}
		for _, variant := range variants {
			if err := tx.Delete(variant.Ref); err != nil {
				return err
			}
		}
		return tx.Delete(snap.Ref)
	}, pfirestore.WithTxName("product.delete"))
	return pfirestore.WrapError("products.delete", err)
}

func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.PageResult[domain.Product], error) {
	key := textutil.SearchKey(filter.Query)
	build := func(q firestore.Query) firestore.Query {
		if brandID := strings.TrimSpace(filter.BrandID); brandID != "" {
			q = q.Where("brand_id", "==", brandID)
		}
		return withPrefix(q, productFieldSearchName, key)
	}
	return listPage(ctx, r.base, build, filter.Page, searchField(productFieldSearchName, key), toDomainProduct)
}

func (r *ProductRepository) Feed(ctx context.Context, feed repositories.ProductFeed, limit int) ([]domain.Product, error) {
	if limit <= 0 {
		limit = 4
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		switch feed {
		case repositories.ProductFeedForYou:
			q = q.OrderBy(productFieldViews, firestore.Desc)
		case repositories.ProductFeedPopular:
			q = q.OrderBy(productFieldFavorites, firestore.Desc).OrderBy(productFieldSold, firestore.Desc)
		case repositories.ProductFeedBestSelling:
			q = q.OrderBy(productFieldSold, firestore.Desc)
		default:
			q = q.OrderBy(fieldCreatedAt, firestore.Desc)
		}
		return q.Limit(limit)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toDomainProduct(doc))
	}
	return out, nil
}

func (r *ProductRepository) IncrementViews(ctx context.Context, id string) error {
	return r.base.Update(ctx, strings.TrimSpace(id), []firestore.Update{
		{Path: productFieldViews, Value: firestore.Increment(1)},
	})
}

func (r *ProductRepository) Count(ctx context.Context) (int, error) {
	total, err := r.base.Count(ctx, nil)
	return int(total), err
}

type productDocument struct {
	BrandID     string    `firestore:"brand_id"`
	Name        string    `firestore:"name"`
	SearchName  string    `firestore:"search_name"`
	Description string    `firestore:"description"`
	BasePrice   int64     `firestore:"base_price"`
	Category    string    `firestore:"category,omitempty"`
	Discount    int64     `firestore:"discount"`
	Views       int64     `firestore:"views"`
	Sold        int64     `firestore:"sold"`
	Favorites   int64     `firestore:"favorites"`
	Images      []string  `firestore:"images"`
	CreatedAt   time.Time `firestore:"created_at"`
	UpdatedAt   time.Time `firestore:"updated_at"`
}

func fromDomainProduct(p domain.Product) productDocument {
	return productDocument{
		BrandID:     p.BrandID,
		Name:        p.Name,
		SearchName:  textutil.SearchKey(p.Name),
		Description: p.Description,
		BasePrice:   p.BasePrice,
		Category:    p.Category,
		Discount:    p.Discount,
		Views:       p.Views,
		Sold:        p.Sold,
		Favorites:   p.Favorites,
		Images:      append([]string(nil), p.Images...),
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}

func toDomainProduct(doc pfirestore.Document[productDocument]) domain.Product {
	d := doc.Data
	p := domain.Product{
		ID:          doc.ID,
		BrandID:     d.BrandID,
		Name:        d.Name,
		Description: d.Description,
		BasePrice:   d.BasePrice,
		Category:    d.Category,
		Discount:    d.Discount,
		Views:       d.Views,
		Sold:        d.Sold,
		Favorites:   d.Favorites,
		Images:      append([]string(nil), d.Images...),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = doc.CreateTime
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = doc.UpdateTime
	}
	return p
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
