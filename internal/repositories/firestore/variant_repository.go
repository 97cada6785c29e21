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

const (
	variantCollection = "variants"

	variantFieldProductID = "product_id"
	variantFieldStock     = "stock"
)

// VariantRepository persists product variants in a top level collection keyed by ULID.
type VariantRepository struct {
	base *pfirestore.Collection[variantDocument]
}

// NewVariantRepository constructs a Firestore-backed variant repository.
func NewVariantRepository(provider *pfirestore.Provider) (*VariantRepository, error) {
	if provider == nil {
		return nil, errors.New("variant repository requires firestore provider")
	}
	return &VariantRepository{
		base: pfirestore.NewCollection[variantDocument](provider, variantCollection),
	}, nil
}

func (r *VariantRepository) Insert(ctx context.Context, variant domain.Variant) error {
	return r.base.Create(ctx, variant.ID, fromDomainVariant(variant))
}

func (r *VariantRepository) Save(ctx context.Context, variant domain.Variant) error {
	return r.base.Set(ctx, variant.ID, fromDomainVariant(variant))
}

func (r *VariantRepository) Get(ctx context.Context, id string) (domain.Variant, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Variant{}, err
	}
	return toDomainVariant(doc), nil
}

func (r *VariantRepository) FindByAttributes(ctx context.Context, productID, color, size string) (domain.Variant, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(variantFieldProductID, "==", productID).
			Where("color", "==", color).
			Where("size", "==", size).
			Limit(1)
	})
	if err != nil {
		return domain.Variant{}, err
	}
	doc, err := firstOrNotFound(docs, "variants.find", fmt.Sprintf("%s/%s/%s", productID, color, size))
	if err != nil {
		return domain.Variant{}, err
	}
	return toDomainVariant(doc), nil
}

func (r *VariantRepository) ListByProduct(ctx context.Context, productID string) ([]domain.Variant, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(variantFieldProductID, "==", strings.TrimSpace(productID)).OrderBy(fieldUpdatedAt, firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Variant, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toDomainVariant(doc))
	}
	return out, nil
}

// Delete removes the variant. A missing variant reports not found.
func (r *VariantRepository) Delete(ctx context.Context, id string) error {
	return r.base.Delete(ctx, strings.TrimSpace(id), firestore.Exists)
}

type variantDocument struct {
	ProductID string    `firestore:"product_id"`
	Color     string    `firestore:"color"`
	Size      string    `firestore:"size"`
	Stock     int64     `firestore:"stock"`
	Price     int64     `firestore:"price"`
	CreatedAt time.Time `firestore:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func fromDomainVariant(v domain.Variant) variantDocument {
	return variantDocument{
		ProductID: v.ProductID,
		Color:     v.Color,
		Size:      v.Size,
		Stock:     int64(v.Stock),
		Price:     v.Price,
		CreatedAt: v.CreatedAt.UTC(),
		UpdatedAt: v.UpdatedAt.UTC(),
	}
}

func toDomainVariant(doc pfirestore.Document[variantDocument]) domain.Variant {
	d := doc.Data
	v := domain.Variant{
		ID:        doc.ID,
		ProductID: d.ProductID,
		Color:     d.Color,
		Size:      d.Size,
		Stock:     int(d.Stock),
		Price:     d.Price,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = doc.CreateTime
	}
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = doc.UpdateTime
	}
	return v
}

var _ repositories.VariantRepository = (*VariantRepository)(nil)
