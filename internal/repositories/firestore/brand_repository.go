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
	brandCollection      = "brands"
	brandFieldSearchName = "search_name"
)

// BrandRepository persists brands. Slugs and names are unique; services check them before
// writing.
type BrandRepository struct {
	base *pfirestore.Collection[brandDocument]
}

// NewBrandRepository constructs a Firestore-backed brand repository.
func NewBrandRepository(provider *pfirestore.Provider) (*BrandRepository, error) {
	if provider == nil {
		return nil, errors.New("brand repository requires firestore provider")
	}
	return &BrandRepository{base: pfirestore.NewCollection[brandDocument](provider, brandCollection)}, nil
}

func (r *BrandRepository) Insert(ctx context.Context, brand domain.Brand) error {
	return r.base.Create(ctx, brand.ID, fromDomainBrand(brand))
}

func (r *BrandRepository) Save(ctx context.Context, brand domain.Brand) error {
	return r.base.Set(ctx, brand.ID, fromDomainBrand(brand))
}

func (r *BrandRepository) Get(ctx context.Context, id string) (domain.Brand, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Brand{}, err
	}
	return toDomainBrand(doc), nil
}

func (r *BrandRepository) FindBySlug(ctx context.Context, slug string) (domain.Brand, error) {
	return r.findOne(ctx, "slug", strings.ToLower(strings.TrimSpace(slug)))
}

// FindByName matches names case and accent insensitively.
func (r *BrandRepository) FindByName(ctx context.Context, name string) (domain.Brand, error) {
	return r.findOne(ctx, brandFieldSearchName, textutil.SearchKey(name))
}

func (r *BrandRepository) findOne(ctx context.Context, field, value string) (domain.Brand, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(field, "==", value).Limit(1)
	})
	if err != nil {
		return domain.Brand{}, err
	}
	doc, err := firstOrNotFound(docs, "brands.find", value)
	if err != nil {
		return domain.Brand{}, err
	}
	return toDomainBrand(doc), nil
}

func (r *BrandRepository) Delete(ctx context.Context, id string) error {
	return r.base.Delete(ctx, strings.TrimSpace(id), firestore.Exists)
}

// ListAll returns every brand sorted by name for the storefront menu.
func (r *BrandRepository) ListAll(ctx context.Context) ([]domain.Brand, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Brand, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toDomainBrand(doc))
	}
	return out, nil
}

func (r *BrandRepository) List(ctx context.Context, filter repositories.BrandListFilter) (domain.PageResult[domain.Brand], error) {
	key := textutil.SearchKey(filter.Query)
	build := func(q firestore.Query) firestore.Query {
		return withPrefix(q, brandFieldSearchName, key)
	}
	return listPage(ctx, r.base, build, filter.Page, searchField(brandFieldSearchName, key), toDomainBrand)
}

func (r *BrandRepository) Count(ctx context.Context) (int, error) {
	total, err := r.base.Count(ctx, nil)
	return int(total), err
}

type brandDocument struct {
	Name        string    `firestore:"name"`
	SearchName  string    `firestore:"search_name"`
	Slug        string    `firestore:"slug"`
	Logo        string    `firestore:"logo"`
	Description string    `firestore:"description,omitempty"`
	CreatedAt   time.Time `firestore:"created_at"`
	UpdatedAt   time.Time `firestore:"updated_at"`
}

func fromDomainBrand(b domain.Brand) brandDocument {
	return brandDocument{
		Name:        b.Name,
		SearchName:  textutil.SearchKey(b.Name),
		Slug:        strings.ToLower(strings.TrimSpace(b.Slug)),
		Logo:        b.Logo,
		Description: b.Description,
		CreatedAt:   b.CreatedAt.UTC(),
		UpdatedAt:   b.UpdatedAt.UTC(),
	}
}

func toDomainBrand(doc pfirestore.Document[brandDocument]) domain.Brand {
	d := doc.Data
	b := domain.Brand{
		ID:          doc.ID,
		Name:        d.Name,
		Slug:        d.Slug,
		Logo:        d.Logo,
		Description: d.Description,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = doc.CreateTime
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = doc.UpdateTime
	}
	return b
}

var _ repositories.BrandRepository = (*BrandRepository)(nil)
