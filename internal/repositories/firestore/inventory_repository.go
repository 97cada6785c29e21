package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/vnshop/api/internal/domain"
	pfirestore "github.com/vnshop/api/internal/platform/firestore"
	"github.com/vnshop/api/internal/repositories"
)

// Hot variants see contention during sales, so inventory transactions retry more than the default.
const (
	inventoryTxAttempts = 8
	inventoryTxTimeout  = 20 * time.Second
)

// InventoryRepository runs order placement and cancellation as Firestore transactions spanning
// the orders, variants and products collections.
type InventoryRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[orderDocument]
	products *pfirestore.Collection[productDocument]
	variants *pfirestore.Collection[variantDocument]
}

// NewInventoryRepository constructs the transactional inventory unit of work.
func NewInventoryRepository(provider *pfirestore.Provider) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	return &InventoryRepository{
		provider: provider,
		orders:   pfirestore.NewCollection[orderDocument](provider, orderCollection),
		products: pfirestore.NewCollection[productDocument](provider, productCollection),
		variants: pfirestore.NewCollection[variantDocument](provider, variantCollection),
	}, nil
}

// RunInventoryTx executes fn inside a Firestore transaction. Errors returned by fn abort the
// transaction and are returned unchanged.
func (r *InventoryRepository) RunInventoryTx(ctx context.Context, fn func(ctx context.Context, tx repositories.InventoryTx) error) error {
	if fn == nil {
		return errors.New("inventory repository: transaction function is required")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, &inventoryTx{repo: r, tx: tx})
	}, pfirestore.WithTxName("inventory"), pfirestore.WithTxAttempts(inventoryTxAttempts), pfirestore.WithTxTimeout(inventoryTxTimeout))
}

type inventoryTx struct {
	repo *InventoryRepository
	tx   *firestore.Transaction
}

func (t *inventoryTx) Order(ctx context.Context, orderID string) (domain.Order, error) {
	ref, err := t.repo.orders.Doc(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	snap, err := t.tx.Get(ref)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.tx_get", err)
	}
	doc, err := t.repo.orders.Decode(snap)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc), nil
}

func (t *inventoryTx) Products(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	snaps, err := t.getAll(ctx, ids, t.repo.products.Doc)
	if err != nil {
		return nil, err
	}
	docs, err := decodeExisting(ctx, t.repo.products, snaps)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Product, len(docs))
	for _, doc := range docs {
		out[doc.ID] = toDomainProduct(doc)
	}
	return out, nil
}

func (t *inventoryTx) Variants(ctx context.Context, ids []string) (map[string]domain.Variant, error) {
	snaps, err := t.getAll(ctx, ids, t.repo.variants.Doc)
	if err != nil {
		return nil, err
	}
	docs, err := decodeExisting(ctx, t.repo.variants, snaps)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Variant, len(docs))
	for _, doc := range docs {
		out[doc.ID] = toDomainVariant(doc)
	}
	return out, nil
}

func (t *inventoryTx) getAll(ctx context.Context, ids []string, refFor func(context.Context, string) (*firestore.DocumentRef, error)) ([]*firestore.DocumentSnapshot, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		ref, err := refFor(ctx, id)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	snaps, err := t.tx.GetAll(refs)
	if err != nil {
		return nil, pfirestore.WrapError("inventory.tx_get_all", err)
	}
	return snaps, nil
}

func (t *inventoryTx) InsertOrder(ctx context.Context, order domain.Order) error {
	ref, err := t.repo.orders.Doc(ctx, order.ID)
	if err != nil {
		return err
	}
	return t.tx.Create(ref, fromDomainOrder(order))
}

func (t *inventoryTx) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus, now time.Time) error {
	ref, err := t.repo.orders.Doc(ctx, orderID)
	if err != nil {
		return err
	}
	return t.tx.Update(ref, []firestore.Update{
		{Path: orderFieldStatus, Value: string(status)},
		{Path: fieldUpdatedAt, Value: now.UTC()},
	})
}

func (t *inventoryTx) IncrementVariantStock(ctx context.Context, variantID string, delta int, now time.Time) error {
	ref, err := t.repo.variants.Doc(ctx, variantID)
	if err != nil {
		return err
	}
	return t.tx.Update(ref, []firestore.Update{
		{Path: variantFieldStock, Value: firestore.Increment(delta)},
		{Path: fieldUpdatedAt, Value: now.UTC()},
	})
}

func (t *inventoryTx) IncrementProductSold(ctx context.Context, productID string, delta int, now time.Time) error {
	ref, err := t.repo.products.Doc(ctx, productID)
	if err != nil {
		return err
	}
	return t.tx.Update(ref, []firestore.Update{
		{Path: productFieldSold, Value: firestore.Increment(delta)},
		{Path: fieldUpdatedAt, Value: now.UTC()},
	})
}

func (t *inventoryTx) SetProductSold(ctx context.Context, productID string, sold int64, now time.Time) error {
	ref, err := t.repo.products.Doc(ctx, productID)
	if err != nil {
		return err
	}
	return t.tx.Update(ref, []firestore.Update{
		{Path: productFieldSold, Value: sold},
		{Path: fieldUpdatedAt, Value: now.UTC()},
	})
}

var _ repositories.InventoryUnitOfWork = (*InventoryRepository)(nil)
