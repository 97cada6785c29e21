package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"

	domain "github.com/vnshop/api/internal/domain"
	pfirestore "github.com/vnshop/api/internal/platform/firestore"
	"github.com/vnshop/api/internal/repositories"
)

const (
	orderCollection = "orders"

	orderFieldStatus      = "status"
	orderFieldUserID      = "user_id"
	orderFieldTotalAmount = "total_amount"
	orderFieldShipping    = "shipping_address"

	revenueAlias = "revenue"
)

// OrderRepository persists orders. Order creation and cancellation go through
// InventoryRepository so stock and sold counters move in the same transaction.
type OrderRepository struct {
	base *pfirestore.Collection[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{base: pfirestore.NewCollection[orderDocument](provider, orderCollection)}, nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc), nil
}

// Save rewrites every field of an existing order; it backs the admin full update and fails with
// not found when the order is gone.
func (r *OrderRepository) Save(ctx context.Context, order domain.Order) error {
	doc := fromDomainOrder(order)
	return r.base.Update(ctx, strings.TrimSpace(order.ID), []firestore.Update{
		{Path: orderFieldUserID, Value: doc.UserID},
		{Path: "items", Value: doc.Items},
		{Path: orderFieldShipping, Value: doc.ShippingAddress},
		{Path: "payment_method", Value: doc.PaymentMethod},
		{Path: orderFieldTotalAmount, Value: doc.TotalAmount},
		{Path: orderFieldStatus, Value: doc.Status},
		{Path: fieldUpdatedAt, Value: doc.UpdatedAt},
	})
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, now time.Time) error {
	return r.base.Update(ctx, strings.TrimSpace(id), []firestore.Update{
		{Path: orderFieldStatus, Value: string(status)},
		{Path: fieldUpdatedAt, Value: now.UTC()},
	})
}

func (r *OrderRepository) UpdateShippingAddress(ctx context.Context, id string, address domain.ShippingAddress, now time.Time) error {
	return r.base.Update(ctx, strings.TrimSpace(id), []firestore.Update{
		{Path: orderFieldShipping, Value: fromDomainShipping(address)},
		{Path: fieldUpdatedAt, Value: now.UTC()},
	})
}

func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	return r.base.Delete(ctx, strings.TrimSpace(id), firestore.Exists)
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.PageResult[domain.Order], error) {
	build := func(q firestore.Query) firestore.Query {
		if uid := strings.TrimSpace(filter.UserID); uid != "" {
			q = q.Where(orderFieldUserID, "==", uid)
		}
		if filter.Status != "" {
			q = q.Where(orderFieldStatus, "==", string(filter.Status))
		}
		return q
	}
	return listPage(ctx, r.base, build, filter.Page, "", toDomainOrder)
}

// ListCreatedBetween returns orders created in [from, to). Status filtering happens in memory so
// the query only needs the single field index on created_at.
func (r *OrderRepository) ListCreatedBetween(ctx context.Context, from, to time.Time, statuses []domain.OrderStatus) ([]domain.Order, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(fieldCreatedAt, ">=", from.UTC()).
			Where(fieldCreatedAt, "<", to.UTC()).
			OrderBy(fieldCreatedAt, firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	allowed := make(map[domain.OrderStatus]struct{}, len(statuses))
	for _, status := range statuses {
		allowed[status] = struct{}{}
	}
	out := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order := toDomainOrder(doc)
		if len(allowed) > 0 {
			if _, ok := allowed[order.Status]; !ok {
				continue
			}
		}
		out = append(out, order)
	}
	return out, nil
}

// SumTotal adds total_amount over orders in statuses with a server side aggregation.
func (r *OrderRepository) SumTotal(ctx context.Context, statuses []domain.OrderStatus) (int64, error) {
	coll, err := r.base.Ref(ctx)
	if err != nil {
		return 0, err
	}
	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}
	query := coll.Query
	if len(values) > 0 {
		query = query.Where(orderFieldStatus, "in", values)
	}
	result, err := query.NewAggregationQuery().WithSum(orderFieldTotalAmount, revenueAlias).Get(ctx)
	if err != nil {
		return 0, pfirestore.WrapError("orders.sum", err)
	}
	switch value := result[revenueAlias].(type) {
	case *firestorepb.Value:
		if _, ok := value.GetValueType().(*firestorepb.Value_DoubleValue); ok {
			return int64(value.GetDoubleValue()), nil
		}
		return value.GetIntegerValue(), nil
	case int64:
		return value, nil
	case float64:
		return int64(value), nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("orders.sum: unexpected aggregation result %T", value)
	}
}

func (r *OrderRepository) Count(ctx context.Context) (int, error) {
	total, err := r.base.Count(ctx, nil)
	return int(total), err
}

type orderLineDocument struct {
	Brand     string `firestore:"brand"`
	ProductID string `firestore:"product_id"`
	VariantID string `firestore:"variant_id"`
	Quantity  int64  `firestore:"quantity"`
	Price     int64  `firestore:"price"`
}

type shippingAddressDocument struct {
	Street   string `firestore:"street"`
	Ward     string `firestore:"ward"`
	District string `firestore:"district"`
	Province string `firestore:"province"`
	Country  string `firestore:"country"`
}

type orderDocument struct {
	UserID          string                  `firestore:"user_id"`
	Items           []orderLineDocument     `firestore:"items"`
	ShippingAddress shippingAddressDocument `firestore:"shipping_address"`
	PaymentMethod   string                  `firestore:"payment_method"`
	TotalAmount     int64                   `firestore:"total_amount"`
	Status          string                  `firestore:"status"`
	CreatedAt       time.Time               `firestore:"created_at"`
	UpdatedAt       time.Time               `firestore:"updated_at"`
}

func fromDomainShipping(a domain.ShippingAddress) shippingAddressDocument {
	return shippingAddressDocument{
		Street:   a.Street,
		Ward:     a.Ward,
		District: a.District,
		Province: a.Province,
		Country:  a.Country,
	}
}

func fromDomainOrder(o domain.Order) orderDocument {
	items := make([]orderLineDocument, 0, len(o.Items))
	for _, line := range o.Items {
		items = append(items, orderLineDocument{
			Brand:     line.Brand,
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  int64(line.Quantity),
			Price:     line.Price,
		})
	}
	return orderDocument{
		UserID:          o.UserID,
		Items:           items,
		ShippingAddress: fromDomainShipping(o.ShippingAddress),
		PaymentMethod:   o.PaymentMethod,
		TotalAmount:     o.TotalAmount,
		Status:          string(o.Status),
		CreatedAt:       o.CreatedAt.UTC(),
		UpdatedAt:       o.UpdatedAt.UTC(),
	}
}

func toDomainOrder(doc pfirestore.Document[orderDocument]) domain.Order {
	d := doc.Data
	items := make([]domain.OrderLine, 0, len(d.Items))
	for _, line := range d.Items {
		items = append(items, domain.OrderLine{
			Brand:     line.Brand,
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  int(line.Quantity),
			Price:     line.Price,
		})
	}
	o := domain.Order{
		ID:     doc.ID,
		UserID: d.UserID,
		Items:  items,
		ShippingAddress: domain.ShippingAddress{
			Street:   d.ShippingAddress.Street,
			Ward:     d.ShippingAddress.Ward,
			District: d.ShippingAddress.District,
			Province: d.ShippingAddress.Province,
			Country:  d.ShippingAddress.Country,
		},
		PaymentMethod: d.PaymentMethod,
		TotalAmount:   d.TotalAmount,
		Status:        domain.OrderStatus(d.Status),
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = doc.CreateTime
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = doc.UpdateTime
	}
	return o
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
