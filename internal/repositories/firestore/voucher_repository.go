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

const voucherCollection = "vouchers"

// VoucherRepository persists vouchers keyed by ULID with the normalized code as a unique field.
type VoucherRepository struct {
	base *pfirestore.Collection[voucherDocument]
}

// NewVoucherRepository constructs a Firestore-backed voucher repository.
func NewVoucherRepository(provider *pfirestore.Provider) (*VoucherRepository, error) {
	if provider == nil {
		return nil, errors.New("voucher repository requires firestore provider")
	}
	return &VoucherRepository{base: pfirestore.NewCollection[voucherDocument](provider, voucherCollection)}, nil
}

func (r *VoucherRepository) Insert(ctx context.Context, voucher domain.Voucher) error {
	return r.base.Create(ctx, voucher.ID, fromDomainVoucher(voucher))
}

func (r *VoucherRepository) Save(ctx context.Context, voucher domain.Voucher) error {
	return r.base.Set(ctx, voucher.ID, fromDomainVoucher(voucher))
}

func (r *VoucherRepository) Get(ctx context.Context, id string) (domain.Voucher, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Voucher{}, err
	}
	return toDomainVoucher(doc), nil
}

func (r *VoucherRepository) FindByCode(ctx context.Context, code string) (domain.Voucher, error) {
	code = textutil.NormalizeCode(code)
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", code).Limit(1)
	})
	if err != nil {
		return domain.Voucher{}, err
	}
	doc, err := firstOrNotFound(docs, "vouchers.find", code)
	if err != nil {
		return domain.Voucher{}, err
	}
	return toDomainVoucher(doc), nil
}

func (r *VoucherRepository) Delete(ctx context.Context, id string) error {
	return r.base.Delete(ctx, strings.TrimSpace(id), firestore.Exists)
}

func (r *VoucherRepository) List(ctx context.Context, filter repositories.VoucherListFilter) (domain.PageResult[domain.Voucher], error) {
	build := func(q firestore.Query) firestore.Query {
		if filter.Status != "" {
			q = q.Where("status", "==", string(filter.Status))
		}
		return q
	}
	return listPage(ctx, r.base, build, filter.Page, "", toDomainVoucher)
}

type voucherDocument struct {
	Code        string    `firestore:"code"`
	Type        string    `firestore:"type"`
	Value       int64     `firestore:"value"`
	MinOrder    *int64    `firestore:"min_order"`
	MaxDiscount *int64    `firestore:"max_discount"`
	UsageLimit  *int64    `firestore:"usage_limit"`
	Used        int64     `firestore:"used"`
	StartAt     time.Time `firestore:"start_at"`
	EndAt       time.Time `firestore:"end_at"`
	Status      string    `firestore:"status"`
	CreatedAt   time.Time `firestore:"created_at"`
	UpdatedAt   time.Time `firestore:"updated_at"`
}

func fromDomainVoucher(v domain.Voucher) voucherDocument {
	return voucherDocument{
		Code:        textutil.NormalizeCode(v.Code),
		Type:        string(v.Type),
		Value:       v.Value,
		MinOrder:    cloneInt64(v.MinOrder),
		MaxDiscount: cloneInt64(v.MaxDiscount),
		UsageLimit:  cloneInt64(v.UsageLimit),
		Used:        v.Used,
		StartAt:     v.StartAt.UTC(),
		EndAt:       v.EndAt.UTC(),
		Status:      string(v.Status),
		CreatedAt:   v.CreatedAt.UTC(),
		UpdatedAt:   v.UpdatedAt.UTC(),
	}
}

func toDomainVoucher(doc pfirestore.Document[voucherDocument]) domain.Voucher {
	d := doc.Data
	v := domain.Voucher{
		ID:          doc.ID,
		Code:        d.Code,
		Type:        domain.VoucherType(d.Type),
		Value:       d.Value,
		MinOrder:    cloneInt64(d.MinOrder),
		MaxDiscount: cloneInt64(d.MaxDiscount),
		UsageLimit:  cloneInt64(d.UsageLimit),
		Used:        d.Used,
		StartAt:     d.StartAt,
		EndAt:       d.EndAt,
		Status:      domain.VoucherStatus(d.Status),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = doc.CreateTime
	}
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = doc.UpdateTime
	}
	return v
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

var _ repositories.VoucherRepository = (*VoucherRepository)(nil)
