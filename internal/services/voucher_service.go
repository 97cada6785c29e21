package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/vnshop/api/internal/domain"
	"github.com/vnshop/api/internal/platform/textutil"
	"github.com/vnshop/api/internal/repositories"
)

// VoucherServiceDeps wires the voucher service.
type VoucherServiceDeps struct {
	Vouchers    repositories.VoucherRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type voucherService struct {
	vouchers repositories.VoucherRepository
	clock    func() time.Time
	newID    func() string
}

// NewVoucherService constructs a VoucherService.
func NewVoucherService(deps VoucherServiceDeps) (VoucherService, error) {
	if deps.Vouchers == nil {
		return nil, errors.New("voucher service: voucher repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &voucherService{
		vouchers: deps.Vouchers,
		clock:    func() time.Time { return clock().UTC() },
		newID:    idGen,
	}, nil
}

// Apply quotes the voucher against subtotal. It never changes the usage counter.
func (s *voucherService) Apply(ctx context.Context, cmd ApplyVoucherCommand) (VoucherQuote, error) {
	code := textutil.NormalizeCode(cmd.Code)
	if code == "" {
		return VoucherQuote{}, invalidField("code", "Missing code")
	}
	if cmd.Subtotal <= 0 {
		return VoucherQuote{}, invalidField("subtotal", "Invalid subtotal")
	}

	voucher, err := s.vouchers.FindByCode(ctx, code)
	if err != nil {
		return VoucherQuote{}, mapRepositoryError(err, "Voucher not found")
	}
	return quoteVoucher(voucher, cmd.Subtotal, s.clock())
}

func quoteVoucher(v Voucher, subtotal int64, now time.Time) (VoucherQuote, error) {
	switch {
	case v.Status != domain.VoucherStatusActive:
		return VoucherQuote{}, failure(ErrValidation, "Voucher is not active")
	case v.StartAt.IsZero() || v.EndAt.IsZero():
		return VoucherQuote{}, failure(ErrValidation, "Voucher time invalid")
	case now.Before(v.StartAt):
		return VoucherQuote{}, failure(ErrValidation, "Voucher not started yet")
	case now.After(v.EndAt):
		return VoucherQuote{}, failure(ErrValidation, "Voucher expired")
	case v.MinOrder != nil && subtotal < *v.MinOrder:
		return VoucherQuote{}, failure(ErrValidation, fmt.Sprintf("Order must be at least %s", textutil.FormatVND(*v.MinOrder)))
	case v.UsageLimit != nil && v.Used >= *v.UsageLimit:
		return VoucherQuote{}, failure(ErrValidation, "Voucher usage limit reached")
	}

	var discount int64
	if v.Type == domain.VoucherTypeFixed {
		discount = min(subtotal, v.Value)
	} else {
		discount = subtotal * v.Value / 100
		if v.MaxDiscount != nil && *v.MaxDiscount > 0 {
			discount = min(discount, *v.MaxDiscount)
		}
	}
	discount = max(0, discount)

	return VoucherQuote{
		Code:        v.Code,
		Type:        v.Type,
		Value:       v.Value,
		MinOrder:    v.MinOrder,
		MaxDiscount: v.MaxDiscount,
		UsageLimit:  v.UsageLimit,
		Used:        v.Used,
		StartAt:     v.StartAt,
		EndAt:       v.EndAt,
		Discount:    discount,
		Subtotal:    subtotal,
		Total:       max(0, subtotal-discount),
	}, nil
}

func (s *voucherService) List(ctx context.Context, filter VoucherFilter) (domain.PageResult[Voucher], error) {
	listFilter := repositories.VoucherListFilter{Page: filter.Page}
	switch status := strings.TrimSpace(filter.Status); status {
	case "", "all":
	case string(domain.VoucherStatusActive), string(domain.VoucherStatusExpired):
		listFilter.Status = domain.VoucherStatus(status)
	default:
		return domain.PageResult[Voucher]{}, invalidField("status", "Invalid status filter")
	}
	page, err := s.vouchers.List(ctx, listFilter)
	if err != nil {
		return domain.PageResult[Voucher]{}, mapRepositoryError(err, "")
	}
	return page, nil
}

func (s *voucherService) Get(ctx context.Context, id string) (Voucher, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Voucher{}, invalidField("id", "Invalid voucher id")
	}
	voucher, err := s.vouchers.Get(ctx, id)
	if err != nil {
		return Voucher{}, mapRepositoryError(err, "Voucher not found")
	}
	return voucher, nil
}

func (s *voucherService) Create(ctx context.Context, input VoucherInput) (Voucher, error) {
	code := textutil.NormalizeCode(input.Code)
	if code == "" {
		return Voucher{}, invalidField("code", "Missing code")
	}
	voucherType := domain.VoucherType(strings.TrimSpace(input.Type))
	if voucherType != domain.VoucherTypePercent && voucherType != domain.VoucherTypeFixed {
		return Voucher{}, invalidField("type", "Invalid type")
	}
	if input.Value <= 0 {
		return Voucher{}, invalidField("value", "Value must be > 0")
	}
	if voucherType == domain.VoucherTypePercent && input.Value > 100 {
		return Voucher{}, invalidField("value", "Percent max 100")
	}
	if input.StartAt == nil || input.StartAt.IsZero() {
		return Voucher{}, invalidField("startAt", "Invalid startAt")
	}
	if input.EndAt == nil || input.EndAt.IsZero() {
		return Voucher{}, invalidField("endAt", "Invalid endAt")
	}
	if !input.EndAt.After(*input.StartAt) {
		return Voucher{}, invalidField("endAt", "endAt must be > startAt")
	}
	status := domain.VoucherStatus(strings.TrimSpace(input.Status))
	if status == "" {
		status = domain.VoucherStatusActive
	}
	if status != domain.VoucherStatusActive && status != domain.VoucherStatusExpired {
		return Voucher{}, invalidField("status", "Invalid status")
	}
	if voucherType == domain.VoucherTypePercent && input.MaxDiscount != nil && *input.MaxDiscount <= 0 {
		return Voucher{}, invalidField("maxDiscount", "maxDiscount must be > 0")
	}
	if input.MinOrder != nil && *input.MinOrder <= 0 {
		return Voucher{}, invalidField("minOrder", "minOrder must be > 0")
	}
	if input.UsageLimit != nil && *input.UsageLimit <= 0 {
		return Voucher{}, invalidField("usageLimit", "usageLimit must be > 0")
	}

	if _, err := s.vouchers.FindByCode(ctx, code); err == nil {
		return Voucher{}, fieldFailure(ErrConflict, "code", "Code already exists")
	} else if !isRepositoryNotFound(err) {
		return Voucher{}, mapRepositoryError(err, "")
	}

	now := s.clock()
	voucher := Voucher{
		ID:         s.newID(),
		Code:       code,
		Type:       voucherType,
		Value:      input.Value,
		MinOrder:   positive(input.MinOrder),
		UsageLimit: positive(input.UsageLimit),
		StartAt:    input.StartAt.UTC(),
		EndAt:      input.EndAt.UTC(),
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if voucherType == domain.VoucherTypePercent {
		voucher.MaxDiscount = positive(input.MaxDiscount)
	}
	if input.Used != nil && *input.Used > 0 {
		voucher.Used = *input.Used
	}

	if err := s.vouchers.Insert(ctx, voucher); err != nil {
		if isRepositoryConflict(err) {
			return Voucher{}, fieldFailure(ErrConflict, "code", "Code already exists")
		}
		return Voucher{}, mapRepositoryError(err, "")
	}
	return voucher, nil
}

func (s *voucherService) Update(ctx context.Context, id string, patch VoucherPatch) (Voucher, error) {
	voucher, err := s.Get(ctx, id)
	if err != nil {
		return Voucher{}, err
	}

	if patch.Code != nil {
		code := textutil.NormalizeCode(*patch.Code)
		if code == "" {
			return Voucher{}, invalidField("code", "Code is required")
		}
		if code != voucher.Code {
			existing, err := s.vouchers.FindByCode(ctx, code)
			switch {
			case err == nil && existing.ID != voucher.ID:
				return Voucher{}, fieldFailure(ErrConflict, "code", "Code already exists")
			case err != nil && !isRepositoryNotFound(err):
				return Voucher{}, mapRepositoryError(err, "")
			}
		}
		voucher.Code = code
	}
	if patch.Type != nil {
		voucherType := domain.VoucherType(strings.TrimSpace(*patch.Type))
		if voucherType != domain.VoucherTypePercent && voucherType != domain.VoucherTypeFixed {
			return Voucher{}, invalidField("type", "Invalid type")
		}
		voucher.Type = voucherType
	}
	if patch.Value != nil {
		if *patch.Value <= 0 {
			return Voucher{}, invalidField("value", "Value must be > 0")
		}
		voucher.Value = *patch.Value
	}
	if voucher.Type == domain.VoucherTypePercent && voucher.Value > 100 {
		return Voucher{}, invalidField("value", "Percent max 100")
	}
	if patch.MinOrder != nil {
		voucher.MinOrder = positive(patch.MinOrder)
	}
	if patch.MaxDiscount != nil {
		voucher.MaxDiscount = positive(patch.MaxDiscount)
	}
	if patch.UsageLimit != nil {
		voucher.UsageLimit = positive(patch.UsageLimit)
	}
	if patch.Used != nil {
		voucher.Used = max(0, *patch.Used)
	}
	if patch.StartAt != nil {
		if patch.StartAt.IsZero() {
			return Voucher{}, invalidField("startAt", "Invalid startAt")
		}
		voucher.StartAt = patch.StartAt.UTC()
	}
	if patch.EndAt != nil {
		if patch.EndAt.IsZero() {
			return Voucher{}, invalidField("endAt", "Invalid endAt")
		}
		voucher.EndAt = patch.EndAt.UTC()
	}
	if patch.Status != nil {
		status := domain.VoucherStatus(strings.TrimSpace(*patch.Status))
		if status != domain.VoucherStatusActive && status != domain.VoucherStatusExpired {
			return Voucher{}, invalidField("status", "Invalid status")
		}
		voucher.Status = status
	}
	voucher.UpdatedAt = s.clock()

	if err := s.vouchers.Save(ctx, voucher); err != nil {
		return Voucher{}, mapRepositoryError(err, "Voucher not found")
	}
	return voucher, nil
}

func (s *voucherService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return invalidField("id", "Invalid voucher id")
	}
	return mapRepositoryError(s.vouchers.Delete(ctx, id), "Voucher not found")
}

// positive copies v when it is set and greater than zero.
func positive(v *int64) *int64 {
	if v == nil || *v <= 0 {
		return nil
	}
	out := *v
	return &out
}
