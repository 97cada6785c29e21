package handlers

import (
	domain "github.com/vnshop/api/internal/domain"
	"github.com/vnshop/api/internal/services"
)

type brandPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Logo        string `json:"logo"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

func buildBrandPayload(b domain.Brand) brandPayload {
	return brandPayload{
		ID:          b.ID,
		Name:        b.Name,
		Slug:        b.Slug,
		Logo:        b.Logo,
		Description: b.Description,
		CreatedAt:   formatTime(b.CreatedAt),
		UpdatedAt:   formatTime(b.UpdatedAt),
	}
}

type variantPayload struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	Stock     int    `json:"stock"`
	Price     int64  `json:"price"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func buildVariantPayload(v domain.Variant) variantPayload {
	return variantPayload{
		ID:        v.ID,
		ProductID: v.ProductID,
		Color:     v.Color,
		Size:      v.Size,
		Stock:     v.Stock,
		Price:     v.Price,
		CreatedAt: formatTime(v.CreatedAt),
		UpdatedAt: formatTime(v.UpdatedAt),
	}
}

type productPayload struct {
	ID          string           `json:"id"`
	BrandID     string           `json:"brand_id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	BasePrice   int64            `json:"base_price"`
	Category    string           `json:"category"`
	Discount    int64            `json:"discount"`
	Views       int64            `json:"views"`
	Sold        int64            `json:"sold"`
	Favorites   int64            `json:"favorites"`
	Images      []string         `json:"images"`
	Variants    []variantPayload `json:"variants,omitempty"`
	CreatedAt   string           `json:"created_at,omitempty"`
	UpdatedAt   string           `json:"updated_at,omitempty"`
}

func buildProductPayload(p domain.Product) productPayload {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	return productPayload{
		ID:          p.ID,
		BrandID:     p.BrandID,
		Name:        p.Name,
		Description: p.Description,
		BasePrice:   p.BasePrice,
		Category:    p.Category,
		Discount:    p.Discount,
		Views:       p.Views,
		Sold:        p.Sold,
		Favorites:   p.Favorites,
		Images:      images,
		CreatedAt:   formatTime(p.CreatedAt),
		UpdatedAt:   formatTime(p.UpdatedAt),
	}
}

type orderLinePayload struct {
	Brand     string `json:"brand,omitempty"`
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
}

type shippingAddressPayload struct {
	Street   string `json:"street"`
	Ward     string `json:"ward"`
	District string `json:"district"`
	Province string `json:"province"`
	Country  string `json:"country"`
}

func (p shippingAddressPayload) toDomain() domain.ShippingAddress {
	return domain.ShippingAddress{
		Street:   p.Street,
		Ward:     p.Ward,
		District: p.District,
		Province: p.Province,
		Country:  p.Country,
	}
}

type orderPayload struct {
	ID              string                 `json:"id"`
	UserID          string                 `json:"user_id"`
	Username        string                 `json:"username,omitempty"`
	Items           []orderLinePayload     `json:"items"`
	ShippingAddress shippingAddressPayload `json:"shipping_address"`
	PaymentMethod   string                 `json:"payment_method"`
	TotalAmount     int64                  `json:"total_amount"`
	Status          string                 `json:"status"`
	CreatedAt       string                 `json:"created_at,omitempty"`
	UpdatedAt       string                 `json:"updated_at,omitempty"`
}

func buildOrderPayload(o domain.Order) orderPayload {
	return orderPayload{
		ID:     o.ID,
		UserID: o.UserID,
		Items: mapSlice(o.Items, func(line domain.OrderLine) orderLinePayload {
			return orderLinePayload{
				Brand:     line.Brand,
				ProductID: line.ProductID,
				VariantID: line.VariantID,
				Quantity:  line.Quantity,
				Price:     line.Price,
			}
		}),
		ShippingAddress: shippingAddressPayload{
			Street:   o.ShippingAddress.Street,
			Ward:     o.ShippingAddress.Ward,
			District: o.ShippingAddress.District,
			Province: o.ShippingAddress.Province,
			Country:  o.ShippingAddress.Country,
		},
		PaymentMethod: o.PaymentMethod,
		TotalAmount:   o.TotalAmount,
		Status:        string(o.Status),
		CreatedAt:     formatTime(o.CreatedAt),
		UpdatedAt:     formatTime(o.UpdatedAt),
	}
}

type userPayload struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	Avatar      string  `json:"avatar,omitempty"`
	PhoneNumber string  `json:"phone_number,omitempty"`
	BirthDate   *string `json:"birth_date,omitempty"`
	Gender      string  `json:"gender,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
	UpdatedAt   string  `json:"updated_at,omitempty"`
}

func buildUserPayload(u domain.User) userPayload {
	return userPayload{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Avatar:      u.Avatar,
		PhoneNumber: u.PhoneNumber,
		BirthDate:   formatTimePtr(u.BirthDate),
		Gender:      u.Gender,
		CreatedAt:   formatTime(u.CreatedAt),
		UpdatedAt:   formatTime(u.UpdatedAt),
	}
}

// publicUserPayload is what other shoppers may see of a profile.
type publicUserPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

type voucherPayload struct {
	ID          string `json:"id,omitempty"`
	Code        string `json:"code"`
	Type        string `json:"type"`
	Value       int64  `json:"value"`
	MinOrder    *int64 `json:"min_order"`
	MaxDiscount *int64 `json:"max_discount"`
	UsageLimit  *int64 `json:"usage_limit"`
	Used        int64  `json:"used"`
	StartAt     string `json:"start_at"`
	EndAt       string `json:"end_at"`
	Status      string `json:"status,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

func buildVoucherPayload(v domain.Voucher) voucherPayload {
	return voucherPayload{
		ID:          v.ID,
		Code:        v.Code,
		Type:        string(v.Type),
		Value:       v.Value,
		MinOrder:    v.MinOrder,
		MaxDiscount: v.MaxDiscount,
		UsageLimit:  v.UsageLimit,
		Used:        v.Used,
		StartAt:     formatTime(v.StartAt),
		EndAt:       formatTime(v.EndAt),
		Status:      string(v.Status),
		CreatedAt:   formatTime(v.CreatedAt),
		UpdatedAt:   formatTime(v.UpdatedAt),
	}
}

type addressPayload struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Type      string `json:"type"`
	Street    string `json:"street"`
	Province  string `json:"province"`
	District  string `json:"district"`
	Ward      string `json:"ward"`
	IsDefault bool   `json:"is_default"`
	CreatedAt string `json:"created_at,omitempty"`
}

func buildAddressPayload(a domain.Address) addressPayload {
	return addressPayload{
		ID:        a.ID,
		UserID:    a.UserID,
		Type:      string(a.Type),
		Street:    a.Street,
		Province:  a.Province,
		District:  a.District,
		Ward:      a.Ward,
		IsDefault: a.IsDefault,
		CreatedAt: formatTime(a.CreatedAt),
	}
}

type notificationPayload struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	IsRead    bool   `json:"is_read"`
	CreatedAt string `json:"created_at"`
}

func buildNotificationPayload(n domain.Notification) notificationPayload {
	return notificationPayload{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		IsRead:    n.IsRead,
		CreatedAt: formatTime(n.CreatedAt),
	}
}

type reviewPayload struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	Content   string `json:"content"`
	Rating    int    `json:"rating,omitempty"`
	ParentID  string `json:"parent_id,omitempty"`
	RootID    string `json:"root_id,omitempty"`
	Level     int    `json:"level"`
	CreatedAt string `json:"created_at"`
}

func buildReviewPayload(view services.ReviewView) reviewPayload {
	r := view.Review
	return reviewPayload{
		ID:        r.ID,
		ProductID: r.ProductID,
		UserID:    r.UserID,
		Username:  view.Username,
		Avatar:    view.Avatar,
		Content:   r.Content,
		Rating:    r.Rating,
		ParentID:  r.ParentID,
		RootID:    r.RootID,
		Level:     r.Level,
		CreatedAt: formatTime(r.CreatedAt),
	}
}

type uploadPayload struct {
	URL       string            `json:"upload_url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	Object    string            `json:"object"`
	PublicURL string            `json:"public_url,omitempty"`
	ExpiresAt string            `json:"expires_at"`
}

func buildUploadPayload(u services.SignedUpload) uploadPayload {
	return uploadPayload{
		URL:       u.URL,
		Method:    u.Method,
		Headers:   u.Headers,
		Object:    u.Object,
		PublicURL: u.PublicURL,
		ExpiresAt: formatTime(u.ExpiresAt),
	}
}
