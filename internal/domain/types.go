package domain

import (
	"time"
)

// SortOrder is the ?sort_order= of admin lists. Anything but "asc" sorts newest first.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Page is an offset page request. Limit is already clamped by the caller.
type Page struct {
	Page      int
	Limit     int
	SortField string
	SortOrder SortOrder
}

// Offset returns the number of records to skip.
func (p Page) Offset() int {
	if p.Page <= 1 || p.Limit <= 0 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// PageResult is a page of items plus the total count of the filtered set.
type PageResult[T any] struct {
	Items []T
	Total int
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	// OrderStatusPending marks an order awaiting payment.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid marks an order whose payment was confirmed.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusProcessing marks an order being prepared.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped marks an order handed to the carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered marks a completed delivery.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled marks an order cancelled before payment.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusFailed marks an order whose payment attempt failed.
	OrderStatusFailed OrderStatus = "failed"
)

// OrderStatuses lists every accepted status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusFailed,
}

// Valid reports whether s is one of OrderStatuses.
func (s OrderStatus) Valid() bool {
	for _, candidate := range OrderStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// RevenueStatuses are the statuses counted as earned revenue.
var RevenueStatuses = []OrderStatus{OrderStatusPaid, OrderStatusShipped, OrderStatusDelivered}

// ShippingAddress is the delivery address embedded in an order.
type ShippingAddress struct {
	Street   string
	Ward     string
	District string
	Province string
	Country  string
}

// OrderLine is one purchased variant. Price is the unit price in VND.
type OrderLine struct {
	Brand     string
	ProductID string
	VariantID string
	Quantity  int
	Price     int64
}

// Order is the purchase aggregate. UserID is the Firebase UID of the buyer.
type Order struct {
	ID              string
	UserID          string
	Items           []OrderLine
	ShippingAddress ShippingAddress
	PaymentMethod   string
	TotalAmount     int64
	Status          OrderStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Product is a catalog entry. Sold, Views and Favorites are counters maintained with atomic
// increments.
type Product struct {
	ID          string
	BrandID     string
	Name        string
	Description string
	BasePrice   int64
	Category    string
	Discount    int64
	Views       int64
	Sold        int64
	Favorites   int64
	Images      []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Variant is a purchasable color and size combination of a product. Stock never goes below zero.
type Variant struct {
	ID        string
	ProductID string
	Color     string
	Size      string
	Stock     int
	Price     int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Brand groups products.
type Brand struct {
	ID          string
	Name        string
	Slug        string
	Logo        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// VoucherType selects how a voucher discount is computed.
type VoucherType string

const (
	// VoucherTypePercent discounts a percentage of the subtotal.
	VoucherTypePercent VoucherType = "percent"
	// VoucherTypeFixed discounts a fixed amount.
	VoucherTypeFixed VoucherType = "fixed"
)

// VoucherStatus is the administrative state of a voucher.
type VoucherStatus string

const (
	// VoucherStatusActive vouchers can be applied inside their window.
	VoucherStatusActive VoucherStatus = "active"
	// VoucherStatusExpired vouchers are rejected.
	VoucherStatusExpired VoucherStatus = "expired"
)

// Voucher is a discount code. Optional limits are nil when unset.
type Voucher struct {
	ID          string
	Code        string
	Type        VoucherType
	Value       int64
	MinOrder    *int64
	MaxDiscount *int64
	UsageLimit  *int64
	Used        int64
	StartAt     time.Time
	EndAt       time.Time
	Status      VoucherStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// VoucherQuote is the result of applying a voucher to a subtotal.
type VoucherQuote struct {
	Code        string
	Type        VoucherType
	Value       int64
	MinOrder    *int64
	MaxDiscount *int64
	UsageLimit  *int64
	Used        int64
	StartAt     time.Time
	EndAt       time.Time
	Discount    int64
	Subtotal    int64
	Total       int64
}

// User is a shopper profile keyed by Firebase UID.
type User struct {
	ID          string
	Username    string
	Email       string
	Avatar      string
	PhoneNumber string
	BirthDate   *time.Time
	Gender      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AddressType distinguishes home and office addresses.
type AddressType string

const (
	// AddressTypeHome is the default address type.
	AddressTypeHome AddressType = "home"
	// AddressTypeOffice marks a work address.
	AddressTypeOffice AddressType = "office"
)

// Address is a saved delivery address of a user. At most one address per user is default.
type Address struct {
	ID        string
	UserID    string
	Type      AddressType
	Street    string
	Province  string
	District  string
	Ward      string
	IsDefault bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Favorite records that a user liked a product.
type Favorite struct {
	ID        string
	UserID    string
	ProductID string
	CreatedAt time.Time
}

// Notification is an in-app message for a user.
type Notification struct {
	ID        string
	UserID    string
	Title     string
	Message   string
	IsRead    bool
	CreatedAt time.Time
}

// Review is a product rating or a reply in a review thread. Root reviews have Level 0 and an
// empty ParentID; replies point at their thread via RootID.
type Review struct {
	ID        string
	ProductID string
	UserID    string
	Content   string
	Rating    int
	ParentID  string
	RootID    string
	Level     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentRecord is a verified VNPay callback stored for audit and replay detection.
type PaymentRecord struct {
	ID            string
	OrderID       string
	Provider      string
	TransactionNo string
	ResponseCode  string
	Amount        int64
	BankCode      string
	Status        OrderStatus
	Raw           map[string]string
	CreatedAt     time.Time
}

// DailyRevenue is the paid revenue for one calendar day (YYYY-MM-DD).
type DailyRevenue struct {
	Date    string
	Revenue int64
	Orders  int
}

// DashboardStats is the admin overview for a trailing window of days.
type DashboardStats struct {
	Users        int
	Brands       int
	Products     int
	Orders       int
	PaidRevenue  int64
	Daily        []DailyRevenue
	TopProducts  []Product
	RecentOrders []Order
	Days         int
	From         time.Time
	To           time.Time
}

const (
	// HealthStatusOK means every dependency answered.
	HealthStatusOK = "ok"
	// HealthStatusDegraded means an optional dependency failed; the API still serves traffic.
	HealthStatusDegraded = "degraded"
	// HealthStatusError means a required dependency failed.
	HealthStatusError = "error"
)

// SystemHealthCheck is the outcome of one dependency check.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency checks for /readyz.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
