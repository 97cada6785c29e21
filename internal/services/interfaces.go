package services

import (
	"context"
	"net/url"
	"time"

	domain "github.com/vnshop/api/internal/domain"
	pstorage "github.com/vnshop/api/internal/platform/storage"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Page               = domain.Page
	Order              = domain.Order
	OrderLine          = domain.OrderLine
	OrderStatus        = domain.OrderStatus
	ShippingAddress    = domain.ShippingAddress
	Product            = domain.Product
	Variant            = domain.Variant
	Brand              = domain.Brand
	Voucher            = domain.Voucher
	VoucherQuote       = domain.VoucherQuote
	User               = domain.User
	Address            = domain.Address
	Favorite           = domain.Favorite
	Notification       = domain.Notification
	Review             = domain.Review
	PaymentRecord      = domain.PaymentRecord
	DashboardStats     = domain.DashboardStats
	SystemHealthReport = domain.SystemHealthReport
)

// Actor identifies the caller of an ownership-checked operation.
type Actor struct {
	UserID string
	Admin  bool
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// Order event types.
const (
	OrderEventCreated       = "order.created"
	OrderEventCancelled     = "order.cancelled"
	OrderEventStatusChanged = "order.status.changed"
)

// OrderEvent is the payload published for order lifecycle changes.
type OrderEvent struct {
	Type        string    `json:"type"`
	OrderID     string    `json:"orderId"`
	UserID      string    `json:"userId"`
	Status      string    `json:"status"`
	TotalAmount int64     `json:"totalAmount"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// OrderService owns the order lifecycle and the stock and sold counters it moves.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	Get(ctx context.Context, actor Actor, orderID string) (Order, error)
	ListForUser(ctx context.Context, userID string) ([]Order, error)
	Cancel(ctx context.Context, actor Actor, orderID string) (Order, error)
	Reorder(ctx context.Context, actor Actor, orderID string) (ReorderPayload, error)
	UpdateShippingAddress(ctx context.Context, actor Actor, orderID string, address ShippingAddress) (Order, error)
	UpdateStatus(ctx context.Context, orderID string, status OrderStatus) (Order, error)
	AdminList(ctx context.Context, filter AdminOrderFilter) (AdminOrderPage, error)
	AdminUpdate(ctx context.Context, cmd UpdateOrderCommand) (Order, error)
	Delete(ctx context.Context, orderID string) error
}

// OrderItemInput is one requested line of a new order. Price and Brand are optional; the
// variant price is used when Price is zero.
type OrderItemInput struct {
	Brand     string
	ProductID string
	VariantID string
	Quantity  int
	Price     int64
}

// CreateOrderCommand places an order for UserID.
type CreateOrderCommand struct {
	UserID          string
	Items           []OrderItemInput
	ShippingAddress ShippingAddress
	PaymentMethod   string
	TotalAmount     int64
}

// ReorderItem is one line of a reorder payload.
type ReorderItem struct {
	ProductID string
	VariantID string
	Quantity  int
}

// ReorderPayload lets a client rebuild a previous order.
type ReorderPayload struct {
	OrderID string
	Items   []ReorderItem
}

// AdminOrderFilter drives the admin order listing. Status is "all", empty or an order status.
// Query matches an order id, a user id or a status.
type AdminOrderFilter struct {
	Query  string
	Status string
	Page   Page
}

// AdminOrderPage is a page of orders with the buyer usernames resolved.
type AdminOrderPage struct {
	Orders    domain.PageResult[Order]
	Usernames map[string]string
}

// UpdateOrderCommand is a partial admin update. Nil fields are left untouched.
type UpdateOrderCommand struct {
	OrderID         string
	Status          *string
	PaymentMethod   *string
	TotalAmount     *int64
	ShippingAddress *ShippingAddress
	Items           *[]OrderLine
}

// VoucherService applies and administers vouchers.
type VoucherService interface {
	Apply(ctx context.Context, cmd ApplyVoucherCommand) (VoucherQuote, error)
	List(ctx context.Context, filter VoucherFilter) (domain.PageResult[Voucher], error)
	Get(ctx context.Context, id string) (Voucher, error)
	Create(ctx context.Context, input VoucherInput) (Voucher, error)
	Update(ctx context.Context, id string, patch VoucherPatch) (Voucher, error)
	Delete(ctx context.Context, id string) error
}

// ApplyVoucherCommand quotes a voucher against a subtotal.
type ApplyVoucherCommand struct {
	Code     string
	Subtotal int64
}

// VoucherFilter drives the admin voucher listing. Status is "all", empty, "active" or "expired".
type VoucherFilter struct {
	Status string
	Page   Page
}

// VoucherInput creates a voucher. Nil optional limits mean unlimited.
type VoucherInput struct {
	Code        string
	Type        string
	Value       int64
	MinOrder    *int64
	MaxDiscount *int64
	UsageLimit  *int64
	Used        *int64
	StartAt     *time.Time
	EndAt       *time.Time
	Status      string
}

// VoucherPatch is a partial voucher update. A limit set to zero or less clears it.
type VoucherPatch struct {
	Code        *string
	Type        *string
	Value       *int64
	MinOrder    *int64
	MaxDiscount *int64
	UsageLimit  *int64
	Used        *int64
	StartAt     *time.Time
	EndAt       *time.Time
	Status      *string
}

// PaymentService integrates the VNPay redirect flow.
type PaymentService interface {
	CreatePaymentURL(ctx context.Context, cmd CreatePaymentURLCommand) (string, error)
	HandleReturn(ctx context.Context, params url.Values) (PaymentResult, error)
}

// CreatePaymentURLCommand requests a signed VNPay redirect for an order.
type CreatePaymentURLCommand struct {
	Actor    Actor
	OrderID  string
	ClientIP string
}

// PaymentResult is the outcome of a verified VNPay return. Duplicate is set when the callback
// was already processed.
type PaymentResult struct {
	OrderID      string
	Status       OrderStatus
	ResponseCode string
	Message      string
	Duplicate    bool
}

// NotificationService manages in-app notifications.
type NotificationService interface {
	Notify(ctx context.Context, userID, title, message string) (Notification, error)
	List(ctx context.Context, userID string) ([]Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
	Delete(ctx context.Context, userID, notificationID string) error
}

// CatalogService serves brands, products and variants to shoppers and admins.
type CatalogService interface {
	ListBrands(ctx context.Context) ([]Brand, error)
	GetBrandBySlug(ctx context.Context, slug string) (Brand, error)
	AdminListBrands(ctx context.Context, filter CatalogFilter) (domain.PageResult[Brand], error)
	GetBrand(ctx context.Context, id string) (Brand, error)
	CreateBrand(ctx context.Context, input BrandInput) (Brand, error)
	UpdateBrand(ctx context.Context, id string, patch BrandPatch) (Brand, error)
	DeleteBrand(ctx context.Context, id string) error

	Feed(ctx context.Context, feed string) ([]Product, error)
	ListByBrand(ctx context.Context, brandID string) ([]Product, error)
	Search(ctx context.Context, query string) ([]Product, error)
	ViewProduct(ctx context.Context, id string) (ProductDetail, error)
	AdminListProducts(ctx context.Context, filter CatalogFilter) (domain.PageResult[Product], error)
	GetProduct(ctx context.Context, id string) (Product, error)
	CreateProduct(ctx context.Context, input ProductInput) (Product, error)
	UpdateProduct(ctx context.Context, id string, patch ProductPatch) (Product, error)
	DeleteProduct(ctx context.Context, id string) error

	ListVariants(ctx context.Context, productID string) ([]Variant, error)
	CreateVariant(ctx context.Context, productID string, input VariantInput) (Variant, error)
	UpdateVariant(ctx context.Context, id string, patch VariantPatch) (Variant, error)
	DeleteVariant(ctx context.Context, id string) error
}

// CatalogFilter drives admin brand and product listings. Query is a name prefix.
type CatalogFilter struct {
	Query   string
	BrandID string
	Page    Page
}

// ProductDetail is a product with its variants.
type ProductDetail struct {
	Product  Product
	Variants []Variant
}

// BrandInput creates a brand.
type BrandInput struct {
	Name        string
	Slug        string
	Logo        string
	Description string
}

// BrandPatch is a partial brand update.
type BrandPatch struct {
	Name        *string
	Slug        *string
	Logo        *string
	Description *string
}

// ProductInput creates a product.
type ProductInput struct {
	BrandID     string
	Name        string
	Description string
	BasePrice   int64
	Category    string
	Discount    int64
	Images      []string
}

// ProductPatch is a partial product update.
type ProductPatch struct {
	BrandID     *string
	Name        *string
	Description *string
	BasePrice   *int64
	Category    *string
	Discount    *int64
	Images      *[]string
}

// VariantInput creates a variant.
type VariantInput struct {
	Color string
	Size  string
	Stock int
	Price int64
}

// VariantPatch is a partial variant update.
type VariantPatch struct {
	Color *string
	Size  *string
	Stock *int
	Price *int64
}

// UserService manages shopper profiles.
type UserService interface {
	Register(ctx context.Context, cmd RegisterUserCommand) (User, error)
	Get(ctx context.Context, uid string) (User, error)
	UpdateProfile(ctx context.Context, uid string, patch ProfilePatch) (User, error)
	UpdateAvatar(ctx context.Context, uid, avatar string) (User, error)
	AdminList(ctx context.Context, filter UserFilter) (domain.PageResult[User], error)
	AdminCreate(ctx context.Context, cmd RegisterUserCommand) (User, error)
	AdminUpdate(ctx context.Context, uid string, patch UserPatch) (User, error)
	Delete(ctx context.Context, uid string) error
}

// RegisterUserCommand creates a profile for a Firebase account.
type RegisterUserCommand struct {
	UID         string
	Username    string
	Email       string
	Avatar      string
	PhoneNumber string
	BirthDate   *time.Time
	Gender      string
}

// ProfilePatch is the self-service profile update.
type ProfilePatch struct {
	Username    *string
	PhoneNumber *string
	BirthDate   *time.Time
	Gender      *string
}

// UserPatch is the admin profile update. The UID is immutable.
type UserPatch struct {
	Username    *string
	Email       *string
	Avatar      *string
	PhoneNumber *string
	BirthDate   *time.Time
	Gender      *string
}

// UserFilter drives the admin user listing.
type UserFilter struct {
	Query string
	Page  Page
}

// AddressService manages saved addresses.
type AddressService interface {
	Add(ctx context.Context, cmd AddAddressCommand) (Address, error)
	List(ctx context.Context, userID string) ([]Address, error)
	SetDefault(ctx context.Context, userID, addressID string) error
	Delete(ctx context.Context, userID, addressID string) error
}

// AddAddressCommand saves a new address for UserID.
type AddAddressCommand struct {
	UserID    string
	Type      string
	Street    string
	Province  string
	District  string
	Ward      string
	IsDefault bool
}

// FavoriteService toggles and lists favorite products.
type FavoriteService interface {
	Toggle(ctx context.Context, userID, productID string) (bool, error)
	List(ctx context.Context, userID string) ([]FavoriteProduct, error)
}

// FavoriteProduct is a favorite with its product resolved. Product is nil when the product was
// deleted.
type FavoriteProduct struct {
	Favorite Favorite
	Product  *Product
}

// ReviewService manages product reviews and reply threads.
type ReviewService interface {
	Create(ctx context.Context, cmd CreateReviewCommand) (Review, error)
	ListByProduct(ctx context.Context, productID string) ([]ReviewView, error)
	ListThread(ctx context.Context, rootID string) ([]ReviewView, error)
	Delete(ctx context.Context, actor Actor, reviewID string) (int, error)
}

// CreateReviewCommand posts a review, or a reply when ParentID is set.
type CreateReviewCommand struct {
	UserID    string
	ProductID string
	Content   string
	Rating    int
	ParentID  string
}

// ReviewView is a review joined with its author's public profile.
type ReviewView struct {
	Review   Review
	Username string
	Avatar   string
}

// UploadService issues signed upload URLs for product images and avatars.
type UploadService interface {
	IssueUpload(ctx context.Context, cmd UploadCommand) (SignedUpload, error)
}

// SignedUpload is a browser upload target.
type SignedUpload = pstorage.SignedUpload

// UploadCommand requests an upload URL. OwnerID is the product id (optional) for product images
// and the user id for avatars.
type UploadCommand struct {
	Purpose     pstorage.Purpose
	OwnerID     string
	ContentType string
}

// DashboardService computes the admin overview.
type DashboardService interface {
	Stats(ctx context.Context, days int) (DashboardStats, error)
}

// SystemService exposes health information for readiness checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}
