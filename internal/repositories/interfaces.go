package repositories

import (
	"context"
	"time"

	domain "github.com/vnshop/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Users() UserRepository
	Brands() BrandRepository
	Products() ProductRepository
	Variants() VariantRepository
	Orders() OrderRepository
	Vouchers() VoucherRepository
	Favorites() FavoriteRepository
	Addresses() AddressRepository
	Notifications() NotificationRepository
	Reviews() ReviewRepository
	Payments() PaymentRepository
	Health() HealthRepository
	InventoryUnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// InventoryUnitOfWork runs order placement and cancellation atomically. fn may be invoked more
// than once when the backend retries on contention, so it must not have side effects outside tx.
type InventoryUnitOfWork interface {
	RunInventoryTx(ctx context.Context, fn func(ctx context.Context, tx InventoryTx) error) error
}

// InventoryTx is the set of reads and writes available inside an inventory transaction. Every
// read must happen before the first write.
type InventoryTx interface {
	Order(ctx context.Context, orderID string) (domain.Order, error)
	// Products and Variants return only the documents that exist, keyed by id.
	Products(ctx context.Context, ids []string) (map[string]domain.Product, error)
	Variants(ctx context.Context, ids []string) (map[string]domain.Variant, error)

	InsertOrder(ctx context.Context, order domain.Order) error
	UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus, now time.Time) error
	IncrementVariantStock(ctx context.Context, variantID string, delta int, now time.Time) error
	IncrementProductSold(ctx context.Context, productID string, delta int, now time.Time) error
	SetProductSold(ctx context.Context, productID string, sold int64, now time.Time) error
}

// UserListFilter narrows the admin user listing. Query matches an email prefix when it contains
// "@" and a username prefix otherwise.
type UserListFilter struct {
	Query string
	Page  domain.Page
}

// UserRepository persists shopper profiles keyed by Firebase UID.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	Save(ctx context.Context, user domain.User) error
	Get(ctx context.Context, uid string) (domain.User, error)
	GetMany(ctx context.Context, uids []string) (map[string]domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	Delete(ctx context.Context, uid string) error
	List(ctx context.Context, filter UserListFilter) (domain.PageResult[domain.User], error)
	Count(ctx context.Context) (int, error)
}

// BrandListFilter narrows brand listings by a normalized name prefix.
type BrandListFilter struct {
	Query string
	Page  domain.Page
}

// BrandRepository persists brands.
type BrandRepository interface {
	Insert(ctx context.Context, brand domain.Brand) error
	Save(ctx context.Context, brand domain.Brand) error
	Get(ctx context.Context, id string) (domain.Brand, error)
	FindBySlug(ctx context.Context, slug string) (domain.Brand, error)
	FindByName(ctx context.Context, name string) (domain.Brand, error)
	Delete(ctx context.Context, id string) error
	ListAll(ctx context.Context) ([]domain.Brand, error)
	List(ctx context.Context, filter BrandListFilter) (domain.PageResult[domain.Brand], error)
	Count(ctx context.Context) (int, error)
}

// ProductFeed names the fixed storefront rankings.
type ProductFeed string

const (
	// ProductFeedForYou ranks by views.
	ProductFeedForYou ProductFeed = "foryou"
	// ProductFeedPopular ranks by favorites then sold.
	ProductFeedPopular ProductFeed = "popular"
	// ProductFeedNewest ranks by creation time.
	ProductFeedNewest ProductFeed = "newest"
	// ProductFeedBestSelling ranks by sold.
	ProductFeedBestSelling ProductFeed = "best_selling"
)

// ProductListFilter narrows product listings. Query is a normalized name prefix.
type ProductListFilter struct {
	BrandID string
	Query   string
	Page    domain.Page
}

// ProductRepository persists catalog products and their counters.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Save(ctx context.Context, product domain.Product) error
	Get(ctx context.Context, id string) (domain.Product, error)
	GetMany(ctx context.Context, ids []string) (map[string]domain.Product, error)
	// Delete removes the product together with its variants.
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ProductListFilter) (domain.PageResult[domain.Product], error)
	Feed(ctx context.Context, feed ProductFeed, limit int) ([]domain.Product, error)
	IncrementViews(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// VariantRepository persists product variants.
type VariantRepository interface {
	Insert(ctx context.Context, variant domain.Variant) error
	Save(ctx context.Context, variant domain.Variant) error
	Get(ctx context.Context, id string) (domain.Variant, error)
	FindByAttributes(ctx context.Context, productID, color, size string) (domain.Variant, error)
	ListByProduct(ctx context.Context, productID string) ([]domain.Variant, error)
	Delete(ctx context.Context, id string) error
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	UserID string
	Status domain.OrderStatus
	Page   domain.Page
}

// OrderRepository persists orders outside of the inventory transaction.
type OrderRepository interface {
	Get(ctx context.Context, id string) (domain.Order, error)
	Save(ctx context.Context, order domain.Order) error
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, now time.Time) error
	UpdateShippingAddress(ctx context.Context, id string, address domain.ShippingAddress, now time.Time) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter OrderListFilter) (domain.PageResult[domain.Order], error)
	ListCreatedBetween(ctx context.Context, from, to time.Time, statuses []domain.OrderStatus) ([]domain.Order, error)
	SumTotal(ctx context.Context, statuses []domain.OrderStatus) (int64, error)
	Count(ctx context.Context) (int, error)
}

// VoucherListFilter narrows the admin voucher listing. An empty Status matches all.
type VoucherListFilter struct {
	Status domain.VoucherStatus
	Page   domain.Page
}

// VoucherRepository persists vouchers. Codes are stored upper-cased.
type VoucherRepository interface {
	Insert(ctx context.Context, voucher domain.Voucher) error
	Save(ctx context.Context, voucher domain.Voucher) error
	Get(ctx context.Context, id string) (domain.Voucher, error)
	FindByCode(ctx context.Context, code string) (domain.Voucher, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter VoucherListFilter) (domain.PageResult[domain.Voucher], error)
}

// FavoriteRepository persists per-user product favorites.
type FavoriteRepository interface {
	// Toggle adds or removes the favorite and adjusts the product counter atomically. It reports
	// whether the product is a favorite afterwards.
	Toggle(ctx context.Context, userID, productID string, now time.Time) (bool, error)
	List(ctx context.Context, userID string) ([]domain.Favorite, error)
}

// AddressRepository persists saved addresses of a user.
type AddressRepository interface {
	// Insert stores the address; the first address of a user becomes the default.
	Insert(ctx context.Context, address domain.Address) (domain.Address, error)
	List(ctx context.Context, userID string) ([]domain.Address, error)
	SetDefault(ctx context.Context, userID, addressID string, now time.Time) error
	Delete(ctx context.Context, userID, addressID string) error
}

// NotificationRepository persists in-app notifications.
type NotificationRepository interface {
	Insert(ctx context.Context, notification domain.Notification) error
	List(ctx context.Context, userID string) ([]domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
	Delete(ctx context.Context, userID, notificationID string) error
}

// ReviewRepository persists product reviews and reply threads.
type ReviewRepository interface {
	Insert(ctx context.Context, review domain.Review) error
	Get(ctx context.Context, id string) (domain.Review, error)
	ListByProduct(ctx context.Context, productID string) ([]domain.Review, error)
	ListThread(ctx context.Context, rootID string) ([]domain.Review, error)
	// DeleteTree removes the review and every reply below it, returning the number deleted.
	DeleteTree(ctx context.Context, review domain.Review) (int, error)
}

// PaymentRepository is the ledger of verified gateway callbacks.
type PaymentRepository interface {
	// Record fails with a conflict when the record id already exists.
	Record(ctx context.Context, record domain.PaymentRecord) error
	ListByOrder(ctx context.Context, orderID string) ([]domain.PaymentRecord, error)
}

// HealthRepository surfaces dependency health for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
