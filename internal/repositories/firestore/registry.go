package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	pfirestore "github.com/vnshop/api/internal/platform/firestore"
	"github.com/vnshop/api/internal/repositories"
)

const healthCheckTimeout = 2 * time.Second

// Registry bundles every Firestore repository over a shared provider.
type Registry struct {
	provider *pfirestore.Provider
	health   repositories.HealthRepository

	users         *UserRepository
	brands        *BrandRepository
	products      *ProductRepository
	variants      *VariantRepository
	orders        *OrderRepository
	vouchers      *VoucherRepository
	favorites     *FavoriteRepository
	addresses     *AddressRepository
	notifications *NotificationRepository
	reviews       *ReviewRepository
	payments      *PaymentRepository
	inventory     *InventoryRepository
}

// NewRegistry builds all repositories. health may be nil, in which case a Firestore ping is the
// only readiness check.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	reg := &Registry{provider: provider, health: health}

	var err error
	build := func(name string, fn func() error) {
		if err != nil {
			return
		}
		if e := fn(); e != nil {
			err = fmt.Errorf("%s repository: %w", name, e)
		}
	}
	build("user", func() (e error) { reg.users, e = NewUserRepository(provider); return })
	build("brand", func() (e error) { reg.brands, e = NewBrandRepository(provider); return })
	build("product", func() (e error) { reg.products, e = NewProductRepository(provider); return })
	build("variant", func() (e error) { reg.variants, e = NewVariantRepository(provider); return })
	build("order", func() (e error) { reg.orders, e = NewOrderRepository(provider); return })
	build("voucher", func() (e error) { reg.vouchers, e = NewVoucherRepository(provider); return })
	build("favorite", func() (e error) { reg.favorites, e = NewFavoriteRepository(provider); return })
	build("address", func() (e error) { reg.addresses, e = NewAddressRepository(provider); return })
	build("notification", func() (e error) { reg.notifications, e = NewNotificationRepository(provider); return })
	build("review", func() (e error) { reg.reviews, e = NewReviewRepository(provider); return })
	build("payment", func() (e error) { reg.payments, e = NewPaymentRepository(provider); return })
	build("inventory", func() (e error) { reg.inventory, e = NewInventoryRepository(provider); return })
	if err != nil {
		return nil, err
	}

	if reg.health == nil {
		reg.health, err = repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
			{Name: "firestore", Check: provider.Ping},
		}, repositories.WithDependencyTimeout(healthCheckTimeout))
		if err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) Users() repositories.UserRepository                 { return r.users }
func (r *Registry) Brands() repositories.BrandRepository               { return r.brands }
func (r *Registry) Products() repositories.ProductRepository           { return r.products }
func (r *Registry) Variants() repositories.VariantRepository           { return r.variants }
func (r *Registry) Orders() repositories.OrderRepository               { return r.orders }
func (r *Registry) Vouchers() repositories.VoucherRepository           { return r.vouchers }
func (r *Registry) Favorites() repositories.FavoriteRepository         { return r.favorites }
func (r *Registry) Addresses() repositories.AddressRepository          { return r.addresses }
func (r *Registry) Notifications() repositories.NotificationRepository { return r.notifications }
func (r *Registry) Reviews() repositories.ReviewRepository             { return r.reviews }
func (r *Registry) Payments() repositories.PaymentRepository           { return r.payments }
func (r *Registry) Health() repositories.HealthRepository              { return r.health }

func (r *Registry) RunInventoryTx(ctx context.Context, fn func(ctx context.Context, tx repositories.InventoryTx) error) error {
	return r.inventory.RunInventoryTx(ctx, fn)
}

var _ repositories.Registry = (*Registry)(nil)
