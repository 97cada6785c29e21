package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vnshop/api/internal/platform/config"
	"github.com/vnshop/api/internal/platform/observability"
	"github.com/vnshop/api/internal/repositories"
	"github.com/vnshop/api/internal/services"
)

const (
	reportingTimezone = "Asia/Ho_Chi_Minh"
	healthCacheTTL    = 2 * time.Second
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Users         services.UserService
	Catalog       services.CatalogService
	Favorites     services.FavoriteService
	Addresses     services.AddressService
	Notifications services.NotificationService
	Orders        services.OrderService
	Payments      services.PaymentService
	Vouchers      services.VoucherService
	Reviews       services.ReviewService
	Dashboard     services.DashboardService
	Uploads       services.UploadService
	System        services.SystemService
}

// Infrastructure carries the adapters built in main that services depend on. Events, Uploads
// and Logger are optional.
type Infrastructure struct {
	Logger   *zap.Logger
	Events   services.OrderEventPublisher
	Gateway  services.PaymentGateway
	Uploads  services.UploadSigner
	Build    services.BuildInfo
	Clock    func() time.Time
	Location *time.Location
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring passes the Firestore
// registry, while tests can supply in-memory registries.
func NewContainer(cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if infra.Gateway == nil {
		return nil, errors.New("payment gateway is required")
	}

	svc, err := buildServices(cfg, reg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases the repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, infra Infrastructure) (Services, error) {
	var svc Services

	logger := infra.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}
	location := infra.Location
	if location == nil {
		location = ReportingLocation()
	}

	userSvc, err := services.NewUserService(services.UserServiceDeps{
		Users: reg.Users(),
		Clock: clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}
	svc.Users = userSvc

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Brands:   reg.Brands(),
		Products: reg.Products(),
		Variants: reg.Variants(),
		Clock:    clock,
		Logger:   observability.ServiceLogger(logger.Named("catalog")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	favoriteSvc, err := services.NewFavoriteService(services.FavoriteServiceDeps{
		Favorites: reg.Favorites(),
		Products:  reg.Products(),
		Clock:     clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build favorite service: %w", err)
	}
	svc.Favorites = favoriteSvc

	addressSvc, err := services.NewAddressService(services.AddressServiceDeps{
		Addresses: reg.Addresses(),
		Clock:     clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build address service: %w", err)
	}
	svc.Addresses = addressSvc

	notificationSvc, err := services.NewNotificationService(services.NotificationServiceDeps{
		Notifications: reg.Notifications(),
		Clock:         clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build notification service: %w", err)
	}
	svc.Notifications = notificationSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:        reg.Orders(),
		Users:         reg.Users(),
		Inventory:     reg,
		Notifications: notificationSvc,
		Events:        infra.Events,
		Clock:         clock,
		Logger:        observability.ServiceLogger(logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:   orderSvc,
		Payments: reg.Payments(),
		Gateway:  infra.Gateway,
		Clock:    clock,
		Logger:   observability.ServiceLogger(logger.Named("payments")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	voucherSvc, err := services.NewVoucherService(services.VoucherServiceDeps{
		Vouchers: reg.Vouchers(),
		Clock:    clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build voucher service: %w", err)
	}
	svc.Vouchers = voucherSvc

	reviewSvc, err := services.NewReviewService(services.ReviewServiceDeps{
		Reviews:  reg.Reviews(),
		Products: reg.Products(),
		Users:    reg.Users(),
		Clock:    clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build review service: %w", err)
	}
	svc.Reviews = reviewSvc

	dashboardSvc, err := services.NewDashboardService(services.DashboardServiceDeps{
		Users:    reg.Users(),
		Brands:   reg.Brands(),
		Products: reg.Products(),
		Orders:   reg.Orders(),
		Clock:    clock,
		Location: location,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build dashboard service: %w", err)
	}
	svc.Dashboard = dashboardSvc

	// Uploads stay disabled until a bucket and signer are configured.
	if infra.Uploads != nil {
		uploadSvc, err := services.NewUploadService(services.UploadServiceDeps{
			Signer:  infra.Uploads,
			MaxSize: cfg.Storage.MaxUploadBytes,
			TTL:     cfg.Storage.UploadURLTTL,
			Logger:  observability.ServiceLogger(logger.Named("uploads")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build upload service: %w", err)
		}
		svc.Uploads = uploadSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		build := infra.Build
		if build.Environment == "" {
			build.Environment = cfg.Environment
		}
		if build.StartedAt.IsZero() {
			build.StartedAt = clock().UTC()
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            build,
			CacheTTL:         healthCacheTTL,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

// ReportingLocation is the zone dashboard days are cut in. The process imports time/tzdata, so
// the fixed offset only applies to binaries built without it.
func ReportingLocation() *time.Location {
	if loc, err := time.LoadLocation(reportingTimezone); err == nil {
		return loc
	}
	return time.FixedZone("ICT", 7*60*60)
}
