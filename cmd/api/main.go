package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/vnshop/api/internal/di"
	"github.com/vnshop/api/internal/handlers"
	"github.com/vnshop/api/internal/payments"
	"github.com/vnshop/api/internal/platform/auth"
	"github.com/vnshop/api/internal/platform/config"
	"github.com/vnshop/api/internal/platform/events"
	pfirestore "github.com/vnshop/api/internal/platform/firestore"
	"github.com/vnshop/api/internal/platform/idempotency"
	"github.com/vnshop/api/internal/platform/observability"
	"github.com/vnshop/api/internal/platform/ratelimit"
	"github.com/vnshop/api/internal/platform/secrets"
	pstorage "github.com/vnshop/api/internal/platform/storage"
	"github.com/vnshop/api/internal/repositories"
	firestoreRepo "github.com/vnshop/api/internal/repositories/firestore"
	"github.com/vnshop/api/internal/services"
)

const (
	limiterSweepInterval = 5 * time.Minute
	firestoreDialTimeout = 10 * time.Second
	readinessTimeout     = 2 * time.Second
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore,
		pfirestore.WithDialTimeout(firestoreDialTimeout),
		pfirestore.WithClientOptions(credentialOptions(cfg.Firebase.CredentialsFile)...),
	)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	publisher, pinger, closeEvents, err := newEventPublisher(ctx, logger.Named("events"), cfg.Events)
	if err != nil {
		logger.Fatal("failed to initialise order event publisher", zap.Error(err))
	}
	defer closeEvents()

	checks := []repositories.DependencyCheck{{Name: "firestore", Check: firestoreProvider.Ping}}
	if pinger != nil {
		checks = append(checks, repositories.DependencyCheck{Name: "events", Optional: true, Check: pinger.Ping})
	}
	health, err := repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyTimeout(readinessTimeout))
	if err != nil {
		logger.Fatal("failed to initialise health checks", zap.Error(err))
	}
	registry, err := firestoreRepo.NewRegistry(firestoreProvider, health)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	uploadSigner, closeSigner, err := newUploadSigner(ctx, cfg.Storage, credentialOptions(cfg.Firebase.CredentialsFile))
	if err != nil {
		logger.Fatal("failed to initialise storage signer", zap.Error(err))
	}
	defer func() {
		if err := closeSigner(); err != nil {
			logger.Warn("storage signer close error", zap.Error(err))
		}
	}()
	if uploadSigner == nil {
		logger.Info("storage bucket not configured; upload endpoints disabled")
	}

	location := di.ReportingLocation()
	gateway, err := payments.NewVNPay(payments.VNPayConfig{
		TmnCode:    cfg.VNPay.TmnCode,
		HashSecret: cfg.VNPay.HashSecret,
		PayURL:     cfg.VNPay.PayURL,
		ReturnURL:  cfg.VNPay.ReturnURL,
		Location:   location,
	})
	if err != nil {
		logger.Fatal("failed to initialise vnpay gateway", zap.Error(err))
	}

	infra := di.Infrastructure{
		Logger:   logger,
		Events:   publisher,
		Gateway:  gateway,
		Build:    buildInfo,
		Location: location,
	}
	if uploadSigner != nil {
		infra.Uploads = uploadSigner
	}
	container, err := di.NewContainer(cfg, registry, infra)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()
	svc := container.Services

	var verifierOpts []auth.VerifierOption
	if cfg.Firebase.CheckRevoked {
		verifierOpts = append(verifierOpts, auth.WithRevocationCheck())
	}
	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase, verifierOpts...)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	var background sync.WaitGroup

	idempotencyStore := idempotency.NewFirestoreStore(firestoreProvider)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLockTimeout(cfg.Idempotency.LockTimeout),
	)
	background.Add(1)
	go func() {
		defer background.Done()
		runIdempotencyCleanup(backgroundCtx, logger.Named("idempotency"), idempotencyStore, cfg.Idempotency)
	}()

	burst := cfg.RateLimits.Burst
	defaultLimiter := ratelimit.New(cfg.RateLimits.DefaultPerMinute, burst)
	voucherLimiter := ratelimit.New(cfg.RateLimits.VoucherPerMinute, burst)
	paymentLimiter := ratelimit.New(cfg.RateLimits.PaymentPerMinute, burst)
	for _, limiter := range []*ratelimit.Limiter{defaultLimiter, voucherLimiter, paymentLimiter} {
		background.Add(1)
		go func(l *ratelimit.Limiter) {
			defer background.Done()
			l.Run(backgroundCtx, limiterSweepInterval)
		}(limiter)
	}

	projectID := cfg.Firebase.ProjectID
	httpLogger := logger.Named("http")
	middlewares := []func(http.Handler) http.Handler{
		observability.RequestScope(httpLogger),
		observability.TraceMiddleware(projectID),
		observability.Recover(httpLogger),
		observability.AccessLog(),
		ratelimit.Middleware(defaultLimiter, "api"),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)
	catalogHandlers := handlers.NewCatalogHandlers(authenticator, svc.Catalog, svc.Favorites)
	userHandlers := handlers.NewUserHandlers(authenticator, svc.Users, svc.Uploads)
	addressHandlers := handlers.NewAddressHandlers(authenticator, svc.Addresses)
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders, handlers.WithOrderCreateMiddleware(idempotencyMiddleware))
	paymentHandlers := handlers.NewPaymentHandlers(authenticator, svc.Payments)
	voucherHandlers := handlers.NewVoucherHandlers(svc.Vouchers)
	notificationHandlers := handlers.NewNotificationHandlers(authenticator, svc.Notifications)
	reviewHandlers := handlers.NewReviewHandlers(authenticator, svc.Reviews)
	adminHandlers := handlers.NewAdminHandlers(authenticator, handlers.AdminServices{
		Users:     svc.Users,
		Catalog:   svc.Catalog,
		Orders:    svc.Orders,
		Vouchers:  svc.Vouchers,
		Dashboard: svc.Dashboard,
		Uploads:   svc.Uploads,
	})

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithRoutes(handlers.GroupBrands, catalogHandlers.BrandRoutes),
		handlers.WithRoutes(handlers.GroupProducts, catalogHandlers.ProductRoutes),
		handlers.WithRoutes(handlers.GroupVouchers, voucherHandlers.Routes),
		handlers.WithGroupMiddlewares(handlers.GroupVouchers, ratelimit.Middleware(voucherLimiter, "vouchers")),
		handlers.WithRoutes(handlers.GroupUsers, userHandlers.UserRoutes),
		handlers.WithRoutes(handlers.GroupProfile, userHandlers.ProfileRoutes),
		handlers.WithRoutes(handlers.GroupAddresses, addressHandlers.Routes),
		handlers.WithRoutes(handlers.GroupOrders, orderHandlers.Routes),
		handlers.WithRoutes(handlers.GroupPayments, paymentHandlers.Routes),
		handlers.WithGroupMiddlewares(handlers.GroupPayments, ratelimit.Middleware(paymentLimiter, "payments")),
		handlers.WithRoutes(handlers.GroupNotifications, notificationHandlers.Routes),
		handlers.WithRoutes(handlers.GroupReviews, reviewHandlers.Routes),
		handlers.WithRoutes(handlers.GroupAdmin, adminHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := httpLogger.With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("vnshop api listening", zap.String("environment", cfg.Environment), zap.String("events", cfg.Events.Backend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	backgroundCancel()
	background.Wait()
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Environment,
		StartedAt:   started,
	}
}

// newSecretFetcher is built from raw environment values because config.Load needs it to resolve
// secret:// references.
func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	projectID := firstNonEmpty(env["API_SECRETS_PROJECT_ID"], env["API_FIREBASE_PROJECT_ID"])
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(projectID),
	}
	if path := strings.TrimSpace(env["API_SECRETS_FALLBACK_FILE"]); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	if creds := credentialOptions(env["API_FIREBASE_CREDENTIALS_FILE"]); len(creds) > 0 {
		opts = append(opts, secrets.WithClientOptions(creds...))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// newEventPublisher returns the configured publisher and, for real brokers, a readiness check.
func newEventPublisher(ctx context.Context, logger *zap.Logger, cfg config.EventsConfig) (events.Publisher, events.Pinger, func(), error) {
	var (
		publisher events.Publisher
		pinger    events.Pinger
		closers   []func() error
	)
	switch cfg.Backend {
	case config.EventsBackendPubSub:
		client, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("pubsub client: %w", err)
		}
		topic := client.Topic(cfg.PubSubTopic)
		p, err := events.NewPubSubPublisher(topic)
		if err != nil {
			_ = client.Close()
			return nil, nil, nil, err
		}
		publisher, pinger = p, p
		closers = append(closers, func() error {
			topic.Stop()
			return nil
		}, client.Close)
	case config.EventsBackendKafka:
		p, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, observability.NewPrintfAdapter(logger.Named("kafka")))
		if err != nil {
			return nil, nil, nil, err
		}
		publisher, pinger = p, p
		closers = append(closers, p.Close)
	default:
		publisher = events.NoopPublisher{}
	}

	logger.Info("order events configured", zap.String("backend", cfg.Backend))
	closeAll := func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logger.Warn("event publisher close error", zap.Error(err))
			}
		}
	}
	return events.Instrument(publisher, nil), pinger, closeAll, nil
}

// newUploadSigner returns nil when no bucket is configured. A key file wins over IAM signing.
func newUploadSigner(ctx context.Context, cfg config.StorageConfig, clientOpts []option.ClientOption) (*pstorage.Client, func() error, error) {
	noop := func() error { return nil }
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, noop, nil
	}

	var (
		signer  pstorage.Signer
		closeFn = noop
	)
	switch {
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		keySigner, err := pstorage.NewKeySignerFromFile(cfg.CredentialsFile)
		if err != nil {
			return nil, noop, err
		}
		signer = keySigner
	case strings.TrimSpace(cfg.SignerAccount) != "":
		iamSigner, err := pstorage.NewIAMSigner(ctx, cfg.SignerAccount, clientOpts...)
		if err != nil {
			return nil, noop, err
		}
		signer, closeFn = iamSigner, iamSigner.Close
	default:
		return nil, noop, errors.New("storage signer needs a key file or a service account when a bucket is set")
	}

	client, err := pstorage.NewClient(signer, bucket)
	if err != nil {
		_ = closeFn()
		return nil, noop, err
	}
	return client, closeFn, nil
}

func runIdempotencyCleanup(ctx context.Context, logger *zap.Logger, store *idempotency.FirestoreStore, cfg config.IdempotencyConfig) {
	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, time.Minute)
			removed, err := store.Purge(runCtx, time.Now().UTC(), cfg.CleanupBatchSize)
			cancel()
			if err != nil {
				logger.Error("idempotency cleanup error", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("idempotency keys purged", zap.Int("count", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}

// credentialOptions points Google clients at the service account file shared with Firebase.
// Without one they use application default credentials.
func credentialOptions(path string) []option.ClientOption {
	if path = strings.TrimSpace(path); path == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(path)}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if v := strings.TrimSpace(value); v != "" {
			return v
		}
	}
	return ""
}
