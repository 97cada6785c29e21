package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"cloud.google.com/go/firestore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/vnshop/api/internal/platform/config"
)

const (
	metricNamespace = "github.com/vnshop/api/internal/platform/firestore"
	emulatorEnv     = "FIRESTORE_EMULATOR_HOST"
	projectEnv      = "GOOGLE_CLOUD_PROJECT"
	pingCollection  = "_health"
)

// ErrProviderClosed is returned once Close has been called.
var ErrProviderClosed = errors.New("firestore: provider is closed")

// Provider owns the single Firestore client every repository shares. The client is dialled on
// first use; a failed dial is retried by the next caller.
type Provider struct {
	cfg         config.FirestoreConfig
	dialTimeout time.Duration
	clientOpts  []option.ClientOption
	tx          txMetrics

	client atomic.Pointer[firestore.Client]
	dialMu sync.Mutex
	closed atomic.Bool
}

type ProviderOption func(*Provider)

func WithDialTimeout(timeout time.Duration) ProviderOption {
	return func(p *Provider) {
		if timeout > 0 {
			p.dialTimeout = timeout
		}
	}
}

func WithClientOptions(opts ...option.ClientOption) ProviderOption {
	return func(p *Provider) { p.clientOpts = append(p.clientOpts, opts...) }
}

// WithMeter records transaction metrics on meter instead of the global provider.
func WithMeter(meter metric.Meter) ProviderOption {
	return func(p *Provider) {
		if meter != nil {
			p.tx = newTxMetrics(meter)
		}
	}
}

func NewProvider(cfg config.FirestoreConfig, opts ...ProviderOption) *Provider {
	p := &Provider{cfg: cfg, dialTimeout: 10 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.tx.attempts == nil {
		p.tx = newTxMetrics(otel.GetMeterProvider().Meter(metricNamespace))
	}
	return p
}

// Client returns the shared client, dialling it if needed.
func (p *Provider) Client(ctx context.Context) (*firestore.Client, error) {
	if p.closed.Load() {
		return nil, ErrProviderClosed
	}
	if c := p.client.Load(); c != nil {
		return c, nil
	}

	p.dialMu.Lock()
	defer p.dialMu.Unlock()
	if p.closed.Load() {
		return nil, ErrProviderClosed
	}
	if c := p.client.Load(); c != nil {
		return c, nil
	}
	c, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	p.client.Store(c)
	return c, nil
}

func (p *Provider) dial(ctx context.Context) (*firestore.Client, error) {
	project := firstSet(p.cfg.ProjectID, os.Getenv(projectEnv))
	if project == "" {
		return nil, errors.New("firestore: project id is required")
	}
	database := firstSet(p.cfg.DatabaseID, firestore.DefaultDatabaseID)

	opts := append([]option.ClientOption(nil), p.clientOpts...)
	if host := firstSet(p.cfg.EmulatorHost, os.Getenv(emulatorEnv)); host != "" {
		// The client library only honours the emulator through the environment.
		if os.Getenv(emulatorEnv) == "" {
			_ = os.Setenv(emulatorEnv, host)
		}
		opts = append(opts,
			option.WithEndpoint(host),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()
	c, err := firestore.NewClientWithDatabase(dialCtx, project, database, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: dial %s/%s: %w", project, database, err)
	}
	return c, nil
}

// Ping reads a sentinel document; a missing document still proves the backend answers.
func (p *Provider) Ping(ctx context.Context) error {
	c, err := p.Client(ctx)
	if err != nil {
		return err
	}
	if _, err := c.Collection(pingCollection).Doc("ping").Get(ctx); err != nil && !isNotFound(err) {
		return WrapError("firestore.ping", err)
	}
	return nil
}

// Close releases the client, giving up when ctx ends first. The Provider is unusable afterwards.
func (p *Provider) Close(ctx context.Context) error {
	if p.closed.Swap(true) {
		return nil
	}
	p.dialMu.Lock()
	c := p.client.Swap(nil)
	p.dialMu.Unlock()
	if c == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- c.Close() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunTransaction runs fn in a transaction on the shared client.
func (p *Provider) RunTransaction(ctx context.Context, fn TxFunc, opts ...TxOption) error {
	c, err := p.Client(ctx)
	if err != nil {
		return err
	}
	return runTransaction(ctx, c, p.tx, fn, opts...)
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
