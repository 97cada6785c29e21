// Package secrets resolves secret:// references from Secret Manager, falling back to a local
// dotenv file on machines without GCP access.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultFallbackPath = ".secrets.local"

// ErrNotFound means no source holds the secret.
var ErrNotFound = errors.New("secrets: not found")

// errSkip tells the fetcher to try the next source.
var errSkip = errors.New("secrets: source unavailable")

var newManagerClient = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type managerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// source looks a secret up. errSkip hands over to the next source; any other error is final.
type source interface {
	name() string
	lookup(ctx context.Context, ref Ref) (string, error)
}

// Fetcher resolves references against Secret Manager and then the fallback file. Resolved
// values live for the process; concurrent lookups of one reference share a single call.
type Fetcher struct {
	sources []source
	closer  func() error
	logger  *zap.Logger

	flight singleflight.Group
	mu     sync.RWMutex
	cache  map[Ref]string

	resolutions metric.Int64Counter
}

type settings struct {
	logger     *zap.Logger
	project    string
	fallback   string
	meter      metric.Meter
	client     managerClient
	clientOpts []option.ClientOption
}

type Option func(*settings)

func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithProject is the project used when a reference carries no ?project=.
func WithProject(projectID string) Option {
	return func(s *settings) { s.project = strings.TrimSpace(projectID) }
}

// WithFallbackFile sets the dotenv file consulted when Secret Manager is unreachable. An empty
// path disables the fallback.
func WithFallbackFile(path string) Option {
	return func(s *settings) { s.fallback = strings.TrimSpace(path) }
}

func WithMeter(m metric.Meter) Option {
	return func(s *settings) { s.meter = m }
}

// WithSecretManagerClient injects a client; the fetcher will not close it.
func WithSecretManagerClient(client managerClient) Option {
	return func(s *settings) { s.client = client }
}

func WithClientOptions(opts ...option.ClientOption) Option {
	return func(s *settings) { s.clientOpts = append(s.clientOpts, opts...) }
}

// NewFetcher builds a Fetcher. Failing to create a Secret Manager client is not an error: the
// fetcher then serves from the fallback file alone.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	s := settings{fallback: defaultFallbackPath}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.meter == nil {
		s.meter = otel.Meter("github.com/vnshop/api/internal/platform/secrets")
	}

	f := &Fetcher{logger: s.logger, cache: make(map[Ref]string), closer: func() error { return nil }}
	counter, err := s.meter.Int64Counter("secrets.resolutions", metric.WithDescription("Secret resolutions by source and outcome"))
	if err != nil {
		return nil, fmt.Errorf("secrets: register metric: %w", err)
	}
	f.resolutions = counter

	client := s.client
	if client == nil {
		owned, err := newManagerClient(ctx, s.clientOpts...)
		switch {
		case err != nil:
			s.logger.Warn("secret manager unavailable, serving from fallback file only", zap.Error(err))
		default:
			client = owned
			f.closer = owned.Close
		}
	}
	if client != nil && s.project != "" {
		f.sources = append(f.sources, &managerSource{client: client, project: s.project})
	}
	if s.fallback != "" {
		f.sources = append(f.sources, &fileSource{path: s.fallback})
	}
	return f, nil
}

// Close releases a Secret Manager client created by NewFetcher.
func (f *Fetcher) Close() error { return f.closer() }

// ResolveSecret satisfies config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, raw string) (string, error) {
	return f.Resolve(ctx, raw)
}

// Resolve returns the value behind raw.
func (f *Fetcher) Resolve(ctx context.Context, raw string) (string, error) {
	ref, err := ParseRef(raw)
	if err != nil {
		return "", err
	}
	f.mu.RLock()
	value, ok := f.cache[ref]
	f.mu.RUnlock()
	if ok {
		f.count(ctx, "cache", "ok")
		return value, nil
	}

	v, err, _ := f.flight.Do(ref.String(), func() (any, error) {
		return f.lookup(ctx, ref)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (f *Fetcher) lookup(ctx context.Context, ref Ref) (string, error) {
	for _, src := range f.sources {
		value, err := src.lookup(ctx, ref)
		switch {
		case err == nil:
			f.mu.Lock()
			f.cache[ref] = value
			f.mu.Unlock()
			f.count(ctx, src.name(), "ok")
			return value, nil
		case errors.Is(err, errSkip):
			f.logger.Debug("secret source skipped", zap.String("source", src.name()), zap.String("secret", ref.Name), zap.Error(err))
			continue
		default:
			f.count(ctx, src.name(), "error")
			return "", fmt.Errorf("secrets: %s: %w", ref.Name, err)
		}
	}
	f.count(ctx, "none", "missing")
	return "", fmt.Errorf("%w: %s", ErrNotFound, ref.Name)
}

func (f *Fetcher) count(ctx context.Context, src, outcome string) {
	f.resolutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", src),
		attribute.String("outcome", outcome),
	))
}

var crc32c = crc32.MakeTable(crc32.Castagnoli)

type managerSource struct {
	client  managerClient
	project string
}

func (*managerSource) name() string { return "secret_manager" }

func (m *managerSource) lookup(ctx context.Context, ref Ref) (string, error) {
	project := ref.Project
	if project == "" {
		project = m.project
	}
	resp, err := m.client.AccessSecretVersion(ctx,
		&secretmanagerpb.AccessSecretVersionRequest{Name: ref.resource(project)},
		gax.WithRetry(func() gax.Retryer {
			return gax.OnCodes([]codes.Code{codes.Unavailable, codes.ResourceExhausted}, gax.Backoff{
				Initial:    100 * time.Millisecond,
				Max:        2 * time.Second,
				Multiplier: 2,
			})
		}),
	)
	switch status.Code(err) {
	case codes.OK:
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return "", fmt.Errorf("%w: %v", errSkip, err)
	case codes.NotFound:
		return "", fmt.Errorf("%w: %v", ErrNotFound, err)
	default:
		return "", err
	}

	payload := resp.GetPayload()
	if payload == nil {
		return "", errors.New("empty payload")
	}
	if payload.DataCrc32C != nil && int64(crc32.Checksum(payload.GetData(), crc32c)) != payload.GetDataCrc32C() {
		return "", errors.New("payload checksum mismatch")
	}
	return strings.TrimSpace(string(payload.GetData())), nil
}

// fileSource reads the dotenv file once, on first use.
type fileSource struct {
	path   string
	once   sync.Once
	values map[string]string
	err    error
}

func (*fileSource) name() string { return "fallback_file" }

func (s *fileSource) lookup(_ context.Context, ref Ref) (string, error) {
	s.once.Do(func() {
		values, err := godotenv.Read(s.path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			s.values = map[string]string{}
		case err != nil:
			s.err = fmt.Errorf("read %s: %w", s.path, err)
		default:
			s.values = values
		}
	})
	if s.err != nil {
		return "", s.err
	}
	if v, ok := s.values[ref.EnvKey()]; ok {
		return v, nil
	}
	return "", errSkip
}
