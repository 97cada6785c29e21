package secrets

import (
	"context"
	"errors"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const hashSecret = "projects/shop-prod/secrets/vnpay-hash-secret/versions/latest"

type fakeManager struct {
	mu     sync.Mutex
	data   map[string]*secretmanagerpb.SecretPayload
	errs   map[string]error
	calls  atomic.Int32
	delay  time.Duration
	closed bool
}

func newFakeManager() *fakeManager {
	return &fakeManager{data: map[string]*secretmanagerpb.SecretPayload{}, errs: map[string]error{}}
}

func (f *fakeManager) put(name, value string) {
	sum := int64(crc32.Checksum([]byte(value), crc32.MakeTable(crc32.Castagnoli)))
	f.data[name] = &secretmanagerpb.SecretPayload{Data: []byte(value), DataCrc32C: &sum}
}

func (f *fakeManager) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.calls.Add(1)
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[req.GetName()]; ok {
		return nil, err
	}
	if p, ok := f.data[req.GetName()]; ok {
		return &secretmanagerpb.AccessSecretVersionResponse{Name: req.GetName(), Payload: p}, nil
	}
	return nil, status.Error(codes.NotFound, "secret version not found")
}

func (f *fakeManager) Close() error {
	f.closed = true
	return nil
}

func dotenv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestFetcher(t *testing.T, opts ...Option) *Fetcher {
	t.Helper()
	base := []Option{WithProject("shop-prod"), WithMeter(noop.NewMeterProvider().Meter("test")), WithFallbackFile("")}
	f, err := NewFetcher(context.Background(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestParseRef(t *testing.T) {
	ref, err := ParseRef(" sm://vnpay-hash-secret?version=5&project=other ")
	require.NoError(t, err)
	assert.Equal(t, Ref{Name: "vnpay-hash-secret", Version: "5", Project: "other"}, ref)
	assert.Equal(t, "projects/other/secrets/vnpay-hash-secret/versions/5", ref.resource(ref.Project))
	assert.Equal(t, "VNPAY_HASH_SECRET", ref.EnvKey())

	ref, err = ParseRef("secret://vnpay.tmn-code")
	require.NoError(t, err)
	assert.Equal(t, "latest", ref.Version)
	assert.Equal(t, "VNPAY_TMN_CODE", ref.EnvKey())

	for _, raw := range []string{"", "https://example.com/x", "secret://", "secret://%zz"} {
		_, err := ParseRef(raw)
		assert.Error(t, err, raw)
	}
}

func TestResolveCachesRemoteValue(t *testing.T) {
	m := newFakeManager()
	m.put(hashSecret, "remote-secret\n")
	f := newTestFetcher(t, WithSecretManagerClient(m))

	for i := 0; i < 3; i++ {
		got, err := f.Resolve(context.Background(), "secret://vnpay-hash-secret")
		require.NoError(t, err)
		assert.Equal(t, "remote-secret", got)
	}
	assert.EqualValues(t, 1, m.calls.Load())
	assert.False(t, m.closed, "injected clients are not closed")
}

func TestResolveSharesConcurrentLookups(t *testing.T) {
	m := newFakeManager()
	m.delay = 50 * time.Millisecond
	m.put(hashSecret, "remote-secret")
	f := newTestFetcher(t, WithSecretManagerClient(m))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.ResolveSecret(context.Background(), "secret://vnpay-hash-secret")
			assert.NoError(t, err)
			assert.Equal(t, "remote-secret", got)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, m.calls.Load(), int32(2))
}

func TestResolvePinnedProjectAndVersion(t *testing.T) {
	m := newFakeManager()
	m.put("projects/other/secrets/vnpay-hash-secret/versions/5", "version-5")
	f := newTestFetcher(t, WithSecretManagerClient(m))

	got, err := f.Resolve(context.Background(), "secret://vnpay-hash-secret?version=5&project=other")
	require.NoError(t, err)
	assert.Equal(t, "version-5", got)
}

func TestResolveRejectsCorruptPayload(t *testing.T) {
	m := newFakeManager()
	bad := int64(42)
	m.data[hashSecret] = &secretmanagerpb.SecretPayload{Data: []byte("tampered"), DataCrc32C: &bad}
	f := newTestFetcher(t, WithSecretManagerClient(m))

	_, err := f.Resolve(context.Background(), "secret://vnpay-hash-secret")
	assert.ErrorContains(t, err, "checksum mismatch")
}

func TestResolveFallback(t *testing.T) {
	cases := []struct {
		name    string
		remote  error
		want    string
		wantErr error
	}{
		{name: "permission denied falls back", remote: status.Error(codes.PermissionDenied, "denied"), want: "local-secret"},
		{name: "unavailable falls back", remote: status.Error(codes.Unavailable, "down"), want: "local-secret"},
		{name: "not found is final", remote: status.Error(codes.NotFound, "missing"), wantErr: ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newFakeManager()
			m.errs[hashSecret] = tc.remote
			f := newTestFetcher(t, WithSecretManagerClient(m), WithFallbackFile(dotenv(t, "VNPAY_HASH_SECRET=local-secret\n")))

			got, err := f.Resolve(context.Background(), "secret://vnpay-hash-secret")
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveMissingEverywhere(t *testing.T) {
	m := newFakeManager()
	m.errs[hashSecret] = status.Error(codes.Unauthenticated, "no creds")
	f := newTestFetcher(t, WithSecretManagerClient(m), WithFallbackFile(filepath.Join(t.TempDir(), "absent.env")))

	_, err := f.Resolve(context.Background(), "secret://vnpay-hash-secret")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewFetcherWithoutCredentialsUsesFallbackOnly(t *testing.T) {
	original := newManagerClient
	newManagerClient = func(context.Context, ...option.ClientOption) (*secretmanager.Client, error) {
		return nil, errors.New("could not find default credentials")
	}
	t.Cleanup(func() { newManagerClient = original })

	f := newTestFetcher(t, WithFallbackFile(dotenv(t, "VNPAY_TMN_CODE=TMN01\n")))
	got, err := f.Resolve(context.Background(), "secret://vnpay.tmn-code")
	require.NoError(t, err)
	assert.Equal(t, "TMN01", got)
	assert.NoError(t, f.Close())
}
