package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Option func(*loader)

type loader struct {
	envFile   string
	overrides map[string]string
	systemEnv bool
	secrets   SecretResolver
}

// WithEnvFile sets the dotenv file; "" skips it. A missing file is ignored.
func WithEnvFile(path string) Option {
	return func(l *loader) { l.envFile = path }
}

// WithEnvMap adds values that take precedence over .env and the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(l *loader) { l.overrides = values }
}

func WithoutSystemEnv() Option {
	return func(l *loader) { l.systemEnv = false }
}

func WithSecretResolver(resolver SecretResolver) Option {
	return func(l *loader) { l.secrets = resolver }
}

func newLoader(opts []Option) *loader {
	l := &loader{envFile: defaultEnvFile, systemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// EnvironmentValues returns the merged environment Load reads from. Later layers win:
// .env, then the process environment, then WithEnvMap.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	return newLoader(opts).values()
}

func (l *loader) values() (map[string]string, error) {
	merged := map[string]string{}
	if path := strings.TrimSpace(l.envFile); path != "" {
		fromFile, err := godotenv.Read(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		for k, v := range fromFile {
			merged[k] = v
		}
	}
	if l.systemEnv {
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
				merged[k] = v
			}
		}
	}
	for k, v := range l.overrides {
		merged[k] = v
	}
	return merged, nil
}

// Load reads the configuration, resolves secret:// values and validates the result.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	l := newLoader(opts)
	values, err := l.values()
	if err != nil {
		return Config{}, err
	}
	e := &env{values: values}

	cfg := Config{
		Environment: strings.ToLower(e.str(defaultEnvironment, "API_ENVIRONMENT")),
		LogLevel:    e.str(defaultLogLevel, "LOG_LEVEL"),
		Server: ServerConfig{
			Port:           e.str(defaultPort, "API_SERVER_PORT", "PORT"),
			ReadTimeout:    e.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:   e.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:    e.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout: e.duration("API_SERVER_REQUEST_TIMEOUT", defaultRequestTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       e.str("", "API_FIREBASE_PROJECT_ID"),
			CredentialsFile: e.str("", "API_FIREBASE_CREDENTIALS_FILE"),
			CheckRevoked:    e.boolean("API_FIREBASE_CHECK_REVOKED", false),
		},
		Firestore: FirestoreConfig{
			DatabaseID:   e.str("", "API_FIRESTORE_DATABASE_ID"),
			EmulatorHost: e.str("", "API_FIRESTORE_EMULATOR_HOST"),
		},
		Storage: StorageConfig{
			Bucket:          e.str("", "API_STORAGE_BUCKET"),
			CredentialsFile: e.str("", "API_STORAGE_SIGNER_CREDENTIALS_FILE"),
			SignerAccount:   e.str("", "API_STORAGE_SIGNER_SERVICE_ACCOUNT"),
			UploadURLTTL:    e.duration("API_STORAGE_UPLOAD_URL_TTL", defaultUploadURLTTL),
			MaxUploadBytes:  int64(e.integer("API_STORAGE_MAX_UPLOAD_BYTES", defaultMaxUploadBytes)),
		},
		// VNP_* are the names the merchant portal hands out.
		VNPay: VNPayConfig{
			TmnCode:    e.str("", "API_VNPAY_TMN_CODE", "VNP_TMN_CODE"),
			HashSecret: e.str("", "API_VNPAY_HASH_SECRET", "VNP_HASH_SECRET"),
			PayURL:     e.str(defaultVNPayURL, "API_VNPAY_URL", "VNP_URL"),
			ReturnURL:  e.str("", "API_VNPAY_RETURN_URL", "VNP_RETURN_URL"),
		},
		Events: EventsConfig{
			Backend:      strings.ToLower(e.str(EventsBackendNone, "API_EVENTS_BACKEND")),
			PubSubTopic:  e.str("", "API_EVENTS_PUBSUB_TOPIC"),
			KafkaBrokers: e.list("API_EVENTS_KAFKA_BROKERS"),
			KafkaTopic:   e.str("", "API_EVENTS_KAFKA_TOPIC"),
		},
		RateLimits: RateLimitConfig{
			DefaultPerMinute: e.integer("API_RATELIMIT_DEFAULT_PER_MIN", defaultRateDefault),
			VoucherPerMinute: e.integer("API_RATELIMIT_VOUCHER_PER_MIN", defaultRateVoucher),
			PaymentPerMinute: e.integer("API_RATELIMIT_PAYMENT_PER_MIN", defaultRatePayment),
			Burst:            e.integer("API_RATELIMIT_BURST", defaultRateBurst),
		},
		Idempotency: IdempotencyConfig{
			Header:           e.str(defaultIdempotencyHeader, "API_IDEMPOTENCY_HEADER"),
			TTL:              e.duration("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			LockTimeout:      e.duration("API_IDEMPOTENCY_LOCK_TIMEOUT", defaultIdempotencyLock),
			CleanupInterval:  e.duration("API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: e.integer("API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatch),
		},
		Secrets: SecretsConfig{
			FallbackFile: e.str(defaultSecretsFallbackFile, "API_SECRETS_FALLBACK_FILE"),
		},
	}
	project := cfg.Firebase.ProjectID
	cfg.Firestore.ProjectID = e.str(project, "API_FIRESTORE_PROJECT_ID")
	cfg.Events.ProjectID = e.str(project, "API_EVENTS_PROJECT_ID")
	cfg.Secrets.ProjectID = e.str(project, "API_SECRETS_PROJECT_ID")

	for _, field := range []*string{&cfg.VNPay.HashSecret, &cfg.VNPay.TmnCode} {
		if *field, err = resolveSecret(ctx, *field, l.secrets); err != nil {
			return Config{}, err
		}
	}

	if bad := append(e.malformed, validate(cfg)...); len(bad) > 0 {
		return Config{}, &ValidationError{fields: bad}
	}
	return cfg, nil
}

// env reads typed settings. Unparseable values keep the default and are reported by name.
type env struct {
	values    map[string]string
	malformed []string
}

// str returns the first non-empty key, else fallback.
func (e *env) str(fallback string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(e.values[k]); v != "" {
			return v
		}
	}
	return fallback
}

func (e *env) duration(key string, fallback time.Duration) time.Duration {
	return parse(e, key, fallback, time.ParseDuration)
}

func (e *env) integer(key string, fallback int) int {
	return parse(e, key, fallback, strconv.Atoi)
}

func (e *env) boolean(key string, fallback bool) bool {
	return parse(e, key, fallback, strconv.ParseBool)
}

func (e *env) list(key string) []string {
	var out []string
	for _, part := range strings.Split(e.values[key], ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parse[T any](e *env, key string, fallback T, fn func(string) (T, error)) T {
	raw := e.str("", key)
	if raw == "" {
		return fallback
	}
	v, err := fn(raw)
	if err != nil {
		e.malformed = append(e.malformed, key)
		return fallback
	}
	return v
}

func validate(cfg Config) []string {
	var bad []string
	need := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			bad = append(bad, name)
		}
	}
	check := func(name string, ok bool) {
		if !ok {
			bad = append(bad, name)
		}
	}

	need("Server.Port", cfg.Server.Port)
	need("Firebase.ProjectID", cfg.Firebase.ProjectID)
	need("Firestore.ProjectID", cfg.Firestore.ProjectID)
	need("VNPay.TmnCode", cfg.VNPay.TmnCode)
	need("VNPay.HashSecret", cfg.VNPay.HashSecret)
	need("VNPay.PayURL", cfg.VNPay.PayURL)
	need("VNPay.ReturnURL", cfg.VNPay.ReturnURL)

	switch cfg.Events.Backend {
	case EventsBackendNone:
	case EventsBackendPubSub:
		need("Events.PubSubTopic", cfg.Events.PubSubTopic)
	case EventsBackendKafka:
		check("Events.KafkaBrokers", len(cfg.Events.KafkaBrokers) > 0)
		need("Events.KafkaTopic", cfg.Events.KafkaTopic)
	default:
		bad = append(bad, "Events.Backend")
	}

	check("RateLimits.DefaultPerMinute", cfg.RateLimits.DefaultPerMinute > 0)
	check("Idempotency.TTL", cfg.Idempotency.TTL > 0)
	check("Idempotency.CleanupInterval", cfg.Idempotency.CleanupInterval > 0)
	return bad
}
