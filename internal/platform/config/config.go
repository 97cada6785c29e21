// Package config loads the API configuration from .env, the process environment and Secret
// Manager references.
package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultRequestTimeout      = 60 * time.Second
	defaultEnvironment         = "local"
	defaultLogLevel            = "info"
	defaultVNPayURL            = "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"
	defaultUploadURLTTL        = 15 * time.Minute
	defaultMaxUploadBytes      = 5 << 20
	defaultRateDefault         = 120
	defaultRateVoucher         = 30
	defaultRatePayment         = 20
	defaultRateBurst           = 20
	defaultIdempotencyHeader   = "Idempotency-Key"
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultIdempotencyLock     = 2 * time.Minute
	defaultIdempotencyInterval = time.Hour
	defaultIdempotencyBatch    = 200
	defaultSecretsFallbackFile = ".secrets.local"

	// EventsBackendNone disables order event publishing.
	EventsBackendNone = "none"
	// EventsBackendPubSub publishes order events to a Pub/Sub topic.
	EventsBackendPubSub = "pubsub"
	// EventsBackendKafka publishes order events to a Kafka topic.
	EventsBackendKafka = "kafka"
)

// Config is the runtime configuration.
type Config struct {
	Environment string
	LogLevel    string
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Storage     StorageConfig
	VNPay       VNPayConfig
	Events      EventsConfig
	RateLimits  RateLimitConfig
	Idempotency IdempotencyConfig
	Secrets     SecretsConfig
}

type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	// CheckRevoked rejects ID tokens of disabled users or revoked sessions.
	CheckRevoked bool
}

// FirestoreConfig selects the database. ProjectID defaults to the Firebase project.
type FirestoreConfig struct {
	ProjectID string
	// DatabaseID selects a named database; empty means "(default)".
	DatabaseID   string
	EmulatorHost string
}

// StorageConfig controls signed upload URLs for catalog images and avatars. An empty bucket
// disables the upload endpoints.
type StorageConfig struct {
	Bucket          string
	CredentialsFile string
	// SignerAccount signs through IAM when no key file is configured.
	SignerAccount  string
	UploadURLTTL   time.Duration
	MaxUploadBytes int64
}

// VNPayConfig holds the merchant settings issued by VNPay.
type VNPayConfig struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
}

// EventsConfig selects where order events are published.
type EventsConfig struct {
	Backend      string
	ProjectID    string
	PubSubTopic  string
	KafkaBrokers []string
	KafkaTopic   string
}

// RateLimitConfig sets per-client request budgets.
type RateLimitConfig struct {
	DefaultPerMinute int
	VoucherPerMinute int
	PaymentPerMinute int
	Burst            int
}

// IdempotencyConfig controls the Idempotency-Key guard on order placement.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	LockTimeout      time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// SecretsConfig configures Secret Manager lookups.
type SecretsConfig struct {
	ProjectID    string
	FallbackFile string
}

// ValidationError names every setting that is missing or malformed.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return "config: invalid settings: " + strings.Join(e.fields, ", ")
}

// Fields returns the offending settings, e.g. "VNPay.TmnCode" or "API_SERVER_READ_TIMEOUT".
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError wraps a failed secret:// resolution.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("config: resolve %s: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }
