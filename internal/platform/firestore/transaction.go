package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/grpc/status"
)

// TxFunc is the body of a transaction. Firestore re-runs it when the transaction aborts on
// contention, so it must only touch state through tx.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

type TxOption func(*txConfig)

type txConfig struct {
	attempts int
	timeout  time.Duration
	name     string
}

// WithTxAttempts caps how many times fn is run.
func WithTxAttempts(n int) TxOption {
	return func(c *txConfig) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithTxTimeout bounds the transaction including retries. A shorter deadline on ctx wins.
func WithTxTimeout(d time.Duration) TxOption {
	return func(c *txConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTxName labels the transaction in metrics.
func WithTxName(name string) TxOption {
	return func(c *txConfig) {
		if name != "" {
			c.name = name
		}
	}
}

type txMetrics struct {
	attempts metric.Int64Histogram
	outcomes metric.Int64Counter
}

func newTxMetrics(meter metric.Meter) txMetrics {
	attempts, _ := meter.Int64Histogram("firestore.tx.attempts",
		metric.WithDescription("Runs of the transaction body before commit or failure"))
	outcomes, _ := meter.Int64Counter("firestore.tx.outcomes",
		metric.WithDescription("Finished transactions by outcome"))
	return txMetrics{attempts: attempts, outcomes: outcomes}
}

func (m txMetrics) record(ctx context.Context, name string, attempts int, err error) {
	outcome := "committed"
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		outcome = "cancelled"
	default:
		var repoErr *Error
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			outcome = "contended"
		} else {
			outcome = "failed"
		}
	}
	attrs := metric.WithAttributes(attribute.String("tx", name), attribute.String("outcome", outcome))
	if m.attempts != nil {
		m.attempts.Record(ctx, int64(attempts), attrs)
	}
	if m.outcomes != nil {
		m.outcomes.Add(ctx, 1, attrs)
	}
}

func runTransaction(ctx context.Context, client *firestore.Client, metrics txMetrics, fn TxFunc, opts ...TxOption) error {
	if fn == nil {
		return errors.New("firestore: transaction function is nil")
	}
	cfg := txConfig{attempts: 5, timeout: 15 * time.Second, name: "unnamed"}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > cfg.timeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	var (
		runs    int
		bodyErr error
	)
	err := client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		runs++
		bodyErr = fn(ctx, tx)
		return bodyErr
	}, firestore.MaxAttempts(cfg.attempts))

	// Domain sentinels returned by fn come back untouched so callers can errors.Is them.
	if err != nil && bodyErr != nil && errors.Is(err, bodyErr) && !isDriverError(bodyErr) {
		err = bodyErr
	} else if err != nil {
		err = WrapError("firestore.tx."+cfg.name, err)
	}
	metrics.record(ctx, cfg.name, runs, err)
	return err
}

func isDriverError(err error) bool {
	if _, ok := status.FromError(err); ok {
		return true
	}
	var repoErr *Error
	return errors.As(err, &repoErr)
}
