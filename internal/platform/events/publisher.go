// Package events delivers order lifecycle events to the configured broker.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/vnshop/api/internal/services"
)

const metricNamespace = "github.com/vnshop/api/internal/platform/events"

// Publisher is a services.OrderEventPublisher that owns broker resources.
type Publisher interface {
	services.OrderEventPublisher
	Close() error
}

// Pinger is implemented by publishers that can check broker reachability for readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PubSubPublisher publishes order events to a Pub/Sub topic.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubPublisher wraps topic. The caller keeps ownership of the client.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub publisher: topic is required")
	}
	return &PubSubPublisher{topic: topic, marshal: json.Marshal}, nil
}

// PublishOrderEvent blocks until Pub/Sub acknowledges the message.
func (p *PubSubPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub publisher: not initialised")
	}
	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attributes(event),
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

// Close flushes pending messages.
// Ping fails when the topic is gone or Pub/Sub cannot be reached.
func (p *PubSubPublisher) Ping(ctx context.Context) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub publisher: not configured")
	}
	ok, err := p.topic.Exists(ctx)
	if err != nil {
		return fmt.Errorf("pubsub publisher: check topic: %w", err)
	}
	if !ok {
		return fmt.Errorf("pubsub publisher: topic %s does not exist", p.topic.ID())
	}
	return nil
}

func (p *PubSubPublisher) Close() error {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes order events keyed by order id, so every event of one order lands on
// the same partition.
type KafkaPublisher struct {
	writer  messageWriter
	brokers []string
	marshal func(any) ([]byte, error)
	now     func() time.Time
}

// NewKafkaPublisher builds a writer for topic on brokers. errorLog receives async writer errors
// and may be nil.
func NewKafkaPublisher(brokers []string, topic string, errorLog kafka.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka publisher: brokers are required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("kafka publisher: topic is required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		ErrorLogger:  errorLog,
	}
	publisher := newKafkaPublisher(writer)
	publisher.brokers = append([]string(nil), brokers...)
	return publisher, nil
}

func newKafkaPublisher(writer messageWriter) *KafkaPublisher {
	return &KafkaPublisher{
		writer:  writer,
		marshal: json.Marshal,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// PublishOrderEvent writes a single message and waits for the broker ack.
func (p *KafkaPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.writer == nil {
		return errors.New("kafka publisher: not initialised")
	}
	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	headers := make([]kafka.Header, 0, 3)
	for key, value := range attributes(event) {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(event.OrderID),
		Value:   data,
		Headers: headers,
		Time:    p.now(),
	}); err != nil {
		return fmt.Errorf("write order event: %w", err)
	}
	return nil
}

// Ping dials the first reachable broker.
func (p *KafkaPublisher) Ping(ctx context.Context) error {
	if p == nil || len(p.brokers) == 0 {
		return errors.New("kafka publisher: no brokers configured")
	}
	var lastErr error
	for _, broker := range p.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("kafka publisher: %w", lastErr)
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// NoopPublisher drops every event. It is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishOrderEvent(context.Context, services.OrderEvent) error { return nil }

func (NoopPublisher) Close() error { return nil }

// Instrument counts published events by type and outcome.
func Instrument(next Publisher, meter metric.Meter) Publisher {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	counter, err := meter.Int64Counter("orders.events.published", metric.WithDescription("Order events handed to the broker"))
	if err != nil {
		return next
	}
	return &instrumented{next: next, counter: counter}
}

type instrumented struct {
	next    Publisher
	counter metric.Int64Counter
}

func (i *instrumented) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	err := i.next.PublishOrderEvent(ctx, event)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	i.counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", event.Type),
		attribute.String("outcome", outcome),
	))
	return err
}

func (i *instrumented) Close() error { return i.next.Close() }

func attributes(event services.OrderEvent) map[string]string {
	attrs := make(map[string]string, 3)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "userId", event.UserID)
	return attrs
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
