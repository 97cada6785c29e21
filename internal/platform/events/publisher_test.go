package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/vnshop/api/internal/services"
)

func sampleEvent() services.OrderEvent {
	return services.OrderEvent{
		Type:        services.OrderEventCreated,
		OrderID:     "ord_1",
		UserID:      "uid_1",
		Status:      "pending",
		TotalAmount: 250000,
		OccurredAt:  time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC),
	}
}

func TestPubSubPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	require.NoError(t, err)
	defer client.Close()

	topic, err := client.CreateTopic(ctx, "order-events")
	require.NoError(t, err)

	publisher, err := NewPubSubPublisher(topic)
	require.NoError(t, err)
	defer publisher.Close()

	require.NoError(t, publisher.PublishOrderEvent(ctx, sampleEvent()))

	messages := srv.Messages()
	require.Len(t, messages, 1)

	var payload services.OrderEvent
	require.NoError(t, json.Unmarshal(messages[0].Data, &payload))
	assert.Equal(t, "ord_1", payload.OrderID)
	assert.Equal(t, int64(250000), payload.TotalAmount)
	assert.Equal(t, services.OrderEventCreated, messages[0].Attributes["type"])
	assert.Equal(t, "uid_1", messages[0].Attributes["userId"])
}

func TestPubSubPublisherPing(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	require.NoError(t, err)
	defer client.Close()

	missing, err := NewPubSubPublisher(client.Topic("missing"))
	require.NoError(t, err)
	assert.ErrorContains(t, missing.Ping(ctx), "does not exist")

	topic, err := client.CreateTopic(ctx, "order-events")
	require.NoError(t, err)
	present, err := NewPubSubPublisher(topic)
	require.NoError(t, err)
	assert.NoError(t, present.Ping(ctx))
}

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherKeysByOrder(t *testing.T) {
	writer := &recordingWriter{}
	publisher := newKafkaPublisher(writer)

	require.NoError(t, publisher.PublishOrderEvent(context.Background(), sampleEvent()))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "ord_1", string(msg.Key))
	assert.Len(t, msg.Headers, 3)

	var payload services.OrderEvent
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "pending", payload.Status)

	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	publisher := newKafkaPublisher(&recordingWriter{err: boom})
	err := publisher.PublishOrderEvent(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, boom)
}

func TestNewKafkaPublisherValidates(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "orders", nil)
	assert.Error(t, err)
	_, err = NewKafkaPublisher([]string{"k:9092"}, " ", nil)
	assert.Error(t, err)
}

func TestKafkaPublisherPing(t *testing.T) {
	assert.Error(t, newKafkaPublisher(&recordingWriter{}).Ping(context.Background()), "no brokers")

	publisher, err := NewKafkaPublisher([]string{"127.0.0.1:1"}, "order-events", nil)
	require.NoError(t, err)
	defer publisher.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, publisher.Ping(ctx))
}

func TestInstrumentPassesThrough(t *testing.T) {
	writer := &recordingWriter{}
	publisher := Instrument(newKafkaPublisher(writer), nil)
	require.NoError(t, publisher.PublishOrderEvent(context.Background(), sampleEvent()))
	assert.Len(t, writer.messages, 1)
	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
}
