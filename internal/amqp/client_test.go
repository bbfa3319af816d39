package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
)

type published struct {
	exchange, key string
	msg           amqp091.Publishing
}

type fakeChannel struct {
	mu         sync.Mutex
	published  []published
	publishErr error
	deliveries chan amqp091.Delivery
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{exchange, key, msg})
	return nil
}

func (f *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp091.Table) (<-chan amqp091.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) Close() error { return nil }

type ackRecorder struct {
	mu     sync.Mutex
	acks   int
	nacks  int
	notify chan struct{}
}

func (a *ackRecorder) Ack(uint64, bool) error {
	a.mu.Lock()
	a.acks++
	a.mu.Unlock()
	a.notify <- struct{}{}
	return nil
}

func (a *ackRecorder) Nack(uint64, bool, bool) error {
	a.mu.Lock()
	a.nacks++
	a.mu.Unlock()
	a.notify <- struct{}{}
	return nil
}

func (a *ackRecorder) Reject(uint64, bool) error { return nil }

func newTestClient(ch *fakeChannel) *Client {
	return &Client{
		channel:           ch,
		exchangeName:      "fintrack",
		materializeQueue:  "materialize_requests",
		notificationQueue: "notifications",
	}
}

func TestClient_RequestMaterialize(t *testing.T) {
	ch := &fakeChannel{}
	c := newTestClient(ch)
	at := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

	require.NoError(t, c.RequestMaterialize(context.Background(), "u1", at))
	require.Len(t, ch.published, 1)

	p := ch.published[0]
	assert.Equal(t, "fintrack", p.exchange)
	assert.Equal(t, "materialize_requests", p.key)
	assert.Equal(t, "application/json", p.msg.ContentType)
	assert.Equal(t, amqp091.Persistent, p.msg.DeliveryMode)

	msg, err := MaterializeRequestFromJSON(p.msg.Body)
	require.NoError(t, err)
	assert.Equal(t, "u1", msg.UserID)
	assert.True(t, msg.RequestedAt.Equal(at))
}

func TestClient_PublishNotification(t *testing.T) {
	ch := &fakeChannel{}
	c := newTestClient(ch)
	n := core.Notification{
		ID: "n1", UserID: "u1", Header: core.RecurringNotificationHeader,
		Type: core.NotificationRecurring, Transaction: core.Transaction{ID: "t1"},
		CreatedAt: time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC),
	}

	require.NoError(t, c.PublishNotification(context.Background(), n))
	require.Len(t, ch.published, 1)
	assert.Equal(t, "notifications", ch.published[0].key)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(ch.published[0].msg.Body, &raw))
	assert.Equal(t, "n1", raw["notification_id"])
	assert.Equal(t, "t1", raw["transaction_id"])
	assert.Equal(t, "Recurring", raw["type"])
}

func TestClient_PublishError(t *testing.T) {
	c := newTestClient(&fakeChannel{publishErr: errors.New("channel closed")})

	err := c.RequestMaterialize(context.Background(), "u1", time.Now())
	assert.ErrorContains(t, err, "publish message")
}

func TestClient_ConsumeMaterializeRequests(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp091.Delivery, 3)}
	c := newTestClient(ch)
	acks := &ackRecorder{notify: make(chan struct{}, 3)}

	good, _ := NewMaterializeRequest("u1", time.Now()).ToJSON()
	failing, _ := NewMaterializeRequest("u2", time.Now()).ToJSON()
	ch.deliveries <- amqp091.Delivery{Acknowledger: acks, Body: good}
	ch.deliveries <- amqp091.Delivery{Acknowledger: acks, Body: []byte("{not json")}
	ch.deliveries <- amqp091.Delivery{Acknowledger: acks, Body: failing}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var handled []string
	done := make(chan error, 1)
	go func() {
		done <- c.ConsumeMaterializeRequests(ctx, func(_ context.Context, m *MaterializeRequest) error {
			mu.Lock()
			handled = append(handled, m.UserID)
			mu.Unlock()
			if m.UserID == "u2" {
				return core.ErrUserNotFound
			}
			return nil
		})
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-acks.notify:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for deliveries")
		}
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	acks.mu.Lock()
	defer acks.mu.Unlock()
	assert.Equal(t, 1, acks.acks)
	assert.Equal(t, 2, acks.nacks)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"u1", "u2"}, handled)
}

func TestClient_ConsumeClosedChannel(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp091.Delivery)}
	close(ch.deliveries)

	err := newTestClient(ch).ConsumeMaterializeRequests(context.Background(), func(context.Context, *MaterializeRequest) error { return nil })
	assert.ErrorContains(t, err, "message channel closed")
}
