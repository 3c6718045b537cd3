package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/busgo/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	failNext  error
	closed    bool
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if err := c.failNext; err != nil {
		c.failNext = nil
		return err
	}
	c.keys = append(c.keys, key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newTestPublisher(dials *[]*fakeChannel) *Publisher {
	return &Publisher{
		url:    "amqp://test",
		queue:  "booking.events",
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		dial: func(string, string) (channel, io.Closer, error) {
			ch := &fakeChannel{}
			*dials = append(*dials, ch)
			return ch, nopCloser{}, nil
		},
	}
}

func event() domain.BookingEvent {
	return domain.BookingEvent{
		Type:        domain.EventBookingConfirmed,
		BookingID:   uuid.MustParse("7b1f3c7e-4a63-4a53-9a83-2f0b6d3f1c11"),
		BookingCode: "BKG260101ABC123",
		JourneyID:   uuid.New(),
		UserID:      9,
		Status:      domain.StatusConfirmed,
		AmountCents: 150000,
		OccurredAt:  time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublisher_Publish(t *testing.T) {
	var dials []*fakeChannel
	p := newTestPublisher(&dials)

	require.NoError(t, p.Publish(context.Background(), event()))
	require.NoError(t, p.Publish(context.Background(), event()))

	require.Len(t, dials, 1, "channel is reused")
	ch := dials[0]
	require.Len(t, ch.published, 2)
	assert.Equal(t, []string{"booking.events", "booking.events"}, ch.keys)

	msg := ch.published[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "7b1f3c7e-4a63-4a53-9a83-2f0b6d3f1c11:booking.confirmed", msg.MessageId)
	assert.Equal(t, "booking.confirmed", msg.Type)

	var got domain.BookingEvent
	require.NoError(t, json.Unmarshal(msg.Body, &got))
	assert.Equal(t, event().BookingCode, got.BookingCode)
	assert.Equal(t, int64(150000), got.AmountCents)
}

func TestPublisher_ReconnectsAfterFailure(t *testing.T) {
	var dials []*fakeChannel
	p := newTestPublisher(&dials)
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, event()))
	dials[0].failNext = errors.New("channel/connection is not open")

	require.Error(t, p.Publish(ctx, event()))
	assert.True(t, dials[0].closed)

	require.NoError(t, p.Publish(ctx, event()))
	require.Len(t, dials, 2)
	assert.Len(t, dials[1].published, 1)
}

func TestPublisher_DialFailure(t *testing.T) {
	p := &Publisher{
		queue:  "booking.events",
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		dial: func(string, string) (channel, io.Closer, error) {
			return nil, nil, errors.New("connection refused")
		},
	}

	err := p.Publish(context.Background(), event())
	assert.ErrorContains(t, err, "connection refused")
}

func TestPublisher_Closed(t *testing.T) {
	var dials []*fakeChannel
	p := newTestPublisher(&dials)

	require.NoError(t, p.Publish(context.Background(), event()))
	require.NoError(t, p.Close())
	assert.True(t, dials[0].closed)

	err := p.Publish(context.Background(), event())
	assert.ErrorIs(t, err, ErrClosed)
}
