package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, rdb
}

type journeyStub struct {
	Code  string `json:"code"`
	Seats int    `json:"seats"`
}

func TestCache_GetOrSetJSON(t *testing.T) {
	mr, rdb := newTestRedis(t)
	c := NewCache(rdb)
	ctx := context.Background()
	key := KeyJourney(uuid.New())

	var loads atomic.Int32
	loader := func(context.Context) (journeyStub, error) {
		loads.Add(1)
		return journeyStub{Code: "J1", Seats: 40}, nil
	}

	got, err := GetOrSetJSON(ctx, c, key, time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, journeyStub{Code: "J1", Seats: 40}, got)

	got, err = GetOrSetJSON(ctx, c, key, time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, "J1", got.Code)
	assert.EqualValues(t, 1, loads.Load())

	assert.True(t, mr.Exists(key))
	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(key))
}

func TestCache_LoaderErrorNotCached(t *testing.T) {
	mr, rdb := newTestRedis(t)
	c := NewCache(rdb)
	key := KeyJourney(uuid.New())
	boom := errors.New("boom")

	_, err := GetOrSetJSON(context.Background(), c, key, time.Minute, func(context.Context) (journeyStub, error) {
		return journeyStub{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(key))
}

func TestCache_InvalidateJourney(t *testing.T) {
	mr, rdb := newTestRedis(t)
	c := NewCache(rdb)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, SetJSON(ctx, c, KeyJourney(id), journeyStub{Code: "J"}, time.Minute))
	require.NoError(t, SetJSON(ctx, c, KeyJourneySeats(id), []int{1, 2}, time.Minute))

	require.NoError(t, c.InvalidateJourney(ctx, id))
	assert.False(t, mr.Exists(KeyJourney(id)))
	assert.False(t, mr.Exists(KeyJourneySeats(id)))

	_, ok, err := GetJSON[journeyStub](ctx, c, KeyJourney(id))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIdempotencyStore(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewIdempotencyStore(rdb, time.Hour)
	ctx := context.Background()
	key := KeyIdemInitiate(7, "abc")

	ok, err := s.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	locked, err := s.IsLocked(ctx, key)
	require.NoError(t, err)
	assert.True(t, locked)

	_, _, found, err := s.GetResult(ctx, key)
	require.NoError(t, err)
	assert.False(t, found, "a lock is not a result")

	require.NoError(t, s.SaveResult(ctx, key, 201, `{"bookingCode":"BKG1"}`))

	status, payload, found, err := s.GetResult(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 201, status)
	assert.JSONEq(t, `{"bookingCode":"BKG1"}`, payload)

	locked, err = s.IsLocked(ctx, key)
	require.NoError(t, err)
	assert.False(t, locked)

	ttl := mr.TTL(key)
	assert.Equal(t, time.Hour, ttl)

	require.NoError(t, s.Release(ctx, key))
	assert.False(t, mr.Exists(key))
}

func TestSlidingWindowLimiter(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := NewSlidingWindowLimiter(rdb, "rl:test", 2, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		ok, n, _, err := l.Allow(ctx, "ip:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.EqualValues(t, i, n)
	}

	ok, n, retry, err := l.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, time.Minute, retry)

	ok, _, _, err = l.Allow(ctx, "ip:5.6.7.8")
	require.NoError(t, err)
	assert.True(t, ok, "buckets are independent")

	now = now.Add(time.Minute + time.Second)
	ok, _, _, err = l.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocker(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewLocker(rdb)
	ctx := context.Background()

	ok, release, err := l.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, err = l.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// an expired holder must not delete a lock taken over by someone else
	mr.FastForward(2 * time.Minute)
	ok, _, err = l.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, release(ctx))
	assert.True(t, mr.Exists(KeyReclaimLock("sweep")))
}

func TestSeatEvents_Subscribe(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ev := NewSeatEvents(rdb)
	journeyID := uuid.New()
	seatID := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan SeatsChangedMsg, 4)
	done := make(chan error, 1)
	go func() {
		done <- ev.Subscribe(ctx, journeyID, func(_ context.Context, msg SeatsChangedMsg) {
			got <- msg
		})
	}()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(ChannelSeatsChanged())[ChannelSeatsChanged()] == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ev.PublishSeatsChanged(ctx, SeatsLocked, uuid.New(), []uuid.UUID{uuid.New()}))
	require.NoError(t, ev.PublishSeatsChanged(ctx, SeatsReleased, journeyID, []uuid.UUID{seatID}))

	select {
	case msg := <-got:
		assert.Equal(t, SeatsReleased, msg.Change)
		assert.Equal(t, journeyID, msg.JourneyID)
		assert.Equal(t, []uuid.UUID{seatID}, msg.SeatIDs)
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not return")
	}
	assert.Empty(t, got, "other journeys are filtered out")
}
