package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idemLockValue  = "LOCK"
	idemResultMark = "RES:"
)

// IdempotencyStore remembers the response of a request keyed by its
// Idempotency-Key. A key is first claimed with a short lock and then
// overwritten with the stored result.
type IdempotencyStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewIdempotencyStore(rdb redis.UniversalClient, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

func (s *IdempotencyStore) AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, idemLockValue, lockTTL).Result()
}

func (s *IdempotencyStore) SaveResult(ctx context.Context, key string, status int, jsonPayload string) error {
	val := idemResultMark + statusPrefix(status) + jsonPayload
	return s.rdb.Set(ctx, key, val, s.ttl).Err()
}

// GetResult returns the stored status code and payload for key.
func (s *IdempotencyStore) GetResult(ctx context.Context, key string) (int, string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, err
	}
	if !strings.HasPrefix(v, idemResultMark) {
		return 0, "", false, nil
	}

	v = strings.TrimPrefix(v, idemResultMark)
	status, payload, ok := splitStatus(v)
	if !ok {
		return 0, "", false, nil
	}

	return status, payload, true, nil
}

func (s *IdempotencyStore) IsLocked(ctx context.Context, key string) (bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == idemLockValue, nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// statusPrefix encodes the HTTP status as a fixed three digit prefix.
func statusPrefix(status int) string {
	if status < 100 || status > 999 {
		status = 200
	}
	return fmt.Sprintf("%03d", status)
}

func splitStatus(v string) (int, string, bool) {
	if len(v) < 3 {
		return 0, "", false
	}
	status, err := strconv.Atoi(v[:3])
	if err != nil {
		return 0, "", false
	}
	return status, v[3:], true
}
