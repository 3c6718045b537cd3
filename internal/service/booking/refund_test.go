package booking

import (
	"regexp"
	"testing"
	"time"

	"github.com/kirinyoku/busgo/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefund(t *testing.T) {
	departure := time.Date(2026, 6, 1, 22, 0, 0, 0, time.UTC)
	b := &domain.Booking{FinalAmountCents: 123457}

	tests := []struct {
		name string
		left time.Duration
		want int64
	}{
		{"two days", 48 * time.Hour, 111111},
		{"exactly 24h", 24 * time.Hour, 111111},
		{"just under 24h", 24*time.Hour - time.Second, 61728},
		{"exactly 6h", 6 * time.Hour, 61728},
		{"just under 6h", 6*time.Hour - time.Second, 0},
		{"after departure", -time.Hour, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Refund(b, departure, departure.Add(-tt.left)))
		})
	}
}

func TestRefund_ZeroAmount(t *testing.T) {
	b := &domain.Booking{}
	now := time.Now()

	assert.Zero(t, Refund(b, now.Add(72*time.Hour), now))
}

func TestNewCode(t *testing.T) {
	now := time.Date(2025, 1, 2, 23, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))
	pattern := regexp.MustCompile(`^BKG250102[A-Z0-9]{6}$`)

	seen := make(map[string]struct{})
	for range 200 {
		code, err := NewCode(now)
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
		seen[code] = struct{}{}
	}

	assert.Greater(t, len(seen), 190)
}
