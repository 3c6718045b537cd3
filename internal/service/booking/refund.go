package booking

import (
	"time"

	"github.com/kirinyoku/busgo/internal/domain"
)

// Refund returns the refundable part of a confirmed booking cancelled at
// now: 90% at least 24h before departure, 50% at least 6h before, none
// after that. The result stays within [0, FinalAmountCents].
func Refund(b *domain.Booking, departure, now time.Time) int64 {
	var percent int64
	switch left := departure.Sub(now); {
	case left >= 24*time.Hour:
		percent = 90
	case left >= 6*time.Hour:
		percent = 50
	default:
		return 0
	}

	refund := b.FinalAmountCents * percent / 100
	return min(max(refund, 0), b.FinalAmountCents)
}
