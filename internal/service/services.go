package service

import (
	"github.com/kirinyoku/busgo/internal/service/booking"
	"github.com/kirinyoku/busgo/internal/service/inventory"
	"github.com/kirinyoku/busgo/internal/service/reclaimer"
)

// Services groups what the HTTP layer serves. Any field may be nil when
// the binary does not host that side.
type Services struct {
	Inventory *inventory.Service
	Booking   *booking.Service
	// Expiry runs the expiry sweep on demand for the admin endpoint.
	Expiry *reclaimer.Runner
}
