package httpgin

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kirinyoku/busgo/internal/gateway"
	redisrepo "github.com/kirinyoku/busgo/internal/repository/redis"
	"github.com/kirinyoku/busgo/internal/service"
	"github.com/kirinyoku/busgo/internal/service/booking"
	"github.com/kirinyoku/busgo/internal/service/inventory"
	"github.com/kirinyoku/busgo/internal/service/reclaimer"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// NewRouter mounts the inventory routes when svcs.Inventory is set and the
// booking routes when svcs.Booking is set. seatEvents and idem are
// optional.
func NewRouter(
	svcs *service.Services,
	seatEvents *redisrepo.SeatEvents,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggingMiddleware(logger), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")

	if svcs.Inventory != nil {
		journeys := api.Group("/journeys")
		{
			journeys.POST("", handleScheduleJourney(svcs))
			journeys.GET("/:id", handleGetJourney(svcs))
			journeys.GET("/:id/seats", handleGetInventory(svcs))
			journeys.GET("/:id/seats/availability", handleSeatAvailability(svcs))
			journeys.POST("/:id/seats/lock", handleLockSeats(svcs))
			journeys.POST("/:id/seats/update-booking", handleConfirmSeats(svcs))
			journeys.POST("/:id/seats/release", handleReleaseSeats(svcs))
			if seatEvents != nil {
				journeys.GET("/:id/seats/stream", handleSeatStream(seatEvents))
			}
		}
	}

	if svcs.Booking != nil {
		bookings := api.Group("/bookings")
		{
			bookings.POST("/initiate", handleInitiateBooking(svcs, idem))
			bookings.GET("", handleListBookings(svcs))
			bookings.GET("/:id", handleGetBooking(svcs))
			bookings.POST("/:id/confirm", handleConfirmBooking(svcs))
			bookings.POST("/:id/cancel", handleCancelBooking(svcs))
			bookings.PUT("/:id/status", handleUpdateBookingStatus(svcs))
		}

		api.POST("/availability/check", handleCheckAvailability(svcs))

		if svcs.Expiry != nil {
			api.POST("/admin/bookings/process-expired", handleProcessExpired(svcs))
		}
	}

	return r
}

// --- Helpers ---

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return v, true
}

// parseUUIDList reads a comma separated list of ids from a query param.
func parseUUIDList(c *gin.Context, name string) ([]uuid.UUID, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}

	parts := strings.Split(raw, ",")
	ids := make([]uuid.UUID, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := uuid.Parse(p)
		if err != nil {
			badRequest(c, "invalid "+name)
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var (
		validation   booking.ValidationErrors
		seatsTaken   inventory.SeatsUnavailableError
		remoteTaken  gateway.SeatsUnavailableError
		wrongState   booking.WrongStateError
		rateLimitErr booking.RateLimitError
	)

	switch {
	// 400
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: validation})
	case errors.Is(err, booking.ErrInvalidRequest),
		errors.Is(err, inventory.ErrInvalidSeatSelection),
		errors.Is(err, inventory.ErrInvalidJourney):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: lastMessage(err)})

	// 404
	case errors.Is(err, inventory.ErrJourneyNotFound), errors.Is(err, booking.ErrJourneyNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "journey not found"})
	case errors.Is(err, inventory.ErrSeatNotFound), errors.Is(err, booking.ErrSeatNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "seat not found"})
	case errors.Is(err, booking.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found"})

	// 409
	case errors.As(err, &seatsTaken):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "seats unavailable", SeatNumbers: seatsTaken.SeatNumbers})
	case errors.As(err, &remoteTaken):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "seats unavailable", SeatNumbers: remoteTaken.SeatNumbers})
	case errors.Is(err, booking.ErrSeatUnavailable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: lastMessage(err)})
	case errors.Is(err, inventory.ErrJourneyConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "journey already exists"})
	case errors.As(err, &wrongState):
		c.JSON(http.StatusConflict, ErrorResponse{Error: wrongState.Error()})
	case errors.Is(err, booking.ErrConcurrentWrite):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "booking was modified concurrently, retry"})
	case errors.Is(err, reclaimer.ErrLockHeld):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "sweep already running"})

	// 410
	case errors.Is(err, booking.ErrExpired):
		c.JSON(http.StatusGone, ErrorResponse{Error: "booking hold has expired"})

	// 422
	case errors.Is(err, booking.ErrJourneyInactive):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "journey is not active"})
	case errors.Is(err, booking.ErrBusinessRule):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: lastMessage(err)})

	// 429
	case errors.As(err, &rateLimitErr):
		secs := int(math.Ceil(rateLimitErr.RetryAfter.Seconds()))
		c.Header("Retry-After", strconv.Itoa(max(secs, 1)))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})

	// 503
	case errors.Is(err, gateway.ErrUnavailable):
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "inventory service unavailable"})

	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

// lastMessage strips the operation prefixes and keeps what the client
// can act on.
func lastMessage(err error) string {
	msg := err.Error()
	for strings.HasPrefix(msg, "service.") || strings.HasPrefix(msg, "gateway.") {
		i := strings.Index(msg, ": ")
		if i < 0 {
			break
		}
		msg = msg[i+2:]
	}
	return msg
}
