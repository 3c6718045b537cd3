package httpgin

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kirinyoku/busgo/internal/domain"
	redisrepo "github.com/kirinyoku/busgo/internal/repository/redis"
	"github.com/kirinyoku/busgo/internal/service"
	"github.com/kirinyoku/busgo/internal/service/booking"
)

const idemLockTTL = 60 * time.Second

// @Summary  Initiate booking
// @Description Locks the selected seats and creates a SEATS_BLOCKED booking held for 15 minutes.
// @Tags     bookings
// @Param    Idempotency-Key  header  string                   false  "replays the first response for the same key"
// @Param    req              body    booking.InitiateRequest  true   "booking request"
// @Success  201 {object} domain.Booking
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "seats unavailable / idem in progress"
// @Failure  422 {object} ErrorResponse "journey inactive"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /api/v1/bookings/initiate [post]
func handleInitiateBooking(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req booking.InitiateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		ctx := c.Request.Context()

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemInitiate(req.UserID, idemKey)

			if replayIdem(c, idem, idemStorageKey, idemKey) {
				return
			}

			locked, err := idem.AcquireLock(ctx, idemStorageKey, idemLockTTL)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if replayIdem(c, idem, idemStorageKey, idemKey) {
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(
					http.StatusConflict,
					ErrorResponse{Error: "idempotency key in progress"},
				)
				return
			}
		}

		rlKey := "ip:" + c.ClientIP()

		b, err := svcs.Booking.Initiate(ctx, req, rlKey)
		if err != nil {
			if idemStorageKey != "" {
				_ = idem.Release(ctx, idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		if idemStorageKey != "" {
			payload, _ := json.Marshal(b)
			_ = idem.SaveResult(ctx, idemStorageKey, http.StatusCreated, string(payload))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, b)
	}
}

func replayIdem(c *gin.Context, idem *redisrepo.IdempotencyStore, storageKey, idemKey string) bool {
	status, payload, ok, _ := idem.GetResult(c.Request.Context(), storageKey)
	if !ok {
		return false
	}

	c.Header("Idempotency-Key", idemKey)
	c.Header("Idempotent-Replayed", "true")
	c.Data(status, "application/json; charset=utf-8", []byte(payload))
	return true
}

// @Summary  Confirm booking
// @Description Applies the payment outcome. SUCCESS confirms, anything else fails the booking and releases its seats.
// @Tags     bookings
// @Param    id   path  string                 true  "Booking reference id"
// @Param    req  body  domain.PaymentOutcome  true  "payment outcome"
// @Success  200 {object} domain.Booking
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "wrong state"
// @Failure  410 {object} ErrorResponse "hold expired"
// @Router   /api/v1/bookings/{id}/confirm [post]
func handleConfirmBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req domain.PaymentOutcome
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		b, err := svcs.Booking.Confirm(c.Request.Context(), id, req)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, b)
	}
}

// @Summary  Cancel booking
// @Tags     bookings
// @Param    id      path   string  true   "Booking reference id"
// @Param    reason  query  string  false  "cancellation reason"
// @Success  200 {object} domain.Booking
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "wrong state"
// @Router   /api/v1/bookings/{id}/cancel [post]
func handleCancelBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		b, err := svcs.Booking.Cancel(c.Request.Context(), id, c.Query("reason"))
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, b)
	}
}

// @Summary  Get booking
// @Tags     bookings
// @Param    id  path  string  true  "Booking reference id"
// @Success  200 {object} domain.Booking
// @Failure  404 {object} ErrorResponse
// @Router   /api/v1/bookings/{id} [get]
func handleGetBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		b, err := svcs.Booking.Get(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, b)
	}
}

// @Summary  List bookings
// @Description Exactly one of code, userId or journeyId must be given.
// @Tags     bookings
// @Param    code       query  string  false  "booking code"
// @Param    userId     query  int     false  "user id"
// @Param    journeyId  query  string  false  "journey reference id"
// @Success  200 {object} BookingsResponse
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /api/v1/bookings [get]
func handleListBookings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		code := strings.TrimSpace(c.Query("code"))
		userID := strings.TrimSpace(c.Query("userId"))
		journeyID := strings.TrimSpace(c.Query("journeyId"))

		var (
			bookings []domain.Booking
			err      error
		)

		switch {
		case code != "":
			var b *domain.Booking
			b, err = svcs.Booking.GetByCode(ctx, code)
			if b != nil {
				bookings = []domain.Booking{*b}
			}
		case userID != "":
			uid, perr := strconv.ParseInt(userID, 10, 64)
			if perr != nil {
				badRequest(c, "invalid userId")
				return
			}
			bookings, err = svcs.Booking.ListByUser(ctx, uid)
		case journeyID != "":
			jid, perr := uuid.Parse(journeyID)
			if perr != nil {
				badRequest(c, "invalid journeyId")
				return
			}
			bookings, err = svcs.Booking.ListByJourney(ctx, jid)
		default:
			badRequest(c, "one of code, userId or journeyId is required")
			return
		}
		if err != nil {
			respondErr(c, err)
			return
		}

		if bookings == nil {
			bookings = []domain.Booking{}
		}

		c.JSON(http.StatusOK, BookingsResponse{Bookings: bookings})
	}
}

// @Summary  Force booking status
// @Description Moving into CANCELLED, FAILED, EXPIRED or REFUNDED releases held seats.
// @Tags     bookings
// @Param    id      path   string  true  "Booking reference id"
// @Param    status  query  string  true  "new status"
// @Success  200 {object} domain.Booking
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /api/v1/bookings/{id}/status [put]
func handleUpdateBookingStatus(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		status := domain.BookingStatus(strings.ToUpper(strings.TrimSpace(c.Query("status"))))

		b, err := svcs.Booking.UpdateStatus(c.Request.Context(), id, status)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, b)
	}
}

// @Summary  Check seat availability
// @Tags     bookings
// @Param    req  body  AvailabilityRequest  true  "journey and seats"
// @Success  200 {object} AvailabilityResponse
// @Failure  404 {object} ErrorResponse
// @Router   /api/v1/availability/check [post]
func handleCheckAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AvailabilityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		available, err := svcs.Booking.CheckSeatAvailability(c.Request.Context(), req.JourneyID, req.SeatIDs)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, AvailabilityResponse{JourneyID: req.JourneyID, Available: available})
	}
}

// @Summary  Run expiry sweep now
// @Tags     admin
// @Success  200 {object} reclaimer.Result
// @Failure  409 {object} ErrorResponse "sweep already running"
// @Router   /api/v1/admin/bookings/process-expired [post]
func handleProcessExpired(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svcs.Expiry.RunOnce(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, res)
	}
}
