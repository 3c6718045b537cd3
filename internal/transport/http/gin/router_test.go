package httpgin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kirinyoku/busgo/internal/domain"
	"github.com/kirinyoku/busgo/internal/gateway"
	"github.com/kirinyoku/busgo/internal/repository/memory"
	redisrepo "github.com/kirinyoku/busgo/internal/repository/redis"
	"github.com/kirinyoku/busgo/internal/service"
	"github.com/kirinyoku/busgo/internal/service/booking"
	"github.com/kirinyoku/busgo/internal/service/inventory"
	"github.com/kirinyoku/busgo/internal/service/reclaimer"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type limiterFunc func() (bool, time.Duration)

func (f limiterFunc) Allow(context.Context, string) (bool, int64, time.Duration, error) {
	ok, retry := f()
	return ok, 1, retry, nil
}

type env struct {
	router  *gin.Engine
	svcs    *service.Services
	now     time.Time
	journey *domain.Journey
	seats   []domain.SeatInventory
}

type envOption func(*envConfig)

type envConfig struct {
	limiter booking.Limiter
	idem    *redisrepo.IdempotencyStore
	expiry  bool
}

func withExpirySweep() envOption {
	return func(c *envConfig) { c.expiry = true }
}

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()

	var cfg envConfig
	for _, o := range opts {
		o(&cfg)
	}

	e := &env{now: time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return e.now }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	inv := inventory.New(memory.NewStore(), nil, nil, logger, inventory.Config{Clock: clock})
	bk := booking.New(memory.NewStore(), gateway.NewLocal(inv), cfg.limiter, nil, logger, booking.Config{Clock: clock})
	e.svcs = &service.Services{Inventory: inv, Booking: bk}
	if cfg.expiry {
		e.svcs.Expiry = reclaimer.NewRunner("expired-bookings",
			reclaimer.NewExpiredBookings(bk, 10, logger), nil, logger, reclaimer.Config{})
	}

	j, err := inv.ScheduleJourney(context.Background(), inventory.NewJourney{
		Code:            "MYS-BLR-0510",
		SourceCity:      "Mysuru",
		DestinationCity: "Bengaluru",
		DepartureTime:   e.now.Add(72 * time.Hour),
		ArrivalTime:     e.now.Add(76 * time.Hour),
		BaseFareCents:   45000,
		IsActive:        true,
		Seats:           inventory.DefaultLayout(4),
	})
	require.NoError(t, err)
	e.journey = j

	e.seats, err = inv.GetInventory(context.Background(), j.ID, nil)
	require.NoError(t, err)

	e.router = NewRouter(e.svcs, nil, cfg.idem, logger)
	return e
}

func (e *env) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) initiateBody(userID int64, idx ...int) booking.InitiateRequest {
	req := booking.InitiateRequest{
		UserID:       userID,
		JourneyID:    e.journey.ID,
		ContactEmail: "rider@example.com",
		ContactPhone: "9123456780",
	}
	for k, i := range idx {
		req.Seats = append(req.Seats, booking.SeatSelection{
			SeatID:         e.seats[i].ID,
			SeatNumber:     e.seats[i].SeatNumber,
			PassengerIndex: k,
		})
		req.Passengers = append(req.Passengers, booking.PassengerInput{
			Name:      fmt.Sprintf("Rider %d", k+1),
			Age:       25,
			Gender:    domain.GenderMale,
			IsPrimary: k == 0,
		})
	}
	return req
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/healthz", nil, "X-Request-ID", "req-1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = e.do(t, http.MethodGet, "/healthz", nil)
	_, err := uuid.Parse(w.Header().Get("X-Request-ID"))
	assert.NoError(t, err, "a request id is minted when missing")
}

func TestScheduleJourney(t *testing.T) {
	e := newEnv(t)

	body := ScheduleJourneyRequest{
		Code:            "HYD-BLR-0601",
		SourceCity:      "Hyderabad",
		DestinationCity: "Bengaluru",
		DepartureTime:   e.now.Add(24 * time.Hour),
		ArrivalTime:     e.now.Add(34 * time.Hour),
		BaseFareCents:   99000,
		Seats: []SeatInput{
			{SeatNumber: "A1", SeatType: domain.SeatSleeper, FareMultiplier: 1.2},
			{SeatNumber: "A2", SeatType: domain.SeatSleeper, IsLadiesSeat: true},
		},
	}

	w := e.do(t, http.MethodPost, "/api/v1/journeys", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	j := decode[domain.Journey](t, w)
	assert.Equal(t, 2, j.TotalSeats)
	assert.Equal(t, 2, j.AvailableSeats)
	assert.True(t, j.IsActive)

	w = e.do(t, http.MethodPost, "/api/v1/journeys", body)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, http.MethodPost, "/api/v1/journeys", map[string]any{"journeyCode": "X"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetJourney_ETag(t *testing.T) {
	e := newEnv(t)
	path := "/api/v1/journeys/" + e.journey.ID.String()

	w := e.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	tag := w.Header().Get("ETag")
	require.NotEmpty(t, tag)
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))

	w = e.do(t, http.MethodGet, path, nil, "If-None-Match", tag)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.Bytes())

	w = e.do(t, http.MethodGet, "/api/v1/journeys/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodGet, "/api/v1/journeys/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLockSeats_Conflict(t *testing.T) {
	e := newEnv(t)
	path := "/api/v1/journeys/" + e.journey.ID.String() + "/seats/lock"

	w := e.do(t, http.MethodPost, path, gateway.SeatsRequest{SeatIDs: []uuid.UUID{e.seats[0].ID}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	locked := decode[gateway.LockedSeatsResponse](t, w)
	require.Len(t, locked.Seats, 1)
	assert.Equal(t, int64(45000), locked.Seats[0].CalculatedFareCents)

	w = e.do(t, http.MethodPost, path, gateway.SeatsRequest{SeatIDs: []uuid.UUID{e.seats[0].ID, e.seats[1].ID}})
	require.Equal(t, http.StatusConflict, w.Code)
	res := decode[ErrorResponse](t, w)
	assert.Equal(t, []string{e.seats[0].SeatNumber}, res.SeatNumbers)

	w = e.do(t, http.MethodGet,
		"/api/v1/journeys/"+e.journey.ID.String()+"/seats/availability?seatIds="+e.seats[1].ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[AvailabilityResponse](t, w).Available, "failed lock leaves other seats free")
}

func TestInitiateAndConfirm(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/api/v1/bookings/initiate", e.initiateBody(11, 0, 1))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	b := decode[domain.Booking](t, w)
	assert.Equal(t, domain.StatusSeatsBlocked, b.Status)
	assert.Equal(t, int64(90000), b.FinalAmountCents)

	w = e.do(t, http.MethodGet, "/api/v1/bookings?code="+b.Code, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[BookingsResponse](t, w).Bookings, 1)

	w = e.do(t, http.MethodPost, "/api/v1/bookings/"+b.ID.String()+"/confirm", domain.PaymentOutcome{
		PaymentReference: "pay_1",
		Status:           domain.PaymentSuccess,
		AmountCents:      90000,
		Method:           "CARD",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.StatusConfirmed, decode[domain.Booking](t, w).Status)

	w = e.do(t, http.MethodPost, "/api/v1/bookings/"+b.ID.String()+"/confirm", domain.PaymentOutcome{Status: domain.PaymentSuccess})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestInitiate_ValidationDetails(t *testing.T) {
	e := newEnv(t)

	body := e.initiateBody(11, 0)
	body.ContactEmail = "not-an-email"
	body.ContactPhone = "123"

	w := e.do(t, http.MethodPost, "/api/v1/bookings/initiate", body)
	require.Equal(t, http.StatusBadRequest, w.Code)

	res := decode[ErrorResponse](t, w)
	assert.Equal(t, "validation failed", res.Error)
	fields := make([]string, 0, len(res.Details))
	for _, d := range res.Details {
		fields = append(fields, d.Field)
	}
	assert.Contains(t, fields, "ContactEmail")
	assert.Contains(t, fields, "ContactPhone")
}

func TestConfirm_ExpiredHold(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/api/v1/bookings/initiate", e.initiateBody(12, 2))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	b := decode[domain.Booking](t, w)

	e.now = e.now.Add(domain.HoldWindow + time.Second)

	w = e.do(t, http.MethodPost, "/api/v1/bookings/"+b.ID.String()+"/confirm", domain.PaymentOutcome{Status: domain.PaymentSuccess})
	assert.Equal(t, http.StatusGone, w.Code)

	w = e.do(t, http.MethodGet, "/api/v1/bookings/"+b.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.StatusExpired, decode[domain.Booking](t, w).Status)

	w = e.do(t, http.MethodPost, "/api/v1/availability/check", AvailabilityRequest{
		JourneyID: e.journey.ID,
		SeatIDs:   []uuid.UUID{e.seats[2].ID},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[AvailabilityResponse](t, w).Available)
}

func TestProcessExpired(t *testing.T) {
	e := newEnv(t, withExpirySweep())

	w := e.do(t, http.MethodPost, "/api/v1/bookings/initiate", e.initiateBody(15, 1))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	b := decode[domain.Booking](t, w)

	e.now = b.ExpiryTime.Add(16 * time.Minute)

	w = e.do(t, http.MethodPost, "/api/v1/admin/bookings/process-expired", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, reclaimer.Result{Found: 1, Processed: 1}, decode[reclaimer.Result](t, w))

	w = e.do(t, http.MethodGet, "/api/v1/bookings/"+b.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.StatusExpired, decode[domain.Booking](t, w).Status)

	w = e.do(t, http.MethodPut, "/api/v1/bookings/"+b.ID.String()+"/status?status=confirmed", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, decode[ErrorResponse](t, w).Error, "EXPIRED")
}

func TestProcessExpired_NotRoutedWithoutSweep(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/api/v1/admin/bookings/process-expired", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInitiate_RateLimited(t *testing.T) {
	e := newEnv(t, func(c *envConfig) {
		c.limiter = limiterFunc(func() (bool, time.Duration) { return false, 1500 * time.Millisecond })
	})

	w := e.do(t, http.MethodPost, "/api/v1/bookings/initiate", e.initiateBody(13, 0))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
}

func TestInitiate_IdempotentReplay(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	e := newEnv(t, func(c *envConfig) {
		c.idem = redisrepo.NewIdempotencyStore(rdb, time.Hour)
	})
	body := e.initiateBody(14, 3)

	first := e.do(t, http.MethodPost, "/api/v1/bookings/initiate", body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	assert.Empty(t, first.Header().Get("Idempotent-Replayed"))

	second := e.do(t, http.MethodPost, "/api/v1/bookings/initiate", body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	w := e.do(t, http.MethodGet, "/api/v1/bookings?userId=14", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[BookingsResponse](t, w).Bookings, 1)

	// a failed attempt frees the key for a retry
	taken := e.do(t, http.MethodPost, "/api/v1/bookings/initiate", body, "Idempotency-Key", "k-2")
	require.Equal(t, http.StatusConflict, taken.Code)
	assert.False(t, mr.Exists(redisrepo.KeyIdemInitiate(14, "k-2")))
}

func TestListBookings_RequiresFilter(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/api/v1/bookings", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/api/v1/bookings?userId=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/api/v1/bookings?journeyId="+e.journey.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"bookings":[]}`, w.Body.String())
}

func TestRespondErr_Unavailable(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	respondErr(c, fmt.Errorf("service.booking.Initiate: %w", gateway.ErrUnavailable))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	respondErr(c, errors.New("disk full"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
}

func TestEtagMatches(t *testing.T) {
	tests := []struct {
		header string
		tag    string
		want   bool
	}{
		{"", `"abc"`, false},
		{`"abc"`, `"abc"`, true},
		{`"x", "abc"`, `"abc"`, true},
		{`W/"abc"`, `"abc"`, true},
		{`"abc"`, `W/"abc"`, true},
		{"*", `"abc"`, true},
		{`"abd"`, `"abc"`, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, etagMatches(tt.header, tt.tag), "%q vs %q", tt.header, tt.tag)
	}
}

func TestLastMessage(t *testing.T) {
	err := fmt.Errorf("service.booking.Initiate: %w",
		fmt.Errorf("gateway.LockSeats: %w", errors.New("seat count does not match passengers")))

	assert.Equal(t, "seat count does not match passengers", lastMessage(err))
	assert.Equal(t, "plain", lastMessage(errors.New("plain")))
}
