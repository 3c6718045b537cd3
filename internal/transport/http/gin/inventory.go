package httpgin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kirinyoku/busgo/internal/gateway"
	"github.com/kirinyoku/busgo/internal/service"
	"github.com/kirinyoku/busgo/internal/service/inventory"
)

// @Summary  Schedule journey
// @Tags     inventory
// @Param    req body ScheduleJourneyRequest true "journey and optional seat layout"
// @Success  201 {object} domain.Journey
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "journey code taken"
// @Router   /api/v1/journeys [post]
func handleScheduleJourney(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ScheduleJourneyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		in := inventory.NewJourney{
			Code:            req.Code,
			SourceCity:      req.SourceCity,
			DestinationCity: req.DestinationCity,
			DepartureTime:   req.DepartureTime,
			ArrivalTime:     req.ArrivalTime,
			BaseFareCents:   req.BaseFareCents,
			VehicleRef:      req.VehicleRef,
			RouteName:       req.RouteName,
			IsActive:        req.IsActive == nil || *req.IsActive,
		}
		for _, s := range req.Seats {
			in.Seats = append(in.Seats, inventory.SeatSpec{
				SeatNumber:     s.SeatNumber,
				SeatType:       s.SeatType,
				IsLadiesSeat:   s.IsLadiesSeat,
				FareMultiplier: s.FareMultiplier,
			})
		}

		j, err := svcs.Inventory.ScheduleJourney(c.Request.Context(), in)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, j)
	}
}

// @Summary  Get journey
// @Tags     inventory
// @Param    id  path  string  true  "Journey reference id"
// @Success  200  {object}  domain.Journey
// @Failure  404  {object}  ErrorResponse
// @Router   /api/v1/journeys/{id} [get]
func handleGetJourney(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		j, err := svcs.Inventory.GetJourney(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		writeJSONWithCache(c, http.StatusOK, j, "no-cache", false)
	}
}

// @Summary  Get seat inventory
// @Tags     inventory
// @Param    id       path   string  true   "Journey reference id"
// @Param    seatIds  query  string  false  "comma separated seat reference ids"
// @Success  200  {object}  gateway.InventoryResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /api/v1/journeys/{id}/seats [get]
func handleGetInventory(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		seatIDs, ok := parseUUIDList(c, "seatIds")
		if !ok {
			return
		}

		seats, err := svcs.Inventory.GetInventory(c.Request.Context(), id, seatIDs)
		if err != nil {
			respondErr(c, err)
			return
		}

		writeJSONWithCache(c, http.StatusOK, gateway.InventoryResponse{Seats: seats}, "no-cache", true)
	}
}

// @Summary  Check seat availability
// @Tags     inventory
// @Param    id       path   string  true  "Journey reference id"
// @Param    seatIds  query  string  true  "comma separated seat reference ids"
// @Success  200  {object}  AvailabilityResponse
// @Router   /api/v1/journeys/{id}/seats/availability [get]
func handleSeatAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		seatIDs, ok := parseUUIDList(c, "seatIds")
		if !ok {
			return
		}
		if len(seatIDs) == 0 {
			badRequest(c, "seatIds is required")
			return
		}

		available, err := svcs.Inventory.CheckAvailability(c.Request.Context(), id, seatIDs)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, AvailabilityResponse{JourneyID: id, Available: available})
	}
}

// @Summary  Lock seats
// @Description All-or-nothing: either every seat is locked or none is.
// @Tags     inventory
// @Param    id   path  string                true  "Journey reference id"
// @Param    req  body  gateway.SeatsRequest  true  "seats to lock"
// @Success  200  {object}  gateway.LockedSeatsResponse
// @Failure  404  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse "seats unavailable"
// @Router   /api/v1/journeys/{id}/seats/lock [post]
func handleLockSeats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req gateway.SeatsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		seats, err := svcs.Inventory.LockSeats(c.Request.Context(), id, req.SeatIDs)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, gateway.LockedSeatsResponse{Seats: seats})
	}
}

// @Summary  Stamp booking reference on locked seats
// @Tags     inventory
// @Param    id   path  string                        true  "Journey reference id"
// @Param    req  body  gateway.UpdateBookingRequest  true  "seats and booking reference"
// @Success  200  {object}  gateway.CountResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /api/v1/journeys/{id}/seats/update-booking [post]
func handleConfirmSeats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req gateway.UpdateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		n, err := svcs.Inventory.ConfirmSeats(c.Request.Context(), id, req.SeatIDs, req.BookingID)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, gateway.CountResponse{Count: n})
	}
}

// @Summary  Release seats
// @Description Idempotent. With bookingReferenceId only seats held by that booking are released.
// @Tags     inventory
// @Param    id   path  string                  true  "Journey reference id"
// @Param    req  body  gateway.ReleaseRequest  true  "seats to release"
// @Success  200  {object}  gateway.CountResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /api/v1/journeys/{id}/seats/release [post]
func handleReleaseSeats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req gateway.ReleaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		bookingID := uuid.Nil
		if req.BookingID != nil {
			bookingID = *req.BookingID
		}

		n, err := svcs.Inventory.ReleaseSeats(c.Request.Context(), id, req.SeatIDs, bookingID)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, gateway.CountResponse{Count: n})
	}
}
