package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/kirinyoku/busgo/internal/domain"
)

// Client reaches a remote inventory service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

func (c *Client) GetJourney(ctx context.Context, journeyID uuid.UUID) (*domain.Journey, error) {
	const op = "gateway.Client.GetJourney"

	var j domain.Journey
	if err := c.do(ctx, http.MethodGet, "/api/v1/journeys/"+journeyID.String(), nil, &j); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &j, nil
}

func (c *Client) LockSeats(ctx context.Context, journeyID uuid.UUID, seatIDs []uuid.UUID) ([]domain.LockedSeat, error) {
	const op = "gateway.Client.LockSeats"

	var resp LockedSeatsResponse
	if err := c.do(ctx, http.MethodPost, seatsPath(journeyID, "/lock"), SeatsRequest{SeatIDs: seatIDs}, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return resp.Seats, nil
}

func (c *Client) ConfirmSeats(ctx context.Context, journeyID uuid.UUID, seatIDs []uuid.UUID, bookingID uuid.UUID) (int, error) {
	const op = "gateway.Client.ConfirmSeats"

	req := UpdateBookingRequest{SeatIDs: seatIDs, BookingID: bookingID}

	var resp CountResponse
	if err := c.do(ctx, http.MethodPost, seatsPath(journeyID, "/update-booking"), req, &resp); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return resp.Count, nil
}

func (c *Client) ReleaseSeats(ctx context.Context, journeyID uuid.UUID, seatIDs []uuid.UUID, bookingID uuid.UUID) (int, error) {
	const op = "gateway.Client.ReleaseSeats"

	req := ReleaseRequest{SeatIDs: seatIDs}
	if bookingID != uuid.Nil {
		req.BookingID = &bookingID
	}

	var resp CountResponse
	if err := c.do(ctx, http.MethodPost, seatsPath(journeyID, "/release"), req, &resp); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return resp.Count, nil
}

func (c *Client) GetInventory(ctx context.Context, journeyID uuid.UUID, seatIDs []uuid.UUID) ([]domain.SeatInventory, error) {
	const op = "gateway.Client.GetInventory"

	path := seatsPath(journeyID, "")
	if len(seatIDs) > 0 {
		ids := make([]string, 0, len(seatIDs))
		for _, id := range seatIDs {
			ids = append(ids, id.String())
		}
		path += "?" + url.Values{"seatIds": {strings.Join(ids, ",")}}.Encode()
	}

	var resp InventoryResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return resp.Seats, nil
}

func seatsPath(journeyID uuid.UUID, suffix string) string {
	return "/api/v1/journeys/" + journeyID.String() + "/seats" + suffix
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(respBody) == 0 {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
		}
		return nil
	}

	return statusErr(resp.StatusCode, respBody)
}

func statusErr(status int, body []byte) error {
	var e ErrorResponse
	_ = json.Unmarshal(body, &e)

	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, e.Error)
	case status == http.StatusConflict:
		return SeatsUnavailableError{SeatNumbers: e.SeatNumbers}
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrBadRequest, e.Error)
	default:
		return fmt.Errorf("%w: status %d", ErrUnavailable, status)
	}
}
