package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type SeatsChange string

const (
	SeatsLocked    SeatsChange = "locked"
	SeatsConfirmed SeatsChange = "confirmed"
	SeatsReleased  SeatsChange = "released"
	SeatsCreated   SeatsChange = "created"
)

// SeatsChangedMsg is published after every committed inventory change.
type SeatsChangedMsg struct {
	Change    SeatsChange `json:"change"`
	JourneyID uuid.UUID   `json:"journeyReferenceId"`
	SeatIDs   []uuid.UUID `json:"seatIds"`
	TsUnix    int64       `json:"tsUnix"`
}

type SeatEvents struct {
	rdb     redis.UniversalClient
	channel string
}

func NewSeatEvents(rdb redis.UniversalClient) *SeatEvents {
	return &SeatEvents{
		rdb:     rdb,
		channel: ChannelSeatsChanged(),
	}
}

func (p *SeatEvents) PublishSeatsChanged(
	ctx context.Context,
	change SeatsChange,
	journeyID uuid.UUID,
	seatIDs []uuid.UUID,
) error {
	msg := SeatsChangedMsg{
		Change:    change,
		JourneyID: journeyID,
		SeatIDs:   seatIDs,
		TsUnix:    time.Now().Unix(),
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe delivers changes of one journey to handler until ctx is done.
func (p *SeatEvents) Subscribe(
	ctx context.Context,
	journeyID uuid.UUID,
	handler func(ctx context.Context, msg SeatsChangedMsg),
) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg SeatsChangedMsg
			if err := json.Unmarshal([]byte(m.Payload), &msg); err == nil &&
				msg.JourneyID == journeyID {
				handler(ctx, msg)
			}
		}
	}
}
