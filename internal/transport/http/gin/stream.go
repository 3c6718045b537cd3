package httpgin

import (
	"context"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	redisrepo "github.com/kirinyoku/busgo/internal/repository/redis"
)

const streamKeepAlive = 15 * time.Second

// @Summary  Stream seat changes
// @Description Server-sent events, one "seats" event per committed inventory change of the journey.
// @Tags     inventory
// @Param    id  path  string  true  "Journey reference id"
// @Produce  text/event-stream
// @Success  200  {object}  redisrepo.SeatsChangedMsg
// @Router   /api/v1/journeys/{id}/seats/stream [get]
func handleSeatStream(events *redisrepo.SeatEvents) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		msgs := make(chan redisrepo.SeatsChangedMsg, 16)
		go func() {
			defer close(msgs)
			_ = events.Subscribe(ctx, id, func(ctx context.Context, msg redisrepo.SeatsChangedMsg) {
				select {
				case msgs <- msg:
				case <-ctx.Done():
				}
			})
		}()

		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")

		keepAlive := time.NewTicker(streamKeepAlive)
		defer keepAlive.Stop()

		c.Stream(func(w io.Writer) bool {
			select {
			case <-ctx.Done():
				return false
			case msg, ok := <-msgs:
				if !ok {
					return false
				}
				c.SSEvent("seats", msg)
				return true
			case <-keepAlive.C:
				c.SSEvent("ping", time.Now().Unix())
				return true
			}
		})
	}
}
