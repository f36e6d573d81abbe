package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/unseen/internal/event"
	"github.com/nao1215/unseen/internal/model"
)

// eventPing is the keep-alive event name.
const eventPing = "ping"

// streamEvents writes bus events as server-sent events. The first event is
// the current tab state, so a client never starts from an empty view.
func (s *Server) streamEvents(c *gin.Context) {
	ctx := c.Request.Context()
	events, cancel := s.browser.Events().Subscribe(event.DefaultBuffer)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	c.SSEvent(model.EventTabState, model.Event{
		Type: model.EventTabState,
		Time: time.Now(),
		Data: s.browser.TabState(),
	})
	c.Writer.Flush()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("event stream closed by client")
			return
		case ev, ok := <-events:
			if !ok {
				s.logger.Debug("event bus closed, ending stream")
				return
			}
			c.SSEvent(ev.Type, ev)
			c.Writer.Flush()
		case now := <-ticker.C:
			c.SSEvent(eventPing, now.Unix())
			c.Writer.Flush()
		}
	}
}
