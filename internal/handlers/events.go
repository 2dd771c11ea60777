package handlers

import (
	"io"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tagmate/tagmate-backend/internal/clients/redis"
	"github.com/tagmate/tagmate-backend/internal/pkg/apperr"
	"github.com/tagmate/tagmate-backend/internal/pkg/logger"
	"github.com/tagmate/tagmate-backend/internal/pkg/requestdata"
)

// EventsHandler streams job lifecycle events to clients over SSE. Events
// arrive from the redis forwarder, so a client sees its jobs regardless of
// which API instance or worker produced them.
type EventsHandler struct {
	log *logger.Logger

	mu   sync.RWMutex
	subs map[string]map[chan redis.JobEvent]struct{}
}

func NewEventsHandler(log *logger.Logger) *EventsHandler {
	return &EventsHandler{
		log:  log.With("handler", "EventsHandler"),
		subs: map[string]map[chan redis.JobEvent]struct{}{},
	}
}

// Publish fans one bus event out to the channel's local subscribers. Slow
// consumers are skipped rather than blocking the forwarder.
func (eh *EventsHandler) Publish(ev redis.JobEvent) {
	eh.mu.RLock()
	defer eh.mu.RUnlock()
	for ch := range eh.subs[ev.Channel] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (eh *EventsHandler) subscribe(channel string) chan redis.JobEvent {
	ch := make(chan redis.JobEvent, 16)
	eh.mu.Lock()
	if eh.subs[channel] == nil {
		eh.subs[channel] = map[chan redis.JobEvent]struct{}{}
	}
	eh.subs[channel][ch] = struct{}{}
	eh.mu.Unlock()
	return ch
}

func (eh *EventsHandler) unsubscribe(channel string, ch chan redis.JobEvent) {
	eh.mu.Lock()
	if set := eh.subs[channel]; set != nil {
		delete(set, ch)
		if len(set) == 0 {
			delete(eh.subs, channel)
		}
	}
	eh.mu.Unlock()
}

func (eh *EventsHandler) Stream(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondServiceError(c, apperr.ErrUnauthorized)
		return
	}

	channel := rd.UserID.String()
	ch := eh.subscribe(channel)
	defer eh.unsubscribe(channel, ch)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Event, ev.Data)
			return true
		}
	})
}
