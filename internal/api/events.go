package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/benmeehan/proximity-agent/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventHub fans proximity events out to websocket subscribers.
// A subscriber whose buffer is full misses the event.
type EventHub struct {
	mu          sync.Mutex
	subscribers map[chan models.ProximityEvent]struct{}
	buffer      int
	closed      bool
	logger      zerolog.Logger
}

func NewEventHub(buffer int, logger zerolog.Logger) *EventHub {
	return &EventHub{
		subscribers: make(map[chan models.ProximityEvent]struct{}),
		buffer:      buffer,
		logger:      logger,
	}
}

// Publish delivers event to every subscriber without blocking.
func (h *EventHub) Publish(event models.ProximityEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			h.logger.Warn().Msg("Dropping proximity event for slow subscriber")
		}
	}
}

// Subscribe returns a channel of events and a function that releases it.
// The channel is closed on release or when the hub closes.
func (h *EventHub) Subscribe() (<-chan models.ProximityEvent, func()) {
	ch := make(chan models.ProximityEvent, h.buffer)

	h.mu.Lock()
	if h.closed {
		close(ch)
	} else {
		h.subscribers[ch] = struct{}{}
	}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
	}
}

// Len returns the number of active subscribers.
func (h *EventHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close ends every subscription.
func (h *EventHub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
	return nil
}

// StreamEvents upgrades the request to a websocket and writes each
// proximity event as a JSON text message until either side closes.
func (h *Handler) StreamEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, unsubscribe := h.events.Subscribe()
	defer unsubscribe()
	h.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("Event subscriber connected")

	// Client messages are ignored; a read error means the peer went away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug().Err(err).Msg("Event subscriber write failed")
				return
			}
		case <-gone:
			return
		}
	}
}
