package services

import (
	"sync"
	"time"
)

const (
	TimerEventStarted = "timer.started"
	TimerEventStopped = "timer.stopped"
)

// TimerEvent is a committed timer transition pushed to the owner's SSE
// streams.
type TimerEvent struct {
	Type            string    `json:"type"`
	UserID          string    `json:"-"`
	TaskID          string    `json:"task_id"`
	TaskTitle       string    `json:"task_title,omitempty"`
	TimerID         string    `json:"timer_id,omitempty"`
	EntryID         string    `json:"entry_id,omitempty"`
	DurationMinutes int64     `json:"duration_minutes,omitempty"`
	At              time.Time `json:"at"`
}

type sseClient struct {
	userID string
	ch     chan TimerEvent
}

// SSEHub manages SSE client connections. Events are delivered only to the
// clients of the user they belong to.
type SSEHub struct {
	clients map[string]sseClient
	mu      sync.RWMutex
}

func NewSSEHub() *SSEHub {
	return &SSEHub{
		clients: make(map[string]sseClient),
	}
}

// Subscribe registers a client of userID and returns its event channel.
func (h *SSEHub) Subscribe(clientID, userID string) <-chan TimerEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan TimerEvent, 100)
	h.clients[clientID] = sseClient{userID: userID, ch: ch}
	return ch
}

func (h *SSEHub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.clients[clientID]; ok {
		close(c.ch)
		delete(h.clients, clientID)
	}
}

// PublishTimerEvent fans the event out to the owner's clients. Slow clients
// with a full buffer miss the event.
func (h *SSEHub) PublishTimerEvent(event TimerEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		if c.userID != event.UserID {
			continue
		}
		select {
		case c.ch <- event:
		default:
		}
	}
}

func (h *SSEHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var globalSSEHub *SSEHub
var sseHubOnce sync.Once

// GetSSEHub returns the global SSE hub singleton
func GetSSEHub() *SSEHub {
	sseHubOnce.Do(func() {
		globalSSEHub = NewSSEHub()
	})
	return globalSSEHub
}
