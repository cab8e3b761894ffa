package server

import (
	"sync"
	"time"

	"github.com/moffa90/go-b003flash/bootloader"
)

// event is a status update as sent to WebSocket clients.
type event struct {
	SessionID string           `json:"session_id,omitempty"`
	State     bootloader.State `json:"state"`
	Message   string           `json:"message"`
	Failure   *failureBody     `json:"failure,omitempty"`
	ElapsedMS int64            `json:"elapsed_ms"`
	Time      time.Time        `json:"time"`
}

// hub fans status updates out to subscribers. Slow subscribers lose events
// rather than stalling the flash session.
type hub struct {
	mu   sync.Mutex
	subs map[chan event]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[chan event]struct{})}
}

func (h *hub) subscribe() chan event {
	ch := make(chan event, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *hub) unsubscribe(ch chan event) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// publish implements bootloader.StatusCallback.
func (h *hub) publish(st bootloader.Status) {
	ev := event{
		SessionID: st.SessionID,
		State:     st.State,
		Message:   st.Message,
		ElapsedMS: st.ElapsedTime.Milliseconds(),
		Time:      time.Now().UTC(),
	}
	if st.Err != nil {
		ev.Failure = newFailureBody(st.Err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
