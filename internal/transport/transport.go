package transport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/victornm/equiz-client/internal/event"
)

// State is the observable connection state of a transport.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	// StateFailed is terminal: the reconnect bound was exhausted and no further
	// automatic attempts will be made. Only an explicit Connect leaves it.
	StateFailed State = "failed"
)

// Envelope is the {type, payload} wrapper of every inbound frame.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Action is the {action, payload} wrapper of every outbound frame.
// The realtime API names client->server frames by action, not type.
type Action struct {
	Action  string `json:"action"`
	Payload any    `json:"payload"`
}

// Transport is one persistent bidirectional event channel to the game server.
//
// Send is best-effort, fire-and-forget: false means the frame was not written
// and the caller must not assume retried delivery. The authoritative path is
// always the REST client; the transport only keeps peers current.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Send(ctx context.Context, action string, payload any) bool
	Subscribe(name string, h event.Handler) (unsubscribe func())
	State() State
	OnStateChange(func(State)) (unsubscribe func())
}

// StateTracker holds a transport's connection state and its watchers.
// Embedded by the concrete transports.
type StateTracker struct {
	mu       sync.RWMutex
	state    State
	seq      uint64
	watchers map[uint64]func(State)
}

func NewStateTracker() *StateTracker {
	return &StateTracker{
		state:    StateDisconnected,
		watchers: make(map[uint64]func(State)),
	}
}

func (t *StateTracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.state
}

// SetState updates the state and notifies watchers on change.
func (t *StateTracker) SetState(s State) {
	t.mu.Lock()
	if t.state == s {
		t.mu.Unlock()
		return
	}
	t.state = s

	watchers := make([]func(State), 0, len(t.watchers))
	for _, w := range t.watchers {
		watchers = append(watchers, w)
	}
	t.mu.Unlock()

	for _, w := range watchers {
		w(s)
	}
}

func (t *StateTracker) OnStateChange(w func(State)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	id := t.seq
	t.watchers[id] = w

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()

		delete(t.watchers, id)
	}
}
