package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Handler consumes the raw payload of one transport event.
type Handler func(ctx context.Context, payload json.RawMessage)

// Dispatcher routes incoming transport events to subscribers.
//
// Unlike a fire-and-forget bus, dispatch is synchronous and in subscription
// order: the store relies on socket events being applied in arrival order.
// A handler panic is isolated so sibling handlers still run.
type Dispatcher struct {
	mu       sync.RWMutex
	seq      uint64
	handlers map[string][]registration
}

type registration struct {
	id uint64
	h  Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]registration),
	}
}

// Subscribe registers a handler for an event name and returns a function
// removing that registration. Multiple handlers may subscribe to the same
// name; all are invoked in subscription order.
func (d *Dispatcher) Subscribe(name string, h Handler) (unsubscribe func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	id := d.seq
	d.handlers[name] = append(d.handlers[name], registration{id: id, h: h})

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		regs := d.handlers[name]
		for i, r := range regs {
			if r.id == id {
				d.handlers[name] = append(regs[:i:i], regs[i+1:]...)
				return
			}
		}
	}
}

// Dispatch invokes every handler subscribed to name, in order.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, payload json.RawMessage) {
	d.mu.RLock()
	regs := make([]registration, len(d.handlers[name]))
	copy(regs, d.handlers[name])
	d.mu.RUnlock()

	for _, r := range regs {
		d.invoke(ctx, name, r.h, payload)
	}
}

func (d *Dispatcher) invoke(ctx context.Context, name string, h Handler, payload json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "event: handler panic",
				"event", name,
				"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
			)
		}
	}()

	h(ctx, payload)
}

// Reset drops every registration. Used on store teardown.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	clear(d.handlers)
}
