// Package redisps implements the realtime transport over Redis pub/sub.
//
// The game server mirrors every session event onto a Redis channel as a
// {event, data} notification; server-side consumers (bots, projections,
// ops tooling) follow a session through this transport instead of holding a
// websocket. Outbound actions are published to the session's action channel.
package redisps

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/equiz-client/internal/errors"
	"github.com/victornm/equiz-client/internal/event"
	"github.com/victornm/equiz-client/internal/telemetry"
	"github.com/victornm/equiz-client/internal/transport"
)

// Notification is the wire envelope on the event channel. Field names follow
// the server's pubsub payloads, not the websocket {type, payload} framing.
type Notification struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type Config struct {
	Redis   redis.UniversalClient
	Prefix  string
	Session string
	Metrics *telemetry.Metrics
}

type Transport struct {
	*transport.StateTracker

	c Config
	d *event.Dispatcher

	mu     sync.Mutex
	sub    *redis.PubSub
	cancel context.CancelFunc
}

func New(c Config) *Transport {
	if c.Metrics == nil {
		c.Metrics = telemetry.NewMetrics(nil)
	}

	return &Transport{
		StateTracker: transport.NewStateTracker(),
		c:            c,
		d:            event.NewDispatcher(),
	}
}

func (t *Transport) eventChannel() string {
	return fmt.Sprintf("%s:session:%s", t.c.Prefix, t.c.Session)
}

func (t *Transport) actionChannel() string {
	return fmt.Sprintf("%s:session:%s:actions", t.c.Prefix, t.c.Session)
}

func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.sub != nil {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	t.SetState(transport.StateConnecting)

	sub := t.c.Redis.Subscribe(ctx, t.eventChannel())
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		t.SetState(transport.StateDisconnected)
		return errors.New(errors.CodeTransportUnavailable,
			errors.WithMessagef("subscribe %s", t.eventChannel()),
			errors.WithCause(err),
		)
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	t.mu.Lock()
	t.sub = sub
	t.cancel = cancel
	t.mu.Unlock()

	t.SetState(transport.StateConnected)

	// go-redis resubscribes transparently after connection loss, so there is
	// no bounded reconnect loop here; the loop ends only on Disconnect.
	go t.readLoop(loopCtx, sub)
	return nil
}

func (t *Transport) Disconnect() error {
	t.mu.Lock()
	sub := t.sub
	cancel := t.cancel
	t.sub = nil
	t.cancel = nil
	t.mu.Unlock()

	t.SetState(transport.StateDisconnected)

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		return sub.Close()
	}
	return nil
}

func (t *Transport) Send(ctx context.Context, action string, payload any) bool {
	if t.State() != transport.StateConnected {
		t.c.Metrics.SendsRejected.Inc()
		slog.WarnContext(ctx, "redisps: send rejected, not connected", "action", action)
		return false
	}

	b, err := json.Marshal(transport.Action{Action: action, Payload: payload})
	if err != nil {
		slog.ErrorContext(ctx, "redisps: marshal outbound frame failed", "action", action, "error", err)
		return false
	}

	if err := t.c.Redis.Publish(ctx, t.actionChannel(), b).Err(); err != nil {
		slog.ErrorContext(ctx, "redisps: publish failed", "action", action, "error", err)
		return false
	}
	return true
}

func (t *Transport) Subscribe(name string, h event.Handler) (unsubscribe func()) {
	return t.d.Subscribe(name, h)
}

func (t *Transport) readLoop(ctx context.Context, sub *redis.PubSub) {
	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				t.SetState(transport.StateDisconnected)
				return
			}

			var n Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil || n.Event == "" {
				t.c.Metrics.FramesDropped.Inc()
				e := errors.New(errors.CodeMalformedEnvelope,
					errors.WithMessagef("notification: %.128s", msg.Payload),
					errors.WithCause(err),
				)
				slog.ErrorContext(ctx, "redisps: dropping malformed notification", "error", e)
				continue
			}

			t.c.Metrics.EventsDispatched.WithLabelValues(n.Event).Inc()
			t.d.Dispatch(ctx, n.Event, n.Data)
		}
	}
}
