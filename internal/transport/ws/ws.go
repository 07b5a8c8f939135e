// Package ws implements the realtime transport over a websocket connection.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/victornm/equiz-client/internal/errors"
	"github.com/victornm/equiz-client/internal/event"
	"github.com/victornm/equiz-client/internal/telemetry"
	"github.com/victornm/equiz-client/internal/transport"
)

const (
	defaultMaxReconnects = 5
	defaultBaseDelay     = 500 * time.Millisecond
	defaultMaxDelay      = 10 * time.Second

	writeTimeout = 3 * time.Second
	dialTimeout  = 10 * time.Second
)

// Conn is the subset of *websocket.Conn the transport uses.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

type Config struct {
	URL string

	// MaxReconnects bounds automatic reconnection after an unclean disconnect.
	// Once exhausted the transport enters the terminal failed state and only an
	// explicit Connect revives it.
	MaxReconnects int

	// Backoff returns the delay before reconnect attempt n (1-based).
	// Defaults to exponential backoff with jitter.
	Backoff func(attempt int) time.Duration

	// Dial defaults to websocket.Dial.
	Dial func(ctx context.Context, url string) (Conn, error)

	Metrics *telemetry.Metrics
}

type Transport struct {
	*transport.StateTracker

	c Config
	d *event.Dispatcher

	mu      sync.Mutex
	conn    Conn
	closing bool
	gen     uint64 // bumped on every connection change so stale read loops stand down
}

func New(c Config) *Transport {
	if c.MaxReconnects == 0 {
		c.MaxReconnects = defaultMaxReconnects
	}
	if c.Backoff == nil {
		c.Backoff = DefaultBackoff
	}
	if c.Dial == nil {
		c.Dial = dial
	}
	if c.Metrics == nil {
		c.Metrics = telemetry.NewMetrics(nil)
	}

	return &Transport{
		StateTracker: transport.NewStateTracker(),
		c:            c,
		d:            event.NewDispatcher(),
	}
}

// DefaultBackoff doubles the delay per attempt, capped, with the second half
// of each delay randomized: attempt n sleeps within [full/2, full).
func DefaultBackoff(attempt int) time.Duration {
	full := defaultBaseDelay << (attempt - 1)
	if full > defaultMaxDelay {
		full = defaultMaxDelay
	}
	half := full / 2
	return half + time.Duration(rand.Int63n(int64(half)))
}

func dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		return nil
	}
	t.closing = false
	t.mu.Unlock()

	t.SetState(transport.StateConnecting)

	conn, err := t.c.Dial(ctx, t.c.URL)
	if err != nil {
		t.SetState(transport.StateDisconnected)
		return errors.New(errors.CodeTransportUnavailable,
			errors.WithMessagef("connect %s", t.c.URL),
			errors.WithCause(err),
		)
	}

	gen := t.adopt(conn)
	t.SetState(transport.StateConnected)

	go t.readLoop(conn, gen)
	return nil
}

func (t *Transport) adopt(conn Conn) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Closing a replaced connection makes its read loop fail promptly; the
	// loop then stands down on the generation mismatch instead of dispatching
	// frames alongside the new one.
	if t.conn != nil {
		_ = t.conn.Close(websocket.StatusNormalClosure, "superseded")
	}

	t.conn = conn
	t.gen++
	return t.gen
}

// adoptIfIdle adopts the connection only when no other connection was adopted
// in the meantime. The reconnect loop uses it so an explicit Connect issued
// during a backoff wins over the loop's own dial.
func (t *Transport) adoptIfIdle(conn Conn) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closing || t.conn != nil {
		return 0, false
	}

	t.conn = conn
	t.gen++
	return t.gen, true
}

func (t *Transport) Disconnect() error {
	t.mu.Lock()
	t.closing = true
	conn := t.conn
	t.conn = nil
	t.gen++
	t.mu.Unlock()

	t.SetState(transport.StateDisconnected)

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "bye")
	}
	return nil
}

// Send writes one {action, payload} frame. Best effort: false means the frame
// was not written and will not be retried.
func (t *Transport) Send(ctx context.Context, action string, payload any) bool {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil || t.State() != transport.StateConnected {
		t.c.Metrics.SendsRejected.Inc()
		slog.WarnContext(ctx, "ws: send rejected, no live connection", "action", action)
		return false
	}

	b, err := json.Marshal(transport.Action{Action: action, Payload: payload})
	if err != nil {
		slog.ErrorContext(ctx, "ws: marshal outbound frame failed", "action", action, "error", err)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		slog.ErrorContext(ctx, "ws: write failed", "action", action, "error", err)
		return false
	}
	return true
}

func (t *Transport) Subscribe(name string, h event.Handler) (unsubscribe func()) {
	return t.d.Subscribe(name, h)
}

func (t *Transport) readLoop(conn Conn, gen uint64) {
	ctx := context.Background()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if t.standDown(gen) {
				return
			}

			t.drop(gen)

			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				t.SetState(transport.StateDisconnected)
				return
			}

			slog.ErrorContext(ctx, "ws: unclean disconnect", "error", err)
			t.reconnect()
			return
		}

		t.handleFrame(ctx, data)
	}
}

// standDown reports whether this read loop belongs to a superseded connection
// or an explicit disconnect is in progress.
func (t *Transport) standDown(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.closing || t.gen != gen
}

func (t *Transport) drop(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.gen == gen {
		t.conn = nil
	}
}

func (t *Transport) reconnect() {
	t.SetState(transport.StateReconnecting)

	for attempt := 1; attempt <= t.c.MaxReconnects; attempt++ {
		time.Sleep(t.c.Backoff(attempt))

		t.mu.Lock()
		closing, taken := t.closing, t.conn != nil
		t.mu.Unlock()
		if closing {
			t.SetState(transport.StateDisconnected)
			return
		}
		if taken {
			// an explicit Connect adopted a connection while we were backing off
			return
		}

		t.c.Metrics.ReconnectAttempts.Inc()
		slog.Info(fmt.Sprintf("ws: reconnect attempt %d/%d", attempt, t.c.MaxReconnects))

		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		conn, err := t.c.Dial(ctx, t.c.URL)
		cancel()
		if err != nil {
			slog.Error("ws: reconnect attempt failed", "attempt", attempt, "error", err)
			continue
		}

		gen, ok := t.adoptIfIdle(conn)
		if !ok {
			_ = conn.Close(websocket.StatusNormalClosure, "superseded")
			return
		}
		t.SetState(transport.StateConnected)

		go t.readLoop(conn, gen)
		return
	}

	slog.Error(fmt.Sprintf("ws: giving up after %d reconnect attempts", t.c.MaxReconnects))
	t.SetState(transport.StateFailed)
}

func (t *Transport) handleFrame(ctx context.Context, data []byte) {
	var env transport.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		t.c.Metrics.FramesDropped.Inc()
		e := errors.New(errors.CodeMalformedEnvelope,
			errors.WithMessagef("frame: %.128s", data),
			errors.WithCause(err),
		)
		slog.ErrorContext(ctx, "ws: dropping malformed frame", "error", e)
		return
	}

	t.c.Metrics.EventsDispatched.WithLabelValues(env.Type).Inc()
	t.d.Dispatch(ctx, env.Type, env.Payload)
}
