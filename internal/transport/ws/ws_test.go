package ws_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/equiz-client/internal/transport"
	"github.com/victornm/equiz-client/internal/transport/ws"
)

var errConnLost = errors.New("connection lost")

// fakeConn feeds frames to the read loop from a channel and records writes.
// Closing it makes Read return readErr (an unclean loss by default).
type fakeConn struct {
	in      chan []byte
	done    chan struct{}
	once    sync.Once
	readErr error

	mu     sync.Mutex
	writes [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:      make(chan []byte, 16),
		done:    make(chan struct{}),
		readErr: errConnLost,
	}
}

func (c *fakeConn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case b := <-c.in:
		return websocket.MessageText, b, nil
	case <-c.done:
		return 0, nil, c.readErr
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (c *fakeConn) Write(ctx context.Context, typ websocket.MessageType, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writes = append(c.writes, p)
	return nil
}

func (c *fakeConn) Close(code websocket.StatusCode, reason string) error {
	c.drop()
	return nil
}

func (c *fakeConn) drop() {
	c.once.Do(func() { close(c.done) })
}

func (c *fakeConn) written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([][]byte(nil), c.writes...)
}

func waitState(t *testing.T, tr *ws.Transport, want transport.State) {
	t.Helper()

	require.Eventually(t, func() bool {
		return tr.State() == want
	}, 2*time.Second, 5*time.Millisecond, "want state %q, last seen %q", want, tr.State())
}

func noBackoff(int) time.Duration { return 0 }

func TestTransport_ConnectAndDispatch(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	tr := ws.New(ws.Config{
		URL:     "ws://test",
		Backoff: noBackoff,
		Dial: func(ctx context.Context, url string) (ws.Conn, error) {
			return conn, nil
		},
	})

	var mu sync.Mutex
	var got []string
	tr.Subscribe("player_joined", func(ctx context.Context, payload json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(payload))
	})

	require.NoError(t, tr.Connect(context.Background()))
	require.Equal(t, transport.StateConnected, tr.State())

	conn.in <- []byte(`{"type":"player_joined","payload":{"sessionId":"abc"}}`)
	conn.in <- []byte(`not json at all`)                  // dropped
	conn.in <- []byte(`{"payload":{"sessionId":"abc"}}`)  // missing type, dropped
	conn.in <- []byte(`{"type":"player_joined","payload":{"sessionId":"def"}}`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.JSONEq(t, `{"sessionId":"abc"}`, got[0])
	assert.JSONEq(t, `{"sessionId":"def"}`, got[1])
}

func TestTransport_Send(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	tr := ws.New(ws.Config{
		URL: "ws://test",
		Dial: func(ctx context.Context, url string) (ws.Conn, error) {
			return conn, nil
		},
	})

	require.False(t, tr.Send(context.Background(), "join_session", nil),
		"send before connect must be rejected")

	require.NoError(t, tr.Connect(context.Background()))

	ok := tr.Send(context.Background(), "join_session", map[string]string{"sessionId": "abc"})
	require.True(t, ok)

	writes := conn.written()
	require.Len(t, writes, 1)
	assert.JSONEq(t, `{"action":"join_session","payload":{"sessionId":"abc"}}`, string(writes[0]))
}

func TestTransport_CleanCloseDoesNotReconnect(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	conn.readErr = websocket.CloseError{Code: websocket.StatusNormalClosure}

	var dials atomic.Int32
	tr := ws.New(ws.Config{
		URL:     "ws://test",
		Backoff: noBackoff,
		Dial: func(ctx context.Context, url string) (ws.Conn, error) {
			dials.Add(1)
			return conn, nil
		},
	})

	require.NoError(t, tr.Connect(context.Background()))
	conn.drop()

	waitState(t, tr, transport.StateDisconnected)
	assert.Equal(t, int32(1), dials.Load(), "a clean close must not trigger reconnection")
}

func TestTransport_ReconnectBoundThenFailed(t *testing.T) {
	t.Parallel()

	first := newFakeConn()

	var dials atomic.Int32
	tr := ws.New(ws.Config{
		URL:           "ws://test",
		MaxReconnects: 5,
		Backoff:       noBackoff,
		Dial: func(ctx context.Context, url string) (ws.Conn, error) {
			if dials.Add(1) == 1 {
				return first, nil
			}
			return nil, errConnLost
		},
	})

	require.NoError(t, tr.Connect(context.Background()))
	first.drop()

	waitState(t, tr, transport.StateFailed)
	assert.Equal(t, int32(6), dials.Load(), "initial dial plus exactly five reconnect attempts")

	require.False(t, tr.Send(context.Background(), "chat_message", nil),
		"the failed state accepts no frames")
}

func TestTransport_ReconnectRecovers(t *testing.T) {
	t.Parallel()

	first := newFakeConn()
	second := newFakeConn()

	var dials atomic.Int32
	tr := ws.New(ws.Config{
		URL:     "ws://test",
		Backoff: noBackoff,
		Dial: func(ctx context.Context, url string) (ws.Conn, error) {
			switch dials.Add(1) {
			case 1:
				return first, nil
			case 2, 3:
				return nil, errConnLost
			default:
				return second, nil
			}
		},
	})

	delivered := make(chan string, 1)
	tr.Subscribe("game_started", func(ctx context.Context, payload json.RawMessage) {
		delivered <- string(payload)
	})

	require.NoError(t, tr.Connect(context.Background()))
	first.drop()

	waitState(t, tr, transport.StateConnected)
	assert.Equal(t, int32(4), dials.Load())

	// frames from the replacement connection flow through the same subscriptions
	second.in <- []byte(`{"type":"game_started","payload":{"Session":{"ID":"abc"}}}`)
	select {
	case p := <-delivered:
		assert.Contains(t, p, "abc")
	case <-time.After(2 * time.Second):
		t.Fatal("frame from reconnected connection was not dispatched")
	}
}

func TestTransport_DisconnectStopsReconnection(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()

	var dials atomic.Int32
	tr := ws.New(ws.Config{
		URL:     "ws://test",
		Backoff: noBackoff,
		Dial: func(ctx context.Context, url string) (ws.Conn, error) {
			dials.Add(1)
			return conn, nil
		},
	})

	require.NoError(t, tr.Connect(context.Background()))
	require.NoError(t, tr.Disconnect())

	waitState(t, tr, transport.StateDisconnected)
	assert.Equal(t, int32(1), dials.Load(), "an explicit disconnect must not redial")
}

func TestTransport_ConnectDuringBackoffSupersedesReconnect(t *testing.T) {
	t.Parallel()

	first := newFakeConn()
	second := newFakeConn()

	entered := make(chan struct{}, 8)
	release := make(chan struct{})

	var dials atomic.Int32
	tr := ws.New(ws.Config{
		URL: "ws://test",
		Backoff: func(int) time.Duration {
			entered <- struct{}{}
			<-release
			return 0
		},
		Dial: func(ctx context.Context, url string) (ws.Conn, error) {
			switch dials.Add(1) {
			case 1:
				return first, nil
			case 2:
				return second, nil
			default:
				t.Error("reconnect loop dialed after an explicit connect took over")
				return newFakeConn(), nil
			}
		},
	})

	var got atomic.Int32
	tr.Subscribe("question_ended", func(ctx context.Context, payload json.RawMessage) {
		got.Add(1)
	})

	require.NoError(t, tr.Connect(context.Background()))
	first.drop()

	<-entered // the reconnect loop is parked in its backoff

	require.NoError(t, tr.Connect(context.Background()))
	require.Equal(t, transport.StateConnected, tr.State())

	close(release) // the parked loop must now stand down without dialing

	second.in <- []byte(`{"type":"question_ended","payload":{"sessionId":"abc"}}`)
	require.Eventually(t, func() bool {
		return got.Load() >= 1
	}, 2*time.Second, 5*time.Millisecond)

	// give a leftover connection time to misdeliver before counting
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), got.Load(), "each frame must be dispatched exactly once")
	assert.Equal(t, int32(2), dials.Load())
}

func TestTransport_StateWatchers(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	tr := ws.New(ws.Config{
		URL: "ws://test",
		Dial: func(ctx context.Context, url string) (ws.Conn, error) {
			return conn, nil
		},
	})

	var mu sync.Mutex
	var seen []transport.State
	unsub := tr.OnStateChange(func(s transport.State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	})

	require.NoError(t, tr.Connect(context.Background()))

	mu.Lock()
	assert.Equal(t, []transport.State{transport.StateConnecting, transport.StateConnected}, seen)
	mu.Unlock()

	unsub()
	require.NoError(t, tr.Disconnect())

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 2, "unsubscribed watcher must not fire")
}

func TestDefaultBackoff(t *testing.T) {
	t.Parallel()

	for attempt := 1; attempt <= 10; attempt++ {
		full := 500 * time.Millisecond << (attempt - 1)
		if full > 10*time.Second {
			full = 10 * time.Second
		}

		for i := 0; i < 20; i++ {
			d := ws.DefaultBackoff(attempt)
			assert.GreaterOrEqual(t, d, full/2, "attempt %d", attempt)
			assert.Less(t, d, full, "attempt %d", attempt)
		}
	}
}
