package redisps_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/equiz-client/internal/transport"
	"github.com/victornm/equiz-client/internal/transport/redisps"
)

func newTransport(t *testing.T) (*redisps.Transport, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	r := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	t.Cleanup(func() { _ = r.Close() })

	return redisps.New(redisps.Config{
		Redis:   r,
		Prefix:  "equiz",
		Session: "abc",
	}), mr
}

func TestTransport_Dispatch(t *testing.T) {
	tr, mr := newTransport(t)

	var mu sync.Mutex
	var got []string
	tr.Subscribe("player_joined", func(ctx context.Context, payload json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(payload))
	})

	require.NoError(t, tr.Connect(context.Background()))
	require.Equal(t, transport.StateConnected, tr.State())

	mr.Publish("equiz:session:abc", `{"event":"player_joined","data":{"sessionId":"abc"}}`)
	mr.Publish("equiz:session:abc", `garbage`)                      // dropped
	mr.Publish("equiz:session:abc", `{"data":{"sessionId":"abc"}}`) // no event name, dropped
	mr.Publish("equiz:session:abc", `{"event":"player_joined","data":{"sessionId":"def"}}`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.JSONEq(t, `{"sessionId":"abc"}`, got[0])
	assert.JSONEq(t, `{"sessionId":"def"}`, got[1])

	require.NoError(t, tr.Disconnect())
	assert.Equal(t, transport.StateDisconnected, tr.State())
}

func TestTransport_SendPublishesAction(t *testing.T) {
	tr, mr := newTransport(t)

	r := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	t.Cleanup(func() { _ = r.Close() })

	ctx := context.Background()

	sub := r.Subscribe(ctx, "equiz:session:abc:actions")
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	require.False(t, tr.Send(ctx, "join_session", nil), "send before connect must be rejected")

	require.NoError(t, tr.Connect(ctx))
	require.True(t, tr.Send(ctx, "join_session", map[string]string{"sessionId": "abc", "nickname": "ann"}))

	select {
	case msg := <-sub.Channel():
		assert.JSONEq(t,
			`{"action":"join_session","payload":{"sessionId":"abc","nickname":"ann"}}`,
			msg.Payload,
		)
	case <-time.After(2 * time.Second):
		t.Fatal("published action did not arrive")
	}
}

func TestTransport_ConnectIsIdempotent(t *testing.T) {
	tr, _ := newTransport(t)

	ctx := context.Background()
	require.NoError(t, tr.Connect(ctx))
	require.NoError(t, tr.Connect(ctx))
	require.Equal(t, transport.StateConnected, tr.State())
}
