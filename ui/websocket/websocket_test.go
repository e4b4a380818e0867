package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConn struct {
	mu       sync.Mutex
	messages []BroadcastMessage
	closed   bool
}

func (c *recordingConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(data) == 0 {
		return nil
	}
	var msg BroadcastMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	c.messages = append(c.messages, msg)
	return nil
}

func (c *recordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *recordingConn) received() []BroadcastMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]BroadcastMessage(nil), c.messages...)
}

type fakeBus struct {
	mu        sync.Mutex
	published []string
	handler   chan func(string)
}

func newFakeBus() *fakeBus {
	return &fakeBus{handler: make(chan func(string), 1)}
}

func (b *fakeBus) Publish(_ context.Context, _, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, message)
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, _ string, fn func(string)) error {
	b.handler <- fn
	<-ctx.Done()
	return ctx.Err()
}

func (b *fakeBus) publishedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

func startHub(t *testing.T, bus Bus) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := NewHub(bus, "server-a")
	go hub.Run(ctx)
	return hub
}

func TestHub_DeliversOnlyToCompany(t *testing.T) {
	hub := startHub(t, nil)
	mine, other := &recordingConn{}, &recordingConn{}
	hub.Register(mine, "co-1")
	hub.Register(other, "co-2")

	hub.EmitToCompany("co-1", "channel:status", map[string]any{"channel_id": "c1"})

	assert.Eventually(t, func() bool { return len(mine.received()) == 1 }, time.Second, 5*time.Millisecond)
	msg := mine.received()[0]
	assert.Equal(t, "channel:status", msg.Event)
	assert.Empty(t, msg.SenderID)
	assert.Empty(t, other.received())
}

func TestHub_UnregisteredClientStopsReceiving(t *testing.T) {
	hub := startHub(t, nil)
	conn := &recordingConn{}
	hub.Register(conn, "co-1")
	hub.Unregister(conn)

	hub.EmitToCompany("co-1", "channel:status", nil)
	probe := &recordingConn{}
	hub.Register(probe, "co-1")
	hub.EmitToCompany("co-1", "channel:qr", nil)

	assert.Eventually(t, func() bool { return len(probe.received()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, conn.received())
}

func TestHub_PublishesAndIgnoresOwnEcho(t *testing.T) {
	bus := newFakeBus()
	hub := startHub(t, bus)
	conn := &recordingConn{}
	hub.Register(conn, "co-1")

	var deliver func(string)
	select {
	case deliver = <-bus.handler:
	case <-time.After(time.Second):
		t.Fatal("subscriber never started")
	}

	hub.EmitToCompany("co-1", "channel:connected", nil)
	assert.Eventually(t, func() bool { return bus.publishedCount() == 1 }, time.Second, 5*time.Millisecond)

	var published BroadcastMessage
	bus.mu.Lock()
	raw := bus.published[0]
	bus.mu.Unlock()
	require.NoError(t, json.Unmarshal([]byte(raw), &published))
	assert.Equal(t, "server-a", published.SenderID)

	// echo of our own publish is dropped, a peer's event is delivered
	deliver(raw)
	deliver(`{"event":"message:new","company_id":"co-1","sender_id":"server-b"}`)

	assert.Eventually(t, func() bool { return len(conn.received()) == 2 }, time.Second, 5*time.Millisecond)
	got := conn.received()
	assert.Equal(t, "channel:connected", got[0].Event)
	assert.Equal(t, "message:new", got[1].Event)
	assert.Equal(t, 1, bus.publishedCount())
}
