package broadcast

import (
	"context"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pickflow/separation/internal/config"
	"github.com/pickflow/separation/internal/presence"
	"github.com/pickflow/separation/pkg/observability"
)

type fakeMetrics struct {
	scopes []string
}

func (f *fakeMetrics) RecordBroadcast(ctx context.Context, scope string) {
	f.scopes = append(f.scopes, scope)
}

func newTestFabric() (*Fabric, *presence.Registry, *fakeMetrics) {
	registry := presence.NewRegistry()
	logger := observability.NewLogger(config.ObservabilityConfig{LogLevel: "error", LogFormat: "json"})
	metrics := &fakeMetrics{}
	return NewFabric(registry, logger, metrics), registry, metrics
}

func TestBroadcastToOrder_DeliversToMembersOnly(t *testing.T) {
	fabric, registry, metrics := newTestFabric()
	registry.Connect(1, "alice", &websocket.Conn{}, 4)
	registry.Connect(2, "bob", &websocket.Conn{}, 4)
	registry.JoinOrder(1, 100)

	fabric.BroadcastToOrder(context.Background(), Message{Type: TypeItemSeparated}, 100, 0)

	conn, _ := registry.Get(1)
	select {
	case <-conn.Send:
	default:
		t.Fatal("expected message on member's send channel")
	}

	other, _ := registry.Get(2)
	select {
	case <-other.Send:
		t.Fatal("non-member should not receive order broadcast")
	default:
	}

	assert.Equal(t, []string{"order"}, metrics.scopes)
}

func TestDeliver_DropsOnFullQueueAndDisconnects(t *testing.T) {
	fabric, registry, _ := newTestFabric()
	registry.Connect(1, "alice", &websocket.Conn{}, 1)

	var disconnected int64 = -1
	fabric.OnUserLeft(func(userID int64) { disconnected = userID })

	conn, _ := registry.Get(1)
	conn.Send <- []byte("filler")

	fabric.SendToUser(context.Background(), Message{Type: TypePong}, 1)

	require.Equal(t, int64(1), disconnected)
}

func TestSendToUser_NoOpWhenNotConnected(t *testing.T) {
	fabric, _, metrics := newTestFabric()

	fabric.SendToUser(context.Background(), Message{Type: TypePong}, 999)

	assert.Empty(t, metrics.scopes)
}
