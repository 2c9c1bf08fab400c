package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/pickflow/separation/internal/broadcast"
	"github.com/pickflow/separation/internal/config"
	"github.com/pickflow/separation/internal/orders"
	"github.com/pickflow/separation/internal/presence"
	"github.com/pickflow/separation/pkg/observability"
)

type noopMetrics struct{}

func (noopMetrics) RecordBroadcast(ctx context.Context, scope string) {}

func newTestPublisher() (*Publisher, *presence.Registry) {
	registry := presence.NewRegistry()
	logger := observability.NewLogger(config.ObservabilityConfig{LogLevel: "error", LogFormat: "json"})
	fabric := broadcast.NewFabric(registry, logger, noopMetrics{})
	return NewPublisher(fabric), registry
}

func drainTypes(t *testing.T, ch chan []byte) []string {
	t.Helper()
	var types []string
	for {
		select {
		case raw := <-ch:
			var msg broadcast.Message
			require.NoError(t, json.Unmarshal(raw, &msg))
			types = append(types, msg.Type)
		case <-time.After(10 * time.Millisecond):
			return types
		}
	}
}

func TestPublishBatch_EmitsPerItemEventsThenOrderUpdated(t *testing.T) {
	publisher, registry := newTestPublisher()
	registry.Connect(1, "alice", &websocket.Conn{}, 8)
	registry.JoinOrder(1, 100)

	order := &orders.Order{ID: 100, ItemsCount: 2, ItemsSeparated: 1}
	result := &orders.BatchResult{
		Order: order,
		Transitions: []orders.Transition{
			{ItemID: 1, SeparatedNowTrue: true},
			{ItemID: 2, PurchaseNowTrue: true},
		},
	}

	publisher.PublishBatch(context.Background(), result)

	conn, ok := registry.Get(1)
	require.True(t, ok)

	types := drainTypes(t, conn.Send)
	require.Equal(t, []string{
		broadcast.TypeItemSeparated,
		broadcast.TypeItemSentToPurchase,
		broadcast.TypeOrderUpdated,
	}, types)
}

func TestPublishBatch_EmitsOrderCompletedWhenNewlyCompleted(t *testing.T) {
	publisher, registry := newTestPublisher()
	registry.Connect(1, "alice", &websocket.Conn{}, 8)
	registry.JoinOrder(1, 100)

	order := &orders.Order{ID: 100, ItemsCount: 1, ItemsSeparated: 1, Status: orders.StatusCompleted}
	result := &orders.BatchResult{
		Order: order,
		Transitions: []orders.Transition{
			{ItemID: 1, SeparatedNowTrue: true},
		},
		NewlyCompleted: true,
	}

	publisher.PublishBatch(context.Background(), result)

	conn, ok := registry.Get(1)
	require.True(t, ok)

	types := drainTypes(t, conn.Send)
	require.Equal(t, []string{
		broadcast.TypeItemSeparated,
		broadcast.TypeOrderUpdated,
		broadcast.TypeOrderCompleted,
	}, types)
}

func TestPublishBatch_ReversalEmitsNoDedicatedEvent(t *testing.T) {
	publisher, registry := newTestPublisher()
	registry.Connect(1, "alice", &websocket.Conn{}, 8)
	registry.JoinOrder(1, 100)

	order := &orders.Order{ID: 100, ItemsCount: 1}
	result := &orders.BatchResult{
		Order:       order,
		Transitions: []orders.Transition{{ItemID: 1}},
	}

	publisher.PublishBatch(context.Background(), result)

	conn, ok := registry.Get(1)
	require.True(t, ok)

	types := drainTypes(t, conn.Send)
	require.Equal(t, []string{broadcast.TypeOrderUpdated}, types)
}

func TestPublishNewOrder_BroadcastsToFleet(t *testing.T) {
	publisher, registry := newTestPublisher()
	registry.Connect(1, "alice", &websocket.Conn{}, 8)

	publisher.PublishNewOrder(context.Background(), &orders.Order{ID: 5, OrderNumber: "ORD-5"})

	conn, ok := registry.Get(1)
	require.True(t, ok)

	types := drainTypes(t, conn.Send)
	require.Equal(t, []string{broadcast.TypeNewOrder}, types)
}
