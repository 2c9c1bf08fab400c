// Package broadcast implements the event fan-out fabric (component K):
// serializing and routing messages to a single operator, to all operators
// within an order, or to the whole fleet.
package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pickflow/separation/internal/presence"
	"github.com/pickflow/separation/pkg/observability"
)

// Recognized message types (spec §4.11).
const (
	TypeItemSeparated      = "item_separated"
	TypeItemSentToPurchase = "item_sent_to_purchase"
	TypeItemNotSent        = "item_not_sent"
	TypeOrderCompleted     = "order_completed"
	TypeOrderUpdated       = "order_updated"
	TypeNewOrder           = "new_order"
	TypeUserJoined         = "user_joined"
	TypeUserLeft           = "user_left"
	TypePong               = "pong"
)

// Message is the wire shape every broadcast sends verbatim, serialized
// once per batch.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// MetricsRecorder is the subset of the metrics provider the fabric uses;
// kept narrow so tests can supply a no-op.
type MetricsRecorder interface {
	RecordBroadcast(ctx context.Context, scope string)
}

// Fabric routes serialized messages to registry-tracked connections.
// Socket writes happen outside the registry lock: SnapshotOrder/SnapshotAll
// copy the target set, then writes proceed independently so one slow
// client cannot stall the others.
type Fabric struct {
	registry *presence.Registry
	logger   *observability.Logger
	metrics  MetricsRecorder

	// onUserLeft is invoked whenever a write failure forces a disconnect,
	// so the caller can run the same side effects (access log leave_all,
	// user_left broadcast) as an explicit disconnect.
	onUserLeft func(userID int64)
}

// NewFabric constructs a broadcast fabric over the given presence
// registry.
func NewFabric(registry *presence.Registry, logger *observability.Logger, metrics MetricsRecorder) *Fabric {
	return &Fabric{registry: registry, logger: logger, metrics: metrics}
}

// OnUserLeft registers the callback invoked when the fabric detects a dead
// connection (as opposed to an explicit client disconnect handled by the
// caller). The fabric does not touch the registry itself; the callback
// performs the disconnect.
func (f *Fabric) OnUserLeft(fn func(userID int64)) {
	f.onUserLeft = fn
}

// SendToUser delivers a message to exactly one operator, if connected.
func (f *Fabric) SendToUser(ctx context.Context, message Message, userID int64) {
	conn, ok := f.registry.Get(userID)
	if !ok {
		return
	}

	data, err := json.Marshal(message)
	if err != nil {
		f.logger.Error(ctx, "failed to marshal message", err)
		return
	}

	f.deliver(ctx, conn, data, "user")
}

// BroadcastToOrder fans a message out to every member of order, excluding
// one user if given (0 for no exclusion).
func (f *Fabric) BroadcastToOrder(ctx context.Context, message Message, orderID int64, exclude int64) {
	conns := f.registry.SnapshotOrder(orderID, exclude)
	if len(conns) == 0 {
		return
	}

	data, err := json.Marshal(message)
	if err != nil {
		f.logger.Error(ctx, "failed to marshal message", err)
		return
	}

	for _, conn := range conns {
		f.deliver(ctx, conn, data, "order")
	}
}

// BroadcastToAll fans a message out to the whole fleet, excluding one user
// if given.
func (f *Fabric) BroadcastToAll(ctx context.Context, message Message, exclude int64) {
	conns := f.registry.SnapshotAll(exclude)
	if len(conns) == 0 {
		return
	}

	data, err := json.Marshal(message)
	if err != nil {
		f.logger.Error(ctx, "failed to marshal message", err)
		return
	}

	for _, conn := range conns {
		f.deliver(ctx, conn, data, "all")
	}
}

// deliver enqueues data on conn's send channel. A full channel (the
// backpressure bound) is treated as connection loss: the fabric hands the
// offender to the registered onUserLeft callback, which disconnects it and
// publishes the resulting user_left.
func (f *Fabric) deliver(ctx context.Context, conn *presence.Connection, data []byte, scope string) {
	select {
	case conn.Send <- data:
		if f.metrics != nil {
			f.metrics.RecordBroadcast(ctx, scope)
		}
	default:
		f.logger.Warn(ctx, "dropping slow or dead connection", map[string]interface{}{
			"user_id": conn.UserID,
		})
		f.disconnectLocked(conn.UserID)
	}
}

func (f *Fabric) disconnectLocked(userID int64) {
	if f.onUserLeft != nil {
		f.onUserLeft(userID)
	}
}

// CloseWithCode writes a close frame with the given code/reason and closes
// the underlying socket. Used for authentication failures before the
// connection is ever registered.
func CloseWithCode(socket *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = socket.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	_ = socket.Close()
}
