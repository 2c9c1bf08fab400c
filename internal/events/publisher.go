// Package events adapts applied order-state transitions into the broadcast
// fabric's message shapes (component L).
package events

import (
	"context"
	"time"

	"github.com/pickflow/separation/internal/broadcast"
	"github.com/pickflow/separation/internal/orders"
)

// Publisher emits exactly the events §4.12 prescribes for each applied
// transition, in the order the orchestrator (M) hands them over: per-item
// events in update order, then order_updated, then order_completed if
// newly achieved.
type Publisher struct {
	fabric *broadcast.Fabric
}

// NewPublisher constructs an event publisher over the given broadcast
// fabric.
func NewPublisher(fabric *broadcast.Fabric) *Publisher {
	return &Publisher{fabric: fabric}
}

// PublishBatch emits the events produced by one apply_batch call.
// Reversals (true -> false) emit no dedicated event; they are captured by
// the closing order_updated.
func (p *Publisher) PublishBatch(ctx context.Context, result *orders.BatchResult) {
	order := result.Order
	progress := orders.ProgressPercentage(order)

	for _, t := range result.Transitions {
		if t.SeparatedNowTrue {
			p.fabric.BroadcastToOrder(ctx, broadcast.Message{
				Type: broadcast.TypeItemSeparated,
				Data: map[string]interface{}{
					"order_id":            order.ID,
					"item_id":             t.ItemID,
					"progress_percentage": progress,
				},
				Timestamp: time.Now().UTC(),
			}, order.ID, 0)
		}
		if t.PurchaseNowTrue {
			p.fabric.BroadcastToOrder(ctx, broadcast.Message{
				Type: broadcast.TypeItemSentToPurchase,
				Data: map[string]interface{}{
					"order_id": order.ID,
					"item_id":  t.ItemID,
				},
				Timestamp: time.Now().UTC(),
			}, order.ID, 0)
		}
		if t.NotSentNowTrue {
			p.fabric.BroadcastToOrder(ctx, broadcast.Message{
				Type: broadcast.TypeItemNotSent,
				Data: map[string]interface{}{
					"order_id":            order.ID,
					"item_id":             t.ItemID,
					"progress_percentage": progress,
				},
				Timestamp: time.Now().UTC(),
			}, order.ID, 0)
		}
	}

	p.fabric.BroadcastToAll(ctx, broadcast.Message{
		Type: broadcast.TypeOrderUpdated,
		Data: map[string]interface{}{
			"order_id":            order.ID,
			"progress_percentage": progress,
		},
		Timestamp: time.Now().UTC(),
	}, 0)

	if result.NewlyCompleted {
		p.fabric.BroadcastToAll(ctx, broadcast.Message{
			Type:      broadcast.TypeOrderCompleted,
			Data:      map[string]interface{}{"order_id": order.ID},
			Timestamp: time.Now().UTC(),
		}, 0)
	}
}

// PublishNewOrder emits the fleet-wide event for a freshly created order.
func (p *Publisher) PublishNewOrder(ctx context.Context, order *orders.Order) {
	p.fabric.BroadcastToAll(ctx, broadcast.Message{
		Type: broadcast.TypeNewOrder,
		Data: map[string]interface{}{
			"order_id":     order.ID,
			"order_number": order.OrderNumber,
			"client_name":  order.ClientName,
		},
		Timestamp: time.Now().UTC(),
	}, 0)
}
