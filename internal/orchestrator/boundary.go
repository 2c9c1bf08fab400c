// Package orchestrator implements the Order Boundary Orchestrator
// (component M): the single entry point through which order mutations are
// applied, serialized per order, and fanned out as events.
package orchestrator

import (
	"context"
	"sync"

	"github.com/pickflow/separation/internal/events"
	"github.com/pickflow/separation/internal/orders"
	"github.com/pickflow/separation/internal/pdf"
	"github.com/pickflow/separation/pkg/observability"
)

// Boundary serializes mutations per order so two concurrent batches on the
// same order never interleave, while batches on different orders proceed
// independently. Per-order locks are acquired here, never while any
// presence or broadcast lock is held (spec §5).
type Boundary struct {
	machine   *orders.Machine
	publisher *events.Publisher
	audit     *observability.OrderAuditLogger
	tracer    *observability.TracingProvider

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New constructs an order boundary orchestrator over the given state
// machine, event publisher, and audit logger. tracer may be nil (tests
// construct a Boundary without one), in which case spans are skipped.
func New(machine *orders.Machine, publisher *events.Publisher, logger *observability.Logger, tracer *observability.TracingProvider) *Boundary {
	return &Boundary{
		machine:   machine,
		publisher: publisher,
		audit:     observability.NewOrderAuditLogger(logger),
		tracer:    tracer,
		locks:     make(map[int64]*sync.Mutex),
	}
}

// span starts a trace span for a mutation if tracing is configured,
// returning a no-op end func otherwise.
func (b *Boundary) span(ctx context.Context, name string) (context.Context, func()) {
	if b.tracer == nil {
		return ctx, func() {}
	}
	spanCtx, span := b.tracer.StartSpan(ctx, name)
	return spanCtx, func() { span.End() }
}

func (b *Boundary) lockFor(orderID int64) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, ok := b.locks[orderID]
	if !ok {
		l = &sync.Mutex{}
		b.locks[orderID] = l
	}
	return l
}

// CreateOrder persists a newly parsed order and announces it to the fleet.
func (b *Boundary) CreateOrder(ctx context.Context, parsed *pdf.ParsedOrder, logisticsType orders.LogisticsType, packageType orders.PackageType, observations string) (*orders.Order, error) {
	ctx, end := b.span(ctx, "orchestrator.create_order")
	defer end()

	order, err := b.machine.Create(ctx, parsed, logisticsType, packageType, observations)
	if err != nil {
		return nil, err
	}

	b.audit.LogOrderCreated(ctx, order.ID, order.OrderNumber, len(order.Items))
	b.publisher.PublishNewOrder(ctx, order)
	return order, nil
}

// OpenOrder returns an order's detail snapshot. No locking: reads never
// contend with the per-order mutation lock.
func (b *Boundary) OpenOrder(ctx context.Context, orderID int64) (*orders.Order, error) {
	return b.machine.Open(ctx, orderID)
}

// ApplyBatch serializes the batch under orderID's lock, applies it, and
// publishes exactly the events the batch produced before returning the
// refreshed order to the caller.
func (b *Boundary) ApplyBatch(ctx context.Context, orderID int64, updates []orders.ItemUpdate, actorID int64) (*orders.Order, error) {
	ctx, end := b.span(ctx, "orchestrator.apply_batch")
	defer end()

	lock := b.lockFor(orderID)
	lock.Lock()
	defer lock.Unlock()

	result, err := b.machine.ApplyBatch(ctx, orderID, updates, actorID)
	if err != nil {
		return nil, err
	}

	b.logTransitions(ctx, result, actorID)
	b.publisher.PublishBatch(ctx, result)
	return result.Order, nil
}

// logTransitions audits each facet change a batch produced, one entry per
// transition so a single batch touching several items leaves a trail per
// item rather than one opaque "batch applied" line.
func (b *Boundary) logTransitions(ctx context.Context, result *orders.BatchResult, actorID int64) {
	productCodes := make(map[int64]string, len(result.Order.Items))
	for _, item := range result.Order.Items {
		productCodes[item.ID] = item.ProductCode
	}

	for _, t := range result.Transitions {
		if t.SeparatedNowTrue {
			b.audit.LogItemTransition(ctx, result.Order.ID, t.ItemID, actorID, productCodes[t.ItemID], "item_separated")
		}
		if t.PurchaseNowTrue {
			b.audit.LogItemTransition(ctx, result.Order.ID, t.ItemID, actorID, productCodes[t.ItemID], "item_sent_to_purchase")
		}
		if t.NotSentNowTrue {
			b.audit.LogItemTransition(ctx, result.Order.ID, t.ItemID, actorID, productCodes[t.ItemID], "item_not_sent")
		}
	}

	if result.NewlyCompleted {
		b.audit.LogOrderCompleted(ctx, result.Order.ID, actorID, false)
	}
}

// MarkCompleted applies the manual-completion override under the same
// per-order serialization as ApplyBatch, then announces completion.
func (b *Boundary) MarkCompleted(ctx context.Context, orderID, actorID int64) (*orders.Order, error) {
	ctx, end := b.span(ctx, "orchestrator.mark_completed")
	defer end()

	lock := b.lockFor(orderID)
	lock.Lock()
	defer lock.Unlock()

	order, err := b.machine.MarkCompleted(ctx, orderID)
	if err != nil {
		return nil, err
	}

	b.audit.LogOrderCompleted(ctx, order.ID, actorID, true)
	b.publisher.PublishBatch(ctx, &orders.BatchResult{
		Order:          order,
		NewlyCompleted: true,
	})
	return order, nil
}
