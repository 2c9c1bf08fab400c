package orders

import (
	"context"
	"database/sql"
	"time"

	"github.com/pickflow/separation/internal/apperr"
	"github.com/pickflow/separation/internal/pdf"
)

// Machine is the order state machine (G): it owns the authoritative order
// record and applies transitions atomically on behalf of the orchestrator
// (M).
type Machine struct {
	store Store
}

// NewMachine constructs a state machine over the given persistence store.
func NewMachine(store Store) *Machine {
	return &Machine{store: store}
}

// Create persists a freshly parsed order. Fails with DUPLICATE_ORDER_NUMBER
// if one already exists with the same order_number.
func (m *Machine) Create(ctx context.Context, parsed *pdf.ParsedOrder, logisticsType LogisticsType, packageType PackageType, observations string) (*Order, error) {
	exists, err := m.store.OrderNumberExists(ctx, parsed.OrderNumber)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.New(apperr.CodeDuplicateOrderNumber, "an order with this order_number already exists")
	}

	now := time.Now().UTC()
	order := &Order{
		OrderNumber:   parsed.OrderNumber,
		ClientName:    parsed.ClientName,
		SellerName:    parsed.SellerName,
		OrderDate:     parsed.OrderDate,
		TotalValue:    parsed.TotalValue,
		LogisticsType: logisticsType,
		PackageType:   packageType,
		Observations:  observations,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	for _, item := range parsed.Items {
		order.Items = append(order.Items, &OrderItem{
			ProductCode:      item.ProductCode,
			ProductReference: item.ProductReference,
			ProductName:      item.ProductName,
			Quantity:         item.Quantity,
			UnitPrice:        item.UnitPrice,
			TotalPrice:       item.TotalPrice,
		})
	}
	order.ItemsCount = len(order.Items)

	var created *Order
	err = m.store.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := m.store.CreateOrder(ctx, tx, order); err != nil {
			return err
		}
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// Open returns a detail snapshot (Order + items) with no lazy traversal
// after the call returns.
func (m *Machine) Open(ctx context.Context, orderID int64) (*Order, error) {
	order, err := m.store.GetOrder(ctx, orderID)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.CodeOrderNotFound, "order not found")
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ApplyBatch atomically applies a list of per-item updates: either all
// succeed or none are persisted. It returns the refreshed order and the
// ordered list of facet transitions the batch produced, in update order.
func (m *Machine) ApplyBatch(ctx context.Context, orderID int64, updates []ItemUpdate, actorID int64) (*BatchResult, error) {
	var result BatchResult

	err := m.store.WithTransaction(ctx, func(tx *sql.Tx) error {
		order, err := m.store.GetOrderForUpdate(ctx, tx, orderID)
		if err == sql.ErrNoRows {
			return apperr.New(apperr.CodeOrderNotFound, "order not found")
		}
		if err != nil {
			return err
		}

		itemsByID := make(map[int64]*OrderItem, len(order.Items))
		for _, item := range order.Items {
			itemsByID[item.ID] = item
		}

		wasCompleted := order.Status == StatusCompleted

		for _, update := range updates {
			item, ok := itemsByID[update.ItemID]
			if !ok {
				return apperr.New(apperr.CodeItemNotInOrder, "item does not belong to this order")
			}

			transition, err := applyItemUpdate(item, update, actorID)
			if err != nil {
				return err
			}

			if err := m.store.UpdateItem(ctx, tx, item); err != nil {
				return err
			}

			if transition.PurchaseNowTrue {
				if err := m.store.CreatePurchaseItem(ctx, tx, &PurchaseItem{
					OrderItemID: item.ID,
					RequestedAt: time.Now().UTC(),
					RequestedBy: actorID,
				}); err != nil {
					return err
				}
			}
			if update.SentToPurchase != nil && !*update.SentToPurchase {
				if err := m.store.DeletePurchaseItemByOrderItem(ctx, tx, item.ID); err != nil {
					return err
				}
			}

			result.Transitions = append(result.Transitions, transition)
		}

		recomputeCounters(order)
		recomputeStatus(order)

		result.NewlyCompleted = !wasCompleted && order.Status == StatusCompleted

		if err := m.store.UpdateOrder(ctx, tx, order); err != nil {
			return err
		}

		result.Order = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// MarkCompleted is the admin/separator manual-completion override.
func (m *Machine) MarkCompleted(ctx context.Context, orderID int64) (*Order, error) {
	var order *Order

	err := m.store.WithTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		order, err = m.store.GetOrderForUpdate(ctx, tx, orderID)
		if err == sql.ErrNoRows {
			return apperr.New(apperr.CodeOrderNotFound, "order not found")
		}
		if err != nil {
			return err
		}

		if order.Status == StatusCompleted {
			return apperr.New(apperr.CodeAlreadyCompleted, "order is already completed")
		}

		now := time.Now().UTC()
		order.Status = StatusCompleted
		order.CompletedAt = &now
		order.UpdatedAt = now

		return m.store.UpdateOrder(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// applyItemUpdate applies the three independent boolean facets per §4.7's
// transition table, stamping or clearing each facet's own timestamp and
// operator reference.
func applyItemUpdate(item *OrderItem, update ItemUpdate, actorID int64) (Transition, error) {
	transition := Transition{ItemID: item.ID}
	now := time.Now().UTC()

	if update.IsSeparated != nil {
		if *update.IsSeparated {
			item.IsSeparated = true
			item.SeparatedAt = &now
			item.SeparatedBy = &actorID
			transition.SeparatedNowTrue = true
		} else {
			item.IsSeparated = false
			item.SeparatedAt = nil
			item.SeparatedBy = nil
		}
	}

	if update.SentToPurchase != nil {
		if *update.SentToPurchase {
			if item.SentToPurchase {
				return transition, apperr.New(apperr.CodeAlreadySentToPurchase, "item is already sent to purchase")
			}
			item.SentToPurchase = true
			item.PurchaseAt = &now
			item.PurchaseBy = &actorID
			transition.PurchaseNowTrue = true
		} else {
			// Pure removal of the purchase facet (spec §9's resolved open
			// question): never routed through not_sent.
			item.SentToPurchase = false
			item.PurchaseAt = nil
			item.PurchaseBy = nil
		}
	}

	if update.NotSent != nil {
		if *update.NotSent {
			item.NotSent = true
			item.NotSentAt = &now
			item.NotSentBy = &actorID
			item.NotSentReason = update.NotSentReason
			transition.NotSentNowTrue = true
		} else {
			item.NotSent = false
			item.NotSentAt = nil
			item.NotSentBy = nil
			item.NotSentReason = ""
		}
	}

	return transition, nil
}

// recomputeCounters recounts facets from items after a batch mutation.
func recomputeCounters(order *Order) {
	order.ItemsCount = len(order.Items)

	separated, inPurchase, notSent := 0, 0, 0
	for _, item := range order.Items {
		if item.IsSeparated {
			separated++
		}
		if item.SentToPurchase {
			inPurchase++
		}
		if item.NotSent {
			notSent++
		}
	}

	order.ItemsSeparated = separated
	order.ItemsInPurchase = inPurchase
	order.ItemsNotSent = notSent
}

// recomputeStatus re-evaluates order-level status per §4.7's rule: purchase
// does not count toward "processed"; this specification adopts
// separated+not_sent as the completion definition (spec §9 resolved open
// question).
func recomputeStatus(order *Order) {
	now := time.Now().UTC()
	order.UpdatedAt = now

	if order.ItemsCount == 0 {
		order.Status = StatusPending
		return
	}

	processed := order.ItemsSeparated + order.ItemsNotSent

	switch {
	case processed == order.ItemsCount:
		order.Status = StatusCompleted
		if order.CompletedAt == nil {
			order.CompletedAt = &now
		}
	case order.ItemsSeparated > 0 || order.ItemsInPurchase > 0 || order.ItemsNotSent > 0:
		order.Status = StatusInProgress
	default:
		order.Status = StatusPending
	}
}
