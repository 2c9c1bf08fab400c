package orders

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pickflow/separation/internal/apperr"
	"github.com/pickflow/separation/internal/pdf"
)

// fakeStore is an in-memory Store sufficient to exercise the state machine
// without a database.
type fakeStore struct {
	orders        map[int64]*Order
	purchaseItems map[int64]*PurchaseItem
	nextOrderID   int64
	nextItemID    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:        make(map[int64]*Order),
		purchaseItems: make(map[int64]*PurchaseItem),
	}
}

func (s *fakeStore) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return fn(nil)
}

func (s *fakeStore) CreateOrder(ctx context.Context, tx *sql.Tx, order *Order) error {
	s.nextOrderID++
	order.ID = s.nextOrderID
	for _, item := range order.Items {
		s.nextItemID++
		item.ID = s.nextItemID
		item.OrderID = order.ID
	}
	s.orders[order.ID] = order
	return nil
}

func (s *fakeStore) OrderNumberExists(ctx context.Context, orderNumber string) (bool, error) {
	for _, o := range s.orders {
		if o.OrderNumber == orderNumber {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) GetOrder(ctx context.Context, id int64) (*Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return o, nil
}

func (s *fakeStore) GetOrderForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*Order, error) {
	return s.GetOrder(ctx, id)
}

func (s *fakeStore) UpdateOrder(ctx context.Context, tx *sql.Tx, order *Order) error {
	s.orders[order.ID] = order
	return nil
}

func (s *fakeStore) ListOrders(ctx context.Context, page, perPage int, status *Status) ([]*Order, int, error) {
	return nil, 0, nil
}

func (s *fakeStore) Stats(ctx context.Context) (OrderStats, error) { return OrderStats{}, nil }

func (s *fakeStore) GetItemForUpdate(ctx context.Context, tx *sql.Tx, itemID int64) (*OrderItem, error) {
	for _, o := range s.orders {
		for _, item := range o.Items {
			if item.ID == itemID {
				return item, nil
			}
		}
	}
	return nil, sql.ErrNoRows
}

func (s *fakeStore) UpdateItem(ctx context.Context, tx *sql.Tx, item *OrderItem) error { return nil }

func (s *fakeStore) CreatePurchaseItem(ctx context.Context, tx *sql.Tx, pi *PurchaseItem) error {
	s.purchaseItems[pi.OrderItemID] = pi
	return nil
}

func (s *fakeStore) DeletePurchaseItemByOrderItem(ctx context.Context, tx *sql.Tx, orderItemID int64) error {
	delete(s.purchaseItems, orderItemID)
	return nil
}

func (s *fakeStore) ListPurchaseItems(ctx context.Context) ([]*PurchaseItem, error) { return nil, nil }

func (s *fakeStore) OpenAccess(ctx context.Context, orderID, userID int64) (*OrderAccess, error) {
	return &OrderAccess{OrderID: orderID, UserID: userID}, nil
}
func (s *fakeStore) LeaveAccess(ctx context.Context, orderID, userID int64) error { return nil }
func (s *fakeStore) LeaveAllAccess(ctx context.Context, userID int64) error       { return nil }
func (s *fakeStore) AccessHistory(ctx context.Context, orderID int64) ([]*OrderAccess, error) {
	return nil, nil
}
func (s *fakeStore) ActiveAccessByOrder(ctx context.Context, orderID int64) ([]*OrderAccess, error) {
	return nil, nil
}
func (s *fakeStore) ActiveAccessByUser(ctx context.Context, userID int64) ([]*OrderAccess, error) {
	return nil, nil
}
func (s *fakeStore) AccessStats(ctx context.Context, orderID, userID *int64, days int) (AccessStats, error) {
	return AccessStats{}, nil
}

func newTestOrder(itemCount int) *pdf.ParsedOrder {
	items := make([]pdf.RawItem, 0, itemCount)
	for i := 0; i < itemCount; i++ {
		items = append(items, pdf.RawItem{
			ProductCode: "CODE",
			ProductName: "PRODUCT",
			Quantity:    1,
			UnitPrice:   decimal.NewFromInt(10),
			TotalPrice:  decimal.NewFromInt(10),
		})
	}
	return &pdf.ParsedOrder{
		OrderNumber: "ORD-1",
		ClientName:  "CLIENT",
		SellerName:  "SELLER",
		TotalValue:  decimal.NewFromInt(int64(10 * itemCount)),
		Items:       items,
	}
}

func TestCreate_RejectsDuplicateOrderNumber(t *testing.T) {
	store := newFakeStore()
	machine := NewMachine(store)

	_, err := machine.Create(context.Background(), newTestOrder(1), LogisticsRetirada, PackageCaixa, "")
	require.NoError(t, err)

	_, err = machine.Create(context.Background(), newTestOrder(1), LogisticsRetirada, PackageCaixa, "")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeDuplicateOrderNumber, apperr.CodeOf(err))
}

func TestApplyBatch_SeparatingAllItemsCompletesOrder(t *testing.T) {
	store := newFakeStore()
	machine := NewMachine(store)

	order, err := machine.Create(context.Background(), newTestOrder(2), LogisticsRetirada, PackageCaixa, "")
	require.NoError(t, err)

	trueVal := true
	result, err := machine.ApplyBatch(context.Background(), order.ID, []ItemUpdate{
		{ItemID: order.Items[0].ID, IsSeparated: &trueVal},
		{ItemID: order.Items[1].ID, IsSeparated: &trueVal},
	}, 42)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Order.Status)
	assert.True(t, result.NewlyCompleted)
	assert.NotNil(t, result.Order.CompletedAt)
	require.Len(t, result.Transitions, 2)
	assert.True(t, result.Transitions[0].SeparatedNowTrue)
}

func TestApplyBatch_RejectsItemFromAnotherOrder(t *testing.T) {
	store := newFakeStore()
	machine := NewMachine(store)

	order, err := machine.Create(context.Background(), newTestOrder(1), LogisticsRetirada, PackageCaixa, "")
	require.NoError(t, err)

	trueVal := true
	_, err = machine.ApplyBatch(context.Background(), order.ID, []ItemUpdate{
		{ItemID: 99999, IsSeparated: &trueVal},
	}, 42)

	require.Error(t, err)
	assert.Equal(t, apperr.CodeItemNotInOrder, apperr.CodeOf(err))
}

func TestApplyBatch_SentToPurchaseDoesNotAdvanceProgress(t *testing.T) {
	store := newFakeStore()
	machine := NewMachine(store)

	order, err := machine.Create(context.Background(), newTestOrder(1), LogisticsRetirada, PackageCaixa, "")
	require.NoError(t, err)

	trueVal := true
	result, err := machine.ApplyBatch(context.Background(), order.ID, []ItemUpdate{
		{ItemID: order.Items[0].ID, SentToPurchase: &trueVal},
	}, 42)
	require.NoError(t, err)

	assert.Equal(t, StatusInProgress, result.Order.Status)
	assert.Equal(t, 0.0, ProgressPercentage(result.Order))
}

func TestApplyBatch_RejectsDoubleSendToPurchase(t *testing.T) {
	store := newFakeStore()
	machine := NewMachine(store)

	order, err := machine.Create(context.Background(), newTestOrder(1), LogisticsRetirada, PackageCaixa, "")
	require.NoError(t, err)

	trueVal := true
	_, err = machine.ApplyBatch(context.Background(), order.ID, []ItemUpdate{
		{ItemID: order.Items[0].ID, SentToPurchase: &trueVal},
	}, 42)
	require.NoError(t, err)

	_, err = machine.ApplyBatch(context.Background(), order.ID, []ItemUpdate{
		{ItemID: order.Items[0].ID, SentToPurchase: &trueVal},
	}, 42)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeAlreadySentToPurchase, apperr.CodeOf(err))
}

func TestMarkCompleted_RejectsAlreadyCompleted(t *testing.T) {
	store := newFakeStore()
	machine := NewMachine(store)

	order, err := machine.Create(context.Background(), newTestOrder(1), LogisticsRetirada, PackageCaixa, "")
	require.NoError(t, err)

	_, err = machine.MarkCompleted(context.Background(), order.ID)
	require.NoError(t, err)

	_, err = machine.MarkCompleted(context.Background(), order.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeAlreadyCompleted, apperr.CodeOf(err))
}
