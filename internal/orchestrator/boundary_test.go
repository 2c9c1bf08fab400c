package orchestrator

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pickflow/separation/internal/broadcast"
	"github.com/pickflow/separation/internal/config"
	"github.com/pickflow/separation/internal/events"
	"github.com/pickflow/separation/internal/orders"
	"github.com/pickflow/separation/internal/pdf"
	"github.com/pickflow/separation/internal/presence"
	"github.com/pickflow/separation/pkg/observability"
)

// fakeStore is a minimal in-memory orders.Store, just enough to exercise
// the boundary's serialization and event-publication behavior.
type fakeStore struct {
	mu          sync.Mutex
	orders      map[int64]*orders.Order
	nextOrderID int64
	nextItemID  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: make(map[int64]*orders.Order)}
}

func (s *fakeStore) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return fn(nil)
}

func (s *fakeStore) CreateOrder(ctx context.Context, tx *sql.Tx, order *orders.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
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
	return false, nil
}

func (s *fakeStore) GetOrder(ctx context.Context, id int64) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return o, nil
}

func (s *fakeStore) GetOrderForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*orders.Order, error) {
	return s.GetOrder(ctx, id)
}

func (s *fakeStore) UpdateOrder(ctx context.Context, tx *sql.Tx, order *orders.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = order
	return nil
}

func (s *fakeStore) ListOrders(ctx context.Context, page, perPage int, status *orders.Status) ([]*orders.Order, int, error) {
	return nil, 0, nil
}

func (s *fakeStore) Stats(ctx context.Context) (orders.OrderStats, error) {
	return orders.OrderStats{}, nil
}

func (s *fakeStore) GetItemForUpdate(ctx context.Context, tx *sql.Tx, itemID int64) (*orders.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		for _, item := range o.Items {
			if item.ID == itemID {
				return item, nil
			}
		}
	}
	return nil, sql.ErrNoRows
}

func (s *fakeStore) UpdateItem(ctx context.Context, tx *sql.Tx, item *orders.OrderItem) error {
	return nil
}

func (s *fakeStore) CreatePurchaseItem(ctx context.Context, tx *sql.Tx, pi *orders.PurchaseItem) error {
	return nil
}

func (s *fakeStore) DeletePurchaseItemByOrderItem(ctx context.Context, tx *sql.Tx, orderItemID int64) error {
	return nil
}

func (s *fakeStore) ListPurchaseItems(ctx context.Context) ([]*orders.PurchaseItem, error) {
	return nil, nil
}

func (s *fakeStore) OpenAccess(ctx context.Context, orderID, userID int64) (*orders.OrderAccess, error) {
	return &orders.OrderAccess{OrderID: orderID, UserID: userID}, nil
}
func (s *fakeStore) LeaveAccess(ctx context.Context, orderID, userID int64) error { return nil }
func (s *fakeStore) LeaveAllAccess(ctx context.Context, userID int64) error       { return nil }
func (s *fakeStore) AccessHistory(ctx context.Context, orderID int64) ([]*orders.OrderAccess, error) {
	return nil, nil
}
func (s *fakeStore) ActiveAccessByOrder(ctx context.Context, orderID int64) ([]*orders.OrderAccess, error) {
	return nil, nil
}
func (s *fakeStore) ActiveAccessByUser(ctx context.Context, userID int64) ([]*orders.OrderAccess, error) {
	return nil, nil
}
func (s *fakeStore) AccessStats(ctx context.Context, orderID, userID *int64, days int) (orders.AccessStats, error) {
	return orders.AccessStats{}, nil
}

func newTestBoundary() (*Boundary, *presence.Registry) {
	store := newFakeStore()
	machine := orders.NewMachine(store)
	registry := presence.NewRegistry()
	logger := observability.NewLogger(config.ObservabilityConfig{LogLevel: "error", LogFormat: "json"})
	fabric := broadcast.NewFabric(registry, logger, noopMetrics{})
	publisher := events.NewPublisher(fabric)
	return New(machine, publisher, logger, nil), registry
}

type noopMetrics struct{}

func (noopMetrics) RecordBroadcast(ctx context.Context, scope string) {}

func newTestOrder() *pdf.ParsedOrder {
	return &pdf.ParsedOrder{
		OrderNumber: "ORD-1",
		ClientName:  "CLIENT",
		SellerName:  "SELLER",
		TotalValue:  decimal.NewFromInt(10),
		Items: []pdf.RawItem{
			{ProductCode: "A", ProductName: "ITEM A", Quantity: 1, UnitPrice: decimal.NewFromInt(10), TotalPrice: decimal.NewFromInt(10)},
		},
	}
}

func TestCreateOrder_PublishesNewOrderToFleet(t *testing.T) {
	boundary, registry := newTestBoundary()
	registry.Connect(1, "alice", &websocket.Conn{}, 8)

	order, err := boundary.CreateOrder(context.Background(), newTestOrder(), orders.LogisticsRetirada, orders.PackageCaixa, "")
	require.NoError(t, err)
	require.NotZero(t, order.ID)

	conn, ok := registry.Get(1)
	require.True(t, ok)
	select {
	case raw := <-conn.Send:
		require.Contains(t, string(raw), broadcast.TypeNewOrder)
	default:
		t.Fatal("expected new_order broadcast")
	}
}

func TestApplyBatch_SerializesConcurrentCallsOnSameOrder(t *testing.T) {
	boundary, _ := newTestBoundary()

	order, err := boundary.CreateOrder(context.Background(), newTestOrder(), orders.LogisticsRetirada, orders.PackageCaixa, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	trueVal := true
	falseVal := false

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(separated bool) {
			defer wg.Done()
			update := orders.ItemUpdate{ItemID: order.Items[0].ID}
			if separated {
				update.IsSeparated = &trueVal
			} else {
				update.IsSeparated = &falseVal
			}
			_, err := boundary.ApplyBatch(context.Background(), order.ID, []orders.ItemUpdate{update}, 1)
			errs <- err
		}(i%2 == 0)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestMarkCompleted_PublishesOrderCompleted(t *testing.T) {
	boundary, registry := newTestBoundary()
	registry.Connect(1, "alice", &websocket.Conn{}, 8)

	order, err := boundary.CreateOrder(context.Background(), newTestOrder(), orders.LogisticsRetirada, orders.PackageCaixa, "")
	require.NoError(t, err)

	conn, ok := registry.Get(1)
	require.True(t, ok)
	<-conn.Send // drain new_order

	_, err = boundary.MarkCompleted(context.Background(), order.ID, 1)
	require.NoError(t, err)

	<-conn.Send // order_updated
	select {
	case raw := <-conn.Send:
		require.Contains(t, string(raw), broadcast.TypeOrderCompleted)
	default:
		t.Fatal("expected order_completed broadcast")
	}
}
