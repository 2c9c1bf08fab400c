package orders

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pickflow/separation/pkg/database"
)

// PostgresStore is the lib/pq-backed implementation of Store, grounded on
// the teacher's pooled *database.DB wrapper.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore wraps an already-connected database handle.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.db.Transaction(ctx, fn)
}

func (s *PostgresStore) OrderNumberExists(ctx context.Context, orderNumber string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM orders WHERE order_number = $1)`, orderNumber,
	).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) CreateOrder(ctx context.Context, tx *sql.Tx, order *Order) error {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO orders (order_number, client_name, seller_name, order_date, total_value,
			logistics_type, package_type, observations, items_count, items_separated,
			items_in_purchase, items_not_sent, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,0,0,0,$10,$11,$11)
		RETURNING id`,
		order.OrderNumber, order.ClientName, order.SellerName, order.OrderDate, order.TotalValue,
		order.LogisticsType, order.PackageType, order.Observations, order.ItemsCount,
		order.Status, order.CreatedAt,
	).Scan(&order.ID)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		item.OrderID = order.ID
		err := tx.QueryRowContext(ctx, `
			INSERT INTO order_items (order_id, product_code, product_reference, product_name,
				quantity, unit_price, total_price)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			RETURNING id`,
			item.OrderID, item.ProductCode, item.ProductReference, item.ProductName,
			item.Quantity, item.UnitPrice, item.TotalPrice,
		).Scan(&item.ID)
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, id int64) (*Order, error) {
	return s.loadOrder(ctx, s.db.QueryRowContext, s.db.QueryContext, id)
}

func (s *PostgresStore) GetOrderForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*Order, error) {
	return s.loadOrderTx(ctx, tx, id, true)
}

// loadOrder is the read-only path used by GET /orders/{id} and /detail.
func (s *PostgresStore) loadOrder(
	ctx context.Context,
	queryRow func(context.Context, string, ...interface{}) *sql.Row,
	query func(context.Context, string, ...interface{}) (*sql.Rows, error),
	id int64,
) (*Order, error) {
	order := &Order{}
	err := queryRow(ctx, orderSelectSQL, id).Scan(orderScanDests(order)...)
	if err != nil {
		return nil, err
	}

	rows, err := query(ctx, itemsSelectSQL, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		item := &OrderItem{}
		if err := rows.Scan(itemScanDests(item)...); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	return order, rows.Err()
}

// loadOrderTx reads the order inside a transaction, optionally with
// SELECT ... FOR UPDATE to serialize concurrent batch applies at the
// database layer in addition to the per-order mutex (§4.13 / §5).
func (s *PostgresStore) loadOrderTx(ctx context.Context, tx *sql.Tx, id int64, forUpdate bool) (*Order, error) {
	selectSQL := orderSelectSQL
	if forUpdate {
		selectSQL += " FOR UPDATE"
	}

	order := &Order{}
	if err := tx.QueryRowContext(ctx, selectSQL, id).Scan(orderScanDests(order)...); err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, itemsSelectSQL, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		item := &OrderItem{}
		if err := rows.Scan(itemScanDests(item)...); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	return order, rows.Err()
}

const orderSelectSQL = `
	SELECT id, order_number, client_name, seller_name, order_date, total_value,
		logistics_type, package_type, observations, items_count, items_separated,
		items_in_purchase, items_not_sent, status, created_at, updated_at, completed_at
	FROM orders WHERE id = $1`

const itemsSelectSQL = `
	SELECT id, order_id, product_code, product_reference, product_name, quantity,
		unit_price, total_price, is_separated, separated_at, separated_by,
		sent_to_purchase, purchase_at, purchase_by, not_sent, not_sent_at, not_sent_by,
		not_sent_reason
	FROM order_items WHERE order_id = $1 ORDER BY id`

func orderScanDests(o *Order) []interface{} {
	return []interface{}{
		&o.ID, &o.OrderNumber, &o.ClientName, &o.SellerName, &o.OrderDate, &o.TotalValue,
		&o.LogisticsType, &o.PackageType, &o.Observations, &o.ItemsCount, &o.ItemsSeparated,
		&o.ItemsInPurchase, &o.ItemsNotSent, &o.Status, &o.CreatedAt, &o.UpdatedAt, &o.CompletedAt,
	}
}

func itemScanDests(i *OrderItem) []interface{} {
	return []interface{}{
		&i.ID, &i.OrderID, &i.ProductCode, &i.ProductReference, &i.ProductName, &i.Quantity,
		&i.UnitPrice, &i.TotalPrice, &i.IsSeparated, &i.SeparatedAt, &i.SeparatedBy,
		&i.SentToPurchase, &i.PurchaseAt, &i.PurchaseBy, &i.NotSent, &i.NotSentAt, &i.NotSentBy,
		&i.NotSentReason,
	}
}

func (s *PostgresStore) UpdateOrder(ctx context.Context, tx *sql.Tx, order *Order) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE orders SET items_count=$1, items_separated=$2, items_in_purchase=$3,
			items_not_sent=$4, status=$5, updated_at=$6, completed_at=$7
		WHERE id=$8`,
		order.ItemsCount, order.ItemsSeparated, order.ItemsInPurchase, order.ItemsNotSent,
		order.Status, order.UpdatedAt, order.CompletedAt, order.ID,
	)
	return err
}

func (s *PostgresStore) ListOrders(ctx context.Context, page, perPage int, status *Status) ([]*Order, int, error) {
	offset := (page - 1) * perPage

	args := []interface{}{}
	where := ""
	if status != nil {
		where = "WHERE status = $1"
		args = append(args, *status)
	}

	var total int
	countSQL := "SELECT COUNT(*) FROM orders " + where
	if err := s.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, perPage, offset)
	listSQL := `SELECT id, order_number, client_name, seller_name, order_date, total_value,
		logistics_type, package_type, observations, items_count, items_separated,
		items_in_purchase, items_not_sent, status, created_at, updated_at, completed_at
		FROM orders ` + where + ` ORDER BY created_at DESC LIMIT $` +
		strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := s.db.QueryContext(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []*Order
	for rows.Next() {
		o := &Order{}
		if err := rows.Scan(orderScanDests(o)...); err != nil {
			return nil, 0, err
		}
		results = append(results, o)
	}

	return results, total, rows.Err()
}

func (s *PostgresStore) Stats(ctx context.Context) (OrderStats, error) {
	var stats OrderStats
	var avgValue decimal.Decimal

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'PENDING'),
			COUNT(*) FILTER (WHERE status = 'IN_PROGRESS'),
			COUNT(*) FILTER (WHERE status = 'COMPLETED'),
			COUNT(*) FILTER (WHERE status = 'CANCELLED'),
			COALESCE(AVG(items_count), 0),
			COALESCE(AVG(total_value), 0)
		FROM orders`,
	).Scan(&stats.Total, &stats.Pending, &stats.InProgress, &stats.Completed, &stats.Cancelled,
		&stats.AverageItems, &avgValue)
	if err != nil {
		return OrderStats{}, err
	}

	stats.AverageValue = avgValue.StringFixed(2)
	return stats, nil
}

func (s *PostgresStore) GetItemForUpdate(ctx context.Context, tx *sql.Tx, itemID int64) (*OrderItem, error) {
	item := &OrderItem{}
	err := tx.QueryRowContext(ctx, `
		SELECT id, order_id, product_code, product_reference, product_name, quantity,
			unit_price, total_price, is_separated, separated_at, separated_by,
			sent_to_purchase, purchase_at, purchase_by, not_sent, not_sent_at, not_sent_by,
			not_sent_reason
		FROM order_items WHERE id = $1 FOR UPDATE`, itemID,
	).Scan(itemScanDests(item)...)
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *PostgresStore) UpdateItem(ctx context.Context, tx *sql.Tx, item *OrderItem) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE order_items SET is_separated=$1, separated_at=$2, separated_by=$3,
			sent_to_purchase=$4, purchase_at=$5, purchase_by=$6,
			not_sent=$7, not_sent_at=$8, not_sent_by=$9, not_sent_reason=$10
		WHERE id=$11`,
		item.IsSeparated, item.SeparatedAt, item.SeparatedBy,
		item.SentToPurchase, item.PurchaseAt, item.PurchaseBy,
		item.NotSent, item.NotSentAt, item.NotSentBy, item.NotSentReason,
		item.ID,
	)
	return err
}

func (s *PostgresStore) CreatePurchaseItem(ctx context.Context, tx *sql.Tx, pi *PurchaseItem) error {
	return tx.QueryRowContext(ctx, `
		INSERT INTO purchase_items (order_item_id, requested_at, requested_by, is_completed)
		VALUES ($1,$2,$3,false)
		ON CONFLICT (order_item_id) DO UPDATE SET requested_at = EXCLUDED.requested_at
		RETURNING id`,
		pi.OrderItemID, pi.RequestedAt, pi.RequestedBy,
	).Scan(&pi.ID)
}

func (s *PostgresStore) DeletePurchaseItemByOrderItem(ctx context.Context, tx *sql.Tx, orderItemID int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM purchase_items WHERE order_item_id = $1`, orderItemID)
	return err
}

func (s *PostgresStore) ListPurchaseItems(ctx context.Context) ([]*PurchaseItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_item_id, requested_at, requested_by, is_completed, completed_at,
			completed_by, notes, completion_notes
		FROM purchase_items WHERE is_completed = false ORDER BY requested_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*PurchaseItem
	for rows.Next() {
		pi := &PurchaseItem{}
		if err := rows.Scan(&pi.ID, &pi.OrderItemID, &pi.RequestedAt, &pi.RequestedBy,
			&pi.IsCompleted, &pi.CompletedAt, &pi.CompletedBy, &pi.Notes, &pi.CompletionNotes); err != nil {
			return nil, err
		}
		items = append(items, pi)
	}

	return items, rows.Err()
}

func (s *PostgresStore) OpenAccess(ctx context.Context, orderID, userID int64) (*OrderAccess, error) {
	access := &OrderAccess{}

	err := s.db.QueryRowContext(ctx, `
		SELECT id, order_id, user_id, accessed_at, left_at
		FROM order_accesses WHERE order_id=$1 AND user_id=$2 AND left_at IS NULL`,
		orderID, userID,
	).Scan(&access.ID, &access.OrderID, &access.UserID, &access.AccessedAt, &access.LeftAt)
	if err == nil {
		return access, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO order_accesses (order_id, user_id, accessed_at)
		VALUES ($1,$2,$3) RETURNING id`,
		orderID, userID, now,
	).Scan(&access.ID)
	if err != nil {
		return nil, err
	}

	access.OrderID = orderID
	access.UserID = userID
	access.AccessedAt = now
	return access, nil
}

func (s *PostgresStore) LeaveAccess(ctx context.Context, orderID, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE order_accesses SET left_at = $1
		WHERE order_id = $2 AND user_id = $3 AND left_at IS NULL`,
		time.Now().UTC(), orderID, userID,
	)
	return err
}

func (s *PostgresStore) LeaveAllAccess(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE order_accesses SET left_at = $1
		WHERE user_id = $2 AND left_at IS NULL`,
		time.Now().UTC(), userID,
	)
	return err
}

func (s *PostgresStore) AccessHistory(ctx context.Context, orderID int64) ([]*OrderAccess, error) {
	return s.queryAccesses(ctx, `
		SELECT id, order_id, user_id, accessed_at, left_at
		FROM order_accesses WHERE order_id = $1 ORDER BY accessed_at DESC`, orderID)
}

func (s *PostgresStore) ActiveAccessByOrder(ctx context.Context, orderID int64) ([]*OrderAccess, error) {
	return s.queryAccesses(ctx, `
		SELECT id, order_id, user_id, accessed_at, left_at
		FROM order_accesses WHERE order_id = $1 AND left_at IS NULL`, orderID)
}

func (s *PostgresStore) ActiveAccessByUser(ctx context.Context, userID int64) ([]*OrderAccess, error) {
	return s.queryAccesses(ctx, `
		SELECT id, order_id, user_id, accessed_at, left_at
		FROM order_accesses WHERE user_id = $1 AND left_at IS NULL`, userID)
}

func (s *PostgresStore) queryAccesses(ctx context.Context, query string, arg int64) ([]*OrderAccess, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accesses []*OrderAccess
	for rows.Next() {
		a := &OrderAccess{}
		if err := rows.Scan(&a.ID, &a.OrderID, &a.UserID, &a.AccessedAt, &a.LeftAt); err != nil {
			return nil, err
		}
		accesses = append(accesses, a)
	}

	return accesses, rows.Err()
}

func (s *PostgresStore) AccessStats(ctx context.Context, orderID, userID *int64, days int) (AccessStats, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(EXTRACT(EPOCH FROM (COALESCE(left_at, now()) - accessed_at))), 0),
			COALESCE(AVG(EXTRACT(EPOCH FROM (COALESCE(left_at, now()) - accessed_at))), 0)
		FROM order_accesses
		WHERE accessed_at >= now() - ($1 || ' days')::interval`
	args := []interface{}{days}

	if orderID != nil {
		args = append(args, *orderID)
		query += " AND order_id = $" + strconv.Itoa(len(args))
	}
	if userID != nil {
		args = append(args, *userID)
		query += " AND user_id = $" + strconv.Itoa(len(args))
	}

	var stats AccessStats
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.SessionCount, &stats.TotalDurationSecs, &stats.AverageDurationSecs)
	return stats, err
}
