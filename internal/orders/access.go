package orders

import "context"

// AccessLog records which operator opened which order and when,
// supporting concurrent active sessions and session-duration statistics
// (component I).
type AccessLog struct {
	store Store
}

// NewAccessLog constructs an access log over the given persistence store.
func NewAccessLog(store Store) *AccessLog {
	return &AccessLog{store: store}
}

// Open is idempotent: re-opening an order for a user who already has a
// live session returns that session rather than creating a duplicate.
func (a *AccessLog) Open(ctx context.Context, orderID, userID int64) (*OrderAccess, error) {
	return a.store.OpenAccess(ctx, orderID, userID)
}

// Leave closes a user's live session on the given order, if any.
func (a *AccessLog) Leave(ctx context.Context, orderID, userID int64) error {
	return a.store.LeaveAccess(ctx, orderID, userID)
}

// LeaveAll closes every live session of a user in one pass. The websocket
// handler (wsapi) invokes this on disconnect.
func (a *AccessLog) LeaveAll(ctx context.Context, userID int64) error {
	return a.store.LeaveAllAccess(ctx, userID)
}

// History returns every access row, live and closed, for an order.
func (a *AccessLog) History(ctx context.Context, orderID int64) ([]*OrderAccess, error) {
	return a.store.AccessHistory(ctx, orderID)
}

// ActiveByOrder returns the live sessions on an order (left_at IS NULL).
func (a *AccessLog) ActiveByOrder(ctx context.Context, orderID int64) ([]*OrderAccess, error) {
	return a.store.ActiveAccessByOrder(ctx, orderID)
}

// ActiveByUser returns a user's live sessions across all orders.
func (a *AccessLog) ActiveByUser(ctx context.Context, userID int64) ([]*OrderAccess, error) {
	return a.store.ActiveAccessByUser(ctx, userID)
}

// Stats computes session-duration statistics, optionally scoped by order
// and/or user and bounded to the last `days` days.
func (a *AccessLog) Stats(ctx context.Context, orderID, userID *int64, days int) (AccessStats, error) {
	return a.store.AccessStats(ctx, orderID, userID, days)
}
