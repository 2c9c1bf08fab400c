// Package presence tracks live operator websocket connections and their
// current-order membership (component J). It is in-memory and
// process-local: nothing here survives a restart.
package presence

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection is one live operator's socket and metadata.
type Connection struct {
	Socket      *websocket.Conn
	UserID      int64
	UserName    string
	ConnectedAt time.Time
	CurrentOrder *int64
	Send        chan []byte
}

// Member is the metadata snapshot returned by MembersInOrder; it excludes
// the live socket so callers cannot write outside the registry lock.
type Member struct {
	UserID      int64
	UserName    string
	ConnectedAt time.Time
}

// Registry is the single-mutex-guarded presence table. At most one
// connection per user; order membership is a set of user handles per
// order.
type Registry struct {
	mu          sync.Mutex
	connections map[int64]*Connection
	members     map[int64]map[int64]bool
}

// NewRegistry constructs an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[int64]*Connection),
		members:     make(map[int64]map[int64]bool),
	}
}

// Connect records a new connection for user. If the user already has a
// live connection, it is replaced: the old socket is returned to the
// caller for closing, and membership (current order) carries over
// silently — reconnection does not retrigger a join at the order level.
func (r *Registry) Connect(userID int64, userName string, socket *websocket.Conn, sendBuf int) (old *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.connections[userID]; ok {
		old = existing.Socket
	}

	var currentOrder *int64
	if existing, ok := r.connections[userID]; ok {
		currentOrder = existing.CurrentOrder
	}

	r.connections[userID] = &Connection{
		Socket:       socket,
		UserID:       userID,
		UserName:     userName,
		ConnectedAt:  time.Now().UTC(),
		CurrentOrder: currentOrder,
		Send:         make(chan []byte, sendBuf),
	}

	return old
}

// Disconnect removes user's connection entirely, leaving any joined order
// first. Returns the order the user was in, if any, and whether the
// order's member set is now empty (the registry drops an emptied bucket
// itself).
func (r *Registry) Disconnect(userID int64) (leftOrder *int64, emptiedOrder bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[userID]
	if !ok {
		return nil, false
	}

	if conn.CurrentOrder != nil {
		leftOrder = conn.CurrentOrder
		emptiedOrder = r.removeMemberLocked(*leftOrder, userID)
	}

	delete(r.connections, userID)
	return leftOrder, emptiedOrder
}

// JoinOrder moves a user's membership to order, leaving the previous order
// (if different) first. Returns the previous order (if one was left) and
// whether that previous order's member set emptied out.
func (r *Registry) JoinOrder(userID, orderID int64) (previousOrder *int64, previousEmptied bool, alreadyMember bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[userID]
	if !ok {
		return nil, false, false
	}

	if conn.CurrentOrder != nil {
		if *conn.CurrentOrder == orderID {
			return nil, false, true
		}
		previousOrder = conn.CurrentOrder
		previousEmptied = r.removeMemberLocked(*previousOrder, userID)
	}

	if r.members[orderID] == nil {
		r.members[orderID] = make(map[int64]bool)
	}
	r.members[orderID][userID] = true
	conn.CurrentOrder = &orderID

	return previousOrder, previousEmptied, false
}

// LeaveOrder removes a user from order's membership and clears their
// current order. Returns whether order's member set is now empty.
func (r *Registry) LeaveOrder(userID, orderID int64) (emptied bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[userID]
	if ok && conn.CurrentOrder != nil && *conn.CurrentOrder == orderID {
		conn.CurrentOrder = nil
	}

	return r.removeMemberLocked(orderID, userID)
}

// removeMemberLocked must be called with mu held.
func (r *Registry) removeMemberLocked(orderID, userID int64) (emptied bool) {
	set, ok := r.members[orderID]
	if !ok {
		return false
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(r.members, orderID)
		return true
	}
	return false
}

// MembersInOrder returns a snapshot of member metadata for order. Taken
// under the registry lock, then copied out, so callers never hold the
// lock during socket I/O.
func (r *Registry) MembersInOrder(orderID int64) []Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.members[orderID]
	if !ok {
		return nil
	}

	members := make([]Member, 0, len(set))
	for userID := range set {
		if conn, ok := r.connections[userID]; ok {
			members = append(members, Member{
				UserID:      conn.UserID,
				UserName:    conn.UserName,
				ConnectedAt: conn.ConnectedAt,
			})
		}
	}
	return members
}

// SnapshotOrder returns the connections (socket and send channel) of every
// member of order except exclude, captured under the lock so the caller's
// subsequent writes happen outside it.
func (r *Registry) SnapshotOrder(orderID int64, exclude int64) []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.members[orderID]
	if !ok {
		return nil
	}

	conns := make([]*Connection, 0, len(set))
	for userID := range set {
		if userID == exclude {
			continue
		}
		if conn, ok := r.connections[userID]; ok {
			conns = append(conns, conn)
		}
	}
	return conns
}

// SnapshotAll returns every live connection, excluding one user if given.
func (r *Registry) SnapshotAll(exclude int64) []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := make([]*Connection, 0, len(r.connections))
	for userID, conn := range r.connections {
		if userID == exclude {
			continue
		}
		conns = append(conns, conn)
	}
	return conns
}

// Get returns the live connection for a user, if any.
func (r *Registry) Get(userID int64) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.connections[userID]
	return conn, ok
}

// Count returns the number of live connections, for metrics.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.connections)
}
