package presence

import (
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_ReplacesExistingConnection(t *testing.T) {
	r := NewRegistry()
	first := &websocket.Conn{}
	second := &websocket.Conn{}

	old := r.Connect(1, "alice", first, 8)
	assert.Nil(t, old)

	old = r.Connect(1, "alice", second, 8)
	require.NotNil(t, old)
	assert.Same(t, first, old)

	conn, ok := r.Get(1)
	require.True(t, ok)
	assert.Same(t, second, conn.Socket)
}

func TestConnect_PreservesCurrentOrderAcrossReconnect(t *testing.T) {
	r := NewRegistry()
	r.Connect(1, "alice", &websocket.Conn{}, 8)
	r.JoinOrder(1, 100)

	r.Connect(1, "alice", &websocket.Conn{}, 8)

	conn, ok := r.Get(1)
	require.True(t, ok)
	require.NotNil(t, conn.CurrentOrder)
	assert.Equal(t, int64(100), *conn.CurrentOrder)
}

func TestJoinOrder_IsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Connect(1, "alice", &websocket.Conn{}, 8)

	_, _, already := r.JoinOrder(1, 100)
	assert.False(t, already)

	_, _, already = r.JoinOrder(1, 100)
	assert.True(t, already)
}

func TestJoinOrder_LeavesPreviousOrder(t *testing.T) {
	r := NewRegistry()
	r.Connect(1, "alice", &websocket.Conn{}, 8)
	r.JoinOrder(1, 100)

	previous, emptied, already := r.JoinOrder(1, 200)

	assert.False(t, already)
	require.NotNil(t, previous)
	assert.Equal(t, int64(100), *previous)
	assert.True(t, emptied)
	assert.Empty(t, r.MembersInOrder(100))
}

func TestDisconnect_RemovesMembershipAndConnection(t *testing.T) {
	r := NewRegistry()
	r.Connect(1, "alice", &websocket.Conn{}, 8)
	r.JoinOrder(1, 100)

	left, emptied := r.Disconnect(1)

	require.NotNil(t, left)
	assert.Equal(t, int64(100), *left)
	assert.True(t, emptied)

	_, ok := r.Get(1)
	assert.False(t, ok)
}

func TestSnapshotOrder_ExcludesGivenUser(t *testing.T) {
	r := NewRegistry()
	r.Connect(1, "alice", &websocket.Conn{}, 8)
	r.Connect(2, "bob", &websocket.Conn{}, 8)
	r.JoinOrder(1, 100)
	r.JoinOrder(2, 100)

	conns := r.SnapshotOrder(100, 1)

	require.Len(t, conns, 1)
	assert.Equal(t, int64(2), conns[0].UserID)
}

func TestSnapshotAll_ExcludesGivenUser(t *testing.T) {
	r := NewRegistry()
	r.Connect(1, "alice", &websocket.Conn{}, 8)
	r.Connect(2, "bob", &websocket.Conn{}, 8)

	conns := r.SnapshotAll(2)

	require.Len(t, conns, 1)
	assert.Equal(t, int64(1), conns[0].UserID)
}
