// Package wsapi wires the live presence registry (J) and broadcast fabric
// (K) to the /ws/orders endpoint: upgrade, authentication, the
// connect/disconnect/join_order/leave_order event table of §4.10, and the
// client message schema of §4.11.
package wsapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pickflow/separation/internal/broadcast"
	"github.com/pickflow/separation/internal/orders"
	"github.com/pickflow/separation/internal/presence"
	"github.com/pickflow/separation/pkg/middleware"
	"github.com/pickflow/separation/pkg/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBufferSize = 64
)

// clientMessage is the schema of §4.11's client-to-server frames.
type clientMessage struct {
	Type string `json:"type"`
	Data json.RawMessage `json:"data"`
}

type orderPayload struct {
	OrderID int64 `json:"order_id"`
}

type pingPayload struct {
	Timestamp interface{} `json:"timestamp"`
}

// Handler upgrades HTTP connections and runs the per-socket read loop.
type Handler struct {
	jwtSecret string
	registry  *presence.Registry
	fabric    *broadcast.Fabric
	accessLog *orders.AccessLog
	logger    *observability.Logger
	upgrader  websocket.Upgrader
}

// New constructs the websocket handler over an already-wired presence
// registry and broadcast fabric. It registers itself as the fabric's
// onUserLeft callback so a fabric-initiated disconnect (backpressure) runs
// the same side effects as an explicit one.
func New(jwtSecret string, registry *presence.Registry, fabric *broadcast.Fabric, accessLog *orders.AccessLog, logger *observability.Logger) *Handler {
	h := &Handler{
		jwtSecret: jwtSecret,
		registry:  registry,
		fabric:    fabric,
		accessLog: accessLog,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	fabric.OnUserLeft(h.handleDisconnect)
	return h
}

// ServeHTTP authenticates via the token query parameter, upgrades the
// connection, and starts the per-socket pumps.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		h.rejectBeforeUpgrade(w, r, "Token required")
		return
	}

	claims, err := middleware.ValidateToken(token, h.jwtSecret)
	if err != nil {
		h.rejectBeforeUpgrade(w, r, "Authentication failed")
		return
	}

	userID, userName := claimsToIdentity(claims)
	if userID == 0 {
		h.rejectBeforeUpgrade(w, r, "Authentication failed")
		return
	}

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error(r.Context(), "websocket upgrade failed", err)
		return
	}

	old := h.registry.Connect(userID, userName, socket, sendBufferSize)
	if old != nil {
		broadcast.CloseWithCode(old, websocket.CloseNormalClosure, "replaced by new connection")
	} else {
		h.fabric.BroadcastToAll(r.Context(), broadcast.Message{
			Type:      broadcast.TypeUserJoined,
			Data:      map[string]interface{}{"user_id": userID, "user_name": userName},
			Timestamp: time.Now().UTC(),
		}, userID)
	}

	conn, _ := h.registry.Get(userID)
	go h.writePump(conn)
	h.readPump(r.Context(), conn)
}

// rejectBeforeUpgrade closes the handshake with the §6 close codes for a
// connection that never reached the presence registry.
func (h *Handler) rejectBeforeUpgrade(w http.ResponseWriter, r *http.Request, reason string) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	broadcast.CloseWithCode(socket, websocket.ClosePolicyViolation, reason)
}

func claimsToIdentity(claims map[string]interface{}) (userID int64, userName string) {
	switch v := claims["user_id"].(type) {
	case float64:
		userID = int64(v)
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			userID = n
		}
	}
	if name, ok := claims["user_name"].(string); ok {
		userName = name
	}
	return userID, userName
}

// readPump reads client frames until the socket closes, then runs the
// disconnect side effects.
func (h *Handler) readPump(ctx context.Context, conn *presence.Connection) {
	defer func() {
		// A socket replaced by a reconnect must not tear down its successor.
		if current, ok := h.registry.Get(conn.UserID); ok && current == conn {
			h.handleDisconnect(conn.UserID)
		}
		conn.Socket.Close()
	}()

	conn.Socket.SetReadLimit(maxMessageSize)
	conn.Socket.SetReadDeadline(time.Now().Add(pongWait))
	conn.Socket.SetPongHandler(func(string) error {
		conn.Socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.Socket.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn(ctx, "unparseable client message", map[string]interface{}{
				"user_id": conn.UserID,
			})
			continue
		}

		h.handleClientMessage(ctx, conn, msg)
	}
}

func (h *Handler) handleClientMessage(ctx context.Context, conn *presence.Connection, msg clientMessage) {
	switch msg.Type {
	case "join_order":
		var payload orderPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return
		}
		h.joinOrder(ctx, conn.UserID, payload.OrderID)

	case "leave_order":
		var payload orderPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return
		}
		h.leaveOrder(ctx, conn.UserID, payload.OrderID)

	case "ping":
		var payload pingPayload
		_ = json.Unmarshal(msg.Data, &payload)
		h.fabric.SendToUser(ctx, broadcast.Message{
			Type:      broadcast.TypePong,
			Data:      map[string]interface{}{"timestamp": payload.Timestamp},
			Timestamp: time.Now().UTC(),
		}, conn.UserID)

	default:
		h.logger.Warn(ctx, "unknown message type", map[string]interface{}{
			"type": msg.Type,
		})
	}
}

func (h *Handler) joinOrder(ctx context.Context, userID, orderID int64) {
	previousOrder, previousEmptied, alreadyMember := h.registry.JoinOrder(userID, orderID)
	if alreadyMember {
		return
	}
	_ = previousEmptied

	if previousOrder != nil {
		h.fabric.BroadcastToOrder(ctx, broadcast.Message{
			Type:      broadcast.TypeUserLeft,
			Data:      map[string]interface{}{"order_id": *previousOrder, "user_id": userID},
			Timestamp: time.Now().UTC(),
		}, *previousOrder, userID)
	}

	if _, err := h.accessLog.Open(ctx, orderID, userID); err != nil {
		h.logger.Error(ctx, "failed to open access log", err)
	}

	h.fabric.BroadcastToOrder(ctx, broadcast.Message{
		Type:      broadcast.TypeUserJoined,
		Data:      map[string]interface{}{"order_id": orderID, "user_id": userID},
		Timestamp: time.Now().UTC(),
	}, orderID, userID)
}

func (h *Handler) leaveOrder(ctx context.Context, userID, orderID int64) {
	h.registry.LeaveOrder(userID, orderID)

	if err := h.accessLog.Leave(ctx, orderID, userID); err != nil {
		h.logger.Error(ctx, "failed to close access log entry", err)
	}

	h.fabric.BroadcastToOrder(ctx, broadcast.Message{
		Type:      broadcast.TypeUserLeft,
		Data:      map[string]interface{}{"order_id": orderID, "user_id": userID},
		Timestamp: time.Now().UTC(),
	}, orderID, userID)
}

// handleDisconnect runs §4.10's disconnect effect: leave any joined order,
// remove the registry entry, close every live access-log session, and
// announce departure to the fleet. Safe to call twice (idempotent registry
// removal); the fabric calls this same path on backpressure-driven drops.
func (h *Handler) handleDisconnect(userID int64) {
	ctx := context.Background()

	leftOrder, _ := h.registry.Disconnect(userID)

	if err := h.accessLog.LeaveAll(ctx, userID); err != nil {
		h.logger.Error(ctx, "failed to close access log sessions", err)
	}

	if leftOrder != nil {
		h.fabric.BroadcastToOrder(ctx, broadcast.Message{
			Type:      broadcast.TypeUserLeft,
			Data:      map[string]interface{}{"order_id": *leftOrder, "user_id": userID},
			Timestamp: time.Now().UTC(),
		}, *leftOrder, userID)
	}

	h.fabric.BroadcastToAll(ctx, broadcast.Message{
		Type:      broadcast.TypeUserLeft,
		Data:      map[string]interface{}{"user_id": userID},
		Timestamp: time.Now().UTC(),
	}, userID)
}

// writePump drains conn's send channel to the socket and sends periodic
// pings, matching the liveness probe the teacher's terminal hub uses.
func (h *Handler) writePump(conn *presence.Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Socket.Close()
	}()

	for {
		select {
		case data, ok := <-conn.Send:
			conn.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.Socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Socket.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			conn.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
