package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"socialgraph/internal/auth"
	"socialgraph/internal/graph"
	"socialgraph/internal/middleware"
	"socialgraph/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	graphql "github.com/graph-gophers/graphql-go"
)

// protocolName is the graphql-transport-ws subprotocol.
const protocolName = "graphql-transport-ws"

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 16384

	connectionInitWait = 10 * time.Second
)

// Message types of graphql-transport-ws.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
)

// Close codes of graphql-transport-ws.
const (
	closeBadRequest      = 4400
	closeUnauthorized    = 4401
	closeForbidden       = 4403
	closeInitTimeout     = 4408
	closeDuplicateSub    = 4409
	closeTooManyInitReqs = 4429
)

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsOutgoing struct {
	ID      string      `json:"id,omitempty"`
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type wsErrorPayload struct {
	Message string `json:"message"`
}

// UpgradeRequired rejects plain HTTP requests to a WebSocket route. It keeps the
// client address for the socket handler, which has no access to the request.
func (s *Server) UpgradeRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		c.Locals("clientIP", c.IP())
		return c.Next()
	}
}

// SubscriptionHandler serves GraphQL operations over graphql-transport-ws.
func (s *Server) SubscriptionHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		observability.WebSocketConnectionsTotal.Inc()
		defer observability.WebSocketConnectionsTotal.Dec()

		sess := newWSSession(s, conn)
		sess.serve()
	}, websocket.Config{Subprotocols: []string{protocolName}})
}

// wsSession is one subscription socket. Writes are serialized by writeMu.
type wsSession struct {
	srv    *Server
	conn   *websocket.Conn
	connID string

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu       sync.Mutex
	initSeen bool
	acked    bool
	// userID from connection_init, applied to operations started afterwards.
	userID string
	subs   map[string]context.CancelFunc
	wg     sync.WaitGroup
}

func newWSSession(s *Server, conn *websocket.Conn) *wsSession {
	ctx := s.shutdownCtx
	connID := uuid.NewString()
	if rid, ok := conn.Locals("requestid").(string); ok && rid != "" {
		ctx = context.WithValue(ctx, middleware.RequestIDKey, rid)
		connID = rid
	}
	ctx = observability.WithCorrelationID(ctx, connID)
	if ip, ok := conn.Locals("clientIP").(string); ok {
		ctx = context.WithValue(ctx, middleware.ClientIPKey, ip)
	}
	if uid, ok := conn.Locals("userID").(string); ok && uid != "" {
		ctx = withIdentity(ctx, uid)
	}

	ctx, cancel := context.WithCancel(ctx)
	return &wsSession{
		srv:    s,
		conn:   conn,
		connID: connID,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]context.CancelFunc),
	}
}

func withIdentity(ctx context.Context, userID string) context.Context {
	ctx = auth.WithIdentity(ctx, auth.Identity{UserID: userID})
	return context.WithValue(ctx, middleware.UserIDKey, userID)
}

func (ws *wsSession) serve() {
	log := ws.srv.wsLog
	log.LogConnect(ws.ctx, ws.connID)
	reason := "client closed"

	defer func() {
		ws.cancel()
		ws.wg.Wait()
		_ = ws.conn.Close()
		log.LogDisconnect(ws.ctx, ws.connID, reason)
	}()

	initTimer := time.AfterFunc(ws.srv.initTimeout, func() {
		ws.mu.Lock()
		acked := ws.acked
		ws.mu.Unlock()
		if !acked {
			ws.close(closeInitTimeout, "Connection initialisation timeout")
		}
	})
	defer initTimer.Stop()

	go ws.pingLoop()

	ws.conn.SetReadLimit(maxMessageSize)
	_ = ws.conn.SetReadDeadline(time.Now().Add(pongWait))
	ws.conn.SetPongHandler(func(string) error { _ = ws.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, raw, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.LogError(ws.ctx, ws.connID, err, "read")
				reason = "read error"
			}
			return
		}
		_ = ws.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
			ws.close(closeBadRequest, "Invalid message received")
			reason = "invalid message"
			return
		}
		log.LogMessage(ws.ctx, ws.connID, msg.Type)

		if !ws.handle(msg) {
			reason = "protocol violation"
			return
		}
	}
}

// handle processes one client message and reports whether the socket stays open.
func (ws *wsSession) handle(msg wsMessage) bool {
	switch msg.Type {
	case msgConnectionInit:
		return ws.handleInit(msg.Payload)
	case msgPing:
		return ws.write(wsOutgoing{Type: msgPong}) == nil
	case msgPong:
		return true
	case msgSubscribe:
		return ws.handleSubscribe(msg)
	case msgComplete:
		ws.mu.Lock()
		if cancel, ok := ws.subs[msg.ID]; ok {
			cancel()
			delete(ws.subs, msg.ID)
		}
		ws.mu.Unlock()
		return true
	default:
		ws.close(closeBadRequest, fmt.Sprintf("Unexpected message of type %s received", msg.Type))
		return false
	}
}

// handleInit acknowledges the connection. A bearer token may be supplied in the
// payload as "Authorization" or "authToken" when the upgrade request carried none.
func (ws *wsSession) handleInit(payload json.RawMessage) bool {
	ws.mu.Lock()
	if ws.initSeen {
		ws.mu.Unlock()
		ws.close(closeTooManyInitReqs, "Too many initialisation requests")
		return false
	}
	ws.initSeen = true
	ws.mu.Unlock()

	if token := initToken(payload); token != "" {
		id, err := auth.ParseToken(ws.srv.config.JWTSecret, token)
		if err != nil {
			ws.close(closeForbidden, "Forbidden")
			return false
		}
		ws.mu.Lock()
		ws.userID = id.UserID
		ws.mu.Unlock()
	}

	ws.mu.Lock()
	ws.acked = true
	ws.mu.Unlock()
	return ws.write(wsOutgoing{Type: msgConnectionAck}) == nil
}

func initToken(payload json.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}
	var p struct {
		Authorization string `json:"Authorization"`
		AuthToken     string `json:"authToken"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return ""
	}
	if p.AuthToken != "" {
		return p.AuthToken
	}
	token, _ := middleware.BearerToken(p.Authorization)
	return token
}

func (ws *wsSession) handleSubscribe(msg wsMessage) bool {
	ws.mu.Lock()
	if !ws.acked {
		ws.mu.Unlock()
		ws.close(closeUnauthorized, "Unauthorized")
		return false
	}
	if msg.ID == "" {
		ws.mu.Unlock()
		ws.close(closeBadRequest, "Subscribe message requires an id")
		return false
	}
	if _, dup := ws.subs[msg.ID]; dup {
		ws.mu.Unlock()
		ws.close(closeDuplicateSub, fmt.Sprintf("Subscriber for %s already exists", msg.ID))
		return false
	}

	var req graph.Request
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		ws.mu.Unlock()
		ws.close(closeBadRequest, "Invalid subscribe payload")
		return false
	}

	ctx := ws.ctx
	if ws.userID != "" {
		ctx = withIdentity(ctx, ws.userID)
	}
	ctx, cancel := context.WithCancel(ctx)
	ws.subs[msg.ID] = cancel
	ws.wg.Add(1)
	ws.mu.Unlock()

	go ws.run(ctx, msg.ID, req)
	return true
}

// run executes one operation. Queries and mutations produce a single next;
// subscriptions stream until the source ends or the client completes.
func (ws *wsSession) run(ctx context.Context, id string, req graph.Request) {
	defer ws.wg.Done()
	defer ws.forget(id)

	if !graph.IsSubscription(req) {
		resp := ws.srv.executor.Execute(ctx, req)
		if ctx.Err() != nil {
			return
		}
		if len(resp.Data) == 0 && len(resp.Errors) > 0 {
			_ = ws.write(wsOutgoing{ID: id, Type: msgError, Payload: resp.Errors})
			return
		}
		if ws.write(wsOutgoing{ID: id, Type: msgNext, Payload: resp}) == nil {
			_ = ws.write(wsOutgoing{ID: id, Type: msgComplete})
		}
		return
	}

	ch, err := ws.srv.executor.Subscribe(ctx, req)
	if err != nil {
		_ = ws.write(wsOutgoing{ID: id, Type: msgError, Payload: []wsErrorPayload{{Message: err.Error()}}})
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-ch:
			if !ok {
				if ctx.Err() == nil {
					_ = ws.write(wsOutgoing{ID: id, Type: msgComplete})
				}
				return
			}
			resp, isResp := v.(*graphql.Response)
			if !isResp {
				continue
			}
			if len(resp.Data) == 0 && len(resp.Errors) > 0 {
				_ = ws.write(wsOutgoing{ID: id, Type: msgError, Payload: resp.Errors})
				return
			}
			if err := ws.write(wsOutgoing{ID: id, Type: msgNext, Payload: resp}); err != nil {
				return
			}
		}
	}
}

func (ws *wsSession) forget(id string) {
	ws.mu.Lock()
	if cancel, ok := ws.subs[id]; ok {
		cancel()
		delete(ws.subs, id)
	}
	ws.mu.Unlock()
}

func (ws *wsSession) write(msg wsOutgoing) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	_ = ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		ws.srv.wsLog.LogError(ws.ctx, ws.connID, err, msg.Type)
		return err
	}
	return nil
}

// close sends a close frame with a protocol close code and closes the socket,
// which ends the read loop.
func (ws *wsSession) close(code int, reason string) {
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	_ = ws.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	_ = ws.conn.Close()
}

func (ws *wsSession) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ws.ctx.Done():
			return
		case <-ticker.C:
			ws.writeMu.Lock()
			err := ws.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			ws.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
