package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Idle connections are dropped after this long without any frame
	idleTimeout = 5 * time.Minute

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Minimum spacing between full state syncs for one connection
	syncThrottle = time.Second
)

var ErrConnectionClosed = websocket.ErrCloseSent

// Connection represents a WebSocket connection to a client
type Connection struct {
	conn         *websocket.Conn
	send         chan *Message
	connID       string
	userID       string
	tableID      string
	pingInterval time.Duration
	lastSync     time.Time
	logger       *log.Logger
	ctx          context.Context
	cancel       context.CancelFunc
	mu           sync.RWMutex
	closeOnce    sync.Once
	service      *Service
}

// NewConnection creates a new connection wrapper for an authenticated
// user.
func NewConnection(conn *websocket.Conn, connID, userID string, pingInterval time.Duration, logger *log.Logger, service *Service) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:         conn,
		send:         make(chan *Message, 256),
		connID:       connID,
		userID:       userID,
		pingInterval: pingInterval,
		logger:       logger.WithPrefix("conn"),
		ctx:          ctx,
		cancel:       cancel,
		service:      service,
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// Done exposes the connection's lifetime for cleanup goroutines.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// ID returns the connection id assigned at upgrade time.
func (c *Connection) ID() string {
	return c.connID
}

// UserID returns the authenticated user.
func (c *Connection) UserID() string {
	return c.userID
}

// SetTable associates this connection with a table room
func (c *Connection) SetTable(tableID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tableID = tableID
}

// GetTable returns the associated table ID
func (c *Connection) GetTable() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tableID
}

// SendMessage sends a message to the client
func (c *Connection) SendMessage(msg *Message) error {
	defer func() {
		if r := recover(); r != nil {
			// channel closed during shutdown
			c.logger.Debug("Attempted to send message on closed connection", "error", r)
		}
	}()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("Connection send buffer full, closing connection", "user", c.userID)
		_ = c.Close()
		return ErrConnectionClosed
	}
}

// SendEvent marshals and sends one event to the client
func (c *Connection) SendEvent(event Event, payload interface{}) {
	msg, err := NewMessage(event, payload)
	if err != nil {
		c.logger.Error("Failed to create message", "event", event, "error", err)
		return
	}
	_ = c.SendMessage(msg)
}

// sendError sends an error message to the client
func (c *Connection) sendError(code, message string) {
	c.SendEvent(EventError, ErrorPayload{Code: code, Message: message})
}

// allowSync reports whether a full state sync may be served now; at
// most one per second per connection.
func (c *Connection) allowSync() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if now.Sub(c.lastSync) < syncThrottle {
		return false
	}
	c.lastSync = now
	return true
}

// readPump handles incoming messages from the client
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "user", c.userID, "error", err)
			}
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(idleTimeout))

		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "user", c.userID, "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// handleMessage processes incoming messages from the client
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "event", msg.Event, "user", c.userID)

	switch msg.Event {
	case EventJoinQueue:
		var p JoinQueuePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.sendError("invalid_message", "Failed to parse join queue payload")
			return
		}
		c.service.JoinQueue(c, p)

	case EventLeaveQueue:
		c.service.LeaveQueue(c)

	case EventJoinTable:
		var p JoinTablePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.sendError("invalid_message", "Failed to parse join table payload")
			return
		}
		c.service.JoinTable(c, p.TableID)

	case EventJoinSpectator:
		var p JoinSpectatorPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.sendError("invalid_message", "Failed to parse join spectator payload")
			return
		}
		c.service.JoinSpectator(c, p.TableID)

	case EventPlayerReady:
		var p PlayerReadyPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.sendError("invalid_message", "Failed to parse ready payload")
			return
		}
		c.service.PlayerReady(c, p.TableID)

	case EventGameAction:
		var p GameActionPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.sendError("invalid_message", "Failed to parse game action payload")
			return
		}
		c.service.GameAction(c, p)

	case EventLeaveTable:
		var p LeaveTablePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.sendError("invalid_message", "Failed to parse leave table payload")
			return
		}
		c.service.LeaveTable(c, p.TableID)

	case EventRequestStateSync:
		var p RequestStateSyncPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.sendError("invalid_message", "Failed to parse state sync payload")
			return
		}
		if !c.allowSync() {
			c.sendError("sync_throttled", "State sync limited to one per second")
			return
		}
		c.service.StateSync(c, p.TableID)

	case EventVerifyState:
		var p VerifyStatePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.sendError("invalid_message", "Failed to parse verify state payload")
			return
		}
		c.service.VerifyState(c, p.TableID, p.Hash)

	case EventReconnectPlayer:
		var p ReconnectPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.sendError("invalid_message", "Failed to parse reconnect payload")
			return
		}
		c.service.ReconnectPlayer(c, p.TableID)

	case EventPong:
		// liveness only; the read deadline reset above is the effect

	default:
		c.sendError("unknown_event", "Unknown event: "+msg.Event.String())
	}
}
