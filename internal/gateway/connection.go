package gateway

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second

	maxFrameSize = 4096
)

// Connection is one authenticated websocket client. A single reader
// goroutine and a single writer goroutine own the underlying socket;
// everything else talks to the connection through the buffered send
// channel.
type Connection struct {
	ID     string
	UserID string

	ws    *websocket.Conn
	hub   *Hub
	send  chan []byte
	state atomic.Int32

	// events meters all inbound frames; joins meters join requests on
	// top of that.
	events *rate.Limiter
	joins  *rate.Limiter

	done      chan struct{}
	closeOnce sync.Once
	log       *logger.Logger
}

// State returns the current lifecycle state.
func (c *Connection) State() ConnState {
	return ConnState(c.state.Load())
}

// transition moves the state machine along a legal edge. Returns false
// when the edge does not exist, including self-loops.
func (c *Connection) transition(to ConnState) bool {
	for {
		from := ConnState(c.state.Load())
		if !canTransition(from, to) {
			return false
		}
		if c.state.CompareAndSwap(int32(from), int32(to)) {
			return true
		}
	}
}

// queue hands a frame to the writer. A full buffer drops the frame, never
// blocks the caller: one slow client must not stall a room fan-out.
func (c *Connection) queue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	case c.send <- msg:
		return true
	default:
		c.log.Warn("send buffer full, dropping frame", "conn_id", c.ID, "user_id", c.UserID)
		return false
	}
}

// close tears the connection down exactly once and removes it from every
// room. The send channel is never closed; the writer exits on done.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.transition(StateDisconnected)
		close(c.done)
		c.hub.remove(c)
		c.ws.Close()
	})
}

// readPump is the connection's only reader. It enforces the inbound rate
// limit and dispatches client operations until the socket dies.
func (c *Connection) readPump() {
	defer c.close()

	c.ws.SetReadLimit(maxFrameSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		if !c.events.Allow() {
			// Bucket empty: shed inbound, keep delivering outbound.
			if c.transition(StateRateLimited) {
				c.queue(errorFrame(CodeRateLimited))
				c.log.Warn("connection rate limited", "conn_id", c.ID, "user_id", c.UserID)
			}
			continue
		}
		c.transition(StateActive)

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.queue(errorFrame(CodeBadRequest))
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Connection) handleMessage(msg ClientMessage) {
	switch msg.Op {
	case OpJoin:
		if !c.joins.Allow() {
			c.queue(errorFrame(CodeJoinRejected))
			return
		}
		if err := c.hub.JoinRoom(c.ID, msg.Room); err != nil {
			c.queue(errorFrame(CodeJoinRejected))
			return
		}
		c.queue(joinedFrame(msg.Room))
	case OpAuthenticate:
		// Already authenticated during the handshake; re-auth is a no-op.
	default:
		c.queue(errorFrame(CodeBadRequest))
	}
}

// writePump is the connection's only writer. It drains the send channel
// and keeps the socket alive with pings.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
