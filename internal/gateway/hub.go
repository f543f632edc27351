package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/domain"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/pkg/logger"
)

const pushChannel = "gateway:push"

// pushEnvelope rides the Redis pub/sub channel between gateway processes.
// Origin keeps a process from re-delivering its own publishes.
type pushEnvelope struct {
	Origin  string          `json:"origin"`
	Room    string          `json:"room"`
	Payload json.RawMessage `json:"payload"`
}

// Hub owns the connection registry and room membership for one process,
// and bridges pushes to every other process through Redis pub/sub. A nil
// Redis client degrades to local-only delivery.
type Hub struct {
	instanceID string
	rdb        *redis.Client
	log        *logger.Logger

	mu    sync.RWMutex
	conns map[string]*Connection
	rooms map[string]map[string]*Connection

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub creates a hub. rdb may be nil for single-process deployments.
func NewHub(rdb *redis.Client) *Hub {
	return &Hub{
		instanceID: uuid.New().String(),
		rdb:        rdb,
		log:        logger.With("gateway-hub"),
		conns:      make(map[string]*Connection),
		rooms:      make(map[string]map[string]*Connection),
	}
}

// Start subscribes to the cross-process push channel. No-op without Redis.
func (h *Hub) Start(ctx context.Context) {
	if h.rdb == nil {
		h.log.Info("no redis configured, pushes are local-only")
		return
	}
	ctx, h.cancel = context.WithCancel(ctx)
	sub := h.rdb.Subscribe(ctx, pushChannel)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env pushEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					h.log.Warn("malformed push envelope", "error", err.Error())
					continue
				}
				if env.Origin == h.instanceID {
					continue
				}
				h.deliverLocal(env.Room, env.Payload)
			}
		}
	}()
}

// Stop closes every connection and the pub/sub bridge.
func (h *Hub) Stop() {
	if h.cancel != nil {
		h.cancel()
	}

	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.close()
	}
	h.wg.Wait()
}

// register adds an authenticated connection and auto-joins its user room.
func (h *Hub) register(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID] = c
	h.joinLocked(c, "user:"+c.UserID)
}

// JoinRoom adds a connection to a resource room. Room names are
// namespaced; anything outside the known namespaces is rejected.
func (h *Hub) JoinRoom(connID, room string) error {
	if !validRoom(room) {
		return &domain.ValidationError{Field: "room", Reason: fmt.Sprintf("invalid room %q", room)}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[connID]
	if !ok {
		return fmt.Errorf("unknown connection %s", connID)
	}
	// A user room other than the connection's own is off limits.
	if strings.HasPrefix(room, "user:") && room != "user:"+c.UserID {
		return &domain.AuthError{Code: CodeJoinRejected}
	}
	h.joinLocked(c, room)
	return nil
}

func (h *Hub) joinLocked(c *Connection, room string) {
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*Connection)
	}
	h.rooms[room][c.ID] = c
}

// Disconnect terminates a connection by id.
func (h *Hub) Disconnect(connID string) {
	h.mu.RLock()
	c := h.conns[connID]
	h.mu.RUnlock()
	if c != nil {
		c.close()
	}
}

// remove drops a connection from the registry and every room it joined.
// Called from Connection.close.
func (h *Hub) remove(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c.ID)
	for room, members := range h.rooms {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Push fans a payload out to every connection in the room, here and in
// every peer process. The returned count covers local receivers only;
// remote processes count their own.
func (h *Hub) Push(ctx context.Context, room string, payload []byte) (int, error) {
	delivered := h.deliverLocal(room, payload)

	if h.rdb != nil {
		env, err := json.Marshal(pushEnvelope{
			Origin:  h.instanceID,
			Room:    room,
			Payload: payload,
		})
		if err != nil {
			return delivered, err
		}
		if err := h.rdb.Publish(ctx, pushChannel, env).Err(); err != nil {
			// Local delivery already happened; peers miss this one.
			h.log.Error("pub/sub publish failed", "error", err.Error(), "room", room)
			return delivered, &domain.TransientInfraError{Op: "hub.Push", Err: err}
		}
	}
	return delivered, nil
}

func (h *Hub) deliverLocal(room string, payload []byte) int {
	frame := alertFrame(payload)

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, c := range h.rooms[room] {
		if c.queue(frame) {
			delivered++
		}
	}
	return delivered
}

// ConnectionCount reports live connections, for the health endpoint.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// RoomSize reports the local membership of a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func validRoom(room string) bool {
	return strings.HasPrefix(room, "user:") && len(room) > len("user:") ||
		strings.HasPrefix(room, "resource:") && len(room) > len("resource:")
}
