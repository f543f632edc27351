package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/pkg/logger"
)

// Options tunes the gateway's limits.
type Options struct {
	// EventsPerMinute caps all inbound frames per connection.
	EventsPerMinute int
	// JoinsPerWindow and JoinWindow cap join requests per connection.
	JoinsPerWindow int
	JoinWindow     time.Duration
	// SendBuffer is the per-connection outbound queue depth.
	SendBuffer int
	// AuthTimeout bounds how long an unauthenticated socket may linger.
	AuthTimeout time.Duration
	// AllowedOrigins whitelists browser origins; empty allows all.
	AllowedOrigins []string
}

func (o *Options) fill() {
	if o.EventsPerMinute <= 0 {
		o.EventsPerMinute = 100
	}
	if o.JoinsPerWindow <= 0 {
		o.JoinsPerWindow = 20
	}
	if o.JoinWindow <= 0 {
		o.JoinWindow = 10 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = 10 * time.Second
	}
}

// Handler upgrades HTTP requests to websocket connections and runs the
// authentication handshake before handing the socket to the hub.
type Handler struct {
	hub      *Hub
	auth     *Authenticator
	opts     Options
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewHandler creates the websocket endpoint handler.
func NewHandler(hub *Hub, auth *Authenticator, opts Options) *Handler {
	opts.fill()
	h := &Handler{
		hub:  hub,
		auth: auth,
		opts: opts,
		log:  logger.With("gateway"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// ServeHTTP runs the full connection lifecycle: upgrade, authenticate
// within the handshake window, register, then start the read and write
// pumps. The first client frame must be {op:"authenticate"}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", "error", err.Error())
		return
	}

	userID, err := h.handshake(ws, r)
	if err != nil {
		ws.SetWriteDeadline(time.Now().Add(writeWait))
		ws.WriteMessage(websocket.TextMessage, errorFrame(CodeAuthFailed))
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, CodeAuthFailed))
		ws.Close()
		return
	}

	conn := &Connection{
		ID:     uuid.New().String(),
		UserID: userID,
		ws:     ws,
		hub:    h.hub,
		send:   make(chan []byte, h.opts.SendBuffer),
		done:   make(chan struct{}),
		events: rate.NewLimiter(
			rate.Every(time.Minute/time.Duration(h.opts.EventsPerMinute)),
			h.opts.EventsPerMinute),
		joins: rate.NewLimiter(
			rate.Every(h.opts.JoinWindow/time.Duration(h.opts.JoinsPerWindow)),
			h.opts.JoinsPerWindow),
		log: h.log,
	}
	conn.state.Store(int32(StateConnecting))
	conn.transition(StateAuthenticated)
	h.hub.register(conn)
	conn.transition(StateActive)

	ack, _ := json.Marshal(ServerMessage{Op: OpAuthOK})
	conn.queue(ack)
	h.log.Info("connection established", "conn_id", conn.ID, "user_id", userID)

	go conn.writePump()
	go conn.readPump()
}

// handshake reads the authenticate frame. A token in the query string is
// honored too, for clients that cannot set a first frame promptly.
func (h *Handler) handshake(ws *websocket.Conn, r *http.Request) (string, error) {
	if token := r.URL.Query().Get("token"); token != "" {
		return h.auth.Verify(token)
	}

	ws.SetReadDeadline(time.Now().Add(h.opts.AuthTimeout))
	defer ws.SetReadDeadline(time.Time{})

	var msg ClientMessage
	_, raw, err := ws.ReadMessage()
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Op != OpAuthenticate {
		return "", &authHandshakeError{}
	}
	return h.auth.Verify(msg.Token)
}

type authHandshakeError struct{}

func (*authHandshakeError) Error() string { return "expected authenticate frame" }
