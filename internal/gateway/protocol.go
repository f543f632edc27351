// Package gateway is the realtime edge: it upgrades HTTP to websocket,
// authenticates connections, tracks room membership, rate limits inbound
// traffic, and fans alert pushes out across processes through Redis
// pub/sub.
package gateway

import "encoding/json"

// Client-to-server operations.
const (
	OpAuthenticate = "authenticate"
	OpJoin         = "join"
)

// Server-to-client operations.
const (
	OpAlert  = "alert"
	OpError  = "error"
	OpJoined = "joined"
	OpAuthOK = "authenticated"
)

// Error codes sent in {op:"error"} frames.
const (
	CodeAuthFailed   = "AUTH_FAILED"
	CodeRateLimited  = "RATE_LIMITED"
	CodeBadRequest   = "BAD_REQUEST"
	CodeJoinRejected = "JOIN_REJECTED"
)

// ClientMessage is any inbound frame. Fields beyond Op are op-specific.
type ClientMessage struct {
	Op    string `json:"op"`
	Token string `json:"token,omitempty"`
	Room  string `json:"room,omitempty"`
}

// ServerMessage is any outbound frame.
type ServerMessage struct {
	Op    string          `json:"op"`
	Code  string          `json:"code,omitempty"`
	Room  string          `json:"room,omitempty"`
	Alert json.RawMessage `json:"alert,omitempty"`
}

func errorFrame(code string) []byte {
	b, _ := json.Marshal(ServerMessage{Op: OpError, Code: code})
	return b
}

func joinedFrame(room string) []byte {
	b, _ := json.Marshal(ServerMessage{Op: OpJoined, Room: room})
	return b
}

func alertFrame(payload []byte) []byte {
	b, _ := json.Marshal(ServerMessage{Op: OpAlert, Alert: payload})
	return b
}
