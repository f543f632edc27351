package gateway

// ConnState is the connection lifecycle state. Transitions are one-way
// except Active and RateLimited, which flow into each other as the inbound
// token bucket drains and refills.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateAuthenticated
	StateActive
	StateRateLimited
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateRateLimited:
		return "rate_limited"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// canTransition encodes the legal state machine edges. Disconnected is
// terminal; every live state may reach it.
func canTransition(from, to ConnState) bool {
	if from == to {
		return false
	}
	if to == StateDisconnected {
		return from != StateDisconnected
	}
	switch from {
	case StateConnecting:
		return to == StateAuthenticated
	case StateAuthenticated:
		return to == StateActive
	case StateActive:
		return to == StateRateLimited
	case StateRateLimited:
		return to == StateActive
	default:
		return false
	}
}
