// ABOUTME: Transport abstraction and lifecycle states of a session
// ABOUTME: The gateway adapts a WebSocket to Conn; tests use an in-memory fake

package session

// Conn is a message-oriented, bidirectional transport.
//
// ReadMessage is only called from the session's reader goroutine.
// WriteMessage is only called from the session goroutine. Close may be
// called while ReadMessage is blocked and must unblock it.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close(code int, reason string) error
}

// State is the lifecycle position of a session.
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateBinding
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateBinding:
		return "binding"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
