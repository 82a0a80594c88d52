package models

import "fmt"

// Session is the client-held proof of authentication plus the cached profile.
type Session struct {
	Token string
	User  *User
}

// IsZero reports whether the session carries no token.
func (s Session) IsZero() bool {
	return s.Token == ""
}

// Transport selects how the event stream is delivered.
type Transport string

const (
	TransportSSE       Transport = "SSE"
	TransportWebSocket Transport = "WEBSOCKET"
)

// DefaultTransport is used when no preference is stored.
const DefaultTransport = TransportSSE

// ParseTransport parses a stored or user supplied transport name.
func ParseTransport(s string) (Transport, error) {
	switch Transport(s) {
	case TransportSSE:
		return TransportSSE, nil
	case TransportWebSocket:
		return TransportWebSocket, nil
	case "sse":
		return TransportSSE, nil
	case "ws", "websocket":
		return TransportWebSocket, nil
	}
	return "", fmt.Errorf("unknown transport %q", s)
}
