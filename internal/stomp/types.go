package stomp

import (
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no heart-beat)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrTransportClosed = errors.New("transport closed")
)

// HandshakeError reports a failure before the session reached CONNECTED:
// a refused upgrade, a network error, or an ERROR frame answering CONNECT.
type HandshakeError struct {
	StatusCode int    // HTTP status of a refused upgrade, 0 otherwise
	Message    string // Server message or a short description
	Err        error
}

func (e *HandshakeError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("stomp handshake: upgrade refused (%d): %s", e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("stomp handshake: %s: %v", e.Message, e.Err)
	}
	return "stomp handshake: " + e.Message
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// ServerError is an ERROR frame received on an established session. The
// broker closes the connection after sending it.
type ServerError struct {
	Message string
	Body    string
}

func (e *ServerError) Error() string {
	if e.Body == "" {
		return "stomp server error: " + e.Message
	}
	return fmt.Sprintf("stomp server error: %s: %s", e.Message, e.Body)
}

// Transport selects the WebSocket framing.
type Transport string

const (
	// TransportWebSocket carries one STOMP frame per text message.
	TransportWebSocket Transport = "websocket"
	// TransportSockJS uses the SockJS WebSocket transport envelope.
	TransportSockJS Transport = "sockjs"
)

// Message is an inbound MESSAGE frame.
type Message struct {
	Subscription string    // Subscription id the frame was routed to
	Destination  string    // Destination the broker reports
	MessageID    string    // Broker message-id header
	ContentType  string    // content-type header, may be empty
	Body         []byte    // Frame body
	ReceivedAt   time.Time // Local timestamp when the WebSocket read returned
}

// ClientConfig configures a STOMP client.
type ClientConfig struct {
	URL               string        // Broker endpoint (e.g., ws://localhost:8080/ws-chat)
	Transport         Transport     // websocket or sockjs
	Token             string        // Opaque bearer token, omitted when empty
	Host              string        // STOMP virtual host (default: URL host)
	HeartbeatOutgoing time.Duration // How often we offer to send beats (0 = never)
	HeartbeatIncoming time.Duration // How often we want beats from the broker (0 = never)
	HandshakeTimeout  time.Duration // Dial + CONNECTED deadline
	WriteTimeout      time.Duration // Write deadline for sends
	BufferSize        int           // Initial inbound queue capacity
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Transport:         TransportWebSocket,
		HeartbeatOutgoing: 4 * time.Second,
		HeartbeatIncoming: 4 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      5 * time.Second,
		BufferSize:        256,
	}
}
