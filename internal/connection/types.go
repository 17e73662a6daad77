package connection

import (
	"errors"
	"log/slog"
	"time"

	"github.com/rickgao/roomchat/internal/model"
	"github.com/rickgao/roomchat/internal/stomp"
)

// Errors
var (
	ErrInvalidArgument = errors.New("room id and username are required")
	ErrRetryExhausted  = errors.New("connection failed: retry budget exhausted")
	ErrSessionClosed   = errors.New("session closed before it connected")
	ErrClosed          = errors.New("room connection closed")
)

// Handler receives decoded chat messages. It is never called concurrently
// with itself for one session.
type Handler func(model.ChatMessage)

// ClientFactory builds the STOMP client for one connection attempt.
type ClientFactory func(cfg stomp.ClientConfig, logger *slog.Logger) stomp.Client

// TokenSource supplies the opaque bearer token, read once per attempt.
type TokenSource interface {
	Token() (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() (string, error)

// Token implements TokenSource.
func (f TokenFunc) Token() (string, error) { return f() }

// StateChange describes one transition of the session state machine.
type StateChange struct {
	Room    string
	From    State
	To      State
	Attempt int   // Failures since the last successful connection
	Err     error // Cause of Reconnecting/Failed transitions
}

// Status is a snapshot of the active session.
type Status struct {
	State         State
	Room          string
	Username      string
	Attempt       int
	RetryIn       time.Duration // Delay of the scheduled retry, zero when none
	Subscriptions int
}

// Config configures a RoomConnection.
type Config struct {
	BrokerURL            string          // STOMP endpoint (e.g., http://localhost:8080/ws-chat)
	Transport            stomp.Transport // websocket or sockjs
	ReconnectBaseDelay   time.Duration   // Delay before the first retry, doubled for each later one
	MaxReconnectAttempts int             // Failures allowed before the session is Failed
	HandshakeTimeout     time.Duration   // Dial + CONNECTED deadline per attempt
	HeartbeatOutgoing    time.Duration   // Offered outgoing heart-beat (0 = never)
	HeartbeatIncoming    time.Duration   // Requested incoming heart-beat (0 = never)
	WriteTimeout         time.Duration   // Write deadline for frames
	InboundBufferSize    int             // Initial capacity of the inbound queues
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BrokerURL:            "http://localhost:8080/ws-chat",
		Transport:            stomp.TransportSockJS,
		ReconnectBaseDelay:   time.Second,
		MaxReconnectAttempts: 5,
		HandshakeTimeout:     10 * time.Second,
		HeartbeatOutgoing:    4 * time.Second,
		HeartbeatIncoming:    4 * time.Second,
		WriteTimeout:         5 * time.Second,
		InboundBufferSize:    256,
	}
}

// Option configures a RoomConnection.
type Option func(*RoomConnection)

// WithClientFactory replaces the STOMP client constructor.
func WithClientFactory(f ClientFactory) Option {
	return func(rc *RoomConnection) {
		rc.newClient = f
	}
}

// WithTokenSource sets where the bearer token comes from.
func WithTokenSource(ts TokenSource) Option {
	return func(rc *RoomConnection) {
		rc.tokens = ts
	}
}

// WithStateListener registers a callback for state transitions. It runs
// outside the connection's lock and must not block for long.
func WithStateListener(fn func(StateChange)) Option {
	return func(rc *RoomConnection) {
		rc.listener = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(rc *RoomConnection) {
		rc.logger = logger
	}
}
