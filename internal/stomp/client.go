package stomp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"

	"github.com/rickgao/roomchat/internal/queue"
	"github.com/rickgao/roomchat/internal/version"
)

// Client represents a single STOMP session over one WebSocket.
type Client interface {
	// Connect dials the broker and completes the STOMP handshake.
	Connect(ctx context.Context) error

	// Close sends DISCONNECT when possible and closes the socket.
	Close() error

	// Subscribe registers for a destination and returns the subscription id.
	Subscribe(destination string) (string, error)

	// Unsubscribe cancels a subscription by id.
	Unsubscribe(id string) error

	// Send publishes a JSON body to a destination.
	Send(destination string, body []byte) error

	// Messages returns the queue of inbound MESSAGE frames in arrival order.
	// It is closed when the transport fails or is closed.
	Messages() *queue.Queue[Message]

	// Errors returns a channel that receives the error that ended the session.
	Errors() <-chan error

	// IsConnected returns current connection state.
	IsConnected() bool
}

// client implements the Client interface.
type client struct {
	cfg     ClientConfig
	logger  *slog.Logger
	framing framing

	conn *websocket.Conn

	// Output
	messages *queue.Queue[Message]
	errors   chan error
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	connected  bool
	closed     bool
	lastReadAt time.Time
	send       time.Duration
	expect     time.Duration
	version    string

	subSeq atomic.Int64
}

// NewClient creates a new STOMP client. An unknown transport falls back to
// raw WebSocket framing and is logged.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := newFraming(cfg.Transport)
	if err != nil {
		logger.Warn("falling back to websocket framing", "error", err)
		f = rawFraming{}
	}

	return &client{
		cfg:      cfg,
		logger:   logger,
		framing:  f,
		messages: queue.New[Message](cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Connect establishes the WebSocket and waits for CONNECTED.
func (c *client) Connect(ctx context.Context) error {
	c.mu.RLock()
	closed, connected := c.closed, c.connected
	c.mu.RUnlock()
	if closed {
		return ErrAlreadyClosed
	}
	if connected {
		return nil
	}

	target, err := c.framing.dialURL(c.cfg.URL)
	if err != nil {
		return &HandshakeError{Message: "invalid endpoint", Err: err}
	}

	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	hsCtx := ctx
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		hsCtx, cancel = context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(hsCtx, target, header)
	if err != nil {
		if resp != nil {
			return &HandshakeError{StatusCode: resp.StatusCode, Message: resp.Status, Err: err}
		}
		return &HandshakeError{Message: "dial", Err: err}
	}

	// Unblock the handshake read if the caller gives up.
	stop := context.AfterFunc(hsCtx, func() { conn.Close() })

	reply, err := c.handshake(conn, target)
	if !stop() {
		conn.Close()
		return &HandshakeError{Message: "cancelled", Err: hsCtx.Err()}
	}
	if err != nil {
		conn.Close()
		return err
	}

	send, expect := negotiateHeartbeat(c.cfg.HeartbeatOutgoing, c.cfg.HeartbeatIncoming, reply.Header.Get(frame.HeartBeat))

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrAlreadyClosed
	}
	c.conn = conn
	c.connected = true
	c.lastReadAt = time.Now()
	c.send = send
	c.expect = expect
	c.version = reply.Header.Get(frame.Version)
	c.mu.Unlock()

	go c.readLoop(conn)
	if send > 0 || expect > 0 {
		go c.heartbeatLoop(conn, send, expect)
	}

	c.logger.Debug("stomp connected",
		"url", target,
		"version", c.version,
		"heartbeat_send", send,
		"heartbeat_expect", expect,
	)

	return nil
}

// handshake sends CONNECT and reads until CONNECTED or ERROR.
func (c *client) handshake(conn *websocket.Conn, target string) (*frame.Frame, error) {
	host := c.cfg.Host
	if host == "" {
		if u, err := url.Parse(target); err == nil {
			host = u.Hostname()
		}
	}

	connect := frame.New(frame.CONNECT,
		frame.AcceptVersion, "1.2,1.1,1.0",
		frame.Host, host,
		frame.HeartBeat, formatHeartbeat(c.cfg.HeartbeatOutgoing, c.cfg.HeartbeatIncoming),
	)
	if c.cfg.Token != "" {
		connect.Header.Add("Authorization", "Bearer "+c.cfg.Token)
	}

	if err := c.writeTo(conn, connect); err != nil {
		return nil, &HandshakeError{Message: "send CONNECT", Err: err}
	}

	if c.cfg.HandshakeTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	}
	defer conn.SetReadDeadline(time.Time{})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, &HandshakeError{Message: "await CONNECTED", Err: err}
		}

		payloads, err := c.framing.decode(data)
		if err != nil {
			return nil, &HandshakeError{Message: "await CONNECTED", Err: err}
		}

		for _, p := range payloads {
			frames, err := decodeFrames(p)
			if err != nil {
				return nil, &HandshakeError{Message: "await CONNECTED", Err: err}
			}
			for _, f := range frames {
				switch f.Command {
				case frame.CONNECTED:
					return f, nil
				case frame.ERROR:
					msg := f.Header.Get(frame.Message)
					if msg == "" {
						msg = string(f.Body)
					}
					return nil, &HandshakeError{Message: msg}
				default:
					c.logger.Debug("ignoring frame before CONNECTED", "command", f.Command)
				}
			}
		}
	}
}

// Close gracefully closes the connection.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	wasConnected := c.connected
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	close(c.done)
	c.messages.Close()

	if conn == nil {
		return nil
	}

	if wasConnected {
		if err := c.writeTo(conn, frame.New(frame.DISCONNECT)); err != nil {
			c.logger.Debug("failed to send DISCONNECT", "error", err)
		}
	}
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return conn.Close()
}

// Subscribe registers an auto-ack subscription.
func (c *client) Subscribe(destination string) (string, error) {
	id := "sub-" + strconv.FormatInt(c.subSeq.Add(1)-1, 10)
	f := frame.New(frame.SUBSCRIBE,
		frame.Id, id,
		frame.Destination, destination,
		frame.Ack, "auto",
	)
	if err := c.write(f); err != nil {
		return "", fmt.Errorf("subscribe %s: %w", destination, err)
	}
	return id, nil
}

// Unsubscribe cancels a subscription.
func (c *client) Unsubscribe(id string) error {
	if err := c.write(frame.New(frame.UNSUBSCRIBE, frame.Id, id)); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", id, err)
	}
	return nil
}

// Send publishes a JSON body.
func (c *client) Send(destination string, body []byte) error {
	f := frame.New(frame.SEND,
		frame.Destination, destination,
		frame.ContentType, "application/json",
		frame.ContentLength, strconv.Itoa(len(body)),
	)
	f.Body = body
	if err := c.write(f); err != nil {
		return fmt.Errorf("send %s: %w", destination, err)
	}
	return nil
}

// Messages returns the inbound queue.
func (c *client) Messages() *queue.Queue[Message] {
	return c.messages
}

// Errors returns the errors channel.
func (c *client) Errors() <-chan error {
	return c.errors
}

// IsConnected returns the current connection state.
func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// write sends a frame on the established connection.
func (c *client) write(f *frame.Frame) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.RUnlock()

	return c.writeTo(conn, f)
}

func (c *client) writeTo(conn *websocket.Conn, f *frame.Frame) error {
	payload, err := encodeFrame(f)
	if err != nil {
		return err
	}
	return c.writeRaw(conn, payload)
}

func (c *client) writeRaw(conn *websocket.Conn, payload []byte) error {
	data, err := c.framing.encode(payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads frames and queues MESSAGE frames until the socket fails.
func (c *client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			c.fail(fmt.Errorf("%w: %v", ErrTransportClosed, err))
			return
		}

		c.mu.Lock()
		c.lastReadAt = receivedAt
		c.mu.Unlock()

		payloads, err := c.framing.decode(data)
		if err != nil {
			c.fail(err)
			return
		}

		for _, p := range payloads {
			frames, err := decodeFrames(p)
			if err != nil {
				c.fail(err)
				return
			}
			for _, f := range frames {
				if !c.dispatch(f, receivedAt) {
					return
				}
			}
		}
	}
}

// dispatch handles one inbound frame. It returns false when the session ended.
func (c *client) dispatch(f *frame.Frame, receivedAt time.Time) bool {
	switch f.Command {
	case frame.MESSAGE:
		msg := Message{
			Subscription: f.Header.Get(frame.Subscription),
			Destination:  f.Header.Get(frame.Destination),
			MessageID:    f.Header.Get(frame.MessageId),
			ContentType:  f.Header.Get(frame.ContentType),
			Body:         f.Body,
			ReceivedAt:   receivedAt,
		}
		if !c.messages.Push(msg) {
			return false
		}

	case frame.ERROR:
		c.fail(&ServerError{
			Message: f.Header.Get(frame.Message),
			Body:    string(f.Body),
		})
		return false

	case frame.RECEIPT:
		c.logger.Debug("receipt", "id", f.Header.Get(frame.ReceiptId))

	default:
		c.logger.Debug("ignoring frame", "command", f.Command)
	}
	return true
}

// heartbeatLoop writes EOL beats and watches for a silent broker.
func (c *client) heartbeatLoop(conn *websocket.Conn, send, expect time.Duration) {
	ticker := time.NewTicker(tickInterval(send, expect))
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		if !c.IsConnected() {
			return
		}

		if send > 0 {
			if err := c.writeRaw(conn, []byte("\n")); err != nil {
				c.logger.Debug("failed to send heart-beat", "error", err)
			}
		}

		if expect > 0 {
			c.mu.RLock()
			lastRead := c.lastReadAt
			c.mu.RUnlock()

			if time.Since(lastRead) > 2*expect {
				c.logger.Warn("no heart-beat received, connection stale",
					"last_read", lastRead,
					"expect", expect,
				)
				c.fail(ErrStaleConnection)
				return
			}
		}
	}
}

// fail records the first error that ends an established session.
func (c *client) fail(err error) {
	c.mu.Lock()
	if c.closed || !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		c.logger.Warn("stomp session ended by server", "error", err)
	} else {
		c.logger.Debug("stomp session ended", "error", err)
	}

	select {
	case c.errors <- err:
	default:
	}
	c.messages.Close()
	conn.Close()
}
