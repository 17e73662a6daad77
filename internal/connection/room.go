package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/rickgao/roomchat/internal/model"
	"github.com/rickgao/roomchat/internal/queue"
	"github.com/rickgao/roomchat/internal/stomp"
)

// RoomConnection maintains at most one live session bound to a single room.
// It is safe for concurrent use.
type RoomConnection struct {
	cfg       Config
	backoff   Backoff
	logger    *slog.Logger
	newClient ClientFactory
	tokens    TokenSource
	listener  func(StateChange)

	// Concurrent connects to the same room and user share one outcome. A
	// flight is forgotten as soon as its session resolves.
	joins singleflight.Group

	mu     sync.Mutex
	closed bool
	active *session
	seq    uint64
}

// session is one RoomSession. All fields are guarded by RoomConnection.mu.
type session struct {
	id       uint64
	key      string
	room     string
	username string
	handler  Handler
	logger   *slog.Logger

	state      State
	attempt    int
	gen        uint64 // Incremented for every connection attempt
	cur        *attempt
	subs       []string
	timer      *timerHandle
	suppressed bool

	// Resolution of the first Connect outcome.
	done     chan struct{}
	err      error
	resolved bool

	inbox *queue.Queue[model.ChatMessage]
}

// attempt is one transport generation of a session.
type attempt struct {
	gen    uint64
	client stomp.Client
	cancel context.CancelFunc
}

// effects are applied after the lock is released.
type effects struct {
	cleanup []func()
	changes []StateChange
}

// New creates a RoomConnection.
func New(cfg Config, opts ...Option) *RoomConnection {
	if cfg.MaxReconnectAttempts < 1 {
		cfg.MaxReconnectAttempts = 1
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = DefaultConfig().ReconnectBaseDelay
	}

	rc := &RoomConnection{
		cfg: cfg,
		backoff: Backoff{
			Base:        cfg.ReconnectBaseDelay,
			MaxAttempts: cfg.MaxReconnectAttempts,
		},
		newClient: stomp.NewClient,
	}
	for _, opt := range opts {
		opt(rc)
	}
	if rc.logger == nil {
		rc.logger = slog.Default()
	}
	return rc
}

// Connect opens a session for roomID and waits until it is Connected, the
// retry budget is spent, the session is torn down, or ctx is done. Cancelling
// ctx only stops this caller's wait.
func (rc *RoomConnection) Connect(ctx context.Context, roomID, username string, handler Handler) error {
	if roomID == "" || username == "" {
		return ErrInvalidArgument
	}

	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return ErrClosed
	}
	key := flightKey(roomID, username)
	if s := rc.active; s != nil && s.key == key {
		switch {
		case s.state == StateConnected:
			s.handler = handler
			rc.mu.Unlock()
			return nil
		case !s.resolved:
			s.handler = handler
		}
	}
	rc.mu.Unlock()

	ch := rc.joins.DoChan(key, func() (any, error) {
		return nil, rc.join(key, roomID, username, handler)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// join starts a fresh session and blocks until its first outcome.
func (rc *RoomConnection) join(key, roomID, username string, handler Handler) error {
	var fx effects

	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return ErrClosed
	}
	if prev := rc.active; prev != nil {
		rc.teardownLocked(prev, &fx)
	}

	rc.seq++
	s := &session{
		id:       rc.seq,
		key:      key,
		room:     roomID,
		username: username,
		handler:  handler,
		logger:   rc.logger.With("room", roomID, "session", rc.seq),
		state:    StateDisconnected,
		done:     make(chan struct{}),
		inbox:    queue.New[model.ChatMessage](rc.cfg.InboundBufferSize),
	}
	rc.active = s
	rc.startAttemptLocked(s, &fx)
	rc.mu.Unlock()

	rc.apply(&fx)

	go rc.deliver(s)

	<-s.done
	return s.err
}

// Send publishes content to the room when Connected. Otherwise it is a no-op.
func (rc *RoomConnection) Send(content string) {
	rc.mu.Lock()
	s := rc.active
	if s == nil || s.state != StateConnected || s.cur == nil {
		rc.mu.Unlock()
		rc.logger.Debug("send ignored, not connected")
		return
	}
	client := s.cur.client
	dest := SendDestination(s.room)
	logger := s.logger
	rc.mu.Unlock()

	body, err := json.Marshal(model.Outbound{Content: content})
	if err != nil {
		logger.Debug("send ignored, encode failed", "error", err)
		return
	}
	if err := client.Send(dest, body); err != nil {
		logger.Debug("send failed", "error", err)
	}
}

// Disconnect tears down the active session. It is safe to call at any time
// and is never followed by an automatic reconnect.
func (rc *RoomConnection) Disconnect() {
	var fx effects

	rc.mu.Lock()
	if s := rc.active; s != nil {
		rc.teardownLocked(s, &fx)
		rc.active = nil
	}
	rc.mu.Unlock()

	rc.apply(&fx)
}

// Close disconnects and makes later Connect calls fail with ErrClosed.
func (rc *RoomConnection) Close() error {
	rc.mu.Lock()
	rc.closed = true
	rc.mu.Unlock()

	rc.Disconnect()
	return nil
}

// IsConnected reports the transport-level connected flag of the session.
func (rc *RoomConnection) IsConnected() bool {
	rc.mu.Lock()
	s := rc.active
	if s == nil || s.state != StateConnected || s.cur == nil {
		rc.mu.Unlock()
		return false
	}
	client := s.cur.client
	rc.mu.Unlock()

	return client.IsConnected()
}

// Status returns a snapshot of the active session.
func (rc *RoomConnection) Status() Status {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	s := rc.active
	if s == nil {
		return Status{State: StateDisconnected}
	}
	st := Status{
		State:         s.state,
		Room:          s.room,
		Username:      s.username,
		Attempt:       s.attempt,
		Subscriptions: len(s.subs),
	}
	if s.timer != nil {
		st.RetryIn = s.timer.delay
	}
	return st
}

// startAttemptLocked moves the session to Connecting and launches one
// connection attempt.
func (rc *RoomConnection) startAttemptLocked(s *session, fx *effects) {
	s.timer.stop()
	s.timer = nil

	rc.setStateLocked(s, StateConnecting, nil, fx)

	s.gen++
	ctx, cancel := context.WithCancel(context.Background())
	s.cur = &attempt{gen: s.gen, cancel: cancel}

	go rc.runAttempt(ctx, s, s.gen)
}

// runAttempt dials, subscribes and announces the user. Results are applied
// only if gen is still the session's current attempt.
func (rc *RoomConnection) runAttempt(ctx context.Context, s *session, gen uint64) {
	client := rc.newClient(rc.clientConfig(s.logger), s.logger)

	rc.mu.Lock()
	if !rc.currentLocked(s, gen) {
		rc.mu.Unlock()
		client.Close()
		return
	}
	s.cur.client = client
	rc.mu.Unlock()

	subs, historyID, err := rc.establish(ctx, client, s.room, s.username)

	var fx effects
	rc.mu.Lock()
	if !rc.currentLocked(s, gen) {
		rc.mu.Unlock()
		s.logger.Debug("discarding superseded attempt", "gen", gen)
		client.Close()
		return
	}

	if err != nil {
		s.logger.Warn("connection attempt failed", "attempt", s.attempt+1, "error", err)
		rc.failLocked(s, err, &fx)
		rc.mu.Unlock()
		rc.apply(&fx)
		return
	}

	s.subs = subs
	s.attempt = 0
	rc.setStateLocked(s, StateConnected, nil, &fx)
	rc.resolveLocked(s, nil)
	rc.mu.Unlock()

	s.logger.Info("connected", "username", s.username)
	rc.apply(&fx)

	go rc.pump(s, client, historyID)
	go rc.watch(ctx, s, gen, client)
}

// establish performs the handshake, both subscriptions and the join notice.
func (rc *RoomConnection) establish(ctx context.Context, client stomp.Client, room, username string) ([]string, string, error) {
	if err := client.Connect(ctx); err != nil {
		return nil, "", err
	}

	topicID, err := client.Subscribe(RoomTopic(room))
	if err != nil {
		return nil, "", err
	}
	historyID, err := client.Subscribe(HistoryQueue(room))
	if err != nil {
		return nil, "", err
	}

	notice, err := json.Marshal(model.JoinNotice{Username: username})
	if err != nil {
		return nil, "", err
	}
	if err := client.Send(JoinDestination(room), notice); err != nil {
		return nil, "", err
	}

	return []string{topicID, historyID}, historyID, nil
}

// watch waits for the transport of an established attempt to end.
func (rc *RoomConnection) watch(ctx context.Context, s *session, gen uint64, client stomp.Client) {
	var err error
	select {
	case err = <-client.Errors():
	case <-ctx.Done():
		return
	}

	var fx effects
	rc.mu.Lock()
	if !rc.currentLocked(s, gen) || s.state != StateConnected {
		rc.mu.Unlock()
		return
	}
	s.logger.Warn("connection lost", "error", err)
	rc.failLocked(s, err, &fx)
	rc.mu.Unlock()

	rc.apply(&fx)
}

// pump decodes inbound frames of one attempt into the session inbox.
func (rc *RoomConnection) pump(s *session, client stomp.Client, historyID string) {
	msgs := client.Messages()
	for {
		m, ok := msgs.Pop()
		if !ok {
			return
		}

		if m.Subscription == historyID {
			batch, err := model.DecodeBatch(m.Body)
			if err != nil {
				s.logger.Warn("dropping history payload", "error", err)
				continue
			}
			for _, msg := range batch {
				s.inbox.Push(msg)
			}
			continue
		}

		msg, err := model.DecodeMessage(m.Body)
		if err != nil {
			s.logger.Warn("dropping broadcast payload", "error", err)
			continue
		}
		s.inbox.Push(msg)
	}
}

// deliver invokes the handler for each inbox message while the session is
// still the active one.
func (rc *RoomConnection) deliver(s *session) {
	for {
		msg, ok := s.inbox.Pop()
		if !ok {
			return
		}

		rc.mu.Lock()
		handler := s.handler
		current := rc.active == s && !s.suppressed
		rc.mu.Unlock()

		if !current || handler == nil {
			continue
		}
		handler(msg)
	}
}

// failLocked records a failed attempt and either schedules the next one or
// moves the session to Failed.
func (rc *RoomConnection) failLocked(s *session, cause error, fx *effects) {
	rc.releaseAttemptLocked(s, false, fx)

	s.attempt++
	rc.setStateLocked(s, StateReconnecting, cause, fx)

	if rc.backoff.Exhausted(s.attempt) {
		rc.setStateLocked(s, StateFailed, cause, fx)
		rc.resolveLocked(s, fmt.Errorf("%w: room %s after %d attempts: %v",
			ErrRetryExhausted, s.room, s.attempt, cause))
		s.inbox.Close()
		s.logger.Error("giving up", "attempts", s.attempt, "error", cause)
		return
	}

	delay := rc.backoff.Delay(s.attempt - 1)
	gen := s.gen
	s.timer = newTimerHandle(delay, func() { rc.retry(s, gen) })
	s.logger.Info("reconnecting", "attempt", s.attempt, "delay", delay)
}

// retry fires from the backoff timer.
func (rc *RoomConnection) retry(s *session, gen uint64) {
	var fx effects

	rc.mu.Lock()
	if rc.active != s || s.suppressed || s.gen != gen || s.state != StateReconnecting {
		rc.mu.Unlock()
		return
	}
	rc.startAttemptLocked(s, &fx)
	rc.mu.Unlock()

	rc.apply(&fx)
}

// teardownLocked suppresses retries, releases the transport and resolves
// pending callers with ErrSessionClosed.
func (rc *RoomConnection) teardownLocked(s *session, fx *effects) {
	s.suppressed = true
	s.timer.stop()
	s.timer = nil

	rc.releaseAttemptLocked(s, true, fx)
	rc.setStateLocked(s, StateDisconnected, nil, fx)
	rc.resolveLocked(s, ErrSessionClosed)
	s.inbox.Close()

	s.logger.Info("session closed")
}

// releaseAttemptLocked cancels the current attempt and queues its transport
// for closing. Subscriptions are released first when unsubscribe is set.
func (rc *RoomConnection) releaseAttemptLocked(s *session, unsubscribe bool, fx *effects) {
	cur := s.cur
	subs := s.subs
	s.cur = nil
	s.subs = nil

	if cur == nil {
		return
	}
	cur.cancel()

	client := cur.client
	if client == nil {
		return
	}
	logger := s.logger
	fx.cleanup = append(fx.cleanup, func() {
		if unsubscribe && client.IsConnected() {
			for _, id := range subs {
				if err := client.Unsubscribe(id); err != nil {
					logger.Debug("unsubscribe failed", "id", id, "error", err)
				}
			}
		}
		if err := client.Close(); err != nil {
			logger.Debug("close failed", "error", err)
		}
	})
}

func (rc *RoomConnection) setStateLocked(s *session, to State, cause error, fx *effects) {
	from := s.state
	if from == to {
		return
	}
	if !from.CanTransition(to) {
		s.logger.Warn("invalid state transition", "from", from, "to", to)
		return
	}
	s.state = to
	fx.changes = append(fx.changes, StateChange{
		Room:    s.room,
		From:    from,
		To:      to,
		Attempt: s.attempt,
		Err:     cause,
	})
}

func (rc *RoomConnection) resolveLocked(s *session, err error) {
	if s.resolved {
		return
	}
	s.resolved = true
	s.err = err
	close(s.done)
	rc.joins.Forget(s.key)
}

// flightKey identifies a session by room and user. A connect for the same
// room under another username starts a new session.
func flightKey(roomID, username string) string {
	return roomID + "\x00" + username
}

// currentLocked reports whether gen is the live attempt of the active session.
func (rc *RoomConnection) currentLocked(s *session, gen uint64) bool {
	return rc.active == s && !s.suppressed && s.gen == gen && s.cur != nil && s.cur.gen == gen
}

func (rc *RoomConnection) apply(fx *effects) {
	for _, fn := range fx.cleanup {
		fn()
	}
	if rc.listener == nil {
		return
	}
	for _, change := range fx.changes {
		rc.listener(change)
	}
}

func (rc *RoomConnection) clientConfig(logger *slog.Logger) stomp.ClientConfig {
	var token string
	if rc.tokens != nil {
		t, err := rc.tokens.Token()
		if err != nil {
			logger.Warn("no token available, connecting anonymously", "error", err)
		}
		token = t
	}

	return stomp.ClientConfig{
		URL:               rc.cfg.BrokerURL,
		Transport:         rc.cfg.Transport,
		Token:             token,
		HeartbeatOutgoing: rc.cfg.HeartbeatOutgoing,
		HeartbeatIncoming: rc.cfg.HeartbeatIncoming,
		HandshakeTimeout:  rc.cfg.HandshakeTimeout,
		WriteTimeout:      rc.cfg.WriteTimeout,
		BufferSize:        rc.cfg.InboundBufferSize,
	}
}
