package connection

import "time"

// State is the connection state of a room session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// transitions lists the allowed moves. Any state may go to Disconnected.
var transitions = map[State][]State{
	StateDisconnected: {StateConnecting},
	StateConnecting:   {StateConnected, StateReconnecting},
	StateConnected:    {StateReconnecting},
	StateReconnecting: {StateConnecting, StateFailed},
	StateFailed:       nil,
}

// CanTransition reports whether the state machine allows moving to next.
func (s State) CanTransition(next State) bool {
	if next == StateDisconnected {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Backoff computes reconnection delays.
type Backoff struct {
	Base        time.Duration
	MaxAttempts int
}

// Delay returns the wait before retry k (k starts at 0): Base * 2^k.
func (b Backoff) Delay(k int) time.Duration {
	if k < 0 {
		k = 0
	}
	return b.Base << uint(k)
}

// Exhausted reports whether attempt failures use up the budget.
func (b Backoff) Exhausted(attempt int) bool {
	return attempt >= b.MaxAttempts
}

// timerHandle is the single outstanding retry timer of a session.
type timerHandle struct {
	t     *time.Timer
	delay time.Duration
}

func newTimerHandle(delay time.Duration, fn func()) *timerHandle {
	return &timerHandle{t: time.AfterFunc(delay, fn), delay: delay}
}

func (h *timerHandle) stop() {
	if h != nil {
		h.t.Stop()
	}
}
