package stomp

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// formatHeartbeat renders the heart-beat header we offer in CONNECT.
func formatHeartbeat(outgoing, incoming time.Duration) string {
	return fmt.Sprintf("%d,%d", outgoing.Milliseconds(), incoming.Milliseconds())
}

// negotiateHeartbeat applies the STOMP 1.2 rules to the broker's CONNECTED
// heart-beat header. send is how often we must write; expect is how often the
// broker will write. Zero disables either direction.
func negotiateHeartbeat(outgoing, incoming time.Duration, header string) (send, expect time.Duration) {
	if header == "" {
		return 0, 0
	}
	parts := strings.Split(header, ",")
	if len(parts) != 2 {
		return 0, 0
	}
	sx, err1 := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	sy, err2 := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err1 != nil || err2 != nil || sx < 0 || sy < 0 {
		return 0, 0
	}

	serverSends := time.Duration(sx) * time.Millisecond
	serverWants := time.Duration(sy) * time.Millisecond

	if outgoing > 0 && serverWants > 0 {
		send = max(outgoing, serverWants)
	}
	if incoming > 0 && serverSends > 0 {
		expect = max(incoming, serverSends)
	}
	return send, expect
}

// tickInterval is the heartbeat loop period for the negotiated values.
func tickInterval(send, expect time.Duration) time.Duration {
	switch {
	case send > 0 && expect > 0:
		return min(send, expect)
	case send > 0:
		return send
	default:
		return expect
	}
}
