package stomp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/url"
	"strings"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
)

// framing adapts STOMP payloads to one WebSocket envelope format.
type framing interface {
	// dialURL turns the configured endpoint into the URL to dial.
	dialURL(endpoint string) (string, error)

	// decode unwraps one WebSocket message into zero or more STOMP payloads.
	decode(msg []byte) ([][]byte, error)

	// encode wraps one STOMP payload into a WebSocket message.
	encode(payload []byte) ([]byte, error)
}

func newFraming(t Transport) (framing, error) {
	switch t {
	case "", TransportWebSocket:
		return rawFraming{}, nil
	case TransportSockJS:
		return sockJSFraming{}, nil
	}
	return nil, fmt.Errorf("unknown transport %q", t)
}

// toWebSocketURL maps http(s) endpoints to ws(s).
func toWebSocketURL(endpoint string) (*url.URL, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	return u, nil
}

type rawFraming struct{}

func (rawFraming) dialURL(endpoint string) (string, error) {
	u, err := toWebSocketURL(endpoint)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (rawFraming) decode(msg []byte) ([][]byte, error) {
	return [][]byte{msg}, nil
}

func (rawFraming) encode(payload []byte) ([]byte, error) {
	return payload, nil
}

// sockJSFraming speaks the WebSocket transport of the SockJS protocol:
// {base}/{server}/{session}/websocket, frames o, h, a[...], m"...", c[code,"reason"].
type sockJSFraming struct{}

func (sockJSFraming) dialURL(endpoint string) (string, error) {
	u, err := toWebSocketURL(endpoint)
	if err != nil {
		return "", err
	}
	session := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	u.Path = fmt.Sprintf("%s/%03d/%s/websocket", strings.TrimRight(u.Path, "/"), rand.IntN(1000), session)
	return u.String(), nil
}

func (sockJSFraming) decode(msg []byte) ([][]byte, error) {
	if len(msg) == 0 {
		return nil, nil
	}

	switch msg[0] {
	case 'o', 'h':
		return nil, nil

	case 'a':
		var items []string
		if err := json.Unmarshal(msg[1:], &items); err != nil {
			return nil, fmt.Errorf("sockjs array frame: %w", err)
		}
		out := make([][]byte, len(items))
		for i, s := range items {
			out[i] = []byte(s)
		}
		return out, nil

	case 'm':
		var s string
		if err := json.Unmarshal(msg[1:], &s); err != nil {
			return nil, fmt.Errorf("sockjs message frame: %w", err)
		}
		return [][]byte{[]byte(s)}, nil

	case 'c':
		return nil, fmt.Errorf("%w: sockjs close %s", ErrTransportClosed, msg[1:])
	}

	return nil, fmt.Errorf("unknown sockjs frame type %q", msg[0])
}

func (sockJSFraming) encode(payload []byte) ([]byte, error) {
	return json.Marshal([]string{string(payload)})
}

// encodeFrame serializes a STOMP frame including its NUL terminator.
func encodeFrame(f *frame.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Command, err)
	}
	return buf.Bytes(), nil
}

// decodeFrames parses every frame in a payload. Heart-beat EOLs are skipped.
func decodeFrames(payload []byte) ([]*frame.Frame, error) {
	r := frame.NewReader(bytes.NewReader(payload))

	var frames []*frame.Frame
	for {
		f, err := r.Read()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return frames, fmt.Errorf("decode frame: %w", err)
		}
		if f == nil {
			continue
		}
		frames = append(frames, f)
	}
}
