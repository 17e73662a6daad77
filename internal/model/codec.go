package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedPayload is returned when a frame body is not a message or a
// list of messages.
var ErrMalformedPayload = errors.New("malformed payload")

// DecodeMessage parses a broadcast payload.
func DecodeMessage(data []byte) (ChatMessage, error) {
	var m ChatMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return ChatMessage{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	m.Normalize()
	return m, nil
}

// DecodeBatch parses a history payload. A JSON array is returned in order; a
// single object is treated as a batch of one.
func DecodeBatch(data []byte) ([]ChatMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}

	switch trimmed[0] {
	case '[':
		var batch []ChatMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		for i := range batch {
			batch[i].Normalize()
		}
		return batch, nil
	case '{':
		m, err := DecodeMessage(trimmed)
		if err != nil {
			return nil, err
		}
		return []ChatMessage{m}, nil
	}
	return nil, fmt.Errorf("%w: unexpected %q", ErrMalformedPayload, trimmed[0])
}
