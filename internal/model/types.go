package model

import (
	"github.com/google/uuid"
)

// SystemSender is the sender name the server uses for generated notices.
const SystemSender = "system"

// MessageType discriminates user messages from system notices.
type MessageType string

const (
	TypeChat   MessageType = "CHAT"
	TypeJoin   MessageType = "JOIN"
	TypeLeave  MessageType = "LEAVE"
	TypeSystem MessageType = "SYSTEM"
)

// ChatMessage is a single message delivered on a room channel.
type ChatMessage struct {
	ID        string      `json:"id,omitempty"`
	RoomID    string      `json:"roomId,omitempty"`
	Sender    string      `json:"sender"`
	Username  string      `json:"username,omitempty"` // legacy alias of Sender
	Content   string      `json:"content"`
	Timestamp Timestamp   `json:"timestamp"`
	Type      MessageType `json:"type,omitempty"`
	System    bool        `json:"isSystem,omitempty"`
}

// IsSystem reports whether the message is a join/leave/welcome notice rather
// than user-authored content.
func (m ChatMessage) IsSystem() bool {
	if m.System || m.Sender == SystemSender {
		return true
	}
	switch m.Type {
	case "", TypeChat:
		return false
	}
	return true
}

// Author returns the display name of the sender, falling back to the legacy
// username field.
func (m ChatMessage) Author() string {
	if m.Sender != "" {
		return m.Sender
	}
	return m.Username
}

// Normalize fills the fields a UI relies on: a list key and the sender.
// Generated IDs are only unique for this client.
func (m *ChatMessage) Normalize() {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Sender == "" {
		m.Sender = m.Username
	}
}

// JoinNotice is published to a room's join destination on connect.
type JoinNotice struct {
	Username string `json:"username"`
}

// Outbound is the payload of a chat send. The server stamps the time.
type Outbound struct {
	Content string `json:"content"`
}
