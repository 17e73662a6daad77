package config

import "time"

// Config is the root configuration for the roomchat client.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Connection ConnectionConfig `yaml:"connection"`
	Session    SessionConfig    `yaml:"session"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds the chat server endpoints.
type ServerConfig struct {
	RestURL    string        `yaml:"rest_url"`   // Base URL of the REST API
	BrokerURL  string        `yaml:"broker_url"` // STOMP handshake endpoint (e.g., http://localhost:8080/ws-chat)
	Transport  string        `yaml:"transport"`  // "sockjs" or "websocket"
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// ConnectionConfig holds RoomConnection settings. A negative heart-beat
// disables that direction.
type ConnectionConfig struct {
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	HeartbeatOutgoing    time.Duration `yaml:"heartbeat_outgoing"`
	HeartbeatIncoming    time.Duration `yaml:"heartbeat_incoming"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	BufferSize           int           `yaml:"buffer_size"`
}

// SessionConfig holds the local session store location.
type SessionConfig struct {
	DataDir string `yaml:"data_dir"`
}

// ArchiveConfig holds the optional transcript archive settings.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	Database      DBConfig      `yaml:"database"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn or error
}
