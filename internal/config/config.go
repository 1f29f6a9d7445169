package config

import "time"

// ChatdConfig is the root configuration for a chatd instance.
type ChatdConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Directory DirectoryConfig `yaml:"directory"`
	Presence  PresenceConfig  `yaml:"presence"`
}

// InstanceConfig identifies this chatd instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
	AZ string `yaml:"az"`
}

// ServerConfig holds the WebSocket server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`              // Listen address (e.g., ":8080")
	WSPath          string        `yaml:"ws_path"`           // WebSocket endpoint path
	WriteTimeout    time.Duration `yaml:"write_timeout"`     // Write deadline for outbound pushes
	PingInterval    time.Duration `yaml:"ping_interval"`     // Keepalive ping cadence
	PongWait        time.Duration `yaml:"pong_wait"`         // Max time without a pong before the connection is stale
	MaxMessageBytes int64         `yaml:"max_message_bytes"` // Inbound frame size limit
}

// AuthConfig holds bearer-token verification settings.
type AuthConfig struct {
	SigningKey string `yaml:"signing_key"` // HMAC key shared with the identity provider
}

// DatabaseConfig holds the durable store connection.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
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

// DirectoryConfig holds conversation directory cache settings.
type DirectoryConfig struct {
	TTL time.Duration `yaml:"ttl"` // Participant cache staleness bound
}

// PresenceConfig holds presence tracker settings.
type PresenceConfig struct {
	PersistTimeout   time.Duration `yaml:"persist_timeout"`   // Per-call budget for best-effort last-seen writes
	BroadcastTimeout time.Duration `yaml:"broadcast_timeout"` // Per-transition budget for contact lookups
}
