package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAddr             = ":8080"
	DefaultWSPath           = "/ws"
	DefaultWriteTimeout     = 5 * time.Second
	DefaultPingInterval     = 25 * time.Second
	DefaultPongWait         = 60 * time.Second
	DefaultMaxMessageBytes  = 64 * 1024
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 10
	DefaultMinConns         = 2
	DefaultDirectoryTTL     = 30 * time.Second
	DefaultPersistTimeout   = 5 * time.Second
	DefaultBroadcastTimeout = 5 * time.Second
)

func (c *ChatdConfig) applyDefaults() {
	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.WSPath == "" {
		c.Server.WSPath = DefaultWSPath
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.PingInterval == 0 {
		c.Server.PingInterval = DefaultPingInterval
	}
	if c.Server.PongWait == 0 {
		c.Server.PongWait = DefaultPongWait
	}
	if c.Server.MaxMessageBytes == 0 {
		c.Server.MaxMessageBytes = DefaultMaxMessageBytes
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// Directory defaults
	if c.Directory.TTL == 0 {
		c.Directory.TTL = DefaultDirectoryTTL
	}

	// Presence defaults
	if c.Presence.PersistTimeout == 0 {
		c.Presence.PersistTimeout = DefaultPersistTimeout
	}
	if c.Presence.BroadcastTimeout == 0 {
		c.Presence.BroadcastTimeout = DefaultBroadcastTimeout
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
