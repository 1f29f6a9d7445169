package config

import (
	"errors"
	"fmt"
	"time"
)

// MaxDirectoryTTL bounds how stale cached conversation membership may get.
const MaxDirectoryTTL = 30 * time.Second

// Validate checks that all required fields are set and values are valid.
func (c *ChatdConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Auth.SigningKey == "" {
		return errors.New("auth.signing_key is required")
	}

	if err := c.Database.Postgres.validate("database.postgres"); err != nil {
		return err
	}

	if c.Server.PingInterval >= c.Server.PongWait {
		return fmt.Errorf("server.ping_interval (%s) must be less than server.pong_wait (%s)",
			c.Server.PingInterval, c.Server.PongWait)
	}
	if c.Server.MaxMessageBytes < 1 {
		return errors.New("server.max_message_bytes must be >= 1")
	}

	if c.Directory.TTL <= 0 {
		return errors.New("directory.ttl must be > 0")
	}
	if c.Directory.TTL > MaxDirectoryTTL {
		return fmt.Errorf("directory.ttl must be <= %s, got %s", MaxDirectoryTTL, c.Directory.TTL)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
