package config

import "fmt"

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Backend is "memory", "sqlite" or "postgres".
	Backend string `json:"backend"`
	// DSN is a file path for sqlite and a connection URL for postgres.
	DSN string `json:"dsn"`
}

// SetDefaults applies sane defaults.
func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.Backend == "sqlite" && c.DSN == "" {
		c.DSN = "rescue.db"
	}
}

// Validate checks mandatory fields.
func (c StoreConfig) Validate() error {
	switch c.Backend {
	case "memory":
		return nil
	case "sqlite", "postgres":
		if c.DSN == "" {
			return fmt.Errorf("dsn is required for %s", c.Backend)
		}
		return nil
	}
	return fmt.Errorf("unknown backend %s", c.Backend)
}

// NotifyConfig selects the notification channel.
type NotifyConfig struct {
	// Channel is "mqtt" or "log".
	Channel string `json:"channel"`
}

func (c *NotifyConfig) SetDefaults() {
	if c.Channel == "" {
		c.Channel = "log"
	}
}

func (c NotifyConfig) Validate() error {
	if c.Channel != "mqtt" && c.Channel != "log" {
		return fmt.Errorf("unknown channel %s", c.Channel)
	}
	return nil
}
