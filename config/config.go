package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/floodrescue/core/dedup"
	"github.com/kilianp07/floodrescue/core/dispatch"
	"github.com/kilianp07/floodrescue/core/metrics"
	"github.com/kilianp07/floodrescue/infra/logger"
	"github.com/kilianp07/floodrescue/infra/mqtt"
	"github.com/kilianp07/floodrescue/infra/redis"
)

type Config struct {
	Store      StoreConfig     `json:"store"`
	PhoneIndex redis.Config    `json:"phone_index"`
	Dedup      dedup.Config    `json:"dedup"`
	Dispatch   dispatch.Config `json:"dispatch"`
	Notify     NotifyConfig    `json:"notify"`
	MQTT       mqtt.Config     `json:"mqtt"`
	Metrics    metrics.Config  `json:"metrics"`
	Logging    LoggingConfig   `json:"logging"`
	API        APIConfig       `json:"api"`
	Log        logger.Config   `json:"log"`
	Sentry     SentryConfig    `json:"sentry"`
}

// Load reads path (yaml or json) and applies K_ environment overrides, where
// K_DISPATCH__MAX_NOTIFIED sets dispatch.max_notified. A .env file in the
// working directory is loaded first when present. An empty path loads
// defaults and environment only.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Store.SetDefaults()
	c.PhoneIndex.SetDefaults()
	c.Dedup.SetDefaults()
	c.Dispatch.SetDefaults()
	c.Notify.SetDefaults()
	c.Logging.SetDefaults()
	c.Sentry.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Dispatch.Validate(); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	if err := c.Notify.Validate(); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	if c.Notify.Channel == "mqtt" && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt: broker is required for the mqtt channel")
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Sentry.Validate(); err != nil {
		return fmt.Errorf("sentry: %w", err)
	}
	return nil
}
