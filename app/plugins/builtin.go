package plugins

import (
	"context"

	"github.com/kilianp07/floodrescue/config"
	dispatchlog "github.com/kilianp07/floodrescue/core/dispatch/logging"
	"github.com/kilianp07/floodrescue/core/notify"
	"github.com/kilianp07/floodrescue/core/store"
	"github.com/kilianp07/floodrescue/infra/logger"
	"github.com/kilianp07/floodrescue/infra/mqtt"
	"github.com/kilianp07/floodrescue/infra/sqlstore"
)

func init() {
	RegisterStore("memory", func(context.Context, config.StoreConfig) (store.Store, error) {
		return store.NewMemoryStore(), nil
	})
	openSQL := func(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
		s, err := sqlstore.Open(ctx, cfg.Backend, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	RegisterStore("sqlite", openSQL)
	RegisterStore("postgres", openSQL)

	RegisterChannel("log", func(*config.Config) (notify.Channel, error) {
		return notify.LogChannel{Log: logger.New("missions")}, nil
	})
	RegisterChannel("mqtt", func(cfg *config.Config) (notify.Channel, error) {
		c, err := mqtt.NewPahoClient(cfg.MQTT)
		if err != nil {
			return nil, err
		}
		return c, nil
	})

	RegisterLogStore("jsonl", func(lc config.LoggingConfig) (dispatchlog.LogStore, error) {
		if lc.MaxSizeMB > 0 {
			s, err := dispatchlog.NewRotatingJSONLStore(lc.Path, lc.MaxSizeMB, lc.MaxBackups, lc.MaxAgeDays)
			if err != nil {
				return nil, err
			}
			return s, nil
		}
		s, err := dispatchlog.NewJSONLStore(lc.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	RegisterLogStore("sqlite", func(lc config.LoggingConfig) (dispatchlog.LogStore, error) {
		s, err := dispatchlog.NewSQLiteStore(lc.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	RegisterLogStore("none", func(config.LoggingConfig) (dispatchlog.LogStore, error) {
		return nil, nil
	})
}
