package plugins

import (
	"context"
	"fmt"
	"sort"

	"github.com/kilianp07/floodrescue/config"
	dispatchlog "github.com/kilianp07/floodrescue/core/dispatch/logging"
	"github.com/kilianp07/floodrescue/core/notify"
	"github.com/kilianp07/floodrescue/core/store"
)

// StoreFactory opens a persistence backend.
type StoreFactory func(ctx context.Context, cfg config.StoreConfig) (store.Store, error)

// ChannelFactory builds a notification channel from the full configuration.
type ChannelFactory func(cfg *config.Config) (notify.Channel, error)

// LogStoreFactory builds a dispatch log store. A nil store disables audit
// logging.
type LogStoreFactory func(cfg config.LoggingConfig) (dispatchlog.LogStore, error)

var (
	Stores    = map[string]StoreFactory{}
	Channels  = map[string]ChannelFactory{}
	LogStores = map[string]LogStoreFactory{}
)

func RegisterStore(name string, f StoreFactory)       { Stores[name] = f }
func RegisterChannel(name string, f ChannelFactory)   { Channels[name] = f }
func RegisterLogStore(name string, f LogStoreFactory) { LogStores[name] = f }

// OpenStore opens the backend named by cfg.Backend.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	f, ok := Stores[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("unknown store backend %q (known: %v)", cfg.Backend, names(Stores))
	}
	return f(ctx, cfg)
}

// NewChannel builds the channel named by cfg.Notify.Channel.
func NewChannel(cfg *config.Config) (notify.Channel, error) {
	f, ok := Channels[cfg.Notify.Channel]
	if !ok {
		return nil, fmt.Errorf("unknown notify channel %q (known: %v)", cfg.Notify.Channel, names(Channels))
	}
	return f(cfg)
}

// NewLogStore builds the log store named by cfg.Backend.
func NewLogStore(cfg config.LoggingConfig) (dispatchlog.LogStore, error) {
	f, ok := LogStores[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("unknown log backend %q (known: %v)", cfg.Backend, names(LogStores))
	}
	return f(cfg)
}

func names[F any](m map[string]F) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
