package metrics

import "github.com/kilianp07/floodrescue/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PromAddress, when set, serves /metrics on this address.
	PromAddress string `json:"prom_address"`
}
