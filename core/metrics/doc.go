package metrics

// Package metrics defines the sinks that observe dispatch activity. Sinks
// like PromSink and InfluxSink record fan-outs, deliveries, accept attempts
// and duplicate checks, and can be combined with NewMultiSink. The factory
// helpers return a MultiSink automatically when multiple sinks are configured.
