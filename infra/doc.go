// Package infra groups the adapters behind the core interfaces: the MQTT
// mission channel, SQL and Redis storage, metrics sinks, logging and Sentry.
// Adapters import core packages, never the reverse.
package infra
