package config

// APIConfig configures the HTTP API. An empty Address disables it.
type APIConfig struct {
	Address string `json:"address"`
	// Token protects the audit log endpoint with a bearer token when set.
	Token string `json:"token"`
}
