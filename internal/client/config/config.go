package config

import "time"

// Config holds runtime settings for the vehiclecheck client.
type Config struct {
	// ServerEndpointAddr is host:port of the backend gRPC endpoint.
	ServerEndpointAddr string
	// OnlineCheckInterval is how often the client probes the server.
	OnlineCheckInterval time.Duration
	// DatabasePath is the local SQLite file holding the session.
	DatabasePath string
	// RetentionMonths is how long inspections are kept before pruning.
	RetentionMonths int
	// FirstSnapshotWait bounds how long a screen waits for its first live
	// snapshot before rendering what it has.
	FirstSnapshotWait time.Duration
	// Offline runs against in-process stand-ins instead of the server.
	Offline  bool
	LogLevel string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.OnlineCheckInterval = 3 * time.Second
	c.DatabasePath = "vehiclecheck.db"
	c.RetentionMonths = 2
	c.FirstSnapshotWait = 2 * time.Second
	c.Offline = false
	c.LogLevel = "warn"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
