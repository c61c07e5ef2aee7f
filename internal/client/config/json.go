package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/vehiclecheck/internal/flagx"
	"github.com/dmitrijs2005/vehiclecheck/internal/timex"
)

// JsonConfig is the JSON file layout. Intervals accept strings like "3s" or
// integer nanoseconds via timex.Duration. Fields left out of the file keep
// their current value.
type JsonConfig struct {
	ServerEndpointAddr  string          `json:"server_endpoint_addr"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	DatabasePath        string          `json:"database_path"`
	RetentionMonths     int             `json:"retention_months"`
	FirstSnapshotWait   *timex.Duration `json:"first_snapshot_wait"`
	Offline             *bool           `json:"offline"`
	LogLevel            string          `json:"log_level"`
}

// parseJson overlays values from the file named by -c/-config. Without the
// flag nothing is loaded; an unreadable or invalid file panics.
func parseJson(cfg *Config) {
	path := flagx.ConfigPath()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.OnlineCheckInterval != nil {
		cfg.OnlineCheckInterval = time.Duration(jc.OnlineCheckInterval.Duration)
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.RetentionMonths > 0 {
		cfg.RetentionMonths = jc.RetentionMonths
	}
	if jc.FirstSnapshotWait != nil {
		cfg.FirstSnapshotWait = time.Duration(jc.FirstSnapshotWait.Duration)
	}
	if jc.Offline != nil {
		cfg.Offline = *jc.Offline
	}
	if jc.LogLevel != "" {
		cfg.LogLevel = jc.LogLevel
	}
}
