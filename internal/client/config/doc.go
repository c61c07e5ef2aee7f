// Package config loads runtime configuration for the vehiclecheck client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags, which override earlier values.
//
// # JSON schema
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "online_check_interval": "3s",
//	  "database_path": "vehiclecheck.db",
//	  "retention_months": 2,
//	  "first_snapshot_wait": "2s",
//	  "offline": false,
//	  "log_level": "warn"
//	}
//
// Environment variables are not read.
package config
