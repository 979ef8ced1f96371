// Package config loads runtime configuration for the AdminVault console.
//
// Sources, later ones overriding earlier ones:
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags.
//
// Supported flags
//
//	-a string   host:port of the identity daemon
//	-s string   records backend: memory, postgres or s3
//	-d string   postgres DSN for the records backend
//	-b string   S3 bucket for the records backend
//	-p string   client data directory
//	-l string   log level (debug, info, warn, error)
//	-t int      request timeout in seconds
//
// # JSON schema
//
// Durations use timex.Duration, so "10s" and integer nanoseconds both work:
//
//	{
//	  "identity_endpoint": "127.0.0.1:50051",
//	  "store_backend": "s3",
//	  "s3": {"bucket": "adminvault", "region": "eu-north-1", "base_endpoint": "http://127.0.0.1:9000"},
//	  "data_dir": "/var/lib/adminvault",
//	  "request_timeout": "10s"
//	}
package config
