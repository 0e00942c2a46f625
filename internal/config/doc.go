// Package config loads runtime configuration for the nutkeeper CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-d string   data directory
//	-s string   storage backend: sqlite, postgres, badger or memory
//	-p string   postgres DSN
//	-m string   default mint URL
//	-l string   log level: debug, info, warn or error
//	-e bool     encrypt proofs at rest with the seed-derived key
//
// # JSON schema
//
// Durations use timex.Duration, so "10s" and integer nanoseconds both work:
//
//	{
//	  "data_dir": "~/.nutkeeper",
//	  "storage": "sqlite",
//	  "mints": ["https://mint.example"],
//	  "quote_poll_interval": "10s",
//	  "price": {"enabled": true, "currency": "EUR"},
//	  "backup": {"bucket": "wallets", "endpoint": "http://localhost:9000"}
//	}
package config
