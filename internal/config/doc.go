// Package config handles configuration loading for the supportchat client.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults for all realtime
// timing knobs.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  token_path: "${HOME}/.config/supportchat/token"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	realtime:
//	  poll_interval: "3s"
//	  typing_expiry: "1500ms"
//	  reconnect_window: "60s"
//	  reconnect_max_delay: "10s"
//
// # Configuration Sections
//
// Backend endpoints:
//
//	server:
//	  api_base_url: "http://localhost:5019/api"
//	  hub_url: "ws://localhost:5019/hubs/conversations"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
