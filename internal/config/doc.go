// Package config handles configuration loading for solace-gateway.
//
// # Configuration File
//
// The binary resolves the path in this order:
//
//  1. Path from SOLACE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/solace/gateway.yaml
//  3. ~/.config/solace/gateway.yaml
//
// Files ending in .toml are decoded as TOML; anything else is YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${SOLACE_JWT_SECRET}"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8000"
//
//	database:
//	  path: "/var/lib/solace/gateway.db"
//
//	auth:
//	  jwt_secret: "${SOLACE_JWT_SECRET}"
//	  token_ttl: "24h"
//
//	pipeline:
//	  provider: "openai"            # openai, echo
//	  base_url: "https://api.openai.com"
//	  api_key: "${OPENAI_API_KEY}"
//	  model: "gpt-4o-mini"
//	  temperature: 0.9
//	  system_prompt: "You are a supportive listener."
//	  timeout: "60s"
//
//	session:
//	  thinking_message: "Listening carefully..."
//	  stream_replies: false
//	  render_markdown: false
//	  max_message_bytes: 65536
//	  write_timeout: "10s"
//	  ping_interval: "54s"
//	  pong_wait: "60s"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Validate fills in defaults for every optional duration and limit.
package config
