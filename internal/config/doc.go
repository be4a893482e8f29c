// Package config loads larder-gateway configuration.
//
// # Files
//
// Load reads YAML, or TOML when the path ends in .toml. DefaultPath resolves
// the location from $LARDER_CONFIG, then $XDG_CONFIG_HOME/larder/gateway.yaml,
// then ~/.config/larder/gateway.yaml.
//
// # Environment Variables
//
// ${VAR} references anywhere in the file are replaced before parsing, so
// secrets can stay out of the file:
//
//	speech:
//	  enabled: true
//	  api_key: "${OPENAI_API_KEY}"
//
// # Durations
//
// Duration fields (sessions.idle_threshold, agent.turn_timeout,
// auth.bridge_token_ttl, speech.timeout) accept Go duration strings such as
// "90m" or "30s".
//
// # Example
//
//	server:
//	  http_addr: "127.0.0.1:8000"
//	  allowed_origins: ["http://localhost:3000"]
//	sessions:
//	  backend: sqlite
//	  idle_threshold: "1h"
//	  min_messages: 5
//	database:
//	  path: "~/.local/share/larder/sessions.db"
//	agent:
//	  model: sonnet
//	realtime:
//	  enabled: true
//	  api_key: "${OPENAI_API_KEY}"
//	tools:
//	  meals:
//	    url: "${SUPABASE_URL}"
//	    api_key: "${SUPABASE_KEY}"
package config
