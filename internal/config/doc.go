// Package config handles configuration loading for switchyard.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${SWITCHYARD_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	dispatch:
//	  timeout: "30s"
//	sessions:
//	  inactivity_threshold: "24h"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # Query API and admin surface
//
// Persistence:
//
//	stores:
//	  capability_path: "/var/lib/switchyard/agents.json"
//	  session_db_path: "/var/lib/switchyard/sessions.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${SWITCHYARD_JWT_SECRET}"   # Required
//	  known_principals: ["happy", "vishal"]
//
// Routing:
//
//	router:
//	  match_threshold: 0.1
//	  top_k: 5
//
// Decomposition model:
//
//	llm:
//	  enabled: true
//	  model: "gpt-4o-mini"   # API key comes from OPENAI_API_KEY
//
// Rate limiting:
//
//	rate_limit:
//	  requests_per_second: 2
//	  burst: 5
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/switchyard/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
