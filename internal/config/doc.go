// Package config handles configuration loading for certgate.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion. Load applies defaults and then validates the result.
//
// # Configuration File
//
// Default location (first match):
//
//  1. Path from CERTGATE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/certgate/certgate.yaml
//  3. ~/.config/certgate/certgate.yaml
//
// A file ending in .toml is decoded with BurntSushi/toml; anything else is
// decoded as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  admin_secret: "${CERTGATE_ADMIN_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "localhost:8080"
//	  read_timeout: "15s"
//	  write_timeout: "30s"
//
//	database:
//	  driver: "sqlite"                            # sqlite, bbolt
//	  path: "~/.local/share/certgate/certgate.db"
//
//	keys:
//	  dir: "~/.local/share/certgate/keys"
//	  bits: 2048
//	  on_corrupt: "fail"                          # fail, regenerate
//
//	auth:
//	  admin_secret: "${CERTGATE_ADMIN_SECRET}"    # required, 16+ characters
//
//	certificates:
//	  issuer: "Joinery Project Manager"
//	  default_lifetime_days: 365
//	  max_lifetime_days: 3650
//	  permissions: ["project_access", "financial_view"]
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// The same keys are used in TOML, one table per section.
package config
