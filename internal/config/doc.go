// Package config handles configuration loading for aiboard.
//
// # Overview
//
// Configuration is optional. Every key has a default, and a file only needs
// the keys it changes. Files are YAML unless the name ends in .toml.
//
// # Configuration File
//
// Lookup order:
//
//  1. The --config flag
//  2. Path from the AIBOARD_CONFIG environment variable
//  3. <data dir>/config.yaml
//  4. <data dir>/config.toml
//
// An explicitly named file must exist. When neither default file exists the
// defaults are used.
//
// # Data Directory
//
// The data directory holds the database and default config files. It is
// AIBOARD_DATA_DIR if set, else %LOCALAPPDATA%/aiboard, else
// $HOME/.local/share/aiboard, else ./.aiboard.
//
// # Environment Variable Expansion
//
// Values can reference environment variables with ${VAR_NAME}. Unset
// variables expand to the empty string.
//
//	database:
//	  path: "${HOME}/boards/team.db"
//
// # Keys
//
//	database:
//	  path: "<data dir>/aiboard.db"
//	  driver: "sqlite"          # sqlite (pure Go) or sqlite3 (cgo)
//	  busy_timeout: "5s"
//	search:
//	  mode: "auto"              # auto or substring
//	logging:
//	  level: "warn"
//	  format: "text"            # text or json
//	  file: "<data dir>/error.log"  # copy of error records, "" disables
//	limits:
//	  max_content_bytes: 1048576
//
// The same keys in TOML:
//
//	[database]
//	driver = "sqlite3"
//	busy_timeout = "10s"
package config
