// Package config handles configuration loading for msgvault.
//
// Configuration is loaded from a YAML file with ${VAR_NAME} environment
// variable expansion:
//
//	database:
//	  path: "${HOME}/.local/share/msgvault/messages.db"
//
//	storage:
//	  max_size_mb: 500
//	  low_water_fraction: 0.9
//	  evict_batch: 100
//	  page_size: 50
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Storage fields left at zero fall back to the store defaults, so a config
// file only needs to name the database path.
package config
