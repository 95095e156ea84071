package app

import (
	"os"
	"path/filepath"
)

// ConfigDir returns ~/.config/mergetrain/ on all platforms.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "mergetrain"), nil
}

// EnsureConfigDir creates the config directory and default config.yaml if missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return os.WriteFile(configFile, []byte(defaultConfig), 0600)
	}
	return nil
}

const defaultConfig = `# mergetrain configuration
# Run: mergetrain --help

# Optional: override the SQLite database location.
# Can also be set via MERGETRAIN_DB_PATH or --db-path.
# db_path: ~/.config/mergetrain/mergetrain.db

# workspace_dir must be a relative subpath of the repository root; absolute
# paths and anything that escapes the repository are rejected when the
# workspace path is resolved.
# workspace_dir: workspaces

recovery:
  # policy: fail_fast | warn | silent
  policy: warn
  log_recovered: true

watch:
  debounce_ms: 250

queue:
  max_size: 1000
  max_attempts: 3
  priority_min: 0
  priority_max: 1000

stack:
  max_depth: 10

agent:
  heartbeat_timeout_secs: 60
  default_timeout_secs: 1800

session:
  max_count: 500
`
