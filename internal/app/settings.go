package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// RecoveryPolicy selects how startup/doctor recovery reacts to corruption
// and stuck sessions. See internal/recovery.
type RecoveryPolicy string

const (
	RecoveryPolicyFailFast RecoveryPolicy = "fail_fast"
	RecoveryPolicyWarn     RecoveryPolicy = "warn"
	RecoveryPolicySilent   RecoveryPolicy = "silent"
)

// Settings represents configuration loaded from config.yaml. Field names
// match the recognized keys enumerated in the configuration section of the
// specification.
type Settings struct {
	DBPath      string `yaml:"db_path"`
	WorkspaceDir string `yaml:"workspace_dir"`

	Recovery struct {
		Policy       RecoveryPolicy `yaml:"policy"`
		LogRecovered *bool          `yaml:"log_recovered"`
	} `yaml:"recovery"`

	Watch struct {
		DebounceMS int `yaml:"debounce_ms"`
	} `yaml:"watch"`

	Queue struct {
		MaxSize     int `yaml:"max_size"`
		MaxAttempts int `yaml:"max_attempts"`
		PriorityMin int `yaml:"priority_min"`
		PriorityMax int `yaml:"priority_max"`
	} `yaml:"queue"`

	Stack struct {
		MaxDepth int `yaml:"max_depth"`
	} `yaml:"stack"`

	Agent struct {
		HeartbeatTimeoutSecs int `yaml:"heartbeat_timeout_secs"`
		DefaultTimeoutSecs   int `yaml:"default_timeout_secs"`
	} `yaml:"agent"`

	Session struct {
		MaxCount int `yaml:"max_count"`
	} `yaml:"session"`
}

// EffectiveSettings are validated runtime values with every recognized key
// defaulted, used throughout the coordination core instead of raw Settings.
type EffectiveSettings struct {
	RecoveryPolicy       RecoveryPolicy
	LogRecovered         bool
	WatchDebounceMS      int
	QueueMaxSize         int
	QueueMaxAttempts     int
	QueuePriorityMin     int
	QueuePriorityMax     int
	StackMaxDepth        int
	HeartbeatTimeoutSecs int
	AgentDefaultTimeout  int
	SessionMaxCount      int
}

const (
	defaultWatchDebounceMS      = 250
	defaultQueueMaxSize         = 1000
	defaultQueueMaxAttempts     = 3
	defaultQueuePriorityMin     = 0
	defaultQueuePriorityMax    = 1000
	defaultStackMaxDepth        = 10
	defaultHeartbeatTimeoutSecs = 60
	defaultAgentTimeoutSecs     = 1800
	defaultSessionMaxCount      = 500
)

// EffectiveConfig returns validated configuration with defaults applied.
// Invalid or missing values fall back to the documented defaults; it never
// returns an error so callers can use it unconditionally at startup.
func EffectiveConfig() EffectiveSettings {
	cfg := EffectiveSettings{
		RecoveryPolicy:       RecoveryPolicyWarn,
		LogRecovered:         true,
		WatchDebounceMS:      defaultWatchDebounceMS,
		QueueMaxSize:         defaultQueueMaxSize,
		QueueMaxAttempts:     defaultQueueMaxAttempts,
		QueuePriorityMin:     defaultQueuePriorityMin,
		QueuePriorityMax:     defaultQueuePriorityMax,
		StackMaxDepth:        defaultStackMaxDepth,
		HeartbeatTimeoutSecs: defaultHeartbeatTimeoutSecs,
		AgentDefaultTimeout:  defaultAgentTimeoutSecs,
		SessionMaxCount:      defaultSessionMaxCount,
	}

	s, err := LoadSettings()
	if err != nil {
		return cfg
	}

	switch s.Recovery.Policy {
	case RecoveryPolicyFailFast, RecoveryPolicyWarn, RecoveryPolicySilent:
		cfg.RecoveryPolicy = s.Recovery.Policy
	}
	if s.Recovery.LogRecovered != nil {
		cfg.LogRecovered = *s.Recovery.LogRecovered
	}

	if s.Watch.DebounceMS >= 10 && s.Watch.DebounceMS <= 5000 {
		cfg.WatchDebounceMS = s.Watch.DebounceMS
	}
	if s.Queue.MaxSize > 0 {
		cfg.QueueMaxSize = s.Queue.MaxSize
	}
	if s.Queue.MaxAttempts > 0 {
		cfg.QueueMaxAttempts = s.Queue.MaxAttempts
	}
	if s.Queue.PriorityMax > s.Queue.PriorityMin {
		cfg.QueuePriorityMin = s.Queue.PriorityMin
		cfg.QueuePriorityMax = s.Queue.PriorityMax
	}
	if s.Stack.MaxDepth > 0 {
		cfg.StackMaxDepth = s.Stack.MaxDepth
	}
	if s.Agent.HeartbeatTimeoutSecs > 0 {
		cfg.HeartbeatTimeoutSecs = s.Agent.HeartbeatTimeoutSecs
	}
	if s.Agent.DefaultTimeoutSecs > 0 {
		cfg.AgentDefaultTimeout = s.Agent.DefaultTimeoutSecs
	}
	if s.Session.MaxCount > 0 {
		cfg.SessionMaxCount = s.Session.MaxCount
	}

	return cfg
}

// WorkspaceDir returns the configured workspace subpath (relative to the
// repository root), defaulting to "workspaces".
func WorkspaceDir() (string, error) {
	s, err := LoadSettings()
	if err != nil {
		return "", err
	}
	if s.WorkspaceDir == "" {
		return "workspaces", nil
	}
	if filepath.IsAbs(s.WorkspaceDir) {
		return "", fmt.Errorf("workspace_dir must not be an absolute path: %q", s.WorkspaceDir)
	}
	return s.WorkspaceDir, nil
}

// ResolveWorkspacePath validates that joining repoRoot with the configured
// workspace_dir (and any caller-supplied relative suffix) stays within
// repoRoot after symlink resolution, per the path-containment rule in the
// error handling design. It returns the canonical, contained path or an
// error citing the constraint.
func ResolveWorkspacePath(repoRoot, suffix string) (string, error) {
	wsDir, err := WorkspaceDir()
	if err != nil {
		return "", err
	}

	canonicalRoot, err := filepath.EvalSymlinks(repoRoot)
	if err != nil {
		return "", fmt.Errorf("resolve repository root: %w", err)
	}

	joined := filepath.Join(canonicalRoot, wsDir, suffix)

	// The path need not exist yet (a spawn creates it); resolve only the
	// longest existing prefix for symlink containment checks.
	resolved, err := resolveExistingPrefix(joined)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(canonicalRoot, resolved)
	if err != nil {
		return "", fmt.Errorf("compute relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes repository root %q", joined, canonicalRoot)
	}

	return joined, nil
}

// resolveExistingPrefix walks up from path until it finds a component that
// exists, resolves symlinks on that prefix, and rejoins the remaining
// (not-yet-created) suffix.
func resolveExistingPrefix(path string) (string, error) {
	cur := path
	var suffix []string
	for {
		if _, err := os.Lstat(cur); err == nil {
			resolved, err := filepath.EvalSymlinks(cur)
			if err != nil {
				return "", fmt.Errorf("resolve symlinks on %q: %w", cur, err)
			}
			for i := len(suffix) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, suffix[i])
			}
			return resolved, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			// Reached filesystem root without finding an existing component.
			return path, nil
		}
		suffix = append(suffix, filepath.Base(cur))
		cur = parent
	}
}

// settingsOnce, settings, settingsErr implement the sync.Once lazy-load
// singleton for config. dbPathOverrideMu and dbPathOverride implement a
// mutex-protected process-wide override for CLI --db-path.
//
//nolint:gochecknoglobals // sync.Once singleton + RWMutex override are intentional process-wide state
var (
	settingsOnce sync.Once
	settings     Settings
	settingsErr  error

	dbPathOverrideMu sync.RWMutex
	dbPathOverride   string
)

// SetDBPathOverride sets a process-wide database path override. Intended for
// CLI flag support (e.g. --db-path).
func SetDBPathOverride(path string) {
	dbPathOverrideMu.Lock()
	dbPathOverride = path
	dbPathOverrideMu.Unlock()
}

func getDBPathOverride() string {
	dbPathOverrideMu.RLock()
	v := dbPathOverride
	dbPathOverrideMu.RUnlock()
	return v
}

// LoadSettings loads configuration once using the documented lookup order.
// Lookup order (first found wins):
// 1) ~/.config/mergetrain/config.yaml
// 2) /etc/mergetrain/config.yaml
// 3) ./config.yaml (lowest priority; allows repo-local overrides)
// Environment variables are handled separately.
func LoadSettings() (Settings, error) {
	settingsOnce.Do(func() {
		settings = Settings{}

		dir, err := ConfigDir()
		if err != nil {
			settingsErr = err
			return
		}
		if s, err := loadSettingsFile(filepath.Join(dir, "config.yaml")); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}

		if s, err := loadSettingsFile(filepath.Join(string(os.PathSeparator), "etc", "mergetrain", "config.yaml")); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}

		if s, err := loadSettingsFile("config.yaml"); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}
	})

	return settings, settingsErr
}

func loadSettingsFile(path string) (Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
