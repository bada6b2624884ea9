package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

type NotifyConfig struct {
	Thresholds []int `json:"thresholds"`
	FiveHour   bool  `json:"five_hour"`
	Weekly     bool  `json:"weekly"`
}

type Config struct {
	// SessionKey enables cookie-mode API access when no OAuth credential is
	// available. Empty means "discover from the desktop app, or skip remote".
	SessionKey string `json:"session_key,omitempty"`
	// OrgID caches the organization id discovered for cookie mode so the
	// session-introspection call is not repeated every cycle.
	OrgID string `json:"org_id,omitempty"`

	RefreshIntervalSeconds int          `json:"refresh_interval_seconds"`
	Notify                 NotifyConfig `json:"notify"`
	ShowRemaining          bool         `json:"show_remaining"`

	// SubscriptionType mirrors the credential file's tier label so the plan
	// badge renders before the first remote cycle completes.
	SubscriptionType string `json:"subscription_type,omitempty"`

	// ClaudeDir overrides ~/.claude for tests and non-standard installs.
	ClaudeDir string `json:"claude_dir,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		RefreshIntervalSeconds: 60,
		Notify: NotifyConfig{
			Thresholds: []int{75, 90, 95},
			FiveHour:   true,
			Weekly:     true,
		},
	}
}

func ConfigDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "claudeusage")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "claudeusage")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func HistoryPath() string {
	return filepath.Join(ConfigDir(), "history.json")
}

func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.RefreshIntervalSeconds <= 0 {
		cfg.RefreshIntervalSeconds = 60
	}
	if len(cfg.Notify.Thresholds) == 0 {
		cfg.Notify.Thresholds = DefaultConfig().Notify.Thresholds
	}

	return cfg, nil
}

// saveMu guards read-modify-write cycles on the config file.
var saveMu sync.Mutex

func Save(cfg Config) error {
	return SaveTo(ConfigPath(), cfg)
}

func SaveTo(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// SaveOrgID persists a newly discovered organization id (read-modify-write so
// concurrent edits to other fields survive).
func SaveOrgID(orgID string) error {
	return SaveOrgIDTo(ConfigPath(), orgID)
}

func SaveOrgIDTo(path, orgID string) error {
	saveMu.Lock()
	defer saveMu.Unlock()

	cfg, err := LoadFrom(path)
	if err != nil {
		cfg = DefaultConfig()
	}
	cfg.OrgID = orgID
	return SaveTo(path, cfg)
}

// SaveSubscriptionType persists the credential tier label for early plan
// display (read-modify-write).
func SaveSubscriptionTypeTo(path, tier string) error {
	saveMu.Lock()
	defer saveMu.Unlock()

	cfg, err := LoadFrom(path)
	if err != nil {
		cfg = DefaultConfig()
	}
	cfg.SubscriptionType = tier
	return SaveTo(path, cfg)
}
