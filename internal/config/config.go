// internal/config/config.go
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

type Config struct {
	CollectionsDir   string `json:"collections_dir"`
	SnapshotsDir     string `json:"snapshots_dir"`
	AuditDir         string `json:"audit_dir"`
	HashCacheDir     string `json:"hash_cache_dir"`
	ActiveCollection string `json:"active_collection"`

	// RetainSnapshots is the default keep-count for cleanup.
	RetainSnapshots int    `json:"retain_snapshots"`
	LogLevel        string `json:"log_level"` // debug, info, warn, error
}

// Default places everything under ~/.skillmeat.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	root := filepath.Join(home, ".skillmeat")
	return &Config{
		CollectionsDir:   filepath.Join(root, "collections"),
		SnapshotsDir:     filepath.Join(root, "snapshots"),
		AuditDir:         filepath.Join(root, "audit"),
		HashCacheDir:     filepath.Join(root, "hashcache"),
		ActiveCollection: "default",
		RetainSnapshots:  10,
		LogLevel:         "info",
	}
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := Default()
	if err := json.NewDecoder(file).Decode(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadOrDefault returns Default when the config file is missing.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return cfg, err
}
