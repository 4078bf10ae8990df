// Package syncconfig manages the client-side sync configuration stored
// at ~/.config/shoplist/config.json.
package syncconfig

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SyncConfig holds sync-related settings.
type SyncConfig struct {
	URL      string `json:"url"`
	DeviceID string `json:"device_id,omitempty"`
	Interval string `json:"interval,omitempty"` // duration string, default "30s"
}

// Config is the global shoplist config stored at ~/.config/shoplist/config.json.
type Config struct {
	Sync SyncConfig `json:"sync"`
}

const defaultServerURL = "http://localhost:8080"

// ConfigDir returns ~/.config/shoplist, creating it if necessary.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".config", "shoplist")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// LoadConfig reads the global config. A missing file yields defaults.
func LoadConfig() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveConfig writes the global config to ~/.config/shoplist/config.json.
func SaveConfig(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// GetServerURL returns the sync server URL.
// Priority: SHOPLIST_SYNC_URL env > config.json > default.
func GetServerURL() string {
	if v := os.Getenv("SHOPLIST_SYNC_URL"); v != "" {
		return v
	}
	cfg, err := LoadConfig()
	if err == nil && cfg.Sync.URL != "" {
		return cfg.Sync.URL
	}
	return defaultServerURL
}

// GetDeviceID returns this device's stable ID, generating and
// persisting one on first use.
func GetDeviceID() (string, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return "", err
	}
	if cfg.Sync.DeviceID != "" {
		return cfg.Sync.DeviceID, nil
	}

	id, err := GenerateDeviceID()
	if err != nil {
		return "", err
	}
	cfg.Sync.DeviceID = id
	if err := SaveConfig(cfg); err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}
	return id, nil
}

// GenerateDeviceID creates a new random device ID (16 bytes hex).
func GenerateDeviceID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GetSyncInterval returns the periodic sync interval.
// Priority: SHOPLIST_SYNC_INTERVAL env > config.json sync.interval > 30s.
func GetSyncInterval() time.Duration {
	if v := os.Getenv("SHOPLIST_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	cfg, err := LoadConfig()
	if err == nil && cfg.Sync.Interval != "" {
		if d, err := time.ParseDuration(cfg.Sync.Interval); err == nil {
			return d
		}
	}
	return 30 * time.Second
}
