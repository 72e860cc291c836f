package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Sync        SyncConfig        `toml:"sync"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	YouTube YouTubeConfig `toml:"youtube"`
}

// SpotifyConfig contains Spotify API credentials.
//
// A refresh token is exchanged for access tokens on demand; an access token alone works until it expires.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	RefreshToken string `toml:"refresh_token"`
	AccessToken  string `toml:"access_token"`
	Username     string `toml:"username"`
}

// YouTubeConfig contains the YouTube Music proxy settings.
type YouTubeConfig struct {
	ProxyURL    string `toml:"proxy_url"`
	HeadersPath string `toml:"headers_path"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LogConfig controls where logs go when the terminal is taken by the live view.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// MirrorConfig selects the mirror policy ("mirror" or "additive") for each collection kind.
type MirrorConfig struct {
	Playlists string `toml:"playlists"`
	Favorites string `toml:"favorites"`
	Albums    string `toml:"albums"`
	Artists   string `toml:"artists"`
}

// PlaylistMapping pins a source playlist to a specific target playlist.
type PlaylistMapping struct {
	SourceID string `toml:"source_id"`
	TargetID string `toml:"target_id"`
}

// SyncConfig holds every value the sync engine recognizes.
type SyncConfig struct {
	FuzzyThresholdTrack  float64           `toml:"fuzzy_threshold_track"`
	FuzzyThresholdAlbum  float64           `toml:"fuzzy_threshold_album"`
	FuzzyThresholdArtist float64           `toml:"fuzzy_threshold_artist"`
	ExactThreshold       float64           `toml:"exact_threshold"`
	EnableFuzzy          bool              `toml:"enable_fuzzy"`
	DurationToleranceMs  int               `toml:"duration_tolerance_ms"`
	MaxConcurrentCalls   int               `toml:"max_concurrent_calls"`
	MaxRetryAttempts     int               `toml:"max_retry_attempts"`
	BackoffBaseMs        int               `toml:"backoff_base_ms"`
	MaxBackoffMs         int               `toml:"max_backoff_ms"`
	RequestsPerSecond    float64           `toml:"requests_per_second"`
	RetryFailedAfter     time.Duration     `toml:"retry_failed_after"`
	ReportPath           string            `toml:"report_path"`
	ExcludedPlaylists    []string          `toml:"excluded_playlists"`
	Mirror               MirrorConfig      `toml:"mirror"`
	Playlists            []PlaylistMapping `toml:"playlists"`
}

// Validate rejects values that would leave the engine partially defined.
func (c SyncConfig) Validate() error {
	var problems []string
	for _, t := range []struct {
		name string
		v    float64
	}{
		{"fuzzy_threshold_track", c.FuzzyThresholdTrack},
		{"fuzzy_threshold_album", c.FuzzyThresholdAlbum},
		{"fuzzy_threshold_artist", c.FuzzyThresholdArtist},
		{"exact_threshold", c.ExactThreshold},
	} {
		if t.v <= 0 || t.v > 1 {
			problems = append(problems, fmt.Sprintf("%s must be in (0,1], got %v", t.name, t.v))
		}
	}
	if c.DurationToleranceMs < 0 {
		problems = append(problems, "duration_tolerance_ms must not be negative")
	}
	if c.MaxConcurrentCalls < 1 {
		problems = append(problems, "max_concurrent_calls must be at least 1")
	}
	if c.MaxRetryAttempts < 1 {
		problems = append(problems, "max_retry_attempts must be at least 1")
	}
	if c.BackoffBaseMs < 0 || c.MaxBackoffMs < 0 {
		problems = append(problems, "backoff values must not be negative")
	}
	if c.RequestsPerSecond < 0 {
		problems = append(problems, "requests_per_second must not be negative")
	}
	if c.RetryFailedAfter < 0 {
		problems = append(problems, "retry_failed_after must not be negative")
	}
	for _, m := range []struct{ name, policy string }{
		{"playlists", c.Mirror.Playlists},
		{"favorites", c.Mirror.Favorites},
		{"albums", c.Mirror.Albums},
		{"artists", c.Mirror.Artists},
	} {
		if m.policy != "mirror" && m.policy != "additive" {
			problems = append(problems, fmt.Sprintf("mirror.%s must be \"mirror\" or \"additive\", got %q", m.name, m.policy))
		}
	}
	for i, m := range c.Playlists {
		if m.SourceID == "" {
			problems = append(problems, fmt.Sprintf("playlists[%d].source_id is required", i))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if _, err := toml.Decode(string(data), config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes config to path as TOML, replacing the file atomically.
func SaveConfig(path string, config *Config) error {
	if config == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.toml")
	if err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to save config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}
