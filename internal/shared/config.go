package shared

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Tidal    TidalConfig    `toml:"tidal"`
	Session  SessionConfig  `toml:"session"`
	Cache    CacheConfig    `toml:"cache"`
	Download DownloadConfig `toml:"download"`
	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`
}

// TidalConfig contains API credentials and endpoint overrides.
type TidalConfig struct {
	ClientID          string   `toml:"client_id"`
	ClientSecret      string   `toml:"client_secret"`
	Scopes            []string `toml:"scopes"`
	DeviceAuthURL     string   `toml:"device_auth_url"`
	TokenURL          string   `toml:"token_url"`
	APIURL            string   `toml:"api_url"`
	AudioQuality      string   `toml:"audio_quality"`
	CountryCode       string   `toml:"country_code"`
	UserAgent         string   `toml:"user_agent"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	OpenBrowser       bool     `toml:"open_browser"`
}

// SessionConfig points at the persisted credential file.
type SessionConfig struct {
	CredentialPath string `toml:"credential_path"`
}

// CacheConfig contains audio cache settings. Capacity is a human readable size ("512 MB", "2GiB").
type CacheConfig struct {
	Dir       string `toml:"dir"`
	Capacity  string `toml:"capacity"`
	Extension string `toml:"extension"`
}

// DownloadConfig controls how stream bytes are fetched before insertion into the cache.
type DownloadConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Timeout           string  `toml:"timeout"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LogConfig sets the logger level.
type LogConfig struct {
	Level string `toml:"level"`
}

// CapacityBytes parses the configured cache capacity.
func (c CacheConfig) CapacityBytes() (int64, error) {
	if c.Capacity == "" {
		return 0, fmt.Errorf("%w: cache capacity is empty", ErrInvalidConfig)
	}
	n, err := humanize.ParseBytes(c.Capacity)
	if err != nil {
		return 0, fmt.Errorf("%w: cache capacity %q: %v", ErrInvalidConfig, c.Capacity, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: cache capacity must be positive", ErrInvalidConfig)
	}
	return int64(n), nil
}

// TimeoutDuration parses the download timeout, defaulting to two minutes.
func (d DownloadConfig) TimeoutDuration() time.Duration {
	if d.Timeout == "" {
		return 2 * time.Minute
	}
	v, err := time.ParseDuration(d.Timeout)
	if err != nil || v <= 0 {
		return 2 * time.Minute
	}
	return v
}

// Validate checks the fields the session and cache cannot run without.
func (c *Config) Validate() error {
	if c.Tidal.ClientID == "" || c.Tidal.ClientSecret == "" {
		return fmt.Errorf("%w: tidal client_id and client_secret must be set", ErrMissingCredentials)
	}
	if c.Session.CredentialPath == "" {
		return fmt.Errorf("%w: session credential_path must be set", ErrInvalidConfig)
	}
	if c.Cache.Dir == "" {
		return fmt.Errorf("%w: cache dir must be set", ErrInvalidConfig)
	}
	if _, err := c.Cache.CapacityBytes(); err != nil {
		return err
	}
	return nil
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
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
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

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig encodes the config as TOML and writes it to path.
func SaveConfig(path string, config *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
