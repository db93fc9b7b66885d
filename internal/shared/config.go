package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Project  ProjectConfig  `toml:"project"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Catalog  CatalogConfig  `toml:"catalog"`
	Storage  StorageConfig  `toml:"storage"`
	Auth     AuthConfig     `toml:"auth"`
	Database DatabaseConfig `toml:"database"`
	Session  SessionConfig  `toml:"session"`
	Log      LogConfig      `toml:"log"`
}

// ProjectConfig identifies the backend project every request is scoped to.
type ProjectConfig struct {
	APIKey string `toml:"api_key"`
}

// GatewayConfig contains the remote generation gateway settings.
type GatewayConfig struct {
	BaseURL         string      `toml:"base_url"`
	TimeoutSeconds  int         `toml:"timeout_seconds"`
	RequestsPerSec  float64     `toml:"requests_per_second"`
	PollInitialMS   int         `toml:"poll_initial_ms"`
	PollMaxMS       int         `toml:"poll_max_ms"`
	PollMultiplier  float64     `toml:"poll_multiplier"`
	PollMaxAttempts int         `toml:"poll_max_attempts"`
	SyncIntervalSec int         `toml:"sync_interval_seconds"`
	Defaults        GenDefaults `toml:"defaults"`
}

// GenDefaults are applied to generation requests that leave a field unset.
type GenDefaults struct {
	Resolution  string `toml:"resolution"`
	AspectRatio string `toml:"aspect_ratio"`
	Duration    int    `toml:"duration"`
	FPS         int    `toml:"fps"`
}

// CatalogConfig contains the video catalog REST endpoint.
type CatalogConfig struct {
	BaseURL string `toml:"base_url"`
}

// StorageConfig selects where uploaded video and cover files go.
//
// Backend is "http" (remote object storage) or "local" (a directory, for development).
type StorageConfig struct {
	Backend    string `toml:"backend"`
	BaseURL    string `toml:"base_url"`
	Bucket     string `toml:"bucket"`
	LocalPath  string `toml:"local_path"`
	PublicBase string `toml:"public_base_url"`
}

// AuthConfig contains the OAuth2 client used to sign users in.
type AuthConfig struct {
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	AuthURL      string   `toml:"auth_url"`
	TokenURL     string   `toml:"token_url"`
	RedirectURI  string   `toml:"redirect_uri"`
	Scopes       []string `toml:"scopes"`
	TokenPath    string   `toml:"token_path"`
}

// DatabaseConfig contains feed cache connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// SessionConfig points at the client session file mirroring the task registry.
type SessionConfig struct {
	Path string `toml:"path"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
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

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnv loads a dotenv file when present and applies VGEN_* overrides to the config.
//
// A missing dotenv file is not an error.
func LoadEnv(config *Config, paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}

	overrides := map[string]*string{
		"VGEN_API_KEY":       &config.Project.APIKey,
		"VGEN_GATEWAY_URL":   &config.Gateway.BaseURL,
		"VGEN_CATALOG_URL":   &config.Catalog.BaseURL,
		"VGEN_STORAGE_URL":   &config.Storage.BaseURL,
		"VGEN_CLIENT_ID":     &config.Auth.ClientID,
		"VGEN_CLIENT_SECRET": &config.Auth.ClientSecret,
	}
	for key, target := range overrides {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}
	return nil
}

// Validate reports configuration the client cannot run with.
func (c *Config) Validate() error {
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("%w: gateway.base_url is required", ErrInvalidConfig)
	}
	switch c.Storage.Backend {
	case "http", "local":
	default:
		return fmt.Errorf("%w: storage.backend must be \"http\" or \"local\", got %q", ErrInvalidConfig, c.Storage.Backend)
	}
	if c.Gateway.PollMultiplier != 0 && c.Gateway.PollMultiplier < 1 {
		return fmt.Errorf("%w: gateway.poll_multiplier must be >= 1", ErrInvalidConfig)
	}
	if c.Gateway.PollMaxMS != 0 && c.Gateway.PollMaxMS < c.Gateway.PollInitialMS {
		return fmt.Errorf("%w: gateway.poll_max_ms must be >= poll_initial_ms", ErrInvalidConfig)
	}
	return nil
}

// HTTPTimeout returns the gateway timeout as a duration.
func (g GatewayConfig) HTTPTimeout() time.Duration {
	if g.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(g.TimeoutSeconds) * time.Second
}
