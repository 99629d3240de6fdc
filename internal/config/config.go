package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds the tokenwatch configuration. Immutable after Load.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http" toml:"http"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Notify    NotifyConfig    `yaml:"notify" toml:"notify"`
	Reporting ReportingConfig `yaml:"reporting" toml:"reporting"`

	// AdminIDs is ordered: first to last is the notification priority.
	AdminIDs         []string          `yaml:"admin_ids" toml:"admin_ids"`
	MaxTokens        MaxTokensConfig   `yaml:"max_tokens" toml:"max_tokens"`
	UserLimits       map[string]uint64 `yaml:"user_limits" toml:"user_limits"`
	AnomalyThreshold uint64            `yaml:"anomaly_threshold" toml:"anomaly_threshold"` // 0 disables
	CostPerToken     float64           `yaml:"cost_per_token" toml:"cost_per_token"`       // 0 disables cost display
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys" toml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port" toml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec" toml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec" toml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec" toml:"shutdown_timeout_sec"`
}

// Storage drivers.
const (
	DriverFile   = "file"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// StorageConfig selects and configures the snapshot backend.
type StorageConfig struct {
	Driver           string   `yaml:"driver" toml:"driver"` // file, redis, sqlite (default: file)
	Path             string   `yaml:"path" toml:"path"`     // file and sqlite; a .zst suffix compresses file snapshots
	Addrs            []string `yaml:"addrs" toml:"addrs"`
	Password         string   `yaml:"password" toml:"password"`
	DB               int      `yaml:"db" toml:"db"`
	Key              string   `yaml:"key" toml:"key"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec" toml:"readiness_timeout_sec"`
}

// NotifyConfig holds alert delivery settings. An empty WebhookURL logs alerts instead.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url" toml:"webhook_url"`
	Token      string `yaml:"token" toml:"token"`
	TimeoutSec int    `yaml:"timeout_sec" toml:"timeout_sec"`
}

// ReportingConfig holds reporting settings.
type ReportingConfig struct {
	OpenSeries bool `yaml:"open_series" toml:"open_series"` // series endpoint without admin identity
}

// MaxTokensConfig holds per-scope ceilings. 0 disables the overflow check for that scope.
type MaxTokensConfig struct {
	Group   uint64 `yaml:"group" toml:"group"`
	Private uint64 `yaml:"private" toml:"private"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path. Files ending in .toml
// are decoded as TOML, everything else as YAML.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if strings.EqualFold(filepath.Ext(configPath), ".toml") {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverFile
	}
	if c.Storage.Path == "" {
		switch c.Storage.Driver {
		case DriverFile:
			c.Storage.Path = filepath.Join("data", "usage.json")
		case DriverSQLite:
			c.Storage.Path = filepath.Join("data", "usage.db")
		}
	}
	if c.Storage.ReadinessTimeout <= 0 {
		c.Storage.ReadinessTimeout = 10
	}
	if c.Notify.TimeoutSec <= 0 {
		c.Notify.TimeoutSec = 5
	}
	if c.UserLimits == nil {
		c.UserLimits = map[string]uint64{}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Storage.Driver {
	case DriverFile, DriverSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for driver %q", c.Storage.Driver)
		}
	case DriverRedis:
		if len(c.Storage.Addrs) == 0 {
			return fmt.Errorf("storage.addrs is required for driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("storage.driver must be \"file\", \"redis\" or \"sqlite\", got %q", c.Storage.Driver)
	}
	if c.CostPerToken < 0 {
		return fmt.Errorf("cost_per_token must not be negative, got %v", c.CostPerToken)
	}
	for i, id := range c.AdminIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("admin_ids[%d] is empty", i)
		}
	}
	return nil
}

// IsAdmin reports whether id is in admin_ids.
func (c *Config) IsAdmin(id string) bool {
	for _, a := range c.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
