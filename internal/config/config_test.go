package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() Config {
	cfg := Config{HTTP: HTTPConfig{Port: 8080}}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Driver = "mongo"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown storage driver")
	}
	expected := `storage.driver must be "file", "redis" or "sqlite", got "mongo"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_MissingRedisAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Driver = DriverRedis

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing redis addrs")
	}
}

func TestValidate_NegativeCost(t *testing.T) {
	cfg := validConfig()
	cfg.CostPerToken = -0.1

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative cost")
	}
}

func TestValidate_EmptyAdminID(t *testing.T) {
	cfg := validConfig()
	cfg.AdminIDs = []string{"1", " "}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for blank admin id")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 10 {
		t.Errorf("expected WriteTimeoutSec=10, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Storage.Driver != DriverFile {
		t.Errorf("expected Driver=file, got %q", cfg.Storage.Driver)
	}
	if cfg.Storage.Path != filepath.Join("data", "usage.json") {
		t.Errorf("unexpected default path %q", cfg.Storage.Path)
	}
	if cfg.Storage.ReadinessTimeout != 10 {
		t.Errorf("expected ReadinessTimeout=10, got %d", cfg.Storage.ReadinessTimeout)
	}
	if cfg.Notify.TimeoutSec != 5 {
		t.Errorf("expected Notify.TimeoutSec=5, got %d", cfg.Notify.TimeoutSec)
	}
	if cfg.UserLimits == nil {
		t.Error("expected UserLimits to be allocated")
	}
}

func TestApplyDefaults_SQLitePath(t *testing.T) {
	cfg := Config{Storage: StorageConfig{Driver: DriverSQLite}}
	cfg.ApplyDefaults()

	if cfg.Storage.Path != filepath.Join("data", "usage.db") {
		t.Errorf("unexpected sqlite path %q", cfg.Storage.Path)
	}
}

func TestLoadFile_YAML(t *testing.T) {
	t.Setenv("TW_TEST_PORT", "9090")
	path := filepath.Join(t.TempDir(), "test.yaml")
	content := `
http:
  port: ${TW_TEST_PORT}
storage:
  driver: ${TW_TEST_DRIVER:-sqlite}
admin_ids: [10001, "alice"]
max_tokens:
  group: 1000
  private: 150
user_limits:
  u1: 100
anomaly_threshold: 5000
cost_per_token: 0.002
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("port = %d", cfg.HTTP.Port)
	}
	if cfg.Storage.Driver != DriverSQLite {
		t.Errorf("driver = %q", cfg.Storage.Driver)
	}
	if len(cfg.AdminIDs) != 2 || cfg.AdminIDs[0] != "10001" || cfg.AdminIDs[1] != "alice" {
		t.Errorf("admin_ids = %v", cfg.AdminIDs)
	}
	if cfg.MaxTokens.Group != 1000 || cfg.MaxTokens.Private != 150 {
		t.Errorf("max_tokens = %+v", cfg.MaxTokens)
	}
	if cfg.UserLimits["u1"] != 100 || cfg.AnomalyThreshold != 5000 || cfg.CostPerToken != 0.002 {
		t.Errorf("limits = %v %d %v", cfg.UserLimits, cfg.AnomalyThreshold, cfg.CostPerToken)
	}
	if !cfg.IsAdmin("alice") || cfg.IsAdmin("mallory") {
		t.Error("IsAdmin mismatch")
	}
}

func TestLoadFile_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.toml")
	content := `
admin_ids = ["42"]
anomaly_threshold = 10

[http]
port = 8081

[storage]
driver = "redis"
addrs = ["localhost:6379"]

[max_tokens]
private = 150

[reporting]
open_series = true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.HTTP.Port != 8081 || cfg.Storage.Driver != DriverRedis || cfg.Storage.Addrs[0] != "localhost:6379" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.MaxTokens.Private != 150 || !cfg.Reporting.OpenSeries || cfg.AnomalyThreshold != 10 {
		t.Errorf("unexpected limits: %+v", cfg)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("http:\n  port: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected read error")
	}
}

func TestLoad_LocalConfig(t *testing.T) {
	cfg, err := Load("local")
	if err != nil {
		t.Fatalf("Load(local): %v", err)
	}
	if cfg.HTTP.Port <= 0 {
		t.Errorf("unexpected port %d", cfg.HTTP.Port)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TW_SET", "value")
	got := string(expandEnvVars([]byte("a=${TW_SET} b=${TW_UNSET:-fallback} c=${TW_UNSET}")))
	if got != "a=value b=fallback c=" {
		t.Errorf("expandEnvVars = %q", got)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ENV", "")
	if GetEnv() != "local" {
		t.Errorf("expected local, got %q", GetEnv())
	}
	t.Setenv("ENV", "prod")
	if GetEnv() != "prod" {
		t.Errorf("expected prod, got %q", GetEnv())
	}
}
