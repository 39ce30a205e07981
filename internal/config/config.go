package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"gatewaycred/internal/constants"
)

// SafetySetting mirrors one entry of the upstream generationConfig.safetySettings list.
type SafetySetting struct {
	Category  string `toml:"category" json:"category"`
	Threshold string `toml:"threshold" json:"threshold"`
}

// Security groups ambient process-level toggles, named the way the teacher's
// config surface names them.
type Security struct {
	Debug   bool   `toml:"debug"`
	LogFile string `toml:"log_file"`
}

// Retry429 groups the 429 retry policy.
type Retry429 struct {
	Enabled     bool    `toml:"enabled"`
	MaxRetries  int     `toml:"max_retries"`
	IntervalSec float64 `toml:"interval"`
}

// AutoBan groups the credential auto-ban policy.
type AutoBan struct {
	Enabled    bool  `toml:"enabled"`
	ErrorCodes []int `toml:"error_codes"`
}

// Config is the full runtime configuration, loaded from config.toml and
// overridable by environment variables prefixed GATEWAY_.
type Config struct {
	ListenAddr      string `toml:"listen_addr"`
	CredentialsDir  string `toml:"credentials_dir"`
	BaseEndpoint    string `toml:"base_endpoint"`
	KVBackend       string `toml:"kv_backend"` // "file" | "redis"
	RedisAddr       string `toml:"redis_addr"`
	BackupEnabled   bool   `toml:"backup_enabled"`
	BackupRepoDir   string `toml:"backup_repo_dir"`

	Security Security `toml:"security"`
	Retry429 Retry429 `toml:"retry_429"`
	AutoBan  AutoBan  `toml:"auto_ban"`

	PublicAPIModels       []string        `toml:"public_api_models"`
	DefaultSafetySettings []SafetySetting `toml:"default_safety_settings"`
}

// Default returns a config populated with the same defaults the source
// system ships with, before file/env overrides are applied.
func Default() *Config {
	return &Config{
		ListenAddr:     ":8080",
		CredentialsDir: "./credentials",
		BaseEndpoint:   "https://cloudcode-pa.googleapis.com",
		KVBackend:      "file",
		BackupRepoDir:  "./credentials",
		Retry429: Retry429{
			Enabled:     true,
			MaxRetries:  constants.DefaultMaxRetries,
			IntervalSec: constants.DefaultRetryInterval.Seconds(),
		},
		AutoBan: AutoBan{
			Enabled:    true,
			ErrorCodes: []int{400, 401, 403, 404},
		},
		PublicAPIModels: []string{},
	}
}

// Load reads a TOML file (if present) over the defaults, then applies
// environment variable overrides. A missing file is not an error: the
// process runs on defaults plus whatever env vars are set.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("GATEWAY_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("GATEWAY_CREDENTIALS_DIR"); ok {
		cfg.CredentialsDir = v
	}
	if v, ok := os.LookupEnv("GATEWAY_BASE_ENDPOINT"); ok {
		cfg.BaseEndpoint = v
	}
	if v, ok := os.LookupEnv("GATEWAY_DEBUG"); ok {
		cfg.Security.Debug = truthy(v)
	}
	if v, ok := os.LookupEnv("GATEWAY_LOG_FILE"); ok {
		cfg.Security.LogFile = v
	}
	if v, ok := os.LookupEnv("GATEWAY_KV_BACKEND"); ok {
		cfg.KVBackend = v
	}
	if v, ok := os.LookupEnv("GATEWAY_REDIS_ADDR"); ok {
		cfg.RedisAddr = v
	}
	if v, ok := os.LookupEnv("GATEWAY_RETRY_429_MAX_RETRIES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retry429.MaxRetries = n
		}
	}
	if v, ok := os.LookupEnv("GATEWAY_AUTO_BAN_ENABLED"); ok {
		cfg.AutoBan.Enabled = truthy(v)
	}
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// IsAutoBanStatus reports whether status is in the configured auto-ban set.
func (c *Config) IsAutoBanStatus(status int) bool {
	if !c.AutoBan.Enabled {
		return false
	}
	for _, code := range c.AutoBan.ErrorCodes {
		if code == status {
			return true
		}
	}
	return false
}

// IsPublicModel reports whether model uses the public (stripped-down) request shape.
func (c *Config) IsPublicModel(model string) bool {
	for _, m := range c.PublicAPIModels {
		if m == model {
			return true
		}
	}
	return false
}
