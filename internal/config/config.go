// Package config builds the server configuration once at startup:
// defaults, then an optional YAML file, then CHOREPOINTS_* environment
// variables (a .env file is loaded first and never overrides the real
// environment).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const envPrefix = "CHOREPOINTS"

type Config struct {
	Port      int    `yaml:"port"      envconfig:"PORT"`
	DBPath    string `yaml:"dbPath"    envconfig:"DB_PATH"`
	LogLevel  string `yaml:"logLevel"  envconfig:"LOG_LEVEL"`
	LogFormat string `yaml:"logFormat" envconfig:"LOG_FORMAT"`

	// OpTimeout bounds every request's persistence work.
	OpTimeout       time.Duration `yaml:"opTimeout"       envconfig:"OP_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" envconfig:"SHUTDOWN_TIMEOUT"`
	SessionTTL      time.Duration `yaml:"sessionTTL"      envconfig:"SESSION_TTL"`

	SpawnSchedule   string `yaml:"spawnSchedule"   envconfig:"SPAWN_SCHEDULE"`
	CleanupSchedule string `yaml:"cleanupSchedule" envconfig:"CLEANUP_SCHEDULE"`

	MetricsEnabled bool `yaml:"metricsEnabled" envconfig:"METRICS_ENABLED"`
	Tracing        bool `yaml:"tracing"        envconfig:"TRACING"`

	LoginRatePerMinute float64 `yaml:"loginRatePerMinute" envconfig:"LOGIN_RATE_PER_MINUTE"`
	LoginBurst         int     `yaml:"loginBurst"         envconfig:"LOGIN_BURST"`

	// TrustProxyHeaders keys the login limiter on CF-Connecting-IP and
	// X-Forwarded-For. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool `yaml:"trustProxyHeaders" envconfig:"TRUST_PROXY_HEADERS"`
}

func Default() *Config {
	return &Config{
		Port:               8080,
		DBPath:             "chorepoints.db",
		LogLevel:           "info",
		LogFormat:          "text",
		OpTimeout:          5 * time.Second,
		ShutdownTimeout:    10 * time.Second,
		SessionTTL:         30 * 24 * time.Hour,
		SpawnSchedule:      "*/15 * * * *",
		CleanupSchedule:    "@daily",
		MetricsEnabled:     true,
		LoginRatePerMinute: 10,
		LoginBurst:         5,
	}
}

// Load reads configFile (optional) and envFile (optional, usually ".env")
// over the defaults and validates the result.
func Load(configFile, envFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("dbPath is required"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logFormat %q must be text or json", c.LogFormat))
	}
	if c.OpTimeout <= 0 {
		errs = append(errs, errors.New("opTimeout must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdownTimeout must be positive"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("sessionTTL must be positive"))
	}
	for name, spec := range map[string]string{"spawnSchedule": c.SpawnSchedule, "cleanupSchedule": c.CleanupSchedule} {
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if c.LoginRatePerMinute <= 0 || c.LoginBurst < 1 {
		errs = append(errs, errors.New("login rate and burst must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
