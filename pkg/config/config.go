package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all controller configuration. Precedence, lowest to
// highest: built-in defaults, YAML file, environment variables
// (CTOS_*), command-line flags.
type Config struct {
	// InstanceName is the single managed instance
	InstanceName string `yaml:"instance_name"`

	// DataDir holds the BoltDB state database
	DataDir string `yaml:"data_dir"`

	// AuditLogPath is the append-only audit trail file
	AuditLogPath string `yaml:"audit_log"`

	Health  HealthConfig  `yaml:"health"`
	Runtime RuntimeConfig `yaml:"runtime"`

	// MaxRollbackAttempts bounds automatic rollback (default 1)
	MaxRollbackAttempts int `yaml:"max_rollback_attempts"`

	// NATSURL enables event mirroring when non-empty
	NATSURL string `yaml:"nats_url"`

	// MetricsAddr enables the Prometheus scrape listener when non-empty
	MetricsAddr string `yaml:"metrics_addr"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// HealthConfig describes the instance's health surface. The protocol and
// target are configuration, not controller logic.
type HealthConfig struct {
	// Type is "http" or "tcp"
	Type string `yaml:"type"`

	// Target is the URL (http) or host:port (tcp) to check
	Target string `yaml:"target"`

	// Timeout bounds the whole verification window
	Timeout time.Duration `yaml:"timeout"`

	// PollInterval is the delay between observations
	PollInterval time.Duration `yaml:"poll_interval"`
}

// UnmarshalYAML decodes durations from strings ("30s", "500ms"), which
// yaml.v3 does not do for time.Duration on its own. Keys absent from the
// file keep whatever value the config already holds.
func (h *HealthConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Type         string `yaml:"type"`
		Target       string `yaml:"target"`
		Timeout      string `yaml:"timeout"`
		PollInterval string `yaml:"poll_interval"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.Type != "" {
		h.Type = raw.Type
	}
	if raw.Target != "" {
		h.Target = raw.Target
	}
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("invalid health timeout %q: %w", raw.Timeout, err)
		}
		h.Timeout = d
	}
	if raw.PollInterval != "" {
		d, err := time.ParseDuration(raw.PollInterval)
		if err != nil {
			return fmt.Errorf("invalid health poll_interval %q: %w", raw.PollInterval, err)
		}
		h.PollInterval = d
	}
	return nil
}

// RuntimeConfig locates the container runtime
type RuntimeConfig struct {
	Socket    string `yaml:"socket"`
	Namespace string `yaml:"namespace"`
}

// Default returns the built-in defaults
func Default() Config {
	return Config{
		InstanceName: "ctos",
		DataDir:      "/var/lib/ctos",
		AuditLogPath: "/var/lib/ctos/audit.log",
		Health: HealthConfig{
			Type:         "http",
			Target:       "http://127.0.0.1:8080/health",
			Timeout:      60 * time.Second,
			PollInterval: 2 * time.Second,
		},
		Runtime: RuntimeConfig{
			Socket:    "/run/containerd/containerd.sock",
			Namespace: "ctos",
		},
		MaxRollbackAttempts: 1,
		LogLevel:            "info",
	}
}

// Load builds the effective configuration: defaults, then the YAML file
// at path (skipped when path is empty and no default file exists), then
// CTOS_* environment variables. A .env file in the working directory is
// loaded first so containerized and development runs configure the same
// way.
func Load(path string) (Config, error) {
	// Missing .env is the normal case
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		if _, err := os.Stat("ctos.yaml"); err == nil {
			path = "ctos.yaml"
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.InstanceName == "" {
		return fmt.Errorf("instance_name must not be empty")
	}
	switch c.Health.Type {
	case "http", "tcp":
	default:
		return fmt.Errorf("unsupported health check type %q", c.Health.Type)
	}
	if c.Health.Timeout <= 0 {
		return fmt.Errorf("health timeout must be positive")
	}
	if c.Health.PollInterval <= 0 {
		return fmt.Errorf("health poll_interval must be positive")
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	setString("CTOS_INSTANCE", &cfg.InstanceName)
	setString("CTOS_DATA_DIR", &cfg.DataDir)
	setString("CTOS_AUDIT_LOG", &cfg.AuditLogPath)
	setString("CTOS_HEALTH_TYPE", &cfg.Health.Type)
	setString("CTOS_HEALTH_TARGET", &cfg.Health.Target)
	setDuration("CTOS_HEALTH_TIMEOUT", &cfg.Health.Timeout)
	setDuration("CTOS_POLL_INTERVAL", &cfg.Health.PollInterval)
	setString("CTOS_CONTAINERD_SOCKET", &cfg.Runtime.Socket)
	setString("CTOS_CONTAINERD_NAMESPACE", &cfg.Runtime.Namespace)
	setString("CTOS_NATS_URL", &cfg.NATSURL)
	setString("CTOS_METRICS_ADDR", &cfg.MetricsAddr)
	setString("CTOS_LOG_LEVEL", &cfg.LogLevel)

	if v := os.Getenv("CTOS_MAX_ROLLBACK_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxRollbackAttempts = n
		}
	}
	if v := os.Getenv("CTOS_LOG_JSON"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LogJSON = b
		}
	}
}
