// Package config provides configuration management for the application.
// It supports YAML configuration files with environment variable overrides.
package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/reviewgate/reviewgate/internal/database"
	"github.com/reviewgate/reviewgate/pkg/logger"
	"github.com/reviewgate/reviewgate/pkg/telemetry"
)

// Default configuration values
const (
	defaultHost            = "0.0.0.0"
	defaultPort            = 8080
	defaultQueueURL        = "db://jobs"
	defaultTenantSlug      = "default"
	defaultConcurrency     = 2
	defaultLockDurationMS  = 300000
	defaultStalledMS       = 30000
	defaultMaxStalledCount = 1
	defaultMetricsPort     = 9090
)

// ConfigPath is the default path for the configuration file. The file is
// optional; environment variables alone are enough to run.
const ConfigPath = "config/reviewgate.yaml"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Queue     QueueConfig      `yaml:"queue"`
	Host      HostConfig       `yaml:"host"`
	AI        AIConfig         `yaml:"ai"`
	Worker    WorkerConfig     `yaml:"worker"`
	Tenant    TenantConfig     `yaml:"tenant"`
	Logging   logger.Config    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	Debug       bool     `yaml:"debug"`
	CORSOrigins []string `yaml:"cors_origins"` // Allowed CORS origins whitelist
	// PublicURL is the externally reachable base URL, used in operator-facing
	// output. Optional.
	PublicURL string `yaml:"public_url"`
	// APIToken protects the control API. Empty disables the check.
	APIToken string `yaml:"api_token"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	// URL accepts sqlite://<path> or a bare filesystem path.
	URL string `yaml:"url"`
}

// QueueConfig holds job queue configuration
type QueueConfig struct {
	// URL selects the queue backend. Only the db:// scheme is supported by
	// this build; the queue shares the primary database.
	URL string `yaml:"url"`
}

// HostConfig holds merge request host (GitLab) configuration
type HostConfig struct {
	// BaseURL of the GitLab instance. Empty means gitlab.com.
	BaseURL string `yaml:"base_url"`
	// Token is the API access token used for MR metadata, diffs, and notes.
	Token string `yaml:"token"`
	// WebhookSecret is provisioned onto the default tenant at startup.
	WebhookSecret string `yaml:"webhook_secret"`
}

// AIConfig holds the process-level AI adapter configuration. Per-tenant
// enablement and bounds live in the database.
type AIConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Timeout int    `yaml:"timeout"` // seconds
}

// WorkerConfig holds the review worker pool configuration
type WorkerConfig struct {
	Concurrency       int `yaml:"concurrency"`
	LockDurationMS    int `yaml:"lock_duration_ms"`
	StalledIntervalMS int `yaml:"stalled_interval_ms"`
	MaxStalledCount   int `yaml:"max_stalled_count"`
}

// TenantConfig holds the default tenant bootstrap configuration
type TenantConfig struct {
	// DefaultSlug is the tenant created on startup when none exists.
	DefaultSlug string `yaml:"default_slug"`
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:  defaultHost,
			Port:  defaultPort,
			Debug: false,
			CORSOrigins: []string{
				"http://localhost:8080",
			},
		},
		Database: DatabaseConfig{
			URL: database.DefaultDatabaseURL,
		},
		Queue: QueueConfig{
			URL: defaultQueueURL,
		},
		Host: HostConfig{},
		AI: AIConfig{
			Enabled: false,
		},
		Worker: WorkerConfig{
			Concurrency:       defaultConcurrency,
			LockDurationMS:    defaultLockDurationMS,
			StalledIntervalMS: defaultStalledMS,
			MaxStalledCount:   defaultMaxStalledCount,
		},
		Tenant: TenantConfig{
			DefaultSlug: defaultTenantSlug,
		},
		Logging: logger.Config{
			Level:      "info",
			Format:     "text",
			File:       "",
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 5,
			Compress:   false,
		},
		Telemetry: telemetry.Config{
			Enabled:      false,
			OTLPInsecure: true,
			MetricsPort:  defaultMetricsPort,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file when present,
// then environment variable overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			expanded := expandEnvVars(string(data))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SERVER_DEBUG"); v != "" {
		cfg.Server.Debug = parseBool(v)
	}
	if v := os.Getenv("PUBLIC_URL"); v != "" {
		cfg.Server.PublicURL = v
	}
	if v := os.Getenv("API_TOKEN"); v != "" {
		cfg.Server.APIToken = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitAndTrim(v)
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("QUEUE_URL"); v != "" {
		cfg.Queue.URL = v
	}

	if v := os.Getenv("HOST_BASE_URL"); v != "" {
		cfg.Host.BaseURL = v
	}
	if v := os.Getenv("HOST_TOKEN"); v != "" {
		cfg.Host.Token = v
	}
	if v := os.Getenv("HOST_WEBHOOK_SECRET"); v != "" {
		cfg.Host.WebhookSecret = v
	}

	if v := os.Getenv("AI_ENABLED"); v != "" {
		cfg.AI.Enabled = parseBool(v)
	}
	if v := os.Getenv("AI_BASE_URL"); v != "" {
		cfg.AI.BaseURL = v
	}
	if v := os.Getenv("AI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("AI_MODEL"); v != "" {
		cfg.AI.Model = v
	}

	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.Concurrency = n
		}
	}
	if v := os.Getenv("WORKER_LOCK_DURATION_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.LockDurationMS = n
		}
	}
	if v := os.Getenv("WORKER_STALLED_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.StalledIntervalMS = n
		}
	}
	if v := os.Getenv("WORKER_MAX_STALLED_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.MaxStalledCount = n
		}
	}

	if v := os.Getenv("DEFAULT_TENANT_SLUG"); v != "" {
		cfg.Tenant.DefaultSlug = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}

	if v := os.Getenv("TELEMETRY_ENABLED"); v != "" {
		cfg.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv("OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := os.Getenv("OTLP_INSECURE"); v != "" {
		cfg.Telemetry.OTLPInsecure = parseBool(v)
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Telemetry.MetricsPort = port
		}
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable values.
// Only the ${VAR_NAME} form is matched; bare $VAR stays untouched.
func expandEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1]

		// Support default values: ${VAR_NAME:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]

		if value := os.Getenv(varName); value != "" {
			return value
		}
		if len(parts) > 1 {
			return parts[1]
		}
		return ""
	})
}

// parseBool parses a boolean string value
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Address returns the server address string
func (c *ServerConfig) Address() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// LockDuration returns the worker lease duration.
func (c *WorkerConfig) LockDuration() time.Duration {
	return time.Duration(c.LockDurationMS) * time.Millisecond
}

// StalledInterval returns the stalled-job sweep interval.
func (c *WorkerConfig) StalledInterval() time.Duration {
	return time.Duration(c.StalledIntervalMS) * time.Millisecond
}

// AITimeout returns the AI request timeout.
func (c *AIConfig) AITimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}
