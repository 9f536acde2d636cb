// Package config loads taskflow settings. Sources are layered, later ones
// winning: built-in defaults, an optional config file (yaml, toml or json),
// TASKFLOW_* environment variables (dots become underscores, e.g.
// TASKFLOW_DATABASE_DSN), and finally explicitly set command-line flags.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marcus/taskflow/internal/events"
	"github.com/marcus/taskflow/internal/workflow"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "TASKFLOW"

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Issues    IssuesConfig    `mapstructure:"issues"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	BaseURL         string        `mapstructure:"base_url"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`

	// CORSAllowedOrigins lists browser origins allowed to call the API;
	// empty disables CORS headers.
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
}

// DatabaseConfig selects and tunes the store.
type DatabaseConfig struct {
	Driver         string        `mapstructure:"driver"` // sqlite, sqlite3, postgres, mysql
	DSN            string        `mapstructure:"dsn"`
	MaxOpenConns   int           `mapstructure:"max_open_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Format string `mapstructure:"format"` // "json" (default) or "text"
	Level  string `mapstructure:"level"`  // "debug", "info" (default), "warn", "error"
}

// RateLimitConfig caps requests per minute.
type RateLimitConfig struct {
	Read  int `mapstructure:"read"`  // GET requests per caller
	Write int `mapstructure:"write"` // mutating requests per caller
}

// IssuesConfig tunes issue workflows.
type IssuesConfig struct {
	SubtaskDeletePolicy string `mapstructure:"subtask_delete_policy"` // reject, cascade, orphan
}

// TelemetryConfig enables OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Stdout       bool   `mapstructure:"stdout"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

// WebhookConfig posts change events to an external endpoint. An empty URL
// disables delivery.
type WebhookConfig struct {
	URL       string        `mapstructure:"url"`
	Secret    string        `mapstructure:"secret"`
	Entities  []string      `mapstructure:"entities"` // empty or "*" means all
	QueueSize int           `mapstructure:"queue_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

var defaults = map[string]any{
	"server.listen_addr":           ":8080",
	"server.base_url":              "http://localhost:8080",
	"server.shutdown_timeout":      "30s",
	"server.max_body_bytes":        int64(1 << 20),
	"server.cors_allowed_origins":  []string{},
	"database.driver":              "sqlite",
	"database.dsn":                 "./data/taskflow.db",
	"database.max_open_conns":      10,
	"database.connect_timeout":     "30s",
	"log.format":                   "json",
	"log.level":                    "info",
	"ratelimit.read":               600,
	"ratelimit.write":              120,
	"issues.subtask_delete_policy": string(workflow.DeleteReject),
	"telemetry.enabled":            false,
	"telemetry.stdout":             false,
	"telemetry.otlp_endpoint":      "",
	"telemetry.service_name":       "taskflow",
	"webhook.url":                  "",
	"webhook.secret":               "",
	"webhook.entities":             []string{},
	"webhook.queue_size":           1000,
	"webhook.timeout":              "10s",
}

// FlagKeys maps command-line flag names to configuration keys. Load binds
// every one of these present in the flag set it is given.
var FlagKeys = map[string]string{
	"listen":     "server.listen_addr",
	"base-url":   "server.base_url",
	"db-driver":  "database.driver",
	"db-dsn":     "database.dsn",
	"log-format": "log.format",
	"log-level":  "log.level",
}

// Load builds a Config from defaults, the file at path (skipped when empty),
// the environment and flags.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag --%s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Database.Driver == "" {
		return fmt.Errorf("database.driver is required")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log.format %q (valid: json, text)", c.Log.Format)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.RateLimit.Read <= 0 || c.RateLimit.Write <= 0 {
		return fmt.Errorf("ratelimit.read and ratelimit.write must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}
	if _, err := workflow.ParseDeletePolicy(c.Issues.SubtaskDeletePolicy); err != nil {
		return err
	}
	if c.Webhook.URL != "" {
		u, err := url.Parse(c.Webhook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid webhook.url %q", c.Webhook.URL)
		}
		if c.Webhook.QueueSize <= 0 {
			return fmt.Errorf("webhook.queue_size must be positive")
		}
	}
	if _, err := events.ParseFilter(c.Webhook.Entities); err != nil {
		return fmt.Errorf("webhook.entities: %w", err)
	}
	return nil
}

// WebhookFilter returns the parsed webhook entity filter.
func (c *Config) WebhookFilter() events.Filter {
	f, _ := events.ParseFilter(c.Webhook.Entities)
	return f
}

// DeletePolicy returns the parsed subtask delete policy.
func (c *Config) DeletePolicy() workflow.DeletePolicy {
	p, _ := workflow.ParseDeletePolicy(c.Issues.SubtaskDeletePolicy)
	return p
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log.level %q (valid: debug, info, warn, error)", s)
}

// Settings returns the configuration as nested maps keyed like the config
// file, with durations rendered as strings and DSN credentials masked.
func (c *Config) Settings() map[string]any {
	return map[string]any{
		"server": map[string]any{
			"listen_addr":          c.Server.ListenAddr,
			"base_url":             c.Server.BaseURL,
			"shutdown_timeout":     c.Server.ShutdownTimeout.String(),
			"max_body_bytes":       c.Server.MaxBodyBytes,
			"cors_allowed_origins": c.Server.CORSAllowedOrigins,
		},
		"database": map[string]any{
			"driver":          c.Database.Driver,
			"dsn":             RedactDSN(c.Database.DSN),
			"max_open_conns":  c.Database.MaxOpenConns,
			"connect_timeout": c.Database.ConnectTimeout.String(),
		},
		"log": map[string]any{
			"format": c.Log.Format,
			"level":  c.Log.Level,
		},
		"ratelimit": map[string]any{
			"read":  c.RateLimit.Read,
			"write": c.RateLimit.Write,
		},
		"issues": map[string]any{
			"subtask_delete_policy": c.Issues.SubtaskDeletePolicy,
		},
		"telemetry": map[string]any{
			"enabled":       c.Telemetry.Enabled,
			"stdout":        c.Telemetry.Stdout,
			"otlp_endpoint": c.Telemetry.OTLPEndpoint,
			"service_name":  c.Telemetry.ServiceName,
		},
		"webhook": map[string]any{
			"url":        c.Webhook.URL,
			"secret":     redactSecret(c.Webhook.Secret),
			"entities":   append([]string{}, c.Webhook.Entities...),
			"queue_size": c.Webhook.QueueSize,
			"timeout":    c.Webhook.Timeout.String(),
		},
	}
}

// Render encodes Settings as yaml, toml or json.
func (c *Config) Render(format string) ([]byte, error) {
	settings := c.Settings()
	switch strings.ToLower(format) {
	case "yaml", "yml", "":
		return yaml.Marshal(settings)
	case "toml":
		var b strings.Builder
		if err := toml.NewEncoder(&b).Encode(settings); err != nil {
			return nil, fmt.Errorf("encode toml: %w", err)
		}
		return []byte(b.String()), nil
	case "json":
		out, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	}
	return nil, fmt.Errorf("unknown format %q (valid: yaml, toml, json)", format)
}

func redactSecret(s string) string {
	if s == "" {
		return ""
	}
	return "xxxxx"
}

// RedactDSN masks the password in "user:pass@host" style DSNs, covering
// both URL (postgres://) and go-sql-driver/mysql forms.
func RedactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	userinfo := dsn[:at]
	colon := strings.LastIndex(userinfo, ":")
	if colon < 0 || strings.HasPrefix(userinfo[colon:], "://") {
		return dsn
	}
	return userinfo[:colon+1] + "xxxxx" + dsn[at:]
}
