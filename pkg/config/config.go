// Package config loads and validates harvester configuration via Viper.
// Settings come from an optional config file plus SHELFBASE_* environment
// variables; components receive typed sections and never read Viper
// directly.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Harvest HarvestConfig `mapstructure:"harvest"`
	Retail  RetailConfig  `mapstructure:"retail"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// HarvestConfig governs the category pipeline.
type HarvestConfig struct {
	Market              string  `mapstructure:"market"`
	OutputDir           string  `mapstructure:"output_dir"`
	Parallelism         int     `mapstructure:"parallelism"`
	TaxonomyDepth       int     `mapstructure:"taxonomy_depth"`
	PageSize            int     `mapstructure:"page_size"`
	BatchSize           int     `mapstructure:"batch_size"`
	InFlight            int     `mapstructure:"in_flight"`
	SkipExisting        bool    `mapstructure:"skip_existing"`
	OrderedWrites       bool    `mapstructure:"ordered_writes"`
	FailureThreshold    float64 `mapstructure:"failure_threshold"`
	DrainTimeoutSeconds int     `mapstructure:"drain_timeout_seconds"`
	RunDeadlineMinutes  int     `mapstructure:"run_deadline_minutes"`
	RetryAttempts       int     `mapstructure:"retry_attempts"`
	RetryBaseMs         int     `mapstructure:"retry_base_ms"`
	RetryCapMs          int     `mapstructure:"retry_cap_ms"`
	AuthFailureLimit    int     `mapstructure:"auth_failure_limit"`
}

// RetailConfig configures the storefront HTTP client.
type RetailConfig struct {
	UserAgent      string   `mapstructure:"user_agent"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	Attributes     []string `mapstructure:"attributes"`
	RateRPS        float64  `mapstructure:"rate_rps"`
	RateBurst      int      `mapstructure:"rate_burst"`
	// BaseURLs overrides the built-in storefront origin per market code,
	// e.g. for staging endpoints.
	BaseURLs map[string]string `mapstructure:"base_urls"`
}

// StorageConfig selects the blob mirror for finished output units.
type StorageConfig struct {
	Provider string `mapstructure:"provider"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	// LocalDir is the mirror root for the local provider.
	LocalDir string `mapstructure:"local_dir"`
}

// DBConfig controls access to the outcome database.
type DBConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig controls the standalone Prometheus endpoint used by
// batch runs. The API server always exposes /metrics itself.
type MetricsConfig struct {
	// Addr is the listen address, e.g. ":9090". Empty disables the
	// endpoint.
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment, with optionally bound
// command-line flags taking precedence over both. An explicit path must
// exist; with no path the usual locations are searched and missing files
// fall back to defaults plus environment.
func Load(path string, flags ...*pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SHELFBASE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for _, fs := range flags {
		if fs == nil {
			continue
		}
		if err := bindFlags(v, fs); err != nil {
			return Config{}, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/catalog-harvester/")
		v.AddConfigPath("$HOME/.catalog-harvester")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// flagKeys maps command-line flag names onto their viper keys. Commands
// register only the flags they need; bindFlags skips the rest.
var flagKeys = map[string]string{
	"market":            "harvest.market",
	"output":            "harvest.output_dir",
	"parallelism":       "harvest.parallelism",
	"depth":             "harvest.taxonomy_depth",
	"page-size":         "harvest.page_size",
	"batch-size":        "harvest.batch_size",
	"in-flight":         "harvest.in_flight",
	"skip-existing":     "harvest.skip_existing",
	"ordered":           "harvest.ordered_writes",
	"failure-threshold": "harvest.failure_threshold",
	"drain-timeout":     "harvest.drain_timeout_seconds",
	"run-deadline":      "harvest.run_deadline_minutes",
	"retry-attempts":    "harvest.retry_attempts",
	"retry-base-ms":     "harvest.retry_base_ms",
	"retry-cap-ms":      "harvest.retry_cap_ms",
	"rate-rps":          "retail.rate_rps",
	"rate-burst":        "retail.rate_burst",
	"db-provider":       "db.provider",
	"storage-provider":  "storage.provider",
	"pubsub-provider":   "pubsub.provider",
	"port":              "server.port",
	"metrics-addr":      "metrics.addr",
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("harvest.market", "uk")
	v.SetDefault("harvest.output_dir", "data/harvest")
	v.SetDefault("harvest.parallelism", 6)
	v.SetDefault("harvest.taxonomy_depth", 0)
	v.SetDefault("harvest.page_size", 120)
	v.SetDefault("harvest.batch_size", 100)
	v.SetDefault("harvest.in_flight", 3)
	v.SetDefault("harvest.skip_existing", false)
	v.SetDefault("harvest.ordered_writes", false)
	v.SetDefault("harvest.failure_threshold", 1.0)
	v.SetDefault("harvest.drain_timeout_seconds", 10)
	v.SetDefault("harvest.run_deadline_minutes", 0)
	v.SetDefault("harvest.retry_attempts", 3)
	v.SetDefault("harvest.retry_base_ms", 250)
	v.SetDefault("harvest.retry_cap_ms", 5000)
	v.SetDefault("harvest.auth_failure_limit", 2)
	v.SetDefault("retail.timeout_seconds", 30)
	v.SetDefault("retail.rate_rps", 4)
	v.SetDefault("retail.rate_burst", 8)
	v.SetDefault("storage.provider", "noop")
	v.SetDefault("storage.prefix", "harvest")
	v.SetDefault("db.provider", "noop")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.provider", "noop")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits. Provider
// names are checked where the services are built.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Harvest.Market == "" {
		return fmt.Errorf("harvest.market is required")
	}
	if c.Harvest.Parallelism <= 0 {
		return fmt.Errorf("harvest.parallelism must be > 0")
	}
	if c.Harvest.PageSize <= 0 {
		return fmt.Errorf("harvest.page_size must be > 0")
	}
	if c.Harvest.BatchSize <= 0 {
		return fmt.Errorf("harvest.batch_size must be > 0")
	}
	if c.Harvest.FailureThreshold <= 0 || c.Harvest.FailureThreshold > 1 {
		return fmt.Errorf("harvest.failure_threshold must be within (0, 1]")
	}
	if c.Retail.TimeoutSeconds <= 0 {
		return fmt.Errorf("retail.timeout_seconds must be > 0")
	}
	if c.Storage.Provider == "gcs" && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket must be set when storage.provider is gcs")
	}
	if c.Storage.Provider == "local" && c.Storage.LocalDir == "" {
		return fmt.Errorf("storage.local_dir must be set when storage.provider is local")
	}
	if c.DB.Provider == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when db.provider is postgres")
	}
	if c.PubSub.Provider == "pubsub" && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub.provider is pubsub")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// DrainTimeout converts the drain window into a duration.
func (c HarvestConfig) DrainTimeout() time.Duration {
	return time.Duration(c.DrainTimeoutSeconds) * time.Second
}

// RunDeadline converts the run budget into a duration; zero means none.
func (c HarvestConfig) RunDeadline() time.Duration {
	return time.Duration(c.RunDeadlineMinutes) * time.Minute
}

// RetryBase converts the initial backoff into a duration.
func (c HarvestConfig) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseMs) * time.Millisecond
}

// RetryCap converts the backoff ceiling into a duration.
func (c HarvestConfig) RetryCap() time.Duration {
	return time.Duration(c.RetryCapMs) * time.Millisecond
}

// Timeout converts the HTTP budget into a duration.
func (c RetailConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
