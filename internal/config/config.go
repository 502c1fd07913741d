// Package config loads bridge settings from flags, environment and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EntriesPath is appended to the Nightscout base URL.
const EntriesPath = "/api/v1/entries.json"

// Config holds the bridge configuration.
type Config struct {
	Username          string `mapstructure:"username"`
	Password          string `mapstructure:"password"`
	CareLinkBaseURL   string `mapstructure:"carelink_base_url"`
	NSHost            string `mapstructure:"ns_host"`
	NSBaseURL         string `mapstructure:"ns_base_url"`
	APISecret         string `mapstructure:"api_secret"`
	IntervalMs        int    `mapstructure:"interval_ms"`
	SGVLimit          int    `mapstructure:"sgv_limit"`
	MaxRetrySeconds   int    `mapstructure:"max_retry_duration"`
	Quiet             bool   `mapstructure:"quiet"`
	ResendLatestTrend bool   `mapstructure:"resend_latest_trend"`
	PostgresDSN       string `mapstructure:"postgres_dsn"`
	ClickhouseDSN     string `mapstructure:"clickhouse_dsn"`
	MetricsAddr       string `mapstructure:"metrics_addr"`
	DryRun            bool   `mapstructure:"dry_run"`
}

// setting binds a config key to its flag and environment variable.
type setting struct {
	key  string
	flag string
	env  string
}

var settings = []setting{
	{"username", "username", "CARELINK_USERNAME"},
	{"password", "password", "CARELINK_PASSWORD"},
	{"carelink_base_url", "carelink-base-url", "CARELINK_BASE_URL"},
	{"ns_host", "ns-host", "WEBSITE_HOSTNAME"},
	{"ns_base_url", "ns", "NS"},
	{"api_secret", "api-secret", "API_SECRET"},
	{"interval_ms", "interval-ms", "CARELINK_REQUEST_INTERVAL"},
	{"sgv_limit", "sgv-limit", "CARELINK_SGV_LIMIT"},
	{"max_retry_duration", "max-retry-duration", "CARELINK_MAX_RETRY_DURATION"},
	{"quiet", "quiet", "CARELINK_QUIET"},
	{"resend_latest_trend", "resend-latest-trend", "CARELINK_RESEND_LATEST_TREND"},
	{"postgres_dsn", "postgres-dsn", "POSTGRES_DSN"},
	{"clickhouse_dsn", "clickhouse-dsn", "CLICKHOUSE_DSN"},
	{"metrics_addr", "metrics-addr", "METRICS_ADDR"},
	{"dry_run", "dry-run", "CARELINK_DRY_RUN"},
}

// EnvNames returns the variables checked for key, in priority order.
// Azure App Service exposes connection strings with a CUSTOMCONNSTR_ prefix.
func EnvNames(key string) []string {
	lower := strings.ToLower(key)
	return []string{key, lower, "CUSTOMCONNSTR_" + key, "CUSTOMCONNSTR_" + lower}
}

// NewFlagSet declares every bridge flag with its default.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "Optional config file (yaml, json or toml)")
	fs.String("username", "", "CareLink username")
	fs.String("password", "", "CareLink password")
	fs.String("carelink-base-url", "https://carelink.minimed.com", "CareLink server")
	fs.String("ns-host", "", "Nightscout host name, used as https://<host>")
	fs.String("ns", "", "Nightscout base URL, takes precedence over --ns-host")
	fs.String("api-secret", "", "Nightscout API secret")
	fs.Int("interval-ms", 60000, "Delay between cycles in milliseconds")
	fs.Int("sgv-limit", 24, "Maximum readings per cycle")
	fs.Int("max-retry-duration", 512, "Maximum cumulative CareLink retry delay in seconds")
	fs.Bool("quiet", false, "Only log failures")
	fs.Bool("resend-latest-trend", false, "Resend the newest reading when its trend arrives late")
	fs.String("postgres-dsn", "", "Mirror entries to PostgreSQL")
	fs.String("clickhouse-dsn", "", "Mirror entries to ClickHouse")
	fs.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")
	fs.Bool("dry-run", false, "Do not upload to Nightscout, keep entries in memory")
	return fs
}

// Load parses args and resolves every setting.
// Precedence: explicit flag, environment, config file, flag default.
func Load(args []string) (*Config, error) {
	fs := NewFlagSet("carelink-bridge")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	for _, s := range settings {
		if err := v.BindPFlag(s.key, fs.Lookup(s.flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", s.flag, err)
		}
		if err := v.BindEnv(append([]string{s.key}, EnvNames(s.env)...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", s.env, err)
		}
	}

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	legacyTruthy(v, "quiet")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// legacyTruthy treats any non-empty value of key that is not a boolean as true.
// Older deployments set CARELINK_QUIET to arbitrary strings such as "yes".
func legacyTruthy(v *viper.Viper, key string) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return
	}
	if _, err := strconv.ParseBool(raw); err != nil {
		v.Set(key, true)
	}
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.Username == "" {
		return errors.New("missing CareLink username")
	}
	if c.Password == "" {
		return errors.New("missing CareLink password")
	}
	if c.IntervalMs <= 0 {
		return fmt.Errorf("interval_ms must be positive, got %d", c.IntervalMs)
	}
	if c.MaxRetrySeconds < 0 {
		return fmt.Errorf("max_retry_duration must not be negative, got %d", c.MaxRetrySeconds)
	}
	if c.CareLinkBaseURL == "" {
		return errors.New("carelink_base_url must not be empty")
	}
	if !c.DryRun && c.NSBaseURL == "" && c.NSHost == "" {
		return errors.New("missing Nightscout endpoint: set NS or WEBSITE_HOSTNAME")
	}
	return nil
}

// Endpoint returns the Nightscout entries URL.
// NS wins over WEBSITE_HOSTNAME, which is served over https.
func (c *Config) Endpoint() string {
	base := c.NSBaseURL
	if base == "" {
		if c.NSHost == "" {
			return ""
		}
		base = "https://" + c.NSHost
	}
	return strings.TrimSuffix(base, "/") + EntriesPath
}

// Interval returns the delay between cycles.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// MaxRetryDuration returns the cumulative retry budget of one CareLink fetch.
func (c *Config) MaxRetryDuration() time.Duration {
	return time.Duration(c.MaxRetrySeconds) * time.Second
}

// Verbose reports whether routine cycle logs are wanted.
func (c *Config) Verbose() bool {
	return !c.Quiet
}
