package config

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. OPSTRACKER_DATABASE_DRIVER.
const EnvPrefix = "OPSTRACKER"

// Config 应用配置
type Config struct {
	Database DatabaseConfig
	Ingest   IngestConfig
	Server   ServerConfig
	Alerts   AlertsConfig
}

// DatabaseConfig describes how to reach the database server.
type DatabaseConfig struct {
	Driver    string // sqlite, postgres, sqlserver or mysql
	Host      string
	Port      int // 0 means the dialect default
	User      string
	Password  string
	Name      string // target database
	AdminName string // administrative database used to create Name; empty means the dialect default
	Path      string // sqlite file
	SSLMode   string

	MaxOpenConns    int
	ConnectAttempts int
	ConnectDelay    time.Duration // initial backoff between connection attempts
}

// IngestConfig controls the CSV loader.
type IngestConfig struct {
	File          string
	Delimiter     string
	StartupDelay  time.Duration
	OnError       string // abort or skip
	MaxErrorRatio float64
	Strict        bool
	TimeZone      string
	DateOrder     string // dmy (default) or mdy, for numeric dates such as 7/4/2025
	MetricsFile   string
}

// ServerConfig controls the GPS read API.
type ServerConfig struct {
	Port      string
	TopN      int
	JWTSecret string
	RateLimit int // requests per minute per client, 0 disables
}

// AlertsConfig controls the alert API.
type AlertsConfig struct {
	Port            string
	File            string
	UpstreamURL     string
	RefreshInterval time.Duration
	RetryInterval   time.Duration
	RequestTimeout  time.Duration
	// NotFoundStatus is the status sent with the unknown-alert message, 404 or 200.
	// Zero means 404.
	NotFoundStatus  int
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "admin")
	v.SetDefault("database.admin_name", "")
	v.SetDefault("database.path", "./data/admin.db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.connect_attempts", 5)
	v.SetDefault("database.connect_delay", time.Second)

	v.SetDefault("ingest.file", "")
	v.SetDefault("ingest.delimiter", ";")
	v.SetDefault("ingest.startup_delay", 15*time.Second)
	v.SetDefault("ingest.on_error", "abort")
	v.SetDefault("ingest.max_error_ratio", 0.0)
	v.SetDefault("ingest.strict", false)
	v.SetDefault("ingest.timezone", "UTC")
	v.SetDefault("ingest.date_order", "dmy")
	v.SetDefault("ingest.metrics_file", "")

	v.SetDefault("server.port", ":5000")
	v.SetDefault("server.top_n", 10)
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.rate_limit", 0)

	v.SetDefault("alerts.port", ":8000")
	v.SetDefault("alerts.file", "response.json")
	v.SetDefault("alerts.upstream_url", "")
	v.SetDefault("alerts.refresh_interval", 10*time.Minute)
	v.SetDefault("alerts.retry_interval", time.Minute)
	v.SetDefault("alerts.request_timeout", 30*time.Second)
	v.SetDefault("alerts.not_found_status", 404)
}

// Load 加载配置
//
// Values are resolved from flags bound on v, then OPSTRACKER_* environment
// variables (a .env file in the working directory is loaded first), then
// defaults.
func Load(v *viper.Viper) (*Config, error) {
	// A missing .env is fine; variables may come from the real environment.
	_ = godotenv.Load()

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Database: DatabaseConfig{
			Driver:          strings.ToLower(v.GetString("database.driver")),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			Name:            v.GetString("database.name"),
			AdminName:       v.GetString("database.admin_name"),
			Path:            v.GetString("database.path"),
			SSLMode:         v.GetString("database.ssl_mode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			ConnectAttempts: v.GetInt("database.connect_attempts"),
			ConnectDelay:    v.GetDuration("database.connect_delay"),
		},
		Ingest: IngestConfig{
			File:          v.GetString("ingest.file"),
			Delimiter:     v.GetString("ingest.delimiter"),
			StartupDelay:  v.GetDuration("ingest.startup_delay"),
			OnError:       strings.ToLower(v.GetString("ingest.on_error")),
			MaxErrorRatio: v.GetFloat64("ingest.max_error_ratio"),
			Strict:        v.GetBool("ingest.strict"),
			TimeZone:      v.GetString("ingest.timezone"),
			DateOrder:     strings.ToLower(v.GetString("ingest.date_order")),
			MetricsFile:   v.GetString("ingest.metrics_file"),
		},
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			TopN:      v.GetInt("server.top_n"),
			JWTSecret: v.GetString("server.jwt_secret"),
			RateLimit: v.GetInt("server.rate_limit"),
		},
		Alerts: AlertsConfig{
			Port:            v.GetString("alerts.port"),
			File:            v.GetString("alerts.file"),
			UpstreamURL:     strings.TrimRight(v.GetString("alerts.upstream_url"), "/"),
			RefreshInterval: v.GetDuration("alerts.refresh_interval"),
			RetryInterval:   v.GetDuration("alerts.retry_interval"),
			RequestTimeout:  v.GetDuration("alerts.request_timeout"),
			NotFoundStatus:  v.GetInt("alerts.not_found_status"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late, in the middle of a run.
func (c *Config) Validate() error {
	if utf8.RuneCountInString(c.Ingest.Delimiter) != 1 {
		return fmt.Errorf("ingest delimiter must be a single character, got %q", c.Ingest.Delimiter)
	}
	switch c.Ingest.OnError {
	case "abort", "skip":
	default:
		return fmt.Errorf("ingest on_error must be abort or skip, got %q", c.Ingest.OnError)
	}
	if c.Ingest.MaxErrorRatio < 0 || c.Ingest.MaxErrorRatio > 1 {
		return fmt.Errorf("ingest max_error_ratio must be within [0, 1], got %v", c.Ingest.MaxErrorRatio)
	}
	if _, err := time.LoadLocation(c.Ingest.TimeZone); err != nil {
		return fmt.Errorf("invalid ingest timezone %q: %w", c.Ingest.TimeZone, err)
	}
	switch c.Ingest.DateOrder {
	case "", "dmy", "mdy":
	default:
		return fmt.Errorf("ingest date_order must be dmy or mdy, got %q", c.Ingest.DateOrder)
	}
	if c.Server.TopN < 1 {
		return fmt.Errorf("server top_n must be positive, got %d", c.Server.TopN)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server rate_limit must not be negative, got %d", c.Server.RateLimit)
	}
	switch c.Alerts.NotFoundStatus {
	case 0, 200, 404:
	default:
		return fmt.Errorf("alerts not_found_status must be 200 or 404, got %d", c.Alerts.NotFoundStatus)
	}
	return nil
}

// DelimiterRune returns the ingest delimiter as a rune. Validate guarantees it is a single character.
func (c IngestConfig) DelimiterRune() rune {
	r, _ := utf8.DecodeRuneInString(c.Delimiter)
	return r
}
