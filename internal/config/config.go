package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the service configuration
type Config struct {
	Strava    StravaConfig    `mapstructure:"strava"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Store     StoreConfig     `mapstructure:"store"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Log       LogConfig       `mapstructure:"log"`
}

// StravaConfig holds Strava API credentials and OAuth settings
type StravaConfig struct {
	ClientID         string `mapstructure:"client_id"`
	ClientSecret     string `mapstructure:"client_secret"`
	RedirectURL      string `mapstructure:"redirect_url"` // fixed callback registered with Strava
	Scope            string `mapstructure:"scope"`
	ActivityPageSize int    `mapstructure:"activity_page_size"`
	StateSecret      string `mapstructure:"state_secret"` // empty disables signed state
}

// HTTPConfig holds inbound server and outbound client settings
type HTTPConfig struct {
	Address        string        `mapstructure:"address"`
	Timeout        time.Duration `mapstructure:"timeout"` // per outbound call
	LandingURL     string        `mapstructure:"landing_url"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// SchedulerConfig identifies scheduled invocations
type SchedulerConfig struct {
	Header string `mapstructure:"header"`
	Value  string `mapstructure:"value"`
}

// StoreConfig selects and configures the table store backend
type StoreConfig struct {
	Backend                  string `mapstructure:"backend"` // sqlite, postgres or airtable
	SQLitePath               string `mapstructure:"sqlite_path"`
	PostgresURL              string `mapstructure:"postgres_url"`
	AirtableToken            string `mapstructure:"airtable_token"`
	AirtableBaseID           string `mapstructure:"airtable_base_id"`
	AirtableCredentialsTable string `mapstructure:"airtable_credentials_table"`
	AirtableActivitiesTable  string `mapstructure:"airtable_activities_table"`
	AirtableURL              string `mapstructure:"airtable_url"`
}

// KafkaConfig enables activity events when Brokers is non-empty
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendAirtable = "airtable"
)

// ConfigurationError reports a missing or invalid required setting.
// It is fatal at startup.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s %s", e.Key, e.Reason)
}

// envBindings maps config keys to the environment variables that set them
var envBindings = map[string]string{
	"strava.client_id":                 "STRAVA_CLIENT_ID",
	"strava.client_secret":             "STRAVA_CLIENT_SECRET",
	"strava.redirect_url":              "STRAVA_REDIRECT_URL",
	"strava.scope":                     "STRAVA_SCOPE",
	"strava.activity_page_size":        "STRAVA_ACTIVITY_PAGE_SIZE",
	"strava.state_secret":              "OAUTH_STATE_SECRET",
	"http.address":                     "HTTP_ADDRESS",
	"http.timeout":                     "HTTP_TIMEOUT",
	"http.landing_url":                 "LANDING_URL",
	"http.allowed_origins":             "CORS_ALLOWED_ORIGINS",
	"scheduler.header":                 "SCHEDULER_HEADER",
	"scheduler.value":                  "SCHEDULER_VALUE",
	"store.backend":                    "STORE_BACKEND",
	"store.sqlite_path":                "SQLITE_PATH",
	"store.postgres_url":               "POSTGRES_URL",
	"store.airtable_token":             "AIRTABLE_API_KEY",
	"store.airtable_base_id":           "AIRTABLE_BASE_ID",
	"store.airtable_credentials_table": "AIRTABLE_CREDENTIALS_TABLE",
	"store.airtable_activities_table":  "AIRTABLE_ACTIVITIES_TABLE",
	"store.airtable_url":               "AIRTABLE_URL",
	"kafka.brokers":                    "KAFKA_BROKERS",
	"kafka.topic":                      "KAFKA_TOPIC",
	"log.level":                        "LOG_LEVEL",
	"log.format":                       "LOG_FORMAT",
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Strava: StravaConfig{
			RedirectURL:      "http://localhost:8080/",
			Scope:            "activity:read_all",
			ActivityPageSize: 5,
		},
		HTTP: HTTPConfig{
			Address: ":8080",
			Timeout: 10 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Header: "X-Netlify-Event",
			Value:  "schedule",
		},
		Store: StoreConfig{
			Backend:                  BackendSQLite,
			AirtableCredentialsTable: "Users",
			AirtableActivitiesTable:  "Activities",
			AirtableURL:              "https://api.airtable.com/v0",
		},
		Kafka: KafkaConfig{
			Topic: "strava.activity.ingested",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from the environment, overlaying an optional
// config file at path. Environment variables win over file values.
func Load(path string) (*Config, error) {
	vip := viper.New()

	defaults := DefaultConfig()
	vip.SetDefault("strava.redirect_url", defaults.Strava.RedirectURL)
	vip.SetDefault("strava.scope", defaults.Strava.Scope)
	vip.SetDefault("strava.activity_page_size", defaults.Strava.ActivityPageSize)
	vip.SetDefault("http.address", defaults.HTTP.Address)
	vip.SetDefault("http.timeout", defaults.HTTP.Timeout)
	vip.SetDefault("scheduler.header", defaults.Scheduler.Header)
	vip.SetDefault("scheduler.value", defaults.Scheduler.Value)
	vip.SetDefault("store.backend", defaults.Store.Backend)
	vip.SetDefault("store.airtable_credentials_table", defaults.Store.AirtableCredentialsTable)
	vip.SetDefault("store.airtable_activities_table", defaults.Store.AirtableActivitiesTable)
	vip.SetDefault("store.airtable_url", defaults.Store.AirtableURL)
	vip.SetDefault("kafka.topic", defaults.Kafka.Topic)
	vip.SetDefault("log.level", defaults.Log.Level)
	vip.SetDefault("log.format", defaults.Log.Format)

	for key, env := range envBindings {
		if err := vip.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if path != "" {
		vip.SetConfigFile(path)
		if err := vip.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Kafka.Brokers = splitAndTrim(cfg.Kafka.Brokers)
	cfg.HTTP.AllowedOrigins = splitAndTrim(cfg.HTTP.AllowedOrigins)

	if cfg.Store.Backend == BackendSQLite && cfg.Store.SQLitePath == "" {
		dbPath, err := defaultSQLitePath()
		if err != nil {
			return nil, err
		}
		cfg.Store.SQLitePath = dbPath
	}

	return &cfg, nil
}

// Validate checks that every required setting is present. The returned
// error is a *ConfigurationError.
func (c *Config) Validate() error {
	if c.Strava.ClientID == "" || c.Strava.ClientID == "YOUR_CLIENT_ID" {
		return &ConfigurationError{Key: "strava.client_id", Reason: "is required - get it from https://www.strava.com/settings/api"}
	}
	if c.Strava.ClientSecret == "" || c.Strava.ClientSecret == "YOUR_CLIENT_SECRET" {
		return &ConfigurationError{Key: "strava.client_secret", Reason: "is required - get it from https://www.strava.com/settings/api"}
	}

	u, err := url.Parse(c.Strava.RedirectURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigurationError{Key: "strava.redirect_url", Reason: fmt.Sprintf("must be an absolute URL, got %q", c.Strava.RedirectURL)}
	}

	// Strava caps per_page at 200
	if c.Strava.ActivityPageSize < 1 || c.Strava.ActivityPageSize > 200 {
		return &ConfigurationError{Key: "strava.activity_page_size", Reason: fmt.Sprintf("must be between 1 and 200, got %d", c.Strava.ActivityPageSize)}
	}

	if c.HTTP.Timeout <= 0 {
		return &ConfigurationError{Key: "http.timeout", Reason: "must be positive"}
	}

	if c.Scheduler.Header == "" || c.Scheduler.Value == "" {
		return &ConfigurationError{Key: "scheduler.header", Reason: "and scheduler.value are required"}
	}

	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return &ConfigurationError{Key: "store.sqlite_path", Reason: "is required for the sqlite backend"}
		}
	case BackendPostgres:
		if c.Store.PostgresURL == "" {
			return &ConfigurationError{Key: "store.postgres_url", Reason: "is required for the postgres backend"}
		}
	case BackendAirtable:
		if c.Store.AirtableToken == "" {
			return &ConfigurationError{Key: "store.airtable_token", Reason: "is required for the airtable backend"}
		}
		if c.Store.AirtableBaseID == "" {
			return &ConfigurationError{Key: "store.airtable_base_id", Reason: "is required for the airtable backend"}
		}
		if c.Store.AirtableCredentialsTable == "" || c.Store.AirtableActivitiesTable == "" {
			return &ConfigurationError{Key: "store.airtable_credentials_table", Reason: "and store.airtable_activities_table are required"}
		}
	default:
		return &ConfigurationError{Key: "store.backend", Reason: fmt.Sprintf("must be %q, %q or %q, got %q", BackendSQLite, BackendPostgres, BackendAirtable, c.Store.Backend)}
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return &ConfigurationError{Key: "kafka.topic", Reason: "is required when kafka.brokers is set"}
	}

	return nil
}

// IsConfigurationError reports whether err is a *ConfigurationError
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

func splitAndTrim(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

// defaultSQLitePath returns ~/.strava-sync/data.db
func defaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".strava-sync", "data.db"), nil
}
