// Package config loads service configuration from config.yaml and the
// environment, and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	HubSpot    HubSpotConfig    `yaml:"hubspot" mapstructure:"hubspot"`
	Geocode    GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Sync       SyncConfig       `yaml:"sync" mapstructure:"sync"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Seed       SeedConfig       `yaml:"seed" mapstructure:"seed"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// HubSpotConfig configures the CRM proxy and the client that calls it.
type HubSpotConfig struct {
	// APIKey is the server-side credential the proxy falls back to.
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// ProxyURL is the proxy endpoint the sync client calls. Empty means the
	// proxy served by this process.
	ProxyURL    string  `yaml:"proxy_url" mapstructure:"proxy_url"`
	PageLimit   int     `yaml:"page_limit" mapstructure:"page_limit"`
	MaxPages    int     `yaml:"max_pages" mapstructure:"max_pages"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// GeocodeConfig configures the geocoding client.
type GeocodeConfig struct {
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent     string `yaml:"user_agent" mapstructure:"user_agent"`
	CountryCodes  string `yaml:"country_codes" mapstructure:"country_codes"`
	MinDelayMs    int    `yaml:"min_delay_ms" mapstructure:"min_delay_ms"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MinAddressLen int    `yaml:"min_address_len" mapstructure:"min_address_len"`
}

// SyncConfig configures the sync cycle.
type SyncConfig struct {
	IntervalSecs int  `yaml:"interval_secs" mapstructure:"interval_secs"`
	BatchSize    int  `yaml:"batch_size" mapstructure:"batch_size"`
	GeocodeLive  bool `yaml:"geocode_live" mapstructure:"geocode_live"`
	TimeoutSecs  int  `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// StoreConfig configures the durable key-value store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SeedConfig selects the seed dataset. An empty path uses the bundled set.
type SeedConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures health alerting.
type MonitoringConfig struct {
	CheckIntervalSecs  int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	WebhookURL         string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	StaleAfterSecs     int     `yaml:"stale_after_secs" mapstructure:"stale_after_secs"`
	MinGeocodeCoverage float64 `yaml:"min_geocode_coverage" mapstructure:"min_geocode_coverage"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Interval returns the periodic sync interval.
func (c SyncConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSecs) * time.Second
}

// Timeout returns the per-sync timeout.
func (c SyncConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// MinDelay returns the minimum spacing between geocoding requests.
func (c GeocodeConfig) MinDelay() time.Duration {
	return time.Duration(c.MinDelayMs) * time.Millisecond
}

// Validate checks the configuration required by a command mode
// ("serve", "sync", "geocode", "apikey").
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres, DriverMemory:
	default:
		errs = append(errs, "store.driver must be one of sqlite, postgres, memory")
	}
	if c.Store.Driver == DriverPostgres && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for postgres")
	}
	if c.Geocode.MinDelayMs < 0 {
		errs = append(errs, "geocode.min_delay_ms must be >= 0")
	}

	switch mode {
	case "serve", "sync":
		if c.Sync.BatchSize < 1 || c.Sync.BatchSize > 100 {
			errs = append(errs, "sync.batch_size must be between 1 and 100")
		}
		if c.Sync.IntervalSecs <= 0 {
			errs = append(errs, "sync.interval_secs must be > 0")
		}
		if c.Sync.TimeoutSecs <= 0 {
			errs = append(errs, "sync.timeout_secs must be > 0")
		}
		if c.HubSpot.MaxPages <= 0 {
			errs = append(errs, "hubspot.max_pages must be > 0")
		}
		if mode == "serve" {
			if c.Server.Port <= 0 {
				errs = append(errs, "server.port must be > 0")
			}
			if c.Monitoring.MinGeocodeCoverage < 0 || c.Monitoring.MinGeocodeCoverage > 1 {
				errs = append(errs, "monitoring.min_geocode_coverage must be between 0 and 1")
			}
		}
	case "geocode", "apikey":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New("config validation: " + strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CUSTOMERMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("hubspot.api_key", "CUSTOMERMAP_HUBSPOT_API_KEY", "HUBSPOT_API_KEY"); err != nil {
		return nil, eris.Wrap(err, "config: bind env")
	}

	// Defaults
	v.SetDefault("hubspot.api_key", "")
	v.SetDefault("hubspot.base_url", "https://api.hubapi.com")
	v.SetDefault("hubspot.proxy_url", "")
	v.SetDefault("hubspot.page_limit", 100)
	v.SetDefault("hubspot.max_pages", 50)
	v.SetDefault("hubspot.rate_limit", 5.0)
	v.SetDefault("hubspot.timeout_secs", 30)
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.user_agent", "Edlio Customer Map Geocoder")
	v.SetDefault("geocode.country_codes", "us")
	v.SetDefault("geocode.min_delay_ms", 1000)
	v.SetDefault("geocode.timeout_secs", 10)
	v.SetDefault("geocode.min_address_len", 6)
	v.SetDefault("sync.interval_secs", 300)
	v.SetDefault("sync.batch_size", 10)
	v.SetDefault("sync.geocode_live", true)
	v.SetDefault("sync.timeout_secs", 600)
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.database_url", "customer-map.db")
	v.SetDefault("store.max_conns", 5)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("seed.path", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.stale_after_secs", 1800)
	v.SetDefault("monitoring.min_geocode_coverage", 0.5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
