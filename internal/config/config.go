// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/floodwatch-fl/floodwatch/internal/confidence"
	"github.com/floodwatch-fl/floodwatch/internal/db"
	"github.com/floodwatch-fl/floodwatch/internal/geofence"
	"github.com/floodwatch-fl/floodwatch/internal/ratelimit"
)

// Config holds the full application configuration. It is immutable after
// Load and injected into each component at construction.
type Config struct {
	Store      StoreConfig       `yaml:"store" mapstructure:"store"`
	Regions    []geofence.Region `yaml:"regions" mapstructure:"regions"`
	Quota      ratelimit.Config  `yaml:"quota" mapstructure:"quota"`
	Confidence ConfidenceConfig  `yaml:"confidence" mapstructure:"confidence"`
	Rotation   RotationConfig    `yaml:"rotation" mapstructure:"rotation"`
	Server     ServerConfig      `yaml:"server" mapstructure:"server"`
	Log        LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string        `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string        `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string        `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	Pool        db.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// ConfidenceConfig holds the spatial-temporal corroboration window.
type ConfidenceConfig struct {
	DistanceMeters float64 `yaml:"distance_meters" mapstructure:"distance_meters"`
	WindowHours    int     `yaml:"window_hours" mapstructure:"window_hours"`
}

// AggregatorConfig converts to the confidence package's config.
func (c ConfidenceConfig) AggregatorConfig() confidence.Config {
	return confidence.Config{
		DistanceMeters: c.DistanceMeters,
		Window:         time.Duration(c.WindowHours) * time.Hour,
	}
}

// RotationConfig fixes the weekly archive rotation instant.
type RotationConfig struct {
	Weekday  int    `yaml:"weekday" mapstructure:"weekday"`
	Hour     int    `yaml:"hour" mapstructure:"hour"`
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
}

// Schedule resolves the rotation config into a concrete schedule,
// validating the time zone and ranges.
func (c RotationConfig) Schedule() (confidence.Schedule, error) {
	if c.Weekday < 0 || c.Weekday > 6 {
		return confidence.Schedule{}, eris.Errorf("config: rotation weekday %d out of range", c.Weekday)
	}
	if c.Hour < 0 || c.Hour > 23 {
		return confidence.Schedule{}, eris.Errorf("config: rotation hour %d out of range", c.Hour)
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return confidence.Schedule{}, eris.Wrapf(err, "config: rotation timezone %q", c.Timezone)
	}
	return confidence.Schedule{
		Weekday:  time.Weekday(c.Weekday),
		Hour:     c.Hour,
		Location: loc,
	}, nil
}

// ServerConfig configures the HTTP adapter.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	AdminToken         string   `yaml:"admin_token" mapstructure:"admin_token"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	ThrottleRPS        float64  `yaml:"throttle_rps" mapstructure:"throttle_rps"`
	ThrottleBurst      int      `yaml:"throttle_burst" mapstructure:"throttle_burst"`
	CORSOrigins        []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// defaultRegions are the counties accepting flood reports, used when the
// config file sets none.
var defaultRegions = []geofence.Region{
	{Name: "Volusia", Bounds: geofence.Bounds{North: 29.3, South: 28.7, East: -80.7, West: -81.5}},
	{Name: "Palm Beach", Bounds: geofence.Bounds{North: 27.0, South: 26.1, East: -80.0, West: -80.9}},
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/floodwatch")

	// Environment
	v.SetEnvPrefix("FLOODWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "floodwatch.db")
	v.SetDefault("quota.reports_per_day", ratelimit.DefaultQuota)
	v.SetDefault("confidence.distance_meters", 100)
	v.SetDefault("confidence.window_hours", 2)
	v.SetDefault("rotation.weekday", int(time.Wednesday))
	v.SetDefault("rotation.hour", 5)
	v.SetDefault("rotation.timezone", "America/New_York")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_secs", 15)
	v.SetDefault("server.throttle_rps", 50)
	v.SetDefault("server.throttle_burst", 100)
	v.SetDefault("server.cors_origins", []string{"*"})
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

	if len(cfg.Regions) == 0 {
		cfg.Regions = defaultRegions
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
