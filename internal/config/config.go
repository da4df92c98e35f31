// Package config loads application configuration from an optional
// config.yaml and CAPO_* environment variables, and initializes the
// global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
	Import ImportConfig `yaml:"import" mapstructure:"import"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig tunes the postgres connection pool. Ignored by the sqlite
// driver.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port            int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins  []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	UploadRatePers  float64  `yaml:"upload_rate_per_sec" mapstructure:"upload_rate_per_sec"`
	UploadBurst     int      `yaml:"upload_burst" mapstructure:"upload_burst"`
	MaxUploadBytes  int64    `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
	ShutdownTimeout int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// PersonMarkers maps a household member to the lowercase substrings
// that attribute a row to them.
type PersonMarkers struct {
	Name    string   `yaml:"name" mapstructure:"name"`
	Markers []string `yaml:"markers" mapstructure:"markers"`
}

// ImportConfig configures person attribution for the import pipeline.
// FallbackPersonID is used when the attributed name has no matching row
// in the persons table.
type ImportConfig struct {
	DefaultPerson    string          `yaml:"default_person" mapstructure:"default_person"`
	FallbackPersonID int64           `yaml:"fallback_person_id" mapstructure:"fallback_person_id"`
	Persons          []PersonMarkers `yaml:"persons" mapstructure:"persons"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CAPO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "capo.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.upload_rate_per_sec", 1.0)
	v.SetDefault("server.upload_burst", 3)
	v.SetDefault("server.max_upload_bytes", 10<<20)
	v.SetDefault("server.shutdown_timeout_secs", 10)
	v.SetDefault("import.default_person", "Leonardo")
	v.SetDefault("import.fallback_person_id", 1)

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

	if len(cfg.Import.Persons) == 0 {
		cfg.Import.Persons = defaultPersons()
	}

	return &cfg, nil
}

// defaultPersons is the built-in household. Overridable via
// import.persons in config.yaml.
func defaultPersons() []PersonMarkers {
	return []PersonMarkers{
		{Name: "Giovana", Markers: []string{"giovana", "dorneles"}},
		{Name: "Leonardo", Markers: []string{"leonardo", "siqueira"}},
	}
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
