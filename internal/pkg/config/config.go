package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// CatalogConfig locates the shard catalog file.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// EngineConfig tunes calls to shard engine backends.
type EngineConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// BatchConfig locates the remote batch-execution service.
type BatchConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PipelineConfig tunes the build orchestrator.
type PipelineConfig struct {
	Mode               string `mapstructure:"mode"`
	MaxAttempts        int    `mapstructure:"max_attempts"`
	MaxInFlight        int    `mapstructure:"max_in_flight"`
	PollInitialSeconds int    `mapstructure:"poll_initial_seconds"`
	PollMaxSeconds     int    `mapstructure:"poll_max_seconds"`
	Queue              string `mapstructure:"queue"`
	ArtifactBase       string `mapstructure:"artifact_base"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("catalog.path", "configs/shards.yaml")
	v.SetDefault("engine.timeout_seconds", 10)
	v.SetDefault("batch.base_url", "http://localhost:9400")
	v.SetDefault("batch.timeout_seconds", 15)
	v.SetDefault("pipeline.mode", "mld")
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.max_in_flight", 8)
	v.SetDefault("pipeline.poll_initial_seconds", 2)
	v.SetDefault("pipeline.poll_max_seconds", 30)
	v.SetDefault("pipeline.queue", "graph-builds")
	v.SetDefault("pipeline.artifact_base", "s3://meridian-graphs")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "meridian")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "meridian")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: MERIDIAN_DATABASE_HOST → database.host
	v.SetEnvPrefix("MERIDIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Catalog.Path == "" {
		errs = append(errs, "catalog.path is required")
	}
	if c.Engine.TimeoutSeconds <= 0 {
		errs = append(errs, "engine.timeout_seconds must be positive")
	}
	if c.Batch.BaseURL == "" {
		errs = append(errs, "batch.base_url is required")
	}
	if c.Pipeline.Mode != "ch" && c.Pipeline.Mode != "mld" {
		errs = append(errs, fmt.Sprintf("pipeline.mode must be ch or mld, got %q", c.Pipeline.Mode))
	}
	if c.Pipeline.MaxAttempts < 1 {
		errs = append(errs, "pipeline.max_attempts must be at least 1")
	}
	if c.Pipeline.MaxInFlight < 1 {
		errs = append(errs, "pipeline.max_in_flight must be at least 1")
	}
	if c.Pipeline.ArtifactBase == "" {
		errs = append(errs, "pipeline.artifact_base is required")
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
