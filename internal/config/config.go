package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // device timezones must resolve on minimal images

	"github.com/spf13/viper"

	"github.com/rewired-gh/solarcast/internal/models"
)

// Config represents the complete application configuration
type Config struct {
	Device   DeviceConfig   `mapstructure:"device"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Model    ModelConfig    `mapstructure:"model"`
	Store    StoreConfig    `mapstructure:"store"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// DeviceConfig identifies the field device and its field names
type DeviceConfig struct {
	ID     string          `mapstructure:"id"`
	Fields models.FieldMap `mapstructure:"fields"`
}

// RealtimeConfig holds poll loop behavior configuration
type RealtimeConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	HorizonSteps    int           `mapstructure:"horizon_steps"`
	Timezone        string        `mapstructure:"timezone"`
	PredictionField string        `mapstructure:"prediction_field"`
	DefaultFill     float64       `mapstructure:"default_fill"`
}

// ModelConfig points at the trained model artifact
type ModelConfig struct {
	ArtifactPath string `mapstructure:"artifact_path"`
}

// StoreConfig selects and configures the remote store backend
type StoreConfig struct {
	Backend         string        `mapstructure:"backend"` // "firebase", "redis" or "memory"
	DatabaseURL     string        `mapstructure:"database_url"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	CredentialsEnv  string        `mapstructure:"credentials_env"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	RedisPrefix     string        `mapstructure:"redis_prefix"`
	Timeout         time.Duration `mapstructure:"timeout"` // 0 disables per-call timeouts
}

// JournalConfig holds the local prediction journal configuration
type JournalConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	DBPath     string `mapstructure:"db_path"`
	MaxRecords int    `mapstructure:"max_records"`
}

// KafkaConfig holds the optional prediction event stream configuration
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// TelegramConfig holds Telegram alert configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// HTTPConfig holds listener addresses
type HTTPConfig struct {
	Addr        string `mapstructure:"addr"`
	MetricsAddr string `mapstructure:"metrics_addr"` // used by "run"; empty disables
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Enable environment variable override, e.g. SOLARCAST_DEVICE_ID
	v.SetEnvPrefix("SOLARCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	fields := models.DefaultFieldMap()

	// Device defaults
	v.SetDefault("device.id", "esp32_1")
	v.SetDefault("device.fields.irradiance", fields.Irradiance)
	v.SetDefault("device.fields.ambient_temp", fields.AmbientTemp)
	v.SetDefault("device.fields.module_temp", fields.ModuleTemp)
	v.SetDefault("device.fields.humidity", fields.Humidity)
	v.SetDefault("device.fields.lux", fields.Lux)
	v.SetDefault("device.fields.dc_power", fields.DCPower)

	// Realtime defaults
	v.SetDefault("realtime.interval", "5s")
	v.SetDefault("realtime.horizon_steps", 4)
	v.SetDefault("realtime.timezone", "Local")
	v.SetDefault("realtime.prediction_field", "prediksi")
	v.SetDefault("realtime.default_fill", 0.0)

	// Model defaults
	v.SetDefault("model.artifact_path", "./models/knn_4h_ahead.json")

	// Store defaults
	v.SetDefault("store.backend", "firebase")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.credentials_file", "")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.credentials_env", "SOLARCAST_STORE_CREDENTIALS")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.redis_prefix", "solarcast")
	v.SetDefault("store.timeout", "0s")

	// Journal defaults
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.db_path", "./data/solarcast.db")
	v.SetDefault("journal.max_records", 10000)

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "solarcast.predictions")
	v.SetDefault("kafka.write_timeout", "5s")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// HTTP defaults
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.metrics_addr", ":9102")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Device config
	if strings.TrimSpace(c.Device.ID) == "" {
		return fmt.Errorf("device.id is required")
	}
	if strings.Contains(c.Device.ID, "/") {
		return fmt.Errorf("device.id must not contain '/'")
	}
	if err := c.Device.Fields.Validate(); err != nil {
		return fmt.Errorf("device.fields: %w", err)
	}

	// Validate Realtime config
	if c.Realtime.Interval < time.Second {
		return fmt.Errorf("realtime.interval must be at least 1 second")
	}
	if c.Realtime.HorizonSteps < 1 {
		return fmt.Errorf("realtime.horizon_steps must be at least 1")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("realtime.timezone is invalid: %w", err)
	}
	if c.Realtime.PredictionField == "" {
		return fmt.Errorf("realtime.prediction_field is required")
	}

	// Validate Model config
	if c.Model.ArtifactPath == "" {
		return fmt.Errorf("model.artifact_path is required")
	}

	// Validate Store config
	switch c.Store.Backend {
	case "firebase":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("store.database_url is required for the firebase backend")
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("store.redis_addr is required for the redis backend")
		}
	case "memory":
	default:
		return fmt.Errorf("store.backend must be one of: firebase, redis, memory")
	}
	if c.Store.Timeout < 0 {
		return fmt.Errorf("store.timeout must not be negative")
	}

	// Validate Journal config
	if c.Journal.Enabled {
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal.db_path is required when journal is enabled")
		}
		if c.Journal.MaxRecords < 1 {
			return fmt.Errorf("journal.max_records must be at least 1")
		}
	}

	// Validate Kafka config
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required when kafka is enabled")
		}
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Location resolves realtime.timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Realtime.Timezone == "" || c.Realtime.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Realtime.Timezone)
}

// StoreCredentials returns the opaque credential blob from the environment
// variable named by store.credentials_env, or nil.
func (c *Config) StoreCredentials() []byte {
	if c.Store.CredentialsEnv == "" {
		return nil
	}
	if v := os.Getenv(c.Store.CredentialsEnv); v != "" {
		return []byte(v)
	}
	return nil
}
