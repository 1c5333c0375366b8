package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Placeholder policies for rows missing a store name or address
const (
	PlaceholderSynthesize = "synthesize"
	PlaceholderReject     = "reject"
)

// Config represents the entire application configuration
type Config struct {
	Env      string         `mapstructure:"env"`
	Port     int            `mapstructure:"port"`
	AppName  string         `mapstructure:"app_name"`
	MongoDB  MongoDBConfig  `mapstructure:"mongodb"`
	Redis    RedisConfig    `mapstructure:"redis"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	S3       S3Config       `mapstructure:"s3"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	CORS     CORSConfig     `mapstructure:"cors"`
}

type RedisConfig struct {
	Address       string `mapstructure:"address"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	Prefix        string `mapstructure:"prefix"`
	NotifyChannel string `mapstructure:"notify_channel"`
	ProgressTTL   int    `mapstructure:"progress_ttl"` // seconds
}

// RabbitMQConfig contains the broker used to deliver jobs to workers
type RabbitMQConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	VHost         string `mapstructure:"vhost"`
	ExchangeName  string `mapstructure:"exchange_name"`
	QueueName     string `mapstructure:"queue_name"`
	PrefetchCount int    `mapstructure:"prefetch_count"`
}

// IngestConfig tunes the batch ingestion pipeline
type IngestConfig struct {
	BatchSize         int    `mapstructure:"batch_size"`
	ThrottleMS        int    `mapstructure:"throttle_ms"`
	Workers           int    `mapstructure:"workers"`
	MaxRetry          int    `mapstructure:"max_retry"`
	PlaceholderPolicy string `mapstructure:"placeholder_policy"`
	UploadDir         string `mapstructure:"upload_dir"`
	MaxFileSizeMB     int    `mapstructure:"max_file_size_mb"`
}

// S3Config is optional; when disabled failure exports cannot be archived
type S3Config struct {
	Enabled   bool   `mapstructure:"enabled"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"` // seconds that preflight requests can be cached
}

// MongoDBConfig contains MongoDB connection details
type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       string `mapstructure:"db"`
}

// LoggingConfig contains logging-related configurations
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from the specified file path. Any key can be
// overridden with a BULKLOAD_ prefixed environment variable, e.g.
// BULKLOAD_INGEST_BATCH_SIZE.
func LoadConfig(filePath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if filePath != "" {
		v.SetConfigFile(filePath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BULKLOAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if filePath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("port", 8080)
	v.SetDefault("app_name", "bulkload")

	v.SetDefault("mongodb.uri", "mongodb://localhost:27017")
	v.SetDefault("mongodb.username", "")
	v.SetDefault("mongodb.password", "")
	v.SetDefault("mongodb.db", "bulkUploadDB")

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "bulkload")
	v.SetDefault("redis.notify_channel", "bulkload:events")
	v.SetDefault("redis.progress_ttl", 3600)

	v.SetDefault("rabbitmq.host", "localhost")
	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.username", "guest")
	v.SetDefault("rabbitmq.password", "guest")
	v.SetDefault("rabbitmq.vhost", "")
	v.SetDefault("rabbitmq.exchange_name", "bulkload")
	v.SetDefault("rabbitmq.queue_name", "record-queue")
	v.SetDefault("rabbitmq.prefetch_count", 3)

	v.SetDefault("ingest.batch_size", 500)
	v.SetDefault("ingest.throttle_ms", 100)
	v.SetDefault("ingest.workers", 3)
	v.SetDefault("ingest.max_retry", 5000)
	v.SetDefault("ingest.placeholder_policy", PlaceholderSynthesize)
	v.SetDefault("ingest.upload_dir", "uploads")
	v.SetDefault("ingest.max_file_size_mb", 100)

	v.SetDefault("s3.enabled", false)
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.prefix", "exports")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Accept"})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.max_age", 600)
}

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be positive, got %d", c.Ingest.Workers)
	}
	if c.Ingest.ThrottleMS < 0 {
		return fmt.Errorf("ingest.throttle_ms must not be negative, got %d", c.Ingest.ThrottleMS)
	}
	if c.Ingest.MaxRetry <= 0 {
		return fmt.Errorf("ingest.max_retry must be positive, got %d", c.Ingest.MaxRetry)
	}
	switch c.Ingest.PlaceholderPolicy {
	case PlaceholderSynthesize, PlaceholderReject:
	default:
		return fmt.Errorf("unknown ingest.placeholder_policy %q", c.Ingest.PlaceholderPolicy)
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		return errors.New("s3.bucket is required when s3 is enabled")
	}
	return nil
}
