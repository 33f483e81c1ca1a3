package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	ClickHouse struct {
		Host             string        `yaml:"host" validate:"required"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"coinsage"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled        bool     `yaml:"enabled"`
		Brokers        []string `yaml:"brokers"`
		BarsTopic      string   `yaml:"bars_topic" default:"price-bars"`
		ForecastsTopic string   `yaml:"forecasts_topic" default:"forecasts"`
		RequiredAcks   int      `yaml:"required_acks" default:"-1"`
		Compression    string   `yaml:"compression" default:"gzip"`
		Producer       struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"1s"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"coinsage"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"10000"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Redis struct {
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Queue struct {
		Workers    int           `yaml:"workers" default:"1"`
		RetryLimit int           `yaml:"retry_limit" default:"2"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
		KeyPrefix  string        `yaml:"key_prefix" default:"coinsage:queue"`
	} `yaml:"queue"`
	Cache struct {
		Backend     string        `yaml:"backend" default:"memory" validate:"oneof=memory redis"`
		ForecastTTL time.Duration `yaml:"forecast_ttl" default:"1m"`
		ModelTTL    time.Duration `yaml:"model_ttl" default:"30m"`
	} `yaml:"cache"`
	Model struct {
		SequenceLength int     `yaml:"sequence_length" default:"60" validate:"gte=2"`
		MaxFeatures    int     `yaml:"max_features" default:"5" validate:"gte=1"`
		MinFeatures    int     `yaml:"min_features" default:"2" validate:"gte=1"`
		HiddenSizes    []int   `yaml:"hidden_sizes" default:"[64,32]" validate:"min=1,dive,gt=0"`
		Epochs         int     `yaml:"epochs" default:"50" validate:"gt=0"`
		BatchSize      int     `yaml:"batch_size" default:"32" validate:"gt=0"`
		LearningRate   float64 `yaml:"learning_rate" default:"0.001" validate:"gt=0"`
		Patience       int     `yaml:"patience" default:"5" validate:"gte=0"`
		ClipNorm       float64 `yaml:"clip_norm" default:"5"`
		ScalerKind     string  `yaml:"scaler_kind" default:"minmax" validate:"oneof=minmax robust"`
		Seed           int64   `yaml:"seed" default:"42"`
	} `yaml:"model"`
	Registry struct {
		Dir      string `yaml:"dir" default:"data/registry"`
		ModelDir string `yaml:"model_dir" default:"data/models"`
	} `yaml:"registry"`
	Training struct {
		Symbols          []string      `yaml:"symbols" validate:"required,min=1"`
		Timeframe        string        `yaml:"timeframe" default:"1h" validate:"oneof=1m 1h 1d"`
		LookbackBars     int           `yaml:"lookback_bars" default:"1000" validate:"gt=0"`
		TrainOnStart     bool          `yaml:"train_on_start" default:"true"`
		RetrainInterval  time.Duration `yaml:"retrain_interval" default:"24h"`
		ForecastInterval time.Duration `yaml:"forecast_interval" default:"1m"`
	} `yaml:"training"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Fill unset fields before validation.
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Training.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("MODEL_DIR"); v != "" {
		c.Registry.ModelDir = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Model.MinFeatures > c.Model.MaxFeatures {
		return fmt.Errorf("model.min_features (%d) cannot exceed model.max_features (%d)",
			c.Model.MinFeatures, c.Model.MaxFeatures)
	}
	return nil
}
