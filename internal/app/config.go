package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/progressledger/internal/classifier"
	"github.com/yungbote/progressledger/internal/data/db"
	"github.com/yungbote/progressledger/internal/jobs/pipeline/process"
	"github.com/yungbote/progressledger/internal/observability"
	"github.com/yungbote/progressledger/internal/platform/envutil"
	"github.com/yungbote/progressledger/internal/realtime/bus"
	"github.com/yungbote/progressledger/internal/services"
	"github.com/yungbote/progressledger/internal/temporalx"
)

const (
	ExecutorLocal    = "local"
	ExecutorTemporal = "temporal"
)

type JobsConfig struct {
	// Executor is "local" (in-process worker) or "temporal".
	Executor         string `yaml:"executor"`
	LeaseTTLSeconds  int    `yaml:"lease_ttl_seconds"`
	HeartbeatSeconds int    `yaml:"heartbeat_seconds"`
	ProcessBatchSize int    `yaml:"process_batch_size"`
}

func (j JobsConfig) LeaseTTL() time.Duration {
	return time.Duration(j.LeaseTTLSeconds) * time.Second
}

func (j JobsConfig) Heartbeat() time.Duration {
	return time.Duration(j.HeartbeatSeconds) * time.Second
}

type Config struct {
	LogMode     string   `yaml:"log_mode"`
	HTTPAddr    string   `yaml:"http_addr"`
	InstanceID  string   `yaml:"instance_id"`
	CORSOrigins []string `yaml:"cors_origins"`

	AutoAcceptThreshold float64 `yaml:"auto_accept_threshold"`

	DB       db.Config                `yaml:"db"`
	Jobs     JobsConfig               `yaml:"jobs"`
	Redis    bus.RedisConfig          `yaml:"redis"`
	OpenAI   classifier.OpenAIConfig  `yaml:"openai"`
	Otel     observability.OtelConfig `yaml:"otel"`
	Temporal temporalx.Config         `yaml:"-"`
}

func defaultConfig() Config {
	host, _ := os.Hostname()
	if host == "" {
		host = "progressledger"
	}
	return Config{
		LogMode:             "development",
		HTTPAddr:            ":8080",
		InstanceID:          host,
		AutoAcceptThreshold: services.DefaultAutoAcceptThreshold,
		DB: db.Config{
			Driver:  db.DriverPostgres,
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			Name:    "progressledger",
			SSLMode: "disable",
		},
		Jobs: JobsConfig{
			Executor:         ExecutorLocal,
			LeaseTTLSeconds:  1800,
			HeartbeatSeconds: 15,
			ProcessBatchSize: process.DefaultBatchSize,
		},
		Redis: bus.RedisConfig{Channel: bus.DefaultChannel},
		OpenAI: classifier.OpenAIConfig{
			Model: classifier.DefaultOpenAIModel,
			RPS:   1,
		},
		Otel: observability.OtelConfig{
			ServiceName: "progressledger",
			Environment: "development",
			SampleRatio: 1,
		},
	}
}

// LoadConfig starts from defaults, applies the YAML file named by CONFIG_FILE
// when set, then lets environment variables override both.
func LoadConfig() (Config, error) {
	cfg := defaultConfig()
	if path := envutil.String("CONFIG_FILE", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	cfg.Jobs.Executor = strings.ToLower(strings.TrimSpace(cfg.Jobs.Executor))
	cfg.Temporal = temporalx.LoadConfig()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.HTTPAddr = envutil.String("HTTP_ADDR", cfg.HTTPAddr)
	cfg.InstanceID = envutil.String("INSTANCE_ID", cfg.InstanceID)
	if raw := envutil.String("CORS_ORIGINS", ""); raw != "" {
		cfg.CORSOrigins = splitCSV(raw)
	}
	cfg.AutoAcceptThreshold = envutil.Float("AUTO_ACCEPT_THRESHOLD", cfg.AutoAcceptThreshold)

	cfg.DB.Driver = envutil.String("DB_DRIVER", cfg.DB.Driver)
	cfg.DB.Host = envutil.String("POSTGRES_HOST", cfg.DB.Host)
	cfg.DB.Port = envutil.String("POSTGRES_PORT", cfg.DB.Port)
	cfg.DB.User = envutil.String("POSTGRES_USER", cfg.DB.User)
	cfg.DB.Password = envutil.String("POSTGRES_PASSWORD", cfg.DB.Password)
	cfg.DB.Name = envutil.String("POSTGRES_NAME", cfg.DB.Name)
	cfg.DB.SSLMode = envutil.String("POSTGRES_SSLMODE", cfg.DB.SSLMode)
	cfg.DB.SQLitePath = envutil.String("SQLITE_PATH", cfg.DB.SQLitePath)
	cfg.DB.MaxOpenConns = envutil.Int("POSTGRES_MAX_OPEN_CONNS", cfg.DB.MaxOpenConns)

	cfg.Jobs.Executor = envutil.String("JOB_EXECUTOR", cfg.Jobs.Executor)
	cfg.Jobs.LeaseTTLSeconds = envutil.Int("JOB_LEASE_TTL_SECONDS", cfg.Jobs.LeaseTTLSeconds)
	cfg.Jobs.HeartbeatSeconds = envutil.Int("JOB_HEARTBEAT_SECONDS", cfg.Jobs.HeartbeatSeconds)
	cfg.Jobs.ProcessBatchSize = envutil.Int("PROCESS_BATCH_SIZE", cfg.Jobs.ProcessBatchSize)

	cfg.Redis.Addr = envutil.String("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envutil.String("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envutil.Int("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.Channel = envutil.String("REDIS_CHANNEL", cfg.Redis.Channel)

	cfg.OpenAI.APIKey = envutil.String("OPENAI_API_KEY", cfg.OpenAI.APIKey)
	cfg.OpenAI.Model = envutil.String("OPENAI_MODEL", cfg.OpenAI.Model)
	cfg.OpenAI.BaseURL = envutil.String("OPENAI_BASE_URL", cfg.OpenAI.BaseURL)
	cfg.OpenAI.RPS = envutil.Float("CLASSIFIER_RPS", cfg.OpenAI.RPS)

	cfg.Otel.Enabled = envutil.Bool("OTEL_ENABLED", cfg.Otel.Enabled)
	cfg.Otel.ServiceName = envutil.String("OTEL_SERVICE_NAME", cfg.Otel.ServiceName)
	cfg.Otel.Environment = envutil.String("OTEL_ENVIRONMENT", cfg.Otel.Environment)
	cfg.Otel.Version = envutil.String("OTEL_SERVICE_VERSION", cfg.Otel.Version)
	cfg.Otel.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Otel.Endpoint)
	cfg.Otel.Headers = envutil.String("OTEL_EXPORTER_OTLP_HEADERS", cfg.Otel.Headers)
	cfg.Otel.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Otel.Insecure)
	cfg.Otel.SampleRatio = envutil.Float("OTEL_SAMPLE_RATIO", cfg.Otel.SampleRatio)
}

func (c Config) validate() error {
	switch c.Jobs.Executor {
	case ExecutorLocal, ExecutorTemporal:
	default:
		return fmt.Errorf("unknown JOB_EXECUTOR %q", c.Jobs.Executor)
	}
	if c.AutoAcceptThreshold <= 0 || c.AutoAcceptThreshold > 1 {
		return fmt.Errorf("AUTO_ACCEPT_THRESHOLD must be in (0, 1], got %v", c.AutoAcceptThreshold)
	}
	if c.Jobs.LeaseTTLSeconds < 0 {
		return fmt.Errorf("JOB_LEASE_TTL_SECONDS must not be negative")
	}
	return nil
}

func splitCSV(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
