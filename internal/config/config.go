package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	RedisHost     string `env:"REDIS_HOST"     envDefault:"localhost"`
	RedisPort     uint16 `env:"REDIS_PORT"     envDefault:"6379"   validate:"min=1000,max=65535"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"sense_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"sense_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"sense_db"`

	// Analyzer. An empty key keeps the pipeline on synthetic snapshots.
	OpenAIAPIKey        string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL       string        `env:"OPENAI_BASE_URL"`
	AnalyzerModel       string        `env:"ANALYZER_MODEL"        envDefault:"gpt-4o-mini" validate:"required"`
	AnalyzerTimeout     time.Duration `env:"ANALYZER_TIMEOUT"      envDefault:"20s"         validate:"min=1s"`
	AnalyzerMaxInflight int64         `env:"ANALYZER_MAX_INFLIGHT" envDefault:"2"           validate:"min=1,max=16"`

	SnapshotTTL    time.Duration `env:"SNAPSHOT_TTL"    envDefault:"2h"`
	PersistTimeout time.Duration `env:"PERSIST_TIMEOUT" envDefault:"3s"`

	AuthDisabled bool `env:"AUTH_DISABLED" envDefault:"false"`

	LogMode  string `env:"LOG_MODE"  envDefault:"development" validate:"oneof=development production"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"debug"       validate:"oneof=debug info warn error"`
	LogFile  string `env:"LOG_FILE"`

	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"8085" validate:"min=1000,max=65535"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	// Parse config from environment variables
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	// Validate the config
	validate := validator.New()
	err = validate.Struct(cfg)
	if err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}

// AnalyzerEnabled reports whether a remote analyzer should be wired.
func (c *Config) AnalyzerEnabled() bool { return c.OpenAIAPIKey != "" }
