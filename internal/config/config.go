// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"quiz-story/internal/ending"
	"quiz-story/internal/models"
	"quiz-story/pkg/database"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port        string `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`

	DBHost        string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER" default:"postgres"`
	DBPassword    string        `envconfig:"DB_PASSWORD"`
	DBName        string        `envconfig:"DB_NAME" default:"quiz_story"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int           `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout time.Duration `envconfig:"DB_MAX_IDLE_TIME" default:"5m"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	JWTSecret      string   `envconfig:"JWT_SECRET"`
	AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`

	EndingGoodThreshold    float64 `envconfig:"ENDING_GOOD_THRESHOLD" default:"70"`
	EndingNeutralThreshold float64 `envconfig:"ENDING_NEUTRAL_THRESHOLD" default:"20"`

	LockTTL       time.Duration `envconfig:"LOCK_TTL" default:"10s"`
	StoryCacheTTL time.Duration `envconfig:"STORY_CACHE_TTL" default:"24h"`
	ReadTimeout   time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout  time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15s"`
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var problems []string
	c.StoreDriver = strings.ToLower(c.StoreDriver)
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DBPassword == "" {
			problems = append(problems, "DB_PASSWORD is required for the postgres driver")
		}
	case DriverMemory:
	default:
		problems = append(problems, fmt.Sprintf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if c.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET is required")
	}
	if _, err := ending.NewSelector(c.EndingGoodThreshold, c.EndingNeutralThreshold); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", models.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) Database() *database.Config {
	return &database.Config{
		Host:         c.DBHost,
		Port:         c.DBPort,
		User:         c.DBUser,
		Password:     c.DBPassword,
		DBName:       c.DBName,
		SSLMode:      c.DBSSLMode,
		MaxOpenConns: c.DBMaxConns,
		MaxIdleTime:  c.DBIdleTimeout,
	}
}
