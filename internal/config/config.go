package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	RedisURL             string `env:"REDIS_URL,required=true"`
	RabbitMQURL          string `env:"RABBITMQ_URL,required=true"`
	UserServiceURL       string `env:"USER_SERVICE_URL,required=true"`
	TemplateServiceURL   string `env:"TEMPLATE_SERVICE_URL,required=true"`
	RateLimitPerSec      int    `env:"RATE_LIMIT_PER_SEC,default=100"`
	DependencyTimeoutSec int    `env:"DEPENDENCY_TIMEOUT_SEC,default=5"`
	APIPort              int    `env:"API_PORT,default=8080"`
	LogLevel             string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
