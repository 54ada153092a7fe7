package config

import "github.com/caarlos0/env/v11"

type APIConfig struct {
	HTTPAddr     string `env:"HTTP_ADDR" envDefault:":8080"`
	AdminAPIKey  string `env:"ADMIN_API_KEY"`
	WorkerAPIKey string `env:"WORKER_API_KEY"`
}

func LoadAPI() (APIConfig, error) {
	var cfg APIConfig
	err := env.Parse(&cfg)
	return cfg, err
}
