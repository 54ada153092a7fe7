package config

import "github.com/caarlos0/env/v11"

type StoreConfig struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
}

func LoadStore() (StoreConfig, error) {
	var cfg StoreConfig
	err := env.Parse(&cfg)
	return cfg, err
}
