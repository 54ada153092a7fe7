package config

import "github.com/caarlos0/env/v11"

type VLMConfig struct {
	APIURL  string `env:"VLM_API_URL,required,notEmpty"`
	APIKey  string `env:"VLM_API_KEY"`
	Model   string `env:"VLM_MODEL" envDefault:"gpt-4o-mini"`
	Version string `env:"VLM_MODEL_VERSION" envDefault:"v1"`
}

func LoadVLM() (VLMConfig, error) {
	var cfg VLMConfig
	err := env.Parse(&cfg)
	return cfg, err
}
