package config

import "github.com/caarlos0/env/v11"

// LogConfig is shared by all three binaries (API, scheduler, worker);
// each loads it independently so a worker can log at debug while the
// API stays at info.
type LogConfig struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Format      string `env:"LOG_FORMAT" envDefault:"json"` // json or console
	SampleEvery int    `env:"LOG_SAMPLE_EVERY" envDefault:"0"`
	File        string `env:"LOG_FILE"`
	FileMaxMB   int    `env:"LOG_FILE_MAX_MB" envDefault:"64"`
}

func LoadLog() (LogConfig, error) {
	var cfg LogConfig
	err := env.Parse(&cfg)
	return cfg, err
}
