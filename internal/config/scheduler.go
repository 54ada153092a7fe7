package config

import "github.com/caarlos0/env/v11"

type SchedulerConfig struct {
	Store            StoreConfig
	CycleDurationMin int  `env:"CYCLE_DURATION_MIN" envDefault:"60"`
	CheckIntervalSec int  `env:"CHECK_INTERVAL_SEC" envDefault:"30"`
	AutoStart        bool `env:"AUTO_START" envDefault:"true"`
}

func LoadScheduler() (SchedulerConfig, error) {
	var cfg SchedulerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
