package config

import "github.com/caarlos0/env/v11"

type WorkerConfig struct {
	APIAddr           string `env:"API_ADDR" envDefault:"http://localhost:8080"`
	APIKey            string `env:"WORKER_API_KEY"`
	WorkerID          string `env:"WORKER_ID"`
	PollIntervalSec   int    `env:"POLL_INTERVAL_SEC" envDefault:"5"`
	BatchSize         int    `env:"BATCH_SIZE" envDefault:"4"`
	LeaseDurationSec  int    `env:"LEASE_DURATION_SEC" envDefault:"300"`
	EvalConcurrency   int    `env:"EVAL_CONCURRENCY" envDefault:"4"`
	MaxVLMRetryCycles int    `env:"MAX_VLM_RETRY_CYCLES" envDefault:"2"`

	ObjectStore ObjectStoreConfig
	VLM         VLMConfig
}

func LoadWorker() (WorkerConfig, error) {
	var cfg WorkerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
