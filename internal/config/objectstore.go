package config

import "github.com/caarlos0/env/v11"

type ObjectStoreConfig struct {
	S3Bucket           string `env:"S3_BUCKET,required,notEmpty"`
	S3Region           string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint         string `env:"S3_ENDPOINT"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	PresignTTLSec      int    `env:"S3_PRESIGN_TTL_SEC" envDefault:"900"`
}

func LoadObjectStore() (ObjectStoreConfig, error) {
	var cfg ObjectStoreConfig
	err := env.Parse(&cfg)
	return cfg, err
}
