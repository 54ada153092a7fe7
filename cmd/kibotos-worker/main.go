package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"kibotos/internal/config"
	"kibotos/internal/evaluator"
	"kibotos/internal/evaluator/vlmclient"
	"kibotos/internal/logging"
	"kibotos/internal/objectstore"
	"kibotos/internal/videoprobe"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func main() {
	logCfg, err := config.LoadLog()
	if err != nil {
		panic(err)
	}
	logging.Init(logCfg)

	cfg, err := config.LoadWorker()
	if err != nil {
		log.Fatal().Err(err).Msg("load config failed")
	}
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = uuid.NewString()
	}

	objStore, err := objectstore.New(context.Background(), cfg.ObjectStore)
	if err != nil {
		log.Fatal().Err(err).Msg("object store init failed")
	}
	prober, err := videoprobe.New()
	if err != nil {
		log.Fatal().Err(err).Msg("video prober init failed")
	}

	worker := &evaluator.Worker{
		ID:  workerID,
		API: evaluator.NewAPIClient(cfg.APIAddr, cfg.APIKey, time.Duration(cfg.LeaseDurationSec)*time.Second),

		Pipeline: &evaluator.Pipeline{
			Store:             objStore,
			Prober:            prober,
			VLM:               vlmclient.New(cfg.VLM.APIURL, cfg.VLM.APIKey, cfg.VLM.Model),
			Keyframes:         evaluator.DefaultKeyframes,
			MaxVLMRetryCycles: cfg.MaxVLMRetryCycles,
		},
		PollInterval:  time.Duration(cfg.PollIntervalSec) * time.Second,
		BatchSize:     cfg.BatchSize,
		LeaseDuration: time.Duration(cfg.LeaseDurationSec) * time.Second,
		Concurrency:   cfg.EvalConcurrency,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("worker failed")
	}
}
