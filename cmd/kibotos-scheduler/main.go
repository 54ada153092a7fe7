package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"kibotos/internal/config"
	"kibotos/internal/logging"
	"kibotos/internal/scheduler"
	"kibotos/internal/store"

	"github.com/rs/zerolog/log"
)

func main() {
	logCfg, err := config.LoadLog()
	if err != nil {
		panic(err)
	}
	logging.Init(logCfg)

	cfg, err := config.LoadScheduler()
	if err != nil {
		log.Fatal().Err(err).Msg("load config failed")
	}

	st, err := store.New(cfg.Store.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	defer st.Close()
	if err := st.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("db ping failed")
	}

	sched := &scheduler.Scheduler{
		Store:         st,
		CycleDuration: time.Duration(cfg.CycleDurationMin) * time.Minute,
		CheckInterval: time.Duration(cfg.CheckIntervalSec) * time.Second,
		AutoStart:     cfg.AutoStart,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("scheduler failed")
	}
}
