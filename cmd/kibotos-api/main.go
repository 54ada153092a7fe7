package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"kibotos/internal/admission"
	"kibotos/internal/config"
	"kibotos/internal/logging"
	"kibotos/internal/objectstore"
	"kibotos/internal/store"
	httptransport "kibotos/internal/transport/http"

	"github.com/rs/zerolog/log"
)

var version = "dev"

func main() {
	logCfg, err := config.LoadLog()
	if err != nil {
		panic(err)
	}
	logging.Init(logCfg)

	cfg, err := config.LoadApp()
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

	objStore, err := objectstore.New(context.Background(), cfg.ObjectStore)
	if err != nil {
		log.Fatal().Err(err).Msg("object store init failed")
	}

	srv := &httptransport.Server{
		Store:       st,
		Admission:   admission.NewService(st),
		ObjectStore: objStore,
		Version:     version,
	}
	router := httptransport.NewRouter(srv, cfg.API.AdminAPIKey, cfg.API.WorkerAPIKey)

	server := &http.Server{
		Addr:              cfg.API.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.API.HTTPAddr).Str("version", version).Msg("http listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("server shut down")
}
