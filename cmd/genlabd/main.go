package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"genlab"
	"genlab/internal/handlers"
	"genlab/internal/httpapi"
	"genlab/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	client, err := genlab.New(genlab.Options{
		BaseURL:         cfg.BaseURL,
		Token:           cfg.APIToken,
		SessionCookie:   cfg.SessionCookie,
		ProjectID:       cfg.ProjectID,
		Model:           cfg.Model,
		EnhanceModelID:  cfg.EnhanceModelID,
		MaxPollAttempts: cfg.MaxPollAttempts,
		PollInterval:    cfg.PollInterval,
		RequestTimeout:  cfg.RequestTimeout,
		Logger:          &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build genlab client")
	}

	app := handlers.NewApp(client, logger)
	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("genlabd listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
