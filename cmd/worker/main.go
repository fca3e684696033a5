package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/toko-storefront/internal/config"
	"github.com/noah-isme/toko-storefront/internal/notify"
	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/queue"
	"github.com/noah-isme/toko-storefront/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RedisURL == "" {
		logger.Fatal().Msg("REDIS_URL is required for the event worker")
	}
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	handler := &queue.EventHandler{Logger: &logger}
	if cfg.EventWebhookURL != "" {
		if err := notify.ValidateURL(cfg.EventWebhookURL); err != nil {
			logger.Fatal().Err(err).Msg("invalid EVENT_WEBHOOK_URL")
		}
		// One attempt per task; asynq schedules the retries.
		handler.Forwarder = &notify.Webhook{
			URL:    cfg.EventWebhookURL,
			Secret: cfg.EventWebhookSecret,
			HTTP: resilience.HTTPClient{
				Client: notify.NewHTTPClient(cfg.EventWebhookTimeout),
				Breaker: resilience.NewBreaker(resilience.Settings{
					Target: "event-webhook",
					Logger: &logger,
				}),
				MaxAttempts: 1,
				Timeout:     cfg.EventWebhookTimeout,
			},
		}
	}

	srv := queue.NewServer(redisOpt, queue.ServerConfig{
		Concurrency:     cfg.QueueConcurrency,
		Queue:           cfg.QueueName,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          &logger,
	})
	if err := srv.Start(queue.NewServeMux(handler)); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	logger.Info().Str("queue", cfg.QueueName).Bool("webhook", handler.Forwarder != nil).Msg("worker starting")

	<-ctx.Done()
	logger.Info().Msg("worker shutting down")
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}
