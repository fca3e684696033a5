package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/events"
	"github.com/noah-isme/toko-storefront/internal/notify"
	"github.com/noah-isme/toko-storefront/internal/obs"
)

// Forwarder delivers an event to an external system.
type Forwarder interface {
	Deliver(ctx context.Context, ev events.Event) (int, error)
}

// EventHandler processes TypeDomainEvent tasks. Without a forwarder events
// are only logged.
type EventHandler struct {
	Forwarder Forwarder
	Logger    *zerolog.Logger
}

// ProcessTask implements asynq.Handler. Malformed payloads and rejected
// deliveries skip retry; everything else is retried by asynq.
func (h *EventHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	logger := h.logger()
	ev, err := DecodeEvent(task)
	if err != nil {
		logger.Error().Err(err).Msg("event_task_malformed")
		obs.CountEventProcessed("unknown", false)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	entry := logger.With().
		Str("event_id", ev.ID).
		Str("topic", ev.Topic).
		Str("aggregate_id", ev.AggregateID).
		Logger()
	if h.Forwarder == nil {
		entry.Info().RawJSON("payload", payloadOrNull(ev)).Msg("event_received")
		obs.CountEventProcessed(ev.Topic, true)
		return nil
	}
	start := time.Now()
	status, err := h.Forwarder.Deliver(ctx, ev)
	obs.CountEventProcessed(ev.Topic, err == nil)
	if err != nil {
		entry.Warn().Err(err).Int("status", status).Msg("event_delivery_failed")
		if errors.Is(err, notify.ErrRejected) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	entry.Info().Int("status", status).Float64("duration_ms", obs.DurationMillis(time.Since(start))).Msg("event_delivered")
	return nil
}

func (h *EventHandler) logger() *zerolog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

func payloadOrNull(ev events.Event) []byte {
	if len(ev.Payload) == 0 {
		return []byte("null")
	}
	return ev.Payload
}

// NewServeMux routes event tasks to h.
func NewServeMux(h *EventHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeDomainEvent, h)
	return mux
}

// ServerConfig tunes the asynq server.
type ServerConfig struct {
	Concurrency     int
	Queue           string
	ShutdownTimeout time.Duration
	Logger          *zerolog.Logger
}

// NewServer builds an asynq server consuming the event queue.
func NewServer(redisOpt asynq.RedisConnOpt, cfg ServerConfig) *asynq.Server {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	queue := cfg.Queue
	if queue == "" {
		queue = DefaultQueue
	}
	acfg := asynq.Config{
		Concurrency:     concurrency,
		Queues:          map[string]int{queue: 1},
		ShutdownTimeout: cfg.ShutdownTimeout,
		RetryDelayFunc:  asynq.DefaultRetryDelayFunc,
	}
	if cfg.Logger != nil {
		acfg.Logger = Logger{L: cfg.Logger}
		acfg.ErrorHandler = asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			cfg.Logger.Error().Err(err).Str("type", task.Type()).Msg("task_failed")
		})
	}
	return asynq.NewServer(redisOpt, acfg)
}
