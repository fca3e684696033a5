// Package queue moves domain events onto asynq tasks and consumes them in
// the worker process.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/toko-storefront/internal/events"
	"github.com/noah-isme/toko-storefront/internal/obs"
)

// TypeDomainEvent is the asynq task type carrying an events.Event.
const TypeDomainEvent = "events:domain"

// DefaultQueue is the asynq queue used for event tasks.
const DefaultQueue = "events"

// Enqueuer is the subset of *asynq.Client used by Publisher.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Publisher is an events.Notifier that enqueues every event as a task.
// The event id doubles as the asynq task id, so re-publishing an event is a
// no-op while the original task is retained.
type Publisher struct {
	Client    Enqueuer
	Queue     string
	MaxRetry  int
	Retention time.Duration
}

// Notify implements events.Notifier.
func (p *Publisher) Notify(ctx context.Context, ev events.Event) error {
	if p == nil || p.Client == nil {
		return errors.New("queue: client not configured")
	}
	task, err := NewEventTask(ev)
	if err != nil {
		obs.CountEventPublished(ev.Topic, false)
		return err
	}
	queue := p.Queue
	if queue == "" {
		queue = DefaultQueue
	}
	opts := []asynq.Option{asynq.Queue(queue), asynq.TaskID(ev.ID)}
	if p.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(p.MaxRetry))
	}
	if p.Retention > 0 {
		opts = append(opts, asynq.Retention(p.Retention))
	}
	_, err = p.Client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		err = nil
	}
	obs.CountEventPublished(ev.Topic, err == nil)
	if err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", ev.Topic, err)
	}
	return nil
}

// NewEventTask encodes ev as a task.
func NewEventTask(ev events.Event) (*asynq.Task, error) {
	if ev.ID == "" || ev.Topic == "" {
		return nil, errors.New("queue: event id and topic are required")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("queue: encode event: %w", err)
	}
	return asynq.NewTask(TypeDomainEvent, payload), nil
}

// DecodeEvent reads the event carried by task.
func DecodeEvent(task *asynq.Task) (events.Event, error) {
	var ev events.Event
	if task == nil {
		return ev, errors.New("queue: nil task")
	}
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		return ev, fmt.Errorf("queue: decode event: %w", err)
	}
	if ev.ID == "" || ev.Topic == "" {
		return ev, errors.New("queue: event id and topic are required")
	}
	return ev, nil
}
