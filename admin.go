package pgbus

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pgbus/pgbus/internal/busdb"
)

// DefaultMaxRetries is applied when a queue is created without an explicit
// retry budget.
const DefaultMaxRetries = 5

var (
	ErrWorkerNotFound   = busdb.ErrWorkerNotFound
	ErrQueueNotFound    = busdb.ErrQueueNotFound
	ErrQueueExists      = busdb.ErrQueueExists
	ErrInvalidQueueName = busdb.ErrInvalidQueueName
	ErrDuplicateMessage = busdb.ErrDuplicateMessage
)

type Worker struct {
	ID              string
	Name            string
	Endpoint        string
	RPS             int
	CreatedAt       time.Time
	LastHeartbeatAt *time.Time
}

type Queue struct {
	ID         string
	Name       string
	Pattern    string
	WorkerID   string
	MaxRetries int
	CreatedAt  time.Time
}

type CreateWorkerParams struct {
	Name     string
	Endpoint string
	// RPS caps the lease batch per dispatch tick, bounding outbound
	// requests per second for each queue bound to this worker.
	RPS int
}

type CreateQueueParams struct {
	Name     string
	Pattern  string
	WorkerID string
	// MaxRetries below zero selects DefaultMaxRetries.
	MaxRetries int
}

func (b *Broker) CreateWorker(ctx context.Context, params CreateWorkerParams) (Worker, error) {
	if params.RPS <= 0 {
		return Worker{}, errors.New("worker rps must be positive")
	}
	if err := validateEndpoint(params.Endpoint); err != nil {
		return Worker{}, err
	}

	worker := &busdb.Worker{
		ID:        ulid.Make().String(),
		Name:      params.Name,
		Endpoint:  params.Endpoint,
		RPS:       params.RPS,
		CreatedAt: b.clock.Now().UTC(),
	}
	if err := b.store.CreateWorker(ctx, worker); err != nil {
		return Worker{}, err
	}

	return workerFromRow(worker), nil
}

func (b *Broker) GetWorker(ctx context.Context, id string) (Worker, error) {
	worker, err := b.store.GetWorker(ctx, id)
	if err != nil {
		return Worker{}, err
	}
	return workerFromRow(worker), nil
}

// Heartbeat stamps the worker's last-heartbeat time.
func (b *Broker) Heartbeat(ctx context.Context, workerID string) error {
	return b.store.Heartbeat(ctx, workerID, b.clock.Now().UTC())
}

// DeleteWorker destroys every queue bound to the worker, then the worker
// itself. Queue ticks are cancelled before their tables are dropped.
func (b *Broker) DeleteWorker(ctx context.Context, id string) error {
	queues, err := b.store.ListQueuesForWorker(ctx, id)
	if err != nil {
		return err
	}
	for _, queue := range queues {
		if err := b.DeleteQueue(ctx, queue.Name); err != nil && !errors.Is(err, ErrQueueNotFound) {
			return err
		}
	}
	return b.store.DeleteWorker(ctx, id)
}

func (b *Broker) CreateQueue(ctx context.Context, params CreateQueueParams) (Queue, error) {
	if err := busdb.ValidateQueueName(params.Name); err != nil {
		return Queue{}, err
	}
	maxRetries := params.MaxRetries
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}

	queue := &busdb.Queue{
		ID:         ulid.Make().String(),
		Name:       params.Name,
		Pattern:    params.Pattern,
		WorkerID:   params.WorkerID,
		MaxRetries: maxRetries,
		CreatedAt:  b.clock.Now().UTC(),
	}
	if err := b.store.CreateQueue(ctx, queue); err != nil {
		return Queue{}, err
	}

	if err := b.scheduler.register(queue.Name); err != nil {
		// The queue must not exist without its tick; undo the creation.
		if delErr := b.store.DeleteQueue(ctx, queue.Name); delErr != nil {
			b.log.Error().Err(delErr).Str("queue", queue.Name).Msg("rollback of queue creation failed")
		}
		return Queue{}, err
	}

	return queueFromRow(queue), nil
}

func (b *Broker) GetQueue(ctx context.Context, name string) (Queue, error) {
	queue, err := b.store.GetQueue(ctx, name)
	if err != nil {
		return Queue{}, err
	}
	return queueFromRow(queue), nil
}

func (b *Broker) ListQueues(ctx context.Context) ([]Queue, error) {
	rows, err := b.store.ListQueues(ctx)
	if err != nil {
		return nil, err
	}
	queues := make([]Queue, 0, len(rows))
	for i := range rows {
		queues = append(queues, queueFromRow(&rows[i]))
	}
	return queues, nil
}

func (b *Broker) DeleteQueue(ctx context.Context, name string) error {
	// Cancel the tick before dropping tables so no dispatcher observes a
	// half-destroyed queue.
	b.scheduler.deregister(name)
	return b.store.DeleteQueue(ctx, name)
}

func validateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid worker endpoint: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("worker endpoint must be an absolute http or https url")
	}
	return nil
}

func workerFromRow(row *busdb.Worker) Worker {
	return Worker{
		ID:              row.ID,
		Name:            row.Name,
		Endpoint:        row.Endpoint,
		RPS:             row.RPS,
		CreatedAt:       row.CreatedAt,
		LastHeartbeatAt: row.LastHeartbeatAt,
	}
}

func queueFromRow(row *busdb.Queue) Queue {
	return Queue{
		ID:         row.ID,
		Name:       row.Name,
		Pattern:    row.Pattern,
		WorkerID:   row.WorkerID,
		MaxRetries: row.MaxRetries,
		CreatedAt:  row.CreatedAt,
	}
}
