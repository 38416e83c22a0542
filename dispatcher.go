package pgbus

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pgbus/pgbus/internal/busdb"
)

// Dispatcher drives delivery for queues. One Tick per queue per scheduler
// interval: recover abandoned leases, lease up to the worker's rps, post
// each message, resolve each lease.
//
// Ticks are safe to overlap, across goroutines and across broker processes
// sharing the same store: the lease primitive is atomic and row-scoped, so
// two dispatchers never both claim a row.
type Dispatcher struct {
	store        busdb.DispatchDB
	client       *workerClient
	clock        clockwork.Clock
	leaseTimeout time.Duration
	log          zerolog.Logger
}

func NewDispatcher(store busdb.DispatchDB, clock clockwork.Clock, httpTimeout, leaseTimeout time.Duration, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:        store,
		client:       newWorkerClient(httpTimeout),
		clock:        clock,
		leaseTimeout: leaseTimeout,
		log:          log,
	}
}

func (d *Dispatcher) Tick(ctx context.Context, queueName string) error {
	queue, err := d.store.GetQueue(ctx, queueName)
	if err != nil {
		return fmt.Errorf("tick %s: %w", queueName, err)
	}
	worker, err := d.store.GetWorker(ctx, queue.WorkerID)
	if err != nil {
		return fmt.Errorf("tick %s: %w", queueName, err)
	}

	now := d.clock.Now().UTC()

	requeued, deadLettered, err := d.store.RecoverAbandoned(ctx, queue, now.Add(-d.leaseTimeout), now)
	if err != nil {
		return fmt.Errorf("tick %s: recover abandoned leases: %w", queueName, err)
	}
	if requeued > 0 || deadLettered > 0 {
		d.log.Warn().
			Str("queue", queueName).
			Int("requeued", requeued).
			Int("dead_lettered", deadLettered).
			Msg("recovered abandoned leases")
	}

	// The batch size is the rate limit: at most rps leases per tick.
	leased, err := d.store.LeaseDeliveries(ctx, queue, worker.RPS, now)
	if err != nil {
		return fmt.Errorf("tick %s: lease deliveries: %w", queueName, err)
	}
	if len(leased) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, delivery := range leased {
		g.Go(func() error {
			status := d.client.Post(gctx, worker.Endpoint, delivery.Body)
			d.resolve(gctx, queue, delivery, status)
			return nil
		})
	}

	return g.Wait()
}

// resolve transitions one leased row. Attempts run at retries values
// 0..max_retries, so a budget of R allows R+1 attempts before the row moves
// to the dead-letter table.
func (d *Dispatcher) resolve(ctx context.Context, queue *busdb.Queue, delivery busdb.LeasedDelivery, status int) {
	var err error
	switch {
	case status >= http.StatusOK && status < http.StatusMultipleChoices:
		err = d.store.AckDelivery(ctx, queue, delivery.ID, d.clock.Now().UTC())
	case delivery.Retries >= queue.MaxRetries:
		d.log.Warn().
			Str("queue", queue.Name).
			Str("message_id", delivery.MessageID).
			Int("status", status).
			Int("retries", delivery.Retries).
			Msg("retry budget exhausted, dead-lettering")
		err = d.store.DeadLetterDelivery(ctx, queue, delivery.ID, d.clock.Now().UTC())
	default:
		d.log.Debug().
			Str("queue", queue.Name).
			Str("message_id", delivery.MessageID).
			Int("status", status).
			Int("retries", delivery.Retries).
			Msg("delivery failed, will retry")
		err = d.store.RetryDelivery(ctx, queue, delivery.ID)
	}
	if err != nil {
		// Leave the row leased; the abandoned-lease sweep resolves it as
		// a failed attempt once the lease times out.
		d.log.Error().
			Err(err).
			Str("queue", queue.Name).
			Int64("delivery_id", delivery.ID).
			Msg("resolving lease failed")
	}
}
