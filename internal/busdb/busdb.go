package busdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

const (
	NoRowsAffected = 0

	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	// Postgres truncates identifiers at 63 bytes; the longest derived
	// suffix is "_delivery_pending_idx".
	maxQueueNameLen = 40
)

var (
	ErrWorkerNotFound   = errors.New("worker not found")
	ErrQueueNotFound    = errors.New("queue not found")
	ErrQueueExists      = errors.New("queue name already exists")
	ErrDuplicateMessage = errors.New("message id already exists")
	ErrInvalidQueueName = errors.New("queue name must be letters, digits or underscore and not start with a digit")
)

var queueNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateQueueName rejects names unsafe for derivation into table names.
func ValidateQueueName(name string) error {
	if len(name) == 0 || len(name) > maxQueueNameLen || !queueNameRe.MatchString(name) {
		return ErrInvalidQueueName
	}
	return nil
}

func DeliveryTable(queue string) string {
	return queue + "_delivery"
}

func DeadLetterTable(queue string) string {
	return queue + "_deadletter"
}

// AdminDB covers registration, teardown and publish.
type AdminDB interface {
	CreateWorker(ctx context.Context, worker *Worker) error
	GetWorker(ctx context.Context, id string) (*Worker, error)
	DeleteWorker(ctx context.Context, id string) error
	Heartbeat(ctx context.Context, id string, now time.Time) error

	// CreateQueue inserts the queue row and provisions its delivery and
	// dead-letter tables in one transaction.
	CreateQueue(ctx context.Context, queue *Queue) error
	GetQueue(ctx context.Context, name string) (*Queue, error)
	ListQueues(ctx context.Context) ([]Queue, error)
	ListQueuesForWorker(ctx context.Context, workerID string) ([]Queue, error)

	// DeleteQueue removes the queue row and drops both tables in one
	// transaction.
	DeleteQueue(ctx context.Context, name string) error

	// InsertMessageWithDeliveries persists the message and appends one
	// pending delivery row per queue atomically. Partial fan-out never
	// survives an error.
	InsertMessageWithDeliveries(ctx context.Context, message *Message, queues []Queue) error
}

//go:generate mockgen -destination ../../mocks/mock_dispatchdb.go -package mocks github.com/pgbus/pgbus/internal/busdb DispatchDB

// DispatchDB covers the per-tick primitives of the dispatcher.
type DispatchDB interface {
	GetQueue(ctx context.Context, name string) (*Queue, error)
	GetWorker(ctx context.Context, id string) (*Worker, error)

	// RecoverAbandoned resolves leases held past cutoff as failed
	// attempts: rows with budget left are unlocked with retries
	// incremented, exhausted rows move to the dead-letter table.
	RecoverAbandoned(ctx context.Context, queue *Queue, cutoff, now time.Time) (requeued, deadLettered int, err error)

	// LeaseDeliveries atomically claims up to limit visible pending rows,
	// skipping rows locked by concurrent dispatchers.
	LeaseDeliveries(ctx context.Context, queue *Queue, limit int, now time.Time) ([]LeasedDelivery, error)

	AckDelivery(ctx context.Context, queue *Queue, deliveryID int64, now time.Time) error
	RetryDelivery(ctx context.Context, queue *Queue, deliveryID int64) error
	DeadLetterDelivery(ctx context.Context, queue *Queue, deliveryID int64, now time.Time) error
}

type BusDB interface {
	AdminDB
	DispatchDB
}

type busDB struct {
	db *bun.DB
}

func NewBusDB(db *bun.DB) BusDB {
	return &busDB{db: db}
}

func (r *busDB) CreateWorker(ctx context.Context, worker *Worker) error {
	_, err := r.db.NewInsert().Model(worker).Exec(ctx)
	return err
}

func (r *busDB) GetWorker(ctx context.Context, id string) (*Worker, error) {
	worker := new(Worker)
	err := r.db.NewSelect().Model(worker).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWorkerNotFound
	}
	if err != nil {
		return nil, err
	}
	return worker, nil
}

func (r *busDB) DeleteWorker(ctx context.Context, id string) error {
	res, err := r.db.NewDelete().Model((*Worker)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == NoRowsAffected {
		return ErrWorkerNotFound
	}
	return nil
}

func (r *busDB) Heartbeat(ctx context.Context, id string, now time.Time) error {
	res, err := r.db.NewUpdate().
		Model((*Worker)(nil)).
		Set("last_heartbeat_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == NoRowsAffected {
		return ErrWorkerNotFound
	}
	return nil
}

func (r *busDB) CreateQueue(ctx context.Context, queue *Queue) error {
	if err := ValidateQueueName(queue.Name); err != nil {
		return err
	}

	return RunInTx(ctx, r.db, func(tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(queue).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return ErrQueueExists
			}
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
				return ErrWorkerNotFound
			}
			return err
		}
		return provisionQueueTables(ctx, tx, queue.Name)
	})
}

func (r *busDB) GetQueue(ctx context.Context, name string) (*Queue, error) {
	queue := new(Queue)
	err := r.db.NewSelect().Model(queue).Where("name = ?", name).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrQueueNotFound
	}
	if err != nil {
		return nil, err
	}
	return queue, nil
}

func (r *busDB) ListQueues(ctx context.Context) ([]Queue, error) {
	var queues []Queue
	if err := r.db.NewSelect().Model(&queues).Order("created_at").Scan(ctx); err != nil {
		return nil, err
	}
	return queues, nil
}

func (r *busDB) ListQueuesForWorker(ctx context.Context, workerID string) ([]Queue, error) {
	var queues []Queue
	err := r.db.NewSelect().
		Model(&queues).
		Where("worker_id = ?", workerID).
		Order("created_at").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return queues, nil
}

func (r *busDB) DeleteQueue(ctx context.Context, name string) error {
	if err := ValidateQueueName(name); err != nil {
		return err
	}

	return RunInTx(ctx, r.db, func(tx bun.Tx) error {
		res, err := tx.NewDelete().Model((*Queue)(nil)).Where("name = ?", name).Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == NoRowsAffected {
			return ErrQueueNotFound
		}
		return dropQueueTables(ctx, tx, name)
	})
}

func (r *busDB) InsertMessageWithDeliveries(ctx context.Context, message *Message, queues []Queue) error {
	return RunInTx(ctx, r.db, func(tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(message).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateMessage
			}
			return err
		}

		for _, queue := range queues {
			delivery := &Delivery{
				MessageID:  message.ID,
				EnqueuedAt: message.VisibleAt,
			}
			_, err := tx.NewInsert().
				Model(delivery).
				ModelTableExpr("? AS _delivery", bun.Ident(DeliveryTable(queue.Name))).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("fan-out to queue %s: %w", queue.Name, err)
			}
		}
		return nil
	})
}

func (r *busDB) LeaseDeliveries(ctx context.Context, queue *Queue, limit int, now time.Time) ([]LeasedDelivery, error) {
	if limit <= 0 {
		return nil, nil
	}

	sub := r.db.NewSelect().
		TableExpr("? AS p", bun.Ident(DeliveryTable(queue.Name))).
		Column("p.id").
		Where("p.acknowledged = FALSE").
		Where("p.locked = FALSE").
		Where("p.enqueued_at <= ?", now).
		OrderExpr("p.enqueued_at ASC, p.id ASC").
		Limit(limit).
		For("UPDATE SKIP LOCKED")

	var leased []LeasedDelivery
	err := r.db.NewUpdate().
		TableExpr("? AS d", bun.Ident(DeliveryTable(queue.Name))).
		TableExpr("(?) AS sub", sub).
		TableExpr("messages AS m").
		Set("locked = TRUE").
		Set("locked_at = ?", now).
		Where("d.id = sub.id").
		Where("m.id = d.message_id").
		Returning("d.id, d.message_id, d.retries, d.enqueued_at, m.body").
		Scan(ctx, &leased)
	if err != nil {
		return nil, err
	}
	// RETURNING does not keep the subquery's order.
	sort.Slice(leased, func(i, j int) bool {
		if !leased[i].EnqueuedAt.Equal(leased[j].EnqueuedAt) {
			return leased[i].EnqueuedAt.Before(leased[j].EnqueuedAt)
		}
		return leased[i].ID < leased[j].ID
	})
	return leased, nil
}

func (r *busDB) AckDelivery(ctx context.Context, queue *Queue, deliveryID int64, now time.Time) error {
	// Guarded on the lock so replays are no-ops.
	_, err := r.db.NewUpdate().
		TableExpr("? AS d", bun.Ident(DeliveryTable(queue.Name))).
		Set("acknowledged = TRUE").
		Set("acknowledged_at = ?", now).
		Set("locked = FALSE").
		Set("locked_at = NULL").
		Where("d.id = ?", deliveryID).
		Where("d.locked = TRUE").
		Where("d.acknowledged = FALSE").
		Exec(ctx)
	return err
}

func (r *busDB) RetryDelivery(ctx context.Context, queue *Queue, deliveryID int64) error {
	_, err := r.db.NewUpdate().
		TableExpr("? AS d", bun.Ident(DeliveryTable(queue.Name))).
		Set("retries = d.retries + 1").
		Set("locked = FALSE").
		Set("locked_at = NULL").
		Where("d.id = ?", deliveryID).
		Where("d.locked = TRUE").
		Exec(ctx)
	return err
}

func (r *busDB) DeadLetterDelivery(ctx context.Context, queue *Queue, deliveryID int64, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`WITH moved AS (
			DELETE FROM ? WHERE id = ? AND locked = TRUE
			RETURNING message_id, retries
		)
		INSERT INTO ? (message_id, acknowledged, retries, locked, enqueued_at)
		SELECT message_id, FALSE, retries, FALSE, ? FROM moved`,
		bun.Ident(DeliveryTable(queue.Name)),
		deliveryID,
		bun.Ident(DeadLetterTable(queue.Name)),
		now,
	)
	return err
}

func (r *busDB) RecoverAbandoned(ctx context.Context, queue *Queue, cutoff, now time.Time) (int, int, error) {
	type counts struct {
		requeued int
		dead     int
	}

	c, err := RunInTxWithReturnType(ctx, r.db, func(tx bun.Tx) (counts, error) {
		var c counts

		// Exhausted leases go straight to the dead-letter table.
		res, err := tx.ExecContext(ctx,
			`WITH moved AS (
				DELETE FROM ?
				WHERE locked = TRUE AND locked_at <= ? AND retries >= ?
				RETURNING message_id, retries
			)
			INSERT INTO ? (message_id, acknowledged, retries, locked, enqueued_at)
			SELECT message_id, FALSE, retries, FALSE, ? FROM moved`,
			bun.Ident(DeliveryTable(queue.Name)),
			cutoff,
			queue.MaxRetries,
			bun.Ident(DeadLetterTable(queue.Name)),
			now,
		)
		if err != nil {
			return c, err
		}
		dead, err := res.RowsAffected()
		if err != nil {
			return c, err
		}

		// The rest count the abandoned attempt and become leasable again.
		res, err = tx.NewUpdate().
			TableExpr("? AS d", bun.Ident(DeliveryTable(queue.Name))).
			Set("retries = d.retries + 1").
			Set("locked = FALSE").
			Set("locked_at = NULL").
			Where("d.locked = TRUE").
			Where("d.locked_at <= ?", cutoff).
			Exec(ctx)
		if err != nil {
			return c, err
		}
		requeued, err := res.RowsAffected()
		if err != nil {
			return c, err
		}

		c.requeued = int(requeued)
		c.dead = int(dead)
		return c, nil
	})
	if err != nil {
		return 0, 0, err
	}
	return c.requeued, c.dead, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
