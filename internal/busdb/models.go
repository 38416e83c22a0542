package busdb

import (
	"time"

	"github.com/uptrace/bun"
)

type Worker struct {
	bun.BaseModel `bun:"table:workers"`

	ID              string     `bun:"id,pk"`
	Name            string     `bun:"name,notnull"`
	Endpoint        string     `bun:"endpoint,notnull"`
	RPS             int        `bun:"rps,notnull"`
	CreatedAt       time.Time  `bun:"created_at,notnull"`
	LastHeartbeatAt *time.Time `bun:"last_heartbeat_at"`
}

type Queue struct {
	bun.BaseModel `bun:"table:queues"`

	ID         string    `bun:"id,pk"`
	Name       string    `bun:"name,notnull,unique"`
	Pattern    string    `bun:"pattern,notnull"`
	WorkerID   string    `bun:"worker_id,notnull"`
	MaxRetries int       `bun:"max_retries,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
}

// Message rows are immutable after insert.
type Message struct {
	bun.BaseModel `bun:"table:messages"`

	ID         string    `bun:"id,pk"`
	RoutingKey string    `bun:"routing_key,notnull"`
	Body       []byte    `bun:"body,notnull"`
	Headers    []byte    `bun:"headers"`
	VisibleAt  time.Time `bun:"visible_at,notnull"`
	OccurredAt time.Time `bun:"occurred_at,notnull"`
}

// Delivery is the per-queue unit of work. The bun table name is a
// placeholder; every query routes through ModelTableExpr with the
// queue-derived table name.
type Delivery struct {
	bun.BaseModel `bun:"table:_delivery"`

	ID             int64      `bun:"id,pk,autoincrement"`
	MessageID      string     `bun:"message_id,notnull"`
	Acknowledged   bool       `bun:"acknowledged,notnull"`
	Retries        int        `bun:"retries,notnull"`
	Locked         bool       `bun:"locked,notnull"`
	LockedAt       *time.Time `bun:"locked_at"`
	EnqueuedAt     time.Time  `bun:"enqueued_at,notnull"`
	AcknowledgedAt *time.Time `bun:"acknowledged_at"`
}

// LeasedDelivery is a delivery row claimed by the lease query, joined with
// the message payload the dispatcher posts to the worker.
type LeasedDelivery struct {
	ID         int64     `bun:"id"`
	MessageID  string    `bun:"message_id"`
	Retries    int       `bun:"retries"`
	EnqueuedAt time.Time `bun:"enqueued_at"`
	Body       []byte    `bun:"body"`
}
