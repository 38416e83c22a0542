package pgbus

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"

	"github.com/pgbus/pgbus/internal/busdb"
	"github.com/pgbus/pgbus/migrations"
)

const (
	uninitialized = iota
	running
)

// Broker owns the persistent queue state and the per-queue dispatch loops.
type Broker struct {
	ctx        context.Context
	conf       *Config
	db         *bun.DB
	store      busdb.BusDB
	dispatcher *Dispatcher
	scheduler  *scheduler
	clock      clockwork.Clock
	log        zerolog.Logger
	state      atomic.Uint32
}

func NewFromConfig(ctx context.Context, conf *Config) (*Broker, error) {
	if err := conf.validate(); err != nil {
		return nil, err
	}

	db, err := initializeDB(conf)
	if err != nil {
		return nil, err
	}
	store := busdb.NewBusDB(db)
	clock := clockwork.NewRealClock()

	b := &Broker{
		ctx:        ctx,
		conf:       conf,
		db:         db,
		store:      store,
		dispatcher: NewDispatcher(store, clock, conf.HTTPTimeout, conf.LeaseTimeout, conf.Logger),
		clock:      clock,
		log:        conf.Logger,
		state:      atomic.Uint32{},
	}
	b.scheduler = newScheduler(conf.TickInterval, b.tick, conf.Logger)

	return b, nil
}

// Init runs migrations, re-registers dispatch ticks for every persisted
// queue and starts the scheduler. A restarted broker resumes dispatching
// without queues being re-created.
func (b *Broker) Init() error {
	if !b.state.CompareAndSwap(uninitialized, running) {
		return errors.New("initializing broker already occurred, and broker is actively running")
	}

	if err := migrations.Migrate(b.ctx, b.db); err != nil {
		return err
	}

	queues, err := b.store.ListQueues(b.ctx)
	if err != nil {
		return err
	}
	for _, queue := range queues {
		if err := b.scheduler.register(queue.Name); err != nil {
			return err
		}
	}

	b.scheduler.start()

	return nil
}

func (b *Broker) Close() error {
	b.scheduler.stop()
	return b.db.Close()
}

// tick drives one dispatch round for a queue. Delivery outcomes never
// propagate past here; a failed tick is retried by the next one.
func (b *Broker) tick(queueName string) {
	ctx, cancel := context.WithTimeout(b.ctx, b.conf.LeaseTimeout)
	defer cancel()

	if err := b.dispatcher.Tick(ctx, queueName); err != nil {
		b.log.Warn().Err(err).Str("queue", queueName).Msg("dispatch tick failed")
	}
}
