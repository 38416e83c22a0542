package pgbus_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/ory/dockertest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"

	pgbus "github.com/pgbus/pgbus"
	"github.com/pgbus/pgbus/internal/busdb"
	"github.com/pgbus/pgbus/testHelper/postgres"
)

func newBroker(t *testing.T, ctx context.Context, dsn string) *pgbus.Broker {
	t.Helper()
	broker, err := pgbus.NewFromConfig(ctx, pgbus.NewConfig(
		pgbus.WithDSN(dsn),
		pgbus.WithTickInterval(time.Duration(50)*time.Millisecond),
		pgbus.WithHTTPTimeout(time.Duration(1)*time.Second),
		pgbus.WithLeaseTimeout(time.Duration(3)*time.Second),
		pgbus.WithLogger(zerolog.Nop()),
	))
	assert.NoError(t, err)
	assert.NoError(t, broker.Init())
	t.Cleanup(func() {
		assert.NoError(t, broker.Close())
	})
	return broker
}

func deliveryRows(t *testing.T, ctx context.Context, db *bun.DB, queueName string) []busdb.Delivery {
	t.Helper()
	var rows []busdb.Delivery
	err := db.NewSelect().
		Model(&rows).
		ModelTableExpr("? AS _delivery", bun.Ident(busdb.DeliveryTable(queueName))).
		Scan(ctx)
	assert.NoError(t, err)
	return rows
}

func deadLetterRows(t *testing.T, ctx context.Context, db *bun.DB, queueName string) []busdb.Delivery {
	t.Helper()
	var rows []busdb.Delivery
	err := db.NewSelect().
		Model(&rows).
		ModelTableExpr("? AS _delivery", bun.Ident(busdb.DeadLetterTable(queueName))).
		Scan(ctx)
	assert.NoError(t, err)
	return rows
}

func TestBrokerEndToEnd(t *testing.T) {
	pool, err := dockertest.NewPool("")
	assert.NoError(t, err)
	resource := postgres.SetUp(pool, t)

	ctx := context.Background()
	broker := newBroker(t, ctx, resource.Dsn)

	t.Run("happy path delivers once and acks", func(t *testing.T) {
		var posts atomic.Int64
		var mu sync.Mutex
		var bodies []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			bodies = append(bodies, string(body))
			mu.Unlock()
			posts.Add(1)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		worker, err := broker.CreateWorker(ctx, pgbus.CreateWorkerParams{Name: "w-happy", Endpoint: server.URL, RPS: 10})
		assert.NoError(t, err)
		_, err = broker.CreateQueue(ctx, pgbus.CreateQueueParams{Name: "e2e_happy", Pattern: "order.*", WorkerID: worker.ID, MaxRetries: 3})
		assert.NoError(t, err)

		assert.NoError(t, broker.Publish(ctx, pgbus.Message{
			ID:         uuid.NewString(),
			RoutingKey: "order.created",
			Body:       []byte(`{"n":1}`),
		}))

		assert.Eventually(t, func() bool {
			rows := deliveryRows(t, ctx, resource.DB, "e2e_happy")
			return len(rows) == 1 && rows[0].Acknowledged && rows[0].AcknowledgedAt != nil
		}, time.Second*10, time.Millisecond*50)

		assert.Equal(t, int64(1), posts.Load())
		mu.Lock()
		assert.JSONEq(t, `{"n":1}`, bodies[0])
		mu.Unlock()
		assert.Empty(t, deadLetterRows(t, ctx, resource.DB, "e2e_happy"))
	})

	t.Run("retry then success", func(t *testing.T) {
		var posts atomic.Int64
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if posts.Add(1) <= 2 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		worker, err := broker.CreateWorker(ctx, pgbus.CreateWorkerParams{Name: "w-retry", Endpoint: server.URL, RPS: 10})
		assert.NoError(t, err)
		_, err = broker.CreateQueue(ctx, pgbus.CreateQueueParams{Name: "e2e_retry", Pattern: "retry.*", WorkerID: worker.ID, MaxRetries: 3})
		assert.NoError(t, err)

		assert.NoError(t, broker.Publish(ctx, pgbus.Message{
			ID:         uuid.NewString(),
			RoutingKey: "retry.please",
			Body:       []byte(`{"n":2}`),
		}))

		assert.Eventually(t, func() bool {
			rows := deliveryRows(t, ctx, resource.DB, "e2e_retry")
			return len(rows) == 1 && rows[0].Acknowledged
		}, time.Second*10, time.Millisecond*50)

		rows := deliveryRows(t, ctx, resource.DB, "e2e_retry")
		assert.Equal(t, 2, rows[0].Retries)
		assert.Equal(t, int64(3), posts.Load())
		assert.Empty(t, deadLetterRows(t, ctx, resource.DB, "e2e_retry"))
	})

	t.Run("retry exhaustion dead-letters after budget plus one attempts", func(t *testing.T) {
		var posts atomic.Int64
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			posts.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		worker, err := broker.CreateWorker(ctx, pgbus.CreateWorkerParams{Name: "w-dlq", Endpoint: server.URL, RPS: 10})
		assert.NoError(t, err)
		_, err = broker.CreateQueue(ctx, pgbus.CreateQueueParams{Name: "e2e_dlq", Pattern: "doom.*", WorkerID: worker.ID, MaxRetries: 2})
		assert.NoError(t, err)

		messageID := uuid.NewString()
		assert.NoError(t, broker.Publish(ctx, pgbus.Message{
			ID:         messageID,
			RoutingKey: "doom.always",
			Body:       []byte(`{"n":3}`),
		}))

		assert.Eventually(t, func() bool {
			return len(deadLetterRows(t, ctx, resource.DB, "e2e_dlq")) == 1
		}, time.Second*10, time.Millisecond*50)

		assert.Empty(t, deliveryRows(t, ctx, resource.DB, "e2e_dlq"))
		dead := deadLetterRows(t, ctx, resource.DB, "e2e_dlq")
		assert.Equal(t, messageID, dead[0].MessageID)
		assert.Equal(t, 2, dead[0].Retries)
		assert.Equal(t, int64(3), posts.Load())
	})

	t.Run("fan-out reaches every matching queue and no other", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		worker, err := broker.CreateWorker(ctx, pgbus.CreateWorkerParams{Name: "w-fan", Endpoint: server.URL, RPS: 10})
		assert.NoError(t, err)
		for name, pattern := range map[string]string{
			"e2e_fan_orders":   "order.*",
			"e2e_fan_all":      "*",
			"e2e_fan_payments": "payment.*",
		} {
			_, err = broker.CreateQueue(ctx, pgbus.CreateQueueParams{Name: name, Pattern: pattern, WorkerID: worker.ID, MaxRetries: 3})
			assert.NoError(t, err)
		}

		messageID := uuid.NewString()
		assert.NoError(t, broker.Publish(ctx, pgbus.Message{
			ID:         messageID,
			RoutingKey: "order.created",
			Body:       []byte(`{"n":4}`),
			// Keep the deliveries pending while we count them.
			Delay: time.Hour,
		}))

		matched := 0
		for _, queueName := range []string{"e2e_fan_orders", "e2e_fan_all"} {
			rows := deliveryRows(t, ctx, resource.DB, queueName)
			for _, row := range rows {
				if row.MessageID == messageID {
					matched++
				}
			}
		}
		assert.Equal(t, 2, matched)

		for _, row := range deliveryRows(t, ctx, resource.DB, "e2e_fan_payments") {
			assert.NotEqual(t, messageID, row.MessageID)
		}
	})

	t.Run("delayed message stays invisible until its time", func(t *testing.T) {
		var posts atomic.Int64
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			posts.Add(1)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		worker, err := broker.CreateWorker(ctx, pgbus.CreateWorkerParams{Name: "w-delay", Endpoint: server.URL, RPS: 10})
		assert.NoError(t, err)
		_, err = broker.CreateQueue(ctx, pgbus.CreateQueueParams{Name: "e2e_delay", Pattern: "later.*", WorkerID: worker.ID, MaxRetries: 3})
		assert.NoError(t, err)

		assert.NoError(t, broker.Publish(ctx, pgbus.Message{
			ID:         uuid.NewString(),
			RoutingKey: "later.thing",
			Body:       []byte(`{"n":5}`),
			Delay:      time.Second,
		}))

		time.Sleep(time.Millisecond * 400)
		assert.Equal(t, int64(0), posts.Load())

		assert.Eventually(t, func() bool {
			return posts.Load() == 1
		}, time.Second*10, time.Millisecond*50)
	})

	t.Run("concurrent dispatchers never deliver a row twice", func(t *testing.T) {
		var posts atomic.Int64
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			posts.Add(1)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		worker, err := broker.CreateWorker(ctx, pgbus.CreateWorkerParams{Name: "w-race", Endpoint: server.URL, RPS: 50})
		assert.NoError(t, err)
		_, err = broker.CreateQueue(ctx, pgbus.CreateQueueParams{Name: "e2e_race", Pattern: "load.*", WorkerID: worker.ID, MaxRetries: 3})
		assert.NoError(t, err)

		total := 100
		for i := 0; i < total; i++ {
			assert.NoError(t, broker.Publish(ctx, pgbus.Message{
				ID:         uuid.NewString(),
				RoutingKey: fmt.Sprintf("load.%d", i),
				Body:       []byte(`{"n":6}`),
			}))
		}

		// A second engine attached to the same store races the broker's own
		// scheduler over the same queue.
		rival := pgbus.NewDispatcher(
			busdb.NewBusDB(resource.DB),
			clockwork.NewRealClock(),
			time.Duration(1)*time.Second,
			time.Duration(3)*time.Second,
			zerolog.Nop(),
		)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 20; i++ {
				_ = rival.Tick(ctx, "e2e_race")
				time.Sleep(time.Millisecond * 25)
			}
		}()

		assert.Eventually(t, func() bool {
			rows := deliveryRows(t, ctx, resource.DB, "e2e_race")
			acked := 0
			for _, row := range rows {
				if row.Acknowledged {
					acked++
				}
			}
			return acked == total
		}, time.Second*15, time.Millisecond*100)
		<-done

		assert.Equal(t, int64(total), posts.Load())
	})
}
