package pgbus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestScheduler(t *testing.T) {
	t.Run("registered queue ticks repeatedly", func(t *testing.T) {
		var ticks atomic.Int64
		s := newScheduler(time.Duration(10)*time.Millisecond, func(queueName string) {
			if queueName == "orders" {
				ticks.Add(1)
			}
		}, zerolog.Nop())

		assert.NoError(t, s.register("orders"))
		s.start()
		defer s.stop()

		assert.Eventually(t, func() bool {
			return ticks.Load() >= 2
		}, time.Second*2, time.Millisecond*10)
	})

	t.Run("register is idempotent per queue", func(t *testing.T) {
		var mu sync.Mutex
		counts := make(map[string]int)
		s := newScheduler(time.Duration(10)*time.Millisecond, func(queueName string) {
			mu.Lock()
			counts[queueName]++
			mu.Unlock()
		}, zerolog.Nop())

		assert.NoError(t, s.register("orders"))
		assert.NoError(t, s.register("orders"))
		assert.Len(t, s.entries, 1)
	})

	t.Run("deregistered queue stops ticking", func(t *testing.T) {
		var ticks atomic.Int64
		s := newScheduler(time.Duration(10)*time.Millisecond, func(queueName string) {
			ticks.Add(1)
		}, zerolog.Nop())

		assert.NoError(t, s.register("orders"))
		s.start()
		defer s.stop()

		assert.Eventually(t, func() bool {
			return ticks.Load() >= 1
		}, time.Second*2, time.Millisecond*10)

		s.deregister("orders")
		settled := ticks.Load()
		time.Sleep(time.Millisecond * 100)
		assert.LessOrEqual(t, ticks.Load(), settled+1)
	})

	t.Run("independent queues tick independently", func(t *testing.T) {
		var orders, payments atomic.Int64
		s := newScheduler(time.Duration(10)*time.Millisecond, func(queueName string) {
			switch queueName {
			case "orders":
				orders.Add(1)
			case "payments":
				payments.Add(1)
			}
		}, zerolog.Nop())

		assert.NoError(t, s.register("orders"))
		assert.NoError(t, s.register("payments"))
		s.start()
		defer s.stop()

		assert.Eventually(t, func() bool {
			return orders.Load() >= 1 && payments.Load() >= 1
		}, time.Second*2, time.Millisecond*10)
	})
}
