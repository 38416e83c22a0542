package pgbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// scheduler owns one periodic tick entry per queue. Entries survive for the
// queue's lifetime; deleting a queue removes its entry before the tables go.
type scheduler struct {
	cron     *cron.Cron
	interval time.Duration
	tick     func(queueName string)
	log      zerolog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func newScheduler(interval time.Duration, tick func(queueName string), log zerolog.Logger) *scheduler {
	return &scheduler{
		cron:     cron.New(),
		interval: interval,
		tick:     tick,
		log:      log,
		entries:  make(map[string]cron.EntryID),
	}
}

func (s *scheduler) register(queueName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[queueName]; ok {
		return nil
	}

	id, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.tick(queueName)
	})
	if err != nil {
		return fmt.Errorf("registering tick for queue %s: %w", queueName, err)
	}
	s.entries[queueName] = id
	s.log.Debug().Str("queue", queueName).Stringer("interval", s.interval).Msg("registered dispatch tick")

	return nil
}

func (s *scheduler) deregister(queueName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[queueName]; ok {
		s.cron.Remove(id)
		delete(s.entries, queueName)
	}
}

func (s *scheduler) start() {
	s.cron.Start()
}

func (s *scheduler) stop() {
	// Stop returns once in-flight jobs finish; ticks bound themselves with
	// the lease timeout.
	<-s.cron.Stop().Done()
}
