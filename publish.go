package pgbus

import (
	"context"

	"github.com/pgbus/pgbus/internal/busdb"
	"github.com/pgbus/pgbus/pattern"
)

// Publish persists the message and appends one pending delivery row to every
// queue whose binding pattern matches the routing key, atomically. Either the
// message and its full fan-out are persisted, or nothing is.
//
// A message matching no queue is persisted and never delivered; that is not
// an error. Queues created after Publish returns do not receive it.
func (b *Broker) Publish(ctx context.Context, message Message) error {
	if err := message.isValidMessage(); err != nil {
		return err
	}

	now := b.clock.Now().UTC()
	visibleAt := now.Add(message.Delay)
	if message.VisibleAt != nil {
		visibleAt = message.VisibleAt.UTC()
	}
	occurredAt := message.OccurredAt.UTC()
	if message.OccurredAt.IsZero() {
		occurredAt = now
	}

	queues, err := b.store.ListQueues(ctx)
	if err != nil {
		return err
	}
	matched := make([]busdb.Queue, 0, len(queues))
	for _, queue := range queues {
		if pattern.Match(message.RoutingKey, queue.Pattern) {
			matched = append(matched, queue)
		}
	}

	row := &busdb.Message{
		ID:         message.ID,
		RoutingKey: message.RoutingKey,
		Body:       message.Body,
		Headers:    message.Headers,
		VisibleAt:  visibleAt,
		OccurredAt: occurredAt,
	}

	return b.store.InsertMessageWithDeliveries(ctx, row, matched)
}
