package busdb

import (
	"context"

	"github.com/uptrace/bun"
)

// provisionQueueTables creates the delivery and dead-letter tables for a
// queue. Callers must have validated the queue name; it is interpolated as a
// quoted identifier only.
func provisionQueueTables(ctx context.Context, tx bun.Tx, queue string) error {
	delivery := DeliveryTable(queue)
	deadLetter := DeadLetterTable(queue)

	_, err := tx.ExecContext(ctx,
		`CREATE TABLE ? (
			id BIGSERIAL PRIMARY KEY,
			message_id UUID NOT NULL REFERENCES messages (id) ON DELETE CASCADE,
			acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
			retries INTEGER NOT NULL DEFAULT 0,
			locked BOOLEAN NOT NULL DEFAULT FALSE,
			locked_at TIMESTAMPTZ,
			enqueued_at TIMESTAMPTZ NOT NULL,
			acknowledged_at TIMESTAMPTZ
		)`,
		bun.Ident(delivery),
	)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`CREATE INDEX ? ON ? (enqueued_at, id) WHERE acknowledged = FALSE AND locked = FALSE`,
		bun.Ident(delivery+"_pending_idx"),
		bun.Ident(delivery),
	)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`CREATE TABLE ? (
			id BIGSERIAL PRIMARY KEY,
			message_id UUID NOT NULL REFERENCES messages (id) ON DELETE CASCADE,
			acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
			retries INTEGER NOT NULL DEFAULT 0,
			locked BOOLEAN NOT NULL DEFAULT FALSE,
			locked_at TIMESTAMPTZ,
			enqueued_at TIMESTAMPTZ NOT NULL,
			acknowledged_at TIMESTAMPTZ
		)`,
		bun.Ident(deadLetter),
	)
	return err
}

func dropQueueTables(ctx context.Context, tx bun.Tx, queue string) error {
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS ?`, bun.Ident(DeliveryTable(queue))); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS ?`, bun.Ident(DeadLetterTable(queue)))
	return err
}
