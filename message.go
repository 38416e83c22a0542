package pgbus

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Message is the unit accepted by Publish. Messages are immutable once
// persisted.
type Message struct {
	// ID is a caller-supplied UUID. Publishing the same id twice fails
	// with ErrDuplicateMessage.
	ID string

	// RoutingKey is matched against every queue's binding pattern at
	// publish time.
	RoutingKey string

	// Body is the JSON document posted verbatim to worker endpoints.
	Body []byte

	// Headers is an optional JSON document. Headers are persisted with
	// the message but not transmitted to workers.
	Headers []byte

	// VisibleAt is the earliest instant any queue may lease a delivery
	// of this message. When nil, visibility is now plus Delay.
	VisibleAt *time.Time

	// Delay shifts visibility relative to the publish time. Ignored when
	// VisibleAt is set.
	Delay time.Duration

	// OccurredAt is the publisher's wall clock at submission. Zero means
	// the publish time.
	OccurredAt time.Time
}

func (m Message) isValidMessage() error {
	if _, err := uuid.Parse(m.ID); err != nil {
		return errors.New("message id must be a valid uuid")
	}

	if !json.Valid(m.Body) {
		return errors.New("message body must be a valid json document")
	}

	if m.Headers != nil && !json.Valid(m.Headers) {
		return errors.New("message headers must be a valid json document")
	}

	if m.VisibleAt == nil && m.Delay < 0 {
		return errors.New("message delay cant be negative")
	}

	return nil
}
