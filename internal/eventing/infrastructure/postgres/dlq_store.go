package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"home-monitor/internal/eventing"
)

const defaultDLQTable = "dead_letter_events"

// DLQStore is a Postgres implementation for dead letter events.
type DLQStore struct {
	db    *sql.DB
	table string
}

// NewDLQStore constructs a DLQ store.
func NewDLQStore(db *sql.DB, opts ...DLQOption) *DLQStore {
	store := &DLQStore{db: db, table: defaultDLQTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// DLQOption configures the DLQ store.
type DLQOption func(*DLQStore)

// WithDLQTable overrides the table name.
func WithDLQTable(table string) DLQOption {
	return func(store *DLQStore) {
		if table != "" {
			store.table = table
		}
	}
}

// RecordFailure inserts or updates a DLQ record for a failed delivery.
func (s *DLQStore) RecordFailure(ctx context.Context, env eventing.Envelope, cause error) error {
	if s == nil || s.db == nil {
		return errors.New("dlq store: nil db")
	}
	if env.EventID == "" {
		return errors.New("dlq store: empty event id")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	query := fmt.Sprintf(`
INSERT INTO %s (event_id, event_type, payload, error, failed_at, attempts)
VALUES ($1, $2, $3, $4, $5, 1)
ON CONFLICT (event_id)
DO UPDATE SET
	error = EXCLUDED.error,
	failed_at = EXCLUDED.failed_at,
	attempts = %s.attempts + 1`, s.table, s.table)
	_, err = s.db.ExecContext(ctx, query, env.EventID, env.EventType, payload, message, time.Now().UTC())
	return err
}
