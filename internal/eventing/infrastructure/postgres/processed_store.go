package postgres

import (
	"context"
	"database/sql"
	"errors"
)

// ProcessedStore keeps the per-consumer delivery ledger that makes alarm
// notification handlers idempotent across repeated outbox flushes. A row in
// processed_events means a consumer has fully handled that envelope.
type ProcessedStore struct {
	db *sql.DB
}

// NewProcessedStore constructs a delivery ledger backed by db.
func NewProcessedStore(db *sql.DB) *ProcessedStore {
	return &ProcessedStore{db: db}
}

const (
	processedExistsQuery = `
SELECT EXISTS (
	SELECT 1 FROM processed_events WHERE event_id = $1 AND consumer_name = $2
)`
	processedInsertQuery = `
INSERT INTO processed_events (event_id, consumer_name, processed_at)
VALUES ($1, $2, NOW())
ON CONFLICT (event_id, consumer_name) DO NOTHING`
)

// HasProcessed reports whether the consumer already handled the event.
func (s *ProcessedStore) HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error) {
	if err := s.check(eventID, consumerName); err != nil {
		return false, err
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, processedExistsQuery, eventID, consumerName).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// MarkProcessed records the delivery. Recording the same pair twice is a
// no-op.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, eventID, consumerName string) error {
	if err := s.check(eventID, consumerName); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, processedInsertQuery, eventID, consumerName)
	return err
}

func (s *ProcessedStore) check(eventID, consumerName string) error {
	if s == nil || s.db == nil {
		return errors.New("delivery ledger: nil db")
	}
	if eventID == "" || consumerName == "" {
		return errors.New("delivery ledger: empty event id or consumer name")
	}
	return nil
}
