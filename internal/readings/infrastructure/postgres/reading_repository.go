package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	readings "home-monitor/internal/readings/domain"
)

const defaultReadingsTable = "device_data"

// ReadingRepository is a Postgres implementation of the append-only
// time-series store.
type ReadingRepository struct {
	db    *sql.DB
	table string
}

// NewReadingRepository constructs a repository with default table name.
func NewReadingRepository(db *sql.DB, opts ...RepositoryOption) *ReadingRepository {
	repo := &ReadingRepository{db: db, table: defaultReadingsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RepositoryOption configures the repository.
type RepositoryOption func(*ReadingRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *ReadingRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// InsertIgnoreTx appends readings inside the caller's transaction, silently
// absorbing conflicts on the (parameter_id, time) natural key. Stored rows
// are never overwritten, which makes retrying a whole batch safe. Returns
// the number of rows actually written.
func (r *ReadingRepository) InsertIgnoreTx(ctx context.Context, tx *sql.Tx, batch []readings.Reading) (int64, error) {
	if r == nil {
		return 0, errors.New("reading repo: nil repo")
	}
	if tx == nil {
		return 0, errors.New("reading repo: nil tx")
	}
	if len(batch) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(`
INSERT INTO %s (parameter_id, time, value)
VALUES ($1, $2, $3)
ON CONFLICT (parameter_id, time)
DO NOTHING`, r.table)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var written int64
	for _, reading := range batch {
		if reading.ParameterID == 0 || reading.Time.IsZero() {
			return 0, errors.New("reading repo: invalid reading")
		}
		result, err := stmt.ExecContext(ctx, reading.ParameterID, reading.Time.UTC(), reading.Value)
		if err != nil {
			return 0, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		written += affected
	}
	return written, nil
}
