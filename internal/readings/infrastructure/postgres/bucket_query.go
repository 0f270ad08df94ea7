package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	readings "home-monitor/internal/readings/domain"
)

// BucketQuery aggregates stored readings into fixed-width time buckets.
type BucketQuery struct {
	db    *sql.DB
	table string
}

// NewBucketQuery constructs a query with default table name.
func NewBucketQuery(db *sql.DB, opts ...QueryOption) *BucketQuery {
	query := &BucketQuery{db: db, table: defaultReadingsTable}
	for _, opt := range opts {
		opt(query)
	}
	return query
}

// QueryOption configures the bucket query.
type QueryOption func(*BucketQuery)

// WithQueryTable overrides the default table name for queries.
func WithQueryTable(table string) QueryOption {
	return func(query *BucketQuery) {
		if query != nil && table != "" {
			query.table = table
		}
	}
}

// QueryBuckets returns one summary row per non-empty bucket within the
// half-open interval [start, end). Buckets align to an epoch-relative grid of
// the given width, not to start. Empty buckets are omitted, not zero-filled.
//
// Rows come back ordered by bucket start ascending. The secondary sort keys
// (avg, then max, then min, all descending) can never break a tie since
// bucket start is unique per row, but the ordering contract is kept for
// compatibility with existing consumers.
func (q *BucketQuery) QueryBuckets(ctx context.Context, parameterID int64, widthMinutes int, start, end time.Time) ([]readings.BucketRow, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("bucket query: nil db")
	}
	if widthMinutes < readings.MinBucketMinutes || widthMinutes > readings.MaxBucketMinutes {
		return nil, fmt.Errorf("bucket query: width %d outside [%d, %d] minutes",
			widthMinutes, readings.MinBucketMinutes, readings.MaxBucketMinutes)
	}
	if !start.Before(end) {
		return nil, errors.New("bucket query: start must come before end")
	}

	widthSeconds := int64(widthMinutes) * 60
	query := fmt.Sprintf(`
SELECT
	to_timestamp(floor(extract(epoch FROM time) / $2) * $2) AS bucket,
	COUNT(*)   AS count,
	MIN(value) AS min_value,
	MAX(value) AS max_value,
	AVG(value) AS avg_value
FROM %s
WHERE parameter_id = $1
	AND time >= $3
	AND time <  $4
GROUP BY bucket
ORDER BY bucket ASC, avg_value DESC, max_value DESC, min_value DESC`, q.table)

	rows, err := q.db.QueryContext(ctx, query, parameterID, widthSeconds, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]readings.BucketRow, 0)
	for rows.Next() {
		var row readings.BucketRow
		if err := rows.Scan(&row.BucketStart, &row.Count, &row.MinValue, &row.MaxValue, &row.AvgValue); err != nil {
			return nil, err
		}
		row.BucketStart = row.BucketStart.UTC()
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
