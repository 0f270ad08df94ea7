package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryBucketsUsesEpochAlignedGrid(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	bucket := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// Width travels as seconds so the floor expression works directly on
	// extract(epoch FROM time).
	mock.ExpectQuery(`to_timestamp\(floor\(extract\(epoch FROM time\)`).
		WithArgs(int64(7), int64(3600), start, end).
		WillReturnRows(sqlmock.NewRows([]string{"bucket", "count", "min_value", "max_value", "avg_value"}).
			AddRow(bucket, int64(2), 10.0, 20.0, 15.0))

	query := NewBucketQuery(db)
	rows, err := query.QueryBuckets(context.Background(), 7, 60, start, end)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].BucketStart.Equal(bucket))
	assert.Equal(t, int64(2), rows[0].Count)
	assert.Equal(t, 10.0, rows[0].MinValue)
	assert.Equal(t, 20.0, rows[0].MaxValue)
	assert.Equal(t, 15.0, rows[0].AvgValue)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryBucketsEmptyRangeReturnsEmptySlice(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	mock.ExpectQuery("GROUP BY bucket").
		WithArgs(int64(7), int64(300), start, end).
		WillReturnRows(sqlmock.NewRows([]string{"bucket", "count", "min_value", "max_value", "avg_value"}))

	query := NewBucketQuery(db)
	rows, err := query.QueryBuckets(context.Background(), 7, 5, start, end)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryBucketsRejectsBadArguments(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	query := NewBucketQuery(db)

	_, err = query.QueryBuckets(context.Background(), 7, 4, start, start.Add(time.Hour))
	assert.Error(t, err, "width below minimum")

	_, err = query.QueryBuckets(context.Background(), 7, 1441, start, start.Add(time.Hour))
	assert.Error(t, err, "width above maximum")

	_, err = query.QueryBuckets(context.Background(), 7, 60, start, start)
	assert.Error(t, err, "empty interval")
}
