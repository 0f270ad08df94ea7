package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	readings "home-monitor/internal/readings/domain"
)

func TestInsertIgnoreTxSumsWrittenRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	batch := []readings.Reading{
		{ParameterID: 7, Time: base, Value: 10},
		{ParameterID: 7, Time: base.Add(time.Minute), Value: 20},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO device_data")
	prep.ExpectExec().
		WithArgs(int64(7), base, 10.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Second row already stored: the conflict clause absorbs it.
	prep.ExpectExec().
		WithArgs(int64(7), base.Add(time.Minute), 20.0).
		WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := db.Begin()
	require.NoError(t, err)

	repo := NewReadingRepository(db)
	written, err := repo.InsertIgnoreTx(context.Background(), tx, batch)
	require.NoError(t, err)
	assert.Equal(t, int64(1), written)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertIgnoreTxEmptyBatchIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	repo := NewReadingRepository(db)
	written, err := repo.InsertIgnoreTx(context.Background(), tx, nil)
	require.NoError(t, err)
	assert.Zero(t, written)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertIgnoreTxRejectsInvalidReading(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO device_data")

	tx, err := db.Begin()
	require.NoError(t, err)

	repo := NewReadingRepository(db)
	_, err = repo.InsertIgnoreTx(context.Background(), tx, []readings.Reading{{ParameterID: 0}})
	require.Error(t, err)
}
