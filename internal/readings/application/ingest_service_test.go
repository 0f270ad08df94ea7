package application

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalog "home-monitor/internal/catalog/domain"
	"home-monitor/internal/eventing"
	readings "home-monitor/internal/readings/domain"
)

type updateCall struct {
	id        int64
	active    bool
	changedAt time.Time
}

type stubParams struct {
	param   catalog.Parameter
	getErr  error
	updates []updateCall
}

func (s *stubParams) GetForUpdate(_ context.Context, _ *sql.Tx, id int64) (*catalog.Parameter, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	param := s.param
	param.ID = id
	return &param, nil
}

func (s *stubParams) UpdateAlarmState(_ context.Context, _ *sql.Tx, id int64, active bool, changedAt time.Time) error {
	s.updates = append(s.updates, updateCall{id: id, active: active, changedAt: changedAt})
	return nil
}

type stubReadings struct {
	written  int64
	err      error
	inserted [][]readings.Reading
}

func (s *stubReadings) InsertIgnoreTx(_ context.Context, _ *sql.Tx, batch []readings.Reading) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.inserted = append(s.inserted, batch)
	return s.written, nil
}

type stubOutbox struct {
	envelopes []eventing.Envelope
}

func (s *stubOutbox) InsertTx(_ context.Context, _ *sql.Tx, env eventing.Envelope) (string, error) {
	s.envelopes = append(s.envelopes, env)
	return env.EventID, nil
}

type stubFlusher struct {
	flushed chan struct{}
}

func (s *stubFlusher) Dispatch(_ context.Context, _ int) error {
	select {
	case s.flushed <- struct{}{}:
	default:
	}
	return nil
}

func highAlarmParam(active bool) catalog.Parameter {
	trigger := 30.0
	hysteresis := 2.0
	return catalog.Parameter{
		AlarmKind:       catalog.AlarmKindHigh,
		AlarmTrigger:    &trigger,
		AlarmHysteresis: &hysteresis,
		AlarmActive:     active,
	}
}

func rawBatch(t *testing.T, values ...float64) []readings.RawPoint {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	batch := make([]readings.RawPoint, 0, len(values))
	for i, v := range values {
		value := v
		ts := base.Add(time.Duration(i) * time.Minute).Format(readings.TimeFormat)
		batch = append(batch, readings.RawPoint{Value: &value, Time: &ts})
	}
	return batch
}

func newTestService(t *testing.T, params *stubParams, store *stubReadings, outbox *stubOutbox, flusher Flusher) (*IngestService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	service, err := NewIngestService(db, params, store, outbox, flusher, nil)
	require.NoError(t, err)
	return service, mock
}

func TestStorePersistsAndReportsWrittenRows(t *testing.T) {
	params := &stubParams{param: highAlarmParam(false)}
	store := &stubReadings{written: 2}
	outbox := &stubOutbox{}
	service, mock := newTestService(t, params, store, outbox, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := service.Store(context.Background(), 7, rawBatch(t, 10.0, 11.0))
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Persisted)
	assert.Equal(t, 2, result.Deduplicated)
	assert.False(t, result.NotificationScheduled)
	assert.Empty(t, params.updates)
	assert.Empty(t, outbox.envelopes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreIsIdempotentOnReplay(t *testing.T) {
	params := &stubParams{param: highAlarmParam(false)}
	store := &stubReadings{written: 0}
	service, mock := newTestService(t, params, store, &stubOutbox{}, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := service.Store(context.Background(), 7, rawBatch(t, 10.0))
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Persisted, "replayed batch must report zero written rows")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreSchedulesNotificationOnNetChange(t *testing.T) {
	params := &stubParams{param: highAlarmParam(false)}
	store := &stubReadings{written: 1}
	outbox := &stubOutbox{}
	flusher := &stubFlusher{flushed: make(chan struct{}, 1)}
	service, mock := newTestService(t, params, store, outbox, flusher)

	mock.ExpectBegin()
	mock.ExpectCommit()

	result, err := service.Store(context.Background(), 7, rawBatch(t, 32.0))
	require.NoError(t, err)
	assert.True(t, result.NotificationScheduled)
	assert.True(t, result.FinalAlarmActive)

	require.Len(t, params.updates, 1)
	assert.Equal(t, int64(7), params.updates[0].id)
	assert.True(t, params.updates[0].active)

	require.Len(t, outbox.envelopes, 1)
	assert.Equal(t, "events.AlarmStateChanged", outbox.envelopes[0].EventType)
	assert.NotEmpty(t, outbox.envelopes[0].EventID)

	select {
	case <-flusher.flushed:
	case <-time.After(time.Second):
		t.Fatal("expected post-commit outbox flush")
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreStampsRequestCorrelationOnEnvelope(t *testing.T) {
	params := &stubParams{param: highAlarmParam(false)}
	store := &stubReadings{written: 1}
	outbox := &stubOutbox{}
	service, mock := newTestService(t, params, store, outbox, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	ctx := eventing.WithCorrelationID(context.Background(), "req-42")
	_, err := service.Store(ctx, 7, rawBatch(t, 32.0))
	require.NoError(t, err)

	require.Len(t, outbox.envelopes, 1)
	assert.Equal(t, "req-42", outbox.envelopes[0].CorrelationID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreFlipFlopUpdatesRowButStaysSilent(t *testing.T) {
	params := &stubParams{param: highAlarmParam(false)}
	store := &stubReadings{written: 2}
	outbox := &stubOutbox{}
	service, mock := newTestService(t, params, store, outbox, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	// Activates at 32, deactivates at 27: the row records the last
	// transition but the net state matches the initial one, so no
	// notification is queued.
	result, err := service.Store(context.Background(), 7, rawBatch(t, 32.0, 27.0))
	require.NoError(t, err)
	assert.False(t, result.NotificationScheduled)
	assert.False(t, result.FinalAlarmActive)

	require.Len(t, params.updates, 1)
	assert.False(t, params.updates[0].active)
	assert.Empty(t, outbox.envelopes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreValidationFailureHasNoSideEffects(t *testing.T) {
	params := &stubParams{param: highAlarmParam(false)}
	store := &stubReadings{}
	service, mock := newTestService(t, params, store, &stubOutbox{}, nil)

	_, err := service.Store(context.Background(), 7, nil)
	var validation *readings.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Empty(t, store.inserted)
	assert.NoError(t, mock.ExpectationsWereMet(), "no transaction may be opened for an invalid batch")
}

func TestStoreUnknownParameterRollsBack(t *testing.T) {
	params := &stubParams{getErr: catalog.ErrNotFound}
	service, mock := newTestService(t, params, &stubReadings{}, &stubOutbox{}, nil)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := service.Store(context.Background(), 99, rawBatch(t, 1.0))
	require.ErrorIs(t, err, catalog.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRetriesSerializationFailureThenGivesUp(t *testing.T) {
	params := &stubParams{param: highAlarmParam(false)}
	store := &stubReadings{err: &pgconn.PgError{Code: "40001"}}
	service, mock := newTestService(t, params, store, &stubOutbox{}, nil)

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := service.Store(context.Background(), 7, rawBatch(t, 1.0))
	require.ErrorIs(t, err, readings.ErrStorageConflict)
	assert.NoError(t, mock.ExpectationsWereMet(), "exactly two attempts are made")
}

func TestStoreNonRetryableErrorFailsImmediately(t *testing.T) {
	params := &stubParams{param: highAlarmParam(false)}
	store := &stubReadings{err: &pgconn.PgError{Code: "23503"}}
	service, mock := newTestService(t, params, store, &stubOutbox{}, nil)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := service.Store(context.Background(), 7, rawBatch(t, 1.0))
	require.Error(t, err)
	assert.NotErrorIs(t, err, readings.ErrStorageConflict)
	assert.NoError(t, mock.ExpectationsWereMet(), "a constraint violation must not be retried")
}
