package application

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	alarms "home-monitor/internal/alarms/domain"
	catalog "home-monitor/internal/catalog/domain"
	"home-monitor/internal/eventing"
	"home-monitor/internal/observability/metrics"
	"home-monitor/internal/readings/application/events"
	readings "home-monitor/internal/readings/domain"
)

// maxStoreAttempts bounds attempts of the whole unit of work on a write
// conflict.
const maxStoreAttempts = 2

// ParameterStore provides locked parameter access inside a transaction.
type ParameterStore interface {
	GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*catalog.Parameter, error)
	UpdateAlarmState(ctx context.Context, tx *sql.Tx, id int64, active bool, changedAt time.Time) error
}

// ReadingStore appends readings inside a transaction.
type ReadingStore interface {
	InsertIgnoreTx(ctx context.Context, tx *sql.Tx, batch []readings.Reading) (int64, error)
}

// OutboxWriter records an event inside the same transaction as the state it
// describes.
type OutboxWriter interface {
	InsertTx(ctx context.Context, tx *sql.Tx, env eventing.Envelope) (string, error)
}

// Flusher pushes committed outbox records toward delivery.
type Flusher interface {
	Dispatch(ctx context.Context, limit int) error
}

// IngestResult reports the outcome of one ingestion call.
type IngestResult struct {
	// Deduplicated is the batch length after in-batch de-duplication.
	Deduplicated int
	// Persisted is the number of rows actually written; rows absorbed
	// against storage do not count.
	Persisted int64
	// NotificationScheduled reports whether the call ended with a net alarm
	// state change and queued exactly one notification.
	NotificationScheduled bool
	FinalAlarmActive      bool
}

// IngestService coordinates one ingestion call as a single atomic unit:
// lock the parameter, append the batch, run the alarm state machine, persist
// the state change, and queue at most one notification through the outbox.
type IngestService struct {
	db      *sql.DB
	params  ParameterStore
	store   ReadingStore
	outbox  OutboxWriter
	flusher Flusher
	logger  *zap.Logger
}

// NewIngestService constructs the coordinator.
func NewIngestService(db *sql.DB, params ParameterStore, store ReadingStore, outbox OutboxWriter, flusher Flusher, logger *zap.Logger) (*IngestService, error) {
	if db == nil {
		return nil, errors.New("ingest service: nil db")
	}
	if params == nil || store == nil {
		return nil, errors.New("ingest service: nil store")
	}
	if outbox == nil {
		return nil, errors.New("ingest service: nil outbox")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestService{
		db:      db,
		params:  params,
		store:   store,
		outbox:  outbox,
		flusher: flusher,
		logger:  logger,
	}, nil
}

// Store validates, persists, and evaluates one reading batch.
//
// A malformed batch returns a ValidationError with no side effects. A missing
// parameter returns catalog.ErrNotFound with no side effects. A write
// conflict retries the entire unit; past the budget it returns
// ErrStorageConflict with everything rolled back. A batch whose rows were all
// already stored succeeds with Persisted == 0.
func (s *IngestService) Store(ctx context.Context, parameterID int64, batch []readings.RawPoint) (IngestResult, error) {
	normalized, err := readings.Normalize(parameterID, batch)
	if err != nil {
		return IngestResult{}, err
	}

	var result IngestResult
	var attemptErr error
	for attempt := 1; attempt <= maxStoreAttempts; attempt++ {
		result, attemptErr = s.storeOnce(ctx, parameterID, normalized)
		if attemptErr == nil {
			break
		}
		if !isSerializationFailure(attemptErr) {
			return IngestResult{}, attemptErr
		}
		s.logger.Warn("ingest: write conflict, retrying unit of work",
			zap.Int64("parameter_id", parameterID),
			zap.Int("attempt", attempt))
	}
	if attemptErr != nil {
		return IngestResult{}, fmt.Errorf("%w: %v", readings.ErrStorageConflict, attemptErr)
	}

	if result.NotificationScheduled && s.flusher != nil {
		// Post-commit, fire and forget: delivery must not block the caller,
		// and the periodic flush picks up anything this push misses.
		go func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.flusher.Dispatch(flushCtx, 1); err != nil {
				s.logger.Warn("ingest: outbox flush failed", zap.Error(err))
			}
		}()
	}
	return result, nil
}

func (s *IngestService) storeOnce(ctx context.Context, parameterID int64, batch []readings.Reading) (IngestResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return IngestResult{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	param, err := s.params.GetForUpdate(ctx, tx, parameterID)
	if err != nil {
		return IngestResult{}, err
	}
	initialActive := param.AlarmActive

	written, err := s.store.InsertIgnoreTx(ctx, tx, batch)
	if err != nil {
		return IngestResult{}, err
	}

	evaluation := alarms.Evaluate(*param, batch)

	scheduled := false
	if evaluation.StateChanged {
		if err := s.params.UpdateAlarmState(ctx, tx, parameterID, evaluation.FinalActive, *evaluation.FinalAt); err != nil {
			return IngestResult{}, err
		}

		// A transient flip that lands back on the initial state by batch end
		// must stay silent; only a net change notifies.
		if evaluation.FinalActive != initialActive {
			event := events.AlarmStateChanged{
				ParameterID: parameterID,
				Value:       *evaluation.FinalValue,
				Active:      evaluation.FinalActive,
				OccurredAt:  *evaluation.FinalAt,
			}
			env, err := eventing.BuildEnvelope(event, eventing.MetaFromContext(ctx))
			if err != nil {
				return IngestResult{}, err
			}
			if _, err := s.outbox.InsertTx(ctx, tx, env); err != nil {
				return IngestResult{}, err
			}
			scheduled = true
		}
	}

	if err := tx.Commit(); err != nil {
		return IngestResult{}, err
	}
	committed = true

	metrics.AddReadingsPersisted(written)
	metrics.AddReadingsDuplicates(int64(len(batch)) - written)
	if scheduled {
		metrics.IncAlarmTransition(stateLabel(evaluation.FinalActive))
		s.logger.Info("ingest: net alarm state change",
			zap.Int64("parameter_id", parameterID),
			zap.Bool("active", evaluation.FinalActive),
			zap.Float64("value", *evaluation.FinalValue),
			zap.Time("at", *evaluation.FinalAt))
	}

	return IngestResult{
		Deduplicated:          len(batch),
		Persisted:             written,
		NotificationScheduled: scheduled,
		FinalAlarmActive:      evaluation.FinalActive,
	}, nil
}

// isSerializationFailure matches Postgres serialization and deadlock
// SQLSTATEs, the only conditions worth re-attempting.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func stateLabel(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}
