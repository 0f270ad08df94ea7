package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	catalog "home-monitor/internal/catalog/domain"
)

const defaultParametersTable = "device_parameters"

// ParameterRepository is a Postgres repository for monitored parameters. The
// ingestion core only ever writes the alarm state columns; everything else on
// the row belongs to the catalog management surface.
type ParameterRepository struct {
	db    *sql.DB
	table string
}

// NewParameterRepository constructs a repository.
func NewParameterRepository(db *sql.DB, opts ...ParameterOption) *ParameterRepository {
	repo := &ParameterRepository{db: db, table: defaultParametersTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// ParameterOption configures the repository.
type ParameterOption func(*ParameterRepository)

// WithParametersTable overrides the default table name.
func WithParametersTable(table string) ParameterOption {
	return func(repo *ParameterRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// GetForUpdate loads a parameter with an exclusive row lock inside the
// caller's transaction. The lock serializes concurrent ingestions for the
// same parameter; other parameters proceed independently.
func (r *ParameterRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*catalog.Parameter, error) {
	if r == nil {
		return nil, errors.New("parameter repo: nil repo")
	}
	if tx == nil {
		return nil, errors.New("parameter repo: nil tx")
	}
	query := fmt.Sprintf(`
SELECT id, device_id, name, unit, alarm_type, alarm_trigger, alarm_hysteresis, alarm_active, alarm_updated_at
FROM %s
WHERE id = $1
FOR UPDATE`, r.table)

	row := tx.QueryRowContext(ctx, query, id)
	return scanParameter(row)
}

// UpdateAlarmState writes the active flag and last-changed timestamp inside
// the caller's transaction. These are the only columns the ingestion core
// mutates.
func (r *ParameterRepository) UpdateAlarmState(ctx context.Context, tx *sql.Tx, id int64, active bool, changedAt time.Time) error {
	if r == nil {
		return errors.New("parameter repo: nil repo")
	}
	if tx == nil {
		return errors.New("parameter repo: nil tx")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET alarm_active = $1, alarm_updated_at = $2
WHERE id = $3`, r.table)

	result, err := tx.ExecContext(ctx, query, active, changedAt.UTC(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// Exists reports whether a parameter row exists, without locking it.
func (r *ParameterRepository) Exists(ctx context.Context, id int64) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("parameter repo: nil db")
	}
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, r.table)
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// GetDisplay loads the current row data used to render a notification,
// joined with the owning device's name. Deliberately unlocked: the dispatcher
// reads whatever the row says at delivery time.
func (r *ParameterRepository) GetDisplay(ctx context.Context, id int64) (*catalog.ParameterDisplay, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("parameter repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT p.id, p.name, p.unit, d.name, p.alarm_active, p.alarm_updated_at
FROM %s p
JOIN devices d ON d.id = p.device_id
WHERE p.id = $1`, r.table)

	row := r.db.QueryRowContext(ctx, query, id)
	var display catalog.ParameterDisplay
	var updatedAt sql.NullTime
	if err := row.Scan(
		&display.ID,
		&display.Name,
		&display.Unit,
		&display.DeviceName,
		&display.AlarmActive,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, err
	}
	if updatedAt.Valid {
		utc := updatedAt.Time.UTC()
		display.AlarmUpdatedAt = &utc
	}
	return &display, nil
}

func scanParameter(row *sql.Row) (*catalog.Parameter, error) {
	var param catalog.Parameter
	var kind string
	var trigger, hysteresis sql.NullFloat64
	var updatedAt sql.NullTime
	if err := row.Scan(
		&param.ID,
		&param.DeviceID,
		&param.Name,
		&param.Unit,
		&kind,
		&trigger,
		&hysteresis,
		&param.AlarmActive,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, err
	}
	param.AlarmKind = catalog.AlarmKind(kind)
	if trigger.Valid {
		value := trigger.Float64
		param.AlarmTrigger = &value
	}
	if hysteresis.Valid {
		value := hysteresis.Float64
		param.AlarmHysteresis = &value
	}
	if updatedAt.Valid {
		utc := updatedAt.Time.UTC()
		param.AlarmUpdatedAt = &utc
	}
	return &param, nil
}
