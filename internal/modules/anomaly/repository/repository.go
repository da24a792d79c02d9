package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"weather-anomaly-server/internal/modules/anomaly/types"
)

//go:embed sql/insert-run.sql
var insertRunSQL string

//go:embed sql/insert-anomaly.sql
var insertAnomalySQL string

//go:embed sql/list-runs.sql
var listRunsSQL string

//go:embed sql/get-run.sql
var getRunSQL string

//go:embed sql/get-run-anomalies.sql
var getRunAnomaliesSQL string

// storedTimeLayout is fixed width so detected_at sorts correctly as text.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound is returned by GetRun when no run has the given ID.
var ErrRunNotFound = errors.New("detection run not found")

type RunRepository interface {
	SaveRun(ctx context.Context, run types.Run) error
	ListRuns(ctx context.Context, limit int) ([]types.Run, error)
	GetRun(ctx context.Context, id string) (types.Run, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) RunRepository {
	return &repositoryImpl{db: db}
}

// SaveRun stores the run and its anomalies in one transaction.
func (r *repositoryImpl) SaveRun(ctx context.Context, run types.Run) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Error("rollback save run", "run_id", run.ID, "error", rbErr)
			}
		}
	}()

	_, err = tx.ExecContext(ctx, insertRunSQL,
		run.ID,
		run.DetectedAt.UTC().Format(storedTimeLayout),
		run.Status,
		run.TotalObservations,
		run.TotalAnomalies,
		run.Parameters.WindowLen,
		run.Parameters.Stride,
		run.Parameters.Threshold,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	if len(run.Anomalies) > 0 {
		stmt, prepErr := tx.PrepareContext(ctx, insertAnomalySQL)
		if prepErr != nil {
			err = fmt.Errorf("prepare insert anomaly: %w", prepErr)
			return err
		}
		defer func() {
			if closeErr := stmt.Close(); closeErr != nil {
				slog.Error("close insert anomaly stmt", "error", closeErr)
			}
		}()
		for i, a := range run.Anomalies {
			_, err = stmt.ExecContext(ctx,
				run.ID, i, a.StationID, a.Variable, a.TimeStart, a.TimeEnd,
				a.AnomalyTimestamp, a.AnomalyValue, a.ZScore,
			)
			if err != nil {
				return fmt.Errorf("insert anomaly %d of run %s: %w", i, run.ID, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns returns up to limit runs, newest first, without their anomalies.
func (r *repositoryImpl) ListRuns(ctx context.Context, limit int) ([]types.Run, error) {
	rows, err := r.db.QueryContext(ctx, listRunsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close runs rows", "error", err)
		}
	}()

	out := []types.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) GetRun(ctx context.Context, id string) (types.Run, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, getRunSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Run{}, ErrRunNotFound
	}
	if err != nil {
		return types.Run{}, err
	}

	rows, err := r.db.QueryContext(ctx, getRunAnomaliesSQL, id)
	if err != nil {
		return types.Run{}, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close anomalies rows", "error", err)
		}
	}()

	run.Anomalies = []types.AnomalyRecord{}
	for rows.Next() {
		var a types.AnomalyRecord
		if err := rows.Scan(&a.TimeStart, &a.TimeEnd, &a.StationID, &a.Variable,
			&a.AnomalyTimestamp, &a.AnomalyValue, &a.ZScore); err != nil {
			return types.Run{}, err
		}
		run.Anomalies = append(run.Anomalies, a)
	}
	return run, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (types.Run, error) {
	var (
		run types.Run
		ts  string
	)
	if err := row.Scan(&run.ID, &ts, &run.Status, &run.TotalObservations, &run.TotalAnomalies,
		&run.Parameters.WindowLen, &run.Parameters.Stride, &run.Parameters.Threshold); err != nil {
		return types.Run{}, err
	}
	t, err := time.Parse(storedTimeLayout, ts)
	if err != nil {
		return types.Run{}, fmt.Errorf("parse detected_at %q: %w", ts, err)
	}
	run.DetectedAt = t
	return run, nil
}
