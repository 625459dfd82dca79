package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"bulkpress/internal/models"
)

// ReportStore persists finished job reports.
type ReportStore interface {
	SaveReport(ctx context.Context, report *models.AggregateReport) error
	GetReport(ctx context.Context, jobID uuid.UUID) (*models.AggregateReport, error)
	ListReports(ctx context.Context, limit int) ([]models.JobSummary, error)
	GetResultCounts(ctx context.Context) ([]models.ResultCount, error)
}

var _ ReportStore = (*DB)(nil)

// DefaultListLimit caps ListReports when no positive limit is given.
const DefaultListLimit = 50

const jobColumns = `id, total, succeeded, failed, started_at, finished_at`

// scanSummary scans a jobs row into a JobSummary.
func scanSummary(row pgx.Row) (*models.JobSummary, error) {
	var s models.JobSummary
	err := row.Scan(&s.JobID, &s.Total, &s.Succeeded, &s.Failed, &s.StartedAt, &s.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveReport stores the job row and every task result in one transaction.
func (d *DB) SaveReport(ctx context.Context, report *models.AggregateReport) error {
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO jobs (id, total, succeeded, failed, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, report.JobID, report.Total, report.Succeeded, report.Failed, report.StartedAt, report.FinishedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateJob
		}
		return err
	}

	for _, r := range report.Results {
		attempts, err := json.Marshal(r.Attempts)
		if err != nil {
			return fmt.Errorf("encoding attempts for %q: %w", r.Keyword, err)
		}
		var payload []byte
		if r.Payload != nil {
			if payload, err = json.Marshal(r.Payload); err != nil {
				return fmt.Errorf("encoding payload for %q: %w", r.Keyword, err)
			}
		}
		degraded := make([]string, len(r.Degraded))
		for i, s := range r.Degraded {
			degraded[i] = string(s)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO task_results
				(job_id, position, keyword, status, error_kind, error, degraded, attempts, payload, duration_ns)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, report.JobID, r.Position, r.Keyword, r.Status, string(r.ErrorKind), r.Error,
			degraded, attempts, payload, r.Duration.Nanoseconds())
		if err != nil {
			return fmt.Errorf("saving result for %q: %w", r.Keyword, err)
		}
	}

	return tx.Commit(ctx)
}

// GetReport loads a report with its results in position order.
func (d *DB) GetReport(ctx context.Context, jobID uuid.UUID) (*models.AggregateReport, error) {
	summary, err := scanSummary(d.Pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID))
	if err != nil {
		return nil, err
	}

	rows, err := d.Pool.Query(ctx, `
		SELECT position, keyword, status, error_kind, error, degraded, attempts, payload, duration_ns
		FROM task_results
		WHERE job_id = $1
		ORDER BY position
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []models.TaskResult{}
	for rows.Next() {
		var (
			r          models.TaskResult
			kind       string
			degraded   []string
			attempts   []byte
			payload    []byte
			durationNs int64
		)
		if err := rows.Scan(&r.Position, &r.Keyword, &r.Status, &kind, &r.Error,
			&degraded, &attempts, &payload, &durationNs); err != nil {
			return nil, err
		}
		r.ErrorKind = models.ErrorKind(kind)
		r.Duration = time.Duration(durationNs)
		for _, s := range degraded {
			r.Degraded = append(r.Degraded, models.Stage(s))
		}
		if err := json.Unmarshal(attempts, &r.Attempts); err != nil {
			return nil, fmt.Errorf("decoding attempts for %q: %w", r.Keyword, err)
		}
		if len(payload) > 0 {
			r.Payload = &models.Article{}
			if err := json.Unmarshal(payload, r.Payload); err != nil {
				return nil, fmt.Errorf("decoding payload for %q: %w", r.Keyword, err)
			}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &models.AggregateReport{
		JobID:      summary.JobID,
		Total:      summary.Total,
		Succeeded:  summary.Succeeded,
		Failed:     summary.Failed,
		StartedAt:  summary.StartedAt,
		FinishedAt: summary.FinishedAt,
		Results:    results,
	}, nil
}

// ListReports returns the most recently finished jobs first.
func (d *DB) ListReports(ctx context.Context, limit int) ([]models.JobSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := d.Pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY finished_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []models.JobSummary{}
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *s)
	}
	return summaries, rows.Err()
}

// GetResultCounts returns persisted task results grouped by status and
// error kind for metrics export.
func (d *DB) GetResultCounts(ctx context.Context) ([]models.ResultCount, error) {
	rows, err := d.Pool.Query(ctx, `
		SELECT status, error_kind, COUNT(*)
		FROM task_results
		GROUP BY status, error_kind
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []models.ResultCount
	for rows.Next() {
		var (
			c    models.ResultCount
			kind string
		)
		if err := rows.Scan(&c.Status, &kind, &c.Count); err != nil {
			return nil, err
		}
		c.ErrorKind = models.ErrorKind(kind)
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
