package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Job represents one integrity sweep attempt. Jobs are unique per
// (building, run date) so a retried sweep reuses its row.
type Job struct {
	ID         string
	TenantID   string
	BuildingID string
	RunDate    time.Time
	Status     string
	Attempts   int
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	StartedAt  *time.Time
	EndedAt    *time.Time
}

// Report represents the outcome of a completed sweep.
type Report struct {
	ID                string
	JobID             string
	TenantID          string
	BuildingID        string
	RunDate           time.Time
	Findings          []byte
	FindingsCount     int
	RecommendedAction string
	ReviewedAt        *time.Time
	ReviewedBy        string
	CreatedAt         time.Time
}

// Repository handles integrity persistence.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateJob inserts a job if not exists, then returns the stored job.
func (r *Repository) CreateJob(ctx context.Context, job *Job) (*Job, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("integrity repo: nil db")
	}
	if job == nil {
		return nil, errors.New("integrity repo: nil job")
	}
	now := time.Now().UTC()
	_, _ = r.db.ExecContext(ctx, `
INSERT INTO integrity_jobs (
	id, tenant_id, building_id, run_date, status, attempts, created_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,0,$6,$6
)
ON CONFLICT (building_id, run_date)
DO NOTHING`,
		job.ID, job.TenantID, job.BuildingID, job.RunDate, job.Status, now,
	)
	return r.GetJobByKey(ctx, job.BuildingID, job.RunDate)
}

// GetJobByKey returns job by unique key.
func (r *Repository) GetJobByKey(ctx context.Context, buildingID string, runDate time.Time) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, building_id, run_date, status, attempts, error, created_at, updated_at, started_at, finished_at
FROM integrity_jobs
WHERE building_id = $1 AND run_date = $2`,
		buildingID, runDate)

	return scanJob(row)
}

// UpdateJobStatus updates job status and timestamps.
func (r *Repository) UpdateJobStatus(ctx context.Context, id, status, errMsg string, startedAt, finishedAt *time.Time, bumpAttempt bool) error {
	if r == nil || r.db == nil {
		return errors.New("integrity repo: nil db")
	}
	if id == "" {
		return errors.New("integrity repo: empty job id")
	}
	now := time.Now().UTC()
	if bumpAttempt {
		_, err := r.db.ExecContext(ctx, `
UPDATE integrity_jobs
SET status = $1, error = $2, started_at = $3, finished_at = $4, attempts = attempts + 1, updated_at = $5
WHERE id = $6`, status, errMsg, startedAt, finishedAt, now, id)
		return err
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE integrity_jobs
SET status = $1, error = $2, started_at = $3, finished_at = $4, updated_at = $5
WHERE id = $6`, status, errMsg, startedAt, finishedAt, now, id)
	return err
}

// CreateReport inserts a report.
func (r *Repository) CreateReport(ctx context.Context, report *Report) error {
	if r == nil || r.db == nil {
		return errors.New("integrity repo: nil db")
	}
	if report == nil {
		return errors.New("integrity repo: nil report")
	}
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO integrity_reports (
	id, job_id, tenant_id, building_id, run_date, findings, findings_count, recommended_action, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)`,
		report.ID, report.JobID, report.TenantID, report.BuildingID, report.RunDate,
		report.Findings, report.FindingsCount, report.RecommendedAction, now)
	return err
}

// ListReports lists reports for a building and time range.
func (r *Repository) ListReports(ctx context.Context, buildingID string, from, to time.Time) ([]Report, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("integrity repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, job_id, tenant_id, building_id, run_date, findings, findings_count, recommended_action, reviewed_at, reviewed_by, created_at
FROM integrity_reports
WHERE building_id = $1 AND run_date >= $2 AND run_date < $3
ORDER BY run_date DESC`, buildingID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *report)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetReport returns report by id.
func (r *Repository) GetReport(ctx context.Context, id string) (*Report, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("integrity repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, job_id, tenant_id, building_id, run_date, findings, findings_count, recommended_action, reviewed_at, reviewed_by, created_at
FROM integrity_reports
WHERE id = $1`, id)

	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return report, nil
}

// MarkReviewed stamps a report as reviewed by an operator.
func (r *Repository) MarkReviewed(ctx context.Context, id, reviewer string) error {
	if r == nil || r.db == nil {
		return errors.New("integrity repo: nil db")
	}
	if id == "" {
		return errors.New("integrity repo: empty report id")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE integrity_reports
SET reviewed_at = $1, reviewed_by = $2
WHERE id = $3 AND reviewed_at IS NULL`, time.Now().UTC(), reviewer, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.New("integrity repo: report missing or already reviewed")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var started sql.NullTime
	var finished sql.NullTime
	var errMsg sql.NullString
	if err := row.Scan(
		&job.ID,
		&job.TenantID,
		&job.BuildingID,
		&job.RunDate,
		&job.Status,
		&job.Attempts,
		&errMsg,
		&job.CreatedAt,
		&job.UpdatedAt,
		&started,
		&finished,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	if started.Valid {
		t := started.Time.UTC()
		job.StartedAt = &t
	}
	if finished.Valid {
		t := finished.Time.UTC()
		job.EndedAt = &t
	}
	job.RunDate = job.RunDate.UTC()
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return &job, nil
}

func scanReport(row rowScanner) (*Report, error) {
	var report Report
	var reviewedAt sql.NullTime
	var reviewedBy sql.NullString
	if err := row.Scan(
		&report.ID,
		&report.JobID,
		&report.TenantID,
		&report.BuildingID,
		&report.RunDate,
		&report.Findings,
		&report.FindingsCount,
		&report.RecommendedAction,
		&reviewedAt,
		&reviewedBy,
		&report.CreatedAt,
	); err != nil {
		return nil, err
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time.UTC()
		report.ReviewedAt = &t
	}
	if reviewedBy.Valid {
		report.ReviewedBy = reviewedBy.String
	}
	report.RunDate = report.RunDate.UTC()
	report.CreatedAt = report.CreatedAt.UTC()
	return &report, nil
}
