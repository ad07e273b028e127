package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	integrityrepo "condo-ledger/internal/integrity/infrastructure/postgres"
	integritynotify "condo-ledger/internal/integrity/notify"
	"condo-ledger/internal/observability/metrics"
)

const (
	jobStatusCreated = "created"
	jobStatusRunning = "running"
	jobStatusSuccess = "succeeded"
	jobStatusFailed  = "failed"
)

// Runner executes integrity sweeps and persists their reports.
type Runner struct {
	repo          *integrityrepo.Repository
	checker       *Checker
	cfg           Config
	notifier      integritynotify.Notifier
	logger        *log.Logger
	publicBaseURL string
}

// NewRunner constructs a Runner.
func NewRunner(repo *integrityrepo.Repository, checker *Checker, cfg Config, notifier integritynotify.Notifier, logger *log.Logger) *Runner {
	return &Runner{
		repo:          repo,
		checker:       checker,
		cfg:           cfg,
		notifier:      notifier,
		logger:        logger,
		publicBaseURL: cfg.PublicBaseURL,
	}
}

// Run executes one sweep for a building. Reruns on the same day reuse the
// stored report.
func (r *Runner) Run(ctx context.Context, tenantID, buildingID string, runDate time.Time) (*integrityrepo.Report, error) {
	if r == nil || r.checker == nil || r.repo == nil {
		return nil, fmt.Errorf("integrity runner: nil")
	}
	if tenantID == "" || buildingID == "" {
		return nil, fmt.Errorf("integrity runner: tenant_id/building_id required")
	}
	runDate = time.Date(runDate.Year(), runDate.Month(), runDate.Day(), 0, 0, 0, 0, time.UTC)

	jobID := fmt.Sprintf("ic-%s-%s", buildingID, runDate.Format("20060102"))
	job, err := r.repo.CreateJob(ctx, &integrityrepo.Job{
		ID:         jobID,
		TenantID:   tenantID,
		BuildingID: buildingID,
		RunDate:    runDate,
		Status:     jobStatusCreated,
	})
	if err != nil {
		return nil, err
	}
	if job.Status == jobStatusSuccess {
		report, _ := r.repo.GetReport(ctx, "report-"+job.ID)
		return report, nil
	}
	if job.Status == jobStatusRunning {
		return nil, fmt.Errorf("integrity job already running")
	}

	started := time.Now().UTC()
	_ = r.repo.UpdateJobStatus(ctx, job.ID, jobStatusRunning, "", &started, nil, true)
	r.logf("integrity_job_start", tenantID, buildingID, job.ID, "", "")

	thresholds := r.cfg.ThresholdsForBuilding(buildingID)
	// Expense coverage trails one year behind the run date; chain and
	// month checks inside cover full history.
	from := time.Date(runDate.Year()-1, runDate.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := runDate.AddDate(0, 0, 1)

	findings, err := r.checker.CheckBuilding(ctx, buildingID, from, to, thresholds)
	if err != nil {
		ended := time.Now().UTC()
		_ = r.repo.UpdateJobStatus(ctx, job.ID, jobStatusFailed, err.Error(), &started, &ended, false)
		metrics.IncIntegrityCheck(metrics.ResultError)
		r.logf("integrity_job_failed", tenantID, buildingID, job.ID, "", err.Error())
		return nil, err
	}

	byCheck := make(map[string]int)
	for _, finding := range findings {
		byCheck[finding.Check]++
	}
	for check, count := range byCheck {
		metrics.AddIntegrityFindings(check, count)
	}

	findingsBytes, _ := json.Marshal(findings)
	reportID := "report-" + job.ID
	report := &integrityrepo.Report{
		ID:                reportID,
		JobID:             job.ID,
		TenantID:          tenantID,
		BuildingID:        buildingID,
		RunDate:           runDate,
		Findings:          findingsBytes,
		FindingsCount:     len(findings),
		RecommendedAction: recommendedAction(byCheck),
		CreatedAt:         time.Now().UTC(),
	}
	if err := r.repo.CreateReport(ctx, report); err != nil {
		ended := time.Now().UTC()
		_ = r.repo.UpdateJobStatus(ctx, job.ID, jobStatusFailed, err.Error(), &started, &ended, false)
		metrics.IncIntegrityCheck(metrics.ResultError)
		return nil, err
	}

	if thresholds.AlertFindings > 0 && len(findings) >= thresholds.AlertFindings {
		if err := r.alert(ctx, report, byCheck); err != nil {
			r.logf("integrity_alert_failed", tenantID, buildingID, job.ID, report.ID, err.Error())
		}
	}

	ended := time.Now().UTC()
	_ = r.repo.UpdateJobStatus(ctx, job.ID, jobStatusSuccess, "", &started, &ended, false)
	metrics.IncIntegrityCheck(metrics.ResultSuccess)
	r.logf("integrity_job_success", tenantID, buildingID, job.ID, report.ID, "")
	return report, nil
}

func (r *Runner) alert(ctx context.Context, report *integrityrepo.Report, byCheck map[string]int) error {
	if r.notifier == nil || report == nil {
		return nil
	}
	msg := integritynotify.AlertMessage{
		TenantID:          report.TenantID,
		BuildingID:        report.BuildingID,
		RunDate:           report.RunDate.Format("2006-01-02"),
		ReportID:          report.ID,
		ReportURL:         fmt.Sprintf("%s/api/v1/integrity/reports/%s", r.publicBaseURL, report.ID),
		FindingsCount:     report.FindingsCount,
		FindingsByCheck:   byCheck,
		RecommendedAction: report.RecommendedAction,
		Meta:              map[string]string{"job_id": report.JobID},
	}
	return r.notifier.Notify(ctx, msg)
}

func recommendedAction(byCheck map[string]int) string {
	if byCheck[CheckBalanceChain] > 0 {
		return "audit_ledger_writes"
	}
	if byCheck[CheckAllocationSum] > 0 {
		return "review_expense_distribution"
	}
	if byCheck[CheckMonthContinuity] > 0 {
		return "reopen_and_reclose_months"
	}
	if byCheck[CheckStaleOpenMonth] > 0 {
		return "close_pending_months"
	}
	return "none"
}

func (r *Runner) logf(event, tenantID, buildingID, jobID, reportID, errMsg string) {
	if r.logger == nil {
		return
	}
	r.logger.Printf("event=%s tenant_id=%s building_id=%s job_id=%s report_id=%s correlation_id=%s error=%s",
		event, tenantID, buildingID, jobID, reportID, jobID, errMsg)
}
