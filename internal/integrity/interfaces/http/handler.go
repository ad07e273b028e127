package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"condo-ledger/internal/auth"
	integrityapp "condo-ledger/internal/integrity/application"
	integrityrepo "condo-ledger/internal/integrity/infrastructure/postgres"
)

const timeLayout = time.RFC3339

// Handler provides integrity APIs.
type Handler struct {
	runner          *integrityapp.Runner
	repo            *integrityrepo.Repository
	tenantID        string
	buildingChecker auth.BuildingTenantChecker
}

// NewHandler constructs a handler.
func NewHandler(runner *integrityapp.Runner, repo *integrityrepo.Repository, tenantID string, buildingChecker auth.BuildingTenantChecker) (*Handler, error) {
	if runner == nil || repo == nil {
		return nil, errors.New("integrity handler: nil dependency")
	}
	return &Handler{runner: runner, repo: repo, tenantID: tenantID, buildingChecker: buildingChecker}, nil
}

// ServeHTTP routes integrity endpoints.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/integrity/run" && r.Method == http.MethodPost:
		h.handleRun(w, r)
		return
	case r.URL.Path == "/api/v1/integrity/reports" && r.Method == http.MethodGet:
		h.handleReports(w, r)
		return
	case strings.HasPrefix(r.URL.Path, "/api/v1/integrity/reports/"):
		h.handleReportByID(w, r)
		return
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID    string   `json:"tenant_id"`
		BuildingIDs []string `json:"building_ids"`
		RunDate     string   `json:"run_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		tenantID = req.TenantID
	}
	if tenantID == "" {
		tenantID = h.tenantID
	}
	if tenantID == "" {
		http.Error(w, "tenant_id required", http.StatusBadRequest)
		return
	}
	if len(req.BuildingIDs) == 0 {
		http.Error(w, "building_ids required", http.StatusBadRequest)
		return
	}
	runDate := time.Now().UTC()
	if req.RunDate != "" {
		parsed, err := time.Parse("2006-01-02", req.RunDate)
		if err != nil {
			http.Error(w, "run_date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		runDate = parsed
	}
	var results []map[string]any
	for _, buildingID := range req.BuildingIDs {
		if err := ensureBuildingTenant(r, h.buildingChecker, tenantID, buildingID); err != nil {
			results = append(results, map[string]any{
				"building_id": buildingID,
				"error":       tenantErrorMessage(err),
			})
			continue
		}
		report, err := h.runner.Run(r.Context(), tenantID, buildingID, runDate)
		if err != nil {
			results = append(results, map[string]any{
				"building_id": buildingID,
				"error":       err.Error(),
			})
			continue
		}
		if report != nil {
			results = append(results, map[string]any{
				"building_id":    buildingID,
				"report_id":      report.ID,
				"findings_count": report.FindingsCount,
			})
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(results)
}

func (h *Handler) handleReports(w http.ResponseWriter, r *http.Request) {
	buildingID := r.URL.Query().Get("building_id")
	if buildingID == "" {
		http.Error(w, "building_id required", http.StatusBadRequest)
		return
	}
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID != "" {
		if err := ensureBuildingTenant(r, h.buildingChecker, tenantID, buildingID); err != nil {
			respondTenantError(w, err)
			return
		}
	}
	from, err := parseTimeQuery(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}
	reports, err := h.repo.ListReports(r.Context(), buildingID, from, to)
	if err != nil {
		http.Error(w, "query reports error", http.StatusInternalServerError)
		return
	}
	resp := make([]map[string]any, 0, len(reports))
	for _, report := range reports {
		resp = append(resp, reportJSON(&report))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) handleReportByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/integrity/reports/")
	parts := strings.Split(path, "/")
	reportID := parts[0]
	if reportID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if len(parts) == 1 && r.Method == http.MethodGet {
		h.handleReportGet(w, r, reportID)
		return
	}
	if len(parts) == 2 && parts[1] == "review" && r.Method == http.MethodPost {
		h.handleReview(w, r, reportID)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *Handler) handleReportGet(w http.ResponseWriter, r *http.Request, reportID string) {
	report, err := h.repo.GetReport(r.Context(), reportID)
	if err != nil || report == nil {
		http.Error(w, "report not found", http.StatusNotFound)
		return
	}
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID != "" && report.TenantID != tenantID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(reportJSON(report))
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request, reportID string) {
	report, err := h.repo.GetReport(r.Context(), reportID)
	if err != nil || report == nil {
		http.Error(w, "report not found", http.StatusNotFound)
		return
	}
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID != "" && report.TenantID != tenantID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	reviewer := auth.SubjectFromContext(r.Context())
	if reviewer == "" {
		reviewer = "operator"
	}
	if err := h.repo.MarkReviewed(r.Context(), reportID, reviewer); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"report_id":   reportID,
		"reviewed_by": reviewer,
	})
}

func reportJSON(report *integrityrepo.Report) map[string]any {
	resp := map[string]any{
		"id":                 report.ID,
		"job_id":             report.JobID,
		"building_id":        report.BuildingID,
		"run_date":           report.RunDate.Format("2006-01-02"),
		"findings":           json.RawMessage(report.Findings),
		"findings_count":     report.FindingsCount,
		"recommended_action": report.RecommendedAction,
	}
	if report.ReviewedAt != nil {
		resp["reviewed_at"] = report.ReviewedAt.Format(timeLayout)
		resp["reviewed_by"] = report.ReviewedBy
	}
	return resp
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, errors.New(key + " is required")
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}

func ensureBuildingTenant(r *http.Request, checker auth.BuildingTenantChecker, tenantID, buildingID string) error {
	if checker == nil || tenantID == "" || buildingID == "" {
		return nil
	}
	return checker.EnsureBuildingTenant(r.Context(), tenantID, buildingID)
}

func respondTenantError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, auth.ErrTenantMismatch) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if errors.Is(err, auth.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	http.Error(w, "tenant check failed", http.StatusInternalServerError)
}

func tenantErrorMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrTenantMismatch):
		return "forbidden"
	case errors.Is(err, auth.ErrNotFound):
		return "not found"
	case err != nil:
		return err.Error()
	default:
		return ""
	}
}
