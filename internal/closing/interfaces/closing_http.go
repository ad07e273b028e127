package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"condo-ledger/internal/audit"
	"condo-ledger/internal/auth"
	buildings "condo-ledger/internal/buildings/domain"
	closingapp "condo-ledger/internal/closing/application"
	closing "condo-ledger/internal/closing/domain"
	ledgerapp "condo-ledger/internal/ledger/application"
	ledger "condo-ledger/internal/ledger/domain"
	"condo-ledger/internal/locking"
	"condo-ledger/internal/money"
	"condo-ledger/internal/observability/metrics"
	"condo-ledger/internal/period"
)

// ClosingHandler handles month close APIs and statement exports.
type ClosingHandler struct {
	service         *closingapp.Service
	buildingRepo    buildings.BuildingRepository
	apartmentRepo   buildings.ApartmentRepository
	ledgerRepo      ledger.Repository
	calc            *ledgerapp.Calculator
	buildingChecker auth.BuildingTenantChecker
	auditLogger     audit.Logger
}

// NewClosingHandler constructs a handler.
func NewClosingHandler(
	service *closingapp.Service,
	buildingRepo buildings.BuildingRepository,
	apartmentRepo buildings.ApartmentRepository,
	ledgerRepo ledger.Repository,
	calc *ledgerapp.Calculator,
	buildingChecker auth.BuildingTenantChecker,
	auditLogger audit.Logger,
) (*ClosingHandler, error) {
	if service == nil {
		return nil, errors.New("closing handler: nil service")
	}
	if buildingRepo == nil || apartmentRepo == nil {
		return nil, errors.New("closing handler: nil building repositories")
	}
	if ledgerRepo == nil || calc == nil {
		return nil, errors.New("closing handler: nil ledger readers")
	}
	return &ClosingHandler{
		service:         service,
		buildingRepo:    buildingRepo,
		apartmentRepo:   apartmentRepo,
		ledgerRepo:      ledgerRepo,
		calc:            calc,
		buildingChecker: buildingChecker,
		auditLogger:     auditLogger,
	}, nil
}

// ServeHTTP handles closing routes under /api/v1/closings.
func (h *ClosingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/api/v1/closings/close" && r.Method == http.MethodPost:
		h.handleClose(w, r)
	case path == "/api/v1/closings/reopen" && r.Method == http.MethodPost:
		h.handleReopen(w, r)
	case path == "/api/v1/closings/preview" && r.Method == http.MethodPost:
		h.handlePreview(w, r)
	case path == "/api/v1/closings" && r.Method == http.MethodGet:
		h.handleList(w, r)
	case strings.HasPrefix(path, "/api/v1/closings/") && r.Method == http.MethodGet:
		h.handleExport(w, r, strings.TrimPrefix(path, "/api/v1/closings/"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *ClosingHandler) decodeMonthRequest(r *http.Request) (string, period.YearMonth, string, error) {
	var req struct {
		BuildingID string `json:"building_id"`
		Month      string `json:"month"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", period.YearMonth{}, "", errors.New("invalid json")
	}
	ym, err := period.Parse(req.Month)
	if err != nil {
		return "", period.YearMonth{}, "", errors.New("invalid month, want YYYY-MM")
	}
	if err := h.ensureTenant(r, req.BuildingID); err != nil {
		return "", period.YearMonth{}, "", err
	}
	return req.BuildingID, ym, auth.SubjectFromContext(r.Context()), nil
}

func (h *ClosingHandler) handleClose(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveClose(result, time.Since(start))
	}()

	buildingID, ym, _, err := h.decodeMonthRequest(r)
	if err != nil {
		result = metrics.ResultError
		respondRequestError(w, err)
		return
	}
	row, err := h.service.Close(r.Context(), buildingID, ym)
	if err != nil {
		result = metrics.ResultError
		respondClosingError(w, err)
		return
	}
	h.respondRow(w, row)
	h.logAudit(r, buildingID, row.ID, "monthly_balance.close", map[string]any{
		"month":         ym.String(),
		"carry_forward": money.Format(row.CarryForwardCents),
	})
}

func (h *ClosingHandler) handleReopen(w http.ResponseWriter, r *http.Request) {
	buildingID, ym, actor, err := h.decodeMonthRequest(r)
	if err != nil {
		metrics.IncReopen(metrics.ResultError)
		respondRequestError(w, err)
		return
	}
	row, err := h.service.Reopen(r.Context(), buildingID, ym, actor)
	if err != nil {
		metrics.IncReopen(metrics.ResultError)
		respondClosingError(w, err)
		return
	}
	metrics.IncReopen(metrics.ResultSuccess)
	h.respondRow(w, row)
}

func (h *ClosingHandler) handlePreview(w http.ResponseWriter, r *http.Request) {
	buildingID, ym, _, err := h.decodeMonthRequest(r)
	if err != nil {
		respondRequestError(w, err)
		return
	}
	row, err := h.service.Preview(r.Context(), buildingID, ym)
	if err != nil {
		respondClosingError(w, err)
		return
	}
	h.respondRow(w, row)
}

func (h *ClosingHandler) handleList(w http.ResponseWriter, r *http.Request) {
	buildingID := r.URL.Query().Get("building_id")
	if buildingID == "" {
		http.Error(w, "building_id required", http.StatusBadRequest)
		return
	}
	if err := h.ensureTenant(r, buildingID); err != nil {
		respondRequestError(w, err)
		return
	}
	rows, err := h.service.History(r.Context(), buildingID)
	if err != nil {
		respondClosingError(w, err)
		return
	}
	resp := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, rowJSON(&row))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleExport serves /{building}/{month}/export.pdf and export.xlsx.
func (h *ClosingHandler) handleExport(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.Split(rest, "/")
	if len(parts) != 3 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	buildingID := parts[0]
	ym, err := period.Parse(parts[1])
	if err != nil {
		http.Error(w, "invalid month", http.StatusBadRequest)
		return
	}
	format := ""
	switch parts[2] {
	case "export.pdf":
		format = "pdf"
	case "export.xlsx":
		format = "xlsx"
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err := h.ensureTenant(r, buildingID); err != nil {
		respondRequestError(w, err)
		return
	}

	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveStatementExport(format, result, time.Since(start))
	}()

	stmt, err := h.buildStatement(r, buildingID, ym)
	if err != nil {
		result = metrics.ResultError
		respondClosingError(w, err)
		return
	}

	var data []byte
	if format == "pdf" {
		data, err = BuildStatementPDF(*stmt)
	} else {
		data, err = BuildStatementXLSX(*stmt)
	}
	if err != nil {
		result = metrics.ResultError
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}

	if format == "pdf" {
		w.Header().Set("Content-Type", "application/pdf")
	} else {
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logAudit(r, buildingID, stmt.Balance.ID, "monthly_balance.export", map[string]any{
		"month":  ym.String(),
		"format": format,
	})
}

func (h *ClosingHandler) buildStatement(r *http.Request, buildingID string, ym period.YearMonth) (*Statement, error) {
	ctx := r.Context()
	row, err := h.service.Repo().FindByPeriod(ctx, buildingID, ym)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, closing.ErrNotFound
	}
	building, err := h.buildingRepo.Get(ctx, buildingID)
	if err != nil {
		return nil, err
	}
	if building == nil {
		return nil, buildings.ErrBuildingNotFound
	}
	apartments, err := h.apartmentRepo.ListByBuilding(ctx, buildingID)
	if err != nil {
		return nil, err
	}

	from, to := ym.FirstDay(), ym.NextFirstDay()
	entries, err := h.ledgerRepo.EntriesForBuildingInRange(ctx, buildingID, from, to)
	if err != nil {
		return nil, err
	}
	charges := make(map[string]int64)
	payments := make(map[string]int64)
	for _, entry := range entries {
		if entry.AmountCents < 0 {
			charges[entry.ApartmentID] += -entry.AmountCents
		} else if entry.Kind == ledger.KindPayment {
			payments[entry.ApartmentID] += entry.AmountCents
		}
	}

	stmt := &Statement{
		BuildingID:   buildingID,
		BuildingName: building.Name,
		Balance:      *row,
	}
	for _, apartment := range apartments {
		endBalance, err := h.calc.BalanceAsOf(ctx, apartment.ID, to)
		if err != nil {
			return nil, err
		}
		stmt.Lines = append(stmt.Lines, StatementLine{
			ApartmentID:     apartment.ID,
			Number:          apartment.Number,
			OwnerName:       apartment.OwnerName,
			ChargesCents:    charges[apartment.ID],
			PaymentsCents:   payments[apartment.ID],
			EndBalanceCents: endBalance,
		})
	}
	return stmt, nil
}

func (h *ClosingHandler) respondRow(w http.ResponseWriter, row *closing.MonthlyBalance) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rowJSON(row))
}

func rowJSON(row *closing.MonthlyBalance) map[string]any {
	resp := map[string]any{
		"id":                   row.ID,
		"building_id":          row.BuildingID,
		"month":                row.Period.String(),
		"total_expenses":       money.Format(row.TotalExpensesCents),
		"total_payments":       money.Format(row.TotalPaymentsCents),
		"previous_obligations": money.Format(row.PreviousObligations),
		"reserve_fund":         money.Format(row.ReserveFundCents),
		"management_fees":      money.Format(row.ManagementFeesCents),
		"carry_forward":        money.Format(row.CarryForwardCents),
		"is_closed":            row.IsClosed,
	}
	if row.ClosedAt != nil {
		resp["closed_at"] = row.ClosedAt.Format(time.RFC3339)
	}
	return resp
}

func (h *ClosingHandler) ensureTenant(r *http.Request, buildingID string) error {
	tenantID := auth.TenantIDFromContext(r.Context())
	if h.buildingChecker == nil || tenantID == "" || buildingID == "" {
		return nil
	}
	return h.buildingChecker.EnsureBuildingTenant(r.Context(), tenantID, buildingID)
}

func (h *ClosingHandler) logAudit(r *http.Request, buildingID, resourceID, action string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		return
	}
	payload, _ := json.Marshal(meta)
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		TenantID:     tenantID,
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "monthly_balance",
		ResourceID:   resourceID,
		BuildingID:   buildingID,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}

func respondRequestError(w http.ResponseWriter, err error) {
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
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func respondClosingError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, closing.ErrAlreadyClosed):
		http.Error(w, "month already closed", http.StatusConflict)
	case errors.Is(err, closing.ErrSequentialClose):
		http.Error(w, "months must close in order", http.StatusConflict)
	case errors.Is(err, closing.ErrNotClosed):
		http.Error(w, "month is not closed", http.StatusConflict)
	case errors.Is(err, closing.ErrNotFound), errors.Is(err, buildings.ErrBuildingNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, locking.ErrLockTimeout):
		metrics.IncLockTimeout()
		http.Error(w, "building busy, retry", http.StatusConflict)
	case errors.Is(err, ledger.ErrMonthClosed):
		http.Error(w, "ledger month is closed", http.StatusConflict)
	case errors.Is(err, ledger.ErrDataIntegrity):
		http.Error(w, "ledger integrity violation", http.StatusInternalServerError)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}
