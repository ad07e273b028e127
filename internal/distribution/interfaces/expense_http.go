package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"condo-ledger/internal/audit"
	"condo-ledger/internal/auth"
	distapp "condo-ledger/internal/distribution/application"
	distribution "condo-ledger/internal/distribution/domain"
	ledger "condo-ledger/internal/ledger/domain"
	"condo-ledger/internal/locking"
	"condo-ledger/internal/money"
	"condo-ledger/internal/observability/metrics"
)

// ExpenseHandler handles expense intake APIs.
type ExpenseHandler struct {
	engine          *distapp.Engine
	buildingChecker auth.BuildingTenantChecker
	auditLogger     audit.Logger
}

// NewExpenseHandler constructs a handler.
func NewExpenseHandler(engine *distapp.Engine, buildingChecker auth.BuildingTenantChecker, auditLogger audit.Logger) (*ExpenseHandler, error) {
	if engine == nil {
		return nil, errors.New("expense handler: nil engine")
	}
	return &ExpenseHandler{engine: engine, buildingChecker: buildingChecker, auditLogger: auditLogger}, nil
}

type expenseRequest struct {
	ExpenseID        string           `json:"expense_id"`
	BuildingID       string           `json:"building_id"`
	Amount           string           `json:"amount"`
	Date             string           `json:"date"`
	Category         string           `json:"category"`
	DistributionType string           `json:"distribution_type"`
	DueDate          string           `json:"due_date"`
	Consumption      map[string]int64 `json:"consumption"`
	Fresh            bool             `json:"fresh"`
}

// ServeHTTP handles expense routes under /api/v1/expenses.
func (h *ExpenseHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/api/v1/expenses" && r.Method == http.MethodPost:
		h.handleDistribute(w, r)
	case path == "/api/v1/expenses/preview" && r.Method == http.MethodPost:
		h.handlePreview(w, r)
	case strings.HasPrefix(path, "/api/v1/expenses/") && r.Method == http.MethodDelete:
		h.handleRemove(w, r, strings.TrimPrefix(path, "/api/v1/expenses/"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *ExpenseHandler) decodeExpense(r *http.Request) (distribution.Expense, bool, error) {
	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return distribution.Expense{}, false, errors.New("invalid json")
	}
	amountCents, err := money.ParseCents(req.Amount)
	if err != nil {
		return distribution.Expense{}, false, errors.New("invalid amount")
	}
	rule, err := distribution.ParseType(req.DistributionType)
	if err != nil {
		return distribution.Expense{}, false, errors.New("invalid distribution_type")
	}
	expense := distribution.Expense{
		ID:          req.ExpenseID,
		BuildingID:  req.BuildingID,
		AmountCents: amountCents,
		Category:    req.Category,
		Type:        rule,
		Consumption: req.Consumption,
	}
	if expense.ID == "" {
		expense.ID = uuid.NewString()
	}
	if req.Date != "" {
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			return distribution.Expense{}, false, errors.New("invalid date")
		}
		expense.Date = date
	}
	if req.DueDate != "" {
		due, err := time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			return distribution.Expense{}, false, errors.New("invalid due_date")
		}
		expense.DueDate = &due
	}
	if err := h.ensureTenant(r, expense.BuildingID); err != nil {
		return distribution.Expense{}, false, err
	}
	return expense, req.Fresh, nil
}

func (h *ExpenseHandler) handleDistribute(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveDistribute(result, time.Since(start))
	}()

	expense, fresh, err := h.decodeExpense(r)
	if err != nil {
		result = metrics.ResultError
		respondDecodeError(w, err)
		return
	}

	shares, err := h.engine.Distribute(r.Context(), expense, fresh)
	if err != nil {
		result = metrics.ResultError
		respondEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"expense_id": expense.ID,
		"shares":     formatShares(shares),
	})
	h.logAudit(r, expense.BuildingID, expense.ID, "expense.distribute", map[string]any{
		"amount":            money.Format(expense.AmountCents),
		"distribution_type": string(expense.Type),
	})
}

func (h *ExpenseHandler) handlePreview(w http.ResponseWriter, r *http.Request) {
	expense, _, err := h.decodeExpense(r)
	if err != nil {
		respondDecodeError(w, err)
		return
	}
	shares, err := h.engine.Preview(r.Context(), expense)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"expense_id": expense.ID,
		"shares":     formatShares(shares),
	})
}

func (h *ExpenseHandler) handleRemove(w http.ResponseWriter, r *http.Request, expenseID string) {
	if expenseID == "" || strings.Contains(expenseID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	expense, err := h.engine.Expenses().Get(r.Context(), expenseID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if expense == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err := h.ensureTenant(r, expense.BuildingID); err != nil {
		respondTenantError(w, err)
		return
	}

	if err := h.engine.Remove(r.Context(), expenseID); err != nil {
		respondEngineError(w, err)
		return
	}
	metrics.IncReversal(ledger.SourceExpense)
	w.WriteHeader(http.StatusNoContent)
	h.logAudit(r, expense.BuildingID, expenseID, "expense.remove", map[string]any{
		"amount": money.Format(expense.AmountCents),
	})
}

func (h *ExpenseHandler) ensureTenant(r *http.Request, buildingID string) error {
	tenantID := auth.TenantIDFromContext(r.Context())
	if h.buildingChecker == nil || tenantID == "" || buildingID == "" {
		return nil
	}
	return h.buildingChecker.EnsureBuildingTenant(r.Context(), tenantID, buildingID)
}

func (h *ExpenseHandler) logAudit(r *http.Request, buildingID, expenseID, action string, meta map[string]any) {
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
		ResourceType: "expense",
		ResourceID:   expenseID,
		BuildingID:   buildingID,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}

func formatShares(shares map[string]int64) map[string]string {
	formatted := make(map[string]string, len(shares))
	for apartmentID, cents := range shares {
		formatted[apartmentID] = money.Format(cents)
	}
	return formatted
}

func respondDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, auth.ErrTenantMismatch) || errors.Is(err, auth.ErrNotFound) {
		respondTenantError(w, err)
		return
	}
	http.Error(w, err.Error(), http.StatusBadRequest)
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

func respondEngineError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, distribution.ErrAlreadyDistributed):
		http.Error(w, "expense already distributed; reverse it first", http.StatusConflict)
	case errors.Is(err, distribution.ErrExpenseNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, locking.ErrLockTimeout):
		metrics.IncLockTimeout()
		http.Error(w, "building busy, retry", http.StatusConflict)
	case errors.Is(err, ledger.ErrMonthClosed):
		http.Error(w, "month is closed", http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}
