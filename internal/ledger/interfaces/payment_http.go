package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"condo-ledger/internal/audit"
	"condo-ledger/internal/auth"
	ledgerapp "condo-ledger/internal/ledger/application"
	ledger "condo-ledger/internal/ledger/domain"
	"condo-ledger/internal/locking"
	"condo-ledger/internal/money"
	"condo-ledger/internal/observability/metrics"
)

// PaymentHandler handles payment intake and balance APIs.
type PaymentHandler struct {
	service         *ledgerapp.Service
	calc            *ledgerapp.Calculator
	cache           *ledgerapp.CachedBalances
	buildingChecker auth.BuildingTenantChecker
	auditLogger     audit.Logger
}

// NewPaymentHandler constructs a handler.
func NewPaymentHandler(service *ledgerapp.Service, calc *ledgerapp.Calculator, cache *ledgerapp.CachedBalances, buildingChecker auth.BuildingTenantChecker, auditLogger audit.Logger) (*PaymentHandler, error) {
	if service == nil {
		return nil, errors.New("payment handler: nil service")
	}
	if calc == nil {
		return nil, errors.New("payment handler: nil calculator")
	}
	return &PaymentHandler{
		service:         service,
		calc:            calc,
		cache:           cache,
		buildingChecker: buildingChecker,
		auditLogger:     auditLogger,
	}, nil
}

// ServeHTTP handles /api/v1/payments and /api/v1/balances.
func (h *PaymentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/payments" && r.Method == http.MethodPost:
		h.handleRecord(w, r)
	case r.URL.Path == "/api/v1/payments/webhook" && r.Method == http.MethodPost:
		h.handleRecord(w, r)
	case r.URL.Path == "/api/v1/balances" && r.Method == http.MethodGet:
		h.handleBalance(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *PaymentHandler) handleRecord(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObservePayment(result, time.Since(start))
	}()

	var req struct {
		PaymentID   string `json:"payment_id"`
		BuildingID  string `json:"building_id"`
		ApartmentID string `json:"apartment_id"`
		Amount      string `json:"amount"`
		Date        string `json:"date"`
		Method      string `json:"method"`
		PayerType   string `json:"payer_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		result = metrics.ResultError
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := h.ensureTenant(r, req.BuildingID); err != nil {
		result = metrics.ResultError
		respondTenantError(w, err)
		return
	}

	amountCents, err := money.ParseCents(req.Amount)
	if err != nil {
		result = metrics.ResultError
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}
	var date time.Time
	if req.Date != "" {
		date, err = time.Parse("2006-01-02", req.Date)
		if err != nil {
			result = metrics.ResultError
			http.Error(w, "invalid date", http.StatusBadRequest)
			return
		}
	}

	entry, err := h.service.RecordPayment(r.Context(), ledgerapp.Payment{
		ID:          req.PaymentID,
		BuildingID:  req.BuildingID,
		ApartmentID: req.ApartmentID,
		AmountCents: amountCents,
		Date:        date,
		Method:      req.Method,
		PayerType:   req.PayerType,
	})
	if err != nil {
		result = metrics.ResultError
		respondLedgerError(w, err)
		return
	}
	if h.cache != nil {
		h.cache.Invalidate(entry.ApartmentID)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"entry_id":      entry.ID,
		"payment_id":    entry.SourceID,
		"apartment_id":  entry.ApartmentID,
		"amount":        money.Format(entry.AmountCents),
		"balance_after": money.Format(entry.BalanceAfter),
		"date":          entry.Date.Format("2006-01-02"),
	})
	h.logAudit(r, entry.BuildingID, entry.SourceID, "payment.record", map[string]any{
		"apartment_id": entry.ApartmentID,
		"amount":       money.Format(entry.AmountCents),
	})
}

func (h *PaymentHandler) handleBalance(w http.ResponseWriter, r *http.Request) {
	apartmentID := r.URL.Query().Get("apartment_id")
	if apartmentID == "" {
		http.Error(w, "apartment_id required", http.StatusBadRequest)
		return
	}

	asOfRaw := r.URL.Query().Get("as_of")
	var balance int64
	var err error
	if asOfRaw != "" {
		asOf, parseErr := time.Parse("2006-01-02", asOfRaw)
		if parseErr != nil {
			http.Error(w, "invalid as_of", http.StatusBadRequest)
			return
		}
		balance, err = h.calc.BalanceAsOf(r.Context(), apartmentID, asOf)
	} else if h.cache != nil {
		balance, err = h.cache.CurrentBalance(r.Context(), apartmentID)
	} else {
		balance, err = h.calc.CurrentBalance(r.Context(), apartmentID)
	}
	if err != nil {
		respondLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"apartment_id":  apartmentID,
		"balance":       money.Format(balance),
		"balance_cents": balance,
	})
}

func (h *PaymentHandler) ensureTenant(r *http.Request, buildingID string) error {
	tenantID := auth.TenantIDFromContext(r.Context())
	if h.buildingChecker == nil || tenantID == "" || buildingID == "" {
		return nil
	}
	return h.buildingChecker.EnsureBuildingTenant(r.Context(), tenantID, buildingID)
}

func (h *PaymentHandler) logAudit(r *http.Request, buildingID, resourceID, action string, meta map[string]any) {
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
		ResourceType: "payment",
		ResourceID:   resourceID,
		BuildingID:   buildingID,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
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

func respondLedgerError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, locking.ErrLockTimeout):
		metrics.IncLockTimeout()
		http.Error(w, "building busy, retry", http.StatusConflict)
	case errors.Is(err, ledger.ErrMonthClosed):
		http.Error(w, "month is closed", http.StatusConflict)
	case errors.Is(err, ledger.ErrDataIntegrity):
		http.Error(w, "ledger integrity violation", http.StatusInternalServerError)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}
