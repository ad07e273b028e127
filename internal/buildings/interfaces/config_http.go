package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"condo-ledger/internal/auth"
	buildings "condo-ledger/internal/buildings/domain"
	"condo-ledger/internal/money"
)

// ConfigHandler serves building and apartment configuration reads.
type ConfigHandler struct {
	buildingRepo    buildings.BuildingRepository
	apartmentRepo   buildings.ApartmentRepository
	buildingChecker auth.BuildingTenantChecker
}

// NewConfigHandler constructs a handler.
func NewConfigHandler(
	buildingRepo buildings.BuildingRepository,
	apartmentRepo buildings.ApartmentRepository,
	buildingChecker auth.BuildingTenantChecker,
) (*ConfigHandler, error) {
	if buildingRepo == nil || apartmentRepo == nil {
		return nil, errors.New("config handler: nil repository")
	}
	return &ConfigHandler{
		buildingRepo:    buildingRepo,
		apartmentRepo:   apartmentRepo,
		buildingChecker: buildingChecker,
	}, nil
}

// ServeHTTP handles GET /api/v1/buildings, /api/v1/buildings/{id} and
// GET /api/v1/apartments.
func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := r.URL.Path
	switch {
	case path == "/api/v1/buildings":
		h.handleListBuildings(w, r)
	case strings.HasPrefix(path, "/api/v1/buildings/"):
		h.handleGetBuilding(w, r, strings.TrimPrefix(path, "/api/v1/buildings/"))
	case path == "/api/v1/apartments":
		h.handleListApartments(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *ConfigHandler) handleListBuildings(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		tenantID = r.URL.Query().Get("tenant_id")
	}
	if tenantID == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}
	rows, err := h.buildingRepo.List(r.Context(), tenantID)
	if err != nil {
		http.Error(w, "query buildings error", http.StatusInternalServerError)
		return
	}
	resp := make([]map[string]any, 0, len(rows))
	for _, building := range rows {
		resp = append(resp, buildingJSON(&building))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *ConfigHandler) handleGetBuilding(w http.ResponseWriter, r *http.Request, buildingID string) {
	if buildingID == "" || strings.Contains(buildingID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err := h.ensureTenant(r, buildingID); err != nil {
		respondTenantError(w, err)
		return
	}
	building, err := h.buildingRepo.Get(r.Context(), buildingID)
	if err != nil {
		http.Error(w, "query building error", http.StatusInternalServerError)
		return
	}
	if building == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	apartments, err := h.apartmentRepo.ListByBuilding(r.Context(), buildingID)
	if err != nil {
		http.Error(w, "query apartments error", http.StatusInternalServerError)
		return
	}
	resp := buildingJSON(building)
	resp["apartment_count"] = len(apartments)
	if warnings := building.Warnings(apartments); len(warnings) > 0 {
		resp["warnings"] = warnings
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *ConfigHandler) handleListApartments(w http.ResponseWriter, r *http.Request) {
	buildingID := r.URL.Query().Get("building_id")
	if buildingID == "" {
		http.Error(w, "building_id is required", http.StatusBadRequest)
		return
	}
	if err := h.ensureTenant(r, buildingID); err != nil {
		respondTenantError(w, err)
		return
	}
	rows, err := h.apartmentRepo.ListByBuilding(r.Context(), buildingID)
	if err != nil {
		http.Error(w, "query apartments error", http.StatusInternalServerError)
		return
	}
	resp := make([]map[string]any, 0, len(rows))
	for _, apartment := range rows {
		resp = append(resp, map[string]any{
			"id":                  apartment.ID,
			"building_id":         apartment.BuildingID,
			"number":              apartment.Number,
			"owner_name":          apartment.OwnerName,
			"participation_mills": apartment.ParticipationMills,
			"heating_mills":       apartment.HeatingMills,
			"elevator_mills":      apartment.ElevatorMills,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func buildingJSON(building *buildings.Building) map[string]any {
	resp := map[string]any{
		"id":                        building.ID,
		"tenant_id":                 building.TenantID,
		"name":                      building.Name,
		"participation_mills_total": building.ParticipationMillsTotal,
		"management_fee":            money.Format(building.ManagementFeeCents),
		"reserve_fund_goal":         money.Format(building.ReserveFundGoalCents),
		"reserve_fund_duration":     building.ReserveFundDuration,
		"reserve_fund_priority":     string(building.ReserveFundPriority),
	}
	if !building.ReserveFundStart.IsZero() {
		resp["reserve_fund_start"] = building.ReserveFundStart.Format("2006-01-02")
	}
	return resp
}

func (h *ConfigHandler) ensureTenant(r *http.Request, buildingID string) error {
	tenantID := auth.TenantIDFromContext(r.Context())
	if h.buildingChecker == nil || tenantID == "" {
		return nil
	}
	return h.buildingChecker.EnsureBuildingTenant(r.Context(), tenantID, buildingID)
}

func respondTenantError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrTenantMismatch):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, auth.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}
