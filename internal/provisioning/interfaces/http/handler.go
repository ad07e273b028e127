package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"condo-ledger/internal/audit"
	"condo-ledger/internal/auth"
	provisioning "condo-ledger/internal/provisioning/application"
)

// BuildingRegistrationHandler handles building onboarding requests.
type BuildingRegistrationHandler struct {
	service     *provisioning.Service
	auditLogger audit.Logger
}

// NewBuildingRegistrationHandler constructs a handler.
func NewBuildingRegistrationHandler(service *provisioning.Service, auditLogger audit.Logger) (*BuildingRegistrationHandler, error) {
	if service == nil {
		return nil, errors.New("provisioning handler: nil service")
	}
	return &BuildingRegistrationHandler{service: service, auditLogger: auditLogger}, nil
}

// ServeHTTP handles POST /api/v1/buildings.
func (h *BuildingRegistrationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req provisioning.RegisterRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID != "" && req.Building.TenantID != "" && req.Building.TenantID != tenantID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if tenantID != "" {
		req.Building.TenantID = tenantID
	}

	resp, err := h.service.RegisterBuilding(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
	h.logAudit(r, req.Building.TenantID, resp.BuildingID)
}

func (h *BuildingRegistrationHandler) logAudit(r *http.Request, tenantID, buildingID string) {
	if h.auditLogger == nil || tenantID == "" {
		return
	}
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		TenantID:     tenantID,
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       "building.register",
		ResourceType: "building",
		ResourceID:   buildingID,
		BuildingID:   buildingID,
		Metadata:     nil,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}
