package notify

import "context"

// AlertMessage represents an integrity notification payload.
type AlertMessage struct {
	TenantID          string            `json:"tenant_id"`
	BuildingID        string            `json:"building_id"`
	RunDate           string            `json:"run_date"`
	ReportID          string            `json:"report_id"`
	ReportURL         string            `json:"report_url"`
	FindingsCount     int               `json:"findings_count"`
	FindingsByCheck   map[string]int    `json:"findings_by_check"`
	RecommendedAction string            `json:"recommended_action"`
	Meta              map[string]string `json:"meta,omitempty"`
}

// Notifier sends notifications.
type Notifier interface {
	Notify(ctx context.Context, msg AlertMessage) error
}
