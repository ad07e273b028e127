package application

import (
	"errors"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Thresholds defines when an integrity run escalates to an alert.
type Thresholds struct {
	AlertFindings   int `yaml:"alert_findings"`
	StaleOpenMonths int `yaml:"stale_open_months"`
}

// Config defines integrity runner configuration.
type Config struct {
	Defaults      Thresholds            `yaml:"defaults"`
	Buildings     map[string]Thresholds `yaml:"buildings"`
	Schedule      ScheduleConfig        `yaml:"schedule"`
	WebhookURL    string                `yaml:"webhook_url"`
	PublicBaseURL string                `yaml:"public_base_url"`
}

// ScheduleConfig defines the daily sweep schedule.
type ScheduleConfig struct {
	DailyAt   string   `yaml:"daily_at"`
	Buildings []string `yaml:"buildings"`
}

// LoadConfig loads config from yaml or env.
func LoadConfig() (Config, error) {
	cfg := Config{
		Defaults: Thresholds{
			AlertFindings:   1,
			StaleOpenMonths: 3,
		},
		WebhookURL:    os.Getenv("INTEGRITY_WEBHOOK_URL"),
		PublicBaseURL: getenvDefault("INTEGRITY_PUBLIC_BASE_URL", "http://localhost:8080"),
	}

	if path := os.Getenv("INTEGRITY_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.Schedule.DailyAt == "" {
		cfg.Schedule.DailyAt = getenvDefault("INTEGRITY_DAILY_AT", "02:00")
	}
	if len(cfg.Schedule.Buildings) == 0 {
		cfg.Schedule.Buildings = splitCSV(getenvDefault("INTEGRITY_BUILDINGS", ""))
	}
	if cfg.Defaults.AlertFindings <= 0 {
		return cfg, errors.New("integrity: alert_findings must be positive")
	}
	return cfg, nil
}

// ThresholdsForBuilding returns thresholds for a building.
func (c Config) ThresholdsForBuilding(buildingID string) Thresholds {
	if c.Buildings != nil {
		if override, ok := c.Buildings[buildingID]; ok {
			return mergeThresholds(c.Defaults, override)
		}
	}
	return c.Defaults
}

func mergeThresholds(base, override Thresholds) Thresholds {
	if override.AlertFindings != 0 {
		base.AlertFindings = override.AlertFindings
	}
	if override.StaleOpenMonths != 0 {
		base.StaleOpenMonths = override.StaleOpenMonths
	}
	return base
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
