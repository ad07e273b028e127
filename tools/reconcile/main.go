// Command reconcile runs the ledger integrity checks against a live database
// from the command line, prints every finding, and optionally writes them to
// CSV. It exits non-zero when findings exist so it can gate deploy pipelines.
package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	closingpg "condo-ledger/internal/closing/infrastructure/postgres"
	distpg "condo-ledger/internal/distribution/infrastructure/postgres"
	integrityapp "condo-ledger/internal/integrity/application"
	ledgerapp "condo-ledger/internal/ledger/application"
	ledgerpg "condo-ledger/internal/ledger/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type config struct {
	dsn       string
	buildings string
	from      string
	to        string
	outPath   string
}

func main() {
	cfg := parseConfig()
	if cfg.dsn == "" {
		log.Fatal("PG_DSN or DATABASE_URL is required")
	}
	if strings.TrimSpace(cfg.buildings) == "" {
		log.Fatal("building-ids is required")
	}

	from, to, err := parseRange(cfg.from, cfg.to)
	if err != nil {
		log.Fatalf("invalid range: %v", err)
	}

	db, err := sql.Open("pgx", cfg.dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ledgerRepo := ledgerpg.NewLedgerRepository(db)
	calc, err := ledgerapp.NewCalculator(ledgerRepo)
	if err != nil {
		log.Fatalf("calculator: %v", err)
	}
	checker, err := integrityapp.NewChecker(
		ledgerRepo, calc,
		distpg.NewExpenseRepository(db),
		closingpg.NewClosingRepository(db),
	)
	if err != nil {
		log.Fatalf("checker: %v", err)
	}

	integrityCfg, err := integrityapp.LoadConfig()
	if err != nil {
		log.Fatalf("integrity config: %v", err)
	}

	ctx := context.Background()
	var all []integrityapp.Finding
	for _, buildingID := range splitList(cfg.buildings) {
		thresholds := integrityCfg.ThresholdsForBuilding(buildingID)
		findings, err := checker.CheckBuilding(ctx, buildingID, from, to, thresholds)
		if err != nil {
			log.Fatalf("check building %s: %v", buildingID, err)
		}
		log.Printf("building %s: %d findings", buildingID, len(findings))
		all = append(all, findings...)
	}

	for _, f := range all {
		fmt.Printf("%-18s building=%s apartment=%s source=%s month=%s %s\n",
			f.Check, f.BuildingID, f.ApartmentID, f.SourceID, f.Month, f.Detail)
	}

	if cfg.outPath != "" {
		if err := writeCSV(cfg.outPath, all); err != nil {
			log.Fatalf("write csv: %v", err)
		}
		log.Printf("findings written to %s", cfg.outPath)
	}

	if len(all) > 0 {
		log.Printf("reconcile finished with %d findings", len(all))
		os.Exit(1)
	}
	log.Printf("reconcile finished clean")
}

func parseConfig() config {
	cfg := config{}
	flag.StringVar(&cfg.dsn, "pg-dsn", envOrDefault("PG_DSN", envOrDefault("DATABASE_URL", "")), "Postgres DSN")
	flag.StringVar(&cfg.buildings, "building-ids", envOrDefault("BUILDING_IDS", ""), "comma-separated building ids")
	flag.StringVar(&cfg.from, "from", "", "range start (YYYY-MM-DD), default one year ago")
	flag.StringVar(&cfg.to, "to", "", "range end exclusive (YYYY-MM-DD), default tomorrow")
	flag.StringVar(&cfg.outPath, "out", "", "optional CSV output path")
	flag.Parse()
	return cfg
}

func parseRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.AddDate(-1, 0, 0)
	to := now.AddDate(0, 0, 1)
	var err error
	if strings.TrimSpace(fromRaw) != "" {
		from, err = time.Parse("2006-01-02", strings.TrimSpace(fromRaw))
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if strings.TrimSpace(toRaw) != "" {
		to, err = time.Parse("2006-01-02", strings.TrimSpace(toRaw))
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("from %s is not before to %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}
	return from.UTC(), to.UTC(), nil
}

func writeCSV(path string, findings []integrityapp.Finding) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"check", "building_id", "apartment_id", "source_id", "month", "detail"}); err != nil {
		return err
	}
	for _, f := range findings {
		if err := writer.Write([]string{f.Check, f.BuildingID, f.ApartmentID, f.SourceID, f.Month, f.Detail}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
