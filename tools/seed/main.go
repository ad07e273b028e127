// Command seed loads deterministic demo data into the ledger database:
// buildings with apartments, monthly expenses distributed as charges, and
// covering payments, with running balances and per-building sequences kept
// consistent so integrity sweeps over the seeded data come back clean.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type config struct {
	dsn            string
	tenantID       string
	buildingPrefix string
	buildingCount  int
	apartmentsPer  int
	startMonth     string
	months         int
	expenseCents   int64
	closeMonths    bool
}

func main() {
	cfg := parseConfig()
	if cfg.dsn == "" {
		log.Fatal("PG_DSN or DATABASE_URL is required")
	}
	if cfg.buildingCount <= 0 {
		log.Fatal("building-count must be > 0")
	}
	if cfg.apartmentsPer <= 0 {
		log.Fatal("apartments-per must be > 0")
	}
	if cfg.months <= 0 {
		log.Fatal("months must be > 0")
	}

	start, err := parseStartMonth(cfg.startMonth)
	if err != nil {
		log.Fatalf("invalid start-month: %v", err)
	}

	db, err := sql.Open("pgx", cfg.dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	for i := 1; i <= cfg.buildingCount; i++ {
		buildingID := fmt.Sprintf("%s%04d", cfg.buildingPrefix, i)
		if err := seedBuilding(ctx, db, cfg, buildingID, start); err != nil {
			log.Fatalf("seed building %s: %v", buildingID, err)
		}
		log.Printf("seeded building %s (%d/%d)", buildingID, i, cfg.buildingCount)
	}
	log.Printf("seed completed")
}

func parseConfig() config {
	cfg := config{}
	flag.StringVar(&cfg.dsn, "pg-dsn", envOrDefault("PG_DSN", envOrDefault("DATABASE_URL", "")), "Postgres DSN")
	flag.StringVar(&cfg.tenantID, "tenant-id", envOrDefault("TENANT_ID", "tenant-demo"), "tenant id")
	flag.StringVar(&cfg.buildingPrefix, "building-prefix", envOrDefault("BUILDING_PREFIX", "bld-seed-"), "building id prefix")
	flag.IntVar(&cfg.buildingCount, "building-count", envOrInt("BUILDING_COUNT", 2), "number of buildings to seed")
	flag.IntVar(&cfg.apartmentsPer, "apartments-per", envOrInt("APARTMENTS_PER", 8), "apartments per building")
	flag.StringVar(&cfg.startMonth, "start-month", envOrDefault("START_MONTH", ""), "first month to seed (YYYY-MM)")
	flag.IntVar(&cfg.months, "months", envOrInt("MONTHS", 6), "number of months to seed")
	flag.Int64Var(&cfg.expenseCents, "expense-cents", envOrInt64("EXPENSE_CENTS", 96000), "monthly expense amount in cents")
	flag.BoolVar(&cfg.closeMonths, "close-months", envOrBool("CLOSE_MONTHS", true), "record closed monthly balances for all but the last month")
	flag.Parse()
	return cfg
}

func parseStartMonth(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -6, 0), nil
	}
	parsed, err := time.Parse("2006-01", strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}

func seedBuilding(ctx context.Context, db *sql.DB, cfg config, buildingID string, start time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
INSERT INTO buildings (id, tenant_id, name, participation_mills_total, management_fee_cents, created_at, updated_at)
VALUES ($1, $2, $3, 1000, 5000, $4, $4)
ON CONFLICT (id) DO NOTHING`,
		buildingID, cfg.tenantID, "Seeded "+buildingID, now); err != nil {
		return err
	}

	apartmentIDs := make([]string, 0, cfg.apartmentsPer)
	for i := 1; i <= cfg.apartmentsPer; i++ {
		apartmentID := fmt.Sprintf("%s-apt-%03d", buildingID, i)
		mills := 1000 / cfg.apartmentsPer
		if i == 1 {
			mills += 1000 % cfg.apartmentsPer
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO apartments (id, building_id, number, owner_name, participation_mills, heating_mills, elevator_mills, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5, $5, $6, $6)
ON CONFLICT (id) DO NOTHING`,
			apartmentID, buildingID, strconv.Itoa(i), fmt.Sprintf("Owner %d", i), mills, now); err != nil {
			return err
		}
		apartmentIDs = append(apartmentIDs, apartmentID)
	}

	// Charges and payments carry running balance stamps, so entries are
	// written in order with per-apartment balances tracked here.
	balances := make(map[string]int64, len(apartmentIDs))
	var seq int64
	carryForward := int64(0)
	for m := 0; m < cfg.months; m++ {
		monthStart := start.AddDate(0, m, 0)
		expenseID := fmt.Sprintf("exp-%s-%s", buildingID, monthStart.Format("200601"))
		if _, err := tx.ExecContext(ctx, `
INSERT INTO expenses (id, building_id, amount_cents, expense_date, category, distribution_type, created_at)
VALUES ($1, $2, $3, $4, 'maintenance', 'equal_share', $5)
ON CONFLICT (id) DO NOTHING`,
			expenseID, buildingID, cfg.expenseCents, monthStart.AddDate(0, 0, 4), now); err != nil {
			return err
		}

		share := cfg.expenseCents / int64(len(apartmentIDs))
		remainder := cfg.expenseCents - share*int64(len(apartmentIDs))
		for idx, apartmentID := range apartmentIDs {
			charge := share
			if idx == 0 {
				charge += remainder
			}
			seq++
			if err := insertEntry(ctx, tx, entry{
				id: fmt.Sprintf("led-%s-%06d", buildingID, seq), seq: seq,
				buildingID: buildingID, apartmentID: apartmentID,
				kind: "charge", amount: -charge, date: monthStart.AddDate(0, 0, 5),
				before: balances[apartmentID], after: balances[apartmentID] - charge,
				sourceType: "expense", sourceID: expenseID,
			}); err != nil {
				return err
			}
			balances[apartmentID] -= charge

			seq++
			if err := insertEntry(ctx, tx, entry{
				id: fmt.Sprintf("led-%s-%06d", buildingID, seq), seq: seq,
				buildingID: buildingID, apartmentID: apartmentID,
				kind: "payment", amount: charge, date: monthStart.AddDate(0, 0, 12),
				before: balances[apartmentID], after: balances[apartmentID] + charge,
				sourceType: "payment", sourceID: fmt.Sprintf("pay-%s-%06d", buildingID, seq),
			}); err != nil {
				return err
			}
			balances[apartmentID] += charge
		}

		if cfg.closeMonths && m < cfg.months-1 {
			balanceID := fmt.Sprintf("mb-%s-%s", buildingID, monthStart.Format("200601"))
			closedAt := monthStart.AddDate(0, 1, 2)
			if _, err := tx.ExecContext(ctx, `
INSERT INTO monthly_balances (id, building_id, year, month,
	total_expenses_cents, total_payments_cents, previous_obligations_cents,
	reserve_fund_cents, management_fees_cents, carry_forward_cents,
	is_closed, closed_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5, $6, 0, 5000, $6, TRUE, $7, $8, $8)
ON CONFLICT (building_id, year, month) DO NOTHING`,
				balanceID, buildingID, monthStart.Year(), int(monthStart.Month()),
				cfg.expenseCents, carryForward, closedAt, now); err != nil {
				return err
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO ledger_sequences (building_id, last_seq) VALUES ($1, $2)
ON CONFLICT (building_id) DO UPDATE SET last_seq = GREATEST(ledger_sequences.last_seq, EXCLUDED.last_seq)`,
		buildingID, seq); err != nil {
		return err
	}

	return tx.Commit()
}

type entry struct {
	id          string
	seq         int64
	buildingID  string
	apartmentID string
	kind        string
	amount      int64
	date        time.Time
	before      int64
	after       int64
	sourceType  string
	sourceID    string
}

func insertEntry(ctx context.Context, tx *sql.Tx, e entry) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO ledger_entries (id, seq, building_id, apartment_id, kind, amount_cents, entry_date,
	balance_before, balance_after, source_type, source_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
ON CONFLICT (id) DO NOTHING`,
		e.id, e.seq, e.buildingID, e.apartmentID, e.kind, e.amount, e.date.UTC(),
		e.before, e.after, e.sourceType, e.sourceID)
	return err
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envOrInt64(key string, fallback int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return value
}

func envOrBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
