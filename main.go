package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	apihttp "condo-ledger/internal/api/http"
	"condo-ledger/internal/audit"
	"condo-ledger/internal/auth"
	buildingspg "condo-ledger/internal/buildings/infrastructure/postgres"
	buildingsinterfaces "condo-ledger/internal/buildings/interfaces"
	closingapp "condo-ledger/internal/closing/application"
	closingpg "condo-ledger/internal/closing/infrastructure/postgres"
	closinginterfaces "condo-ledger/internal/closing/interfaces"
	distapp "condo-ledger/internal/distribution/application"
	distpg "condo-ledger/internal/distribution/infrastructure/postgres"
	distinterfaces "condo-ledger/internal/distribution/interfaces"
	"condo-ledger/internal/eventing"
	integrityapp "condo-ledger/internal/integrity/application"
	integritypg "condo-ledger/internal/integrity/infrastructure/postgres"
	integrityhttp "condo-ledger/internal/integrity/interfaces/http"
	integritynotify "condo-ledger/internal/integrity/notify"
	ledgerapp "condo-ledger/internal/ledger/application"
	ledgerpg "condo-ledger/internal/ledger/infrastructure/postgres"
	ledgerinterfaces "condo-ledger/internal/ledger/interfaces"
	"condo-ledger/internal/locking"
	"condo-ledger/internal/observability/metrics"
	provisioning "condo-ledger/internal/provisioning/application"
	provisioninghttp "condo-ledger/internal/provisioning/interfaces/http"
	"condo-ledger/internal/reservefund"
	"condo-ledger/internal/storage"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	_ = godotenv.Load()
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}
	if err := storage.RunMigrations(db); err != nil {
		logger.Fatalf("migrations error: %v", err)
	}

	metrics.Init(db, logger)
	buildingChecker := auth.NewBuildingChecker(db)
	auditRepo := audit.NewRepository(db)
	bus := eventing.NewInMemoryBus()
	locks := locking.NewRegistry(cfg.LockTimeout)

	buildingRepo := buildingspg.NewBuildingRepository(db)
	apartmentRepo := buildingspg.NewApartmentRepository(db)
	ledgerRepo := ledgerpg.NewLedgerRepository(db)
	closingRepo := closingpg.NewClosingRepository(db)
	expenseRepo := distpg.NewExpenseRepository(db)

	ledgerService, err := ledgerapp.NewService(ledgerRepo, closingRepo, locks, bus, ledgerapp.SystemClock{})
	if err != nil {
		logger.Fatalf("ledger service error: %v", err)
	}
	calc, err := ledgerapp.NewCalculator(ledgerRepo)
	if err != nil {
		logger.Fatalf("balance calculator error: %v", err)
	}
	balanceCache, err := ledgerapp.NewCachedBalances(calc, cfg.BalanceCacheTTL)
	if err != nil {
		logger.Fatalf("balance cache error: %v", err)
	}

	// Balances are derived; any write invalidates the cached projection.
	bus.Subscribe(eventing.EventType(ledgerapp.PaymentRecorded{}), func(ctx context.Context, event any) error {
		if evt, ok := event.(ledgerapp.PaymentRecorded); ok {
			balanceCache.Invalidate(evt.ApartmentID)
		}
		return nil
	})
	bus.Subscribe(eventing.EventType(ledgerapp.EntriesReversed{}), func(ctx context.Context, event any) error {
		if evt, ok := event.(ledgerapp.EntriesReversed); ok {
			for _, apartmentID := range evt.ApartmentIDs {
				balanceCache.Invalidate(apartmentID)
			}
		}
		return nil
	})
	bus.Subscribe(eventing.EventType(distapp.ExpenseDistributed{}), func(ctx context.Context, event any) error {
		balanceCache.InvalidateAll()
		return nil
	})
	bus.Subscribe(eventing.EventType(distapp.ExpenseRemoved{}), func(ctx context.Context, event any) error {
		balanceCache.InvalidateAll()
		return nil
	})
	bus.Subscribe(eventing.EventType(closingapp.MonthClosed{}), func(ctx context.Context, event any) error {
		if evt, ok := event.(closingapp.MonthClosed); ok {
			logger.Printf("month closed: building=%s period=%s carry_forward=%d",
				evt.BuildingID, evt.Period, evt.CarryForwardCents)
		}
		balanceCache.InvalidateAll()
		return nil
	})
	bus.Subscribe(eventing.EventType(closingapp.MonthReopened{}), func(ctx context.Context, event any) error {
		balanceCache.InvalidateAll()
		return nil
	})

	engine, err := distapp.NewEngine(expenseRepo, apartmentRepo, ledgerService, bus, ledgerapp.SystemClock{})
	if err != nil {
		logger.Fatalf("distribution engine error: %v", err)
	}
	reserve, err := reservefund.NewScheduler(calc)
	if err != nil {
		logger.Fatalf("reserve scheduler error: %v", err)
	}
	closingService, err := closingapp.NewService(
		closingRepo, buildingRepo, apartmentRepo, engine, reserve,
		ledgerService, locks, auditRepo, bus, ledgerapp.SystemClock{}, logger,
	)
	if err != nil {
		logger.Fatalf("closing service error: %v", err)
	}

	registrationService, err := provisioning.NewService(buildingRepo, apartmentRepo)
	if err != nil {
		logger.Fatalf("registration service error: %v", err)
	}
	registrationHandler, err := provisioninghttp.NewBuildingRegistrationHandler(registrationService, auditRepo)
	if err != nil {
		logger.Fatalf("registration handler error: %v", err)
	}
	configHandler, err := buildingsinterfaces.NewConfigHandler(buildingRepo, apartmentRepo, buildingChecker)
	if err != nil {
		logger.Fatalf("config handler error: %v", err)
	}
	paymentHandler, err := ledgerinterfaces.NewPaymentHandler(ledgerService, calc, balanceCache, buildingChecker, auditRepo)
	if err != nil {
		logger.Fatalf("payment handler error: %v", err)
	}
	expenseHandler, err := distinterfaces.NewExpenseHandler(engine, buildingChecker, auditRepo)
	if err != nil {
		logger.Fatalf("expense handler error: %v", err)
	}
	closingHandler, err := closinginterfaces.NewClosingHandler(
		closingService, buildingRepo, apartmentRepo, ledgerRepo, calc, buildingChecker, auditRepo,
	)
	if err != nil {
		logger.Fatalf("closing handler error: %v", err)
	}

	integrityCfg, err := integrityapp.LoadConfig()
	if err != nil {
		logger.Fatalf("integrity config error: %v", err)
	}
	integrityRepo := integritypg.NewRepository(db)
	checker, err := integrityapp.NewChecker(ledgerRepo, calc, expenseRepo, closingRepo)
	if err != nil {
		logger.Fatalf("integrity checker error: %v", err)
	}
	var integrityNotifier integritynotify.Notifier
	if integrityCfg.WebhookURL != "" {
		integrityNotifier = integritynotify.NewWebhookNotifier(integrityCfg.WebhookURL)
	}
	integrityRunner := integrityapp.NewRunner(integrityRepo, checker, integrityCfg, integrityNotifier, logger)
	integrityHandler, err := integrityhttp.NewHandler(integrityRunner, integrityRepo, cfg.TenantID, buildingChecker)
	if err != nil {
		logger.Fatalf("integrity handler error: %v", err)
	}
	integrityScheduler := integrityapp.NewScheduler(
		integrityRunner, cfg.TenantID, integrityCfg.Schedule.Buildings, integrityCfg.Schedule.DailyAt, logger,
	)
	go integrityScheduler.Start(context.Background())

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/api/v1/payments/webhook"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)
	webhookAuth := auth.NewWebhookAuthMiddleware([]byte(cfg.WebhookSecret), time.Duration(cfg.WebhookSkewSeconds)*time.Second)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/buildings", routeByMethod(registrationHandler, configHandler))
	mux.Handle("/api/v1/buildings/", configHandler)
	mux.Handle("/api/v1/apartments", configHandler)
	mux.Handle("/api/v1/payments", paymentHandler)
	mux.Handle("/api/v1/payments/webhook", webhookAuth.Wrap(paymentHandler))
	mux.Handle("/api/v1/balances", paymentHandler)
	mux.Handle("/api/v1/expenses", expenseHandler)
	mux.Handle("/api/v1/expenses/", expenseHandler)
	mux.Handle("/api/v1/closings", closingHandler)
	mux.Handle("/api/v1/closings/", closingHandler)
	mux.Handle("/api/v1/integrity/run", integrityHandler)
	mux.Handle("/api/v1/integrity/reports", integrityHandler)
	mux.Handle("/api/v1/integrity/reports/", integrityHandler)
	mux.Handle("/api/v1/dashboard", apihttp.NewDashboardHandler(db))
	mux.Handle("/api/v1/exports/ledger.csv", apihttp.NewExportLedgerCSVHandler(db))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL        string
	HTTPAddr           string
	TenantID           string
	JWTSecret          string
	WebhookSecret      string
	WebhookSkewSeconds int
	LockTimeout        time.Duration
	BalanceCacheTTL    time.Duration
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:        getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		TenantID:           getenvDefault("TENANT_ID", "tenant-demo"),
		JWTSecret:          getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		WebhookSecret:      getenvDefault("WEBHOOK_HMAC_SECRET", ""),
		WebhookSkewSeconds: getenvIntDefault("WEBHOOK_MAX_SKEW_SECONDS", 300),
		LockTimeout:        getenvDuration("LOCK_TIMEOUT", 5*time.Second),
		BalanceCacheTTL:    getenvDuration("BALANCE_CACHE_TTL", 30*time.Second),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

// routeByMethod sends POSTs to the registration handler and reads to the
// configuration handler, both mounted on /api/v1/buildings.
func routeByMethod(post, get http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			post.ServeHTTP(w, r)
			return
		}
		get.ServeHTTP(w, r)
	})
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
