package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "condoledger_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	distributeTotal   *prometheus.CounterVec
	distributeLatency *prometheus.HistogramVec

	paymentTotal   *prometheus.CounterVec
	paymentLatency *prometheus.HistogramVec

	reversalTotal *prometheus.CounterVec

	closeTotal   *prometheus.CounterVec
	closeLatency *prometheus.HistogramVec
	reopenTotal  *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	integrityChecksTotal *prometheus.CounterVec
	integrityFindings    *prometheus.CounterVec

	balanceCacheTotal *prometheus.CounterVec

	lockTimeouts prometheus.Counter
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		distributeTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "distribute_total",
				Help: "Total expense distributions by result",
			},
			[]string{"result"},
		)
		distributeLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "distribute_latency_seconds",
				Help:    "Expense distribution latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		paymentTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payment_record_total",
				Help: "Total recorded payments by result",
			},
			[]string{"result"},
		)
		paymentLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "payment_record_latency_seconds",
				Help:    "Payment recording latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		reversalTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reversal_total",
				Help: "Total ledger reversals by source type",
			},
			[]string{"source_type"},
		)

		closeTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "month_close_total",
				Help: "Total month close operations by result",
			},
			[]string{"result"},
		)
		closeLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "month_close_latency_seconds",
				Help:    "Month close latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		reopenTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "month_reopen_total",
				Help: "Total month reopen operations by result",
			},
			[]string{"result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "statement_export_total",
				Help: "Total monthly statement exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "statement_export_latency_seconds",
				Help:    "Monthly statement export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		integrityChecksTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "integrity_checks_total",
				Help: "Total integrity sweeps by result",
			},
			[]string{"result"},
		)
		integrityFindings = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "integrity_findings_total",
				Help: "Total integrity findings by check",
			},
			[]string{"check"},
		)

		balanceCacheTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "balance_cache_total",
				Help: "Balance cache lookups by outcome",
			},
			[]string{"outcome"},
		)

		lockTimeouts = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "building_lock_timeouts_total",
				Help: "Total building lock acquisition timeouts",
			},
		)

		prometheus.MustRegister(
			distributeTotal,
			distributeLatency,
			paymentTotal,
			paymentLatency,
			reversalTotal,
			closeTotal,
			closeLatency,
			reopenTotal,
			exportTotal,
			exportLatency,
			integrityChecksTotal,
			integrityFindings,
			balanceCacheTotal,
			lockTimeouts,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveDistribute records distribution latency and result.
func ObserveDistribute(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if distributeTotal != nil {
		distributeTotal.WithLabelValues(result).Inc()
	}
	if distributeLatency != nil {
		distributeLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObservePayment records payment recording latency and result.
func ObservePayment(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if paymentTotal != nil {
		paymentTotal.WithLabelValues(result).Inc()
	}
	if paymentLatency != nil {
		paymentLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncReversal increments the reversal counter for a source type.
func IncReversal(sourceType string) {
	if sourceType == "" {
		sourceType = "unknown"
	}
	if reversalTotal != nil {
		reversalTotal.WithLabelValues(sourceType).Inc()
	}
}

// ObserveClose records month close latency and result.
func ObserveClose(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if closeTotal != nil {
		closeTotal.WithLabelValues(result).Inc()
	}
	if closeLatency != nil {
		closeLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncReopen increments the reopen counter.
func IncReopen(result string) {
	if result == "" {
		result = resultSuccess
	}
	if reopenTotal != nil {
		reopenTotal.WithLabelValues(result).Inc()
	}
}

// ObserveStatementExport records export latency and result.
func ObserveStatementExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncIntegrityCheck increments the integrity sweep counter.
func IncIntegrityCheck(result string) {
	if result == "" {
		result = resultSuccess
	}
	if integrityChecksTotal != nil {
		integrityChecksTotal.WithLabelValues(result).Inc()
	}
}

// AddIntegrityFindings adds findings for one check.
func AddIntegrityFindings(check string, count int) {
	if count <= 0 {
		return
	}
	if check == "" {
		check = "unknown"
	}
	if integrityFindings != nil {
		integrityFindings.WithLabelValues(check).Add(float64(count))
	}
}

// IncBalanceCache records a cache hit or miss.
func IncBalanceCache(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if balanceCacheTotal != nil {
		balanceCacheTotal.WithLabelValues(outcome).Inc()
	}
}

// IncLockTimeout increments the building lock timeout counter.
func IncLockTimeout() {
	if lockTimeouts != nil {
		lockTimeouts.Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	CacheHit  = "hit"
	CacheMiss = "miss"
)
