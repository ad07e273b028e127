// Command bank_webhook plays the role of a payment gateway: it POSTs signed
// payment notifications to /api/v1/payments/webhook at a configurable rate.
// A fail-rate flag sends a share of requests with a broken signature to
// exercise rejection handling. Status counts are printed at the end.
package main

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

type config struct {
	baseURL     string
	secret      string
	buildingID  string
	apartments  string
	count       int
	amountCents int64
	interval    time.Duration
	failRate    float64
}

func main() {
	cfg := parseConfig()
	if cfg.baseURL == "" {
		log.Fatal("base-url is required")
	}
	if cfg.secret == "" {
		log.Fatal("secret is required")
	}
	if cfg.buildingID == "" || strings.TrimSpace(cfg.apartments) == "" {
		log.Fatal("building-id and apartment-ids are required")
	}

	apartmentIDs := splitList(cfg.apartments)
	client := &http.Client{Timeout: 10 * time.Second}
	baseURL := strings.TrimRight(cfg.baseURL, "/")
	byStatus := make(map[int]int)

	ctx := context.Background()
	for i := 0; i < cfg.count; i++ {
		apartmentID := apartmentIDs[i%len(apartmentIDs)]
		paymentID := fmt.Sprintf("bankhook-%d-%d", time.Now().UnixNano(), i)
		body, _ := json.Marshal(map[string]any{
			"payment_id":   paymentID,
			"building_id":  cfg.buildingID,
			"apartment_id": apartmentID,
			"amount":       formatCents(cfg.amountCents),
			"date":         time.Now().UTC().Format("2006-01-02"),
			"method":       "bank_transfer",
			"payer_type":   "owner",
		})

		secret := cfg.secret
		if cfg.failRate > 0 && rand.Float64() < cfg.failRate {
			secret = cfg.secret + "-broken"
		}
		status, err := send(ctx, client, baseURL+"/api/v1/payments/webhook", secret, body)
		if err != nil {
			log.Fatalf("send webhook: %v", err)
		}
		byStatus[status]++

		if cfg.interval > 0 && i < cfg.count-1 {
			time.Sleep(cfg.interval)
		}
	}

	for status, count := range byStatus {
		log.Printf("http %d: %d", status, count)
	}
	log.Printf("sent %d webhooks to %s", cfg.count, baseURL)
}

func send(ctx context.Context, client *http.Client, url, secret string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte("\n"))
	_, _ = mac.Write(body)

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Timestamp", timestamp)
	req.Header.Set("X-Webhook-Signature", hex.EncodeToString(mac.Sum(nil)))

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func parseConfig() config {
	cfg := config{}
	flag.StringVar(&cfg.baseURL, "base-url", envOrDefault("BASE_URL", "http://localhost:8080"), "API base URL")
	flag.StringVar(&cfg.secret, "secret", envOrDefault("WEBHOOK_HMAC_SECRET", ""), "webhook HMAC secret")
	flag.StringVar(&cfg.buildingID, "building-id", envOrDefault("BUILDING_ID", ""), "target building id")
	flag.StringVar(&cfg.apartments, "apartment-ids", envOrDefault("APARTMENT_IDS", ""), "comma-separated apartment ids")
	flag.IntVar(&cfg.count, "count", envOrInt("COUNT", 10), "number of webhooks to send")
	flag.Int64Var(&cfg.amountCents, "amount-cents", envOrInt64("AMOUNT_CENTS", 12000), "payment amount in cents")
	flag.DurationVar(&cfg.interval, "interval", 0, "pause between requests")
	flag.Float64Var(&cfg.failRate, "fail-rate", 0, "share of requests sent with a broken signature")
	flag.Parse()
	return cfg
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
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
