package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"taskmarket-backend/container"
	core "taskmarket-backend/core/marketplace"
	"taskmarket-backend/metrics"
	"taskmarket-backend/middleware"
	storage "taskmarket-backend/storage/marketplace"
	"taskmarket-backend/token"
)

type config struct {
	Port           string
	StoreDriver    string
	PGDSN          string
	RequestTimeout time.Duration
	RateLimit      int
	RateWindow     time.Duration
	AllowDevMint   bool
	APIKeys        []string
}

// staticKeyValidator accepts any key from a fixed allow list.
type staticKeyValidator struct {
	keys map[string]struct{}
}

func newStaticKeyValidator(keys []string) *staticKeyValidator {
	v := &staticKeyValidator{keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		v.keys[k] = struct{}{}
	}
	return v
}

func (v *staticKeyValidator) Validate(key string) bool {
	_, ok := v.keys[key]
	return ok
}

func loadConfig() config {
	port := os.Getenv("MARKET_PORT")
	if port == "" {
		port = "3001"
	}

	storeDriver := os.Getenv("MARKET_STORE_DRIVER")
	if storeDriver == "" {
		storeDriver = "memory"
	}

	timeout := 30 * time.Second
	if raw := os.Getenv("MARKET_REQUEST_TIMEOUT_SEC"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			timeout = time.Duration(v) * time.Second
		}
	}

	rateLimit := 120
	if raw := os.Getenv("MARKET_RATE_LIMIT"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			rateLimit = v
		}
	}

	allowDevMint := false
	if raw := os.Getenv("MARKET_ALLOW_DEV_MINT"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			allowDevMint = v
		}
	}

	var apiKeys []string
	if raw := os.Getenv("MARKET_API_KEYS"); raw != "" {
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				apiKeys = append(apiKeys, k)
			}
		}
	}

	return config{
		Port:           port,
		StoreDriver:    storeDriver,
		PGDSN:          os.Getenv("MARKET_PG_DSN"),
		RequestTimeout: timeout,
		RateLimit:      rateLimit,
		RateWindow:     time.Minute,
		AllowDevMint:   allowDevMint,
		APIKeys:        apiKeys,
	}
}

func main() {
	cfg := loadConfig()
	ctx := context.Background()

	var ledger core.Ledger
	switch cfg.StoreDriver {
	case "postgres":
		if cfg.PGDSN == "" {
			log.Fatal("MARKET_PG_DSN required when MARKET_STORE_DRIVER=postgres")
		}
		pg, err := storage.NewPGStore(ctx, cfg.PGDSN)
		if err != nil {
			log.Fatalf("failed to init store: %v", err)
		}
		defer pg.Close()
		ledger = pg
	default:
		ledger = storage.NewMemoryStore()
	}

	vault := token.NewVault()
	engine := core.NewEngine(ledger, vault, nil)
	c := container.NewContainer(engine, vault, cfg.AllowDevMint)

	mux := http.NewServeMux()
	route := func(pattern string, handler http.HandlerFunc) {
		mux.Handle(pattern, metrics.Instrument(pattern, handler))
	}

	route("/api/health", c.HealthHandler.HandleHealth)
	route("/api/tasks", c.TaskHandler.HandleTasks)
	route("/api/tasks/update", c.TaskHandler.HandleUpdateTask)
	route("/api/tasks/cancel", c.TaskHandler.HandleCancelTask)
	route("/api/bids", c.BidHandler.HandleBids)
	route("/api/bids/accept", c.BidHandler.HandleAcceptBid)
	route("/api/bids/reject", c.BidHandler.HandleRejectBid)
	route("/api/bids/withdraw", c.BidHandler.HandleWithdrawBid)
	route("/api/escrow", c.EscrowHandler.HandleEscrow)
	route("/api/escrow/fund", c.EscrowHandler.HandleFundEscrow)
	route("/api/escrow/milestones/complete", c.EscrowHandler.HandleCompleteMilestone)
	route("/api/escrow/release", c.EscrowHandler.HandleReleasePayment)
	route("/api/escrow/refund", c.EscrowHandler.HandleRequestRefund)
	route("/api/escrow/funding", c.EscrowHandler.HandleFundingInfo)
	route("/api/escrow/funding/qr", c.EscrowHandler.HandleFundingQR)
	route("/api/profiles", c.ReputationHandler.HandleProfiles)
	route("/api/reviews", c.ReputationHandler.HandleReviews)
	route("/api/holdings", c.TokenHandler.HandleHoldings)
	mux.Handle("/metrics", metrics.Handler())

	var handler http.Handler = mux
	handler = middleware.ContentType(handler)
	if len(cfg.APIKeys) > 0 {
		handler = middleware.APIAuth(newStaticKeyValidator(cfg.APIKeys))(handler)
	}
	handler = middleware.RateLimit(cfg.RateLimit, cfg.RateWindow)(handler)
	handler = middleware.Timeout(cfg.RequestTimeout)(handler)
	handler = middleware.SecurityHeaders(handler)
	handler = middleware.CORS(handler)
	handler = middleware.Logging(handler)
	handler = middleware.Recovery(handler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	log.Printf("Marketplace backend starting on :%s (driver=%s)", cfg.Port, cfg.StoreDriver)
	log.Fatal(server.ListenAndServe())
}
