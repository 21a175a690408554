package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/config"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/escrow"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/idempotency"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/trade"
	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/walletauth"
)

// planReplayWindow bounds how long a plan response is replayed. The unsigned
// transaction in it carries a recent blockhash, which the cluster only
// accepts for about 150 slots.
const planReplayWindow = 60 * time.Second

const (
	headerIdempotencyKey = "X-Idempotency-Key"
	headerRequestID      = "X-Request-Id"
	headerReplay         = "X-Idempotent-Replay"
)

type Server struct {
	cfg         *config.AppConfig
	planner     *trade.Planner
	assembler   *escrow.Assembler
	store       idempotency.Store
	auth        *walletauth.Verifier
	refresher   *refresher
	httpServer  *http.Server
	metrics     *metricsRegistry
	dbHealthFn  func(context.Context) error
	rpcHealthFn func(context.Context) error
	stop        context.CancelFunc
	now         func() time.Time
}

func NewServer(cfg *config.AppConfig, planner *trade.Planner, chain escrow.Broadcaster, store idempotency.Store) *Server {
	metrics := newMetricsRegistry()

	s := &Server{
		cfg:     cfg,
		planner: planner,
		assembler: escrow.NewAssembler(chain, escrow.FeeOptions{
			ComputeUnitLimit: cfg.Chain.ComputeUnitLimit,
			ComputeUnitPrice: cfg.Chain.ComputeUnitPrice,
		}),
		store: store,
		auth: &walletauth.Verifier{
			Disabled: cfg.Auth.Disabled,
			MaxSkew:  cfg.Auth.ClockSkew,
		},
		refresher: newRefresher(planner, cfg.Service.RefreshInterval, metrics),
		metrics:   metrics,
		now:       time.Now,
	}

	if checker, ok := store.(escrow.HealthChecker); ok {
		s.dbHealthFn = checker.Ping
	}
	if checker, ok := chain.(escrow.HealthChecker); ok {
		s.rpcHealthFn = checker.Ping
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/offers", s.auth.Middleware(http.HandlerFunc(s.handleMakeOffer)))
	mux.HandleFunc("GET /api/v1/offers", s.handleListOffers)
	mux.HandleFunc("GET /api/v1/offers/{id}", s.handleGetOffer)
	mux.Handle("POST /api/v1/offers/{id}/take", s.auth.Middleware(http.HandlerFunc(s.handleTakeOffer)))
	mux.Handle("POST /api/v1/offers/{id}/refund", s.auth.Middleware(http.HandlerFunc(s.handleRefundOffer)))
	mux.Handle("POST /api/v1/transactions", s.auth.Middleware(http.HandlerFunc(s.handleRelay)))
	mux.Handle("GET /api/v1/metrics", metrics.handler())
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           requestIDMiddleware(mux),
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.updateDLQDepth()
	return s
}

// Handler exposes the routed handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	go s.refresher.Run(ctx)

	log.WithField("addr", s.httpServer.Addr).Info("API listening")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.stop != nil {
		s.stop()
	}
	return s.httpServer.Shutdown(ctx)
}

// idempotent replays the stored response for a repeated X-Idempotency-Key
// from the same wallet, or runs fn and stores a successful result for
// window. It reports the status written and whether it was a replay.
func (s *Server) idempotent(
	w http.ResponseWriter,
	r *http.Request,
	window time.Duration,
	fn func(ctx context.Context, body []byte) (int, interface{}, error),
) (int, bool) {
	ctx := r.Context()

	clientKey := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if clientKey == "" {
		http.Error(w, "missing X-Idempotency-Key header", http.StatusBadRequest)
		return http.StatusBadRequest, false
	}
	caller, _ := walletauth.CallerFrom(ctx)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return http.StatusBadRequest, false
	}

	key := idempotency.Key(caller.String(), r.URL.Path, clientKey)
	fingerprint := idempotency.Fingerprint(body)

	existing, err := idempotency.Lookup(ctx, s.store, key, fingerprint)
	if err != nil {
		return writeError(w, err), false
	}
	if existing != nil {
		w.Header().Set(headerReplay, "true")
		writeRaw(w, existing.StatusCode, existing.Response)
		return existing.StatusCode, true
	}

	status, resp, err := fn(ctx, body)
	if err != nil {
		return writeError(w, err), false
	}
	b, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "encode response: "+err.Error(), http.StatusInternalServerError)
		return http.StatusInternalServerError, false
	}

	now := s.now()
	record := idempotency.Record{
		Fingerprint: fingerprint,
		StatusCode:  status,
		Response:    b,
		CreatedAt:   now,
		ExpiresAt:   now.Add(window),
	}
	if err := s.store.Save(ctx, key, record); err != nil {
		log.WithError(err).WithField("request_id", r.Header.Get(headerRequestID)).Warn("idempotency save failed")
	}

	writeRaw(w, status, b)
	return status, false
}

func (s *Server) updateDLQDepth() int {
	depth := s.currentDLQDepth()
	if s.metrics != nil {
		s.metrics.setDLQDepth(depth)
	}
	return depth
}

func (s *Server) currentDLQDepth() int {
	if s.cfg.Service.DLQPath == "" {
		return 0
	}
	entries, err := os.ReadDir(s.cfg.Service.DLQPath)
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		log.WithError(err).Warn("dlq read error")
		return 0
	}
	return len(entries)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	rpcInfo := struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{}

	if s.rpcHealthFn != nil {
		start := time.Now()
		rpcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.rpcHealthFn(rpcCtx); err != nil {
			rpcInfo.Connected = false
			rpcInfo.Error = err.Error()
			overallHealthy = false
		} else {
			rpcInfo.Connected = true
			rpcInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	} else {
		rpcInfo.Connected = true
	}

	dbInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.dbHealthFn != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.dbHealthFn(dbCtx); err != nil {
			dbInfo.Connected = false
			dbInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	offersInfo := struct {
		OpenOffers int        `json:"open_offers"`
		ScannedAt  *time.Time `json:"scanned_at,omitempty"`
		Error      string     `json:"error,omitempty"`
	}{}
	if snap := s.refresher.Latest(); snap != nil {
		offersInfo.OpenOffers = len(snap.Offers)
		offersInfo.ScannedAt = &snap.TakenAt
	}
	if err := s.refresher.LastError(); err != nil {
		offersInfo.Error = err.Error()
	}

	queueDepth := s.updateDLQDepth()

	status := "healthy"
	if !overallHealthy {
		status = "degraded"
	}

	resp := struct {
		Status     string      `json:"status"`
		RPC        interface{} `json:"rpc"`
		Database   interface{} `json:"database"`
		Offers     interface{} `json:"offers"`
		QueueDepth int         `json:"queue_depth"`
	}{
		Status:     status,
		RPC:        rpcInfo,
		Database:   dbInfo,
		Offers:     offersInfo,
		QueueDepth: queueDepth,
	}

	code := http.StatusOK
	if !overallHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(headerRequestID, id)
		}
		w.Header().Set(headerRequestID, id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		log.WithFields(log.Fields{
			"request_id": id,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"duration":   time.Since(start).String(),
		}).Debug("request served")
	})
}
