package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"feeindex/internal/application"
	"feeindex/internal/config"
	"feeindex/internal/domain"
)

// ReportService is the pipeline surface the API exposes.
type ReportService interface {
	Report(ctx context.Context, mode application.FetchMode) (domain.Report, error)
	Recent(ctx context.Context, limit int) ([]domain.Transaction, error)
}

// StateStore exposes cursor positions and store health for the ops endpoints.
type StateStore interface {
	Cursor(ctx context.Context, network domain.Network) (domain.Cursor, bool, error)
	Ping(ctx context.Context) error
}

type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

type Server struct {
	cfg       config.Config
	reports   ReportService
	store     StateStore
	metrics   *Metrics
	buildInfo BuildInfo
}

func NewServer(cfg config.Config, reports ReportService, store StateStore, metrics *Metrics, buildInfo BuildInfo) (*Server, error) {
	if reports == nil || store == nil {
		return nil, errors.New("http server dependencies must not be nil")
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Server{cfg: cfg, reports: reports, store: store, metrics: metrics, buildInfo: buildInfo}, nil
}

func (s *Server) MetricsObserver() *Metrics {
	return s.metrics
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/report", s.handleReport)
	mux.HandleFunc("/transactions", s.handleTransactions)
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/refresh", s.handleRefresh)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/version", s.handleVersion)
	return mux
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "store not ready")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	mode, err := parseMode(r.URL.Query().Get("mode"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := s.reports.Report(r.Context(), mode)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "report failed")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = value
	}
	transactions, err := s.reports.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	respondJSON(w, http.StatusOK, transactions)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	cursors := make(map[string]any, len(domain.Networks))
	for _, network := range domain.Networks {
		cursor, ok, err := s.store.Cursor(r.Context(), network)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "state read failed")
			return
		}
		if !ok {
			cursors[string(network)] = nil
			continue
		}
		cursors[string(network)] = cursor
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"cursors": cursors,
		"config": map[string]any{
			"scan_api_url":  s.cfg.ScanAPIURL,
			"price_api_url": s.cfg.PriceAPIURL,
			"http_addr":     s.cfg.HTTPAddr,
			"fee_addresses": map[string]string{
				string(domain.NetworkEthereum): s.cfg.FeeAddressEthereum,
				string(domain.NetworkPolygon):  s.cfg.FeeAddressPolygon,
			},
			"poll_interval": s.cfg.PollInterval.String(),
			"recent_limit":  s.cfg.RecentLimit,
		},
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	mode, err := parseMode(r.URL.Query().Get("mode"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if mode == application.ModeDemo {
		respondError(w, http.StatusBadRequest, "demo mode cannot refresh")
		return
	}
	report, err := s.reports.Report(r.Context(), mode)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "refresh failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"tier":         report.Tier,
		"incomplete":   report.Incomplete,
		"transactions": len(report.Transactions),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	snap := s.metrics.Snapshot()

	fmt.Fprintf(w, "feeindex_uptime_seconds %.0f\n", time.Since(snap.StartTime).Seconds())
	if !snap.LastRunAt.IsZero() {
		fmt.Fprintf(w, "feeindex_last_run_timestamp %d\n", snap.LastRunAt.Unix())
	}
	for _, network := range domain.Networks {
		fmt.Fprintf(w, "feeindex_windows_fetched{network=%q} %d\n", network, snap.WindowsFetched[network])
		fmt.Fprintf(w, "feeindex_empty_windows{network=%q} %d\n", network, snap.EmptyWindows[network])
		fmt.Fprintf(w, "feeindex_truncated_windows{network=%q} %d\n", network, snap.TruncatedWindows[network])
		fmt.Fprintf(w, "feeindex_provider_retries{network=%q} %d\n", network, snap.Retries[network])
		fmt.Fprintf(w, "feeindex_transfers_collected{network=%q} %d\n", network, snap.Collected[network])
		fmt.Fprintf(w, "feeindex_incomplete_runs{network=%q} %d\n", network, snap.IncompleteRuns[network])
		fmt.Fprintf(w, "feeindex_collection_failures{network=%q} %d\n", network, snap.Failures[network])
		fmt.Fprintf(w, "feeindex_cursor_block{network=%q} %d\n", network, snap.CursorBlocks[network])
	}
	for tier, count := range snap.ReportsByTier {
		fmt.Fprintf(w, "feeindex_reports_served{tier=%q} %d\n", tier, count)
	}
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.buildInfo)
}

func parseMode(raw string) (application.FetchMode, error) {
	switch raw {
	case "", "incremental":
		return application.ModeIncremental, nil
	case "full":
		return application.ModeFull, nil
	case "demo":
		return application.ModeDemo, nil
	default:
		return 0, fmt.Errorf("invalid mode %q", raw)
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
