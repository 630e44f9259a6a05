package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tapgate/tapgate/server/internal/metrics"
	"github.com/tapgate/tapgate/server/internal/tapgate/service"
	"github.com/tapgate/tapgate/server/internal/tapgate/store"
	"github.com/tapgate/tapgate/server/internal/tapgate/types"
)

type Dependencies struct {
	Logger        zerolog.Logger
	Addr          string
	Env           string // "dev" | "prod"
	AdminAPIKeys  []string
	Metrics       metrics.Recorder
	ScanService   *service.ScanService
	ExportService *service.ExportService
}

type Server struct {
	httpServer    *http.Server
	logger        zerolog.Logger
	mux           *http.ServeMux
	scanService   *service.ScanService
	exportService *service.ExportService
	authorize     func(r *http.Request) bool
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:        d.Logger,
		mux:           mux,
		scanService:   d.ScanService,
		exportService: d.ExportService,
		authorize:     apiKeyAuthorizer(d.AdminAPIKeys, d.Env),
	}

	mux.HandleFunc("POST /v1/scan", s.handleScan)
	mux.HandleFunc("POST /v1/verify", s.handleVerify)
	mux.HandleFunc("GET /v1/logs", s.requireAdmin(s.handleLogs))
	mux.HandleFunc("GET /v1/stats", s.requireAdmin(s.handleStats))
	mux.HandleFunc("GET /v1/export.csv", s.requireAdmin(s.handleExportCSV))
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := loggingMiddleware(d.Logger, metricsMiddleware(d.Metrics, mux))

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req types.ScanRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_JSON", "invalid JSON body")
		return
	}

	resp, err := s.scanService.Admit(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingUID):
			writeError(w, http.StatusBadRequest, "MISSING_UID", err.Error())
		case errors.Is(err, service.ErrMissingCampaignID):
			writeError(w, http.StatusBadRequest, "MISSING_CAMPAIGN_ID", err.Error())
		case errors.Is(err, service.ErrInvalidUIDFormat):
			writeError(w, http.StatusBadRequest, "INVALID_UID_FORMAT", err.Error())
		default:
			s.logger.Error().Err(err).Msg("scan admission error")
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "unexpected server error")
		}
		return
	}

	if !resp.OK {
		// Policy rejection: routine outcome, not a server failure.
		writeJSON(w, http.StatusConflict, resp)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req types.VerifyRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_JSON", "invalid JSON body")
		return
	}

	resp, err := s.scanService.Verify(r.Context(), req.ScanID)
	if err != nil {
		if errors.Is(err, service.ErrMissingScanID) {
			writeError(w, http.StatusBadRequest, "MISSING_SCAN_ID", err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("verify error")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "unexpected server error")
		return
	}

	switch resp.Code {
	case service.CodeScanNotFound:
		writeJSON(w, http.StatusNotFound, resp)
	case service.CodeChecksumMismatch:
		writeJSON(w, http.StatusConflict, resp)
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := store.ScanFilter{
		UID:        strings.TrimSpace(q.Get("uid")),
		CampaignID: strings.TrimSpace(q.Get("campaignId")),
		Limit:      parseIntParam(q.Get("limit")),
		Offset:     parseIntParam(q.Get("offset")),
	}

	if v := q.Get("startDate"); v != "" {
		day, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BAD_DATE", "startDate must be YYYY-MM-DD")
			return
		}
		start, _ := store.DayBounds(day)
		f.Start = &start
	}
	if v := q.Get("endDate"); v != "" {
		day, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BAD_DATE", "endDate must be YYYY-MM-DD")
			return
		}
		_, end := store.DayBounds(day)
		endIncl := end.Add(-time.Millisecond)
		f.End = &endIncl
	}

	page, err := s.exportService.Logs(r.Context(), f)
	if err != nil {
		s.logger.Error().Err(err).Msg("logs error")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "unexpected server error")
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.exportService.Stats(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("stats error")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "unexpected server error")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var day time.Time
	if v := q.Get("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BAD_DATE", "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	csv, err := s.exportService.ExportCSV(r.Context(), day, q.Get("campaignId"))
	if err != nil {
		s.logger.Error().Err(err).Msg("export error")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "unexpected server error")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="scans.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(csv))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func parseIntParam(v string) int {
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

type errorBody struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{OK: false, Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
