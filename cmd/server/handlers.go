package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"robinhood-tool-server/internal/tools"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxBodyBytes = 1 << 20

// Session reports whether the brokerage client holds a token.
type Session interface {
	IsLoggedIn() bool
}

// APIHandler holds dependencies for the HTTP endpoints.
type APIHandler struct {
	log       *zap.Logger
	toolbox   *tools.Toolbox
	session   Session
	startTime time.Time
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, toolbox *tools.Toolbox, session Session) *APIHandler {
	return &APIHandler{log: log, toolbox: toolbox, session: session, startTime: time.Now()}
}

// Routes registers every endpoint on a new mux. metrics may be nil.
func (h *APIHandler) Routes(metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /tools", h.ListToolsHandler)
	mux.HandleFunc("POST /tools/{name}", h.CallToolHandler)

	mux.HandleFunc("GET /resources/stock_info/{ticker}", h.StockInfoHandler)
	mux.HandleFunc("GET /resources/portfolio/summary", h.PortfolioSummaryHandler)
	mux.HandleFunc("GET /resources/account/history/{timespan}", h.AccountHistoryHandler)

	mux.HandleFunc("GET /api/reports", h.ReportsHandler)
	mux.HandleFunc("GET /api/reports/{date}", h.ReportHandler)
	mux.HandleFunc("GET /api/statistics", h.StatisticsHandler)

	mux.HandleFunc("GET /status", h.StatusHandler)
	mux.HandleFunc("GET /health", h.HealthHandler)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return mux
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to write response", zap.Error(err))
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, tools.Result{"status": tools.StatusError, "message": message})
}

// ListToolsHandler returns the tool catalogue and resource templates.
func (h *APIHandler) ListToolsHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"tools":     h.toolbox.Tools(),
		"resources": h.toolbox.Resources(),
	})
}

// CallToolHandler runs a tool with the request body as its arguments.
// Tool failures are reported with 200 and status "error" in the body.
func (h *APIHandler) CallToolHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	result, err := h.toolbox.Call(r.Context(), r.PathValue("name"), body)
	if errors.Is(err, tools.ErrUnknownTool) {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) StockInfoHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.toolbox.StockInfo(r.Context(), r.PathValue("ticker")))
}

func (h *APIHandler) PortfolioSummaryHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.toolbox.PortfolioSummary(r.Context()))
}

func (h *APIHandler) AccountHistoryHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.toolbox.AccountHistory(r.Context(), r.PathValue("timespan")))
}

// ReportsHandler returns all stored profit snapshots, most recent first.
func (h *APIHandler) ReportsHandler(w http.ResponseWriter, r *http.Request) {
	store := h.toolbox.Reports()
	if store == nil {
		h.writeError(w, http.StatusServiceUnavailable, "report history is disabled")
		return
	}
	snaps, err := store.List(r.Context())
	if err != nil {
		h.log.Error("Failed to get reports from database", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to get reports")
		return
	}
	h.writeJSON(w, http.StatusOK, snaps)
}

// ReportHandler returns the full stored report of one date.
func (h *APIHandler) ReportHandler(w http.ResponseWriter, r *http.Request) {
	store := h.toolbox.Reports()
	if store == nil {
		h.writeError(w, http.StatusServiceUnavailable, "report history is disabled")
		return
	}
	date := r.PathValue("date")
	report, err := store.Get(r.Context(), date)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		h.writeError(w, http.StatusNotFound, "no report for "+date)
		return
	}
	if err != nil {
		h.log.Error("Failed to get report from database", zap.String("date", date), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to get report")
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// StatisticsHandler aggregates the stored reports.
func (h *APIHandler) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	store := h.toolbox.Reports()
	if store == nil {
		h.writeError(w, http.StatusServiceUnavailable, "report history is disabled")
		return
	}
	stats, err := store.Statistics(r.Context(), time.Now())
	if err != nil {
		h.log.Error("Failed to get reports for statistics", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to calculate statistics")
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"logged_in":  h.session.IsLoggedIn(),
		"start_time": h.startTime.Format(time.RFC3339),
		"uptime":     time.Since(h.startTime).Round(time.Second).String(),
	})
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "OK\n")
}
