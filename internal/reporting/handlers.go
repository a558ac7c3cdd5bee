package reporting

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/pdm-core/internal/domain"
	"github.com/xela07ax/pdm-core/internal/pipeline"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// HistoryReader — то, что отчетам нужно от хранилища истории.
type HistoryReader interface {
	Report() domain.KPIReport
	AlertStats(since time.Time) domain.AlertStats
	Anomalies(machineID string, n int) []domain.AnomalyResult
	Failures(machineID string, n int) []domain.FailurePrediction
	OptimizationSummary(n int) domain.OptimizationSummary
}

type InferenceStatsProvider interface {
	Stats() domain.InferenceStats
}

type ReportHandler struct {
	history   HistoryReader
	inference InferenceStatsProvider
	now       func() time.Time
}

func NewReportHandler(h HistoryReader, inf InferenceStatsProvider) *ReportHandler {
	return &ReportHandler{history: h, inference: inf, now: time.Now}
}

func (h *ReportHandler) KPIs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.history.Report())
}

// AlertStats: ?since=RFC3339 или ?since=24h (окно назад), по умолчанию сутки.
func (h *ReportHandler) AlertStats(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r.URL.Query().Get("since"), h.now())
	if err != nil {
		http.Error(w, "invalid since", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.history.AlertStats(since))
}

func (h *ReportHandler) Anomalies(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.history.Anomalies(chi.URLParam(r, "id"), limit))
}

func (h *ReportHandler) Failures(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.history.Failures(chi.URLParam(r, "id"), limit))
}

func (h *ReportHandler) OptimizationSummary(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.history.OptimizationSummary(limit))
}

func (h *ReportHandler) InferenceStats(w http.ResponseWriter, r *http.Request) {
	if h.inference == nil {
		http.Error(w, "inference stats unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, h.inference.Stats())
}

// Operations — операции конвейера, доступные оператору по запросу.
type Operations interface {
	PredictFailure(ctx context.Context, machineID string) pipeline.Forecast
	AnalyzeVibration(ctx context.Context, machineID string, samples []float64) domain.VibrationAnalysis
	ControlDecision(ctx context.Context, machineID string, state domain.FeatureVector) domain.ControlDecision
	RecordMitigation(action domain.MitigationAction) domain.MitigationAction
}

type OperationsHandler struct {
	ops Operations
}

func NewOperationsHandler(ops Operations) *OperationsHandler {
	return &OperationsHandler{ops: ops}
}

func (h *OperationsHandler) PredictFailure(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ops.PredictFailure(r.Context(), chi.URLParam(r, "id")))
}

func (h *OperationsHandler) AnalyzeVibration(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Samples []float64 `json:"samples"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Samples) == 0 {
		http.Error(w, "samples are required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.ops.AnalyzeVibration(r.Context(), chi.URLParam(r, "id"), body.Samples))
}

func (h *OperationsHandler) Control(w http.ResponseWriter, r *http.Request) {
	var body struct {
		State []float64 `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.State) == 0 {
		http.Error(w, "state is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.ops.ControlDecision(r.Context(), chi.URLParam(r, "id"), body.State))
}

func (h *OperationsHandler) RecordAction(w http.ResponseWriter, r *http.Request) {
	var action domain.MitigationAction
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		http.Error(w, "invalid action", http.StatusBadRequest)
		return
	}
	if action.MachineID == "" {
		http.Error(w, "machine_id is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, h.ops.RecordMitigation(action))
}

func limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return 0, false
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, true
}

func parseSince(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return now.Add(-24 * time.Hour), nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return now.Add(-d), nil
	}
	return time.Parse(time.RFC3339, raw)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
