package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// ListRuns возвращает все известные runs.
// GET /api/v1/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs := h.engine.ListRuns()

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromDomain(run)
	}

	List(w, result, len(result))
}

// GetRun возвращает run по идентификатору.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	run, err := h.engine.GetRun(runID)
	if HandleEngineError(w, h.logger, err) {
		return
	}

	Success(w, RunFromDomain(run))
}

// CancelRun отменяет run.
// POST /api/v1/runs/{id}/cancel
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	if err := h.engine.CancelRun(r.Context(), runID); HandleEngineError(w, h.logger, err) {
		return
	}

	run, err := h.engine.GetRun(runID)
	if HandleEngineError(w, h.logger, err) {
		return
	}

	Success(w, RunFromDomain(run))
}

// DeliverSignal доставляет именованный сигнал в run.
// POST /api/v1/signals/{name}
func (h *Handler) DeliverSignal(w http.ResponseWriter, r *http.Request) {
	var req SignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.RunID == uuid.Nil {
		BadRequest(w, "run_id is required")
		return
	}

	err := h.engine.DeliverSignal(r.Context(), req.RunID, r.PathValue("name"), req.Payload)
	if HandleEngineError(w, h.logger, err) {
		return
	}

	// Доставка идемпотентна: принятый сигнал всегда 202
	Accepted(w, map[string]any{"delivered": true})
}
