package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// ListFlows возвращает зарегистрированные определения flow.
// GET /api/v1/flows
func (h *Handler) ListFlows(w http.ResponseWriter, r *http.Request) {
	names := h.flows.Names()

	result := make([]FlowResponse, 0, len(names))
	for _, name := range names {
		def, err := h.flows.Lookup(name)
		if err != nil {
			continue
		}
		result = append(result, FlowFromDomain(def))
	}

	List(w, result, len(result))
}

// GetFlow возвращает определение flow по имени.
// GET /api/v1/flows/{name}
func (h *Handler) GetFlow(w http.ResponseWriter, r *http.Request) {
	def, err := h.flows.Lookup(r.PathValue("name"))
	if HandleEngineError(w, h.logger, err) {
		return
	}

	Success(w, FlowFromDomain(def))
}

// StartRun запускает новый run именованного flow.
// POST /api/v1/flows/{name}/runs
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}

	run, err := h.engine.StartFlow(r.Context(), r.PathValue("name"), req.Params)
	if HandleEngineError(w, h.logger, err) {
		return
	}

	Created(w, RunFromDomain(run))
}
