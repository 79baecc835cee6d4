package restserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/chrissnell/launchplanner/internal/constants"
	"github.com/chrissnell/launchplanner/internal/pricing"
	"github.com/chrissnell/launchplanner/internal/segmentation"
	"github.com/gorilla/mux"
)

// maxBodyBytes caps request bodies
const maxBodyBytes = 1 << 20

// maxSyntheticCustomers caps the n parameter of the clusters endpoint
const maxSyntheticCustomers = 20000

// Handlers contains the HTTP handlers for the REST API
type Handlers struct {
	controller *Controller
}

// NewHandlers creates a new Handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
	}
}

// errorResponse is the body of every error reply
type errorResponse struct {
	Error     string               `json:"error"`
	Status    int                  `json:"status"`
	Timestamp int64                `json:"timestamp"`
	Details   string               `json:"details,omitempty"`
	Fields    []pricing.FieldError `json:"fields,omitempty"`
}

func newErrorResponse(statusCode int, message string, err error) errorResponse {
	resp := errorResponse{
		Error:     message,
		Status:    statusCode,
		Timestamp: time.Now().Unix(),
	}
	if err != nil {
		resp.Details = err.Error()
	}
	var verr *pricing.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	return resp
}

// writeError writes a JSON error without content negotiation
func writeError(w http.ResponseWriter, statusCode int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(newErrorResponse(statusCode, message, err))
}

// sendJSON sends a 200 response in the requested format
func (h *Handlers) sendJSON(w http.ResponseWriter, r *http.Request, data any) {
	h.sendJSONWithStatus(w, r, http.StatusOK, data)
}

// sendJSONWithStatus sends a response with a specific status code
func (h *Handlers) sendJSONWithStatus(w http.ResponseWriter, r *http.Request, statusCode int, data any) {
	if err := h.controller.formatter.WriteResponse(w, r, statusCode, data); err != nil {
		h.controller.logger.Errorf("error encoding response for %s: %v", r.URL.Path, err)
	}
}

// sendError sends an error response
func (h *Handlers) sendError(w http.ResponseWriter, r *http.Request, statusCode int, message string, err error) {
	if statusCode >= http.StatusInternalServerError {
		h.controller.logger.Errorf("%s %s: %s: %v", r.Method, r.URL.Path, message, err)
	}
	h.sendJSONWithStatus(w, r, statusCode, newErrorResponse(statusCode, message, err))
}

// sendServiceError maps pricing and segmentation errors to HTTP statuses
func (h *Handlers) sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *pricing.ValidationError
	switch {
	case errors.As(err, &verr):
		h.sendError(w, r, http.StatusBadRequest, "Validation failed", err)
	case errors.Is(err, pricing.ErrNotFound):
		h.sendError(w, r, http.StatusNotFound, "Not found", err)
	case errors.Is(err, pricing.ErrConflict):
		h.sendError(w, r, http.StatusConflict, "Conflict", err)
	case errors.Is(err, segmentation.ErrNoLiveData):
		h.sendError(w, r, http.StatusServiceUnavailable, "Live market data unavailable", err)
	default:
		h.sendError(w, r, http.StatusInternalServerError, "Internal server error", err)
	}
}

// decodeBody decodes a JSON request body into v. An empty body is an error
// unless allowEmpty is set.
func decodeBody(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return err
	}
	return nil
}

// Health reports that the server is up
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, r, map[string]any{
		"status":  "ok",
		"version": constants.Version,
		"time":    time.Now().UTC(),
	})
}

// ListPlans returns every plan, or only active ones with ?active=true
func (h *Handlers) ListPlans(w http.ResponseWriter, r *http.Request) {
	activeOnly, err := boolParam(r, "active")
	if err != nil {
		h.sendError(w, r, http.StatusBadRequest, "Invalid active parameter", err)
		return
	}

	plans, err := h.controller.pricing.ListPlans(r.Context(), activeOnly)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	h.sendJSON(w, r, map[string]any{"plans": plans, "count": len(plans)})
}

// GetPlan returns one plan
func (h *Handlers) GetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.controller.pricing.GetPlan(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	h.sendJSON(w, r, plan)
}

// CreatePlan creates a plan
func (h *Handlers) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var in pricing.PlanInput
	if err := decodeBody(r, &in, false); err != nil {
		h.sendError(w, r, http.StatusBadRequest, "Invalid JSON payload", err)
		return
	}

	plan, err := h.controller.pricing.CreatePlan(r.Context(), in)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/plans/"+plan.ID)
	h.sendJSONWithStatus(w, r, http.StatusCreated, plan)
}

// UpdatePlan replaces the writable fields of a plan
func (h *Handlers) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	var in pricing.PlanInput
	if err := decodeBody(r, &in, false); err != nil {
		h.sendError(w, r, http.StatusBadRequest, "Invalid JSON payload", err)
		return
	}

	plan, err := h.controller.pricing.UpdatePlan(r.Context(), mux.Vars(r)["id"], in)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	h.sendJSON(w, r, plan)
}

// DeletePlan deletes a plan that no agent sells
func (h *Handlers) DeletePlan(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.pricing.DeletePlan(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAgents returns every sales agent
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.controller.pricing.ListAgents(r.Context())
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	h.sendJSON(w, r, map[string]any{"agents": agents, "count": len(agents)})
}

// GetAgent returns one sales agent
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.controller.pricing.GetAgent(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	h.sendJSON(w, r, agent)
}

// CreateAgent registers a sales agent
func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var in pricing.AgentInput
	if err := decodeBody(r, &in, false); err != nil {
		h.sendError(w, r, http.StatusBadRequest, "Invalid JSON payload", err)
		return
	}

	agent, err := h.controller.pricing.CreateAgent(r.Context(), in)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/agents/"+agent.ID)
	h.sendJSONWithStatus(w, r, http.StatusCreated, agent)
}

// Assign lets an agent sell a plan
func (h *Handlers) Assign(w http.ResponseWriter, r *http.Request) {
	var in pricing.AssignInput
	if err := decodeBody(r, &in, false); err != nil {
		h.sendError(w, r, http.StatusBadRequest, "Invalid JSON payload", err)
		return
	}

	a, err := h.controller.pricing.Assign(r.Context(), in)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	h.sendJSONWithStatus(w, r, http.StatusCreated, a)
}

// ListAssignments returns assignments, optionally for one ?agent_id
func (h *Handlers) ListAssignments(w http.ResponseWriter, r *http.Request) {
	list, err := h.controller.pricing.ListAssignments(r.Context(), r.URL.Query().Get("agent_id"))
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	h.sendJSON(w, r, map[string]any{"assignments": list, "count": len(list)})
}

// DemographicSegments returns the gender by age segments
func (h *Handlers) DemographicSegments(w http.ResponseWriter, r *http.Request) {
	req, err := segmentRequest(r)
	if err != nil {
		h.sendError(w, r, http.StatusBadRequest, "Invalid query parameters", err)
		return
	}

	segs, err := h.controller.agent.Demographic(r.Context(), req)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	h.sendJSON(w, r, map[string]any{"segments": segs, "count": len(segs)})
}

// BehavioralSegments returns the purchase-behaviour segments. The body may
// carry the products to analyse; without it they are searched live.
func (h *Handlers) BehavioralSegments(w http.ResponseWriter, r *http.Request) {
	req, err := segmentRequest(r)
	if err != nil {
		h.sendError(w, r, http.StatusBadRequest, "Invalid query parameters", err)
		return
	}

	var body segmentation.Request
	if err := decodeBody(r, &body, true); err != nil {
		h.sendError(w, r, http.StatusBadRequest, "Invalid JSON payload", err)
		return
	}
	req.Products = body.Products
	if body.Query != "" {
		req.Query = body.Query
	}
	if body.TargetPrice != 0 {
		req.TargetPrice = body.TargetPrice
	}
	if req.TargetPrice < 0 {
		h.sendError(w, r, http.StatusBadRequest, "Invalid target price", fmt.Errorf("target_price must not be negative"))
		return
	}

	segs, err := h.controller.agent.Behavioral(r.Context(), req)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	h.sendJSON(w, r, map[string]any{"segments": segs, "count": len(segs)})
}

// Analysis runs the full segmentation and returns ranked recommendations
func (h *Handlers) Analysis(w http.ResponseWriter, r *http.Request) {
	req, err := segmentRequest(r)
	if err != nil {
		h.sendError(w, r, http.StatusBadRequest, "Invalid query parameters", err)
		return
	}
	if req.Clusters, err = intParam(r, "clusters", 0, 0, 20); err != nil {
		h.sendError(w, r, http.StatusBadRequest, "Invalid clusters parameter", err)
		return
	}
	if req.TopN, err = intParam(r, "top", 0, 0, 50); err != nil {
		h.sendError(w, r, http.StatusBadRequest, "Invalid top parameter", err)
		return
	}

	analysis, err := h.controller.agent.Analyze(r.Context(), req)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	h.sendJSON(w, r, analysis)
}

// ClusterSegments clusters a synthetic customer population
func (h *Handlers) ClusterSegments(w http.ResponseWriter, r *http.Request) {
	req, err := segmentRequest(r)
	if err != nil {
		h.sendError(w, r, http.StatusBadRequest, "Invalid query parameters", err)
		return
	}
	opts := h.controller.agent.Options()
	if req.SyntheticSize, err = intParam(r, "n", opts.SyntheticSize, 1, maxSyntheticCustomers); err != nil {
		h.sendError(w, r, http.StatusBadRequest, "Invalid n parameter", err)
		return
	}
	if req.Clusters, err = intParam(r, "k", 4, 1, 20); err != nil {
		h.sendError(w, r, http.StatusBadRequest, "Invalid k parameter", err)
		return
	}
	if req.Clusters > req.SyntheticSize {
		h.sendError(w, r, http.StatusBadRequest, "Invalid k parameter",
			fmt.Errorf("cannot form %d clusters from %d customers", req.Clusters, req.SyntheticSize))
		return
	}

	segs, res, err := h.controller.agent.Clusters(r.Context(), req)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	h.sendJSON(w, r, map[string]any{
		"segments":   segs,
		"count":      len(segs),
		"clustering": res,
	})
}

// segmentRequest reads the parameters shared by the segmentation endpoints
func segmentRequest(r *http.Request) (segmentation.Request, error) {
	req := segmentation.Request{Query: r.URL.Query().Get("query")}
	if v := r.URL.Query().Get("target_price"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil || p < 0 {
			return req, fmt.Errorf("target_price must be a non-negative number")
		}
		req.TargetPrice = p
	}
	return req, nil
}

func intParam(r *http.Request, name string, def, min, max int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if n < min || n > max {
		return 0, fmt.Errorf("%s must be between %d and %d", name, min, max)
	}
	return n, nil
}

func boolParam(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}
