package management

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/chrissnell/launchplanner/internal/constants"
	"github.com/chrissnell/launchplanner/internal/diagnostics"
	"github.com/chrissnell/launchplanner/internal/keys"
	"github.com/gorilla/mux"
)

// Handlers contains the HTTP handlers for the management API
type Handlers struct {
	controller *Controller
}

// NewHandlers creates a new Handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
	}
}

// sendJSON sends a JSON response
func (h *Handlers) sendJSON(w http.ResponseWriter, data interface{}) {
	h.sendJSONWithStatus(w, http.StatusOK, data)
}

// sendJSONWithStatus sends a JSON response with a specific status code
func (h *Handlers) sendJSONWithStatus(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response in JSON format
func (h *Handlers) sendError(w http.ResponseWriter, statusCode int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    statusCode,
		"timestamp": time.Now().Unix(),
	}
	if err != nil {
		errorResponse["details"] = err.Error()
	}
	h.sendJSONWithStatus(w, statusCode, errorResponse)
}

// serviceVar resolves the {service} path variable
func (h *Handlers) serviceVar(w http.ResponseWriter, r *http.Request) (keys.Service, bool) {
	name := mux.Vars(r)["service"]
	svc, ok := keys.ParseService(name)
	if !ok {
		h.sendError(w, http.StatusNotFound, "Unknown service: "+name, nil)
	}
	return svc, ok
}

// Login handles the login request and sets a session cookie
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Token string `json:"token"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON payload", err)
		return
	}
	if request.Token == "" {
		h.sendError(w, http.StatusBadRequest, "Token is required", nil)
		return
	}
	if request.Token != h.controller.managementConfig.AuthToken {
		h.sendError(w, http.StatusUnauthorized, "Invalid token", nil)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionName,
		Value:    request.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   86400 * 7,
	})

	h.sendJSON(w, map[string]interface{}{
		"success": true,
		"message": "Login successful",
	})
}

// Logout clears the session cookie
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})

	h.sendJSON(w, map[string]interface{}{
		"success": true,
		"message": "Logout successful",
	})
}

// GetAuthStatus checks if the current session is authenticated
func (h *Handlers) GetAuthStatus(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, map[string]interface{}{
		"authenticated": h.controller.authenticated(r),
	})
}

// GetStatus reports uptime and how many services have usable keys
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := h.controller.keys.Status()

	var configured, active int
	for _, s := range status {
		if s.Total > 0 {
			configured++
		}
		if s.Enabled && s.Active > 0 {
			active++
		}
	}

	readOnly := true
	if h.controller.configProvider != nil {
		readOnly = h.controller.configProvider.IsReadOnly()
	}

	h.sendJSON(w, map[string]interface{}{
		"status":              "ok",
		"version":             constants.Version,
		"timestamp":           time.Now().Unix(),
		"uptime_seconds":      int64(time.Since(h.controller.started).Seconds()),
		"services":            len(status),
		"services_configured": configured,
		"services_active":     active,
		"config_read_only":    readOnly,
	})
}

// GetKeys returns the masked key status of every service
func (h *Handlers) GetKeys(w http.ResponseWriter, r *http.Request) {
	status := h.controller.keys.Status()
	h.sendJSON(w, map[string]interface{}{
		"services": status,
		"count":    len(status),
	})
}

// ReloadKeys re-reads every key source
func (h *Handlers) ReloadKeys(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.keys.Reload(); err != nil {
		h.sendError(w, http.StatusInternalServerError, "Failed to reload API keys", err)
		return
	}
	h.controller.logger.Info("API keys reloaded through the management API")
	h.GetKeys(w, r)
}

// EnableService puts a service's disabled keys back into rotation
func (h *Handlers) EnableService(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.serviceVar(w, r)
	if !ok {
		return
	}
	if err := h.controller.keys.Enable(svc); err != nil {
		h.sendError(w, http.StatusBadRequest, "Failed to enable service", err)
		return
	}
	h.controller.logger.Infof("API keys for %s re-enabled", svc)
	h.sendJSON(w, map[string]interface{}{
		"success": true,
		"service": svc,
	})
}

// TestAllKeys probes every configured key
func (h *Handlers) TestAllKeys(w http.ResponseWriter, r *http.Request) {
	results := h.controller.checker.CheckAll(r.Context())
	h.sendResults(w, results)
}

// TestServiceKeys probes the keys of one service
func (h *Handlers) TestServiceKeys(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.serviceVar(w, r)
	if !ok {
		return
	}
	h.sendResults(w, h.controller.checker.Check(r.Context(), svc))
}

func (h *Handlers) sendResults(w http.ResponseWriter, results []diagnostics.Result) {
	if results == nil {
		results = []diagnostics.Result{}
	}
	h.sendJSON(w, map[string]interface{}{
		"results": results,
		"summary": diagnostics.Summarize(results),
	})
}

// GetGuides returns setup instructions for every service
func (h *Handlers) GetGuides(w http.ResponseWriter, r *http.Request) {
	guides := diagnostics.Guides()
	h.sendJSON(w, map[string]interface{}{
		"guides": guides,
		"count":  len(guides),
	})
}

// GetGuide returns setup instructions for one service
func (h *Handlers) GetGuide(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.serviceVar(w, r)
	if !ok {
		return
	}
	guide, err := diagnostics.GuideFor(svc)
	if err != nil {
		h.sendError(w, http.StatusNotFound, "No guide for service", err)
		return
	}
	h.sendJSON(w, guide)
}
