package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/praxlaw/crm-alert-engine/pkg/models"
	"github.com/praxlaw/crm-alert-engine/pkg/services"
)

// APIHandler handles HTTP API requests for the management surface
type APIHandler struct {
	engine *services.Engine
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(engine *services.Engine) *APIHandler {
	return &APIHandler{engine: engine}
}

// GetRules returns all rules
func (h *APIHandler) GetRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Rules())
}

// GetRule returns a rule by ID
func (h *APIHandler) GetRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rule, err := h.engine.Rule(id)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Rule with ID %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// CreateRule creates a new rule
func (h *APIHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logrus.Errorf("Error decoding create rule request: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	rule, err := h.engine.CreateRule(&req)
	if err != nil {
		var dup *services.DuplicateRuleError
		if errors.As(err, &dup) {
			writeError(w, http.StatusConflict, dup.Error())
			return
		}
		logrus.Errorf("Error creating rule: %v", err)
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Failed to create rule: %v", err))
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// UpdateRule updates a rule
func (h *APIHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req models.UpdateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logrus.Errorf("Error decoding update rule request: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	rule, err := h.engine.UpdateRule(id, &req)
	if err != nil {
		if errors.Is(err, services.ErrRuleNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Rule with ID %s not found", id))
			return
		}
		logrus.Errorf("Error updating rule %s: %v", id, err)
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Failed to update rule: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// DeleteRule deletes a rule. Deleting an unknown id succeeds; removal is
// idempotent.
func (h *APIHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	h.engine.RemoveRule(id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Rule deleted successfully"})
}

// GetAlerts returns alerts filtered by the optional type, severity and
// resolved query parameters
func (h *APIHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Alerts(filter))
}

// GetAlertCounts returns the active/critical alert summary
func (h *APIHandler) GetAlertCounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Counts())
}

// ResolveAlert marks an alert as resolved. Resolving an unknown id is a
// no-op and still succeeds, so UI callers racing backend state never fail.
func (h *APIHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req models.ResolveAlertRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request format")
			return
		}
	}

	h.engine.ResolveAlert(id, req.ResolvedBy)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Alert resolved"})
}

// SetupRoutes sets up the API routes
func (h *APIHandler) SetupRoutes(r *mux.Router) {
	// Rule endpoints
	r.HandleFunc("/api/rules", h.GetRules).Methods(http.MethodGet)
	r.HandleFunc("/api/rules", h.CreateRule).Methods(http.MethodPost)
	r.HandleFunc("/api/rules/{id}", h.GetRule).Methods(http.MethodGet)
	r.HandleFunc("/api/rules/{id}", h.UpdateRule).Methods(http.MethodPut)
	r.HandleFunc("/api/rules/{id}", h.DeleteRule).Methods(http.MethodDelete)

	// Alert endpoints
	r.HandleFunc("/api/alerts", h.GetAlerts).Methods(http.MethodGet)
	r.HandleFunc("/api/alerts/counts", h.GetAlertCounts).Methods(http.MethodGet)
	r.HandleFunc("/api/alerts/{id}/resolve", h.ResolveAlert).Methods(http.MethodPost)
}

func filterFromQuery(r *http.Request) (*models.AlertFilter, error) {
	q := r.URL.Query()
	filter := &models.AlertFilter{}
	constrained := false

	if v := q.Get("type"); v != "" {
		t := models.RuleType(v)
		filter.Type = &t
		constrained = true
	}
	if v := q.Get("severity"); v != "" {
		s := models.RuleSeverity(v)
		filter.Severity = &s
		constrained = true
	}
	if v := q.Get("resolved"); v != "" {
		switch v {
		case "true":
			resolved := true
			filter.Resolved = &resolved
		case "false":
			resolved := false
			filter.Resolved = &resolved
		default:
			return nil, fmt.Errorf("invalid resolved value %q, expected true or false", v)
		}
		constrained = true
	}

	if !constrained {
		return nil, nil
	}
	return filter, nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.Errorf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
