package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxlaw/crm-alert-engine/pkg/analytics"
	"github.com/praxlaw/crm-alert-engine/pkg/models"
	"github.com/praxlaw/crm-alert-engine/pkg/services"
)

// fakeSource is a MetricSource with fixed per-metric values. Metrics
// without a value behave as empty windows.
type fakeSource struct {
	values map[string]float64
}

func (s *fakeSource) GetValue(ctx context.Context, metric string, windowStart, windowEnd time.Time) (float64, error) {
	if v, ok := s.values[metric]; ok {
		return v, nil
	}
	return 0, analytics.ErrNoData
}

func newTestRouter(t *testing.T, values map[string]float64) (*mux.Router, *services.Engine) {
	t.Helper()
	engine := services.NewEngine(&fakeSource{values: values}, services.WithInterval(5*time.Millisecond))
	router := mux.NewRouter()
	NewAPIHandler(engine).SetupRoutes(router)
	return router, engine
}

// fireAlerts runs the engine until one alert per triggering metric exists
func fireAlerts(t *testing.T, engine *services.Engine, want int) []models.Alert {
	t.Helper()
	engine.Start(context.Background())
	require.Eventually(t, func() bool {
		return len(engine.Alerts(nil)) >= want
	}, time.Second, 5*time.Millisecond)
	engine.Stop()
	return engine.Alerts(nil)
}

func doRequest(router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetRules(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := doRequest(router, http.MethodGet, "/api/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var rules []models.AlertRule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rules))
	assert.Len(t, rules, 5)
}

func TestGetRuleByID(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := doRequest(router, http.MethodGet, "/api/rules/lcp-threshold", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var rule models.AlertRule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rule))
	assert.Equal(t, "High LCP Alert", rule.Name)
}

func TestGetRuleNotFound(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := doRequest(router, http.MethodGet, "/api/rules/no-such-rule", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "no-such-rule")
}

func TestCreateRule(t *testing.T) {
	router, engine := newTestRouter(t, nil)

	rec := doRequest(router, http.MethodPost, "/api/rules", models.CreateRuleRequest{
		Name:            "Slow search",
		Type:            models.RuleTypePerformance,
		Metric:          "search_latency",
		Condition:       models.ConditionGreaterThan,
		Threshold:       1500,
		Severity:        models.SeverityMedium,
		CooldownMinutes: 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var rule models.AlertRule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rule))
	assert.NotEmpty(t, rule.ID)
	assert.True(t, rule.IsEnabled)
	assert.Len(t, engine.Rules(), 6)
}

func TestCreateRuleDuplicateConflicts(t *testing.T) {
	router, engine := newTestRouter(t, nil)

	rec := doRequest(router, http.MethodPost, "/api/rules", models.CreateRuleRequest{
		ID:        "lcp-threshold",
		Name:      "Shadow rule",
		Metric:    "largest_contentful_paint",
		Condition: models.ConditionGreaterThan,
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, engine.Rules(), 5)
}

func TestCreateRuleInvalidPayload(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/rules", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRuleValidationFailure(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := doRequest(router, http.MethodPost, "/api/rules", models.CreateRuleRequest{
		Name:      "No metric",
		Condition: models.ConditionGreaterThan,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateRule(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	threshold := 5000.0
	rec := doRequest(router, http.MethodPut, "/api/rules/lcp-threshold", models.UpdateRuleRequest{
		Threshold: &threshold,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var rule models.AlertRule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rule))
	assert.Equal(t, 5000.0, rule.Threshold)
	assert.Equal(t, "High LCP Alert", rule.Name)
}

func TestUpdateRuleNotFound(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	threshold := 5000.0
	rec := doRequest(router, http.MethodPut, "/api/rules/no-such-rule", models.UpdateRuleRequest{
		Threshold: &threshold,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteRuleIdempotent(t *testing.T) {
	router, engine := newTestRouter(t, nil)

	rec := doRequest(router, http.MethodDelete, "/api/rules/lcp-threshold", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, engine.Rules(), 4)

	rec = doRequest(router, http.MethodDelete, "/api/rules/lcp-threshold", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, engine.Rules(), 4)
}

func TestGetAlertsEmptyList(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := doRequest(router, http.MethodGet, "/api/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String(), "an empty log must serialize as a JSON array, not null")
}

func TestGetAlertsWithFilters(t *testing.T) {
	router, engine := newTestRouter(t, map[string]float64{
		"largest_contentful_paint": 4500,
		"error_rate":               7.5,
	})
	fireAlerts(t, engine, 2)

	rec := doRequest(router, http.MethodGet, "/api/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []models.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 2)

	rec = doRequest(router, http.MethodGet, "/api/alerts?severity=critical", nil)
	var critical []models.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &critical))
	require.Len(t, critical, 1)
	assert.Equal(t, "High Error Rate", critical[0].Title)

	rec = doRequest(router, http.MethodGet, "/api/alerts?type=performance&resolved=false", nil)
	var perf []models.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &perf))
	require.Len(t, perf, 1)
	assert.Equal(t, "High LCP Alert", perf[0].Title)
}

func TestGetAlertsInvalidResolvedParam(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := doRequest(router, http.MethodGet, "/api/alerts?resolved=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveAlert(t *testing.T) {
	router, engine := newTestRouter(t, map[string]float64{
		"largest_contentful_paint": 4500,
	})
	alerts := fireAlerts(t, engine, 1)

	rec := doRequest(router, http.MethodPost, "/api/alerts/"+alerts[0].ID+"/resolve",
		models.ResolveAlertRequest{ResolvedBy: "user-42"})
	require.Equal(t, http.StatusOK, rec.Code)

	resolved := engine.Alerts(nil)[0]
	assert.True(t, resolved.Resolved)
	assert.Equal(t, "user-42", resolved.ResolvedBy)
}

func TestResolveAlertWithoutBody(t *testing.T) {
	router, engine := newTestRouter(t, map[string]float64{
		"largest_contentful_paint": 4500,
	})
	alerts := fireAlerts(t, engine, 1)

	rec := doRequest(router, http.MethodPost, "/api/alerts/"+alerts[0].ID+"/resolve", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, engine.Alerts(nil)[0].Resolved)
}

func TestResolveUnknownAlertSucceeds(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := doRequest(router, http.MethodPost, "/api/alerts/no-such-alert/resolve", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetAlertCounts(t *testing.T) {
	router, engine := newTestRouter(t, map[string]float64{
		"largest_contentful_paint": 4500,
		"error_rate":               7.5,
	})
	fireAlerts(t, engine, 2)

	rec := doRequest(router, http.MethodGet, "/api/alerts/counts", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var counts models.AlertCounts
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &counts))
	assert.Equal(t, models.AlertCounts{Active: 2, Critical: 1}, counts)
}
