package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"impact-service/internal/goals"
	"impact-service/internal/metrics"
	"impact-service/internal/models"
	"impact-service/internal/notary"
	"impact-service/internal/quality"
	"impact-service/internal/timeseries"
)

var (
	testDB     *gorm.DB
	router     *gin.Engine
	metricsSvc *metrics.Service
)

// TestMain sets up the test database, services and router, runs tests, and
// then tears down.
func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)

	var err error
	testDB, err = gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}
	err = testDB.AutoMigrate(&models.MetricObservation{}, &models.ImpactGoal{}, &timeseries.MetricPoint{})
	if err != nil {
		log.Fatalf("Failed to migrate test database schema: %v", err)
	}

	pointStore := timeseries.NewGormStore(testDB)
	agg := timeseries.NewAggregator(pointStore)
	assessor := quality.NewAssessorWithJitter(func() float64 { return 0 })
	metricsSvc = metrics.NewService(testDB, assessor, pointStore, notary.NewMemoryNotary())
	goalsSvc := goals.NewService(testDB, agg, 2)

	router = gin.Default()
	RegisterRoutes(router, NewMetricHandler(metricsSvc, agg), NewGoalHandler(goalsSvc))

	exitCode := m.Run()

	if sqlDB, err := testDB.DB(); err == nil {
		sqlDB.Close()
	}
	os.Exit(exitCode)
}

func resetTables(t *testing.T) {
	t.Helper()
	metricsSvc.WaitForNotarizations()
	for _, table := range []string{"metric_observations", "impact_goals", "metric_points"} {
		require.NoError(t, testDB.Exec("DELETE FROM "+table).Error)
	}
}

func doJSON(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func metricPayload() map[string]interface{} {
	return map[string]interface{}{
		"bond_id":     "bond-1",
		"metric_type": models.MetricCarbonReduction,
		"value":       "150.5",
		"unit":        "TONS_CO2",
		"timestamp":   time.Now().UTC().Add(-time.Hour).Format(time.RFC3339),
		"source_type": models.SourceSmartMeter,
		"device_id":   "meter-42",
		"location":    "plant-a",
		"metadata":    map[string]interface{}{"firmware": "2.1"},
	}
}

func goalPayload() map[string]interface{} {
	return map[string]interface{}{
		"bond_id":      "bond-1",
		"name":         "Cut plant emissions",
		"metric_type":  models.MetricCarbonReduction,
		"target_value": "1000",
		"unit":         "TONS_CO2",
		"target_date":  time.Now().UTC().Add(365 * 24 * time.Hour).Format(time.RFC3339),
	}
}

func TestCreateMetricEndpoint(t *testing.T) {
	resetTables(t)

	w := doJSON(t, http.MethodPost, "/api/v1/metrics", metricPayload())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var obs models.MetricObservation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &obs))
	assert.True(t, obs.Value.Equal(decimal.RequireFromString("150.5")))
	assert.Equal(t, 1.0, obs.Quality.Score)
	assert.Equal(t, models.QualityExcellent, obs.Quality.Status)

	// Decimal values serialize as strings, never binary floats.
	assert.Contains(t, w.Body.String(), `"value":"150.5"`)
}

func TestCreateMetricEndpointRejectsNegativeValue(t *testing.T) {
	resetTables(t)

	payload := metricPayload()
	payload["value"] = "-1"
	w := doJSON(t, http.MethodPost, "/api/v1/metrics", payload)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var apiErr models.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, models.ErrorCodeValidation, apiErr.Code)

	var count int64
	require.NoError(t, testDB.Model(&models.MetricObservation{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestGetMetricEndpoint(t *testing.T) {
	resetTables(t)

	w := doJSON(t, http.MethodPost, "/api/v1/metrics", metricPayload())
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.MetricObservation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, http.MethodGet, "/api/v1/metrics/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, http.MethodGet, "/api/v1/metrics/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	var apiErr models.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, models.ErrorCodeMetricNotFound, apiErr.Code)

	w = doJSON(t, http.MethodGet, "/api/v1/metrics/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListMetricsEndpoint(t *testing.T) {
	resetTables(t)

	for i := 0; i < 3; i++ {
		payload := metricPayload()
		payload["timestamp"] = time.Now().UTC().Add(-time.Duration(i+1) * time.Hour).Format(time.RFC3339)
		w := doJSON(t, http.MethodPost, "/api/v1/metrics", payload)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doJSON(t, http.MethodGet, "/api/v1/bonds/bond-1/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.MetricObservation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 3)

	w = doJSON(t, http.MethodGet, "/api/v1/bonds/bond-1/metrics?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	w = doJSON(t, http.MethodGet, "/api/v1/bonds/bond-1/metrics?type=UNKNOWN_TYPE", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Empty(t, list)

	w = doJSON(t, http.MethodGet, "/api/v1/bonds/bond-1/metrics?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, http.MethodGet, "/api/v1/bonds/bond-1/metrics?start=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAggregateEndpoint(t *testing.T) {
	resetTables(t)

	w := doJSON(t, http.MethodPost, "/api/v1/metrics", metricPayload())
	require.Equal(t, http.StatusCreated, w.Code)

	aggReq := map[string]interface{}{
		"bond_id":     "bond-1",
		"metric_type": models.MetricCarbonReduction,
		"start":       time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC3339),
		"end":         time.Now().UTC().Format(time.RFC3339),
		"interval":    "1h",
		"function":    "mean",
	}
	w = doJSON(t, http.MethodPost, "/api/v1/metrics/aggregate", aggReq)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result models.AggregationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Count)
	assert.True(t, result.Total.Equal(decimal.RequireFromString("150.5")))
	assert.Equal(t, 0.0, result.StdDev)

	aggReq["interval"] = "1x"
	w = doJSON(t, http.MethodPost, "/api/v1/metrics/aggregate", aggReq)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImpactSummaryEndpoint(t *testing.T) {
	resetTables(t)

	w := doJSON(t, http.MethodPost, "/api/v1/metrics", metricPayload())
	require.Equal(t, http.StatusCreated, w.Code)
	payload := metricPayload()
	payload["value"] = "49.5"
	w = doJSON(t, http.MethodPost, "/api/v1/metrics", payload)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, http.MethodGet, "/api/v1/bonds/bond-1/impact/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var totals map[string]decimal.Decimal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &totals))
	assert.True(t, totals[models.MetricCarbonReduction].Equal(decimal.NewFromInt(200)))
	assert.Contains(t, w.Body.String(), `"200"`)
}

func TestCreateGoalEndpointAndDuplicateConflict(t *testing.T) {
	resetTables(t)

	w := doJSON(t, http.MethodPost, "/api/v1/goals", goalPayload())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var goal models.ImpactGoal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &goal))
	assert.Equal(t, models.GoalNotStarted, goal.Status)

	w = doJSON(t, http.MethodPost, "/api/v1/goals", goalPayload())
	require.Equal(t, http.StatusConflict, w.Code)
	var apiErr models.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, models.ErrorCodeConflict, apiErr.Code)
}

func TestEvaluateGoalEndpoint(t *testing.T) {
	resetTables(t)

	w := doJSON(t, http.MethodPost, "/api/v1/goals", goalPayload())
	require.Equal(t, http.StatusCreated, w.Code)
	var goal models.ImpactGoal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &goal))

	w = doJSON(t, http.MethodPost, "/api/v1/metrics", metricPayload())
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, http.MethodPost, fmt.Sprintf("/api/v1/goals/%s/evaluate", goal.ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var evaluated models.ImpactGoal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &evaluated))
	assert.True(t, evaluated.CurrentValue.Equal(decimal.RequireFromString("150.5")))
	assert.True(t, evaluated.ProgressPercent.Equal(decimal.RequireFromString("15.05")))

	w = doJSON(t, http.MethodPost, fmt.Sprintf("/api/v1/goals/%s/evaluate", uuid.NewString()), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEvaluateAllGoalsEndpoint(t *testing.T) {
	resetTables(t)

	w := doJSON(t, http.MethodPost, "/api/v1/goals", goalPayload())
	require.Equal(t, http.StatusCreated, w.Code)
	w = doJSON(t, http.MethodPost, "/api/v1/metrics", metricPayload())
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, http.MethodPost, "/api/v1/goals/evaluate-all", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var summary models.EvaluationSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Attempted)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 0, summary.Failed)
}

func TestGoalDashboardEndpoint(t *testing.T) {
	resetTables(t)

	w := doJSON(t, http.MethodPost, "/api/v1/goals", goalPayload())
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, http.MethodGet, "/api/v1/bonds/bond-1/goals/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var dash models.GoalDashboard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dash))
	assert.Equal(t, 1, dash.TotalGoals)
	assert.Equal(t, 1, dash.StatusCounts[models.GoalNotStarted])
}

func TestDeleteEndpoints(t *testing.T) {
	resetTables(t)

	w := doJSON(t, http.MethodPost, "/api/v1/metrics", metricPayload())
	require.Equal(t, http.StatusCreated, w.Code)
	var obs models.MetricObservation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &obs))

	w = doJSON(t, http.MethodPost, "/api/v1/goals", goalPayload())
	require.Equal(t, http.StatusCreated, w.Code)
	var goal models.ImpactGoal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &goal))

	metricsSvc.WaitForNotarizations()

	w = doJSON(t, http.MethodDelete, "/api/v1/metrics/"+obs.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(t, http.MethodDelete, "/api/v1/metrics/"+obs.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, http.MethodDelete, "/api/v1/goals/"+goal.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(t, http.MethodDelete, "/api/v1/goals/"+goal.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthz(t *testing.T) {
	w := doJSON(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
