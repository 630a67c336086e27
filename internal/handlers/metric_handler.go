package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"impact-service/internal/metrics"
	"impact-service/internal/models"
	"impact-service/internal/timeseries"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// MetricHandler exposes the metric ingestion and query surface.
type MetricHandler struct {
	svc *metrics.Service
	agg *timeseries.Aggregator
}

// NewMetricHandler wires the handler to its services.
func NewMetricHandler(svc *metrics.Service, agg *timeseries.Aggregator) *MetricHandler {
	return &MetricHandler{svc: svc, agg: agg}
}

// CreateMetric godoc
// @Summary Submit a new impact metric
// @Description Validate, quality-score and persist one metric observation. Notarization is dispatched asynchronously; the returned record may not yet carry a receipt.
// @Tags metrics
// @Accept  json
// @Produce  json
// @Param   metric  body   models.CreateMetricRequest   true  "Metric submission"
// @Success 201 {object} models.MetricObservation "Successfully ingested metric"
// @Failure 400 {object} models.APIError "Bad Request (e.g., negative value, timestamp too far in the future)"
// @Failure 503 {object} models.APIError "Storage unavailable (retryable)"
// @Router /metrics [post]
func (h *MetricHandler) CreateMetric(c *gin.Context) {
	var req models.CreateMetricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidJSON, "Invalid request payload", gin.H{"reason": err.Error()})
		return
	}

	obs, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	RespondWithSuccess(c, http.StatusCreated, obs)
}

// GetMetric godoc
// @Summary Get a metric observation by ID
// @Tags metrics
// @Produce  json
// @Param   id     path   string     true  "Metric ID (UUID)"
// @Success 200 {object} models.MetricObservation
// @Failure 400 {object} models.APIError "Invalid ID format"
// @Failure 404 {object} models.APIError "Metric not found"
// @Router /metrics/{id} [get]
func (h *MetricHandler) GetMetric(c *gin.Context) {
	idStr := c.Param("id")
	metricID, err := uuid.Parse(idStr)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidIDFormat, "Invalid ID format for metric ID", gin.H{"id": idStr})
		return
	}

	obs, err := h.svc.Get(c.Request.Context(), metricID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	RespondWithSuccess(c, http.StatusOK, obs)
}

// DeleteMetric godoc
// @Summary Delete a metric observation
// @Description Administrative deletion. The time-series counterpart is retracted best-effort.
// @Tags metrics
// @Param   id     path   string     true  "Metric ID (UUID)"
// @Success 204 "Successfully deleted metric"
// @Failure 404 {object} models.APIError "Metric not found"
// @Router /metrics/{id} [delete]
func (h *MetricHandler) DeleteMetric(c *gin.Context) {
	idStr := c.Param("id")
	metricID, err := uuid.Parse(idStr)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidIDFormat, "Invalid ID format for metric ID", gin.H{"id": idStr})
		return
	}

	if err := h.svc.Delete(c.Request.Context(), metricID); err != nil {
		respondDomainError(c, err)
		return
	}
	RespondWithSuccess(c, http.StatusNoContent, nil)
}

// ListMetrics godoc
// @Summary List metric observations for a bond
// @Description Paginated listing, optionally narrowed by metric type, quality status and time range.
// @Tags metrics
// @Produce  json
// @Param   bond_id  path   string  true   "Bond ID"
// @Param   type     query  string  false  "Metric type filter"
// @Param   status   query  string  false  "Quality status filter"
// @Param   start    query  string  false  "Range start (RFC3339)"
// @Param   end      query  string  false  "Range end (RFC3339)"
// @Param   limit    query  int     false  "Page size (default 10, max 100)"
// @Param   offset   query  int     false  "Page offset"
// @Success 200 {array} models.MetricObservation
// @Failure 400 {object} models.APIError "Invalid query parameters"
// @Router /bonds/{bond_id}/metrics [get]
func (h *MetricHandler) ListMetrics(c *gin.Context) {
	filter := models.MetricFilter{
		BondID:        c.Param("bond_id"),
		MetricType:    c.Query("type"),
		QualityStatus: c.Query("status"),
	}

	limit, offset, ok := paginationParams(c)
	if !ok {
		return
	}
	filter.Limit = limit
	filter.Offset = offset

	if startStr := c.Query("start"); startStr != "" {
		start, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "Invalid start parameter: not an RFC3339 timestamp.", gin.H{"start": startStr})
			return
		}
		filter.Start = start
	}
	if endStr := c.Query("end"); endStr != "" {
		end, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "Invalid end parameter: not an RFC3339 timestamp.", gin.H{"end": endStr})
			return
		}
		filter.End = end
	}

	obs, err := h.svc.Query(c.Request.Context(), filter)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	RespondWithSuccess(c, http.StatusOK, obs)
}

// AggregateMetrics godoc
// @Summary Windowed aggregation over one bond's metric history
// @Description Buckets [start, end) into interval-sized windows and applies the requested aggregation function (mean/sum/min/max).
// @Tags metrics
// @Accept  json
// @Produce  json
// @Param   request  body   models.AggregationRequest   true  "Aggregation query"
// @Success 200 {object} models.AggregationResult
// @Failure 400 {object} models.APIError "Invalid interval, range or function"
// @Failure 503 {object} models.APIError "Storage unavailable (retryable)"
// @Router /metrics/aggregate [post]
func (h *MetricHandler) AggregateMetrics(c *gin.Context) {
	var req models.AggregationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidJSON, "Invalid request payload", gin.H{"reason": err.Error()})
		return
	}

	result, err := h.agg.Aggregate(c.Request.Context(), req)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	RespondWithSuccess(c, http.StatusOK, result)
}

// ImpactSummary godoc
// @Summary Per-type impact totals for a bond
// @Description Sums all historical metric values per metric type. Values are decimal strings.
// @Tags metrics
// @Produce  json
// @Param   bond_id  path   string  true  "Bond ID"
// @Success 200 {object} map[string]string
// @Failure 503 {object} models.APIError "Storage unavailable (retryable)"
// @Router /bonds/{bond_id}/impact/summary [get]
func (h *MetricHandler) ImpactSummary(c *gin.Context) {
	totals, err := h.agg.Summarize(c.Request.Context(), c.Param("bond_id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	RespondWithSuccess(c, http.StatusOK, totals)
}

// paginationParams validates limit/offset query parameters, responding with a
// 400 itself when they are malformed.
func paginationParams(c *gin.Context) (limit, offset int, ok bool) {
	limitStr := c.DefaultQuery("limit", strconv.Itoa(DefaultLimit))
	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "Invalid limit parameter: not a number.", gin.H{"limit": limitStr})
		return 0, 0, false
	}
	if limit <= 0 {
		limit = DefaultLimit
	} else if limit > MaxLimit {
		limit = MaxLimit
	}

	offsetStr := c.DefaultQuery("offset", "0")
	offset, err = strconv.Atoi(offsetStr)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "Invalid offset parameter: not a number.", gin.H{"offset": offsetStr})
		return 0, 0, false
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset, true
}
