// Package metrics owns the metric ingestion pipeline: validation, quality
// scoring, canonical persistence, time-series indexing and fire-and-forget
// notarization.
package metrics

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"impact-service/internal/models"
	"impact-service/internal/notary"
	"impact-service/internal/quality"
	"impact-service/internal/timeseries"
)

// futureTolerance is how far ahead of the server clock a metric timestamp may
// legitimately be (clock skew allowance).
const futureTolerance = time.Hour

// notarizeTimeout bounds each async anchoring attempt.
const notarizeTimeout = 30 * time.Second

// Service orchestrates metric ingestion and the query surface over stored
// observations.
type Service struct {
	db       *gorm.DB
	assessor *quality.Assessor
	points   timeseries.Store
	notary   notary.Notary

	wg sync.WaitGroup
}

// NewService wires the ingestion pipeline.
func NewService(db *gorm.DB, assessor *quality.Assessor, points timeseries.Store, sink notary.Notary) *Service {
	return &Service{
		db:       db,
		assessor: assessor,
		points:   points,
		notary:   sink,
	}
}

// Create validates, scores and persists one metric submission, indexes it in
// the time-series sink, and dispatches notarization without waiting for its
// result. The returned observation may not yet carry a receipt.
func (s *Service) Create(ctx context.Context, req models.CreateMetricRequest) (*models.MetricObservation, error) {
	if err := validateSubmission(req); err != nil {
		return nil, err
	}

	q := s.assessor.Assess(req)

	obs := models.MetricObservation{
		ID:         uuid.New(),
		BondID:     req.BondID,
		ProjectID:  req.ProjectID,
		MetricType: req.MetricType,
		Value:      *req.Value,
		Unit:       req.Unit,
		Timestamp:  req.Timestamp.UTC(),
		SourceType: req.SourceType,
		SourceID:   req.SourceID,
		DeviceID:   req.DeviceID,
		Location:   req.Location,
		Metadata:   datatypes.JSONMap(req.Metadata),
		Quality:    q,
	}

	if err := s.db.WithContext(ctx).Create(&obs).Error; err != nil {
		return nil, &models.StorageError{Op: "metric insert", Err: err}
	}

	// Index the accepted metric. A sink failure propagates as retryable so
	// the caller knows the point was not indexed; the canonical record is
	// kept either way.
	point := timeseries.MetricPoint{
		MetricID:   obs.ID,
		BondID:     obs.BondID,
		ProjectID:  obs.ProjectID,
		MetricType: obs.MetricType,
		SourceType: obs.SourceType,
		DeviceID:   obs.DeviceID,
		Location:   obs.Location,
		Value:      obs.Value,
		Confidence: obs.Quality.Score,
		Timestamp:  obs.Timestamp,
	}
	if err := s.points.Record(ctx, point); err != nil {
		return nil, err
	}

	correlationID := uuid.NewString()
	s.wg.Add(1)
	go s.notarize(correlationID, obs)

	return &obs, nil
}

// notarize anchors the record hash and attaches the receipt. It runs outside
// the request scope, carries its correlation id explicitly, and only logs on
// failure: notarization is best-effort.
func (s *Service) notarize(correlationID string, obs models.MetricObservation) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), notarizeTimeout)
	defer cancel()

	hash := notary.PayloadHash(
		obs.ID.String(),
		obs.BondID,
		obs.MetricType,
		obs.Value.String(),
		obs.Unit,
		obs.Timestamp.UTC().Format(time.RFC3339Nano),
	)

	receipt, err := s.notary.Submit(ctx, obs.ID.String(), hash)
	if err != nil {
		nErr := &models.NotarizationError{RecordID: obs.ID.String(), Err: err}
		log.Printf("[%s] %v; record keeps absent-receipt state", correlationID, nErr)
		return
	}

	err = s.db.Model(&models.MetricObservation{}).
		Where("id = ?", obs.ID).
		Updates(map[string]interface{}{
			"tx_hash":      receipt.TxHash,
			"notarized_at": receipt.Timestamp,
		}).Error
	if err != nil {
		log.Printf("[%s] failed to attach notarization receipt to metric %s: %v", correlationID, obs.ID, err)
		return
	}
	log.Printf("[%s] metric %s notarized, tx %s", correlationID, obs.ID, receipt.TxHash)
}

// WaitForNotarizations blocks until all dispatched notarizations settle.
// Used by graceful shutdown and tests.
func (s *Service) WaitForNotarizations() {
	s.wg.Wait()
}

// Get looks a metric up by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.MetricObservation, error) {
	var obs models.MetricObservation
	if err := s.db.WithContext(ctx).First(&obs, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &models.NotFoundError{Resource: "metric", ID: id.String()}
		}
		return nil, &models.StorageError{Op: "metric lookup", Err: err}
	}
	return &obs, nil
}

// Query returns a filtered, paginated page of observations for one bond,
// ordered by observation time.
func (s *Service) Query(ctx context.Context, filter models.MetricFilter) ([]models.MetricObservation, error) {
	q := s.db.WithContext(ctx).Where("bond_id = ?", filter.BondID)
	if filter.MetricType != "" {
		q = q.Where("metric_type = ?", filter.MetricType)
	}
	if filter.QualityStatus != "" {
		q = q.Where("quality_status = ?", filter.QualityStatus)
	}
	if !filter.Start.IsZero() {
		q = q.Where("timestamp >= ?", filter.Start)
	}
	if !filter.End.IsZero() {
		q = q.Where("timestamp < ?", filter.End)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var obs []models.MetricObservation
	if err := q.Order("timestamp asc").Find(&obs).Error; err != nil {
		return nil, &models.StorageError{Op: "metric query", Err: err}
	}
	return obs, nil
}

// Delete removes the canonical record and, best-effort, retracts its
// time-series points. A retraction failure is logged, not raised: the
// canonical record is gone either way and the window is documented.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	var obs models.MetricObservation
	if err := s.db.WithContext(ctx).First(&obs, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.NotFoundError{Resource: "metric", ID: id.String()}
		}
		return &models.StorageError{Op: "metric lookup", Err: err}
	}

	if err := s.db.WithContext(ctx).Delete(&models.MetricObservation{}, "id = ?", id).Error; err != nil {
		return &models.StorageError{Op: "metric delete", Err: err}
	}

	if err := s.points.DeleteByMetricID(ctx, id); err != nil {
		log.Printf("best-effort time-series retraction failed for metric %s: %v", id, err)
	}
	return nil
}

func validateSubmission(req models.CreateMetricRequest) error {
	if req.BondID == "" {
		return &models.ValidationError{Field: "bond_id", Reason: "bond id is required"}
	}
	if req.MetricType == "" {
		return &models.ValidationError{Field: "metric_type", Reason: "metric type is required"}
	}
	if req.Value == nil {
		return &models.ValidationError{Field: "value", Reason: "value is required"}
	}
	if req.Value.IsNegative() {
		return &models.ValidationError{Field: "value", Reason: "value must not be negative"}
	}
	if req.Unit == "" {
		return &models.ValidationError{Field: "unit", Reason: "unit is required"}
	}
	if !models.ValidUnits[req.Unit] {
		return &models.ValidationError{Field: "unit", Reason: "unknown unit " + req.Unit}
	}
	if req.Timestamp.IsZero() {
		return &models.ValidationError{Field: "timestamp", Reason: "timestamp is required"}
	}
	if req.Timestamp.After(time.Now().UTC().Add(futureTolerance)) {
		return &models.ValidationError{Field: "timestamp", Reason: "timestamp must not be more than 1 hour in the future"}
	}
	if req.SourceType == "" {
		return &models.ValidationError{Field: "source_type", Reason: "source type is required"}
	}
	if !models.ValidSourceTypes[req.SourceType] {
		return &models.ValidationError{Field: "source_type", Reason: "unknown source type " + req.SourceType}
	}
	return nil
}
