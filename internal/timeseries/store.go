// Package timeseries indexes accepted metrics as tagged points and answers
// windowed aggregation and summary queries over them.
package timeseries

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"impact-service/internal/models"
)

// MetricPoint is one row of the time-series sink. Bond, project, type, source,
// device and location act as tags; value and confidence are the fields.
type MetricPoint struct {
	ID         uint            `json:"id" gorm:"primary_key;autoIncrement"`
	MetricID   uuid.UUID       `json:"metric_id" gorm:"type:uuid;not null;index"`
	BondID     string          `json:"bond_id" gorm:"type:varchar(64);not null;index:idx_point_bond_type_time"`
	ProjectID  string          `json:"project_id,omitempty" gorm:"type:varchar(64)"`
	MetricType string          `json:"metric_type" gorm:"type:varchar(100);not null;index:idx_point_bond_type_time"`
	SourceType string          `json:"source_type" gorm:"type:varchar(50)"`
	DeviceID   string          `json:"device_id,omitempty" gorm:"type:varchar(128)"`
	Location   string          `json:"location,omitempty" gorm:"type:varchar(255)"`
	Value      decimal.Decimal `json:"value" gorm:"type:decimal(30,10);not null"`
	Confidence float64         `json:"confidence"`
	Timestamp  time.Time       `json:"timestamp" gorm:"not null;index:idx_point_bond_type_time"`
}

// Store is the time-series sink consumed by the aggregator and the ingestion
// service. Implementations must tolerate concurrent readers and writers.
type Store interface {
	Record(ctx context.Context, point MetricPoint) error
	Points(ctx context.Context, bondID, metricType string, start, end time.Time) ([]MetricPoint, error)
	PointsByBond(ctx context.Context, bondID string) ([]MetricPoint, error)
	DeleteByMetricID(ctx context.Context, metricID uuid.UUID) error
}

// GormStore is the gorm-backed Store implementation.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a Store over the given database handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Record writes one point. Failures surface as retryable storage errors so
// ingestion never silently drops data.
func (s *GormStore) Record(ctx context.Context, point MetricPoint) error {
	if err := s.db.WithContext(ctx).Create(&point).Error; err != nil {
		return &models.StorageError{Op: "timeseries record", Err: err}
	}
	return nil
}

// Points returns all points for one (bond, metric type) within [start, end),
// ordered by time.
func (s *GormStore) Points(ctx context.Context, bondID, metricType string, start, end time.Time) ([]MetricPoint, error) {
	var points []MetricPoint
	err := s.db.WithContext(ctx).
		Where("bond_id = ? AND metric_type = ? AND timestamp >= ? AND timestamp < ?", bondID, metricType, start, end).
		Order("timestamp asc").
		Find(&points).Error
	if err != nil {
		return nil, &models.StorageError{Op: "timeseries range query", Err: err}
	}
	return points, nil
}

// PointsByBond returns every historical point for one bond across all types.
func (s *GormStore) PointsByBond(ctx context.Context, bondID string) ([]MetricPoint, error) {
	var points []MetricPoint
	err := s.db.WithContext(ctx).
		Where("bond_id = ?", bondID).
		Find(&points).Error
	if err != nil {
		return nil, &models.StorageError{Op: "timeseries bond query", Err: err}
	}
	return points, nil
}

// DeleteByMetricID retracts the point(s) written for one canonical metric
// record. Used best-effort by administrative metric deletion.
func (s *GormStore) DeleteByMetricID(ctx context.Context, metricID uuid.UUID) error {
	err := s.db.WithContext(ctx).
		Where("metric_id = ?", metricID).
		Delete(&MetricPoint{}).Error
	if err != nil {
		return &models.StorageError{Op: "timeseries delete", Err: err}
	}
	return nil
}
