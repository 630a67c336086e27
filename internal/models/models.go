package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Metric source types.
const (
	SourceSensor         = "SENSOR"
	SourceManualEntry    = "MANUAL_ENTRY"
	SourceAPIIntegration = "API_INTEGRATION"
	SourceSmartMeter     = "SMART_METER"
	SourceCalculated     = "CALCULATED"
	SourceExternalSystem = "EXTERNAL_SYSTEM"
	SourceDocumentUpload = "DOCUMENT_UPLOAD"
	SourceWeatherStation = "WEATHER_STATION"
)

// ValidSourceTypes defines the allowed source types for metric submissions.
var ValidSourceTypes = map[string]bool{
	SourceSensor:         true,
	SourceManualEntry:    true,
	SourceAPIIntegration: true,
	SourceSmartMeter:     true,
	SourceCalculated:     true,
	SourceExternalSystem: true,
	SourceDocumentUpload: true,
	SourceWeatherStation: true,
}

// ValidUnits defines the allowed measurement units.
var ValidUnits = map[string]bool{
	"TONS_CO2":      true,
	"KG_CO2":        true,
	"KWH":           true,
	"MWH":           true,
	"LITERS":        true,
	"CUBIC_METERS":  true,
	"TREES_PLANTED": true,
	"HECTARES":      true,
	"PERCENT":       true,
	"UNITS":         true,
}

// Well-known metric types. The enumeration is open: any non-empty type is
// accepted, these constants just name the common ones.
const (
	MetricCarbonReduction = "CARBON_EMISSIONS_REDUCTION"
	MetricEnergyGenerated = "ENERGY_GENERATED"
	MetricWaterSaved      = "WATER_SAVED"
	MetricTreesPlanted    = "TREES_PLANTED"
	MetricWasteRecycled   = "WASTE_RECYCLED"
)

// Quality status bands.
const (
	QualityExcellent    = "EXCELLENT"
	QualityGood         = "GOOD"
	QualityFair         = "FAIR"
	QualityPoor         = "POOR"
	QualityUnacceptable = "UNACCEPTABLE"
)

// Goal statuses. Cancelled is terminal and only ever set by explicit user
// action; the progress engine never enters or leaves it.
const (
	GoalNotStarted     = "NOT_STARTED"
	GoalInProgress     = "IN_PROGRESS"
	GoalOnTrack        = "ON_TRACK"
	GoalAtRisk         = "AT_RISK"
	GoalBehindSchedule = "BEHIND_SCHEDULE"
	GoalAchieved       = "ACHIEVED"
	GoalExceeded       = "EXCEEDED"
	GoalCancelled      = "CANCELLED"
)

// DataQuality is the quality assessment embedded in every metric observation.
// It is computed once at ingestion and never recomputed.
type DataQuality struct {
	Score        float64           `json:"score"`
	Verified     bool              `json:"verified"`
	Method       string            `json:"method" gorm:"type:varchar(100)"`
	DataPoints   int               `json:"data_points"`
	StdDeviation float64           `json:"std_deviation"`
	Status       string            `json:"status" gorm:"type:varchar(20);index"`
	Breakdown    datatypes.JSONMap `json:"breakdown,omitempty"`
}

// MetricObservation represents a single environmental-impact measurement
// reported against a bond's funded project. Value and unit are immutable after
// creation; the only later mutation is attaching a notarization receipt.
// @Description MetricObservation is a single environmental-impact measurement for a bond.
type MetricObservation struct {
	ID          uuid.UUID         `json:"id" gorm:"type:uuid;primary_key"`
	BondID      string            `json:"bond_id" gorm:"type:varchar(64);not null;index:idx_metric_bond_type_time"`
	ProjectID   string            `json:"project_id,omitempty" gorm:"type:varchar(64);index"`
	MetricType  string            `json:"metric_type" gorm:"type:varchar(100);not null;index:idx_metric_bond_type_time"`
	Value       decimal.Decimal   `json:"value" gorm:"type:decimal(30,10);not null"`
	Unit        string            `json:"unit" gorm:"type:varchar(50);not null"`
	Timestamp   time.Time         `json:"timestamp" gorm:"not null;index:idx_metric_bond_type_time"`
	SourceType  string            `json:"source_type" gorm:"type:varchar(50);not null"`
	SourceID    string            `json:"source_id,omitempty" gorm:"type:varchar(128)"`
	DeviceID    string            `json:"device_id,omitempty" gorm:"type:varchar(128)"`
	Location    string            `json:"location,omitempty" gorm:"type:varchar(255)"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
	Quality     DataQuality       `json:"quality" gorm:"embedded;embeddedPrefix:quality_"`
	TxHash      *string           `json:"tx_hash,omitempty" gorm:"type:varchar(128)"`
	NotarizedAt *time.Time        `json:"notarized_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at" gorm:"autoCreateTime"`
}

// ImpactGoal is a declared long-term target for one metric type on one bond.
// Current value, progress and status are owned by the progress engine; the
// Version column backs optimistic concurrency on its writes.
// @Description ImpactGoal is a declared long-term impact target for a bond.
type ImpactGoal struct {
	ID                 uuid.UUID         `json:"id" gorm:"type:uuid;primary_key"`
	BondID             string            `json:"bond_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_goal_bond_metric"`
	ProjectID          string            `json:"project_id,omitempty" gorm:"type:varchar(64);index"`
	Name               string            `json:"name" gorm:"type:varchar(255);not null"`
	Description        string            `json:"description,omitempty" gorm:"type:text"`
	MetricType         string            `json:"metric_type" gorm:"type:varchar(100);not null;uniqueIndex:idx_goal_bond_metric"`
	TargetValue        decimal.Decimal   `json:"target_value" gorm:"type:decimal(30,10);not null"`
	Unit               string            `json:"unit" gorm:"type:varchar(50);not null"`
	TargetDate         time.Time         `json:"target_date" gorm:"not null"`
	BaselineValue      decimal.Decimal   `json:"baseline_value" gorm:"type:decimal(30,10)"`
	BaselineDate       time.Time         `json:"baseline_date"`
	CurrentValue       decimal.Decimal   `json:"current_value" gorm:"type:decimal(30,10)"`
	ProgressPercent    decimal.Decimal   `json:"progress_percent" gorm:"type:decimal(8,4)"`
	Status             string            `json:"status" gorm:"type:varchar(30);index"`
	KPIs               datatypes.JSONMap `json:"kpis,omitempty"`
	VerificationMethod string            `json:"verification_method,omitempty" gorm:"type:varchar(100)"`
	ReportingFrequency string            `json:"reporting_frequency,omitempty" gorm:"type:varchar(50)"`
	Version            int64             `json:"version" gorm:"not null;default:1"`
	CreatedAt          time.Time         `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time         `json:"updated_at" gorm:"autoUpdateTime"`
}

// CreateMetricRequest defines the request payload for submitting a metric.
// Value, unit, timestamp and source type are checked by the service layer
// rather than by binding tags, so that incomplete submissions still reach the
// quality assessor's completeness scoring before rejection.
type CreateMetricRequest struct {
	BondID     string                 `json:"bond_id" binding:"required,min=1,max=64"`
	ProjectID  string                 `json:"project_id,omitempty" binding:"max=64"`
	MetricType string                 `json:"metric_type" binding:"required,min=1,max=100"`
	Value      *decimal.Decimal       `json:"value,omitempty"`
	Unit       string                 `json:"unit,omitempty"`
	Timestamp  time.Time              `json:"timestamp,omitempty"`
	SourceType string                 `json:"source_type,omitempty"`
	SourceID   string                 `json:"source_id,omitempty" binding:"max=128"`
	DeviceID   string                 `json:"device_id,omitempty" binding:"max=128"`
	Location   string                 `json:"location,omitempty" binding:"max=255"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// CreateGoalRequest defines the request payload for declaring an impact goal.
type CreateGoalRequest struct {
	BondID             string                 `json:"bond_id" binding:"required,min=1,max=64"`
	ProjectID          string                 `json:"project_id,omitempty" binding:"max=64"`
	Name               string                 `json:"name" binding:"required,min=1,max=255"`
	Description        string                 `json:"description,omitempty" binding:"max=2000"`
	MetricType         string                 `json:"metric_type" binding:"required,min=1,max=100"`
	TargetValue        *decimal.Decimal       `json:"target_value" binding:"required"`
	Unit               string                 `json:"unit" binding:"required"`
	TargetDate         time.Time              `json:"target_date" binding:"required"`
	BaselineValue      *decimal.Decimal       `json:"baseline_value,omitempty"`
	BaselineDate       *time.Time             `json:"baseline_date,omitempty"`
	KPIs               map[string]interface{} `json:"kpis,omitempty"`
	VerificationMethod string                 `json:"verification_method,omitempty" binding:"max=100"`
	ReportingFrequency string                 `json:"reporting_frequency,omitempty" binding:"max=50"`
}

// MetricFilter narrows a paginated metric listing.
type MetricFilter struct {
	BondID        string
	MetricType    string
	QualityStatus string
	Start         time.Time
	End           time.Time
	Limit         int
	Offset        int
}

// GoalDashboard aggregates goal health for one bond.
type GoalDashboard struct {
	BondID          string          `json:"bond_id"`
	TotalGoals      int             `json:"total_goals"`
	StatusCounts    map[string]int  `json:"status_counts"`
	AverageProgress decimal.Decimal `json:"average_progress"`
	DueSoon         int             `json:"due_soon"`
}

// EvaluationSummary reports the outcome of a bulk goal evaluation run.
type EvaluationSummary struct {
	Attempted int `json:"attempted"`
	Updated   int `json:"updated"`
	Failed    int `json:"failed"`
}
