package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Aggregation functions accepted by the time-series aggregator.
const (
	AggMean = "mean"
	AggSum  = "sum"
	AggMin  = "min"
	AggMax  = "max"
)

// AggregationRequest describes a windowed aggregation query over one bond's
// metric history: [Start, End) split into Interval-sized buckets.
type AggregationRequest struct {
	BondID     string    `json:"bond_id" binding:"required,min=1,max=64"`
	MetricType string    `json:"metric_type" binding:"required,min=1,max=100"`
	Start      time.Time `json:"start" binding:"required"`
	End        time.Time `json:"end" binding:"required"`
	Interval   string    `json:"interval" binding:"required"` // e.g. "1h", "1d", "1w"
	Function   string    `json:"function" binding:"required,oneof=mean sum min max"`
}

// BucketPoint is one aggregated bucket of the returned series.
type BucketPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Value     decimal.Decimal `json:"value"`
	Count     int             `json:"count"`
}

// AggregationResult carries the bucketed series plus overall statistics.
// Variance and standard deviation are computed over the bucket values in a
// second pass and are the only floating-point figures in the result.
type AggregationResult struct {
	BondID     string          `json:"bond_id"`
	MetricType string          `json:"metric_type"`
	Interval   string          `json:"interval"`
	Function   string          `json:"function"`
	Points     []BucketPoint   `json:"points"`
	Total      decimal.Decimal `json:"total"`
	Min        decimal.Decimal `json:"min"`
	Max        decimal.Decimal `json:"max"`
	Average    decimal.Decimal `json:"average"`
	Count      int             `json:"count"`
	Variance   float64         `json:"variance"`
	StdDev     float64         `json:"std_dev"`
}
