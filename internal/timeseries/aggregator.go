package timeseries

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"impact-service/internal/models"
)

// Aggregator answers summary and windowed aggregation queries over the point
// store. All value arithmetic runs on decimals; only the variance/stddev pass
// uses floating point.
type Aggregator struct {
	store Store
}

// NewAggregator creates an Aggregator over the given store.
func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store}
}

// Summarize sums all historical values per metric type for one bond. The goal
// progress engine reads this as the "current value" signal.
func (a *Aggregator) Summarize(ctx context.Context, bondID string) (map[string]decimal.Decimal, error) {
	points, err := a.store.PointsByBond(ctx, bondID)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]decimal.Decimal)
	for _, p := range points {
		totals[p.MetricType] = totals[p.MetricType].Add(p.Value)
	}
	return totals, nil
}

// Aggregate buckets one (bond, metric type) range into interval-sized windows
// and applies the requested aggregation function per bucket. Overall
// total/min/max/average/count are computed over the raw points; variance and
// standard deviation over the bucket values in a second pass.
func (a *Aggregator) Aggregate(ctx context.Context, req models.AggregationRequest) (*models.AggregationResult, error) {
	interval, err := ParseInterval(req.Interval)
	if err != nil {
		return nil, &models.ValidationError{Field: "interval", Reason: err.Error()}
	}
	if !req.End.After(req.Start) {
		return nil, &models.ValidationError{Field: "end", Reason: "end must be after start"}
	}
	switch req.Function {
	case models.AggMean, models.AggSum, models.AggMin, models.AggMax:
	default:
		return nil, &models.ValidationError{Field: "function", Reason: fmt.Sprintf("unsupported aggregation function %q", req.Function)}
	}

	points, err := a.store.Points(ctx, req.BondID, req.MetricType, req.Start, req.End)
	if err != nil {
		return nil, err
	}

	result := &models.AggregationResult{
		BondID:     req.BondID,
		MetricType: req.MetricType,
		Interval:   req.Interval,
		Function:   req.Function,
		Count:      len(points),
	}
	if len(points) == 0 {
		return result, nil
	}

	// First pass: bucket accumulation plus overall stats over raw points.
	type bucket struct {
		sum   decimal.Decimal
		min   decimal.Decimal
		max   decimal.Decimal
		count int
	}
	buckets := make(map[int64]*bucket)

	result.Min = points[0].Value
	result.Max = points[0].Value
	for _, p := range points {
		result.Total = result.Total.Add(p.Value)
		if p.Value.LessThan(result.Min) {
			result.Min = p.Value
		}
		if p.Value.GreaterThan(result.Max) {
			result.Max = p.Value
		}

		idx := int64(p.Timestamp.Sub(req.Start) / interval)
		b, ok := buckets[idx]
		if !ok {
			b = &bucket{min: p.Value, max: p.Value}
			buckets[idx] = b
		}
		b.sum = b.sum.Add(p.Value)
		if p.Value.LessThan(b.min) {
			b.min = p.Value
		}
		if p.Value.GreaterThan(b.max) {
			b.max = p.Value
		}
		b.count++
	}
	result.Average = result.Total.Div(decimal.NewFromInt(int64(len(points))))

	indices := make([]int64, 0, len(buckets))
	for idx := range buckets {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	result.Points = make([]models.BucketPoint, 0, len(indices))
	for _, idx := range indices {
		b := buckets[idx]
		var v decimal.Decimal
		switch req.Function {
		case models.AggSum:
			v = b.sum
		case models.AggMin:
			v = b.min
		case models.AggMax:
			v = b.max
		default: // mean
			v = b.sum.Div(decimal.NewFromInt(int64(b.count)))
		}
		result.Points = append(result.Points, models.BucketPoint{
			Timestamp: req.Start.Add(time.Duration(idx) * interval),
			Value:     v,
			Count:     b.count,
		})
	}

	// Second pass: sample (n-1) variance over the bucket values. A single
	// bucket has no spread, so variance is defined as 0.
	result.Variance = sampleVariance(result.Points)
	result.StdDev = math.Sqrt(result.Variance)

	return result, nil
}

func sampleVariance(points []models.BucketPoint) float64 {
	n := len(points)
	if n <= 1 {
		return 0
	}

	var sum float64
	values := make([]float64, n)
	for i, p := range points {
		v, _ := p.Value.Float64()
		values[i] = v
		sum += v
	}
	mean := sum / float64(n)

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return sq / float64(n-1)
}

// ParseInterval parses bucket interval strings. Sub-day units go through
// time.ParseDuration; "d" and "w" are handled here since the stdlib does not
// accept them.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("interval is required")
	}

	unit := s[len(s)-1]
	if unit == 'd' || unit == 'w' {
		n, err := strconv.Atoi(s[:len(s)-1])
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid interval %q", s)
		}
		if unit == 'd' {
			return time.Duration(n) * 24 * time.Hour, nil
		}
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	return d, nil
}
