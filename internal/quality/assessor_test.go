package quality

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impact-service/internal/models"
)

func noJitter() float64 { return 0 }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func fullSubmission() models.CreateMetricRequest {
	return models.CreateMetricRequest{
		BondID:     "bond-1",
		MetricType: models.MetricCarbonReduction,
		Value:      decPtr("150.5"),
		Unit:       "TONS_CO2",
		Timestamp:  time.Now().UTC().Add(-time.Hour),
		SourceType: models.SourceSmartMeter,
		DeviceID:   "meter-42",
		Location:   "plant-a",
		Metadata:   map[string]interface{}{"firmware": "2.1"},
	}
}

func TestAssessFullSmartMeterSubmission(t *testing.T) {
	a := NewAssessorWithJitter(noJitter)
	q := a.Assess(fullSubmission())

	// 0.4 base + 0.2 device + 0.2 location + 0.1 metadata + 0.2 not-future,
	// clamped to 1.0.
	assert.Equal(t, 1.0, q.Score)
	assert.Equal(t, models.QualityExcellent, q.Status)
	assert.True(t, q.Verified)
	assert.Equal(t, "AUTOMATIC_METER_READING", q.Method)
	assert.Equal(t, 1, q.DataPoints)
	assert.Equal(t, 1.0, q.Breakdown["completeness"])
	assert.Equal(t, 1.0, q.Breakdown["timeliness"])
}

func TestAssessScoreAlwaysInRange(t *testing.T) {
	a := NewAssessor()
	reqs := []models.CreateMetricRequest{
		fullSubmission(),
		{BondID: "b", MetricType: "t", SourceType: models.SourceManualEntry},
		{},
		{SourceType: models.SourceSensor, Timestamp: time.Now().Add(48 * time.Hour)},
	}
	for _, req := range reqs {
		q := a.Assess(req)
		assert.GreaterOrEqual(t, q.Score, 0.0)
		assert.LessOrEqual(t, q.Score, 1.0)
		assert.Equal(t, q.Score > 0.8, q.Verified)
	}
}

func TestAssessCompletenessFraction(t *testing.T) {
	a := NewAssessorWithJitter(noJitter)

	cases := []struct {
		name string
		req  models.CreateMetricRequest
		want float64
	}{
		{"empty", models.CreateMetricRequest{}, 0},
		{"only bond", models.CreateMetricRequest{BondID: "b"}, 0.2},
		{"bond and type", models.CreateMetricRequest{BondID: "b", MetricType: "t"}, 0.4},
		{"missing unit and timestamp", models.CreateMetricRequest{
			BondID: "b", MetricType: "t", Value: decPtr("1"),
		}, 0.6},
		{"all five", models.CreateMetricRequest{
			BondID: "b", MetricType: "t", Value: decPtr("1"),
			Unit: "KWH", Timestamp: time.Now(),
		}, 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := a.Assess(tc.req)
			assert.Equal(t, tc.want, q.Breakdown["completeness"])
		})
	}
}

func TestAssessTimelinessBands(t *testing.T) {
	a := NewAssessorWithJitter(noJitter)

	cases := []struct {
		age  time.Duration
		want float64
	}{
		{30 * time.Minute, 1.0},
		{12 * time.Hour, 0.8},
		{100 * time.Hour, 0.5},
		{400 * time.Hour, 0.2},
	}
	for _, tc := range cases {
		req := fullSubmission()
		req.Timestamp = time.Now().UTC().Add(-tc.age)
		q := a.Assess(req)
		assert.Equal(t, tc.want, q.Breakdown["timeliness"], "age %v", tc.age)
	}
}

func TestAssessSourceBaseWeights(t *testing.T) {
	a := NewAssessorWithJitter(noJitter)

	// Bare submissions: only the base weight and the not-in-future bonus apply.
	base := func(source string) float64 {
		q := a.Assess(models.CreateMetricRequest{
			BondID:     "b",
			MetricType: "t",
			SourceType: source,
			Timestamp:  time.Now().UTC().Add(-time.Minute),
		})
		return q.Score
	}

	assert.InDelta(t, 0.6, base(models.SourceSmartMeter), 1e-9)
	assert.InDelta(t, 0.5, base(models.SourceSensor), 1e-9)
	assert.InDelta(t, 0.5, base(models.SourceAPIIntegration), 1e-9)
	assert.InDelta(t, 0.3, base(models.SourceManualEntry), 1e-9)
	assert.InDelta(t, 0.4, base(models.SourceCalculated), 1e-9)
}

func TestAssessFutureTimestampLosesBonus(t *testing.T) {
	a := NewAssessorWithJitter(noJitter)
	req := fullSubmission()
	req.Timestamp = time.Now().UTC().Add(30 * time.Minute)
	q := a.Assess(req)
	// 0.4 + 0.2 + 0.2 + 0.1, no timestamp bonus.
	assert.InDelta(t, 0.9, q.Score, 1e-9)
}

func TestAssessStatusBanding(t *testing.T) {
	cases := []struct {
		jitter float64
		source string
		want   string
	}{
		{0.0, models.SourceManualEntry, models.QualityUnacceptable}, // 0.1 base + 0.2 timestamp
		{0.15, models.SourceSensor, models.QualityFair},             // 0.3 + 0.2 + 0.15 jitter
	}
	for _, tc := range cases {
		a := NewAssessorWithJitter(func() float64 { return tc.jitter })
		q := a.Assess(models.CreateMetricRequest{
			BondID: "b", MetricType: "t", SourceType: tc.source,
			Timestamp: time.Now().UTC().Add(-time.Minute),
		})
		assert.Equal(t, tc.want, q.Status)
	}

	require.Equal(t, models.QualityExcellent, statusFor(0.9))
	require.Equal(t, models.QualityGood, statusFor(0.8))
	require.Equal(t, models.QualityFair, statusFor(0.6))
	require.Equal(t, models.QualityPoor, statusFor(0.4))
	require.Equal(t, models.QualityUnacceptable, statusFor(0.39))
}

func TestAssessJitterIsBounded(t *testing.T) {
	a := NewAssessor()
	req := models.CreateMetricRequest{
		BondID: "b", MetricType: "t",
		SourceType: models.SourceManualEntry,
	}
	for i := 0; i < 200; i++ {
		q := a.Assess(req)
		// 0.1 base + 0.2 for the (zero-valued, hence past) timestamp; jitter
		// may add at most MaxJitter on top.
		assert.GreaterOrEqual(t, q.Score, 0.3)
		assert.Less(t, q.Score, 0.3+MaxJitter)
	}
}
