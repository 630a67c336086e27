// Package quality scores the trustworthiness of metric submissions.
package quality

import (
	"math/rand"
	"time"

	"gorm.io/datatypes"

	"impact-service/internal/models"
)

// MaxJitter bounds the random noise term added to every score. The jitter
// models residual sensor uncertainty and is injectable so tests can pin it.
const MaxJitter = 0.05

// requiredFields is the denominator of the completeness component: bond id,
// metric type, value, unit, timestamp.
const requiredFields = 5

// sourceBaseWeights are the per-source starting scores. Automated, metered
// sources are trusted more than hand-entered data.
var sourceBaseWeights = map[string]float64{
	models.SourceSmartMeter:     0.4,
	models.SourceSensor:         0.3,
	models.SourceAPIIntegration: 0.3,
	models.SourceManualEntry:    0.1,
}

const defaultBaseWeight = 0.2

// sourceAccuracy is the reliability constant reported in the quality
// breakdown for each source type.
var sourceAccuracy = map[string]float64{
	models.SourceSmartMeter:     0.95,
	models.SourceSensor:         0.85,
	models.SourceAPIIntegration: 0.85,
	models.SourceWeatherStation: 0.8,
	models.SourceCalculated:     0.75,
	models.SourceExternalSystem: 0.7,
	models.SourceDocumentUpload: 0.65,
	models.SourceManualEntry:    0.6,
}

const defaultAccuracy = 0.7

// sourceNoiseFactors estimate measurement noise as a fraction of the reported
// value, used for the single-observation standard deviation estimate.
var sourceNoiseFactors = map[string]float64{
	models.SourceSmartMeter:     0.02,
	models.SourceSensor:         0.05,
	models.SourceAPIIntegration: 0.05,
	models.SourceManualEntry:    0.10,
}

const defaultNoiseFactor = 0.08

// verificationMethods maps each source type to the method recorded on the
// quality assessment.
var verificationMethods = map[string]string{
	models.SourceSmartMeter:     "AUTOMATIC_METER_READING",
	models.SourceSensor:         "IOT_SENSOR",
	models.SourceAPIIntegration: "THIRD_PARTY_API",
	models.SourceManualEntry:    "MANUAL_VERIFICATION",
	models.SourceCalculated:     "CALCULATED",
	models.SourceExternalSystem: "EXTERNAL_AUDIT",
	models.SourceDocumentUpload: "DOCUMENT_REVIEW",
	models.SourceWeatherStation: "WEATHER_DATA",
}

// Assessor computes a DataQuality record for a metric submission. It is a
// pure function of the submission except for the jitter term.
type Assessor struct {
	jitter func() float64
	now    func() time.Time
}

// NewAssessor returns an assessor with randomized jitter in [0, MaxJitter).
func NewAssessor() *Assessor {
	return &Assessor{
		jitter: func() float64 { return rand.Float64() * MaxJitter },
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NewAssessorWithJitter returns an assessor with a caller-supplied jitter
// source, used by tests to make scores deterministic.
func NewAssessorWithJitter(jitter func() float64) *Assessor {
	a := NewAssessor()
	a.jitter = jitter
	return a
}

// Assess scores a submission. It has no error conditions and always returns
// a value; incomplete submissions simply score lower.
func (a *Assessor) Assess(req models.CreateMetricRequest) models.DataQuality {
	now := a.now()

	score := baseWeight(req.SourceType)
	if req.DeviceID != "" {
		score += 0.2
	}
	if req.Location != "" {
		score += 0.2
	}
	if len(req.Metadata) > 0 {
		score += 0.1
	}
	if !req.Timestamp.After(now) {
		score += 0.2
	}
	score += a.jitter()
	score = clamp01(score)

	return models.DataQuality{
		Score:        score,
		Verified:     score > 0.8,
		Method:       verificationMethod(req.SourceType),
		DataPoints:   1,
		StdDeviation: estimatedStdDev(req),
		Status:       statusFor(score),
		Breakdown: datatypes.JSONMap{
			"completeness": completeness(req),
			"timeliness":   timeliness(now.Sub(req.Timestamp)),
			"accuracy":     accuracy(req.SourceType),
			"consistency":  consistency(req),
		},
	}
}

func baseWeight(sourceType string) float64 {
	if w, ok := sourceBaseWeights[sourceType]; ok {
		return w
	}
	return defaultBaseWeight
}

func accuracy(sourceType string) float64 {
	if a, ok := sourceAccuracy[sourceType]; ok {
		return a
	}
	return defaultAccuracy
}

func verificationMethod(sourceType string) string {
	if m, ok := verificationMethods[sourceType]; ok {
		return m
	}
	return "UNVERIFIED"
}

// completeness is the fraction of the five required fields that are present.
func completeness(req models.CreateMetricRequest) float64 {
	filled := 0
	if req.BondID != "" {
		filled++
	}
	if req.MetricType != "" {
		filled++
	}
	if req.Value != nil {
		filled++
	}
	if req.Unit != "" {
		filled++
	}
	if !req.Timestamp.IsZero() {
		filled++
	}
	return float64(filled) / requiredFields
}

// timeliness bands the submission's age. Future-dated timestamps land in the
// freshest band; the validation layer caps how far in the future they may be.
func timeliness(age time.Duration) float64 {
	switch {
	case age <= time.Hour:
		return 1.0
	case age <= 24*time.Hour:
		return 0.8
	case age <= 168*time.Hour:
		return 0.5
	default:
		return 0.2
	}
}

// consistency reflects whether the reading can be tied to a registered device.
func consistency(req models.CreateMetricRequest) float64 {
	if req.DeviceID != "" {
		return 1.0
	}
	return 0.8
}

// estimatedStdDev models noise for a single observation as a per-source
// fraction of the reported value.
func estimatedStdDev(req models.CreateMetricRequest) float64 {
	if req.Value == nil {
		return 0
	}
	factor, ok := sourceNoiseFactors[req.SourceType]
	if !ok {
		factor = defaultNoiseFactor
	}
	v, _ := req.Value.Abs().Float64()
	return v * factor
}

func statusFor(score float64) string {
	switch {
	case score >= 0.9:
		return models.QualityExcellent
	case score >= 0.8:
		return models.QualityGood
	case score >= 0.6:
		return models.QualityFair
	case score >= 0.4:
		return models.QualityPoor
	default:
		return models.QualityUnacceptable
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
