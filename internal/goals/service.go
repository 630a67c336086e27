// Package goals owns impact-goal lifecycle and the progress engine that turns
// aggregated metric history into a qualitative project-health signal.
package goals

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"impact-service/internal/models"
	"impact-service/internal/timeseries"
)

// maxGoalHorizon caps how far out a target date may be declared.
const maxGoalHorizon = 10 * 365 * 24 * time.Hour

// DefaultEvalWorkers bounds the bulk-evaluation worker pool.
const DefaultEvalWorkers = 4

// dueSoonWindow is the dashboard's "deadline approaching" horizon.
const dueSoonWindow = 30 * 24 * time.Hour

var hundred = decimal.NewFromInt(100)

// Service manages goal definitions and recomputes their progress from the
// aggregator's per-type summaries.
type Service struct {
	db      *gorm.DB
	agg     *timeseries.Aggregator
	workers int
	now     func() time.Time
}

// NewService wires the goal engine. workers <= 0 falls back to the default
// pool size.
func NewService(db *gorm.DB, agg *timeseries.Aggregator, workers int) *Service {
	if workers <= 0 {
		workers = DefaultEvalWorkers
	}
	return &Service{
		db:      db,
		agg:     agg,
		workers: workers,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create validates and persists a new goal. Exactly one goal may exist per
// (bond, metric type) pair; a second declaration is a conflict.
func (s *Service) Create(ctx context.Context, req models.CreateGoalRequest) (*models.ImpactGoal, error) {
	now := s.now()

	if req.TargetValue == nil {
		return nil, &models.ValidationError{Field: "target_value", Reason: "target value is required"}
	}
	if !models.ValidUnits[req.Unit] {
		return nil, &models.ValidationError{Field: "unit", Reason: "unknown unit " + req.Unit}
	}
	if !req.TargetDate.After(now) {
		return nil, &models.ValidationError{Field: "target_date", Reason: "target date must be in the future"}
	}
	if req.TargetDate.After(now.Add(maxGoalHorizon)) {
		return nil, &models.ValidationError{Field: "target_date", Reason: "target date must be at most 10 years out"}
	}

	baseline := decimal.Zero
	if req.BaselineValue != nil {
		baseline = *req.BaselineValue
	}
	baselineDate := now
	if req.BaselineDate != nil {
		baselineDate = req.BaselineDate.UTC()
	}
	if !req.TargetValue.GreaterThan(baseline) {
		return nil, &models.ValidationError{Field: "target_value", Reason: "target value must exceed the baseline"}
	}

	var existing models.ImpactGoal
	err := s.db.WithContext(ctx).
		Where("bond_id = ? AND metric_type = ?", req.BondID, req.MetricType).
		First(&existing).Error
	if err == nil {
		return nil, &models.ConflictError{Reason: "a goal for this bond and metric type already exists"}
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &models.StorageError{Op: "goal duplicate check", Err: err}
	}

	goal := models.ImpactGoal{
		ID:                 uuid.New(),
		BondID:             req.BondID,
		ProjectID:          req.ProjectID,
		Name:               req.Name,
		Description:        req.Description,
		MetricType:         req.MetricType,
		TargetValue:        *req.TargetValue,
		Unit:               req.Unit,
		TargetDate:         req.TargetDate.UTC(),
		BaselineValue:      baseline,
		BaselineDate:       baselineDate,
		CurrentValue:       baseline,
		ProgressPercent:    decimal.Zero,
		Status:             models.GoalNotStarted,
		KPIs:               datatypes.JSONMap(req.KPIs),
		VerificationMethod: req.VerificationMethod,
		ReportingFrequency: req.ReportingFrequency,
		Version:            1,
	}

	if err := s.db.WithContext(ctx).Create(&goal).Error; err != nil {
		// The unique index still guards the race between the pre-check and
		// the insert.
		if isUniqueViolation(err) {
			return nil, &models.ConflictError{Reason: "a goal for this bond and metric type already exists"}
		}
		return nil, &models.StorageError{Op: "goal insert", Err: err}
	}
	return &goal, nil
}

// Get looks a goal up by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.ImpactGoal, error) {
	var goal models.ImpactGoal
	if err := s.db.WithContext(ctx).First(&goal, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &models.NotFoundError{Resource: "goal", ID: id.String()}
		}
		return nil, &models.StorageError{Op: "goal lookup", Err: err}
	}
	return &goal, nil
}

// ListByBond returns all goals declared for one bond.
func (s *Service) ListByBond(ctx context.Context, bondID string) ([]models.ImpactGoal, error) {
	var goals []models.ImpactGoal
	err := s.db.WithContext(ctx).
		Where("bond_id = ?", bondID).
		Order("created_at asc").
		Find(&goals).Error
	if err != nil {
		return nil, &models.StorageError{Op: "goal list", Err: err}
	}
	return goals, nil
}

// Delete removes a goal by explicit administrative action.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Delete(&models.ImpactGoal{}, "id = ?", id)
	if res.Error != nil {
		return &models.StorageError{Op: "goal delete", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return &models.NotFoundError{Resource: "goal", ID: id.String()}
	}
	return nil
}

// Evaluate recomputes one goal's current value, progress and status from the
// aggregator summary and persists the result if anything changed. It reports
// whether a change occurred; re-running it with no new metrics is a no-op.
func (s *Service) Evaluate(ctx context.Context, id uuid.UUID) (*models.ImpactGoal, bool, error) {
	goal, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	changed, err := s.evaluate(ctx, goal)
	return goal, changed, err
}

// evaluate runs the state machine against the given goal, mutating it in
// place when a change is persisted.
func (s *Service) evaluate(ctx context.Context, goal *models.ImpactGoal) (bool, error) {
	if goal.Status == models.GoalCancelled {
		return false, nil
	}

	totals, err := s.agg.Summarize(ctx, goal.BondID)
	if err != nil {
		return false, err
	}

	// An absent type is "no new information this cycle", not a reset to
	// zero: keep the existing current value.
	current, ok := totals[goal.MetricType]
	if !ok {
		return false, nil
	}

	progress := progressPercent(current, goal.BaselineValue, goal.TargetValue)
	status := s.deriveStatus(goal, progress)

	if current.Equal(goal.CurrentValue) && progress.Equal(goal.ProgressPercent) && status == goal.Status {
		return false, nil
	}

	// Optimistic write: a concurrent evaluation that bumped the version wins
	// and this cycle's result is discarded; the next pass recomputes.
	res := s.db.WithContext(ctx).Model(&models.ImpactGoal{}).
		Where("id = ? AND version = ?", goal.ID, goal.Version).
		Updates(map[string]interface{}{
			"current_value":    current,
			"progress_percent": progress,
			"status":           status,
			"version":          goal.Version + 1,
		})
	if res.Error != nil {
		return false, &models.StorageError{Op: "goal progress update", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return false, &models.ConflictError{Reason: "goal was modified concurrently"}
	}

	goal.CurrentValue = current
	goal.ProgressPercent = progress
	goal.Status = status
	goal.Version++
	return true, nil
}

// progressPercent computes (current-baseline)/(target-baseline)*100 clamped
// to [0, 100]. A degenerate target==baseline yields 0.
func progressPercent(current, baseline, target decimal.Decimal) decimal.Decimal {
	denom := target.Sub(baseline)
	if denom.IsZero() {
		return decimal.Zero
	}
	p := current.Sub(baseline).Div(denom).Mul(hundred)
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}

// deriveStatus applies the status rules in order: achievement first, then the
// missed deadline, then the pace ratio against the expected schedule.
func (s *Service) deriveStatus(goal *models.ImpactGoal, progress decimal.Decimal) string {
	now := s.now()

	if progress.GreaterThanOrEqual(hundred) {
		return models.GoalAchieved
	}
	if goal.TargetDate.Before(now) {
		return models.GoalBehindSchedule
	}

	totalDays := goal.TargetDate.Sub(goal.CreatedAt).Hours() / 24
	if totalDays <= 0 {
		return models.GoalInProgress
	}
	elapsedDays := now.Sub(goal.CreatedAt).Hours() / 24
	expected := elapsedDays / totalDays * 100
	if expected <= 0 {
		return models.GoalInProgress
	}

	p, _ := progress.Float64()
	ratio := p / expected
	switch {
	case ratio >= 1.1:
		return models.GoalExceeded
	case ratio >= 0.9:
		return models.GoalOnTrack
	case ratio >= 0.7:
		return models.GoalAtRisk
	default:
		return models.GoalBehindSchedule
	}
}

// EvaluateAll recomputes every non-cancelled goal across a bounded worker
// pool. Single-goal failures are soft: logged, counted, and the batch keeps
// going. One summary line is logged per run under the given correlation id.
func (s *Service) EvaluateAll(ctx context.Context, correlationID string) models.EvaluationSummary {
	var goals []models.ImpactGoal
	err := s.db.WithContext(ctx).
		Where("status <> ?", models.GoalCancelled).
		Find(&goals).Error
	if err != nil {
		log.Printf("[%s] bulk goal evaluation aborted, cannot list goals: %v", correlationID, err)
		return models.EvaluationSummary{}
	}

	var updated, failed int64
	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup

	for i := range goals {
		goal := &goals[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			changed, err := s.evaluate(ctx, goal)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				log.Printf("[%s] evaluation failed for goal %s: %v", correlationID, goal.ID, err)
				return
			}
			if changed {
				atomic.AddInt64(&updated, 1)
			}
		}()
	}
	wg.Wait()

	summary := models.EvaluationSummary{
		Attempted: len(goals),
		Updated:   int(updated),
		Failed:    int(failed),
	}
	log.Printf("[%s] bulk goal evaluation finished: attempted=%d updated=%d failed=%d",
		correlationID, summary.Attempted, summary.Updated, summary.Failed)
	return summary
}

// Dashboard aggregates goal health for one bond: counts per status, mean
// progress, and goals due within 30 days that are not yet met.
func (s *Service) Dashboard(ctx context.Context, bondID string) (*models.GoalDashboard, error) {
	goals, err := s.ListByBond(ctx, bondID)
	if err != nil {
		return nil, err
	}

	dash := &models.GoalDashboard{
		BondID:       bondID,
		TotalGoals:   len(goals),
		StatusCounts: make(map[string]int),
	}

	now := s.now()
	dueCutoff := now.Add(dueSoonWindow)
	sum := decimal.Zero
	for _, g := range goals {
		dash.StatusCounts[g.Status]++
		sum = sum.Add(g.ProgressPercent)
		if g.Status != models.GoalAchieved && g.Status != models.GoalExceeded &&
			g.TargetDate.After(now) && g.TargetDate.Before(dueCutoff) {
			dash.DueSoon++
		}
	}
	if len(goals) > 0 {
		dash.AverageProgress = sum.Div(decimal.NewFromInt(int64(len(goals))))
	}
	return dash, nil
}

// isUniqueViolation recognizes postgres unique-violation (23505) from either
// driver in play: lib/pq or pgx underneath gorm's postgres driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	type sqlStater interface{ SQLState() string }
	var se sqlStater
	if errors.As(err, &se) {
		return se.SQLState() == "23505"
	}
	return false
}
