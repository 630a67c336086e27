// Package scheduler runs the recurring bulk goal evaluation.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"impact-service/internal/models"
)

// DefaultSchedule runs the bulk evaluation once per day, off-peak.
const DefaultSchedule = "0 2 * * *"

// GoalEvaluator is the slice of the goal service the scheduler drives.
type GoalEvaluator interface {
	EvaluateAll(ctx context.Context, correlationID string) models.EvaluationSummary
}

// Service owns the cron runner for scheduled recomputation.
type Service struct {
	cronRunner *cron.Cron
	evaluator  GoalEvaluator
	schedule   string
}

// NewService creates the scheduler. An empty schedule falls back to the
// daily default.
func NewService(evaluator GoalEvaluator, schedule string) *Service {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Service{
		evaluator: evaluator,
		schedule:  schedule,
		cronRunner: cron.New(
			cron.WithChain(
				cron.SkipIfStillRunning(cron.DefaultLogger),
				cron.Recover(cron.DefaultLogger),
			),
		),
	}
}

// runEvaluation is called by the cron job. Each run carries its own
// correlation id so batch log lines can be tied together.
func (s *Service) runEvaluation() {
	correlationID := uuid.NewString()
	log.Printf("[%s] scheduled bulk goal evaluation starting", correlationID)
	s.evaluator.EvaluateAll(context.Background(), correlationID)
}

// Start registers the evaluation job and starts the cron runner
// (non-blocking).
func (s *Service) Start() error {
	entryID, err := s.cronRunner.AddFunc(s.schedule, s.runEvaluation)
	if err != nil {
		return fmt.Errorf("failed to schedule bulk goal evaluation with cron '%s': %w", s.schedule, err)
	}
	log.Printf("Scheduled bulk goal evaluation, EntryID: %d, Cron: '%s'", entryID, s.schedule)

	s.cronRunner.Start()
	log.Println("Cron runner started.")
	return nil
}

// Stop gracefully shuts down the cron runner, waiting for a running job to
// complete.
func (s *Service) Stop() {
	log.Println("Stopping cron runner... waiting for jobs to complete.")
	ctx := s.cronRunner.Stop()
	select {
	case <-ctx.Done():
		log.Println("Cron runner stopped gracefully.")
	case <-time.After(15 * time.Second):
		log.Println("Cron runner shutdown timed out.")
	}
}
