package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impact-service/internal/models"
)

type fakeEvaluator struct {
	mu   sync.Mutex
	runs []string
}

func (f *fakeEvaluator) EvaluateAll(ctx context.Context, correlationID string) models.EvaluationSummary {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, correlationID)
	return models.EvaluationSummary{Attempted: 1}
}

func (f *fakeEvaluator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

func TestServiceRejectsBadSchedule(t *testing.T) {
	svc := NewService(&fakeEvaluator{}, "not a cron expression")
	require.Error(t, svc.Start())
}

func TestServiceDefaultsSchedule(t *testing.T) {
	svc := NewService(&fakeEvaluator{}, "")
	assert.Equal(t, DefaultSchedule, svc.schedule)
}

func TestServiceStartAndStop(t *testing.T) {
	eval := &fakeEvaluator{}
	svc := NewService(eval, "@every 1h")
	require.NoError(t, svc.Start())
	svc.Stop()
	// The hourly job never fired within the test window.
	assert.Equal(t, 0, eval.count())
}

func TestRunEvaluationUsesFreshCorrelationIDs(t *testing.T) {
	eval := &fakeEvaluator{}
	svc := NewService(eval, "@every 1h")

	svc.runEvaluation()
	svc.runEvaluation()

	require.Equal(t, 2, eval.count())
	assert.NotEqual(t, eval.runs[0], eval.runs[1])

	// Guard against surprising hangs in Stop when nothing ran.
	done := make(chan struct{})
	go func() {
		svc.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}
