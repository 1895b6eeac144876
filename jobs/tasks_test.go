package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/meridian-erp/meridian-erp/internal/assets"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubRunner struct {
	authz   shared.AuthorizationContext
	date    time.Time
	results []assets.BulkResult
	err     error
}

func (s *stubRunner) RunBulkDepreciation(_ context.Context, authz shared.AuthorizationContext, date time.Time) ([]assets.BulkResult, error) {
	s.authz = authz
	s.date = date
	return s.results, s.err
}

func TestDepreciationRunSkipsBadPayload(t *testing.T) {
	job := NewDepreciationRunJob(nil, discardLogger())

	err := job.Handle(context.Background(), asynq.NewTask(TaskDepreciationRun, []byte("{not json")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	// A payload without a business scope is unprocessable too.
	err = job.Handle(context.Background(), asynq.NewTask(TaskDepreciationRun, []byte(`{"actor_id":7}`)))
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	err = job.Handle(context.Background(), asynq.NewTask(TaskDepreciationRun, []byte(`{"business_id":1,"date":"31-12-2025"}`)))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestDepreciationRunReportsPerAssetOutcomes(t *testing.T) {
	runner := &stubRunner{results: []assets.BulkResult{
		{AssetID: uuid.New(), Number: "AST-00001", Amount: decimal.NewFromInt(100)},
		{AssetID: uuid.New(), Number: "AST-00002", Err: assets.ErrFullyDepreciated},
		{AssetID: uuid.New(), Number: "AST-00003", Err: errors.New("posting failed")},
	}}
	job := NewDepreciationRunJob(runner, discardLogger())

	task, err := NewDepreciationRunTask(DepreciationRunPayload{BusinessID: 3, ActorID: 9, Date: "2025-01-31"})
	assert.NoError(t, err)

	// Per-asset failures are reported in the results, not via task failure.
	assert.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, int64(3), runner.authz.BusinessID)
	assert.Equal(t, int64(9), runner.authz.ActorID)
	assert.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), runner.date)
}

func TestDepreciationRunFailsWhenRunDoesNotStart(t *testing.T) {
	runner := &stubRunner{err: errors.New("database down")}
	job := NewDepreciationRunJob(runner, discardLogger())

	task, _ := NewDepreciationRunTask(DepreciationRunPayload{BusinessID: 3})
	assert.Error(t, job.Handle(context.Background(), task))
}

func TestLedgerIntegritySkipsBadPayload(t *testing.T) {
	job := NewLedgerIntegrityJob(nil, discardLogger())

	err := job.Handle(context.Background(), asynq.NewTask(TaskLedgerIntegrity, []byte("oops")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestNewDepreciationRunTask(t *testing.T) {
	task, err := NewDepreciationRunTask(DepreciationRunPayload{BusinessID: 3, ActorID: 9, Date: "2025-01-31"})
	assert.NoError(t, err)
	assert.Equal(t, TaskDepreciationRun, task.Type())
	assert.Contains(t, string(task.Payload()), `"business_id":3`)
}
