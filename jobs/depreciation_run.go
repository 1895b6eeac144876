package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/assets"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// DepreciationRunPayload scopes a bulk depreciation run to one business.
type DepreciationRunPayload struct {
	BusinessID int64  `json:"business_id"`
	ActorID    int64  `json:"actor_id"`
	Date       string `json:"date"`
}

// NewDepreciationRunTask constructs an Asynq task for a bulk run.
func NewDepreciationRunTask(payload DepreciationRunPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDepreciationRun, body, asynq.Queue(QueueDefault)), nil
}

// DepreciationRunner is the slice of the assets service the job drives.
type DepreciationRunner interface {
	RunBulkDepreciation(ctx context.Context, authz shared.AuthorizationContext, date time.Time) ([]assets.BulkResult, error)
}

// DepreciationRunJob executes scheduled depreciation runs.
type DepreciationRunJob struct {
	runner DepreciationRunner
	logger *slog.Logger
}

// NewDepreciationRunJob constructs the job.
func NewDepreciationRunJob(runner DepreciationRunner, logger *slog.Logger) *DepreciationRunJob {
	return &DepreciationRunJob{runner: runner, logger: logger}
}

// Handle processes TaskDepreciationRun tasks. Per-asset failures are
// reported inside the result set, so the task itself only fails when the
// whole run could not start.
func (j *DepreciationRunJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload DepreciationRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.BusinessID == 0 {
		return asynq.SkipRetry
	}

	var date time.Time
	if payload.Date != "" {
		parsed, err := time.Parse(time.DateOnly, payload.Date)
		if err != nil {
			return asynq.SkipRetry
		}
		date = parsed
	}

	authz := shared.AuthorizationContext{BusinessID: payload.BusinessID, ActorID: payload.ActorID}
	results, err := j.runner.RunBulkDepreciation(ctx, authz, date)
	if err != nil {
		j.logger.Error("depreciation run failed",
			slog.Int64("business_id", payload.BusinessID),
			slog.Any("error", err))
		return err
	}

	posted, skipped := 0, 0
	for _, r := range results {
		if r.Err == nil {
			posted++
		} else if errors.Is(r.Err, assets.ErrFullyDepreciated) {
			skipped++
		} else {
			skipped++
			j.logger.Warn("depreciation run: asset failed",
				slog.Int64("business_id", payload.BusinessID),
				slog.String("asset_id", r.AssetID.String()),
				slog.Any("error", r.Err))
		}
	}
	j.logger.Info("depreciation run completed",
		slog.Int64("business_id", payload.BusinessID),
		slog.Int("posted", posted),
		slog.Int("skipped", skipped))
	return nil
}
