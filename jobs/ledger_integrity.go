package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

const defaultIntegrityLimit = 100

// LedgerIntegrityPayload bounds how many violations one scan reports.
type LedgerIntegrityPayload struct {
	Limit int `json:"limit"`
}

// NewLedgerIntegrityTask constructs an Asynq task for the integrity scan.
func NewLedgerIntegrityTask(limit int) (*asynq.Task, error) {
	body, err := json.Marshal(LedgerIntegrityPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, body, asynq.Queue(QueueDefault)), nil
}

// LedgerIntegrityJob verifies that every posted source document still
// balances. Any hit is a bug in the posting path and is logged at error
// level for alerting.
type LedgerIntegrityJob struct {
	repo   *ledger.Repository
	logger *slog.Logger
}

// NewLedgerIntegrityJob constructs the job.
func NewLedgerIntegrityJob(repo *ledger.Repository, logger *slog.Logger) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{repo: repo, logger: logger}
}

// Handle processes TaskLedgerIntegrity tasks.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload LedgerIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	limit := payload.Limit
	if limit <= 0 {
		limit = defaultIntegrityLimit
	}

	violations, err := j.repo.FindUnbalancedSources(ctx, limit)
	if err != nil {
		j.logger.Error("ledger integrity scan failed", slog.Any("error", err))
		return err
	}
	if len(violations) == 0 {
		j.logger.Info("ledger integrity scan clean")
		return nil
	}
	for _, v := range violations {
		j.logger.Error("unbalanced source document",
			slog.Int64("business_id", v.BusinessID),
			slog.String("source_type", string(v.SourceType)),
			slog.String("source_id", v.SourceID.String()),
			slog.String("debit", v.Debit.StringFixed(2)),
			slog.String("credit", v.Credit.StringFixed(2)))
	}
	j.logger.Error("ledger integrity scan found violations", slog.Int("count", len(violations)))
	return nil
}
