package cron

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/internal/checkout"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

type ReconciliationReportJobParams struct {
	Logger     *logger.Logger
	Repository reconciliationRepo
}

type reconciliationRepo interface {
	SummarizeOpenIssues(ctx context.Context) ([]checkout.IssueSummary, error)
}

// NewReconciliationReportJob logs the seller credits checkout had to skip so
// operators can settle them by hand.
func NewReconciliationReportJob(params ReconciliationReportJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("reconciliation repository required")
	}
	return &reconciliationReportJob{logg: params.Logger, repo: params.Repository}, nil
}

type reconciliationReportJob struct {
	logg *logger.Logger
	repo reconciliationRepo
}

func (j *reconciliationReportJob) Name() string { return "reconciliation-report" }

func (j *reconciliationReportJob) Run(ctx context.Context) error {
	summaries, err := j.repo.SummarizeOpenIssues(ctx)
	if err != nil {
		return fmt.Errorf("summarize reconciliation issues: %w", err)
	}
	if len(summaries) == 0 {
		j.logg.Info(ctx, "no open reconciliation issues")
		return nil
	}

	var total int64
	amount := decimal.Zero
	for _, summary := range summaries {
		total += summary.Count
		amount = amount.Add(summary.Amount)
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
			"reason": summary.Reason,
			"count":  summary.Count,
			"amount": summary.Amount.StringFixed(2),
		}), "open reconciliation issues")
	}
	j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
		"count":  total,
		"amount": amount.StringFixed(2),
	}), "unsettled seller credits")
	return nil
}
