package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/loansphere/internal/core/domain"
	"github.com/kirillkom/loansphere/internal/core/ports"
)

type SummaryUseCase struct {
	summary domain.DatasetSummary
}

// NewSummaryUseCase captures dataset counts computed at startup.
func NewSummaryUseCase(totalRecords, approvedLoans int, classifier ports.LoanClassifier) *SummaryUseCase {
	return &SummaryUseCase{summary: domain.DatasetSummary{
		TotalRecords:  totalRecords,
		ApprovedLoans: approvedLoans,
		ModelType:     classifier.Name(),
		ModelFeatures: classifier.FeatureNames(),
	}}
}

func (uc *SummaryUseCase) Summary(context.Context) (domain.DatasetSummary, error) {
	out := uc.summary
	out.ModelFeatures = append([]string(nil), uc.summary.ModelFeatures...)
	return out, nil
}

type ListRunsUseCase struct {
	reader       ports.RunReader
	defaultLimit int
}

// NewListRunsUseCase serves run history. reader is nil when no history
// database is configured.
func NewListRunsUseCase(reader ports.RunReader, defaultLimit int) *ListRunsUseCase {
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	return &ListRunsUseCase{reader: reader, defaultLimit: defaultLimit}
}

func (uc *ListRunsUseCase) ListRuns(ctx context.Context, limit int) ([]domain.PredictionRun, error) {
	if uc.reader == nil {
		return nil, domain.WrapError(domain.ErrNotReady, "list runs", fmt.Errorf("run history is not configured"))
	}
	if limit < 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list runs", fmt.Errorf("limit must not be negative"))
	}
	if limit == 0 {
		limit = uc.defaultLimit
	}
	return uc.reader.ListRuns(ctx, limit)
}
