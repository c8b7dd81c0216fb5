package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/loansphere/internal/core/domain"
	"github.com/kirillkom/loansphere/internal/core/ports"
)

type PredictLoanUseCase struct {
	classifier ports.LoanClassifier
	recorder   ports.RunRecorder
	now        func() time.Time
	newID      func() string
}

func NewPredictLoanUseCase(classifier ports.LoanClassifier, recorder ports.RunRecorder) *PredictLoanUseCase {
	if recorder == nil {
		recorder = NoopRecorder{}
	}
	return &PredictLoanUseCase{
		classifier: classifier,
		recorder:   recorder,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

func (uc *PredictLoanUseCase) Predict(ctx context.Context, app domain.LoanApplication) (*domain.Prediction, error) {
	features, err := app.Features()
	if err != nil {
		return nil, err
	}
	row, err := domain.OrderFeatures(features, uc.classifier.FeatureNames())
	if err != nil {
		return nil, err
	}

	classes, err := uc.classifier.Predict(ctx, [][]float64{row})
	if err != nil {
		return nil, fmt.Errorf("model predict: %w", err)
	}
	if len(classes) != 1 {
		return nil, fmt.Errorf("model predict: expected 1 label, got %d", len(classes))
	}

	prediction := domain.NewPrediction(classes[0], uc.classifier.Name())
	approved := 0
	if prediction.Approved {
		approved = 1
	}
	recordRun(ctx, uc.recorder, domain.PredictionRun{
		ID:        uc.newID(),
		Source:    domain.RunSourceManual,
		Rows:      1,
		Approved:  approved,
		Model:     uc.classifier.Name(),
		CreatedAt: uc.now(),
	})
	return &prediction, nil
}

// NoopRecorder drops runs when no history backend is configured.
type NoopRecorder struct{}

func (NoopRecorder) RecordRun(context.Context, domain.PredictionRun) error {
	return nil
}

// recordRun is best effort: a verdict is returned even when the audit trail
// is unavailable.
func recordRun(ctx context.Context, recorder ports.RunRecorder, run domain.PredictionRun) {
	if err := recorder.RecordRun(ctx, run); err != nil {
		slog.Warn("prediction_run_record_failed",
			"run_id", run.ID,
			"source", string(run.Source),
			"error", err,
		)
	}
}
