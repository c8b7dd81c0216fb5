package ports

import (
	"context"
	"io"

	"github.com/kirillkom/loansphere/internal/core/domain"
)

// LoanPredictor is the inbound contract for single-applicant prediction.
type LoanPredictor interface {
	Predict(ctx context.Context, app domain.LoanApplication) (*domain.Prediction, error)
}

// BulkPredictionService drives the upload → predict → download flow.
type BulkPredictionService interface {
	Upload(ctx context.Context, filename string, body io.Reader) (*domain.BulkUpload, error)
	Predict(ctx context.Context, sessionID string) (*domain.BulkResult, error)
	Export(ctx context.Context, sessionID string, format domain.Format) (*domain.Export, error)
}

// SampleProvider serves the bulk upload template.
type SampleProvider interface {
	Sample(ctx context.Context, format domain.Format) (*domain.Export, error)
}

// SummaryReader exposes dataset and model facts.
type SummaryReader interface {
	Summary(ctx context.Context) (domain.DatasetSummary, error)
}

// RunReader lists recorded prediction runs.
type RunReader interface {
	ListRuns(ctx context.Context, limit int) ([]domain.PredictionRun, error)
}
