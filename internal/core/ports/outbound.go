package ports

import (
	"context"
	"io"

	"github.com/kirillkom/loansphere/internal/core/domain"
)

// LoanClassifier is the pre-trained model. Rows follow FeatureNames order.
type LoanClassifier interface {
	Name() string
	FeatureNames() []string
	Predict(ctx context.Context, rows [][]float64) ([]int64, error)
}

// TableCodec reads and writes tables in the supported file formats.
type TableCodec interface {
	Decode(ctx context.Context, format domain.Format, r io.Reader) (*domain.Table, error)
	Encode(ctx context.Context, format domain.Format, tableName string, t *domain.Table) ([]byte, error)
}

// SessionStore keeps bulk sessions between requests.
type SessionStore interface {
	Save(ctx context.Context, session *domain.BulkSession) error
	Get(ctx context.Context, id string) (*domain.BulkSession, error)
}

// ObjectStorage archives uploaded source files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// RunRecorder receives an audit record for every completed prediction.
type RunRecorder interface {
	RecordRun(ctx context.Context, run domain.PredictionRun) error
}

// RunRepository persists and reads prediction runs.
type RunRepository interface {
	RunRecorder
	ListRuns(ctx context.Context, limit int) ([]domain.PredictionRun, error)
}

// RunEventSubscriber delivers prediction runs published by API instances.
type RunEventSubscriber interface {
	SubscribeRuns(ctx context.Context, handler func(context.Context, domain.PredictionRun) error) error
}
