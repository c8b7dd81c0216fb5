package usecase

import (
	"context"

	"github.com/kirillkom/loansphere/internal/core/domain"
	"github.com/kirillkom/loansphere/internal/core/ports"
)

const sampleBaseName = "loan_sample"

type SampleUseCase struct {
	codec     ports.TableCodec
	tableName string
}

func NewSampleUseCase(codec ports.TableCodec, tableName string) *SampleUseCase {
	if tableName == "" {
		tableName = "loan_data"
	}
	return &SampleUseCase{codec: codec, tableName: tableName}
}

// SampleTable is the two-applicant upload template with pre-encoded
// categorical columns.
func SampleTable() *domain.Table {
	t, err := domain.NewTable(domain.FeatureColumns, [][]any{
		{int64(25000), int64(0), int64(720), int64(60000), int64(3), int64(4), 1200.5, int64(10), int64(0), int64(5), int64(0), int64(15000), int64(30000)},
		{int64(15000), int64(1), int64(580), int64(35000), int64(1), int64(2), 800.0, int64(5), int64(12), int64(3), int64(1), int64(8000), int64(20000)},
	})
	if err != nil {
		panic(err)
	}
	return t
}

func (uc *SampleUseCase) Sample(ctx context.Context, format domain.Format) (*domain.Export, error) {
	data, err := uc.codec.Encode(ctx, format, uc.tableName, SampleTable())
	if err != nil {
		return nil, err
	}
	return &domain.Export{
		Filename:    sampleBaseName + format.Extension(),
		ContentType: format.ContentType(),
		Data:        data,
	}, nil
}
