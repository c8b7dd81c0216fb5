package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/loansphere/internal/core/domain"
	"github.com/kirillkom/loansphere/internal/core/ports"
)

const resultsBaseName = "loan_predictions"

type BulkOptions struct {
	PreviewRows  int
	ResultsTable string
}

type BulkPredictionUseCase struct {
	codec      ports.TableCodec
	classifier ports.LoanClassifier
	sessions   ports.SessionStore
	archive    ports.ObjectStorage
	recorder   ports.RunRecorder
	opts       BulkOptions
	now        func() time.Time
	newID      func() string
}

// NewBulkPredictionUseCase wires the bulk flow. archive and recorder may be nil.
func NewBulkPredictionUseCase(
	codec ports.TableCodec,
	classifier ports.LoanClassifier,
	sessions ports.SessionStore,
	archive ports.ObjectStorage,
	recorder ports.RunRecorder,
	opts BulkOptions,
) *BulkPredictionUseCase {
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = 5
	}
	if opts.ResultsTable == "" {
		opts.ResultsTable = resultsBaseName
	}
	if recorder == nil {
		recorder = NoopRecorder{}
	}
	return &BulkPredictionUseCase{
		codec:      codec,
		classifier: classifier,
		sessions:   sessions,
		archive:    archive,
		recorder:   recorder,
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

func (uc *BulkPredictionUseCase) Upload(ctx context.Context, filename string, body io.Reader) (*domain.BulkUpload, error) {
	format, err := domain.FormatFromFilename(filename)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read upload", err)
	}

	id := uc.newID()
	now := uc.now()
	if uc.archive != nil {
		key := fmt.Sprintf("%s/%s_%s", now.Format("2006/01/02"), id, sanitizeFilename(filename))
		if err := uc.archive.Save(ctx, key, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("archive upload: %w", err)
		}
	}

	table, err := uc.codec.Decode(ctx, format, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	session := &domain.BulkSession{
		ID:        id,
		Filename:  filepath.Base(filename),
		Format:    format,
		Input:     table,
		CreatedAt: now,
	}
	if err := uc.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save bulk session: %w", err)
	}

	return &domain.BulkUpload{
		SessionID: id,
		Filename:  session.Filename,
		Format:    format,
		Columns:   table.ColumnNames(),
		Rows:      table.Len(),
		Preview:   table.Head(uc.opts.PreviewRows).Records(),
	}, nil
}

func (uc *BulkPredictionUseCase) Predict(ctx context.Context, sessionID string) (*domain.BulkResult, error) {
	session, err := uc.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	rows, err := FeatureMatrix(session.Input, uc.classifier.FeatureNames())
	if err != nil {
		return nil, err
	}
	classes, err := uc.classifier.Predict(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("model predict: %w", err)
	}
	if len(classes) != len(rows) {
		return nil, fmt.Errorf("model predict: expected %d labels, got %d", len(rows), len(classes))
	}

	values := make([]any, len(classes))
	approved := 0
	for i, class := range classes {
		values[i] = class
		if class == domain.ClassApproved {
			approved++
		}
	}
	result, err := session.Input.Drop(domain.ColumnPrediction).WithColumn(domain.ColumnPrediction, values)
	if err != nil {
		return nil, fmt.Errorf("append predictions: %w", err)
	}

	updated := *session
	updated.Result = result
	if err := uc.sessions.Save(ctx, &updated); err != nil {
		return nil, fmt.Errorf("save bulk result: %w", err)
	}

	recordRun(ctx, uc.recorder, domain.PredictionRun{
		ID:        uc.newID(),
		Source:    domain.RunSourceBulk,
		Filename:  session.Filename,
		Format:    session.Format,
		Rows:      len(classes),
		Approved:  approved,
		Model:     uc.classifier.Name(),
		CreatedAt: uc.now(),
	})

	return &domain.BulkResult{
		SessionID: session.ID,
		Rows:      len(classes),
		Approved:  approved,
		Rejected:  len(classes) - approved,
		Model:     uc.classifier.Name(),
		Preview:   result.Head(uc.opts.PreviewRows).Records(),
	}, nil
}

func (uc *BulkPredictionUseCase) Export(ctx context.Context, sessionID string, format domain.Format) (*domain.Export, error) {
	session, err := uc.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Predicted() {
		return nil, domain.WrapError(domain.ErrNotReady, "export results", fmt.Errorf("session %s has no predictions yet", sessionID))
	}
	data, err := uc.codec.Encode(ctx, format, uc.opts.ResultsTable, session.Result)
	if err != nil {
		return nil, err
	}
	return &domain.Export{
		Filename:    resultsBaseName + format.Extension(),
		ContentType: format.ContentType(),
		Data:        data,
	}, nil
}

// FeatureMatrix selects the model's feature columns from t in model order and
// converts every cell to a number. Categorical columns accept either the
// training code or its display label.
func FeatureMatrix(t *domain.Table, features []string) ([][]float64, error) {
	indexes := make([]int, len(features))
	var missing []string
	for i, name := range features {
		indexes[i] = t.Lookup(name)
		if indexes[i] < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, domain.WrapError(domain.ErrModelMismatch, "select features",
			fmt.Errorf("uploaded table is missing columns %q", missing))
	}

	rows := make([][]float64, t.Len())
	var errs []error
	for r, cells := range t.Rows {
		row := make([]float64, len(features))
		for i, name := range features {
			v, err := featureValue(name, cells[indexes[i]])
			if err != nil {
				errs = append(errs, fmt.Errorf("row %d, column %q: %w", r+1, name, err))
				if len(errs) == maxCellErrors {
					return nil, domain.WrapError(domain.ErrInvalidInput, "convert features", errors.Join(errs...))
				}
				continue
			}
			row[i] = v
		}
		rows[r] = row
	}
	if len(errs) > 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "convert features", errors.Join(errs...))
	}
	return rows, nil
}

const maxCellErrors = 10

func featureValue(column string, cell any) (float64, error) {
	switch v := cell.(type) {
	case nil:
		return 0, errors.New("missing value")
	case int64:
		return float64(v), nil
	case float64:
		if math.IsNaN(v) {
			return 0, errors.New("missing value")
		}
		if math.IsInf(v, 0) {
			return 0, fmt.Errorf("value %v is not finite", v)
		}
		return v, nil
	case string:
		text := strings.TrimSpace(v)
		if canonical, ok := domain.CanonicalColumn(column); ok {
			if _, categorical := domain.CategoricalEncodings[canonical]; categorical {
				if code, err := domain.EncodeCategory(canonical, text); err == nil {
					return float64(code), nil
				}
			}
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("value %q is not numeric", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported value %v", v)
	}
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == "/" {
		return "upload.bin"
	}
	return base
}
