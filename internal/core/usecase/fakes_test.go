package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/kirillkom/loansphere/internal/core/domain"
)

type classifierFake struct {
	features []string
	rows     [][]float64
	err      error
	// approve rows whose first feature is above threshold
	threshold float64
}

func (f *classifierFake) Name() string { return "FakeClassifier" }

func (f *classifierFake) FeatureNames() []string { return f.features }

func (f *classifierFake) Predict(_ context.Context, rows [][]float64) ([]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.rows = rows
	out := make([]int64, len(rows))
	for i, row := range rows {
		if row[0] > f.threshold {
			out[i] = domain.ClassApproved
		}
	}
	return out, nil
}

type recorderFake struct {
	mu   sync.Mutex
	runs []domain.PredictionRun
	err  error
}

func (f *recorderFake) RecordRun(_ context.Context, run domain.PredictionRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.runs = append(f.runs, run)
	return nil
}

type sessionStoreFake struct {
	sessions map[string]*domain.BulkSession
}

func newSessionStoreFake() *sessionStoreFake {
	return &sessionStoreFake{sessions: make(map[string]*domain.BulkSession)}
}

func (f *sessionStoreFake) Save(_ context.Context, s *domain.BulkSession) error {
	f.sessions[s.ID] = s
	return nil
}

func (f *sessionStoreFake) Get(_ context.Context, id string) (*domain.BulkSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "get session", errors.New(id))
	}
	return s, nil
}

type codecFake struct {
	table       *domain.Table
	decodeErr   error
	decodedBody string
	decodedFmt  domain.Format
	encodedName string
	encoded     *domain.Table
}

func (f *codecFake) Decode(_ context.Context, format domain.Format, r io.Reader) (*domain.Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.decodedBody = string(raw)
	f.decodedFmt = format
	if f.decodeErr != nil {
		return nil, f.decodeErr
	}
	return f.table, nil
}

func (f *codecFake) Encode(_ context.Context, format domain.Format, tableName string, t *domain.Table) ([]byte, error) {
	f.encodedName = tableName
	f.encoded = t
	return []byte(string(format) + ":" + strings.Join(t.ColumnNames(), ",")), nil
}

type archiveFake struct {
	key  string
	body string
	err  error
}

func (f *archiveFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.key = key
	f.body = string(raw)
	return nil
}

func (f *archiveFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.body)), nil
}
