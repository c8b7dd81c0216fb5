package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/loansphere/internal/config"
	"github.com/kirillkom/loansphere/internal/core/domain"
	"github.com/kirillkom/loansphere/internal/observability/metrics"
)

type predictorFake struct {
	got domain.LoanApplication
	err error
}

func (f *predictorFake) Predict(_ context.Context, app domain.LoanApplication) (*domain.Prediction, error) {
	f.got = app
	if f.err != nil {
		return nil, f.err
	}
	p := domain.NewPrediction(domain.ClassApproved, "RandomForestClassifier")
	return &p, nil
}

type bulkFake struct {
	uploadedName string
	uploadedBody string
	predictErr   error
	exportErr    error
}

func (f *bulkFake) Upload(_ context.Context, filename string, body io.Reader) (*domain.BulkUpload, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	f.uploadedName = filename
	f.uploadedBody = string(raw)
	if _, err := domain.FormatFromFilename(filename); err != nil {
		return nil, err
	}
	return &domain.BulkUpload{SessionID: "s-1", Filename: filename, Format: domain.FormatCSV, Rows: 2}, nil
}

func (f *bulkFake) Predict(_ context.Context, sessionID string) (*domain.BulkResult, error) {
	if f.predictErr != nil {
		return nil, f.predictErr
	}
	if sessionID != "s-1" {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "get session", errors.New(sessionID))
	}
	return &domain.BulkResult{SessionID: sessionID, Rows: 2, Approved: 1, Rejected: 1}, nil
}

func (f *bulkFake) Export(_ context.Context, sessionID string, format domain.Format) (*domain.Export, error) {
	if f.exportErr != nil {
		return nil, f.exportErr
	}
	return &domain.Export{
		Filename:    "loan_predictions" + format.Extension(),
		ContentType: format.ContentType(),
		Data:        []byte("id,Prediction\n" + sessionID + ",1\n"),
	}, nil
}

type samplesFake struct{}

func (samplesFake) Sample(_ context.Context, format domain.Format) (*domain.Export, error) {
	return &domain.Export{
		Filename:    "loan_sample" + format.Extension(),
		ContentType: format.ContentType(),
		Data:        []byte("sample"),
	}, nil
}

type summaryFake struct{}

func (summaryFake) Summary(context.Context) (domain.DatasetSummary, error) {
	return domain.DatasetSummary{TotalRecords: 10, ApprovedLoans: 7, ModelType: "RandomForestClassifier"}, nil
}

type runsFake struct {
	limit int
	err   error
}

func (f *runsFake) ListRuns(_ context.Context, limit int) ([]domain.PredictionRun, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return []domain.PredictionRun{{ID: "r-1", Source: domain.RunSourceBulk, Rows: 2}}, nil
}

func testServices() Services {
	return Services{
		Predictor: &predictorFake{},
		Bulk:      &bulkFake{},
		Samples:   samplesFake{},
		Summary:   summaryFake{},
		Runs:      &runsFake{},
	}
}

func newTestHandler(cfg config.Config) http.Handler {
	return NewRouter(cfg, testServices(), nil).Handler()
}

func validApplication() map[string]any {
	return map[string]any{
		"current_loan_amount":          25000,
		"term":                         "Short",
		"credit_score":                 720,
		"annual_income":                60000,
		"home_ownership":               "Own",
		"purpose":                      "Wedding",
		"monthly_debt":                 1200.5,
		"years_of_credit_history":      10,
		"months_since_last_delinquent": 0,
		"number_of_open_accounts":      5,
		"number_of_credit_problems":    0,
		"current_credit_balance":       15000,
		"maximum_open_credit":          30000,
	}
}

func doJSON(t *testing.T, handler http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestHealthzEndpoint(t *testing.T) {
	res := doJSON(t, newTestHandler(config.Config{}), http.MethodGet, "/healthz", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestContractIsValid(t *testing.T) {
	c, err := loadContract(context.Background())
	if err != nil {
		t.Fatalf("loadContract() error = %v", err)
	}
	for column, field := range map[string]string{
		domain.ColumnTerm:          "term",
		domain.ColumnHomeOwnership: "home_ownership",
		domain.ColumnPurpose:       "purpose",
	} {
		enum := c.predictRequest.Properties[field].Value.Enum
		choices := domain.Choices(column)
		if len(enum) != len(choices) {
			t.Fatalf("%s enum has %d values, encoding has %d", field, len(enum), len(choices))
		}
		for i, choice := range choices {
			if enum[i] != choice {
				t.Fatalf("%s enum[%d] = %v, want %q", field, i, enum[i], choice)
			}
		}
	}

	res := doJSON(t, newTestHandler(config.Config{}), http.MethodGet, "/openapi.yaml", nil)
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "PredictRequest") {
		t.Fatalf("expected embedded contract, got %d", res.Code)
	}
}

func TestSummaryAndEncodings(t *testing.T) {
	handler := newTestHandler(config.Config{})

	res := doJSON(t, handler, http.MethodGet, "/v1/summary", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if body := decodeBody(t, res); body["approved_loans"] != float64(7) {
		t.Fatalf("unexpected summary %+v", body)
	}

	res = doJSON(t, handler, http.MethodGet, "/v1/encodings", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var opts domain.EncodingOptions
	if err := json.NewDecoder(res.Body).Decode(&opts); err != nil {
		t.Fatalf("decode encodings: %v", err)
	}
	if opts.Encodings[domain.ColumnPurpose]["Wedding"] != 15 || len(opts.Formats) != 4 {
		t.Fatalf("unexpected encodings %+v", opts)
	}
}

func TestPredictEndpoint(t *testing.T) {
	services := testServices()
	predictor := services.Predictor.(*predictorFake)
	handler := NewRouter(config.Config{}, services, nil).Handler()

	res := doJSON(t, handler, http.MethodPost, "/v1/predict", validApplication())
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	body := decodeBody(t, res)
	if body["label"] != "Loan Approved" || body["approved"] != true {
		t.Fatalf("unexpected response %+v", body)
	}
	if predictor.got.Purpose != "Wedding" || predictor.got.MonthlyDebt != 1200.5 {
		t.Fatalf("application not bound: %+v", predictor.got)
	}
}

func TestPredictRejectsSchemaViolations(t *testing.T) {
	handler := newTestHandler(config.Config{})

	cases := map[string]func(map[string]any){
		"missing field":  func(app map[string]any) { delete(app, "credit_score") },
		"low score":      func(app map[string]any) { app["credit_score"] = 120 },
		"unknown term":   func(app map[string]any) { app["term"] = "Medium" },
		"negative debt":  func(app map[string]any) { app["monthly_debt"] = -1 },
		"extra property": func(app map[string]any) { app["loan_id"] = "x" },
		"string number":  func(app map[string]any) { app["annual_income"] = "lots" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			app := validApplication()
			mutate(app)
			res := doJSON(t, handler, http.MethodPost, "/v1/predict", app)
			if res.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", res.Code)
			}
			if body := decodeBody(t, res); body["error"] == "" {
				t.Fatalf("expected error message")
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/predict", strings.NewReader("{not json"))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", res.Code)
	}
}

func TestPredictMapsModelMismatchTo422(t *testing.T) {
	services := testServices()
	services.Predictor = &predictorFake{err: domain.WrapError(domain.ErrModelMismatch, "order features", errors.New("missing Bankruptcies"))}
	handler := NewRouter(config.Config{}, services, nil).Handler()

	res := doJSON(t, handler, http.MethodPost, "/v1/predict", validApplication())
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", res.Code)
	}
}

func TestDownloadSample(t *testing.T) {
	handler := newTestHandler(config.Config{})

	res := doJSON(t, handler, http.MethodGet, "/v1/samples?format=excel", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if got := res.Header().Get("Content-Disposition"); got != `attachment; filename="loan_sample.xlsx"` {
		t.Fatalf("unexpected disposition %q", got)
	}
	if res.Header().Get("Content-Type") != domain.FormatExcel.ContentType() {
		t.Fatalf("unexpected content type %q", res.Header().Get("Content-Type"))
	}

	res = doJSON(t, handler, http.MethodGet, "/v1/samples", nil)
	if got := res.Header().Get("Content-Disposition"); got != `attachment; filename="loan_sample.csv"` {
		t.Fatalf("csv should be the default, got %q", got)
	}

	res = doJSON(t, handler, http.MethodGet, "/v1/samples?format=parquet", nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown format, got %d", res.Code)
	}
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestUploadBulk(t *testing.T) {
	services := testServices()
	bulk := services.Bulk.(*bulkFake)
	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	handler := NewRouter(config.Config{}, services, httpMetrics).Handler()

	body, contentType := multipartUpload(t, "loans.csv", "Credit Score\n700\n")
	req := httptest.NewRequest(http.MethodPost, "/v1/bulk/uploads", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	if got := decodeBody(t, res); got["session_id"] != "s-1" {
		t.Fatalf("unexpected response %+v", got)
	}
	if bulk.uploadedName != "loans.csv" || bulk.uploadedBody != "Credit Score\n700\n" {
		t.Fatalf("upload not forwarded: %q %q", bulk.uploadedName, bulk.uploadedBody)
	}

	scrape := doJSON(t, handler, http.MethodGet, "/metrics", nil)
	if !strings.Contains(scrape.Body.String(), `loansphere_bulk_uploads_total{format="csv",service="api",status="success"} 1`) {
		t.Fatalf("upload counter missing from scrape:\n%s", scrape.Body.String())
	}
}

func TestUploadBulkErrors(t *testing.T) {
	handler := newTestHandler(config.Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/bulk/uploads", bytes.NewBufferString("plain-text"))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without multipart file, got %d", res.Code)
	}

	body, contentType := multipartUpload(t, "loans.parquet", "x")
	req = httptest.NewRequest(http.MethodPost, "/v1/bulk/uploads", body)
	req.Header.Set("Content-Type", contentType)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415 for unknown extension, got %d", res.Code)
	}
}

func TestBulkPredictAndResults(t *testing.T) {
	handler := newTestHandler(config.Config{})

	res := doJSON(t, handler, http.MethodPost, "/v1/bulk/uploads/s-1/predict", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if got := decodeBody(t, res); got["approved"] != float64(1) {
		t.Fatalf("unexpected result %+v", got)
	}

	res = doJSON(t, handler, http.MethodPost, "/v1/bulk/uploads/missing/predict", nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", res.Code)
	}

	res = doJSON(t, handler, http.MethodGet, "/v1/bulk/uploads/s-1/results?format=sql", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if got := res.Header().Get("Content-Disposition"); got != `attachment; filename="loan_predictions.sql"` {
		t.Fatalf("unexpected disposition %q", got)
	}

	res = doJSON(t, handler, http.MethodGet, "/v1/bulk/uploads/s-1/predict", nil)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestBulkErrorMapping(t *testing.T) {
	services := testServices()
	services.Bulk = &bulkFake{
		predictErr: domain.WrapError(domain.ErrInvalidInput, "feature matrix", errors.New(`row 2, column "Term": missing value`)),
		exportErr:  domain.WrapError(domain.ErrNotReady, "export", errors.New("run prediction first")),
	}
	handler := NewRouter(config.Config{}, services, nil).Handler()

	res := doJSON(t, handler, http.MethodPost, "/v1/bulk/uploads/s-1/predict", nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if got := decodeBody(t, res); !strings.Contains(got["error"].(string), "row 2") {
		t.Fatalf("error should carry cell context: %+v", got)
	}

	res = doJSON(t, handler, http.MethodGet, "/v1/bulk/uploads/s-1/results", nil)
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409 before prediction, got %d", res.Code)
	}
}

func TestListRuns(t *testing.T) {
	services := testServices()
	runs := services.Runs.(*runsFake)
	handler := NewRouter(config.Config{}, services, nil).Handler()

	res := doJSON(t, handler, http.MethodGet, "/v1/runs?limit=7", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if runs.limit != 7 {
		t.Fatalf("expected limit 7, got %d", runs.limit)
	}

	res = doJSON(t, handler, http.MethodGet, "/v1/runs", nil)
	if res.Code != http.StatusOK || runs.limit != 0 {
		t.Fatalf("expected default limit passthrough, got %d %d", res.Code, runs.limit)
	}

	res = doJSON(t, handler, http.MethodGet, "/v1/runs?limit=many", nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", res.Code)
	}

	services.Runs = nil
	res = doJSON(t, NewRouter(config.Config{}, services, nil).Handler(), http.MethodGet, "/v1/runs", nil)
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409 without history, got %d", res.Code)
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		kind error
		want int
	}{
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrUnsupportedFormat, http.StatusUnsupportedMediaType},
		{domain.ErrSessionNotFound, http.StatusNotFound},
		{domain.ErrNotReady, http.StatusConflict},
		{domain.ErrModelMismatch, http.StatusUnprocessableEntity},
		{domain.ErrTemporary, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		err := domain.WrapError(tc.kind, "op", errors.New("detail"))
		if got := mapErrorToHTTPStatus(err); got != tc.want {
			t.Fatalf("mapErrorToHTTPStatus(%v) = %d, want %d", err, got, tc.want)
		}
	}
	if got := mapErrorToHTTPStatus(&http.MaxBytesError{Limit: 1}); got != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 for oversized body, got %d", got)
	}
}
