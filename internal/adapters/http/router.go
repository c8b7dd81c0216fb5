package httpadapter

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/loansphere/internal/config"
	"github.com/kirillkom/loansphere/internal/core/domain"
	"github.com/kirillkom/loansphere/internal/core/ports"
	"github.com/kirillkom/loansphere/internal/observability/metrics"
)

const (
	serviceName         = "api"
	maxPredictBodyBytes = 64 << 10
	defaultUploadBytes  = 20 << 20
)

// Services groups the inbound ports served by the router. Runs may be nil
// when no history database is configured.
type Services struct {
	Predictor ports.LoanPredictor
	Bulk      ports.BulkPredictionService
	Samples   ports.SampleProvider
	Summary   ports.SummaryReader
	Runs      ports.RunReader
}

type Router struct {
	services Services
	metrics  *metrics.HTTPServerMetrics
	contract *apiContract

	maxUploadBytes   int64
	rateLimitRPS     float64
	rateLimitBurst   int
	maxInFlight      int
	backpressureWait time.Duration
}

func NewRouter(cfg config.Config, services Services, httpMetrics *metrics.HTTPServerMetrics) *Router {
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultUploadBytes
	}
	return &Router{
		services:         services,
		metrics:          httpMetrics,
		contract:         mustLoadContract(),
		maxUploadBytes:   maxUpload,
		rateLimitRPS:     cfg.APIRateLimitRPS,
		rateLimitBurst:   cfg.APIRateLimitBurst,
		maxInFlight:      cfg.APIMaxInFlight,
		backpressureWait: time.Duration(cfg.APIBackpressureWaitMS) * time.Millisecond,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.HandleFunc("GET /openapi.yaml", rt.openAPI)
	mux.HandleFunc("GET /v1/summary", rt.summary)
	mux.HandleFunc("GET /v1/encodings", rt.encodings)
	mux.HandleFunc("POST /v1/predict", rt.predict)
	mux.HandleFunc("GET /v1/samples", rt.downloadSample)
	mux.HandleFunc("POST /v1/bulk/uploads", rt.uploadBulk)
	mux.HandleFunc("POST /v1/bulk/uploads/{id}/predict", rt.predictBulk)
	mux.HandleFunc("GET /v1/bulk/uploads/{id}/results", rt.downloadResults)
	mux.HandleFunc("GET /v1/runs", rt.listRuns)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.maxInFlight, rt.backpressureWait)
	handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPISpec)
}

func (rt *Router) summary(w http.ResponseWriter, r *http.Request) {
	summary, err := rt.services.Summary.Summary(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (rt *Router) encodings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, domain.NewEncodingOptions())
}

func (rt *Router) predict(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPredictBodyBytes))
	if err != nil {
		writeError(w, r, err)
		return
	}
	app, err := rt.contract.decodeApplication(raw)
	if err != nil {
		writeError(w, r, err)
		return
	}

	prediction, err := rt.services.Predictor.Predict(r.Context(), app)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		approved, rejected := 0, 1
		if prediction.Approved {
			approved, rejected = 1, 0
		}
		rt.metrics.RecordPredictions(serviceName, string(domain.RunSourceManual), approved, rejected)
	}
	writeJSON(w, http.StatusOK, prediction)
}

func (rt *Router) downloadSample(w http.ResponseWriter, r *http.Request) {
	format, ok := bindFormat(w, r)
	if !ok {
		return
	}
	export, err := rt.services.Samples.Sample(r.Context(), format)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordExport(serviceName, "sample", string(format))
	}
	writeExport(w, export)
}

func (rt *Router) uploadBulk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		if mapErrorToHTTPStatus(err) == http.StatusRequestEntityTooLarge {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	upload, err := rt.services.Bulk.Upload(r.Context(), fileHeader.Filename, file)
	if rt.metrics != nil {
		format, _ := domain.FormatFromFilename(fileHeader.Filename)
		rows := 0
		if upload != nil {
			rows = upload.Rows
		}
		rt.metrics.RecordUpload(serviceName, string(format), rows, err)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, upload)
}

func (rt *Router) predictBulk(w http.ResponseWriter, r *http.Request) {
	result, err := rt.services.Bulk.Predict(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordPredictions(serviceName, string(domain.RunSourceBulk), result.Approved, result.Rejected)
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) downloadResults(w http.ResponseWriter, r *http.Request) {
	format, ok := bindFormat(w, r)
	if !ok {
		return
	}
	export, err := rt.services.Bulk.Export(r.Context(), r.PathValue("id"), format)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordExport(serviceName, "results", string(format))
	}
	writeExport(w, export)
}

func (rt *Router) listRuns(w http.ResponseWriter, r *http.Request) {
	if rt.services.Runs == nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "run history is not configured"})
		return
	}
	var limit *int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid limit: %v", err)})
		return
	}
	if limit == nil {
		limit = new(int)
	}
	runs, err := rt.services.Runs.ListRuns(r.Context(), *limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []domain.PredictionRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// bindFormat reads the optional format query parameter, csv by default.
func bindFormat(w http.ResponseWriter, r *http.Request) (domain.Format, bool) {
	var name *string
	if err := runtime.BindQueryParameter("form", true, false, "format", r.URL.Query(), &name); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid format: %v", err)})
		return "", false
	}
	if name == nil {
		return domain.FormatCSV, true
	}
	format, err := domain.ParseFormat(*name)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return "", false
	}
	return format, true
}

func writeExport(w http.ResponseWriter, export *domain.Export) {
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(export.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Data)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
