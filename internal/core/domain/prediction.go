package domain

import "time"

const (
	ClassRejected int64 = 0
	ClassApproved int64 = 1
)

type Prediction struct {
	Class    int64  `json:"prediction"`
	Approved bool   `json:"approved"`
	Label    string `json:"label"`
	Model    string `json:"model"`
}

func NewPrediction(class int64, model string) Prediction {
	p := Prediction{Class: class, Approved: class == ClassApproved, Model: model}
	if p.Approved {
		p.Label = "Loan Approved"
	} else {
		p.Label = "Loan Not Approved"
	}
	return p
}

type RunSource string

const (
	RunSourceManual RunSource = "manual"
	RunSourceBulk   RunSource = "bulk"
)

// PredictionRun is the audit record of one manual or bulk prediction.
type PredictionRun struct {
	ID        string    `json:"id"`
	Source    RunSource `json:"source"`
	Filename  string    `json:"filename,omitempty"`
	Format    Format    `json:"format,omitempty"`
	Rows      int       `json:"rows"`
	Approved  int       `json:"approved"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

type DatasetSummary struct {
	TotalRecords  int      `json:"total_records"`
	ApprovedLoans int      `json:"approved_loans"`
	ModelType     string   `json:"model_type"`
	ModelFeatures []string `json:"model_features"`
}

// BulkSession holds an uploaded table and, after prediction, its result.
type BulkSession struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Format    Format    `json:"format"`
	Input     *Table    `json:"-"`
	Result    *Table    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *BulkSession) Predicted() bool {
	return s.Result != nil
}

// BulkUpload is returned after a file has been parsed.
type BulkUpload struct {
	SessionID string           `json:"session_id"`
	Filename  string           `json:"filename"`
	Format    Format           `json:"format"`
	Columns   []string         `json:"columns"`
	Rows      int              `json:"rows"`
	Preview   []map[string]any `json:"preview"`
}

// BulkResult summarizes a completed bulk prediction.
type BulkResult struct {
	SessionID string           `json:"session_id"`
	Rows      int              `json:"rows"`
	Approved  int              `json:"approved"`
	Rejected  int              `json:"rejected"`
	Model     string           `json:"model"`
	Preview   []map[string]any `json:"preview"`
}

// Export is a serialized table ready for download.
type Export struct {
	Filename    string
	ContentType string
	Data        []byte
}

// EncodingOptions describes the form choices and their training-time codes.
type EncodingOptions struct {
	Features   []string                  `json:"features"`
	Categories map[string][]string       `json:"categories"`
	Encodings  map[string]map[string]int `json:"encodings"`
	Formats    []Format                  `json:"formats"`
}

func NewEncodingOptions() EncodingOptions {
	opts := EncodingOptions{
		Features:   append([]string(nil), FeatureColumns...),
		Categories: make(map[string][]string, len(CategoricalEncodings)),
		Encodings:  make(map[string]map[string]int, len(CategoricalEncodings)),
		Formats:    append([]Format(nil), Formats...),
	}
	for column, encoding := range CategoricalEncodings {
		opts.Categories[column] = Choices(column)
		copied := make(map[string]int, len(encoding))
		for k, v := range encoding {
			copied[k] = v
		}
		opts.Encodings[column] = copied
	}
	return opts
}
