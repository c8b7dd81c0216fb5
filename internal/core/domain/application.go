package domain

import (
	"errors"
	"fmt"
	"sort"
)

// Feature column names as the classifier was trained on them.
const (
	ColumnCurrentLoanAmount     = "Current Loan Amount"
	ColumnTerm                  = "Term"
	ColumnCreditScore           = "Credit Score"
	ColumnAnnualIncome          = "Annual Income"
	ColumnHomeOwnership         = "Home Ownership"
	ColumnPurpose               = "Purpose"
	ColumnMonthlyDebt           = "Monthly Debt"
	ColumnYearsOfCreditHistory  = "Years of Credit History"
	ColumnMonthsSinceDelinquent = "Months since last delinquent"
	ColumnOpenAccounts          = "Number of Open Accounts"
	ColumnCreditProblems        = "Number of Credit Problems"
	ColumnCurrentCreditBalance  = "Current Credit Balance"
	ColumnMaximumOpenCredit     = "Maximum Open Credit"

	ColumnLoanStatus = "Loan Status"
	ColumnPrediction = "Prediction"
)

const (
	MinCreditScore = 300
	MaxCreditScore = 10000
)

// FeatureColumns lists the applicant attributes in form order.
var FeatureColumns = []string{
	ColumnCurrentLoanAmount,
	ColumnTerm,
	ColumnCreditScore,
	ColumnAnnualIncome,
	ColumnHomeOwnership,
	ColumnPurpose,
	ColumnMonthlyDebt,
	ColumnYearsOfCreditHistory,
	ColumnMonthsSinceDelinquent,
	ColumnOpenAccounts,
	ColumnCreditProblems,
	ColumnCurrentCreditBalance,
	ColumnMaximumOpenCredit,
}

// Encoding maps mirror the label encoding applied when the model was trained.
// Changing a value here silently breaks every prediction.
var (
	TermEncoding = map[string]int{
		"Short": 0,
		"Long":  1,
	}

	HomeOwnershipEncoding = map[string]int{
		"Have Mortgage": 0,
		"Rent":          1,
		"Home Mortgage": 2,
		"Own":           3,
	}

	PurposeEncoding = map[string]int{
		"Business Loan":        1,
		"Buy a Car":            2,
		"Buy House":            3,
		"Debt Consolidation":   4,
		"Educational Expenses": 5,
		"Home Improvements":    6,
		"Major Purchase":       7,
		"Medical Bills":        8,
		"Moving":               9,
		"Other":                10,
		"Renewable Energy":     11,
		"Small Business":       12,
		"Take a Trip":          13,
		"Vacation":             14,
		"Wedding":              15,
	}
)

// CategoricalEncodings maps each categorical column to its encoding table.
var CategoricalEncodings = map[string]map[string]int{
	ColumnTerm:          TermEncoding,
	ColumnHomeOwnership: HomeOwnershipEncoding,
	ColumnPurpose:       PurposeEncoding,
}

// EncodeCategory returns the training-time code of label in column.
func EncodeCategory(column, label string) (int, error) {
	encoding, ok := CategoricalEncodings[column]
	if !ok {
		return 0, fmt.Errorf("column %q is not categorical", column)
	}
	code, ok := encoding[label]
	if !ok {
		return 0, fmt.Errorf("unknown %s %q", column, label)
	}
	return code, nil
}

// CanonicalColumn maps a column name in any supported spelling
// ("credit_score", "Credit Score") to the feature column it denotes.
func CanonicalColumn(name string) (string, bool) {
	want := normalizeColumnName(name)
	for _, column := range FeatureColumns {
		if normalizeColumnName(column) == want {
			return column, true
		}
	}
	return "", false
}

// Choices returns the labels of a categorical column ordered by code.
func Choices(column string) []string {
	encoding := CategoricalEncodings[column]
	labels := make([]string, 0, len(encoding))
	for label := range encoding {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		return encoding[labels[i]] < encoding[labels[j]]
	})
	return labels
}

// LoanApplication is a single manually entered applicant.
type LoanApplication struct {
	CurrentLoanAmount     float64 `json:"current_loan_amount"`
	Term                  string  `json:"term"`
	CreditScore           float64 `json:"credit_score"`
	AnnualIncome          float64 `json:"annual_income"`
	HomeOwnership         string  `json:"home_ownership"`
	Purpose               string  `json:"purpose"`
	MonthlyDebt           float64 `json:"monthly_debt"`
	YearsOfCreditHistory  float64 `json:"years_of_credit_history"`
	MonthsSinceDelinquent float64 `json:"months_since_last_delinquent"`
	OpenAccounts          float64 `json:"number_of_open_accounts"`
	CreditProblems        float64 `json:"number_of_credit_problems"`
	CurrentCreditBalance  float64 `json:"current_credit_balance"`
	MaximumOpenCredit     float64 `json:"maximum_open_credit"`
}

func (a LoanApplication) Validate() error {
	var errs []error
	nonNegative := map[string]float64{
		ColumnCurrentLoanAmount:     a.CurrentLoanAmount,
		ColumnAnnualIncome:          a.AnnualIncome,
		ColumnMonthlyDebt:           a.MonthlyDebt,
		ColumnYearsOfCreditHistory:  a.YearsOfCreditHistory,
		ColumnMonthsSinceDelinquent: a.MonthsSinceDelinquent,
		ColumnOpenAccounts:          a.OpenAccounts,
		ColumnCreditProblems:        a.CreditProblems,
		ColumnCurrentCreditBalance:  a.CurrentCreditBalance,
		ColumnMaximumOpenCredit:     a.MaximumOpenCredit,
	}
	for _, column := range FeatureColumns {
		if v, ok := nonNegative[column]; ok && v < 0 {
			errs = append(errs, fmt.Errorf("%s must be >= 0", column))
		}
	}
	if a.CreditScore < MinCreditScore || a.CreditScore > MaxCreditScore {
		errs = append(errs, fmt.Errorf("%s must be between %d and %d", ColumnCreditScore, MinCreditScore, MaxCreditScore))
	}
	for column, label := range map[string]string{
		ColumnTerm:          a.Term,
		ColumnHomeOwnership: a.HomeOwnership,
		ColumnPurpose:       a.Purpose,
	} {
		if _, err := EncodeCategory(column, label); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return WrapError(ErrInvalidInput, "validate application", errors.Join(errs...))
	}
	return nil
}

// Features returns the encoded feature values keyed by column name.
func (a LoanApplication) Features() (map[string]float64, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	term, _ := EncodeCategory(ColumnTerm, a.Term)
	home, _ := EncodeCategory(ColumnHomeOwnership, a.HomeOwnership)
	purpose, _ := EncodeCategory(ColumnPurpose, a.Purpose)

	return map[string]float64{
		ColumnCurrentLoanAmount:     a.CurrentLoanAmount,
		ColumnTerm:                  float64(term),
		ColumnCreditScore:           a.CreditScore,
		ColumnAnnualIncome:          a.AnnualIncome,
		ColumnHomeOwnership:         float64(home),
		ColumnPurpose:               float64(purpose),
		ColumnMonthlyDebt:           a.MonthlyDebt,
		ColumnYearsOfCreditHistory:  a.YearsOfCreditHistory,
		ColumnMonthsSinceDelinquent: a.MonthsSinceDelinquent,
		ColumnOpenAccounts:          a.OpenAccounts,
		ColumnCreditProblems:        a.CreditProblems,
		ColumnCurrentCreditBalance:  a.CurrentCreditBalance,
		ColumnMaximumOpenCredit:     a.MaximumOpenCredit,
	}, nil
}

// OrderFeatures arranges encoded features in the order the model expects.
func OrderFeatures(features map[string]float64, modelColumns []string) ([]float64, error) {
	row := make([]float64, len(modelColumns))
	var missing []string
	for i, column := range modelColumns {
		v, ok := features[column]
		if !ok {
			missing = append(missing, column)
			continue
		}
		row[i] = v
	}
	if len(missing) > 0 {
		return nil, WrapError(ErrModelMismatch, "order features", fmt.Errorf("model expects unknown columns %q", missing))
	}
	return row, nil
}
