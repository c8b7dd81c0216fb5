package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/loansphere/internal/core/domain"
)

func application() domain.LoanApplication {
	return domain.LoanApplication{
		CurrentLoanAmount:    25000,
		Term:                 "Long",
		CreditScore:          720,
		AnnualIncome:         60000,
		HomeOwnership:        "Rent",
		Purpose:              "Wedding",
		MonthlyDebt:          1200.5,
		YearsOfCreditHistory: 10,
		OpenAccounts:         5,
		CurrentCreditBalance: 15000,
		MaximumOpenCredit:    30000,
	}
}

func TestPredictUsesModelColumnOrder(t *testing.T) {
	clf := &classifierFake{
		features:  []string{domain.ColumnCreditScore, domain.ColumnPurpose, domain.ColumnTerm},
		threshold: 600,
	}
	recorder := &recorderFake{}
	uc := NewPredictLoanUseCase(clf, recorder)
	uc.newID = func() string { return "run-1" }

	got, err := uc.Predict(context.Background(), application())
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if !got.Approved || got.Label != "Loan Approved" || got.Model != "FakeClassifier" {
		t.Fatalf("unexpected prediction %+v", got)
	}
	want := []float64{720, 15, 1}
	for i, v := range want {
		if clf.rows[0][i] != v {
			t.Fatalf("feature %d = %v, want %v (row %v)", i, clf.rows[0][i], v, clf.rows[0])
		}
	}
	if len(recorder.runs) != 1 || recorder.runs[0].ID != "run-1" || recorder.runs[0].Source != domain.RunSourceManual || recorder.runs[0].Approved != 1 {
		t.Fatalf("unexpected recorded runs %+v", recorder.runs)
	}
}

func TestPredictRejectsInvalidApplication(t *testing.T) {
	clf := &classifierFake{features: domain.FeatureColumns}
	app := application()
	app.Term = "Medium"

	_, err := NewPredictLoanUseCase(clf, nil).Predict(context.Background(), app)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if clf.rows != nil {
		t.Fatalf("model must not be called for invalid input")
	}
}

func TestPredictReportsModelMismatch(t *testing.T) {
	clf := &classifierFake{features: []string{"Bankruptcies"}}
	_, err := NewPredictLoanUseCase(clf, nil).Predict(context.Background(), application())
	if !domain.IsKind(err, domain.ErrModelMismatch) {
		t.Fatalf("expected ErrModelMismatch, got %v", err)
	}
}

func TestPredictSucceedsWhenRecorderFails(t *testing.T) {
	clf := &classifierFake{features: domain.FeatureColumns, threshold: 1e9}
	recorder := &recorderFake{err: errors.New("nats down")}

	got, err := NewPredictLoanUseCase(clf, recorder).Predict(context.Background(), application())
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if got.Approved || got.Class != domain.ClassRejected {
		t.Fatalf("unexpected prediction %+v", got)
	}
}
