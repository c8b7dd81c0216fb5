package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/loansphere/internal/core/domain"
	"github.com/kirillkom/loansphere/internal/core/ports"
)

const (
	serverName = "loansphere"

	toolPredictLoan    = "predict_loan"
	toolDatasetSummary = "loan_dataset_summary"
)

var numericArguments = []struct {
	name        string
	description string
}{
	{"current_loan_amount", "Requested loan amount"},
	{"credit_score", "Credit score between 300 and 10000"},
	{"annual_income", "Annual income"},
	{"monthly_debt", "Monthly debt payments"},
	{"years_of_credit_history", "Years of credit history"},
	{"months_since_last_delinquent", "Months since the last delinquency, 0 if none"},
	{"number_of_open_accounts", "Number of open accounts"},
	{"number_of_credit_problems", "Number of credit problems"},
	{"current_credit_balance", "Current credit balance"},
	{"maximum_open_credit", "Maximum open credit"},
}

// Server exposes loan prediction as MCP tools.
type Server struct {
	predictor ports.LoanPredictor
	summary   ports.SummaryReader
	mcp       *server.MCPServer
}

func NewServer(predictor ports.LoanPredictor, summary ports.SummaryReader, version string) *Server {
	s := &Server{
		predictor: predictor,
		summary:   summary,
		mcp:       server.NewMCPServer(serverName, version, server.WithToolCapabilities(false)),
	}
	s.mcp.AddTool(predictLoanTool(), s.handlePredictLoan)
	s.mcp.AddTool(mcp.NewTool(toolDatasetSummary,
		mcp.WithDescription("Dataset size, approved loan count and the loaded model"),
	), s.handleDatasetSummary)
	return s
}

func predictLoanTool() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Predict whether a loan application would be approved"),
		mcp.WithString("term", mcp.Required(), mcp.Enum(domain.Choices(domain.ColumnTerm)...),
			mcp.Description("Loan term")),
		mcp.WithString("home_ownership", mcp.Required(), mcp.Enum(domain.Choices(domain.ColumnHomeOwnership)...),
			mcp.Description("Home ownership status")),
		mcp.WithString("purpose", mcp.Required(), mcp.Enum(domain.Choices(domain.ColumnPurpose)...),
			mcp.Description("Purpose of the loan")),
	}
	for _, arg := range numericArguments {
		opts = append(opts, mcp.WithNumber(arg.name, mcp.Required(), mcp.Description(arg.description)))
	}
	return mcp.NewTool(toolPredictLoan, opts...)
}

func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handlePredictLoan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	app, err := applicationFromRequest(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	prediction, err := s.predictor.Predict(ctx, app)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(prediction)
}

func (s *Server) handleDatasetSummary(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summary, err := s.summary.Summary(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(summary)
}

func applicationFromRequest(req mcp.CallToolRequest) (domain.LoanApplication, error) {
	var app domain.LoanApplication
	numbers := make(map[string]float64, len(numericArguments))
	for _, arg := range numericArguments {
		v, err := req.RequireFloat(arg.name)
		if err != nil {
			return app, err
		}
		numbers[arg.name] = v
	}
	var err error
	if app.Term, err = req.RequireString("term"); err != nil {
		return app, err
	}
	if app.HomeOwnership, err = req.RequireString("home_ownership"); err != nil {
		return app, err
	}
	if app.Purpose, err = req.RequireString("purpose"); err != nil {
		return app, err
	}

	app.CurrentLoanAmount = numbers["current_loan_amount"]
	app.CreditScore = numbers["credit_score"]
	app.AnnualIncome = numbers["annual_income"]
	app.MonthlyDebt = numbers["monthly_debt"]
	app.YearsOfCreditHistory = numbers["years_of_credit_history"]
	app.MonthsSinceDelinquent = numbers["months_since_last_delinquent"]
	app.OpenAccounts = numbers["number_of_open_accounts"]
	app.CreditProblems = numbers["number_of_credit_problems"]
	app.CurrentCreditBalance = numbers["current_credit_balance"]
	app.MaximumOpenCredit = numbers["maximum_open_credit"]
	return app, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
