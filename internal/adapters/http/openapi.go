package httpadapter

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/kirillkom/loansphere/internal/core/domain"
)

//go:embed openapi.yaml
var openAPISpec []byte

const predictRequestSchema = "PredictRequest"

type apiContract struct {
	doc            *openapi3.T
	predictRequest *openapi3.Schema
}

func loadContract(ctx context.Context) (*apiContract, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPISpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi contract: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi contract: %w", err)
	}
	ref, ok := doc.Components.Schemas[predictRequestSchema]
	if !ok || ref.Value == nil {
		return nil, fmt.Errorf("openapi contract has no %s schema", predictRequestSchema)
	}
	return &apiContract{doc: doc, predictRequest: ref.Value}, nil
}

func mustLoadContract() *apiContract {
	c, err := loadContract(context.Background())
	if err != nil {
		panic(err)
	}
	return c
}

// decodeApplication checks raw against the PredictRequest schema before
// binding it, so clients get every violation in one response.
func (c *apiContract) decodeApplication(raw []byte) (domain.LoanApplication, error) {
	var app domain.LoanApplication

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return app, domain.WrapError(domain.ErrInvalidInput, "decode application", fmt.Errorf("invalid json: %w", err))
	}
	if err := c.predictRequest.VisitJSON(generic, openapi3.MultiErrors()); err != nil {
		return app, domain.WrapError(domain.ErrInvalidInput, "validate application", err)
	}
	if err := json.Unmarshal(raw, &app); err != nil {
		return app, domain.WrapError(domain.ErrInvalidInput, "decode application", err)
	}
	return app, nil
}
