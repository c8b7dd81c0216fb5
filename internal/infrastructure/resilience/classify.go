package resilience

import (
	"context"
	"errors"

	"github.com/kirillkom/loansphere/internal/core/domain"
)

// ClassifyTemporary retries errors marked domain.ErrTemporary and open
// circuits. Cancellation is neither retried nor counted against the breaker.
func ClassifyTemporary(err error) ErrorClassification {
	switch {
	case err == nil:
		return ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorClassification{Retryable: false, RecordFailure: false}
	case domain.IsKind(err, domain.ErrTemporary), IsCircuitOpen(err):
		return ErrorClassification{Retryable: true, RecordFailure: true}
	case domain.IsKind(err, domain.ErrInvalidInput):
		return ErrorClassification{Retryable: false, RecordFailure: false}
	default:
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}
}
