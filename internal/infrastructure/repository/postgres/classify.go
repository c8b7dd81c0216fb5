package postgres

import (
	"database/sql/driver"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/loansphere/internal/infrastructure/resilience"
)

// Class 08 is connection exceptions, 40001/40P01 serialization and deadlock,
// 57P01-57P03 admin shutdown and cannot-connect-now.
var retryableCodes = map[string]struct{}{
	"08000": {}, "08003": {}, "08006": {}, "08001": {}, "08004": {},
	"40001": {}, "40P01": {},
	"57P01": {}, "57P02": {}, "57P03": {},
}

// ClassifyError decides whether a failed history write is worth retrying.
func ClassifyError(err error) resilience.ErrorClassification {
	if errors.Is(err, driver.ErrBadConn) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := retryableCodes[pgErr.Code]; ok {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		// constraint and syntax errors say nothing about database health
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return resilience.ClassifyTemporary(err)
}
