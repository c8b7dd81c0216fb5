package dataset

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kirillkom/loansphere/internal/core/domain"
	"github.com/kirillkom/loansphere/internal/core/ports"
)

const approvedStatus = "Approved"

// Stats are the counts shown next to the prediction form.
type Stats struct {
	TotalRecords  int
	ApprovedLoans int
}

// LoadStats reads the historical loan CSV once and counts approved records.
func LoadStats(ctx context.Context, codec ports.TableCodec, path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	table, err := codec.Decode(ctx, domain.FormatCSV, f)
	if err != nil {
		return Stats{}, fmt.Errorf("read dataset %s: %w", path, err)
	}
	return Count(table)
}

// Count returns the number of rows and of rows whose loan status is Approved.
func Count(table *domain.Table) (Stats, error) {
	col := table.Lookup(domain.ColumnLoanStatus)
	if col < 0 {
		return Stats{}, fmt.Errorf("dataset has no %q column", domain.ColumnLoanStatus)
	}
	stats := Stats{TotalRecords: table.Len()}
	for _, row := range table.Rows {
		if s, ok := row[col].(string); ok && strings.TrimSpace(s) == approvedStatus {
			stats.ApprovedLoans++
		}
	}
	return stats, nil
}
