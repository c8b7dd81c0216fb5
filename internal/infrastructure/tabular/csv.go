package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/kirillkom/loansphere/internal/core/domain"
)

func decodeCSV(r io.Reader) (*domain.Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false

	names, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("no columns to parse from file")
	}
	if err != nil {
		return nil, err
	}
	names = uniqueNames(header(names))

	var rows [][]any
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) > len(names) {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("line %d has %d values, expected %d", line, len(record), len(names))
		}
		// short rows are padded with missing values
		row := make([]any, len(names))
		for i, raw := range record {
			row[i] = parseCell(raw)
		}
		rows = append(rows, row)
	}
	return domain.NewTable(names, rows)
}

func encodeCSV(t *domain.Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.ColumnNames()); err != nil {
		return nil, err
	}
	record := make([]string, len(t.Columns))
	for i, row := range t.Rows {
		for j, v := range row {
			record[j] = formatCell(v)
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
