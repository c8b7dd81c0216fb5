package tabular

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/loansphere/internal/core/domain"
	"github.com/xuri/excelize/v2"
)

// decodeExcel reads the first worksheet; its first row is the header.
func decodeExcel(r io.Reader) (*domain.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	cells, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(cells) == 0 {
		return nil, errors.New("no columns to parse from file")
	}

	names := header(cells[0])
	for len(names) > 0 && names[len(names)-1] == "" {
		names = names[:len(names)-1]
	}
	if len(names) == 0 {
		return nil, errors.New("no columns to parse from file")
	}
	names = uniqueNames(names)

	decimals := decimalStyles{file: f, known: map[int]bool{}}
	rows := make([][]any, 0, len(cells)-1)
	for k, line := range cells[1:] {
		if blankRow(line) {
			continue
		}
		if len(line) > len(names) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", k+2, len(line), len(names))
		}
		row := make([]any, len(names))
		for j := range names {
			if j >= len(line) {
				continue
			}
			row[j] = parseCell(line[j])
			if n, ok := row[j].(int64); ok {
				decimal, err := decimals.has(sheets[0], j+1, k+2)
				if err != nil {
					return nil, err
				}
				if decimal {
					row[j] = float64(n)
				}
			}
		}
		rows = append(rows, row)
	}
	return domain.NewTable(names, rows)
}

// floatNumFmt marks float cells so whole values read back as floats.
const floatNumFmt = "0.0##############"

// decimalStyles reports whether a cell's number format shows a decimal point,
// caching the answer per style id.
type decimalStyles struct {
	file  *excelize.File
	known map[int]bool
}

func (d decimalStyles) has(sheet string, col, row int) (bool, error) {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return false, err
	}
	id, err := d.file.GetCellStyle(sheet, cell)
	if err != nil || id == 0 {
		return false, err
	}
	if decimal, ok := d.known[id]; ok {
		return decimal, nil
	}
	style, err := d.file.GetStyle(id)
	if err != nil {
		return false, fmt.Errorf("read style of %s: %w", cell, err)
	}
	decimal := decimalNumFmt(style)
	d.known[id] = decimal
	return decimal, nil
}

func decimalNumFmt(style *excelize.Style) bool {
	if style == nil {
		return false
	}
	if style.CustomNumFmt != nil {
		return strings.Contains(*style.CustomNumFmt, ".")
	}
	switch style.NumFmt {
	// 0.00, #,##0.00, 0.00%, 0.00E+00
	case 2, 4, 10, 11:
		return true
	}
	return false
}

func blankRow(line []string) bool {
	for _, v := range line {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func encodeExcel(t *domain.Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	head := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		head[i] = c.Name
	}
	if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
		return nil, err
	}
	numFmt := floatNumFmt
	floatStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return nil, err
	}
	for i, row := range t.Rows {
		for j, v := range row {
			if v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, fmt.Errorf("row %d: %w", i+1, err)
			}
			if _, ok := v.(float64); ok {
				if err := f.SetCellStyle(sheet, cell, cell, floatStyle); err != nil {
					return nil, err
				}
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
