package domain

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format is a tabular file format accepted for upload and download.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatExcel Format = "xlsx"
	FormatJSON  Format = "json"
	FormatSQL   Format = "sql"
)

// Formats lists the supported formats in the order they are offered.
var Formats = []Format{FormatCSV, FormatExcel, FormatJSON, FormatSQL}

func (f Format) Extension() string {
	return "." + string(f)
}

func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatJSON:
		return "application/json"
	case FormatSQL:
		return "application/sql"
	default:
		return "application/octet-stream"
	}
}

// ParseFormat accepts a format name ("csv", "Excel", "xlsx", ...).
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatExcel, nil
	case "json":
		return FormatJSON, nil
	case "sql":
		return FormatSQL, nil
	default:
		return "", WrapError(ErrUnsupportedFormat, "parse format", fmt.Errorf("%q (expected csv, xlsx, json or sql)", name))
	}
}

// FormatFromFilename detects the format from the file extension.
func FormatFromFilename(filename string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, f := range Formats {
		if ext == f.Extension() {
			return f, nil
		}
	}
	return "", WrapError(ErrUnsupportedFormat, "detect format", fmt.Errorf("file %q must end with .csv, .xlsx, .json or .sql", filename))
}
