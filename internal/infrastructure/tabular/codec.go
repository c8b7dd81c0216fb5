package tabular

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/kirillkom/loansphere/internal/core/domain"
)

const (
	defaultSQLTimeout  = 10 * time.Second
	defaultSQLMaxPages = 16384
)

// Codec converts tables to and from CSV, Excel, JSON and SQL dumps.
type Codec struct {
	sqlTable    string
	sqlTimeout  time.Duration
	sqlMaxPages int
}

type Option func(*Codec)

// WithSQLTimeout bounds how long an uploaded SQL script may run.
func WithSQLTimeout(timeout time.Duration) Option {
	return func(c *Codec) {
		if timeout > 0 {
			c.sqlTimeout = timeout
		}
	}
}

// WithSQLMaxPages caps the size of the database an uploaded script builds.
func WithSQLMaxPages(pages int) Option {
	return func(c *Codec) {
		if pages > 0 {
			c.sqlMaxPages = pages
		}
	}
}

// NewCodec returns a codec. sqlTable is the table read back from uploaded SQL
// scripts; when the script does not create it, the first table is used.
func NewCodec(sqlTable string, opts ...Option) *Codec {
	c := &Codec{
		sqlTable:    sqlTable,
		sqlTimeout:  defaultSQLTimeout,
		sqlMaxPages: defaultSQLMaxPages,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Codec) Decode(ctx context.Context, format domain.Format, r io.Reader) (*domain.Table, error) {
	var (
		t   *domain.Table
		err error
	)
	switch format {
	case domain.FormatCSV:
		t, err = decodeCSV(r)
	case domain.FormatExcel:
		t, err = decodeExcel(r)
	case domain.FormatJSON:
		t, err = decodeJSON(r)
	case domain.FormatSQL:
		t, err = c.decodeSQL(ctx, r)
	default:
		return nil, domain.WrapError(domain.ErrUnsupportedFormat, "decode", fmt.Errorf("format %q", format))
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode "+string(format), err)
	}
	return t, nil
}

func (c *Codec) Encode(_ context.Context, format domain.Format, tableName string, t *domain.Table) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("encode %s: nil table", format)
	}
	var (
		out []byte
		err error
	)
	switch format {
	case domain.FormatCSV:
		out, err = encodeCSV(t)
	case domain.FormatExcel:
		out, err = encodeExcel(t)
	case domain.FormatJSON:
		out, err = encodeJSON(t)
	case domain.FormatSQL:
		out, err = encodeSQL(tableName, t)
	default:
		return nil, domain.WrapError(domain.ErrUnsupportedFormat, "encode", fmt.Errorf("format %q", format))
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return out, nil
}
