package tabular

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/kirillkom/loansphere/internal/core/domain"
	_ "modernc.org/sqlite"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Statements an uploaded script may contain. Anything touching files
// (ATTACH, VACUUM INTO, load_extension via SELECT) is refused.
var allowedStatements = map[string]struct{}{
	"CREATE":   {},
	"INSERT":   {},
	"REPLACE":  {},
	"UPDATE":   {},
	"DELETE":   {},
	"DROP":     {},
	"BEGIN":    {},
	"COMMIT":   {},
	"END":      {},
	"ROLLBACK": {},
}

func encodeSQL(tableName string, t *domain.Table) ([]byte, error) {
	if !tableNamePattern.MatchString(tableName) {
		return nil, fmt.Errorf("invalid table name %q", tableName)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", tableName)
	for i, c := range t.Columns {
		sep := ","
		if i == len(t.Columns)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "  %s %s%s\n", quoteIdent(c.Name), sqlType(c.Kind), sep)
	}
	b.WriteString(");\n\n")

	values := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for j, v := range row {
			values[j] = sqlLiteral(v)
		}
		fmt.Fprintf(&b, "INSERT INTO %s VALUES (%s);\n", tableName, strings.Join(values, ", "))
	}
	return []byte(b.String()), nil
}

func sqlType(k domain.Kind) string {
	switch k {
	case domain.KindInt:
		return "INTEGER"
	case domain.KindFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

func sqlLiteral(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		s := formatCell(x)
		if s == "" || strings.Contains(s, "inf") {
			return "NULL"
		}
		return s
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	default:
		return "NULL"
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// decodeSQL executes the script in a private in-memory database and reads
// back the preferred table, or the first table the script created. The script
// runs under the codec's time limit and page cap.
func (c *Codec) decodeSQL(ctx context.Context, r io.Reader) (*domain.Table, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	script := string(body)
	if err := checkScript(script); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(ctx, c.sqlTimeout)
	defer cancel()

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA max_page_count = %d", c.sqlMaxPages)); err != nil {
		return nil, fmt.Errorf("limit database size: %w", err)
	}
	if _, err := db.ExecContext(ctx, script); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("execute script: exceeded %s", c.sqlTimeout)
		}
		return nil, fmt.Errorf("execute script: %w", err)
	}

	name, err := pickTable(ctx, db, c.sqlTable)
	if err != nil {
		return nil, err
	}
	return readTable(ctx, db, name)
}

func pickTable(ctx context.Context, db *sql.DB, preferred string) (string, error) {
	var name string
	if preferred != "" {
		err := db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, preferred,
		).Scan(&name)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
	}
	err := db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY rowid LIMIT 1`,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errors.New("script does not create any table")
	}
	return name, err
}

func readTable(ctx context.Context, db *sql.DB, name string) (*domain.Table, error) {
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(name))
	if err != nil {
		return nil, fmt.Errorf("read table %q: %w", name, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out [][]any
	for rows.Next() {
		values := make([]any, len(names))
		targets := make([]any, len(names))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = domain.NormalizeCell(v)
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return domain.NewTable(names, out)
}

// checkScript rejects statements outside allowedStatements.
func checkScript(script string) error {
	for i, stmt := range splitStatements(script) {
		keyword := strings.ToUpper(firstWord(stmt))
		if keyword == "" {
			continue
		}
		if _, ok := allowedStatements[keyword]; !ok {
			return fmt.Errorf("statement %d: %s is not allowed", i+1, keyword)
		}
	}
	return nil
}

// splitStatements splits on semicolons outside quotes and comments and
// drops comments from the result.
func splitStatements(script string) []string {
	var (
		out []string
		cur strings.Builder
	)
	for i := 0; i < len(script); i++ {
		c := script[i]
		switch {
		case c == '\'' || c == '"' || c == '`' || c == '[':
			end := c
			if c == '[' {
				end = ']'
			}
			j := i + 1
			for j < len(script) {
				if script[j] == end {
					if end != ']' && j+1 < len(script) && script[j+1] == end {
						j += 2
						continue
					}
					break
				}
				j++
			}
			if j >= len(script) {
				j = len(script) - 1
			}
			cur.WriteString(script[i : j+1])
			i = j
		case c == '-' && i+1 < len(script) && script[i+1] == '-':
			for i < len(script) && script[i] != '\n' {
				i++
			}
			cur.WriteByte(' ')
		case c == '/' && i+1 < len(script) && script[i+1] == '*':
			end := strings.Index(script[i+2:], "*/")
			if end < 0 {
				i = len(script)
			} else {
				i += end + 3
			}
			cur.WriteByte(' ')
		case c == ';':
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if strings.TrimSpace(cur.String()) != "" {
		out = append(out, cur.String())
	}
	return out
}

func firstWord(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	end := strings.IndexFunc(stmt, func(r rune) bool {
		return !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z')
	})
	if end < 0 {
		return stmt
	}
	return stmt[:end]
}
