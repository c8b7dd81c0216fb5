package tabular

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/kirillkom/loansphere/internal/core/domain"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// decodeJSON reads an array of records. Columns follow first appearance
// across records; keys missing from a record become nulls.
func decodeJSON(r io.Reader) (*domain.Table, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '[' {
		return nil, errors.New("expected a JSON array of records")
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, err
	}

	records := make([]*orderedmap.OrderedMap[string, json.RawMessage], len(items))
	columns := orderedmap.New[string, struct{}]()
	for i, item := range items {
		record := orderedmap.New[string, json.RawMessage]()
		if err := json.Unmarshal(item, record); err != nil {
			return nil, fmt.Errorf("record %d: expected an object: %w", i+1, err)
		}
		for pair := record.Oldest(); pair != nil; pair = pair.Next() {
			columns.Set(pair.Key, struct{}{})
		}
		records[i] = record
	}

	names := make([]string, 0, columns.Len())
	for pair := columns.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}

	rows := make([][]any, len(records))
	for i, record := range records {
		row := make([]any, len(names))
		for j, name := range names {
			raw, ok := record.Get(name)
			if !ok {
				continue
			}
			v, err := jsonCell(raw)
			if err != nil {
				return nil, fmt.Errorf("record %d, %q: %w", i+1, name, err)
			}
			row[j] = v
		}
		rows[i] = row
	}
	return domain.NewTable(names, rows)
}

func jsonCell(raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	switch raw[0] {
	case 'n':
		return nil, nil
	case 't':
		return int64(1), nil
	case 'f':
		return int64(0), nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	case '{', '[':
		return string(raw), nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return nil, err
	}
	if !strings.ContainsAny(n.String(), ".eE") {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
	}
	return n.Float64()
}

func encodeJSON(t *domain.Table) ([]byte, error) {
	records := make([]*orderedmap.OrderedMap[string, json.RawMessage], len(t.Rows))
	for i, row := range t.Rows {
		record := orderedmap.New[string, json.RawMessage](len(t.Columns))
		for j, c := range t.Columns {
			raw, err := jsonValue(row[j])
			if err != nil {
				return nil, fmt.Errorf("row %d, %q: %w", i+1, c.Name, err)
			}
			record.Set(c.Name, raw)
		}
		records[i] = record
	}
	return json.MarshalIndent(records, "", "    ")
}

func jsonValue(v any) (json.RawMessage, error) {
	switch x := v.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case int64:
		return json.RawMessage(strconv.FormatInt(x, 10)), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return json.RawMessage("null"), nil
		}
		return json.RawMessage(formatFloat(x)), nil
	default:
		return json.Marshal(x)
	}
}
