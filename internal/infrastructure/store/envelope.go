package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Row is one decoded result row. Numbers are kept as json.Number.
type Row map[string]any

type envelope map[string]any

func parseEnvelope(body []byte) (envelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return envelope{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode store envelope: %w", err)
	}

	switch typed := v.(type) {
	case map[string]any:
		env := envelope(typed)
		if msg := env.errorMessage(); msg != "" {
			return nil, errors.New(msg)
		}
		return env, nil
	case []any:
		// Some stores answer with a bare list of results.
		return envelope{"results": typed}, nil
	default:
		return nil, fmt.Errorf("unexpected store envelope type %T", v)
	}
}

func (e envelope) errorMessage() string {
	switch typed := e["error"].(type) {
	case string:
		return strings.TrimSpace(typed)
	case map[string]any:
		if msg, ok := typed["message"].(string); ok {
			return strings.TrimSpace(msg)
		}
		return "store error"
	}
	return ""
}

func (e envelope) firstResult() map[string]any {
	results, ok := e["results"].([]any)
	if !ok || len(results) == 0 {
		return nil
	}
	first, _ := results[0].(map[string]any)
	return first
}

type idExtractor func(envelope) (int64, bool)

// idExtractors run in order and the first hit wins.
var idExtractors = []idExtractor{
	func(e envelope) (int64, bool) {
		rows := rowsOf(e.firstResult())
		if len(rows) == 0 {
			return 0, false
		}
		return positiveInt(rows[0]["id"])
	},
	func(e envelope) (int64, bool) {
		return positiveInt(e.firstResult()["lastInsertRowid"])
	},
	func(e envelope) (int64, bool) {
		return positiveInt(e["lastInsertRowid"])
	},
	func(e envelope) (int64, bool) {
		return positiveInt(e["id"])
	},
}

func (e envelope) insertedID() (int64, bool) {
	for _, extract := range idExtractors {
		if id, ok := extract(e); ok {
			return id, true
		}
	}
	return 0, false
}

func (e envelope) rows() []Row {
	if rows := rowsOf(e.firstResult()); rows != nil {
		return rows
	}
	return rowsOf(map[string]any(e))
}

func (e envelope) rowsAffected() int64 {
	candidates := []any{e.firstResult()["rowsAffected"], e["rowsAffected"], e["changes"]}
	for _, c := range candidates {
		if n, ok := toInt64(c); ok {
			return n
		}
	}
	return 0
}

// rowsOf reads container["rows"]. Rows may be objects, or positional arrays
// paired with container["columns"].
func rowsOf(container map[string]any) []Row {
	if container == nil {
		return nil
	}
	raw, ok := container["rows"].([]any)
	if !ok {
		return nil
	}
	columns := columnNames(container["columns"])

	out := make([]Row, 0, len(raw))
	for _, r := range raw {
		switch typed := r.(type) {
		case map[string]any:
			out = append(out, Row(typed))
		case []any:
			row := make(Row, len(typed))
			for i, v := range typed {
				if i < len(columns) {
					row[columns[i]] = v
				}
			}
			out = append(out, row)
		}
	}
	return out
}

func columnNames(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, c := range raw {
		switch typed := c.(type) {
		case string:
			out = append(out, typed)
		case map[string]any:
			name, _ := typed["name"].(string)
			out = append(out, name)
		default:
			out = append(out, "")
		}
	}
	return out
}

func positiveInt(v any) (int64, bool) {
	n, ok := toInt64(v)
	if !ok || n <= 0 {
		return 0, false
	}
	return n, true
}

func toInt64(v any) (int64, bool) {
	switch typed := v.(type) {
	case json.Number:
		if n, err := typed.Int64(); err == nil {
			return n, true
		}
		if f, err := typed.Float64(); err == nil {
			return int64(f), true
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64); err == nil {
			return n, true
		}
	case float64:
		return int64(typed), true
	case int64:
		return typed, true
	case int:
		return int64(typed), true
	}
	return 0, false
}

func (r Row) Int64(key string) int64 {
	n, _ := toInt64(r[key])
	return n
}

func (r Row) String(key string) string {
	switch typed := r[key].(type) {
	case nil:
		return ""
	case string:
		return typed
	case json.Number:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}

// NullString returns nil for SQL NULL.
func (r Row) NullString(key string) *string {
	if r[key] == nil {
		return nil
	}
	s := r.String(key)
	return &s
}

// Time parses RFC3339 text, the layout timestamps are written with.
func (r Row) Time(key string) time.Time {
	s := r.String(key)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
