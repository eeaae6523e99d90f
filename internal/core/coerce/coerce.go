package coerce

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Macrina/Listify-Agent-sub000/internal/core/domain"
)

const (
	rawExcerptRunes = 500
	maxScanStarts   = 64
)

// Coercer turns model output into canonical list items. It holds only the
// compiled candidate schema and is safe for concurrent use.
type Coercer struct {
	schema *jsonschema.Schema
	now    func() time.Time
}

func New() (*Coercer, error) {
	schema, err := compileCandidateSchema()
	if err != nil {
		return nil, err
	}
	return &Coercer{schema: schema, now: time.Now}, nil
}

// MustNew panics when the built-in candidate schema does not compile.
func MustNew() *Coercer {
	c, err := New()
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Coercer) Coerce(raw string, cc domain.CoerceContext) ([]domain.ListItem, domain.CoerceDiagnostics) {
	diag := domain.CoerceDiagnostics{ParsePath: domain.ParsePathNone}

	body, stripped := StripFence(raw)
	diag.MarkdownStripped = stripped

	candidates, path, ok := parseCandidates(body)
	if !ok {
		diag.ParseFailed = true
		diag.RawExcerpt = excerpt(strings.TrimSpace(raw), rawExcerptRunes)
		return []domain.ListItem{}, diag
	}
	diag.ParsePath = path

	analyzedAt := cc.AnalyzedAt
	if analyzedAt.IsZero() {
		analyzedAt = c.now()
	}
	analyzedAt = analyzedAt.UTC()
	sourceType := domain.MapSourceType(string(cc.SourceType))

	items := make([]domain.ListItem, 0, len(candidates))
	for i, candidate := range candidates {
		if err := c.schema.Validate(candidate); err != nil {
			diag.Rejected++
			diag.Rejections = append(diag.Rejections, fmt.Sprintf("candidate %d: %s", i, rejectionReason(candidate)))
			continue
		}
		record := candidate.(map[string]any)
		name, _ := record["item_name"].(string)
		// The schema pattern is ASCII-only; unicode whitespace survives it.
		name = strings.TrimSpace(name)
		if name == "" {
			diag.Rejected++
			diag.Rejections = append(diag.Rejections, fmt.Sprintf("candidate %d: item_name is blank", i))
			continue
		}

		items = append(items, domain.ListItem{
			ItemName:    name,
			Category:    category(record["category"]),
			Quantity:    optionalText(record["quantity"]),
			Notes:       optionalText(record["notes"]),
			Explanation: optionalText(record["explanation"]),
			SourceType:  sourceType,
			Metadata:    itemMetadata(cc, sourceType, analyzedAt),
			Status:      domain.ItemStatusPending,
			ExtractedAt: analyzedAt,
		})
	}
	diag.Accepted = len(items)
	return items, diag
}

// StripFence removes one surrounding markdown code fence, with or without a
// language tag. A reply with an opening fence and no closing one loses the
// opening line only.
func StripFence(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s, false
	}

	rest := s[3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		tag := strings.TrimSpace(rest[:nl])
		if !strings.ContainsAny(tag, "{[") {
			rest = rest[nl+1:]
		}
	} else {
		rest = strings.TrimLeft(rest, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
	}

	rest = strings.TrimSpace(rest)
	rest = strings.TrimSuffix(rest, "```")
	return strings.TrimSpace(rest), true
}

func parseCandidates(body string) ([]any, domain.ParsePath, bool) {
	if body == "" {
		return nil, domain.ParsePathNone, false
	}

	if v, err := decode(body); err == nil {
		switch typed := v.(type) {
		case []any:
			return typed, domain.ParsePathArray, true
		case map[string]any:
			if arr, ok := typed["items"].([]any); ok {
				return arr, domain.ParsePathItems, true
			}
			if arr, ok := typed["data"].([]any); ok {
				return arr, domain.ParsePathData, true
			}
		}
	}

	if arr, ok := scanArray(body); ok {
		return arr, domain.ParsePathBracketScan, true
	}
	return nil, domain.ParsePathNone, false
}

func decode(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after json value")
	}
	return v, nil
}

// scanArray looks for the first balanced [...] substring that decodes to an
// array. Brackets inside JSON strings are ignored.
func scanArray(s string) ([]any, bool) {
	from := 0
	for tries := 0; tries < maxScanStarts; tries++ {
		idx := strings.IndexByte(s[from:], '[')
		if idx < 0 {
			return nil, false
		}
		start := from + idx
		end, ok := balancedEnd(s, start)
		if ok {
			if v, err := decode(s[start : end+1]); err == nil {
				if arr, isArr := v.([]any); isArr {
					return arr, true
				}
			}
		}
		from = start + 1
	}
	return nil, false
}

func balancedEnd(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func category(v any) string {
	s, _ := v.(string)
	return domain.NormalizeCategory(s)
}

func optionalText(v any) *string {
	var out string
	switch typed := v.(type) {
	case string:
		out = strings.TrimSpace(typed)
	case json.Number:
		out = typed.String()
	case bool:
		if typed {
			out = "true"
		} else {
			out = "false"
		}
	default:
		return nil
	}
	if out == "" {
		return nil
	}
	return &out
}

func itemMetadata(cc domain.CoerceContext, sourceType domain.SourceType, analyzedAt time.Time) map[string]any {
	meta := map[string]any{
		"analyzed_at": analyzedAt.Format(time.RFC3339),
		"source_type": string(sourceType),
	}
	if cc.Method != "" {
		meta["method"] = cc.Method
	}
	if cc.SourceURL != "" {
		meta["source_url"] = cc.SourceURL
	}
	if cc.MimeType != "" {
		meta["mime_type"] = cc.MimeType
	}
	return meta
}

func rejectionReason(candidate any) string {
	record, ok := candidate.(map[string]any)
	if !ok {
		return "not an object"
	}
	v, present := record["item_name"]
	if !present || v == nil {
		return "item_name missing"
	}
	if _, isString := v.(string); !isString {
		return "item_name is not a string"
	}
	return "item_name is blank"
}

func excerpt(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	var buf strings.Builder
	n := 0
	for _, r := range s {
		if n == limit {
			break
		}
		buf.WriteRune(r)
		n++
	}
	return buf.String()
}
