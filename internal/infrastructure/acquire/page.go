package acquire

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
)

// Page is what the extractor reads out of an HTML document.
type Page struct {
	Title string
	Text  string
	// StructuredItems come from JSON-LD lists, recipe ingredients or how-to
	// steps embedded in the page.
	StructuredItems []string
}

// ParseHTML decodes body using the charset from contentType or the document
// itself and extracts the title, visible text and JSON-LD list entries.
func ParseHTML(body []byte, contentType string) (Page, error) {
	var reader io.Reader = bytes.NewReader(body)
	if decoded, err := charset.NewReader(reader, contentType); err == nil {
		reader = decoded
	} else {
		reader = bytes.NewReader(body)
	}

	doc, err := html.Parse(reader)
	if err != nil {
		return Page{}, err
	}

	var (
		page   Page
		text   strings.Builder
		ldJSON []string
	)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if page.Title == "" {
					page.Title = strings.TrimSpace(nodeText(n))
				}
				return
			case atom.Script:
				if strings.EqualFold(strings.TrimSpace(attr(n, "type")), "application/ld+json") {
					ldJSON = append(ldJSON, nodeText(n))
				}
				return
			case atom.Style, atom.Noscript, atom.Template, atom.Svg, atom.Iframe:
				return
			}
		}
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && isBlock(n.DataAtom) {
			text.WriteByte('\n')
		}
	}
	walk(doc)

	page.Text = normalizeWhitespace(text.String())
	for _, raw := range ldJSON {
		page.StructuredItems = append(page.StructuredItems, structuredItems(raw)...)
	}
	page.StructuredItems = dedupe(page.StructuredItems)
	return page, nil
}

// StructuredText renders the JSON-LD entries as a bullet list under the title.
func (p Page) StructuredText() string {
	if len(p.StructuredItems) == 0 {
		return ""
	}
	var sb strings.Builder
	if p.Title != "" {
		sb.WriteString(p.Title)
		sb.WriteString("\n\n")
	}
	for _, item := range p.StructuredItems {
		sb.WriteString("- ")
		sb.WriteString(item)
		sb.WriteByte('\n')
	}
	return strings.TrimSpace(sb.String())
}

func structuredItems(raw string) []string {
	var v any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &v); err != nil {
		return nil
	}
	var out []string
	collectLD(v, &out, 0)
	return out
}

func collectLD(v any, out *[]string, depth int) {
	if depth > 8 {
		return
	}
	switch typed := v.(type) {
	case []any:
		for _, el := range typed {
			collectLD(el, out, depth+1)
		}
	case map[string]any:
		if graph, ok := typed["@graph"]; ok {
			collectLD(graph, out, depth+1)
		}
		if elems, ok := typed["itemListElement"].([]any); ok {
			for _, el := range elems {
				if name := ldName(el); name != "" {
					*out = append(*out, name)
				}
			}
		}
		if ingredients, ok := typed["recipeIngredient"].([]any); ok {
			for _, el := range ingredients {
				if s, ok := el.(string); ok && strings.TrimSpace(s) != "" {
					*out = append(*out, strings.TrimSpace(s))
				}
			}
		}
		if hasType(typed, "HowTo") {
			for _, key := range []string{"supply", "tool", "step"} {
				if steps, ok := typed[key].([]any); ok {
					for _, el := range steps {
						if name := ldName(el); name != "" {
							*out = append(*out, name)
						}
					}
				}
			}
		}
		if hasType(typed, "Recipe") {
			if steps, ok := typed["recipeInstructions"].([]any); ok {
				for _, el := range steps {
					if name := ldName(el); name != "" {
						*out = append(*out, name)
					}
				}
			}
		}
	}
}

func ldName(v any) string {
	switch typed := v.(type) {
	case string:
		return strings.TrimSpace(typed)
	case map[string]any:
		for _, key := range []string{"name", "text"} {
			if s, ok := typed[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
		if item, ok := typed["item"]; ok {
			if s, isString := item.(string); isString && strings.HasPrefix(s, "http") {
				return ""
			}
			return ldName(item)
		}
	}
	return ""
}

func hasType(obj map[string]any, want string) bool {
	switch typed := obj["@type"].(type) {
	case string:
		return typed == want
	case []any:
		for _, t := range typed {
			if s, ok := t.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Br, atom.Li, atom.Ul, atom.Ol, atom.Tr, atom.Table,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Section, atom.Article, atom.Header, atom.Footer, atom.Main, atom.Nav,
		atom.Blockquote, atom.Pre, atom.Dt, atom.Dd, atom.Figcaption:
		return true
	}
	return false
}

// normalizeWhitespace collapses runs of spaces inside lines and drops blank
// lines.
func normalizeWhitespace(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func dedupe(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

func baseMime(contentType string) string {
	mt := contentType
	if idx := strings.IndexByte(mt, ';'); idx >= 0 {
		mt = mt[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}
