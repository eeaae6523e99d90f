package acquire

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseHTMLSkipsScriptsAndStyles(t *testing.T) {
	body := `<html><head><title> Weekend </title><style>.x{color:red}</style></head>
<body><h1>To do</h1><ul><li>Mow   lawn</li><li>Fix sink</li></ul>
<script>window.track()</script><noscript>enable js</noscript></body></html>`

	page, err := ParseHTML([]byte(body), "text/html")
	if err != nil {
		t.Fatalf("ParseHTML() error = %v", err)
	}
	if page.Title != "Weekend" {
		t.Fatalf("unexpected title %q", page.Title)
	}
	if page.Text != "To do\nMow lawn\nFix sink" {
		t.Fatalf("unexpected text %q", page.Text)
	}
	if len(page.StructuredItems) != 0 {
		t.Fatalf("unexpected structured items %v", page.StructuredItems)
	}
}

func TestParseHTMLDecodesDeclaredCharset(t *testing.T) {
	// "café" in windows-1252.
	body := []byte("<html><body><p>caf\xe9</p></body></html>")
	page, err := ParseHTML(body, "text/html; charset=windows-1252")
	if err != nil {
		t.Fatalf("ParseHTML() error = %v", err)
	}
	if page.Text != "café" {
		t.Fatalf("expected decoded text, got %q", page.Text)
	}
}

func TestParseHTMLJSONLDVariants(t *testing.T) {
	body := `<html><head>
<script type="application/ld+json">{"@graph":[{"@type":"ItemList","itemListElement":[{"@type":"ListItem","position":1,"name":"Tent"},{"@type":"ListItem","item":{"name":"Stove"}}]}]}</script>
<script type="application/ld+json">[{"@type":"HowTo","supply":[{"name":"Glue"}],"step":[{"@type":"HowToStep","text":"Apply glue"}]}]</script>
<script type="application/ld+json">not json</script>
</head><body><p>text</p></body></html>`

	page, err := ParseHTML([]byte(body), "text/html")
	if err != nil {
		t.Fatalf("ParseHTML() error = %v", err)
	}
	want := []string{"Tent", "Stove", "Glue", "Apply glue"}
	if diff := cmp.Diff(want, page.StructuredItems); diff != "" {
		t.Fatalf("structured items mismatch (-want +got):\n%s", diff)
	}
	if !strings.HasPrefix(page.StructuredText(), "- Tent") {
		t.Fatalf("unexpected structured text %q", page.StructuredText())
	}
}

func TestTruncate(t *testing.T) {
	if got, cut := Truncate("abc", 3); got != "abc" || cut {
		t.Fatalf("Truncate at limit changed input: %q %v", got, cut)
	}
	if got, cut := Truncate("abcd", 3); got != "abc" || !cut {
		t.Fatalf("Truncate over limit: %q %v", got, cut)
	}
	if got, cut := Truncate("日本語テキスト", 2); got != "日本" || !cut {
		t.Fatalf("Truncate must count runes: %q %v", got, cut)
	}
}
