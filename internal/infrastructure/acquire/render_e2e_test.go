//go:build e2e

package acquire

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestChromeRendererReadsScriptedPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><ul id="l"></ul>
<script>for (const x of ["apples","pears"]) { const li = document.createElement("li"); li.textContent = x; document.getElementById("l").appendChild(li); }</script>
</body></html>`))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	page, err := NewChromeRenderer(ChromeConfig{}).Render(ctx, server.URL)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(page.Text, "apples") || !strings.Contains(page.Text, "pears") {
		t.Fatalf("script output missing from rendered text: %q", page.Text)
	}
	if page.Method != MethodRenderDOM {
		t.Fatalf("expected %s, got %s", MethodRenderDOM, page.Method)
	}
}
