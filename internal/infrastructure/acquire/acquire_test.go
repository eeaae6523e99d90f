package acquire

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Macrina/Listify-Agent-sub000/internal/core/domain"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type fakeRenderer struct {
	page  RenderedPage
	err   error
	calls atomic.Int32
}

func (f *fakeRenderer) Render(ctx context.Context, pageURL string) (RenderedPage, error) {
	f.calls.Add(1)
	return f.page, f.err
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = value
	return nil
}

func TestAcquireImage(t *testing.T) {
	a := New(Config{})

	content, err := a.Acquire(context.Background(), domain.NewImageSource(pngHeader, ""))
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if content.Kind != domain.ContentImage || content.MimeType != "image/png" || content.SourceType != domain.SourceTypePhoto {
		t.Fatalf("unexpected content %+v", content)
	}

	content, err = a.Acquire(context.Background(), domain.NewScreenshotSource(pngHeader, "image/png"))
	if err != nil || content.SourceType != domain.SourceTypeScreenshot {
		t.Fatalf("screenshot: content=%+v err=%v", content, err)
	}

	if _, err := a.Acquire(context.Background(), domain.NewImageSource(nil, "image/png")); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty image, got %v", err)
	}
	if _, err := a.Acquire(context.Background(), domain.NewImageSource([]byte("plain text"), "")); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for non-image, got %v", err)
	}
}

func TestAcquireTextTruncationBoundary(t *testing.T) {
	a := New(Config{MaxChars: 10})

	exact := strings.Repeat("é", 10)
	content, err := a.Acquire(context.Background(), domain.NewTextSource("  "+exact+"\n"))
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if content.Text != exact || content.Metadata.Truncated {
		t.Fatalf("text at the limit must be untouched: %+v", content.Metadata)
	}

	over := strings.Repeat("é", 11)
	content, err = a.Acquire(context.Background(), domain.NewTextSource(over))
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if content.Text != exact || !content.Metadata.Truncated || content.Metadata.OriginalLength != 11 {
		t.Fatalf("expected truncation to 10 runes: %q %+v", content.Text, content.Metadata)
	}

	if _, err := a.Acquire(context.Background(), domain.NewTextSource(" \n\t ")); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for blank text, got %v", err)
	}
}

func TestAcquireDocumentRejectsNonPDF(t *testing.T) {
	a := New(Config{})
	_, err := a.Acquire(context.Background(), domain.NewDocumentSource([]byte("hello"), "text/plain"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	_, err = a.Acquire(context.Background(), domain.NewDocumentSource([]byte("%PDF-1.4 garbage"), "application/pdf"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for broken pdf, got %v", err)
	}
}

func TestValidateURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com/list", "http://", "example.com/list", "javascript:alert(1)"} {
		if _, err := ValidateURL(raw); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("ValidateURL(%q) expected invalid input, got %v", raw, err)
		}
	}
	u, err := ValidateURL(" HTTPS://Example.COM/list#top ")
	if err != nil {
		t.Fatalf("ValidateURL() error = %v", err)
	}
	if u.String() != "https://example.com/list" {
		t.Fatalf("unexpected normalized url %q", u.String())
	}
}

func TestAcquireURLPrefersRender(t *testing.T) {
	renderer := &fakeRenderer{page: RenderedPage{
		HTML:   "<html><body><p>ignored</p></body></html>",
		Text:   "Shopping\n  bread\n\n  jam ",
		Method: MethodRenderDOM,
	}}
	a := New(Config{}, WithRenderer(renderer))

	content, err := a.Acquire(context.Background(), domain.NewURLSource("https://example.com/list"))
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if content.Text != "Shopping\nbread\njam" || content.Metadata.Method != MethodRenderDOM {
		t.Fatalf("unexpected content %q method=%s", content.Text, content.Metadata.Method)
	}
	if content.Metadata.SourceURL != "https://example.com/list" || content.SourceType != domain.SourceTypeURL {
		t.Fatalf("unexpected metadata %+v", content.Metadata)
	}
}

func TestAcquireURLFallsBackToFetchWithJSONLD(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Pancakes</title>
<script type="application/ld+json">{"@context":"https://schema.org","@type":"Recipe","recipeIngredient":["2 eggs","1 cup flour"]}</script>
</head><body><nav>Home</nav><p>Lots of story text</p></body></html>`))
	}))
	defer server.Close()

	renderer := &fakeRenderer{err: errors.New("chrome not found")}
	a := New(Config{}, WithRenderer(renderer))

	content, err := a.Acquire(context.Background(), domain.NewURLSource(server.URL))
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if renderer.calls.Load() != 1 {
		t.Fatalf("expected render to be attempted once")
	}
	if content.Metadata.Method != "fetch+jsonld" {
		t.Fatalf("expected fetch+jsonld, got %s", content.Metadata.Method)
	}
	if content.Text != "Pancakes\n\n- 2 eggs\n- 1 cup flour" {
		t.Fatalf("unexpected structured text %q", content.Text)
	}
}

func TestAcquireURLRenderedErrorPageFallsBackToFetch(t *testing.T) {
	cases := []struct {
		status int
		kind   error
	}{
		{status: http.StatusForbidden, kind: domain.ErrForbidden},
		{status: http.StatusNotFound, kind: domain.ErrNotFound},
	}
	for _, tc := range cases {
		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.WriteHeader(tc.status)
		}))

		renderer := &fakeRenderer{page: RenderedPage{
			HTML:       "<html><body><h1>Access denied</h1></body></html>",
			Text:       "Access denied",
			Method:     MethodRenderDOM,
			StatusCode: tc.status,
		}}
		a := New(Config{}, WithRenderer(renderer))

		_, err := a.Acquire(context.Background(), domain.NewURLSource(server.URL))
		server.Close()
		if !domain.IsKind(err, tc.kind) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.kind, err)
		}
		if requests.Load() == 0 {
			t.Fatalf("status %d: expected fetch fallback", tc.status)
		}
	}
}

func TestAcquireURLRenderedOKStatusIsUsed(t *testing.T) {
	renderer := &fakeRenderer{page: RenderedPage{
		Text:       "eggs\nflour",
		Method:     MethodRenderDOM,
		StatusCode: http.StatusOK,
	}}
	a := New(Config{}, WithRenderer(renderer))

	content, err := a.Acquire(context.Background(), domain.NewURLSource("https://example.com/recipe"))
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if content.Metadata.Method != MethodRenderDOM {
		t.Fatalf("expected rendered content, got method %s", content.Metadata.Method)
	}
}

func TestFetchRotatesProfilesOnFailure(t *testing.T) {
	var requests atomic.Int32
	var lastUA atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		lastUA.Store(r.Header.Get("User-Agent"))
		if n < 3 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("<p>ok</p>"))
	}))
	defer server.Close()

	profiles := DefaultProfiles()
	f := NewFetcher(nil, profiles, 0)
	page, err := f.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if requests.Load() != 3 || page.Profile != profiles[2].Name {
		t.Fatalf("expected third profile to succeed, requests=%d profile=%s", requests.Load(), page.Profile)
	}
	if lastUA.Load().(string) != profiles[2].UserAgent() {
		t.Fatalf("unexpected user agent %v", lastUA.Load())
	}
}

func TestFetchStatusMapping(t *testing.T) {
	cases := []struct {
		status   int
		kind     error
		requests int32
	}{
		{status: http.StatusNotFound, kind: domain.ErrNotFound, requests: 1},
		{status: http.StatusForbidden, kind: domain.ErrForbidden, requests: 3},
		{status: http.StatusTooManyRequests, kind: domain.ErrRateLimited, requests: 3},
		{status: http.StatusServiceUnavailable, kind: domain.ErrUpstream, requests: 3},
	}
	for _, tc := range cases {
		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.WriteHeader(tc.status)
		}))

		_, err := NewFetcher(nil, DefaultProfiles(), 0).Fetch(context.Background(), server.URL)
		server.Close()
		if !domain.IsKind(err, tc.kind) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.kind, err)
		}
		if requests.Load() != tc.requests {
			t.Fatalf("status %d: expected %d requests, got %d", tc.status, tc.requests, requests.Load())
		}
	}
}

func TestFetchUnreachableAndTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := server.URL
	server.Close()

	_, err := NewFetcher(nil, DefaultProfiles()[:1], 0).Fetch(context.Background(), addr)
	if !domain.IsKind(err, domain.ErrUnreachable) {
		t.Fatalf("expected unreachable, got %v", err)
	}

	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)

	a := New(Config{FetchTimeout: 50 * time.Millisecond})
	_, err = a.Acquire(context.Background(), domain.NewURLSource(slow.URL))
	if !domain.IsKind(err, domain.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestFetchFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<p>moved here</p>"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	page, err := NewFetcher(nil, nil, 0).Fetch(context.Background(), server.URL+"/old")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !strings.HasSuffix(page.FinalURL, "/new") {
		t.Fatalf("expected final url /new, got %s", page.FinalURL)
	}
}

func TestAcquireURLEmptyPageIsInvalidInput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><script>var x = 1;</script><style>p{}</style></body></html>`))
	}))
	defer server.Close()

	_, err := New(Config{}).Acquire(context.Background(), domain.NewURLSource(server.URL))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty page, got %v", err)
	}
}

func TestAcquireURLUsesCache(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte("<ul><li>nails</li><li>screws</li></ul>"))
	}))
	defer server.Close()

	cache := &memoryCache{}
	a := New(Config{}, WithCache(cache))

	first, err := a.Acquire(context.Background(), domain.NewURLSource(server.URL))
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	second, err := a.Acquire(context.Background(), domain.NewURLSource(server.URL))
	if err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}
	if requests.Load() != 1 {
		t.Fatalf("expected one network request, got %d", requests.Load())
	}
	if first.Metadata.Cached || !second.Metadata.Cached || first.Text != second.Text {
		t.Fatalf("unexpected cache behaviour: first=%+v second=%+v", first.Metadata, second.Metadata)
	}
}

func TestLoadProfiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	raw := `profiles:
  - name: edge
    headers:
      User-Agent: "Mozilla/5.0 Edg/131.0"
      Accept-Language: "de-DE"
  - headers:
      user-agent: "curl-like"
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write profiles: %v", err)
	}
	profiles, err := LoadProfiles(path)
	if err != nil {
		t.Fatalf("LoadProfiles() error = %v", err)
	}
	if len(profiles) != 2 || profiles[0].Name != "edge" || profiles[1].Name != "profile-1" {
		t.Fatalf("unexpected profiles %+v", profiles)
	}
	if profiles[1].UserAgent() != "curl-like" {
		t.Fatalf("case-insensitive user agent lookup failed")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(bad, []byte("profiles:\n  - name: x\n    headers: {Accept: a}\n"), 0o600)
	if _, err := LoadProfiles(bad); err == nil {
		t.Fatalf("expected error for profile without user agent")
	}
}
