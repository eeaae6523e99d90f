package acquire

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Macrina/Listify-Agent-sub000/internal/core/domain"
)

const (
	DefaultMaxChars      = 20000
	DefaultMaxImageBytes = 20 << 20
)

var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

// ContentCache stores acquired page text between runs.
type ContentCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type Config struct {
	MaxChars      int
	MaxImageBytes int
	RenderTimeout time.Duration
	FetchTimeout  time.Duration
	MaxRedirects  int
	CacheTTL      time.Duration
	Profiles      []HeaderProfile
}

type Option func(*Acquirer)

func WithRenderer(r Renderer) Option {
	return func(a *Acquirer) { a.renderer = r }
}

func WithCache(c ContentCache) Option {
	return func(a *Acquirer) { a.cache = c }
}

func WithHTTPClient(client *http.Client) Option {
	return func(a *Acquirer) { a.httpClient = client }
}

// Acquirer turns a source descriptor into model-ready content. Only URL
// sources touch the network.
type Acquirer struct {
	cfg        Config
	renderer   Renderer
	cache      ContentCache
	httpClient *http.Client
	fetcher    *Fetcher
}

func New(cfg Config, opts ...Option) *Acquirer {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = DefaultMaxImageBytes
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 30 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 20 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}

	a := &Acquirer{cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}
	a.fetcher = NewFetcher(a.httpClient, cfg.Profiles, cfg.MaxRedirects)
	return a
}

func (a *Acquirer) Acquire(ctx context.Context, source domain.SourceDescriptor) (domain.AcquiredContent, error) {
	switch source.Kind {
	case domain.SourceImage:
		return a.acquireImage(source)
	case domain.SourceText:
		return a.acquireText(source)
	case domain.SourceDocument:
		return a.acquireDocument(source)
	case domain.SourceURL:
		return a.acquireURL(ctx, source)
	default:
		return domain.AcquiredContent{}, domain.WrapError(domain.ErrInvalidInput, "acquire", fmt.Errorf("unknown source kind %q", source.Kind))
	}
}

func (a *Acquirer) acquireImage(source domain.SourceDescriptor) (domain.AcquiredContent, error) {
	if len(source.Data) == 0 {
		return domain.AcquiredContent{}, domain.WrapError(domain.ErrInvalidInput, "acquire.image", errors.New("image is empty"))
	}
	if len(source.Data) > a.cfg.MaxImageBytes {
		return domain.AcquiredContent{}, domain.WrapError(domain.ErrInvalidInput, "acquire.image", fmt.Errorf("image exceeds %d bytes", a.cfg.MaxImageBytes))
	}

	mimeType := baseMime(source.MimeType)
	if _, ok := allowedImageTypes[mimeType]; !ok {
		mimeType = baseMime(http.DetectContentType(source.Data))
	}
	if _, ok := allowedImageTypes[mimeType]; !ok {
		return domain.AcquiredContent{}, domain.WrapError(domain.ErrInvalidInput, "acquire.image", fmt.Errorf("unsupported image type %q", mimeType))
	}

	return domain.AcquiredContent{
		Kind:       domain.ContentImage,
		Image:      source.Data,
		MimeType:   mimeType,
		SourceType: source.SourceType(),
		Metadata: domain.ContentMetadata{
			LengthBytes:    len(source.Data),
			OriginalLength: len(source.Data),
			Method:         "upload",
		},
	}, nil
}

func (a *Acquirer) acquireText(source domain.SourceDescriptor) (domain.AcquiredContent, error) {
	body := strings.TrimSpace(source.Body)
	if body == "" {
		return domain.AcquiredContent{}, domain.WrapError(domain.ErrInvalidInput, "acquire.text", errors.New("text is empty"))
	}
	return a.textContent(body, source.SourceType(), "text", ""), nil
}

func (a *Acquirer) acquireDocument(source domain.SourceDescriptor) (domain.AcquiredContent, error) {
	if len(source.Data) == 0 {
		return domain.AcquiredContent{}, domain.WrapError(domain.ErrInvalidInput, "acquire.document", errors.New("document is empty"))
	}
	if !isPDF(source.Data, source.MimeType) {
		return domain.AcquiredContent{}, domain.WrapError(domain.ErrInvalidInput, "acquire.document", fmt.Errorf("unsupported document type %q", source.MimeType))
	}
	text, err := PDFText(source.Data)
	if err != nil {
		return domain.AcquiredContent{}, domain.WrapError(domain.ErrInvalidInput, "acquire.document", err)
	}
	if text == "" {
		return domain.AcquiredContent{}, domain.WrapError(domain.ErrInvalidInput, "acquire.document", errors.New("document has no text layer"))
	}
	return a.textContent(text, source.SourceType(), "pdf", ""), nil
}

// ValidateURL accepts absolute http and https URLs with a host.
func ValidateURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "acquire.url", errors.New("url is empty"))
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "acquire.url", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "acquire.url", fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	if u.Hostname() == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "acquire.url", errors.New("url has no host"))
	}
	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u, nil
}

type cachedPage struct {
	Text   string `json:"text"`
	Method string `json:"method"`
}

func (a *Acquirer) acquireURL(ctx context.Context, source domain.SourceDescriptor) (domain.AcquiredContent, error) {
	u, err := ValidateURL(source.Address)
	if err != nil {
		return domain.AcquiredContent{}, err
	}
	pageURL := u.String()
	key := cacheKey(pageURL)

	if content, ok := a.fromCache(ctx, key, pageURL); ok {
		return content, nil
	}

	text, method, err := a.acquirePageText(ctx, pageURL)
	if err != nil {
		return domain.AcquiredContent{}, err
	}
	if text == "" {
		return domain.AcquiredContent{}, domain.WrapError(domain.ErrInvalidInput, "acquire.url", errors.New("page has no readable content"))
	}

	content := a.textContent(text, domain.SourceTypeURL, method, pageURL)
	a.storeCache(ctx, key, cachedPage{Text: text, Method: method})
	return content, nil
}

// acquirePageText runs the render strategy and falls back to fetch when it
// fails or yields no text. A non-2xx document counts as a render failure so
// the site's status surfaces through the fetch error mapping.
func (a *Acquirer) acquirePageText(ctx context.Context, pageURL string) (string, string, error) {
	if a.renderer != nil {
		renderCtx, cancel := context.WithTimeout(ctx, a.cfg.RenderTimeout)
		page, err := a.renderer.Render(renderCtx, pageURL)
		cancel()
		if err == nil && page.StatusCode != 0 && (page.StatusCode < 200 || page.StatusCode >= 300) {
			err = fmt.Errorf("rendered document status %d", page.StatusCode)
		}
		if err == nil {
			if text, method := renderedText(page); text != "" {
				return text, method, nil
			}
			err = errors.New("rendered page has no text")
		}
		if ctx.Err() != nil {
			return "", "", domain.WrapError(domain.ErrTimeout, "acquire.render", ctx.Err())
		}
		slog.Warn("acquire.strategy_failed", "strategy", "render", "url", pageURL, "error", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
	defer cancel()
	fetched, err := a.fetcher.Fetch(fetchCtx, pageURL)
	if err != nil {
		slog.Warn("acquire.strategy_failed", "strategy", "fetch", "url", pageURL, "error", err)
		return "", "", err
	}
	text, method := fetchedText(fetched)
	return text, method, nil
}

func renderedText(page RenderedPage) (string, string) {
	parsed, err := ParseHTML([]byte(page.HTML), "text/html; charset=utf-8")
	if err == nil {
		if structured := parsed.StructuredText(); structured != "" {
			return structured, page.Method + "+jsonld"
		}
	}
	if text := normalizeWhitespace(page.Text); text != "" {
		return text, page.Method
	}
	if err == nil {
		return parsed.Text, page.Method
	}
	return "", page.Method
}

func fetchedText(page FetchedPage) (string, string) {
	mt := baseMime(page.ContentType)
	switch {
	case mt == "application/pdf" || isPDF(page.Body, ""):
		text, err := PDFText(page.Body)
		if err != nil {
			slog.Warn("acquire.pdf_text_failed", "url", page.FinalURL, "error", err)
			return "", MethodFetch + "+pdf"
		}
		return text, MethodFetch + "+pdf"
	case mt == "" || strings.Contains(mt, "html") || strings.Contains(mt, "xml"):
		parsed, err := ParseHTML(page.Body, page.ContentType)
		if err != nil {
			return "", MethodFetch
		}
		if structured := parsed.StructuredText(); structured != "" {
			return structured, MethodFetch + "+jsonld"
		}
		return parsed.Text, MethodFetch
	default:
		if !utf8.Valid(page.Body) {
			return "", MethodFetch
		}
		return normalizeWhitespace(string(page.Body)), MethodFetch
	}
}

func (a *Acquirer) textContent(text string, sourceType domain.SourceType, method, sourceURL string) domain.AcquiredContent {
	original := utf8.RuneCountInString(text)
	truncated, wasTruncated := Truncate(text, a.cfg.MaxChars)
	return domain.AcquiredContent{
		Kind:       domain.ContentText,
		Text:       truncated,
		SourceType: sourceType,
		Metadata: domain.ContentMetadata{
			LengthBytes:    len(truncated),
			OriginalLength: original,
			Method:         method,
			Truncated:      wasTruncated,
			SourceURL:      sourceURL,
		},
	}
}

func (a *Acquirer) fromCache(ctx context.Context, key, pageURL string) (domain.AcquiredContent, bool) {
	if a.cache == nil {
		return domain.AcquiredContent{}, false
	}
	raw, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("acquire.cache_get_failed", "url", pageURL, "error", err)
		return domain.AcquiredContent{}, false
	}
	if !ok {
		return domain.AcquiredContent{}, false
	}
	var page cachedPage
	if err := json.Unmarshal(raw, &page); err != nil || page.Text == "" {
		return domain.AcquiredContent{}, false
	}
	content := a.textContent(page.Text, domain.SourceTypeURL, page.Method, pageURL)
	content.Metadata.Cached = true
	return content, true
}

func (a *Acquirer) storeCache(ctx context.Context, key string, page cachedPage) {
	if a.cache == nil {
		return
	}
	raw, err := json.Marshal(page)
	if err != nil {
		return
	}
	if err := a.cache.Set(ctx, key, raw, a.cfg.CacheTTL); err != nil {
		slog.Warn("acquire.cache_set_failed", "error", err)
	}
}

func cacheKey(pageURL string) string {
	sum := sha256.Sum256([]byte(pageURL))
	return "listify:content:" + hex.EncodeToString(sum[:])
}
