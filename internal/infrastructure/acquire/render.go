package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

const (
	MethodRenderDOM     = "render:dom"
	MethodRenderLoad    = "render:load"
	MethodRenderPartial = "render:partial"
	MethodFetch         = "fetch"
)

// RenderedPage is what a headless browser saw after navigation.
type RenderedPage struct {
	HTML   string
	Text   string
	Method string
	// StatusCode of the main document response, 0 when it was not observed.
	StatusCode int
}

// Renderer loads a page in a real browser engine.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (RenderedPage, error)
}

type ChromeConfig struct {
	ExecPath    string
	UserAgent   string
	DOMTimeout  time.Duration
	LoadTimeout time.Duration
	ReadTimeout time.Duration
}

// ChromeRenderer starts a dedicated headless Chrome per call and always tears
// it down before returning.
type ChromeRenderer struct {
	opts        []chromedp.ExecAllocatorOption
	domTimeout  time.Duration
	loadTimeout time.Duration
	readTimeout time.Duration
}

func NewChromeRenderer(cfg ChromeConfig) *ChromeRenderer {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1366, 900),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultProfiles()[0].UserAgent()
	}
	opts = append(opts, chromedp.UserAgent(ua))

	r := &ChromeRenderer{
		opts:        opts,
		domTimeout:  cfg.DOMTimeout,
		loadTimeout: cfg.LoadTimeout,
		readTimeout: cfg.ReadTimeout,
	}
	if r.domTimeout <= 0 {
		r.domTimeout = 15 * time.Second
	}
	if r.loadTimeout <= 0 {
		r.loadTimeout = 10 * time.Second
	}
	if r.readTimeout <= 0 {
		r.readTimeout = 5 * time.Second
	}
	return r
}

func (r *ChromeRenderer) Render(ctx context.Context, pageURL string) (RenderedPage, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, r.opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer func() {
		if err := chromedp.Cancel(browserCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Debug("acquire.browser_close_failed", "url", pageURL, "error", err)
		}
		browserCancel()
	}()

	// Start the browser on its own context so step timeouts below do not
	// bind the browser's lifetime.
	if err := chromedp.Run(browserCtx); err != nil {
		return RenderedPage{}, fmt.Errorf("launch browser: %w", err)
	}

	var page RenderedPage
	method := MethodRenderDOM
	domCtx, domCancel := context.WithTimeout(browserCtx, r.domTimeout)
	resp, err := chromedp.RunResponse(domCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	domCancel()
	if resp != nil {
		page.StatusCode = int(resp.Status)
	}
	if err != nil {
		if ctx.Err() != nil {
			return RenderedPage{}, fmt.Errorf("render navigate: %w", ctx.Err())
		}
		slog.Info("acquire.render_dom_wait_failed", "url", pageURL, "error", err)
		method = MethodRenderLoad
		if !r.waitLoadComplete(browserCtx) {
			method = MethodRenderPartial
		}
	}

	readCtx, readCancel := context.WithTimeout(browserCtx, r.readTimeout)
	defer readCancel()

	err = chromedp.Run(readCtx,
		chromedp.Evaluate(`document.documentElement ? document.documentElement.outerHTML : ""`, &page.HTML),
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &page.Text),
	)
	if err != nil {
		var exc *runtime.ExceptionDetails
		if errors.As(err, &exc) {
			return RenderedPage{}, fmt.Errorf("render read script error: %s", exc.Text)
		}
		return RenderedPage{}, fmt.Errorf("render read: %w", err)
	}
	page.Method = method
	return page, nil
}

// waitLoadComplete polls document.readyState until it is "complete" or the
// load timeout passes.
func (r *ChromeRenderer) waitLoadComplete(browserCtx context.Context) bool {
	loadCtx, cancel := context.WithTimeout(browserCtx, r.loadTimeout)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		var state string
		if err := chromedp.Run(loadCtx, chromedp.Evaluate(`document.readyState`, &state)); err == nil && state == "complete" {
			return true
		}
		select {
		case <-loadCtx.Done():
			return false
		case <-ticker.C:
		}
	}
}
