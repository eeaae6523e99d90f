package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/Macrina/Listify-Agent-sub000/internal/core/domain"
)

const (
	defaultMaxRedirects = 10
	maxFetchBody        = 10 << 20
)

// FetchedPage is the raw answer of a successful GET.
type FetchedPage struct {
	Body        []byte
	ContentType string
	FinalURL    string
	Profile     string
}

// Fetcher performs plain HTTP GETs, rotating through header profiles. The
// next profile is only tried after the previous one failed.
type Fetcher struct {
	client   *http.Client
	profiles []HeaderProfile
}

func NewFetcher(client *http.Client, profiles []HeaderProfile, maxRedirects int) *Fetcher {
	if maxRedirects <= 0 {
		maxRedirects = defaultMaxRedirects
	}
	var c http.Client
	if client != nil {
		c = *client
	}
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}
	if len(profiles) == 0 {
		profiles = DefaultProfiles()
	}
	return &Fetcher{client: &c, profiles: profiles}
}

func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (FetchedPage, error) {
	var lastErr error
	for _, profile := range f.profiles {
		page, err := f.fetchOnce(ctx, pageURL, profile)
		if err == nil {
			return page, nil
		}
		lastErr = err

		// A missing page is missing for every profile, and a spent deadline
		// leaves no time for another one.
		if domain.IsKind(err, domain.ErrNotFound) || domain.IsKind(err, domain.ErrTimeout) || ctx.Err() != nil {
			return FetchedPage{}, err
		}
		slog.Warn("acquire.fetch_profile_failed", "url", pageURL, "profile", profile.Name, "error", err)
	}
	return FetchedPage{}, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, pageURL string, profile HeaderProfile) (FetchedPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return FetchedPage{}, domain.WrapError(domain.ErrInvalidInput, "acquire.fetch", err)
	}
	for k, v := range profile.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return FetchedPage{}, classifyNetworkError("acquire.fetch", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return FetchedPage{}, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return FetchedPage{}, classifyNetworkError("acquire.fetch_body", err)
	}
	return FetchedPage{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
		Profile:     profile.Name,
	}, nil
}

func statusError(resp *http.Response) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}
	cause := fmt.Errorf("http status %s", resp.Status)
	switch {
	case code == http.StatusForbidden || code == http.StatusUnauthorized:
		return domain.WrapError(domain.ErrForbidden, "acquire.fetch", cause)
	case code == http.StatusNotFound || code == http.StatusGone:
		return domain.WrapError(domain.ErrNotFound, "acquire.fetch", cause)
	case code == http.StatusTooManyRequests:
		return domain.WrapError(domain.ErrRateLimited, "acquire.fetch", cause)
	default:
		return domain.WrapError(domain.ErrUpstream, "acquire.fetch", cause)
	}
}

func classifyNetworkError(operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrTimeout, operation, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.WrapError(domain.ErrTimeout, operation, err)
	}
	return domain.WrapError(domain.ErrUnreachable, operation, err)
}
