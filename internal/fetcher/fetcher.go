// Package fetcher wraps the HTTP boundary of the crawler. A Fetcher
// owns the cookie session, the request pacing and the fixed timeout;
// callers get back the status code and raw body and decide themselves
// what a non-200 means.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/modelmeta/hf-crawler/cfg"
	"github.com/modelmeta/hf-crawler/pkg/log"
	"golang.org/x/time/rate"
)

type Fetcher struct {
	Logger  log.Logger
	Config  *cfg.Config
	client  *http.Client
	limiter *rate.Limiter
}

func NewFetcher(logger log.Logger, config *cfg.Config) (*Fetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	// The session cookie file is optional; without it age-gated
	// repositories simply come back as non-200.
	if config.Crawler.CookieFile != "" {
		cookies, err := loadSessionCookies(config.Crawler.CookieFile)
		if err != nil {
			return nil, err
		}
		baseURL, err := url.Parse(config.Crawler.BaseUrl)
		if err != nil {
			return nil, fmt.Errorf("failed to parse base url: %w", err)
		}
		jar.SetCookies(baseURL, cookies)
	}

	timeout := time.Duration(config.Crawler.RequestTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	rps := config.Crawler.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := config.Crawler.BurstLimit
	if burst <= 0 {
		burst = rps
	}

	return &Fetcher{
		Logger: logger,
		Config: config,
		client: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

// Fetch issues one GET. err is only set for transport-level failures;
// any HTTP status comes back as data.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (int, []byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.Config.Crawler.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read body of %s: %w", pageURL, err)
	}

	return resp.StatusCode, body, nil
}
