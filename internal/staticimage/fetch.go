package staticimage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	defaultFetchTimeout   = 20 * time.Second
	defaultMaxSourceBytes = 50 << 20
)

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	MaxBytes   int64
	// AllowedHosts restricts source URLs to these hosts and their subdomains.
	// Empty allows any host.
	AllowedHosts []string
	// CacheTTL keeps downloaded bytes per URL for this long. Zero disables caching.
	CacheTTL time.Duration
}

// Fetcher downloads source images.
type Fetcher struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
	allowed  []string
	cache    *cache.Cache
	cacheTTL time.Duration
}

// NewFetcher builds a Fetcher, filling defaults for zero options.
func NewFetcher(opts FetcherOptions) *Fetcher {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxSourceBytes
	}
	f := &Fetcher{
		client:   client,
		timeout:  timeout,
		maxBytes: maxBytes,
		cacheTTL: opts.CacheTTL,
	}
	for _, h := range opts.AllowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			f.allowed = append(f.allowed, h)
		}
	}
	if opts.CacheTTL > 0 {
		f.cache = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return f
}

// Fetch returns the bytes behind rawURL. Any non-2xx status, transport error,
// timeout or oversized body is reported as ErrFetch. There is no retry.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := f.checkURL(rawURL); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if f.cache != nil {
		if cached, ok := f.cache.Get(rawURL); ok {
			if data, ok := cached.([]byte); ok {
				return data, nil
			}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned http %d", ErrFetch, rawURL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetch, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrFetch, f.maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrFetch)
	}

	if f.cache != nil {
		f.cache.Set(rawURL, data, f.cacheTTL)
	}
	return data, nil
}

func (f *Fetcher) checkURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return errors.New("missing host")
	}
	if len(f.allowed) == 0 {
		return nil
	}
	for _, allowed := range f.allowed {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}
	return fmt.Errorf("host %q is not allowed", host)
}
