package staticimage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSourceServer(t *testing.T, body string, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestFetchOK(t *testing.T) {
	srv, _ := newSourceServer(t, "image-bytes", http.StatusOK)
	f := NewFetcher(FetcherOptions{})

	data, err := f.Fetch(context.Background(), srv.URL+"/a.png")
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))
}

func TestFetchErrors(t *testing.T) {
	notFound, _ := newSourceServer(t, "missing", http.StatusNotFound)
	empty, _ := newSourceServer(t, "", http.StatusOK)
	big, _ := newSourceServer(t, strings.Repeat("x", 64), http.StatusOK)

	tests := []struct {
		name string
		opts FetcherOptions
		url  string
	}{
		{"not found", FetcherOptions{}, notFound.URL},
		{"empty body", FetcherOptions{}, empty.URL},
		{"oversized", FetcherOptions{MaxBytes: 32}, big.URL},
		{"bad scheme", FetcherOptions{}, "file:///etc/passwd"},
		{"missing host", FetcherOptions{}, "http:///a.png"},
		{"host not allowed", FetcherOptions{AllowedHosts: []string{"ref.supabase.co"}}, big.URL},
		{"unreachable", FetcherOptions{Timeout: time.Second}, "http://127.0.0.1:1/a.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFetcher(tt.opts).Fetch(context.Background(), tt.url)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFetch), "got %v", err)
		})
	}
}

func TestFetchAllowlistMatchesSubdomains(t *testing.T) {
	f := NewFetcher(FetcherOptions{AllowedHosts: []string{" Supabase.co "}})
	assert.NoError(t, f.checkURL("https://ref.supabase.co/storage/v1/object/public/gallery/a.png"))
	assert.NoError(t, f.checkURL("https://supabase.co/a.png"))
	assert.Error(t, f.checkURL("https://evilsupabase.co/a.png"))
	assert.Error(t, f.checkURL("https://supabase.co.evil.com/a.png"))
}

func TestFetchCache(t *testing.T) {
	srv, hits := newSourceServer(t, "image-bytes", http.StatusOK)

	cached := NewFetcher(FetcherOptions{CacheTTL: time.Minute})
	for i := 0; i < 3; i++ {
		_, err := cached.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())

	uncached := NewFetcher(FetcherOptions{})
	for i := 0; i < 2; i++ {
		_, err := uncached.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetchTrimsURL(t *testing.T) {
	srv, hits := newSourceServer(t, "image-bytes", http.StatusOK)
	f := NewFetcher(FetcherOptions{CacheTTL: time.Minute})

	data, err := f.Fetch(context.Background(), "  "+srv.URL+"/a.png\n")
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))

	_, err = f.Fetch(context.Background(), srv.URL+"/a.png")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "padded and plain urls share one cache entry")
}

func TestFetchCacheHonorsAllowlist(t *testing.T) {
	srv, hits := newSourceServer(t, "image-bytes", http.StatusOK)
	f := NewFetcher(FetcherOptions{CacheTTL: time.Minute})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	f.allowed = []string{"ref.supabase.co"}
	_, err = f.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrFetch)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchCancelledContext(t *testing.T) {
	srv, _ := newSourceServer(t, "image-bytes", http.StatusOK)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFetcher(FetcherOptions{}).Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetch))
	assert.True(t, errors.Is(err, context.Canceled))
}
