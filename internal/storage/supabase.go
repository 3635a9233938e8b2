package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	contentTypeJPEG       = "image/jpeg"
	defaultStorageTimeout = 20 * time.Second
)

// SupabaseOptions configures a SupabaseStore.
type SupabaseOptions struct {
	BaseURL    string
	Bucket     string
	Token      string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     zerolog.Logger
}

// SupabaseStore publishes objects through the Supabase Storage REST API.
type SupabaseStore struct {
	httpClient *http.Client
	baseURL    string
	bucket     string
	token      string
	timeout    time.Duration
	logger     zerolog.Logger
}

// NewSupabaseStore builds a store for opts.Bucket under opts.BaseURL
// (for example https://<ref>.supabase.co/storage/v1).
func NewSupabaseStore(opts SupabaseOptions) (*SupabaseStore, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("storage: supabase base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("storage: invalid supabase base url: %w", err)
	}
	bucket := strings.Trim(strings.TrimSpace(opts.Bucket), "/")
	if bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, errors.New("storage: supabase service key is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultStorageTimeout
	}
	return &SupabaseStore{
		httpClient: client,
		baseURL:    base,
		bucket:     bucket,
		token:      token,
		timeout:    timeout,
		logger:     opts.Logger,
	}, nil
}

// Publish stores data at key. It first tries a creating upload (POST); if that
// fails for any reason, typically because the object already exists, it
// retries as an overwrite (PUT). Any 2xx counts as success.
func (s *SupabaseStore) Publish(ctx context.Context, key string, data []byte) error {
	createErr := s.upload(ctx, http.MethodPost, key, data)
	if createErr == nil {
		s.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("storage: object created")
		return nil
	}
	s.logger.Debug().Err(createErr).Str("key", key).Int("status", statusOf(createErr)).Msg("storage: create failed, overwriting")

	overwriteErr := s.upload(ctx, http.MethodPut, key, data)
	if overwriteErr == nil {
		s.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("storage: object overwritten")
		return nil
	}
	perr := &PublishError{Key: key, Create: createErr, Overwrite: overwriteErr}
	s.logger.Error().
		Str("key", key).
		Str("bucket", s.bucket).
		Int("bytes", len(data)).
		Ints("status_codes", perr.StatusCodes()).
		Msg("storage: create and overwrite both failed")
	return perr
}

// PublicURL is the address the public site uses for key.
func (s *SupabaseStore) PublicURL(key string) string {
	return s.baseURL + "/object/public/" + s.bucket + "/" + escapeKey(key)
}

func (s *SupabaseStore) objectURL(key string) string {
	return s.baseURL + "/object/" + s.bucket + "/" + escapeKey(key)
}

func (s *SupabaseStore) upload(ctx context.Context, method, key string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, s.objectURL(key), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", contentTypeJPEG)
	req.Header.Set("Cache-Control", "no-cache")
	req.ContentLength = int64(len(data))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("storage: %s %s: %w", method, key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1))
	return &StatusError{Method: method, Key: key, StatusCode: resp.StatusCode, Body: excerpt(body)}
}

func escapeKey(key string) string {
	parts := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
