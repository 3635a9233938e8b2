// Package credentials keeps integration secrets in the integration_tokens
// table so they can be rotated without a redeploy.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"monteur/internal/infra"
	"monteur/internal/sqlinline"
)

const (
	ProviderSupabaseStorage = "supabase-storage"
)

type Store struct {
	sql infra.SQLExecutor
	now func() time.Time
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql, now: time.Now}
}

// StorageServiceKey returns the stored Supabase Storage service key, or ""
// when none was saved.
func (s *Store) StorageServiceKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderSupabaseStorage)
}

// ResolveStorageServiceKey prefers the key from the environment and falls
// back to the stored one.
func (s *Store) ResolveStorageServiceKey(ctx context.Context, fromEnv string) (string, error) {
	if key := strings.TrimSpace(fromEnv); key != "" {
		return key, nil
	}
	if s == nil || s.sql == nil {
		return "", errors.New("storage service key is not configured")
	}
	key, err := s.StorageServiceKey(ctx)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", errors.New("storage service key is not configured")
	}
	return key, nil
}

func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// SetStorageServiceKey saves key for the storage provider. bucket is kept in
// the row properties for operators.
func (s *Store) SetStorageServiceKey(ctx context.Context, key, bucket string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("storage service key is required")
	}
	props := map[string]any{"rotated_at": s.now().UTC().Format(time.RFC3339)}
	if bucket = strings.TrimSpace(bucket); bucket != "" {
		props["bucket"] = bucket
	}
	return s.upsert(ctx, ProviderSupabaseStorage, key, props)
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}
