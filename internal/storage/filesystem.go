package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore is the scratch area for generated images: one flat directory,
// one file per object key.
type FileStore struct {
	basePath string
}

// NewFileStore creates basePath when missing and resolves it to an absolute
// path.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: abs}, nil
}

func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Replace deletes the file stored under key, then puts data in its place and
// returns the absolute path. A missing previous file is not an error. The new
// bytes are staged next to the target so a failed write leaves no partial file
// under key.
func (s *FileStore) Replace(ctx context.Context, key string, data []byte) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, err := scratchName(key)
	if err != nil {
		return "", err
	}
	target := filepath.Join(s.basePath, name)

	tmp, err := os.CreateTemp(s.basePath, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("storage: stage %s: %w", name, err)
	}
	staged := tmp.Name()
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(staged)
		return "", fmt.Errorf("storage: write %s: %w", name, errors.Join(werr, cerr))
	}
	if err := os.Chmod(staged, 0o644); err != nil {
		_ = os.Remove(staged)
		return "", fmt.Errorf("storage: chmod %s: %w", name, err)
	}

	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_ = os.Remove(staged)
		return "", fmt.Errorf("storage: remove previous %s: %w", name, err)
	}
	if err := os.Rename(staged, target); err != nil {
		_ = os.Remove(staged)
		return "", fmt.Errorf("storage: move %s into place: %w", name, err)
	}
	return target, nil
}

// scratchName accepts a single path element. Keys are object names such as
// static_image_<id>.jpg, never paths.
func scratchName(key string) (string, error) {
	key = strings.TrimSpace(key)
	switch {
	case key == "":
		return "", errors.New("storage: key is required")
	case key == "." || key == "..", strings.HasPrefix(key, "."):
		return "", fmt.Errorf("storage: invalid key %q", key)
	case strings.ContainsAny(key, `/\`), strings.ContainsRune(key, 0):
		return "", fmt.Errorf("storage: key %q must not contain path separators", key)
	}
	return key, nil
}
