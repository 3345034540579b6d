package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// LocalStore writes blobs below a root directory.
type LocalStore struct {
	root     string
	maxBytes int64
	logger   *zerolog.Logger
}

func NewLocalStore(root string, maxBytes int64, logger *zerolog.Logger) *LocalStore {
	if root == "" {
		root = "."
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &LocalStore{root: root, maxBytes: maxBytes, logger: logger}
}

// Store validates the image and returns its path relative to the root.
func (s *LocalStore) Store(ctx context.Context, name string, data []byte) (string, error) {
	if _, err := Validate(name, data, s.maxBytes); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := objectKey(name)
	full := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}

	s.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("blob stored")
	return key, nil
}

func (s *LocalStore) Delete(_ context.Context, path string) error {
	full := filepath.Join(s.root, filepath.FromSlash(path))
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove upload: %w", err)
	}
	s.logger.Debug().Str("key", path).Msg("blob removed")
	return nil
}
