package storage

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"path/filepath"
	"strings"

	"fixit/internal/config"
	"fixit/internal/domain"
	"fixit/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/webp"
)

// CompletionPrefix is the key prefix of completion proof images.
const CompletionPrefix = "uploads/completions"

// New builds the blob store selected by cfg.Driver.
func New(cfg config.StorageConfig, logger *zerolog.Logger) (domain.BlobStore, error) {
	switch cfg.Driver {
	case config.StorageS3:
		return NewS3Store(cfg.S3, cfg.MaxUploadMB<<20, logger)
	case config.StorageLocal, "":
		return NewLocalStore(cfg.LocalPath, cfg.MaxUploadMB<<20, logger), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Validate accepts only allowlisted extensions whose content decodes as the
// same image format. It returns the normalized extension.
func Validate(name string, data []byte, maxBytes int64) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if !allowed(ext) {
		return "", domain.ErrInvalidFileType
	}
	if len(data) == 0 {
		return "", domain.ErrInvalidFileType.WithMessage("empty file")
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return "", domain.Validation("file_too_large", fmt.Sprintf("file exceeds %d bytes", maxBytes))
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", domain.ErrInvalidFileType.WithMessage("file is not a valid image").Wrap(err)
	}
	if format != normalize(ext) {
		return "", domain.ErrInvalidFileType.WithMessage(fmt.Sprintf("%s content does not match .%s", format, ext))
	}
	return ext, nil
}

func allowed(ext string) bool {
	for _, a := range models.AllowedImageExtensions {
		if a == ext {
			return true
		}
	}
	return false
}

func normalize(ext string) string {
	if ext == "jpg" {
		return "jpeg"
	}
	return ext
}

// objectKey builds a unique key that keeps a sanitized form of the client name.
func objectKey(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, base)
	return path.Join(CompletionPrefix, uuid.NewString()+"_"+base)
}
