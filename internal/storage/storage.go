/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package storage keeps uploaded speaker avatars on the local filesystem or
// in an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/friendsincode/confplanner/internal/config"
)

var (
	// ErrUnsupportedImage is returned for uploads that are not png, jpeg, gif or webp.
	ErrUnsupportedImage = errors.New("unsupported image type")
	// ErrInvalidKey is returned for keys that escape the storage root.
	ErrInvalidKey = errors.New("invalid storage key")
)

// ObjectStore abstracts object storage operations.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
	CheckAccess(ctx context.Context) error
}

// New picks S3 when a bucket is configured, the filesystem otherwise.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (ObjectStore, error) {
	logger = logger.With().Str("component", "storage").Logger()

	if cfg.S3Bucket == "" {
		return NewFilesystemStore(cfg.AvatarRoot, AvatarURLPrefix, logger), nil
	}

	if cfg.S3AccessKeyID == "" || cfg.S3SecretAccessKey == "" {
		logger.Warn().Msg("S3 credentials not configured, falling back to the default AWS credential chain")
	}
	store, err := NewS3Store(ctx, S3Config{
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		Region:          cfg.S3Region,
		Bucket:          cfg.S3Bucket,
		Endpoint:        cfg.S3Endpoint,
		PublicBaseURL:   cfg.S3PublicBaseURL,
		UsePathStyle:    cfg.S3UsePathStyle,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize S3 storage: %w", err)
	}
	return store, nil
}

// AvatarURLPrefix is where the server mounts the filesystem store.
const AvatarURLPrefix = "/avatars/"

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// DetectImage sniffs the first bytes of an upload and returns its content
// type and file extension.
func DetectImage(head []byte) (contentType, ext string, err error) {
	contentType = http.DetectContentType(head)
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedImage, contentType)
	}
	return contentType, ext, nil
}

// AvatarKey builds the object key for a speaker avatar.
// Structure: speakers/id[0:2]/id.ext
func AvatarKey(speakerID, ext string) string {
	if len(speakerID) < 2 {
		return path.Join("speakers", speakerID+ext)
	}
	return path.Join("speakers", speakerID[0:2], speakerID+ext)
}

// cleanKey rejects absolute keys and keys with parent references.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
