/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// FilesystemStore implements ObjectStore on a local directory.
type FilesystemStore struct {
	rootDir   string
	urlPrefix string
	logger    zerolog.Logger
}

// NewFilesystemStore creates a filesystem-based store. URLs are urlPrefix
// followed by the key.
func NewFilesystemStore(rootDir, urlPrefix string, logger zerolog.Logger) *FilesystemStore {
	return &FilesystemStore{
		rootDir:   rootDir,
		urlPrefix: strings.TrimSuffix(urlPrefix, "/") + "/",
		logger:    logger,
	}
}

// Root returns the directory the store writes to.
func (fs *FilesystemStore) Root() string {
	return fs.rootDir
}

// Put writes body to key, replacing any existing file.
func (fs *FilesystemStore) Put(ctx context.Context, key, contentType string, body io.Reader) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	fullPath := filepath.Join(fs.rootDir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	// Write to a temp file first so readers never see a partial avatar.
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("move file: %w", err)
	}

	fs.logger.Debug().
		Str("path", fullPath).
		Str("key", key).
		Str("content_type", contentType).
		Msg("filesystem storage: file stored")
	return nil
}

// Delete removes a file. Missing files are not an error.
func (fs *FilesystemStore) Delete(ctx context.Context, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	fullPath := filepath.Join(fs.rootDir, filepath.FromSlash(key))
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}

	fs.logger.Debug().Str("path", fullPath).Msg("filesystem storage: file deleted")
	return nil
}

// URL returns the path the server serves the file under.
func (fs *FilesystemStore) URL(key string) string {
	return fs.urlPrefix + strings.TrimPrefix(key, "/")
}

// CheckAccess creates the root if needed and verifies it is a directory.
func (fs *FilesystemStore) CheckAccess(ctx context.Context) error {
	if err := os.MkdirAll(fs.rootDir, 0755); err != nil {
		return fmt.Errorf("create avatar root: %w", err)
	}
	info, err := os.Stat(fs.rootDir)
	if err != nil {
		return fmt.Errorf("cannot access avatar root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("avatar root is not a directory: %s", fs.rootDir)
	}
	return nil
}
