//
// Tencent is pleased to support the open source community by making artloom available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// artloom is licensed under the Apache License Version 2.0.
//
//

// Package local provides a filesystem implementation of the artifact store.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/artloom/artloom/artifact"
	"github.com/artloom/artloom/internal/fileutil"
)

var _ artifact.Store = (*Store)(nil)

// Store keeps artifacts as plain files under a single root directory.
// Stored paths are absolute filesystem paths.
type Store struct {
	root string
}

// New creates a filesystem store rooted at root. The root directory is
// created if it does not exist.
func New(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve store root %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create store root %s: %w", abs, err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute root directory of the store.
func (s *Store) Root() string {
	return s.root
}

// Save copies srcFile into dir/filename below the store root.
func (s *Store) Save(ctx context.Context, srcFile, dir, filename string) (string, error) {
	dst, err := s.resolve(dir, filename)
	if err != nil {
		return "", err
	}
	if err := fileutil.CopyFileAtomic(srcFile, dst); err != nil {
		return "", fmt.Errorf("save artifact: %w", err)
	}
	return dst, nil
}

// Copy duplicates a stored artifact into dir/filename. On the filesystem a
// stored artifact is just a file, so Copy and Save share the same mechanics.
func (s *Store) Copy(ctx context.Context, srcPath, dir, filename string) (string, error) {
	dst, err := s.resolve(dir, filename)
	if err != nil {
		return "", err
	}
	if err := fileutil.CopyFileAtomic(srcPath, dst); err != nil {
		return "", fmt.Errorf("copy artifact: %w", err)
	}
	return dst, nil
}

// Exists reports whether the file at path is present.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat artifact %s: %w", path, err)
}

// Delete removes a single stored file. Deleting a file that is already gone
// is not an error.
func (s *Store) Delete(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete artifact %s: %w", path, err)
	}
	return nil
}

// RemoveAll removes the whole namespace directory below the store root.
func (s *Store) RemoveAll(ctx context.Context, dir string) error {
	target, err := s.namespace(dir)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("remove namespace %s: %w", dir, err)
	}
	return nil
}

// resolve maps dir/filename onto an absolute destination path and rejects
// names that would escape the store root.
func (s *Store) resolve(dir, filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) {
		return "", fmt.Errorf("invalid artifact filename %q", filename)
	}
	ns, err := s.namespace(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(ns, filename), nil
}

func (s *Store) namespace(dir string) (string, error) {
	cleaned := filepath.Clean(dir)
	if cleaned == "." || cleaned == string(filepath.Separator) ||
		strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid artifact namespace %q", dir)
	}
	return filepath.Join(s.root, cleaned), nil
}
