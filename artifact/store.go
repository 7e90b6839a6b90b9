//
// Tencent is pleased to support the open source community by making artloom available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// artloom is licensed under the Apache License Version 2.0.
//
//

package artifact

import (
	"context"
)

// Store defines the interface for artifact file placement.
//
// A store owns every byte it holds: callers hand it a source and get back an
// opaque path that only this store can resolve. Paths returned by Save and
// Copy are the only valid inputs to Exists, Copy and Delete. The dir argument
// is a store-relative namespace such as "sessions/<id>" or "artworks/<id>";
// RemoveAll tears down a whole namespace at once.
//
// Writes are commit-like: when Save or Copy returns without error the
// artifact is durable, and on error no partial file is visible.
type Store interface {
	// Save ingests a caller-owned local file into the store under
	// dir/filename and returns the stored path. The caller's file may be
	// deleted afterwards without affecting the stored copy.
	Save(ctx context.Context, srcFile, dir, filename string) (string, error)

	// Copy duplicates an artifact already held by this store into
	// dir/filename and returns the new path.
	Copy(ctx context.Context, srcPath, dir, filename string) (string, error)

	// Exists reports whether the artifact at path is still present.
	Exists(ctx context.Context, path string) (bool, error)

	// Delete removes a single artifact.
	Delete(ctx context.Context, path string) error

	// RemoveAll removes every artifact under the given namespace.
	RemoveAll(ctx context.Context, dir string) error
}
