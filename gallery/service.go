//
// Tencent is pleased to support the open source community by making artloom available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// artloom is licensed under the Apache License Version 2.0.
//
//

package gallery

import "context"

// Service is the interface for promotion and the artwork version ledger.
//
// All mutating operations on a single artwork are linearized; operations on
// different artworks do not contend. Every mutating call persists the
// artwork record before returning success.
type Service interface {
	// Promote converts a session's selected versions into a permanent
	// artwork with one initial current version, then closes the session.
	// It requires a selected image version; a selected model version is
	// re-validated against the store before it is copied. Promotion is
	// all-or-nothing: on failure no artwork exists and the session stays
	// active.
	Promote(ctx context.Context, sessionID string, meta Meta) (*Artwork, error)

	// GetArtwork returns a copy of the full artwork record.
	GetArtwork(ctx context.Context, artworkID string) (*Artwork, error)

	// ListArtworks lists artworks newest first. An empty visibility returns
	// all; limit <= 0 means no limit.
	ListArtworks(ctx context.Context, visibility Visibility, limit int) ([]*Artwork, error)

	// UpdateArtwork edits title and description.
	UpdateArtwork(ctx context.Context, artworkID, title, description string) error

	// SetVisibility changes where the artwork is shown.
	SetVisibility(ctx context.Context, artworkID string, visibility Visibility) error

	// CreateVersion appends a new ledger entry from the given source files.
	// The new version is NOT current; promotion to current is a separate
	// SetCurrentVersion call.
	CreateVersion(ctx context.Context, artworkID string, files FileSet, note string) (*Version, error)

	// SetCurrentVersion atomically moves the current pointer to versionID
	// and refreshes the artwork's live display files from it.
	SetCurrentVersion(ctx context.Context, artworkID, versionID string) error

	// DeleteVersion removes a ledger entry and its files. The current
	// version is protected; move the pointer first.
	DeleteVersion(ctx context.Context, artworkID, versionID string) error

	// ListVersions lists the ledger newest first.
	ListVersions(ctx context.Context, artworkID string) ([]Version, error)

	// CurrentVersion returns the current ledger entry, or nil if the
	// artwork transiently has none.
	CurrentVersion(ctx context.Context, artworkID string) (*Version, error)

	// VersionStats summarizes the ledger.
	VersionStats(ctx context.Context, artworkID string) (*VersionStats, error)
}
