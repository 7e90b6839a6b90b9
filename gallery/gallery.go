//
// Tencent is pleased to support the open source community by making artloom available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// artloom is licensed under the Apache License Version 2.0.
//
//

// Package gallery provides the permanent artwork model: promotion of a
// session's selected versions into an artwork, and the artwork's own
// independent version history with a single current pointer.
package gallery

import (
	"time"

	"github.com/artloom/artloom/artifact"
)

// Visibility controls where an artwork is shown.
type Visibility string

const (
	// VisibilityPrivate hides the artwork from everyone but its owner.
	VisibilityPrivate Visibility = "private"
	// VisibilityPublic lists the artwork in the public gallery.
	VisibilityPublic Visibility = "public"
	// VisibilityFeatured highlights the artwork in the public gallery.
	VisibilityFeatured Visibility = "featured"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPrivate, VisibilityPublic, VisibilityFeatured:
		return true
	}
	return false
}

// FileSet maps an artifact kind to a stored path. An artwork carries at most
// one file per kind.
type FileSet map[artifact.Kind]string

// Clone returns a copy of the file set.
func (f FileSet) Clone() FileSet {
	if f == nil {
		return nil
	}
	copied := make(FileSet, len(f))
	for k, v := range f {
		copied[k] = v
	}
	return copied
}

// ArtworkStats carries the artwork's display counters. They are persisted on
// the record; mutation belongs to the social layer, not this subsystem.
type ArtworkStats struct {
	ViewCount int `json:"viewCount"`
	VoteCount int `json:"voteCount"`
}

// Version is one revision of a promoted artwork.
type Version struct {
	ID        string    `json:"id"`
	ArtworkID string    `json:"artworkId"`
	Files     FileSet   `json:"files"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	// IsCurrent marks the single version whose files the artwork displays.
	// At most one version per artwork is current at any time.
	IsCurrent bool `json:"isCurrent"`
}

// Artwork is the permanent record created by promotion.
type Artwork struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Visibility  Visibility   `json:"visibility"`
	Stats       ArtworkStats `json:"stats"`
	// CurrentFiles mirrors the current version's files at the artwork's
	// live display location, so readers never resolve through the ledger.
	CurrentFiles FileSet `json:"currentFiles"`
	// SessionID records which session this artwork was promoted from.
	SessionID string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	// Versions is the artwork's full version ledger, oldest first.
	Versions []Version `json:"versions"`
}

// Clone returns a deep copy of the artwork.
func (a *Artwork) Clone() *Artwork {
	copied := *a
	copied.CurrentFiles = a.CurrentFiles.Clone()
	copied.Versions = make([]Version, len(a.Versions))
	copy(copied.Versions, a.Versions)
	for i := range copied.Versions {
		copied.Versions[i].Files = copied.Versions[i].Files.Clone()
	}
	return &copied
}

// FindVersion looks up a ledger entry by id.
func (a *Artwork) FindVersion(versionID string) (Version, bool) {
	for _, v := range a.Versions {
		if v.ID == versionID {
			return v, true
		}
	}
	return Version{}, false
}

// CurrentVersion returns the current ledger entry, if any.
func (a *Artwork) CurrentVersion() (Version, bool) {
	for _, v := range a.Versions {
		if v.IsCurrent {
			return v, true
		}
	}
	return Version{}, false
}

// Meta is the caller-supplied metadata for a promotion.
type Meta struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Visibility  Visibility `json:"visibility,omitempty"`
}

// VersionStats is a derived summary of an artwork's ledger.
type VersionStats struct {
	Total            int    `json:"total"`
	CurrentID        string `json:"currentId,omitempty"`
	HasImageVersions bool   `json:"hasImageVersions"`
	HasModelVersions bool   `json:"hasModelVersions"`
}
