//
// Tencent is pleased to support the open source community by making artloom available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// artloom is licensed under the Apache License Version 2.0.
//
//

// Package session provides the creation-session model: per-session candidate
// versions grouped by artifact type, with at most one selected version per
// type.
package session

import (
	"time"

	"github.com/artloom/artloom/artifact"
)

// Metadata is an opaque key-value blob attached to sessions and versions.
// It is stored and returned, never interpreted.
type Metadata map[string]string

// Clone returns a copy of the metadata map.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	copied := make(Metadata, len(m))
	for k, v := range m {
		copied[k] = v
	}
	return copied
}

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusActive accepts new versions, selections and deletions.
	StatusActive Status = "active"
	// StatusClosed is terminal; a closed session is read-only.
	StatusClosed Status = "closed"
)

// Version is one immutable candidate artifact within a session.
type Version struct {
	// ID is unique within the owning session.
	ID string `json:"id"`
	// Type is fixed at creation and never changes.
	Type artifact.Type `json:"type"`
	// FilePath points at the store-owned copy of the artifact.
	FilePath string `json:"filePath"`
	// Metadata describes provenance (prompt text, source version, style).
	Metadata Metadata `json:"metadata,omitempty"`
	// CreatedAt is the creation time.
	CreatedAt time.Time `json:"createdAt"`
}

// Session is a bounded creative interaction producing candidate versions.
type Session struct {
	ID       string   `json:"id"`
	UserInfo Metadata `json:"userInfo,omitempty"`
	Status   Status   `json:"status"`
	// Versions maps artifact type to versions in creation order.
	Versions map[artifact.Type][]Version `json:"versions"`
	// Selected maps artifact type to the id of the chosen version, at most
	// one per type. A missing key means nothing is selected for that type.
	Selected  map[artifact.Type]string `json:"selected"`
	CreatedAt time.Time                `json:"createdAt"`
	UpdatedAt time.Time                `json:"updatedAt"`
	ClosedAt  *time.Time               `json:"closedAt,omitempty"`
}

// New creates an active session with empty version and selection maps.
func New(id string, userInfo Metadata) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		UserInfo:  userInfo.Clone(),
		Status:    StatusActive,
		Versions:  make(map[artifact.Type][]Version),
		Selected:  make(map[artifact.Type]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	copied := &Session{
		ID:        s.ID,
		UserInfo:  s.UserInfo.Clone(),
		Status:    s.Status,
		Versions:  make(map[artifact.Type][]Version, len(s.Versions)),
		Selected:  make(map[artifact.Type]string, len(s.Selected)),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if s.ClosedAt != nil {
		closedAt := *s.ClosedAt
		copied.ClosedAt = &closedAt
	}
	for typ, versions := range s.Versions {
		vs := make([]Version, len(versions))
		copy(vs, versions)
		for i := range vs {
			vs[i].Metadata = vs[i].Metadata.Clone()
		}
		copied.Versions[typ] = vs
	}
	for typ, id := range s.Selected {
		copied.Selected[typ] = id
	}
	return copied
}

// FindVersion looks up a version by id across all types.
func (s *Session) FindVersion(versionID string) (Version, artifact.Type, bool) {
	for typ, versions := range s.Versions {
		for _, v := range versions {
			if v.ID == versionID {
				return v, typ, true
			}
		}
	}
	return Version{}, "", false
}

// SelectedVersions resolves the selection map into full version records.
// Only types with an active selection appear in the result.
func (s *Session) SelectedVersions() map[artifact.Type]Version {
	selected := make(map[artifact.Type]Version, len(s.Selected))
	for typ, id := range s.Selected {
		for _, v := range s.Versions[typ] {
			if v.ID == id {
				selected[typ] = v
				break
			}
		}
	}
	return selected
}
