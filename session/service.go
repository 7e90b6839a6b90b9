//
// Tencent is pleased to support the open source community by making artloom available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// artloom is licensed under the Apache License Version 2.0.
//
//

package session

import (
	"context"
	"time"

	"github.com/artloom/artloom/artifact"
)

// Stats is an aggregate view over all sessions held by a service.
type Stats struct {
	TotalSessions  int                   `json:"totalSessions"`
	ActiveSessions int                   `json:"activeSessions"`
	ClosedSessions int                   `json:"closedSessions"`
	VersionCounts  map[artifact.Type]int `json:"versionCounts"`
}

// Service is the interface that all session registries must implement.
//
// All mutating operations on a single session are linearized; operations on
// different sessions do not contend. Every mutating call persists the session
// record before returning success.
type Service interface {
	// CreateSession allocates a fresh active session carrying the opaque
	// user info blob.
	CreateSession(ctx context.Context, userInfo Metadata) (*Session, error)

	// GetSession returns a copy of the full session record.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// AddVersion copies the caller's file into session storage and appends
	// a new version of the given type. The new version is NOT selected;
	// callers that want it chosen must call SelectVersion explicitly.
	AddVersion(ctx context.Context, sessionID string, typ artifact.Type, srcFile string, meta Metadata) (*Version, error)

	// SelectVersion marks the version as the selection for its type,
	// overwriting any prior selection for that type.
	SelectVersion(ctx context.Context, sessionID, versionID string) (artifact.Type, *Version, error)

	// GetSessionVersions lists versions in creation order. An empty typ
	// returns versions of every type.
	GetSessionVersions(ctx context.Context, sessionID string, typ artifact.Type) ([]Version, error)

	// GetSelectedVersions returns the resolved selection, one version per
	// type that has one.
	GetSelectedVersions(ctx context.Context, sessionID string) (map[artifact.Type]Version, error)

	// DeleteVersion removes a version and its backing file. The currently
	// selected version of a type cannot be deleted; select something else
	// first.
	DeleteVersion(ctx context.Context, sessionID, versionID string) error

	// CloseSession transitions the session to closed. Closing an already
	// closed session fails with ErrSessionClosed.
	CloseSession(ctx context.Context, sessionID string) error

	// CleanupOldSessions deletes closed sessions created more than maxAge
	// ago, including their artifact namespace. Active sessions are never
	// removed regardless of age. Returns the number of sessions removed.
	CleanupOldSessions(ctx context.Context, maxAge time.Duration) (int, error)

	// Stats aggregates session and version counts across the registry.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases background resources held by the service.
	Close() error
}
