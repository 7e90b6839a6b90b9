//
// Tencent is pleased to support the open source community by making artloom available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// artloom is licensed under the Apache License Version 2.0.
//
//

package session

import "errors"

// Sentinel errors for session operations, checked with errors.Is.
var (
	// ErrSessionNotFound indicates the session id is unknown.
	ErrSessionNotFound = errors.New("session not found")

	// ErrVersionNotFound indicates the version id does not exist anywhere
	// in the session.
	ErrVersionNotFound = errors.New("version not found")

	// ErrSessionClosed indicates a mutating operation was attempted on a
	// closed session, or CloseSession was called twice.
	ErrSessionClosed = errors.New("session is closed")

	// ErrVersionSelected indicates an attempt to delete the version that is
	// currently selected for its type.
	ErrVersionSelected = errors.New("version is currently selected")

	// ErrInvalidType indicates an unknown artifact type was supplied.
	ErrInvalidType = errors.New("invalid artifact type")
)
