//
// Tencent is pleased to support the open source community by making artloom available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// artloom is licensed under the Apache License Version 2.0.
//
//

package gallery

import "errors"

// Sentinel errors for gallery operations, checked with errors.Is.
var (
	// ErrArtworkNotFound indicates the artwork id is unknown.
	ErrArtworkNotFound = errors.New("artwork not found")

	// ErrVersionNotFound indicates the version id does not belong to the
	// artwork.
	ErrVersionNotFound = errors.New("artwork version not found")

	// ErrVersionCurrent indicates an attempt to delete the current version.
	ErrVersionCurrent = errors.New("artwork version is current")

	// ErrMissingSelection indicates a promotion was attempted on a session
	// with no selected image.
	ErrMissingSelection = errors.New("no image version selected")

	// ErrInvalidVisibility indicates an unknown visibility value.
	ErrInvalidVisibility = errors.New("invalid visibility")
)
