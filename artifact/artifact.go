//
// Tencent is pleased to support the open source community by making artloom available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// artloom is licensed under the Apache License Version 2.0.
//
//

// Package artifact provides the definition and storage service for creative
// artifacts produced during a session.
package artifact

// Type classifies a session version by the kind of artifact it holds.
type Type string

const (
	// TypeOriginal is the user's original sketch.
	TypeOriginal Type = "original"
	// TypeImage is a colorized image produced by a generator.
	TypeImage Type = "image"
	// TypeFigurine is a figurine-style transfer of the image.
	TypeFigurine Type = "figurine"
	// TypeModel is a generated 3D model.
	TypeModel Type = "model"
)

// Types lists every valid artifact type in display order.
var Types = []Type{TypeOriginal, TypeImage, TypeFigurine, TypeModel}

// Valid reports whether t is one of the known artifact types.
func (t Type) Valid() bool {
	switch t {
	case TypeOriginal, TypeImage, TypeFigurine, TypeModel:
		return true
	}
	return false
}

// Kind labels a file inside a promoted artwork's file set.
// An artwork carries at most one file per kind.
type Kind string

const (
	// KindImage is the artwork's display image.
	KindImage Kind = "image"
	// KindModel is the artwork's 3D model file.
	KindModel Kind = "model"
)

// Valid reports whether k is one of the known file kinds.
func (k Kind) Valid() bool {
	return k == KindImage || k == KindModel
}
