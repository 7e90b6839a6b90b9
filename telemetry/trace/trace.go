//
// Tencent is pleased to support the open source community by making artloom available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// artloom is licensed under the Apache License Version 2.0.
//
//

// Package trace holds the tracer used across artloom. By default it is a
// no-op; applications that want spans exported install their own provider
// with SetTracerProvider during startup.
package trace

import (
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentName identifies artloom spans.
const InstrumentName = "github.com/artloom/artloom"

var (
	// TracerProvider is the provider backing Tracer.
	TracerProvider trace.TracerProvider = noop.NewTracerProvider()

	// Tracer is used for all spans emitted by artloom components.
	Tracer = TracerProvider.Tracer(InstrumentName)
)

// SetTracerProvider installs a provider and rebuilds the package tracer.
// It is meant to be called once during application startup, before any
// component starts emitting spans.
func SetTracerProvider(tp trace.TracerProvider) {
	if tp == nil {
		return
	}
	TracerProvider = tp
	Tracer = TracerProvider.Tracer(InstrumentName)
}
