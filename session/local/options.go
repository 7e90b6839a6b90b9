//
// Tencent is pleased to support the open source community by making artloom available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// artloom is licensed under the Apache License Version 2.0.
//
//

package local

import "time"

const (
	defaultCleanupConcurrency = 4
	defaultSweepMaxAge        = 7 * 24 * time.Hour
)

// ServiceOpt configures the local session registry.
type ServiceOpt func(*serviceOpts)

type serviceOpts struct {
	sweepInterval      time.Duration
	sweepMaxAge        time.Duration
	cleanupConcurrency int
}

var defaultOptions = serviceOpts{
	sweepMaxAge:        defaultSweepMaxAge,
	cleanupConcurrency: defaultCleanupConcurrency,
}

// WithSweepInterval enables the background cleanup sweep, running every d.
// A non-positive value (the default) disables the sweep; cleanup then only
// happens through explicit CleanupOldSessions calls.
func WithSweepInterval(d time.Duration) ServiceOpt {
	return func(o *serviceOpts) {
		o.sweepInterval = d
	}
}

// WithSweepMaxAge sets the age threshold used by the background sweep.
// Defaults to seven days.
func WithSweepMaxAge(d time.Duration) ServiceOpt {
	return func(o *serviceOpts) {
		if d > 0 {
			o.sweepMaxAge = d
		}
	}
}

// WithCleanupConcurrency bounds how many session directories are removed in
// parallel during cleanup.
func WithCleanupConcurrency(n int) ServiceOpt {
	return func(o *serviceOpts) {
		if n > 0 {
			o.cleanupConcurrency = n
		}
	}
}
