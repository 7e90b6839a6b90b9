//
// Tencent is pleased to support the open source community by making artloom available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// artloom is licensed under the Apache License Version 2.0.
//
//

// Package local provides the local session registry: an in-memory session
// table mirrored to one JSON record per session on disk.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/artloom/artloom/artifact"
	"github.com/artloom/artloom/internal/fileutil"
	"github.com/artloom/artloom/log"
	"github.com/artloom/artloom/session"
	atrace "github.com/artloom/artloom/telemetry/trace"
)

var _ session.Service = (*Registry)(nil)

// entry pairs a session with the mutex that linearizes its operations.
type entry struct {
	mu   sync.RWMutex
	sess *session.Session
}

// Registry is the local implementation of session.Service. Mutations take
// the per-session lock for the duration of read-modify-write-persist, so
// concurrent requests against different sessions never contend.
type Registry struct {
	dir   string
	store artifact.Store
	opts  serviceOpts

	mu      sync.RWMutex
	entries map[string]*entry

	sweepTicker *time.Ticker
	sweepDone   chan struct{}
	closeOnce   sync.Once
}

// New creates a registry persisting session records under dir and artifact
// files in store. Existing records found in dir are loaded back into memory.
func New(dir string, store artifact.Store, options ...ServiceOpt) (*Registry, error) {
	opts := defaultOptions
	for _, option := range options {
		option(&opts)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions directory %s: %w", dir, err)
	}

	r := &Registry{
		dir:       dir,
		store:     store,
		opts:      opts,
		entries:   make(map[string]*entry),
		sweepDone: make(chan struct{}),
	}
	if err := r.loadSessions(); err != nil {
		return nil, err
	}

	if opts.sweepInterval > 0 {
		r.startSweepRoutine()
	}
	return r, nil
}

// loadSessions restores persisted session records from disk.
func (r *Registry) loadSessions() error {
	files, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("read sessions directory %s: %w", r.dir, err)
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		path := filepath.Join(r.dir, f.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("skip unreadable session record %s: %v", path, err)
			continue
		}
		var sess session.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			log.Warnf("skip corrupt session record %s: %v", path, err)
			continue
		}
		if sess.Versions == nil {
			sess.Versions = make(map[artifact.Type][]session.Version)
		}
		if sess.Selected == nil {
			sess.Selected = make(map[artifact.Type]string)
		}
		r.entries[sess.ID] = &entry{sess: &sess}
	}
	return nil
}

// CreateSession allocates a fresh active session.
func (r *Registry) CreateSession(ctx context.Context, userInfo session.Metadata) (*session.Session, error) {
	sess := session.New(uuid.New().String(), userInfo)
	if err := r.persist(sess); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.entries[sess.ID] = &entry{sess: sess}
	r.mu.Unlock()

	log.Debugf("created session %s", sess.ID)
	return sess.Clone(), nil
}

// GetSession returns a copy of the session record.
func (r *Registry) GetSession(ctx context.Context, sessionID string) (*session.Session, error) {
	e, err := r.entry(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sess.Clone(), nil
}

// AddVersion ingests the caller's file and appends a new version. The new
// version is not selected.
func (r *Registry) AddVersion(
	ctx context.Context,
	sessionID string,
	typ artifact.Type,
	srcFile string,
	meta session.Metadata,
) (*session.Version, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: %q", session.ErrInvalidType, typ)
	}
	e, err := r.entry(sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess.Status == session.StatusClosed {
		return nil, fmt.Errorf("add version to %s: %w", sessionID, session.ErrSessionClosed)
	}

	versionID := uuid.New().String()
	// Ordinal counts existing versions of this type so filenames stay
	// stable and human-sortable.
	ordinal := len(e.sess.Versions[typ]) + 1
	filename := fmt.Sprintf("%s_v%d_%s%s", typ, ordinal, shortID(versionID), strings.ToLower(filepath.Ext(srcFile)))

	path, err := r.store.Save(ctx, srcFile, sessionNamespace(sessionID), filename)
	if err != nil {
		return nil, fmt.Errorf("store version file: %w", err)
	}

	v := session.Version{
		ID:        versionID,
		Type:      typ,
		FilePath:  path,
		Metadata:  meta.Clone(),
		CreatedAt: time.Now().UTC(),
	}
	e.sess.Versions[typ] = append(e.sess.Versions[typ], v)
	e.sess.UpdatedAt = time.Now().UTC()

	if err := r.persist(e.sess); err != nil {
		// Roll back the in-memory append; the copied file is an orphan for
		// the GC pass, never a dangling reference.
		versions := e.sess.Versions[typ]
		e.sess.Versions[typ] = versions[:len(versions)-1]
		return nil, err
	}

	log.Debugf("added version %s (%s) to session %s", versionID, typ, sessionID)
	return &v, nil
}

// SelectVersion marks versionID as the selection for its type, overwriting
// any prior selection for that type.
func (r *Registry) SelectVersion(ctx context.Context, sessionID, versionID string) (artifact.Type, *session.Version, error) {
	e, err := r.entry(sessionID)
	if err != nil {
		return "", nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess.Status == session.StatusClosed {
		return "", nil, fmt.Errorf("select version in %s: %w", sessionID, session.ErrSessionClosed)
	}

	v, typ, ok := e.sess.FindVersion(versionID)
	if !ok {
		return "", nil, fmt.Errorf("select version %s: %w", versionID, session.ErrVersionNotFound)
	}

	prior, hadPrior := e.sess.Selected[typ]
	e.sess.Selected[typ] = versionID
	e.sess.UpdatedAt = time.Now().UTC()

	if err := r.persist(e.sess); err != nil {
		if hadPrior {
			e.sess.Selected[typ] = prior
		} else {
			delete(e.sess.Selected, typ)
		}
		return "", nil, err
	}
	return typ, &v, nil
}

// GetSessionVersions lists versions in creation order, optionally filtered
// by type.
func (r *Registry) GetSessionVersions(ctx context.Context, sessionID string, typ artifact.Type) ([]session.Version, error) {
	if typ != "" && !typ.Valid() {
		return nil, fmt.Errorf("%w: %q", session.ErrInvalidType, typ)
	}
	e, err := r.entry(sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if typ != "" {
		versions := make([]session.Version, len(e.sess.Versions[typ]))
		copy(versions, e.sess.Versions[typ])
		return versions, nil
	}
	var versions []session.Version
	for _, t := range artifact.Types {
		versions = append(versions, e.sess.Versions[t]...)
	}
	return versions, nil
}

// GetSelectedVersions returns the resolved selection.
func (r *Registry) GetSelectedVersions(ctx context.Context, sessionID string) (map[artifact.Type]session.Version, error) {
	e, err := r.entry(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sess.SelectedVersions(), nil
}

// DeleteVersion removes a version and its backing file. The selected version
// of a type is protected; callers must select something else first.
func (r *Registry) DeleteVersion(ctx context.Context, sessionID, versionID string) error {
	e, err := r.entry(sessionID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess.Status == session.StatusClosed {
		return fmt.Errorf("delete version in %s: %w", sessionID, session.ErrSessionClosed)
	}

	v, typ, ok := e.sess.FindVersion(versionID)
	if !ok {
		return fmt.Errorf("delete version %s: %w", versionID, session.ErrVersionNotFound)
	}
	if e.sess.Selected[typ] == versionID {
		return fmt.Errorf("delete version %s: %w", versionID, session.ErrVersionSelected)
	}

	versions := e.sess.Versions[typ]
	kept := make([]session.Version, 0, len(versions)-1)
	for _, existing := range versions {
		if existing.ID != versionID {
			kept = append(kept, existing)
		}
	}
	e.sess.Versions[typ] = kept
	e.sess.UpdatedAt = time.Now().UTC()

	if err := r.persist(e.sess); err != nil {
		e.sess.Versions[typ] = versions
		return err
	}

	// The record no longer references the file, so a failed delete only
	// leaves an orphan for the GC pass.
	if err := r.store.Delete(ctx, v.FilePath); err != nil {
		log.Warnf("delete version file %s: %v", v.FilePath, err)
	}
	return nil
}

// CloseSession transitions the session to closed; terminal.
func (r *Registry) CloseSession(ctx context.Context, sessionID string) error {
	e, err := r.entry(sessionID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess.Status == session.StatusClosed {
		return fmt.Errorf("close session %s: %w", sessionID, session.ErrSessionClosed)
	}

	now := time.Now().UTC()
	e.sess.Status = session.StatusClosed
	e.sess.ClosedAt = &now
	e.sess.UpdatedAt = now

	if err := r.persist(e.sess); err != nil {
		e.sess.Status = session.StatusActive
		e.sess.ClosedAt = nil
		return err
	}

	log.Debugf("closed session %s", sessionID)
	return nil
}

// CleanupOldSessions deletes closed sessions created more than maxAge ago.
// Directory removal fans out through a bounded worker pool.
func (r *Registry) CleanupOldSessions(ctx context.Context, maxAge time.Duration) (int, error) {
	ctx, span := atrace.Tracer.Start(ctx, "cleanup_old_sessions")
	defer span.End()

	cutoff := time.Now().Add(-maxAge)

	// Scan for candidates under the shared lock so in-flight operations on
	// unrelated sessions are not stalled by the sweep.
	r.mu.RLock()
	var candidates []string
	for id, e := range r.entries {
		e.mu.RLock()
		old := e.sess.Status == session.StatusClosed && e.sess.CreatedAt.Before(cutoff)
		e.mu.RUnlock()
		if old {
			candidates = append(candidates, id)
		}
	}
	r.mu.RUnlock()

	// Re-check under the write lock; candidates are closed, so their locks
	// are only ever held briefly by readers here.
	r.mu.Lock()
	var expired []string
	for _, id := range candidates {
		e, ok := r.entries[id]
		if !ok {
			continue
		}
		e.mu.RLock()
		old := e.sess.Status == session.StatusClosed && e.sess.CreatedAt.Before(cutoff)
		e.mu.RUnlock()
		if old {
			delete(r.entries, id)
			expired = append(expired, id)
		}
	}
	r.mu.Unlock()

	if len(expired) == 0 {
		return 0, nil
	}

	if err := r.removeSessionData(ctx, expired); err != nil {
		return len(expired), err
	}

	span.SetAttributes(attribute.Int("artloom.sessions.removed", len(expired)))
	log.Infof("cleaned up %d old sessions", len(expired))
	return len(expired), nil
}

// removeSessionData deletes record files and artifact namespaces for the
// given sessions, bounded by the configured cleanup concurrency.
func (r *Registry) removeSessionData(ctx context.Context, ids []string) error {
	pool, err := newCleanupPool(r.opts.cleanupConcurrency)
	if err != nil {
		return err
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for _, id := range ids {
		if err := os.Remove(r.recordPath(id)); err != nil && !os.IsNotExist(err) {
			log.Warnf("remove session record %s: %v", id, err)
		}

		wg.Add(1)
		param := cleanupParamPool.Get().(*cleanupParam)
		param.ctx = ctx
		param.store = r.store
		param.namespace = sessionNamespace(id)
		param.wg = &wg
		if err := pool.Invoke(param); err != nil {
			wg.Done()
			param.reset()
			cleanupParamPool.Put(param)
			log.Warnf("schedule cleanup for session %s: %v", id, err)
		}
	}
	wg.Wait()
	return nil
}

// Stats aggregates counts across all sessions.
func (r *Registry) Stats(ctx context.Context) (*session.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &session.Stats{
		VersionCounts: make(map[artifact.Type]int, len(artifact.Types)),
	}
	for _, t := range artifact.Types {
		stats.VersionCounts[t] = 0
	}
	for _, e := range r.entries {
		e.mu.RLock()
		stats.TotalSessions++
		if e.sess.Status == session.StatusActive {
			stats.ActiveSessions++
		} else {
			stats.ClosedSessions++
		}
		for typ, versions := range e.sess.Versions {
			stats.VersionCounts[typ] += len(versions)
		}
		e.mu.RUnlock()
	}
	return stats, nil
}

// Close stops the background sweep, if one is running.
func (r *Registry) Close() error {
	r.closeOnce.Do(func() {
		if r.sweepTicker != nil {
			r.sweepTicker.Stop()
			close(r.sweepDone)
		}
	})
	return nil
}

// startSweepRoutine starts the periodic age-based cleanup.
func (r *Registry) startSweepRoutine() {
	r.sweepTicker = time.NewTicker(r.opts.sweepInterval)
	ticker := r.sweepTicker
	go func() {
		for {
			select {
			case <-ticker.C:
				if _, err := r.CleanupOldSessions(context.Background(), r.opts.sweepMaxAge); err != nil {
					log.Warnf("background session sweep: %v", err)
				}
			case <-r.sweepDone:
				return
			}
		}
	}()
}

func (r *Registry) entry(sessionID string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, session.ErrSessionNotFound)
	}
	return e, nil
}

// persist writes the full session record back to disk. Callers hold the
// session lock.
func (r *Registry) persist(sess *session.Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	if err := fileutil.WriteFileAtomic(r.recordPath(sess.ID), data, 0o644); err != nil {
		return fmt.Errorf("persist session %s: %w", sess.ID, err)
	}
	return nil
}

func (r *Registry) recordPath(sessionID string) string {
	return filepath.Join(r.dir, sessionID+".json")
}

// sessionNamespace is the artifact store namespace holding a session's files.
func sessionNamespace(sessionID string) string {
	return "sessions/" + sessionID
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
