//
// Tencent is pleased to support the open source community by making artloom available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// artloom is licensed under the Apache License Version 2.0.
//
//

// Package local provides the local gallery service: promotion of sessions
// into artworks and the per-artwork version ledger, persisted as one JSON
// record per artwork.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/artloom/artloom/artifact"
	"github.com/artloom/artloom/gallery"
	"github.com/artloom/artloom/internal/fileutil"
	"github.com/artloom/artloom/log"
	"github.com/artloom/artloom/session"
	atrace "github.com/artloom/artloom/telemetry/trace"
)

var _ gallery.Service = (*Service)(nil)

// entry pairs an artwork with the mutex that linearizes its operations.
type entry struct {
	mu  sync.RWMutex
	art *gallery.Artwork
}

// Service is the local implementation of gallery.Service.
type Service struct {
	dir      string
	store    artifact.Store
	sessions session.Service

	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates a gallery service persisting artwork records under dir,
// artifact files in store, and promoting sessions from the given registry.
// Existing records found in dir are loaded back into memory.
func New(dir string, store artifact.Store, sessions session.Service) (*Service, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artworks directory %s: %w", dir, err)
	}
	s := &Service{
		dir:      dir,
		store:    store,
		sessions: sessions,
		entries:  make(map[string]*entry),
	}
	if err := s.loadArtworks(); err != nil {
		return nil, err
	}
	return s, nil
}

// loadArtworks restores persisted artwork records from disk.
func (s *Service) loadArtworks() error {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read artworks directory %s: %w", s.dir, err)
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, f.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("skip unreadable artwork record %s: %v", path, err)
			continue
		}
		var art gallery.Artwork
		if err := json.Unmarshal(data, &art); err != nil {
			log.Warnf("skip corrupt artwork record %s: %v", path, err)
			continue
		}
		s.entries[art.ID] = &entry{art: &art}
	}
	return nil
}

// Promote converts a session's selected versions into a permanent artwork.
func (s *Service) Promote(ctx context.Context, sessionID string, meta gallery.Meta) (*gallery.Artwork, error) {
	ctx, span := atrace.Tracer.Start(ctx, "promote_session")
	defer span.End()

	if meta.Visibility == "" {
		meta.Visibility = gallery.VisibilityPrivate
	}
	if !meta.Visibility.Valid() {
		return nil, fmt.Errorf("%w: %q", gallery.ErrInvalidVisibility, meta.Visibility)
	}

	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == session.StatusClosed {
		return nil, fmt.Errorf("promote session %s: %w", sessionID, session.ErrSessionClosed)
	}

	selected := sess.SelectedVersions()
	image, ok := selected[artifact.TypeImage]
	if !ok {
		return nil, fmt.Errorf("promote session %s: %w", sessionID, gallery.ErrMissingSelection)
	}

	// The model selection is re-validated against the store at promotion
	// time, not trusted from the record.
	model, hasModel := selected[artifact.TypeModel]
	if hasModel {
		exists, err := s.store.Exists(ctx, model.FilePath)
		if err != nil {
			return nil, fmt.Errorf("validate model file: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("promote session %s: selected model file %s: %w",
				sessionID, model.FilePath, os.ErrNotExist)
		}
	}

	artworkID := uuid.New().String()
	versionID := uuid.New().String()
	now := time.Now().UTC()

	sources := map[artifact.Kind]string{artifact.KindImage: image.FilePath}
	if hasModel {
		sources[artifact.KindModel] = model.FilePath
	}

	files, err := s.copyIntoVersion(ctx, artworkID, versionID, sources)
	if err != nil {
		s.discardNamespace(ctx, artworkID)
		return nil, err
	}
	currentFiles, err := s.refreshLive(ctx, artworkID, files)
	if err != nil {
		s.discardNamespace(ctx, artworkID)
		return nil, err
	}

	art := &gallery.Artwork{
		ID:           artworkID,
		Title:        meta.Title,
		Description:  meta.Description,
		Visibility:   meta.Visibility,
		CurrentFiles: currentFiles,
		SessionID:    sessionID,
		CreatedAt:    now,
		UpdatedAt:    now,
		Versions: []gallery.Version{{
			ID:        versionID,
			ArtworkID: artworkID,
			Files:     files,
			Note:      "initial version",
			CreatedAt: now,
			IsCurrent: true,
		}},
	}

	if err := s.persist(art); err != nil {
		s.discardNamespace(ctx, artworkID)
		return nil, err
	}

	// Closing the session is the commit point: a concurrent promotion of
	// the same session loses here and unwinds completely.
	if err := s.sessions.CloseSession(ctx, sessionID); err != nil {
		if removeErr := os.Remove(s.recordPath(artworkID)); removeErr != nil && !os.IsNotExist(removeErr) {
			log.Warnf("remove artwork record %s: %v", artworkID, removeErr)
		}
		s.discardNamespace(ctx, artworkID)
		return nil, err
	}

	s.mu.Lock()
	s.entries[artworkID] = &entry{art: art}
	s.mu.Unlock()

	span.SetAttributes(
		attribute.String("artloom.session.id", sessionID),
		attribute.String("artloom.artwork.id", artworkID),
	)
	log.Infof("promoted session %s to artwork %s", sessionID, artworkID)
	return art.Clone(), nil
}

// GetArtwork returns a copy of the artwork record.
func (s *Service) GetArtwork(ctx context.Context, artworkID string) (*gallery.Artwork, error) {
	e, err := s.entry(artworkID)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.art.Clone(), nil
}

// ListArtworks lists artworks newest first.
func (s *Service) ListArtworks(ctx context.Context, visibility gallery.Visibility, limit int) ([]*gallery.Artwork, error) {
	if visibility != "" && !visibility.Valid() {
		return nil, fmt.Errorf("%w: %q", gallery.ErrInvalidVisibility, visibility)
	}

	s.mu.RLock()
	artworks := make([]*gallery.Artwork, 0, len(s.entries))
	for _, e := range s.entries {
		e.mu.RLock()
		if visibility == "" || e.art.Visibility == visibility {
			artworks = append(artworks, e.art.Clone())
		}
		e.mu.RUnlock()
	}
	s.mu.RUnlock()

	sort.Slice(artworks, func(i, j int) bool {
		return artworks[i].CreatedAt.After(artworks[j].CreatedAt)
	})
	if limit > 0 && len(artworks) > limit {
		artworks = artworks[:limit]
	}
	return artworks, nil
}

// UpdateArtwork edits title and description.
func (s *Service) UpdateArtwork(ctx context.Context, artworkID, title, description string) error {
	e, err := s.entry(artworkID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	prevTitle, prevDescription, prevUpdated := e.art.Title, e.art.Description, e.art.UpdatedAt
	e.art.Title = title
	e.art.Description = description
	e.art.UpdatedAt = time.Now().UTC()

	if err := s.persist(e.art); err != nil {
		e.art.Title, e.art.Description, e.art.UpdatedAt = prevTitle, prevDescription, prevUpdated
		return err
	}
	return nil
}

// SetVisibility changes where the artwork is shown.
func (s *Service) SetVisibility(ctx context.Context, artworkID string, visibility gallery.Visibility) error {
	if !visibility.Valid() {
		return fmt.Errorf("%w: %q", gallery.ErrInvalidVisibility, visibility)
	}
	e, err := s.entry(artworkID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	prev, prevUpdated := e.art.Visibility, e.art.UpdatedAt
	e.art.Visibility = visibility
	e.art.UpdatedAt = time.Now().UTC()

	if err := s.persist(e.art); err != nil {
		e.art.Visibility, e.art.UpdatedAt = prev, prevUpdated
		return err
	}
	return nil
}

// CreateVersion appends a new ledger entry from caller-owned source files.
// The new version is not current.
func (s *Service) CreateVersion(ctx context.Context, artworkID string, files gallery.FileSet, note string) (*gallery.Version, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("create artwork version: no files given")
	}
	for kind := range files {
		if !kind.Valid() {
			return nil, fmt.Errorf("create artwork version: unknown file kind %q", kind)
		}
	}

	e, err := s.entry(artworkID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	versionID := uuid.New().String()
	stored := make(gallery.FileSet, len(files))
	for kind, src := range files {
		name := versionFilename(kind, versionID, src)
		path, err := s.store.Save(ctx, src, versionNamespace(artworkID, versionID), name)
		if err != nil {
			s.discardVersionNamespace(ctx, artworkID, versionID)
			return nil, fmt.Errorf("store version file: %w", err)
		}
		stored[kind] = path
	}

	v := gallery.Version{
		ID:        versionID,
		ArtworkID: artworkID,
		Files:     stored,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	}
	e.art.Versions = append(e.art.Versions, v)
	e.art.UpdatedAt = time.Now().UTC()

	if err := s.persist(e.art); err != nil {
		e.art.Versions = e.art.Versions[:len(e.art.Versions)-1]
		s.discardVersionNamespace(ctx, artworkID, versionID)
		return nil, err
	}

	log.Debugf("created version %s for artwork %s", versionID, artworkID)
	return &v, nil
}

// SetCurrentVersion moves the current pointer to versionID and refreshes the
// artwork's live display files from it.
func (s *Service) SetCurrentVersion(ctx context.Context, artworkID, versionID string) error {
	e, err := s.entry(artworkID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	target, ok := e.art.FindVersion(versionID)
	if !ok {
		return fmt.Errorf("set current version %s: %w", versionID, gallery.ErrVersionNotFound)
	}

	// Copy into the live location before touching the pointer, so a failed
	// copy leaves the previous current version fully intact.
	currentFiles, err := s.refreshLive(ctx, artworkID, target.Files)
	if err != nil {
		return err
	}

	snapshot := e.art.Clone()
	for i := range e.art.Versions {
		e.art.Versions[i].IsCurrent = e.art.Versions[i].ID == versionID
	}
	e.art.CurrentFiles = currentFiles
	e.art.UpdatedAt = time.Now().UTC()

	if err := s.persist(e.art); err != nil {
		*e.art = *snapshot
		// The live files already carry the target version; re-copy the
		// still-current version over them so disk matches the record.
		if prior, ok := snapshot.CurrentVersion(); ok {
			if _, copyErr := s.refreshLive(ctx, artworkID, prior.Files); copyErr != nil {
				log.Warnf("restore live files for artwork %s: %v", artworkID, copyErr)
			}
		}
		return err
	}
	return nil
}

// DeleteVersion removes a ledger entry and its files. The current version is
// protected.
func (s *Service) DeleteVersion(ctx context.Context, artworkID, versionID string) error {
	e, err := s.entry(artworkID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	target, ok := e.art.FindVersion(versionID)
	if !ok {
		return fmt.Errorf("delete artwork version %s: %w", versionID, gallery.ErrVersionNotFound)
	}
	if target.IsCurrent {
		return fmt.Errorf("delete artwork version %s: %w", versionID, gallery.ErrVersionCurrent)
	}

	prev := e.art.Versions
	kept := make([]gallery.Version, 0, len(prev)-1)
	for _, v := range prev {
		if v.ID != versionID {
			kept = append(kept, v)
		}
	}
	e.art.Versions = kept
	e.art.UpdatedAt = time.Now().UTC()

	if err := s.persist(e.art); err != nil {
		e.art.Versions = prev
		return err
	}

	s.discardVersionNamespace(ctx, artworkID, versionID)
	return nil
}

// ListVersions lists the ledger newest first.
func (s *Service) ListVersions(ctx context.Context, artworkID string) ([]gallery.Version, error) {
	e, err := s.entry(artworkID)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	versions := make([]gallery.Version, len(e.art.Versions))
	copy(versions, e.art.Versions)
	for i := range versions {
		versions[i].Files = versions[i].Files.Clone()
	}
	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].CreatedAt.After(versions[j].CreatedAt)
	})
	return versions, nil
}

// CurrentVersion returns the current ledger entry, or nil if none is set.
func (s *Service) CurrentVersion(ctx context.Context, artworkID string) (*gallery.Version, error) {
	e, err := s.entry(artworkID)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	current, ok := e.art.CurrentVersion()
	if !ok {
		return nil, nil
	}
	current.Files = current.Files.Clone()
	return &current, nil
}

// VersionStats summarizes the ledger.
func (s *Service) VersionStats(ctx context.Context, artworkID string) (*gallery.VersionStats, error) {
	e, err := s.entry(artworkID)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := &gallery.VersionStats{Total: len(e.art.Versions)}
	for _, v := range e.art.Versions {
		if v.IsCurrent {
			stats.CurrentID = v.ID
		}
		if _, ok := v.Files[artifact.KindImage]; ok {
			stats.HasImageVersions = true
		}
		if _, ok := v.Files[artifact.KindModel]; ok {
			stats.HasModelVersions = true
		}
	}
	return stats, nil
}

// copyIntoVersion duplicates stored artifacts into a version namespace.
func (s *Service) copyIntoVersion(
	ctx context.Context,
	artworkID, versionID string,
	sources map[artifact.Kind]string,
) (gallery.FileSet, error) {
	files := make(gallery.FileSet, len(sources))
	for kind, src := range sources {
		name := versionFilename(kind, versionID, src)
		path, err := s.store.Copy(ctx, src, versionNamespace(artworkID, versionID), name)
		if err != nil {
			return nil, fmt.Errorf("copy %s file: %w", kind, err)
		}
		files[kind] = path
	}
	return files, nil
}

// refreshLive copies a version's files into the artwork's live display
// location and returns the resulting file set.
func (s *Service) refreshLive(ctx context.Context, artworkID string, files gallery.FileSet) (gallery.FileSet, error) {
	live := make(gallery.FileSet, len(files))
	for kind, src := range files {
		name := fmt.Sprintf("%s_%s%s", kind, shortID(artworkID), strings.ToLower(filepath.Ext(src)))
		path, err := s.store.Copy(ctx, src, artworkNamespace(artworkID), name)
		if err != nil {
			return nil, fmt.Errorf("refresh live %s file: %w", kind, err)
		}
		live[kind] = path
	}
	return live, nil
}

// discardNamespace best-effort removes everything stored for an artwork.
func (s *Service) discardNamespace(ctx context.Context, artworkID string) {
	if err := s.store.RemoveAll(ctx, artworkNamespace(artworkID)); err != nil {
		log.Warnf("discard artwork namespace %s: %v", artworkID, err)
	}
}

// discardVersionNamespace best-effort removes one version's files.
func (s *Service) discardVersionNamespace(ctx context.Context, artworkID, versionID string) {
	if err := s.store.RemoveAll(ctx, versionNamespace(artworkID, versionID)); err != nil {
		log.Warnf("discard version namespace %s/%s: %v", artworkID, versionID, err)
	}
}

func (s *Service) entry(artworkID string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[artworkID]
	if !ok {
		return nil, fmt.Errorf("artwork %s: %w", artworkID, gallery.ErrArtworkNotFound)
	}
	return e, nil
}

// persist writes the full artwork record back to disk. Callers hold the
// artwork lock.
func (s *Service) persist(art *gallery.Artwork) error {
	data, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artwork %s: %w", art.ID, err)
	}
	if err := fileutil.WriteFileAtomic(s.recordPath(art.ID), data, 0o644); err != nil {
		return fmt.Errorf("persist artwork %s: %w", art.ID, err)
	}
	return nil
}

func (s *Service) recordPath(artworkID string) string {
	return filepath.Join(s.dir, artworkID+".json")
}

// artworkNamespace is the artifact store namespace holding an artwork's live
// display files.
func artworkNamespace(artworkID string) string {
	return "artworks/" + artworkID
}

// versionNamespace holds one ledger entry's files.
func versionNamespace(artworkID, versionID string) string {
	return "artworks/" + artworkID + "/versions/" + versionID
}

func versionFilename(kind artifact.Kind, versionID, src string) string {
	return fmt.Sprintf("%s_%s%s", kind, shortID(versionID), strings.ToLower(filepath.Ext(src)))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
