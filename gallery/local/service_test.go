//
// Tencent is pleased to support the open source community by making artloom available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// artloom is licensed under the Apache License Version 2.0.
//
//

package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artloom/artloom/artifact"
	artifactlocal "github.com/artloom/artloom/artifact/local"
	"github.com/artloom/artloom/gallery"
	"github.com/artloom/artloom/session"
	sessionlocal "github.com/artloom/artloom/session/local"
)

type testEnv struct {
	service  *Service
	registry *sessionlocal.Registry
	store    *artifactlocal.Store
	dir      string
	srcDir   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	base := t.TempDir()
	store, err := artifactlocal.New(filepath.Join(base, "artifacts"))
	require.NoError(t, err)

	registry, err := sessionlocal.New(filepath.Join(base, "sessions"), store)
	require.NoError(t, err)
	t.Cleanup(func() { registry.Close() })

	dir := filepath.Join(base, "artworks")
	service, err := New(dir, store, registry)
	require.NoError(t, err)

	return &testEnv{
		service:  service,
		registry: registry,
		store:    store,
		dir:      dir,
		srcDir:   filepath.Join(base, "incoming"),
	}
}

func (env *testEnv) sourceFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(env.srcDir, 0o755))
	path := filepath.Join(env.srcDir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// promotableSession builds a session with selected image and model versions.
func (env *testEnv) promotableSession(t *testing.T) *session.Session {
	t.Helper()
	ctx := context.Background()

	sess, err := env.registry.CreateSession(ctx, session.Metadata{"user": "mika"})
	require.NoError(t, err)

	img, err := env.registry.AddVersion(ctx, sess.ID, artifact.TypeImage,
		env.sourceFile(t, "img.png", []byte("png-bytes")), nil)
	require.NoError(t, err)
	_, _, err = env.registry.SelectVersion(ctx, sess.ID, img.ID)
	require.NoError(t, err)

	mdl, err := env.registry.AddVersion(ctx, sess.ID, artifact.TypeModel,
		env.sourceFile(t, "mdl.glb", []byte("glb-bytes")), nil)
	require.NoError(t, err)
	_, _, err = env.registry.SelectVersion(ctx, sess.ID, mdl.ID)
	require.NoError(t, err)

	return sess
}

func TestPromote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.promotableSession(t)

	art, err := env.service.Promote(ctx, sess.ID, gallery.Meta{
		Title:      "Clay Fox",
		Visibility: gallery.VisibilityPublic,
	})
	require.NoError(t, err)
	assert.Equal(t, "Clay Fox", art.Title)
	assert.Equal(t, gallery.VisibilityPublic, art.Visibility)
	assert.Equal(t, sess.ID, art.SessionID)

	// A single initial ledger entry, already current.
	require.Len(t, art.Versions, 1)
	assert.True(t, art.Versions[0].IsCurrent)
	assert.Contains(t, art.Versions[0].Files, artifact.KindImage)
	assert.Contains(t, art.Versions[0].Files, artifact.KindModel)

	// Live files exist and are private copies, not the session paths.
	for kind, path := range art.CurrentFiles {
		exists, err := env.store.Exists(ctx, path)
		require.NoError(t, err)
		assert.True(t, exists, "live %s file missing", kind)
	}

	// Promotion closes the source session.
	got, err := env.registry.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusClosed, got.Status)

	// The record is durable.
	_, err = os.Stat(filepath.Join(env.dir, art.ID+".json"))
	require.NoError(t, err)
}

func TestPromoteDefaultsToPrivate(t *testing.T) {
	env := newTestEnv(t)
	sess := env.promotableSession(t)

	art, err := env.service.Promote(context.Background(), sess.ID, gallery.Meta{Title: "Untitled"})
	require.NoError(t, err)
	assert.Equal(t, gallery.VisibilityPrivate, art.Visibility)
}

func TestPromoteWithoutImageSelection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess, err := env.registry.CreateSession(ctx, nil)
	require.NoError(t, err)

	// A version that exists but was never selected does not count.
	_, err = env.registry.AddVersion(ctx, sess.ID, artifact.TypeImage,
		env.sourceFile(t, "img.png", []byte("png")), nil)
	require.NoError(t, err)

	_, err = env.service.Promote(ctx, sess.ID, gallery.Meta{})
	require.ErrorIs(t, err, gallery.ErrMissingSelection)

	// The failed promotion leaves the session usable.
	got, err := env.registry.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, got.Status)
}

func TestPromoteImageOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess, err := env.registry.CreateSession(ctx, nil)
	require.NoError(t, err)
	img, err := env.registry.AddVersion(ctx, sess.ID, artifact.TypeImage,
		env.sourceFile(t, "img.png", []byte("png")), nil)
	require.NoError(t, err)
	_, _, err = env.registry.SelectVersion(ctx, sess.ID, img.ID)
	require.NoError(t, err)

	art, err := env.service.Promote(ctx, sess.ID, gallery.Meta{})
	require.NoError(t, err)
	assert.Contains(t, art.CurrentFiles, artifact.KindImage)
	assert.NotContains(t, art.CurrentFiles, artifact.KindModel)
}

func TestPromoteTwice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.promotableSession(t)

	_, err := env.service.Promote(ctx, sess.ID, gallery.Meta{})
	require.NoError(t, err)

	_, err = env.service.Promote(ctx, sess.ID, gallery.Meta{})
	require.ErrorIs(t, err, session.ErrSessionClosed)

	// Exactly one artwork came out of the session.
	artworks, err := env.service.ListArtworks(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, artworks, 1)
}

func TestPromoteMissingModelFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.promotableSession(t)

	// The model file vanishes between selection and promotion.
	selected, err := env.registry.GetSelectedVersions(ctx, sess.ID)
	require.NoError(t, err)
	require.NoError(t, os.Remove(selected[artifact.TypeModel].FilePath))

	_, err = env.service.Promote(ctx, sess.ID, gallery.Meta{})
	require.ErrorIs(t, err, os.ErrNotExist)

	// All-or-nothing: no artwork exists and the session stays active.
	artworks, err := env.service.ListArtworks(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, artworks)

	got, err := env.registry.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, got.Status)
}

func TestPromoteUnknownSession(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Promote(context.Background(), "nope", gallery.Meta{})
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestPromoteInvalidVisibility(t *testing.T) {
	env := newTestEnv(t)
	sess := env.promotableSession(t)

	_, err := env.service.Promote(context.Background(), sess.ID,
		gallery.Meta{Visibility: "everyone"})
	require.ErrorIs(t, err, gallery.ErrInvalidVisibility)
}

func TestPromotedArtworkSurvivesSessionCleanup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.promotableSession(t)

	art, err := env.service.Promote(ctx, sess.ID, gallery.Meta{})
	require.NoError(t, err)

	// Sweep the closed session out immediately.
	removed, err := env.registry.CleanupOldSessions(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	got, err := env.service.GetArtwork(ctx, art.ID)
	require.NoError(t, err)
	for _, path := range got.CurrentFiles {
		exists, err := env.store.Exists(ctx, path)
		require.NoError(t, err)
		assert.True(t, exists)
	}
	for _, v := range got.Versions {
		for _, path := range v.Files {
			exists, err := env.store.Exists(ctx, path)
			require.NoError(t, err)
			assert.True(t, exists)
		}
	}
}

func TestGetArtworkNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.GetArtwork(context.Background(), "missing")
	require.ErrorIs(t, err, gallery.ErrArtworkNotFound)
}

func TestListArtworks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.service.Promote(ctx, env.promotableSession(t).ID,
		gallery.Meta{Title: "First", Visibility: gallery.VisibilityPublic})
	require.NoError(t, err)
	second, err := env.service.Promote(ctx, env.promotableSession(t).ID,
		gallery.Meta{Title: "Second", Visibility: gallery.VisibilityPrivate})
	require.NoError(t, err)

	all, err := env.service.ListArtworks(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	public, err := env.service.ListArtworks(ctx, gallery.VisibilityPublic, 0)
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, first.ID, public[0].ID)

	private, err := env.service.ListArtworks(ctx, gallery.VisibilityPrivate, 0)
	require.NoError(t, err)
	require.Len(t, private, 1)
	assert.Equal(t, second.ID, private[0].ID)

	limited, err := env.service.ListArtworks(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = env.service.ListArtworks(ctx, "everyone", 0)
	require.ErrorIs(t, err, gallery.ErrInvalidVisibility)
}

func TestUpdateArtwork(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	art, err := env.service.Promote(ctx, env.promotableSession(t).ID,
		gallery.Meta{Title: "Draft"})
	require.NoError(t, err)

	require.NoError(t, env.service.UpdateArtwork(ctx, art.ID, "Final", "all done"))

	got, err := env.service.GetArtwork(ctx, art.ID)
	require.NoError(t, err)
	assert.Equal(t, "Final", got.Title)
	assert.Equal(t, "all done", got.Description)
	assert.True(t, got.UpdatedAt.After(art.UpdatedAt) || got.UpdatedAt.Equal(art.UpdatedAt))

	require.ErrorIs(t, env.service.UpdateArtwork(ctx, "missing", "x", "y"),
		gallery.ErrArtworkNotFound)
}

func TestSetVisibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	art, err := env.service.Promote(ctx, env.promotableSession(t).ID, gallery.Meta{})
	require.NoError(t, err)

	require.NoError(t, env.service.SetVisibility(ctx, art.ID, gallery.VisibilityFeatured))
	got, err := env.service.GetArtwork(ctx, art.ID)
	require.NoError(t, err)
	assert.Equal(t, gallery.VisibilityFeatured, got.Visibility)

	require.ErrorIs(t, env.service.SetVisibility(ctx, art.ID, "everyone"),
		gallery.ErrInvalidVisibility)
}

func TestCreateVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	art, err := env.service.Promote(ctx, env.promotableSession(t).ID, gallery.Meta{})
	require.NoError(t, err)

	v, err := env.service.CreateVersion(ctx, art.ID, gallery.FileSet{
		artifact.KindImage: env.sourceFile(t, "retouch.png", []byte("retouched")),
	}, "retouched lighting")
	require.NoError(t, err)
	assert.Equal(t, art.ID, v.ArtworkID)
	assert.Equal(t, "retouched lighting", v.Note)

	// New ledger entries never steal the current pointer.
	assert.False(t, v.IsCurrent)
	current, err := env.service.CurrentVersion(ctx, art.ID)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.NotEqual(t, v.ID, current.ID)

	exists, err := env.store.Exists(ctx, v.Files[artifact.KindImage])
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCreateVersionValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	art, err := env.service.Promote(ctx, env.promotableSession(t).ID, gallery.Meta{})
	require.NoError(t, err)

	_, err = env.service.CreateVersion(ctx, art.ID, nil, "")
	require.Error(t, err)

	_, err = env.service.CreateVersion(ctx, art.ID, gallery.FileSet{
		"hologram": env.sourceFile(t, "h.bin", []byte("x")),
	}, "")
	require.Error(t, err)

	_, err = env.service.CreateVersion(ctx, "missing", gallery.FileSet{
		artifact.KindImage: env.sourceFile(t, "a.png", []byte("x")),
	}, "")
	require.ErrorIs(t, err, gallery.ErrArtworkNotFound)
}

func TestSetCurrentVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	art, err := env.service.Promote(ctx, env.promotableSession(t).ID, gallery.Meta{})
	require.NoError(t, err)
	initial := art.Versions[0]

	v2, err := env.service.CreateVersion(ctx, art.ID, gallery.FileSet{
		artifact.KindImage: env.sourceFile(t, "v2.png", []byte("second take")),
	}, "second take")
	require.NoError(t, err)

	require.NoError(t, env.service.SetCurrentVersion(ctx, art.ID, v2.ID))

	got, err := env.service.GetArtwork(ctx, art.ID)
	require.NoError(t, err)

	// Exactly one current version.
	var currents int
	for _, v := range got.Versions {
		if v.IsCurrent {
			currents++
			assert.Equal(t, v2.ID, v.ID)
		}
	}
	assert.Equal(t, 1, currents)

	// The live image now carries the new content.
	data, err := os.ReadFile(got.CurrentFiles[artifact.KindImage])
	require.NoError(t, err)
	assert.Equal(t, []byte("second take"), data)

	// The prior version's own files are untouched.
	for _, path := range initial.Files {
		exists, err := env.store.Exists(ctx, path)
		require.NoError(t, err)
		assert.True(t, exists)
	}

	require.ErrorIs(t, env.service.SetCurrentVersion(ctx, art.ID, "missing"),
		gallery.ErrVersionNotFound)
}

func TestSetCurrentVersionPersistFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	art, err := env.service.Promote(ctx, env.promotableSession(t).ID, gallery.Meta{})
	require.NoError(t, err)
	initial := art.Versions[0]

	v2, err := env.service.CreateVersion(ctx, art.ID, gallery.FileSet{
		artifact.KindImage: env.sourceFile(t, "v2.png", []byte("second take")),
	}, "")
	require.NoError(t, err)

	// Replace the record file with a directory so the rename inside the
	// next persist fails.
	recordPath := filepath.Join(env.dir, art.ID+".json")
	require.NoError(t, os.Remove(recordPath))
	require.NoError(t, os.Mkdir(recordPath, 0o755))

	require.Error(t, env.service.SetCurrentVersion(ctx, art.ID, v2.ID))

	// The current pointer did not move.
	got, err := env.service.GetArtwork(ctx, art.ID)
	require.NoError(t, err)
	current, ok := got.CurrentVersion()
	require.True(t, ok)
	assert.Equal(t, initial.ID, current.ID)

	// The live image was restored to match the record.
	data, err := os.ReadFile(got.CurrentFiles[artifact.KindImage])
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)

	// Once persistence works again, the rollback succeeds end to end.
	require.NoError(t, os.Remove(recordPath))
	require.NoError(t, env.service.SetCurrentVersion(ctx, art.ID, v2.ID))
	got, err = env.service.GetArtwork(ctx, art.ID)
	require.NoError(t, err)
	data, err = os.ReadFile(got.CurrentFiles[artifact.KindImage])
	require.NoError(t, err)
	assert.Equal(t, []byte("second take"), data)
}

func TestDeleteVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	art, err := env.service.Promote(ctx, env.promotableSession(t).ID, gallery.Meta{})
	require.NoError(t, err)
	initial := art.Versions[0]

	v2, err := env.service.CreateVersion(ctx, art.ID, gallery.FileSet{
		artifact.KindImage: env.sourceFile(t, "v2.png", []byte("second")),
	}, "")
	require.NoError(t, err)

	// The current version is protected.
	err = env.service.DeleteVersion(ctx, art.ID, initial.ID)
	require.ErrorIs(t, err, gallery.ErrVersionCurrent)

	require.NoError(t, env.service.DeleteVersion(ctx, art.ID, v2.ID))

	versions, err := env.service.ListVersions(ctx, art.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, initial.ID, versions[0].ID)

	exists, err := env.store.Exists(ctx, v2.Files[artifact.KindImage])
	require.NoError(t, err)
	assert.False(t, exists)

	require.ErrorIs(t, env.service.DeleteVersion(ctx, art.ID, "missing"),
		gallery.ErrVersionNotFound)
}

func TestListVersionsNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	art, err := env.service.Promote(ctx, env.promotableSession(t).ID, gallery.Meta{})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := env.service.CreateVersion(ctx, art.ID, gallery.FileSet{
			artifact.KindImage: env.sourceFile(t, "v.png", []byte{byte(i)}),
		}, "")
		require.NoError(t, err)
	}

	versions, err := env.service.ListVersions(ctx, art.ID)
	require.NoError(t, err)
	require.Len(t, versions, 4)
	for i := 0; i < len(versions)-1; i++ {
		assert.False(t, versions[i].CreatedAt.Before(versions[i+1].CreatedAt))
	}
}

func TestVersionStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	art, err := env.service.Promote(ctx, env.promotableSession(t).ID, gallery.Meta{})
	require.NoError(t, err)

	_, err = env.service.CreateVersion(ctx, art.ID, gallery.FileSet{
		artifact.KindImage: env.sourceFile(t, "v2.png", []byte("x")),
	}, "")
	require.NoError(t, err)

	stats, err := env.service.VersionStats(ctx, art.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, art.Versions[0].ID, stats.CurrentID)
	assert.True(t, stats.HasImageVersions)
	assert.True(t, stats.HasModelVersions)
}

func TestArtworksReloadFromDisk(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	art, err := env.service.Promote(ctx, env.promotableSession(t).ID,
		gallery.Meta{Title: "Kept"})
	require.NoError(t, err)

	reloaded, err := New(env.dir, env.store, env.registry)
	require.NoError(t, err)

	got, err := reloaded.GetArtwork(ctx, art.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kept", got.Title)
	require.Len(t, got.Versions, 1)
	assert.True(t, got.Versions[0].IsCurrent)
}
