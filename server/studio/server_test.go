//
// Tencent is pleased to support the open source community by making artloom available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// artloom is licensed under the Apache License Version 2.0.
//
//

package studio

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	artifactlocal "github.com/artloom/artloom/artifact/local"
	gallerylocal "github.com/artloom/artloom/gallery/local"
	sessionlocal "github.com/artloom/artloom/session/local"
)

type testServer struct {
	ts     *httptest.Server
	srcDir string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	base := t.TempDir()
	store, err := artifactlocal.New(filepath.Join(base, "artifacts"))
	require.NoError(t, err)
	registry, err := sessionlocal.New(filepath.Join(base, "sessions"), store)
	require.NoError(t, err)
	t.Cleanup(func() { registry.Close() })
	galleries, err := gallerylocal.New(filepath.Join(base, "artworks"), store, registry)
	require.NoError(t, err)

	srv := New(registry, galleries)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{ts: ts, srcDir: filepath.Join(base, "incoming")}
}

func (s *testServer) sourceFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(s.srcDir, 0o755))
	path := filepath.Join(s.srcDir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func (s *testServer) do(t *testing.T, method, path string, body, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	var sess struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	code := s.do(t, http.MethodPost, "/sessions",
		map[string]any{"userInfo": map[string]string{"user": "mika"}}, &sess)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, "active", sess.Status)

	var version struct {
		ID string `json:"id"`
	}
	code = s.do(t, http.MethodPost, "/sessions/"+sess.ID+"/versions", map[string]any{
		"type":     "image",
		"filePath": s.sourceFile(t, "img.png", []byte("png")),
	}, &version)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, version.ID)

	code = s.do(t, http.MethodPost,
		"/sessions/"+sess.ID+"/versions/"+version.ID+"/select", nil, nil)
	require.Equal(t, http.StatusOK, code)

	var selected map[string]struct {
		ID string `json:"id"`
	}
	code = s.do(t, http.MethodGet, "/sessions/"+sess.ID+"/selected", nil, &selected)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, version.ID, selected["image"].ID)

	// Deleting the selected version is refused.
	code = s.do(t, http.MethodDelete,
		"/sessions/"+sess.ID+"/versions/"+version.ID, nil, nil)
	assert.Equal(t, http.StatusConflict, code)

	var artwork struct {
		ID string `json:"id"`
	}
	code = s.do(t, http.MethodPost, "/sessions/"+sess.ID+"/promote",
		map[string]any{"title": "Clay Fox", "visibility": "public"}, &artwork)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, artwork.ID)

	// The promoted session is closed; further mutation conflicts.
	code = s.do(t, http.MethodPost, "/sessions/"+sess.ID+"/versions", map[string]any{
		"type":     "image",
		"filePath": s.sourceFile(t, "late.png", []byte("late")),
	}, nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestErrorStatusMapping(t *testing.T) {
	s := newTestServer(t)

	// Unknown ids are 404.
	assert.Equal(t, http.StatusNotFound,
		s.do(t, http.MethodGet, "/sessions/nope", nil, nil))
	assert.Equal(t, http.StatusNotFound,
		s.do(t, http.MethodGet, "/artworks/nope", nil, nil))

	var sess struct {
		ID string `json:"id"`
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/sessions", nil, &sess))

	// Unknown artifact type is 400.
	assert.Equal(t, http.StatusBadRequest,
		s.do(t, http.MethodPost, "/sessions/"+sess.ID+"/versions", map[string]any{
			"type":     "hologram",
			"filePath": s.sourceFile(t, "x.bin", []byte("x")),
		}, nil))

	// Promotion with no selection is 422.
	assert.Equal(t, http.StatusUnprocessableEntity,
		s.do(t, http.MethodPost, "/sessions/"+sess.ID+"/promote",
			map[string]any{"title": "Nothing"}, nil))

	// Invalid visibility filter is 400.
	assert.Equal(t, http.StatusBadRequest,
		s.do(t, http.MethodGet, "/artworks?visibility=everyone", nil, nil))
}

func TestArtworkLedgerOverHTTP(t *testing.T) {
	s := newTestServer(t)

	var sess struct {
		ID string `json:"id"`
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/sessions", nil, &sess))
	var version struct {
		ID string `json:"id"`
	}
	require.Equal(t, http.StatusOK,
		s.do(t, http.MethodPost, "/sessions/"+sess.ID+"/versions", map[string]any{
			"type":     "image",
			"filePath": s.sourceFile(t, "img.png", []byte("png")),
		}, &version))
	require.Equal(t, http.StatusOK,
		s.do(t, http.MethodPost, "/sessions/"+sess.ID+"/versions/"+version.ID+"/select", nil, nil))

	var artwork struct {
		ID       string `json:"id"`
		Versions []struct {
			ID        string `json:"id"`
			IsCurrent bool   `json:"isCurrent"`
		} `json:"versions"`
	}
	require.Equal(t, http.StatusOK,
		s.do(t, http.MethodPost, "/sessions/"+sess.ID+"/promote",
			map[string]any{"title": "Fox"}, &artwork))
	require.Len(t, artwork.Versions, 1)
	initialID := artwork.Versions[0].ID

	var v2 struct {
		ID string `json:"id"`
	}
	require.Equal(t, http.StatusOK,
		s.do(t, http.MethodPost, "/artworks/"+artwork.ID+"/versions", map[string]any{
			"files": map[string]string{"image": s.sourceFile(t, "v2.png", []byte("v2"))},
			"note":  "retouch",
		}, &v2))

	// Current is still the initial version until the pointer moves.
	var current struct {
		ID string `json:"id"`
	}
	require.Equal(t, http.StatusOK,
		s.do(t, http.MethodGet, "/artworks/"+artwork.ID+"/versions/current", nil, &current))
	assert.Equal(t, initialID, current.ID)

	// Deleting the current version is refused; rollback then delete works.
	assert.Equal(t, http.StatusConflict,
		s.do(t, http.MethodDelete, "/artworks/"+artwork.ID+"/versions/"+initialID, nil, nil))
	require.Equal(t, http.StatusNoContent,
		s.do(t, http.MethodPost, "/artworks/"+artwork.ID+"/versions/"+v2.ID+"/current", nil, nil))
	require.Equal(t, http.StatusNoContent,
		s.do(t, http.MethodDelete, "/artworks/"+artwork.ID+"/versions/"+initialID, nil, nil))

	var stats struct {
		Total     int    `json:"total"`
		CurrentID string `json:"currentId"`
	}
	require.Equal(t, http.StatusOK,
		s.do(t, http.MethodGet, "/artworks/"+artwork.ID+"/versions/stats", nil, &stats))
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, v2.ID, stats.CurrentID)

	require.Equal(t, http.StatusNoContent,
		s.do(t, http.MethodPut, "/artworks/"+artwork.ID+"/visibility",
			map[string]string{"visibility": "featured"}, nil))

	var listed []struct {
		ID string `json:"id"`
	}
	require.Equal(t, http.StatusOK,
		s.do(t, http.MethodGet, "/artworks?visibility=featured", nil, &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, artwork.ID, listed[0].ID)
}
