//
// Tencent is pleased to support the open source community by making artloom available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// artloom is licensed under the Apache License Version 2.0.
//
//

// Package studio provides the HTTP facade over the session registry and the
// gallery service. It translates errors into status codes and carries no
// business logic of its own.
package studio

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/artloom/artloom/artifact"
	"github.com/artloom/artloom/gallery"
	"github.com/artloom/artloom/log"
	"github.com/artloom/artloom/session"
)

// Server exposes the studio REST endpoints.
type Server struct {
	router   *mux.Router
	sessions session.Service
	artworks gallery.Service
}

// Option configures the Server instance.
type Option func(*Server)

// New creates the studio HTTP server over the given services.
func New(sessions session.Service, artworks gallery.Service, opts ...Option) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		sessions: sessions,
		artworks: artworks,
	}
	for _, opt := range opts {
		opt(s)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
	})
	s.router.Use(c.Handler)
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	// Session APIs. The stats route is registered before the {sessionId}
	// route so "stats" is never captured as an id.
	s.router.HandleFunc("/sessions/stats", s.handleSessionStats).Methods(http.MethodGet)
	s.router.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	s.router.HandleFunc("/sessions/{sessionId}", s.handleGetSession).Methods(http.MethodGet)
	s.router.HandleFunc("/sessions/{sessionId}/versions", s.handleAddVersion).Methods(http.MethodPost)
	s.router.HandleFunc("/sessions/{sessionId}/versions", s.handleListSessionVersions).Methods(http.MethodGet)
	s.router.HandleFunc("/sessions/{sessionId}/versions/{versionId}/select",
		s.handleSelectVersion).Methods(http.MethodPost)
	s.router.HandleFunc("/sessions/{sessionId}/versions/{versionId}",
		s.handleDeleteSessionVersion).Methods(http.MethodDelete)
	s.router.HandleFunc("/sessions/{sessionId}/selected", s.handleSelectedVersions).Methods(http.MethodGet)
	s.router.HandleFunc("/sessions/{sessionId}/close", s.handleCloseSession).Methods(http.MethodPost)
	s.router.HandleFunc("/sessions/{sessionId}/promote", s.handlePromote).Methods(http.MethodPost)

	// Artwork APIs.
	s.router.HandleFunc("/artworks", s.handleListArtworks).Methods(http.MethodGet)
	s.router.HandleFunc("/artworks/{artworkId}", s.handleGetArtwork).Methods(http.MethodGet)
	s.router.HandleFunc("/artworks/{artworkId}", s.handleUpdateArtwork).Methods(http.MethodPut)
	s.router.HandleFunc("/artworks/{artworkId}/visibility", s.handleSetVisibility).Methods(http.MethodPut)
	s.router.HandleFunc("/artworks/{artworkId}/versions/current",
		s.handleCurrentArtworkVersion).Methods(http.MethodGet)
	s.router.HandleFunc("/artworks/{artworkId}/versions/stats",
		s.handleArtworkVersionStats).Methods(http.MethodGet)
	s.router.HandleFunc("/artworks/{artworkId}/versions", s.handleCreateArtworkVersion).Methods(http.MethodPost)
	s.router.HandleFunc("/artworks/{artworkId}/versions", s.handleListArtworkVersions).Methods(http.MethodGet)
	s.router.HandleFunc("/artworks/{artworkId}/versions/{versionId}/current",
		s.handleSetCurrentArtworkVersion).Methods(http.MethodPost)
	s.router.HandleFunc("/artworks/{artworkId}/versions/{versionId}",
		s.handleDeleteArtworkVersion).Methods(http.MethodDelete)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserInfo session.Metadata `json:"userInfo"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sess, err := s.sessions.CreateSession(r.Context(), req.UserInfo)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.GetSession(r.Context(), mux.Vars(r)["sessionId"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, sess)
}

func (s *Server) handleAddVersion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type     artifact.Type    `json:"type"`
		FilePath string           `json:"filePath"`
		Metadata session.Metadata `json:"metadata"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	v, err := s.sessions.AddVersion(r.Context(), mux.Vars(r)["sessionId"], req.Type, req.FilePath, req.Metadata)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, v)
}

func (s *Server) handleListSessionVersions(w http.ResponseWriter, r *http.Request) {
	typ := artifact.Type(r.URL.Query().Get("type"))
	versions, err := s.sessions.GetSessionVersions(r.Context(), mux.Vars(r)["sessionId"], typ)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, versions)
}

func (s *Server) handleSelectVersion(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	typ, v, err := s.sessions.SelectVersion(r.Context(), vars["sessionId"], vars["versionId"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"type": typ, "version": v})
}

func (s *Server) handleSelectedVersions(w http.ResponseWriter, r *http.Request) {
	selected, err := s.sessions.GetSelectedVersions(r.Context(), mux.Vars(r)["sessionId"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, selected)
}

func (s *Server) handleDeleteSessionVersion(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.sessions.DeleteVersion(r.Context(), vars["sessionId"], vars["versionId"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.CloseSession(r.Context(), mux.Vars(r)["sessionId"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.sessions.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, stats)
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	var meta gallery.Meta
	if err := decodeJSON(r, &meta); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	art, err := s.artworks.Promote(r.Context(), mux.Vars(r)["sessionId"], meta)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, art)
}

func (s *Server) handleListArtworks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	artworks, err := s.artworks.ListArtworks(r.Context(), gallery.Visibility(q.Get("visibility")), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, artworks)
}

func (s *Server) handleGetArtwork(w http.ResponseWriter, r *http.Request) {
	art, err := s.artworks.GetArtwork(r.Context(), mux.Vars(r)["artworkId"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, art)
}

func (s *Server) handleUpdateArtwork(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.artworks.UpdateArtwork(r.Context(), mux.Vars(r)["artworkId"], req.Title, req.Description); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetVisibility(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Visibility gallery.Visibility `json:"visibility"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.artworks.SetVisibility(r.Context(), mux.Vars(r)["artworkId"], req.Visibility); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateArtworkVersion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Files gallery.FileSet `json:"files"`
		Note  string          `json:"note"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	v, err := s.artworks.CreateVersion(r.Context(), mux.Vars(r)["artworkId"], req.Files, req.Note)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, v)
}

func (s *Server) handleListArtworkVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.artworks.ListVersions(r.Context(), mux.Vars(r)["artworkId"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, versions)
}

func (s *Server) handleSetCurrentArtworkVersion(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.artworks.SetCurrentVersion(r.Context(), vars["artworkId"], vars["versionId"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteArtworkVersion(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.artworks.DeleteVersion(r.Context(), vars["artworkId"], vars["versionId"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCurrentArtworkVersion(w http.ResponseWriter, r *http.Request) {
	v, err := s.artworks.CurrentVersion(r.Context(), mux.Vars(r)["artworkId"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	if v == nil {
		http.Error(w, "no current version", http.StatusNotFound)
		return
	}
	s.writeJSON(w, v)
}

func (s *Server) handleArtworkVersionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.artworks.VersionStats(r.Context(), mux.Vars(r)["artworkId"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, stats)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Errorf("studio request failed: %v", err)
	}
	http.Error(w, err.Error(), status)
}

// statusOf maps service errors onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrVersionNotFound),
		errors.Is(err, gallery.ErrArtworkNotFound),
		errors.Is(err, gallery.ErrVersionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionClosed),
		errors.Is(err, session.ErrVersionSelected),
		errors.Is(err, gallery.ErrVersionCurrent):
		return http.StatusConflict
	case errors.Is(err, gallery.ErrMissingSelection):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrInvalidType),
		errors.Is(err, gallery.ErrInvalidVisibility):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}
