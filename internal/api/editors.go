package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/templar/internal/editor"
)

// EditorListResponse is the response for GET /editors
type EditorListResponse struct {
	Editors []*editor.Config `json:"editors"`
	Count   int              `json:"count"`
}

// handleListEditors handles GET /api/v1/editors
func (s *Server) handleListEditors(w http.ResponseWriter, r *http.Request) {
	editors, err := s.editors.List()
	if err != nil {
		s.logger.Error("failed to list editors", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list editors")
		return
	}
	if editors == nil {
		editors = []*editor.Config{}
	}

	s.sendJSON(w, http.StatusOK, EditorListResponse{
		Editors: editors,
		Count:   len(editors),
	})
}

// handleCreateEditor handles POST /api/v1/editors
func (s *Server) handleCreateEditor(w http.ResponseWriter, r *http.Request) {
	var cfg editor.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	cfg.ID = ""

	if err := s.saveEditor(w, &cfg); err != nil {
		return
	}
	s.sendJSON(w, http.StatusCreated, &cfg)
}

// handleGetEditor handles GET /api/v1/editors/{id}
func (s *Server) handleGetEditor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cfg, err := s.editors.Get(id)
	if err != nil {
		s.logger.Error("failed to read editor", "editor_id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to read editor")
		return
	}
	if cfg == nil {
		s.sendError(w, http.StatusNotFound, "Editor not found")
		return
	}

	s.sendJSON(w, http.StatusOK, cfg)
}

// handleUpdateEditor handles PUT /api/v1/editors/{id}. The profile is
// replaced wholesale with the submitted body.
func (s *Server) handleUpdateEditor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existing, err := s.editors.Get(id)
	if err != nil {
		s.logger.Error("failed to read editor", "editor_id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to read editor")
		return
	}
	if existing == nil {
		s.sendError(w, http.StatusNotFound, "Editor not found")
		return
	}

	var cfg editor.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	cfg.ID = id

	if err := s.saveEditor(w, &cfg); err != nil {
		return
	}
	s.sendJSON(w, http.StatusOK, &cfg)
}

// handleDeleteEditor handles DELETE /api/v1/editors/{id}
func (s *Server) handleDeleteEditor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.editors.Delete(id); err != nil {
		if errors.Is(err, editor.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, "Editor not found")
			return
		}
		s.logger.Error("failed to delete editor", "editor_id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete editor")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// saveEditor persists a profile, mapping store errors onto HTTP codes.
// Returns a non-nil error when a response has already been sent.
func (s *Server) saveEditor(w http.ResponseWriter, cfg *editor.Config) error {
	err := s.editors.Save(cfg)
	if err == nil {
		return nil
	}

	if errors.Is(err, editor.ErrNameTaken) {
		s.sendError(w, http.StatusConflict, "Editor name already in use")
		return err
	}
	if verr := cfg.Validate(); verr != nil {
		s.sendError(w, http.StatusBadRequest, verr.Error())
		return err
	}

	s.logger.Error("failed to save editor", "editor_name", cfg.Name, "error", err)
	s.sendError(w, http.StatusInternalServerError, "Failed to save editor")
	return err
}
