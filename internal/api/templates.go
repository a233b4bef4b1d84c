package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/templar/internal/cache"
	"github.com/foxzi/templar/internal/template"
)

// OpenTemplateRequest is the request body for POST /templates, sent when
// the UI opens a template for editing.
type OpenTemplateRequest struct {
	TemplateID string          `json:"templateId"`
	EditorID   string          `json:"editorId"`
	Template   json.RawMessage `json:"template"`
}

// UpdateTemplateRequest is the request body for PUT /templates/{id}
type UpdateTemplateRequest struct {
	EditorID string          `json:"editorId"`
	Template json.RawMessage `json:"template"`
}

// TemplateListResponse is the response for GET /templates
type TemplateListResponse struct {
	Templates []*cache.Record `json:"templates"`
	Count     int             `json:"count"`
}

// VariablesRequest is the request body for POST /templates/{id}/variables
type VariablesRequest struct {
	Markup string `json:"markup"`
}

// VariablesResponse is the response for POST /templates/{id}/variables
type VariablesResponse struct {
	Variables      []string          `json:"variables"`
	SampleJSONData string            `json:"sampleJsonData,omitempty"`
	Data           map[string]string `json:"data,omitempty"`
}

// handleListTemplates handles GET /api/v1/templates
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	channel := cache.Channel(r.URL.Query().Get("channel"))
	switch channel {
	case "", cache.ChannelDocify, cache.ChannelNotify:
	default:
		s.sendError(w, http.StatusBadRequest, "invalid channel filter")
		return
	}

	records, err := s.cache.List(channel)
	if err != nil {
		s.logger.Error("failed to list templates", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}
	if records == nil {
		records = []*cache.Record{}
	}

	s.sendJSON(w, http.StatusOK, TemplateListResponse{
		Templates: records,
		Count:     len(records),
	})
}

// handleOpenTemplate handles POST /api/v1/templates
func (s *Server) handleOpenTemplate(w http.ResponseWriter, r *http.Request) {
	var req OpenTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.TemplateID == "" {
		s.sendError(w, http.StatusBadRequest, "templateId is required")
		return
	}
	if len(req.Template) == 0 {
		s.sendError(w, http.StatusBadRequest, "template is required")
		return
	}

	if err := s.cache.Put(req.TemplateID, req.Template, req.EditorID); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.cache.Fetch(req.TemplateID)
	if err != nil {
		s.logger.Error("failed to read back template", "template_id", req.TemplateID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to read template")
		return
	}

	s.sendJSON(w, http.StatusCreated, rec)
}

// handleGetTemplate handles GET /api/v1/templates/{id}
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.cache.Fetch(id)
	if err != nil {
		s.logger.Error("failed to read template", "template_id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to read template")
		return
	}
	if rec == nil {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return
	}

	// Reading a template for editing keeps its cache entry fresh.
	if err := s.cache.Touch(id); err != nil {
		s.logger.Warn("failed to refresh template expiry", "template_id", id, "error", err)
	}

	s.sendJSON(w, http.StatusOK, rec)
}

// handleUpdateTemplate handles PUT /api/v1/templates/{id}. Edits are
// queued through the debounced writer, so rapid keystrokes coalesce into
// one storage write.
func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Template) == 0 || !json.Valid(req.Template) {
		s.sendError(w, http.StatusBadRequest, "template must be valid JSON")
		return
	}

	s.writer.Queue(id, req.Template, req.EditorID)
	s.sendJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// handleDeleteTemplate handles DELETE /api/v1/templates/{id}, called when
// the user navigates away from the editor.
func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.cache.Delete(id); err != nil {
		s.logger.Error("failed to delete template", "template_id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete template")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleTemplateVariables handles POST /api/v1/templates/{id}/variables:
// extract variables from the submitted markup (or the cached markup when
// none is sent) and merge them into the record's sample data.
func (s *Server) handleTemplateVariables(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req VariablesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, err := s.cache.Fetch(id)
	if err != nil {
		s.logger.Error("failed to read template", "template_id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to read template")
		return
	}
	if rec == nil {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return
	}

	markup := req.Markup
	if markup == "" {
		switch rec.Channel {
		case cache.ChannelDocify:
			markup = rec.Docify.HTMLContent
		case cache.ChannelNotify:
			markup = rec.Notify.Email
		}
	}

	variables := template.ExtractVariables(markup)
	resp := VariablesResponse{Variables: variables}

	switch rec.Channel {
	case cache.ChannelDocify:
		merged := template.MergeVariables(rec.Docify.SampleJSONData, variables)
		if merged != rec.Docify.SampleJSONData {
			rec.Docify.SampleJSONData = merged
			if err := s.putPayload(id, rec.Docify, rec.EditorID); err != nil {
				s.logger.Error("failed to persist sample data", "template_id", id, "error", err)
				s.sendError(w, http.StatusInternalServerError, "Failed to save template")
				return
			}
		}
		resp.SampleJSONData = merged

	case cache.ChannelNotify:
		if rec.Notify.Data == nil {
			rec.Notify.Data = make(map[string]string)
		}
		changed := false
		for _, v := range variables {
			if _, ok := rec.Notify.Data[v]; !ok {
				rec.Notify.Data[v] = ""
				changed = true
			}
		}
		if changed {
			if err := s.putPayload(id, rec.Notify, rec.EditorID); err != nil {
				s.logger.Error("failed to persist sample data", "template_id", id, "error", err)
				s.sendError(w, http.StatusInternalServerError, "Failed to save template")
				return
			}
		}
		resp.Data = rec.Notify.Data
	}

	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Server) putPayload(id string, payload interface{}, editorID string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.cache.Put(id, data, editorID)
}
