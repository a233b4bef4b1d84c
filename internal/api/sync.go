package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/foxzi/templar/internal/sync"
)

const wsWriteTimeout = 5 * time.Second

// SyncStatusResponse is the response for GET /sync
type SyncStatusResponse struct {
	sync.Status
	AutoSyncEnabled bool       `json:"autoSyncEnabled"`
	LastSync        *time.Time `json:"lastSync,omitempty"`
}

// AutoSyncRequest is the body for PUT /sync/auto
type AutoSyncRequest struct {
	Enabled bool `json:"enabled"`
}

// handleTriggerSync handles POST /api/v1/sync. A cycle already in flight
// yields 409; the trigger is never queued.
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	if s.orch.InFlight() {
		s.sendError(w, http.StatusConflict, "sync already running")
		return
	}

	// Runs past the request lifetime; the cycle must not die with the
	// HTTP connection.
	go func() {
		if err := s.orch.TriggerSync(context.Background(), sync.SourceManual); err != nil {
			s.logger.Error("manual sync failed", "error", err)
		}
	}()

	s.sendJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// handleSyncStatus handles GET /api/v1/sync
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.syncStatus())
}

func (s *Server) syncStatus() SyncStatusResponse {
	resp := SyncStatusResponse{
		Status:          s.orch.Status().Get(),
		AutoSyncEnabled: s.orch.Settings().AutoSyncEnabled(),
	}
	if t, ok := s.orch.Settings().LastSync(); ok {
		resp.LastSync = &t
	}
	return resp
}

// handleSyncStream handles GET /api/v1/sync/ws: a websocket pushing every
// status change to the UI.
func (s *Server) handleSyncStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	ctx := r.Context()
	updates, cancel := s.orch.Status().Subscribe()
	defer cancel()

	// current snapshot first, then the live stream
	if err := s.writeStatus(ctx, conn, s.orch.Status().Get()); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case st, ok := <-updates:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := s.writeStatus(ctx, conn, st); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeStatus(ctx context.Context, conn *websocket.Conn, st sync.Status) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := wsjson.Write(writeCtx, conn, st); err != nil {
		s.logger.Debug("websocket write failed", "error", err)
		return err
	}
	return nil
}

// handleGetAutoSync handles GET /api/v1/sync/auto
func (s *Server) handleGetAutoSync(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, AutoSyncRequest{
		Enabled: s.orch.Settings().AutoSyncEnabled(),
	})
}

// handleSetAutoSync handles PUT /api/v1/sync/auto
func (s *Server) handleSetAutoSync(w http.ResponseWriter, r *http.Request) {
	var req AutoSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.orch.Settings().SetAutoSyncEnabled(req.Enabled); err != nil {
		s.logger.Error("failed to persist auto sync flag", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to save setting")
		return
	}

	s.sendJSON(w, http.StatusOK, req)
}
