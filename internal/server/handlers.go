package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/docmind/docmind-core/internal/models"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.Query
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, rec, err := s.core.Search.Search(r.Context(), &query)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.core.History.Record(r.Context(), rec.Text, rec.Mode, rec.ResultCount, rec.ExecutionTimeMs); err != nil {
		s.logger.Warn("failed to record search history", zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.core.Docs.Get(r.Context(), id)
	if err != nil || doc == nil {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.core.Docs.Get(r.Context(), id)
	if err != nil || doc == nil {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	s.logger.Debug("delete document request", zap.String("id", id), zap.String("path", doc.FilePath))
	if err := s.core.Pipeline.RemoveFile(r.Context(), doc.FilePath); err != nil {
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	limit := parseIntParam(r, "limit", 10)
	suggestions, err := s.core.Search.Suggestions().GetSuggestions(prefix, limit)
	if err != nil {
		s.logger.Error("suggestions failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"suggestions": suggestions})
}

type rebuildRequest struct {
	FolderPath string `json:"folder_path"`
}

func (s *Server) handleStartRebuild(w http.ResponseWriter, r *http.Request) {
	var req rebuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FolderPath == "" {
		s.respondError(w, http.StatusBadRequest, "folder_path is required")
		return
	}
	if err := s.core.Rebuild.StartRebuild(req.FolderPath); err != nil {
		s.logger.Error("rebuild start failed", zap.Error(err))
		s.respondError(w, http.StatusConflict, err.Error())
		return
	}
	s.respondJSON(w, http.StatusAccepted, s.core.Rebuild.State())
}

func (s *Server) handleCancelRebuild(w http.ResponseWriter, r *http.Request) {
	s.core.Rebuild.Cancel()
	s.respondJSON(w, http.StatusOK, s.core.Rebuild.State())
}

func (s *Server) handleRebuildStatus(w http.ResponseWriter, r *http.Request) {
	state := s.core.Rebuild.State()
	progress := s.core.Rebuild.LatestProgress()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"is_active":   state.IsActive,
		"thread_id":   state.ThreadID,
		"started_at":  state.StartedAt,
		"folder_path": state.FolderPath,
		"stage":       progress.Stage,
		"percentage":  progress.Percentage(),
	})
}

func (s *Server) handleHistoryRecent(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 20)
	records, err := s.core.History.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("recent history failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

func (s *Server) handleHistoryPopular(w http.ResponseWriter, r *http.Request) {
	days := parseIntParam(r, "days", 30)
	limit := parseIntParam(r, "limit", 20)
	popular, err := s.core.History.Popular(r.Context(), days, limit)
	if err != nil {
		s.logger.Error("popular history failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"popular": popular})
}

func (s *Server) handleListSavedSearches(w http.ResponseWriter, r *http.Request) {
	saved, err := s.core.History.ListSavedSearches(r.Context())
	if err != nil {
		s.logger.Error("list saved searches failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"saved_searches": saved})
}

type saveSearchRequest struct {
	Name        string            `json:"name"`
	QueryText   string            `json:"query_text"`
	Mode        models.SearchMode `json:"mode"`
	OptionsJSON string            `json:"options_json,omitempty"`
}

func (s *Server) handleSaveSearch(w http.ResponseWriter, r *http.Request) {
	var req saveSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.QueryText == "" {
		s.respondError(w, http.StatusBadRequest, "name and query_text are required")
		return
	}
	saved, err := s.core.History.SaveSearch(r.Context(), req.Name, req.QueryText, req.Mode, req.OptionsJSON)
	if err != nil {
		s.logger.Error("save search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleDeleteSavedSearch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := s.core.History.DeleteSavedSearch(r.Context(), id)
	if err != nil {
		s.logger.Error("delete saved search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		s.respondError(w, http.StatusNotFound, "saved search not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.core.Docs.Count(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	diskUsage, err := s.core.DiskUsage()
	if err != nil {
		s.logger.Warn("status: disk usage failed", zap.Error(err))
	}
	rebuild := s.core.Rebuild.State()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"documents":        docCount,
		"disk_usage_bytes": diskUsage,
		"rebuild":          rebuild,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
