package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"taskmill/internal/schedule"
	"taskmill/internal/taskqueue"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"message": "taskmill"})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.ActiveTaskSchedules(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, item.ToDict())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Task string `json:"task"`
		Cron string `json:"cron"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}

	created, err := s.svc.CreateTaskSchedule(r.Context(), req.Name, req.Task, req.Cron)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created.ToDict())
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req struct {
		Name    *string `json:"name"`
		Task    *string `json:"task"`
		Cron    *string `json:"cron"`
		Enabled *bool   `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}

	fields := map[string]any{}
	if req.Name != nil {
		fields["name"] = *req.Name
	}
	if req.Task != nil {
		fields["task"] = *req.Task
	}
	if req.Cron != nil {
		fields["cron"] = *req.Cron
	}
	if req.Enabled != nil {
		fields["enabled"] = *req.Enabled
	}

	updated, err := s.svc.UpdateTaskSchedule(r.Context(), id, fields)
	if err != nil {
		writeError(w, err)
		return
	}
	if updated == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "task schedule not found"})
		return
	}
	writeJSON(w, http.StatusOK, updated.ToDict())
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.svc.DeleteTaskSchedule(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTaskHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	records, err := s.svc.TaskRunRecordsForSchedule(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.ToDict())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleQueueTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.Names())
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, taskqueue.ErrUnknownTask) || errors.Is(err, schedule.ErrInvalidCron) {
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
