package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nhle/smstask/internal/logging"
	"github.com/nhle/smstask/internal/model"
	"github.com/nhle/smstask/internal/store"
)

// CreateRequest is the POST /tasks body. User and Phone are accepted as
// aliases of Owner; Task as an alias of Description.
type CreateRequest struct {
	Owner       string `json:"owner"`
	User        string `json:"user,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Description string `json:"description"`
	Task        string `json:"task,omitempty"`
}

func (c CreateRequest) owner() string {
	for _, v := range []string{c.Owner, c.User, c.Phone} {
		if v != "" {
			return v
		}
	}
	return ""
}

func (c CreateRequest) description() string {
	if c.Description != "" {
		return c.Description
	}
	return c.Task
}

type CreatedResponse struct {
	Created model.Summary `json:"created"`
}

type DeletedResponse struct {
	Deleted model.Summary `json:"deleted"`
}

type UpdatedResponse struct {
	Updated int `json:"updated"`
}

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if len(query) == 0 {
		tasks, err := s.tasks.List(r.Context())
		if err != nil {
			s.internalError(w, "listing tasks", err)
			return
		}
		writeJSON(w, http.StatusOK, tasks)
		return
	}

	fields := make(map[string]string, len(query))
	for k := range query {
		fields[k] = query.Get(k)
	}
	filter, err := store.FilterFromFields(fields)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}

	tasks, err := s.tasks.Find(r.Context(), filter)
	if err != nil {
		s.internalError(w, "finding tasks", err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeMalformed, "invalid JSON: "+err.Error())
		return
	}

	created, err := s.tasks.Create(r.Context(), req.owner(), req.description())
	switch {
	case errors.Is(err, store.ErrValidation):
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, store.ErrCapacityExceeded):
		writeError(w, http.StatusBadRequest, CodeCapacityExceeded, err.Error())
	case err != nil:
		s.internalError(w, "creating task", err)
	default:
		writeJSON(w, http.StatusCreated, CreatedResponse{Created: created})
	}
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	tasks, err := s.tasks.Find(r.Context(), store.ByID(id))
	if err != nil {
		s.internalError(w, "finding task", err)
		return
	}
	if len(tasks) == 0 {
		writeError(w, http.StatusNotFound, CodeNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, tasks[0])
}

func (s *Server) handleTaskUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, CodeMalformed, "invalid JSON: "+err.Error())
		return
	}
	changes, err := store.ParseChanges(fields)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}

	n, err := s.tasks.Update(r.Context(), store.ByID(id), changes)
	switch {
	case errors.Is(err, store.ErrValidation):
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
	case err != nil:
		s.internalError(w, "updating task", err)
	case n == 0:
		writeError(w, http.StatusNotFound, CodeNotFound, "nothing updated")
	default:
		writeJSON(w, http.StatusOK, UpdatedResponse{Updated: n})
	}
}

func (s *Server) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	deleted, found, err := s.tasks.Delete(r.Context(), store.ByID(id))
	switch {
	case err != nil:
		s.internalError(w, "deleting task", err)
	case !found:
		writeError(w, http.StatusNotFound, CodeNotFound, "nothing deleted")
	default:
		writeJSON(w, http.StatusOK, DeletedResponse{Deleted: deleted})
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "task id must be a number")
		return 0, false
	}
	return id, true
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op, logging.Err(err))
	writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
}
