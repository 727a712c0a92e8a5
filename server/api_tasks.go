package main

import (
	"net/http"

	"taskboard/internal/model"
	"taskboard/internal/service"
)

func (a *api) handleGetTask(w http.ResponseWriter, r *http.Request, u *model.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	t, err := a.svc.GetTask(r.Context(), u, id)
	respond(a, w, r, http.StatusOK, t, err)
}

func (a *api) handleCreateTask(w http.ResponseWriter, r *http.Request, u *model.User) {
	boardID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req service.NewTask
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	t, effects, err := a.svc.CreateTask(r.Context(), u, boardID, req)
	a.effects.Dispatch(r.Context(), effects)
	respond(a, w, r, http.StatusCreated, t, err)
}

// PATCH /api/tasks/{id}/status { status, complete_subtasks }
func (a *api) handleSetTaskStatus(w http.ResponseWriter, r *http.Request, u *model.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Status           string `json:"status"`
		CompleteSubtasks bool   `json:"complete_subtasks"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	t, effects, err := a.svc.SetTaskStatus(r.Context(), u, id, req.Status, req.CompleteSubtasks)
	a.effects.Dispatch(r.Context(), effects)
	respond(a, w, r, http.StatusOK, t, err)
}

func (a *api) handleArchiveTask(w http.ResponseWriter, r *http.Request, u *model.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	effects, err := a.svc.ArchiveTask(r.Context(), u, id)
	a.effects.Dispatch(r.Context(), effects)
	respond(a, w, r, http.StatusOK, err == nil, err)
}
