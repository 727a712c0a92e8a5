package main

import (
	"net/http"

	"taskboard/internal/model"
)

func (a *api) handleListComments(w http.ResponseWriter, r *http.Request, u *model.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	items, err := a.svc.ListComments(r.Context(), u, id)
	respond(a, w, r, http.StatusOK, items, err)
}

func (a *api) handleAddComment(w http.ResponseWriter, r *http.Request, u *model.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Body string `json:"body"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	c, effects, err := a.svc.AddComment(r.Context(), u, id, req.Body)
	a.effects.Dispatch(r.Context(), effects)
	respond(a, w, r, http.StatusCreated, c, err)
}

// POST /api/tasks/{id}/view marks the task's comments as read.
func (a *api) handleMarkViewed(w http.ResponseWriter, r *http.Request, u *model.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	err := a.svc.MarkTaskViewed(r.Context(), u, id)
	respond(a, w, r, http.StatusOK, err == nil, err)
}
