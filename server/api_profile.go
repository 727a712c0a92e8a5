package main

import (
	"net/http"
	"strings"

	"taskboard/internal/apperr"
	"taskboard/internal/model"
)

// PATCH /api/me { name }
func (a *api) handleUpdateMe(w http.ResponseWriter, r *http.Request, me *model.User) {
	var req struct {
		Name *string `json:"name"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Name == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	name := strings.TrimSpace(*req.Name)
	if name == "" {
		respond(a, w, r, 0, model.User{}, apperr.Invalid("name", "required"))
		return
	}
	if err := a.store.UpdateUserName(r.Context(), me.ID, name); err != nil {
		respond(a, w, r, 0, model.User{}, apperr.Internal("update name", err))
		return
	}
	u := *me
	u.Name = name
	respond(a, w, r, http.StatusOK, u, nil)
}
