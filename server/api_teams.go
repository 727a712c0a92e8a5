package main

import (
	"net/http"

	"taskboard/internal/model"
)

func (a *api) handleAdminListTeams(w http.ResponseWriter, r *http.Request, u *model.User) {
	teams, err := a.svc.ListTeams(r.Context(), u)
	respond(a, w, r, http.StatusOK, teams, err)
}

// POST /api/admin/teams { name, exclude_from_public }
func (a *api) handleAdminCreateTeam(w http.ResponseWriter, r *http.Request, u *model.User) {
	var req struct {
		Name              string `json:"name"`
		ExcludeFromPublic bool   `json:"exclude_from_public"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	t, err := a.svc.CreateTeam(r.Context(), u, req.Name, req.ExcludeFromPublic)
	respond(a, w, r, http.StatusCreated, t, err)
}

// PATCH /api/admin/teams/{id} { exclude_from_public }
func (a *api) handleAdminUpdateTeam(w http.ResponseWriter, r *http.Request, u *model.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		ExcludeFromPublic *bool `json:"exclude_from_public"`
	}
	if err := readJSON(w, r, &req); err != nil || req.ExcludeFromPublic == nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	err := a.svc.SetTeamExcludeFromPublic(r.Context(), u, id, *req.ExcludeFromPublic)
	respond(a, w, r, http.StatusOK, err == nil, err)
}

// POST /api/admin/teams/{id}/members { user_id }
func (a *api) handleAdminAddMember(w http.ResponseWriter, r *http.Request, u *model.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		UserID int64 `json:"user_id"`
	}
	if err := readJSON(w, r, &req); err != nil || req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	err := a.svc.AddTeamMember(r.Context(), u, id, req.UserID)
	respond(a, w, r, http.StatusOK, err == nil, err)
}

func (a *api) handleAdminRemoveMember(w http.ResponseWriter, r *http.Request, u *model.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	uid, ok := pathID(w, r, "uid")
	if !ok {
		return
	}
	err := a.svc.RemoveTeamMember(r.Context(), u, id, uid)
	respond(a, w, r, http.StatusOK, err == nil, err)
}
