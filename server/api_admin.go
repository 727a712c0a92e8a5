package main

import (
	"net/http"

	"taskboard/internal/apperr"
	"taskboard/internal/model"
)

func (a *api) handleAdminListUsers(w http.ResponseWriter, r *http.Request, _ *model.User) {
	users, err := a.store.ListUsers(r.Context())
	if err != nil {
		err = apperr.Internal("list users", err)
	}
	respond(a, w, r, http.StatusOK, users, err)
}

// PATCH /api/admin/users/{id} { role, deactivated }
func (a *api) handleAdminUpdateUser(w http.ResponseWriter, r *http.Request, me *model.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Role        *model.Role `json:"role"`
		Deactivated *bool       `json:"deactivated"`
	}
	if err := readJSON(w, r, &req); err != nil || (req.Role == nil && req.Deactivated == nil) {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	// don't allow locking yourself out from the admin panel
	if id == me.ID {
		writeError(w, http.StatusBadRequest, "cannot change your own role or status")
		return
	}
	if req.Role != nil {
		if *req.Role != model.RoleAdmin && *req.Role != model.RoleUser {
			respond(a, w, r, 0, false, apperr.Invalid("role", "must be admin or user"))
			return
		}
		if err := a.store.SetUserRole(r.Context(), id, *req.Role); err != nil {
			respond(a, w, r, 0, false, storeError("set role", err))
			return
		}
	}
	if req.Deactivated != nil {
		if err := a.store.SetUserDeactivated(r.Context(), id, *req.Deactivated); err != nil {
			respond(a, w, r, 0, false, storeError("set deactivated", err))
			return
		}
	}
	a.reqLog(r).Info("user updated", "admin_id", me.ID, "user_id", id)
	respond(a, w, r, http.StatusOK, true, nil)
}

// storeError reports a missing row as access denied and anything else as
// an internal failure.
func storeError(op string, err error) error {
	if denied := apperr.DenyMissing(err); denied != err {
		return denied
	}
	return apperr.Internal(op, err)
}

func (a *api) handleAdminListAccess(w http.ResponseWriter, r *http.Request, u *model.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	entries, err := a.svc.ListBoardAccess(r.Context(), u, id)
	respond(a, w, r, http.StatusOK, entries, err)
}

// POST /api/admin/boards/{id}/access { user_id | team_id, access_level }
func (a *api) handleAdminGrantAccess(w http.ResponseWriter, r *http.Request, u *model.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req model.BoardAccess
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	req.ID, req.BoardID = 0, id
	entry, effects, err := a.svc.GrantBoardAccess(r.Context(), u, req)
	a.effects.Dispatch(r.Context(), effects)
	respond(a, w, r, http.StatusCreated, entry, err)
}

func (a *api) handleAdminRevokeAccess(w http.ResponseWriter, r *http.Request, u *model.User) {
	boardID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	entryID, ok := pathID(w, r, "entry")
	if !ok {
		return
	}
	effects, err := a.svc.RevokeBoardAccess(r.Context(), u, boardID, entryID)
	a.effects.Dispatch(r.Context(), effects)
	respond(a, w, r, http.StatusOK, err == nil, err)
}
