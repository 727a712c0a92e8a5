package main

import (
	"net/http"

	"taskboard/internal/model"
	"taskboard/internal/rollup"
	"taskboard/internal/service"
)

func (a *api) handleCreateRollup(w http.ResponseWriter, r *http.Request, u *model.User) {
	var req struct {
		Title string `json:"title"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	b, effects, err := a.svc.CreateRollup(r.Context(), u, req.Title)
	a.effects.Dispatch(r.Context(), effects)
	respond(a, w, r, http.StatusCreated, b, err)
}

func (a *api) handleRollupVisible(w http.ResponseWriter, r *http.Request, u *model.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	visible, err := a.svc.CanSeeRollup(r.Context(), u, id)
	respond(a, w, r, http.StatusOK, visible, err)
}

func (a *api) handleRollupTasks(w http.ResponseWriter, r *http.Request, u *model.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	f, s, err := listQuery(r)
	if err != nil {
		respond(a, w, r, 0, rollup.View{}, err)
		return
	}
	view, err := a.svc.GetRollupTasks(r.Context(), u, id, f, s)
	respond(a, w, r, http.StatusOK, view, err)
}

// PUT /api/rollups/{id}/sources { source_board_ids }
func (a *api) handleSetRollupSources(w http.ResponseWriter, r *http.Request, u *model.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		SourceBoardIDs []int64 `json:"source_board_ids"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	sources, effects, err := a.svc.SetRollupSources(r.Context(), u, id, req.SourceBoardIDs)
	a.effects.Dispatch(r.Context(), effects)
	respond(a, w, r, http.StatusOK, sources, err)
}

func (a *api) handleAvailableSources(w http.ResponseWriter, r *http.Request, u *model.User) {
	boards, err := a.svc.AvailableSourceBoards(r.Context(), u)
	respond(a, w, r, http.StatusOK, boards, err)
}

func (a *api) handleInviteToRollup(w http.ResponseWriter, r *http.Request, u *model.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req service.InviteTarget
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	inv, err := a.svc.InviteToRollup(r.Context(), u, id, req)
	respond(a, w, r, http.StatusCreated, inv, err)
}

func (a *api) handleAcceptInvitation(w http.ResponseWriter, r *http.Request, u *model.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	inv, err := a.svc.AcceptInvitation(r.Context(), u, id)
	respond(a, w, r, http.StatusOK, inv, err)
}
