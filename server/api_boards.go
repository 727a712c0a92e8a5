package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"taskboard/internal/model"
	"taskboard/internal/rollup"
	"taskboard/internal/service"
	"taskboard/internal/taskquery"
)

// GET /api/boards lists the standard boards the caller can see.
func (a *api) handleListBoards(w http.ResponseWriter, r *http.Request, u *model.User) {
	boards, err := a.svc.AvailableSourceBoards(r.Context(), u)
	respond(a, w, r, http.StatusOK, boards, err)
}

func (a *api) handleCreateBoard(w http.ResponseWriter, r *http.Request, u *model.User) {
	var req service.NewBoard
	if err := readJSON(w, r, &req); err != nil {
		a.reqLog(r).Debug("decode create board", "err", err)
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	b, effects, err := a.svc.CreateBoard(r.Context(), u, req)
	a.effects.Dispatch(r.Context(), effects)
	respond(a, w, r, http.StatusCreated, b, err)
}

func (a *api) handleGetBoard(w http.ResponseWriter, r *http.Request, u *model.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	b, err := a.svc.GetBoard(r.Context(), u, id)
	respond(a, w, r, http.StatusOK, b, err)
}

// GET /api/boards/{id}/access answers with the caller's level, or null.
func (a *api) handleBoardAccessLevel(w http.ResponseWriter, r *http.Request, u *model.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	level, err := a.svc.ResolveBoardAccess(r.Context(), u, id)
	var out *model.AccessLevel
	if level != model.AccessNone {
		out = &level
	}
	respond(a, w, r, http.StatusOK, out, err)
}

// listQuery parses the filter and sort query parameters shared by board
// and rollup task listings.
func listQuery(r *http.Request) (taskquery.Filter, taskquery.Sort, error) {
	q := r.URL.Query()
	f, err := taskquery.ParseFilter(q)
	if err != nil {
		return taskquery.Filter{}, taskquery.Sort{}, err
	}
	s, err := taskquery.ParseSort(q.Get("sort"))
	if err != nil {
		return taskquery.Filter{}, taskquery.Sort{}, err
	}
	return f, s, nil
}

func (a *api) handleListTasks(w http.ResponseWriter, r *http.Request, u *model.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	f, s, err := listQuery(r)
	if err != nil {
		respond(a, w, r, 0, rollup.View{}, err)
		return
	}
	view, err := a.svc.ListTasks(r.Context(), u, id, f, s)
	respond(a, w, r, http.StatusOK, view, err)
}

func (a *api) handleBoardActivity(w http.ResponseWriter, r *http.Request, u *model.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := a.svc.BoardActivity(r.Context(), u, id, limit)
	respond(a, w, r, http.StatusOK, entries, err)
}

// GET /api/boards/{id}/events streams task events. Assigned-only users
// receive events for their own tasks only.
func (a *api) handleBoardEvents(w http.ResponseWriter, r *http.Request, u *model.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	level, err := a.svc.ResolveBoardAccess(r.Context(), u, id)
	if err != nil {
		respond(a, w, r, 0, false, err)
		return
	}
	if level == model.AccessNone {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}
	var allow func(Event) bool
	if level == model.AccessAssignedOnly {
		allow = func(ev Event) bool { return ev.visibleTo(u.ID) }
	}
	stillAllowed := func() bool {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		now, err := a.svc.ResolveBoardAccess(ctx, u, id)
		if err != nil {
			a.reqLog(r).Warn("recheck stream access", "board_id", id, "err", err)
			return false
		}
		return now == level
	}
	a.bus.ServeSSE(w, r, id, allow, stillAllowed)
}
