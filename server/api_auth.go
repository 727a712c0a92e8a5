package main

import (
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"taskboard/internal/apperr"
	"taskboard/internal/model"
)

const minPasswordLen = 8

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// Auth handlers
func (a *api) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := readJSON(w, r, &req); err != nil || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if len(req.Password) < minPasswordLen {
		writeError(w, http.StatusBadRequest, "password too short")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		a.reqLog(r).Error("bcrypt", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	email := strings.TrimSpace(req.Email)
	u, err := a.store.CreateUser(r.Context(), email, string(hash), strings.TrimSpace(req.Name))
	if err != nil {
		respond(a, w, r, 0, model.User{}, err)
		return
	}
	if a.cfg.IsAdminEmail(email) {
		if err := a.store.SetUserRole(r.Context(), u.ID, model.RoleAdmin); err != nil {
			a.reqLog(r).Error("grant admin", "user_id", u.ID, "err", err)
		} else {
			u.Role = model.RoleAdmin
		}
	}
	a.startSession(w, r, u, http.StatusCreated)
}

func (a *api) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := readJSON(w, r, &req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	u, hash, err := a.store.UserCredsByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		a.reqLog(r).Error("login lookup", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err != nil || hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil || u.Deactivated {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	a.startSession(w, r, u, http.StatusOK)
}

func (a *api) startSession(w http.ResponseWriter, r *http.Request, u model.User, status int) {
	token, exp, err := a.store.CreateSession(r.Context(), u.ID, a.cfg.Session.TTL)
	if err != nil {
		a.reqLog(r).Error("create session", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	a.setSessionCookie(w, token, exp)
	respond(a, w, r, status, u, nil)
}

func (a *api) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(a.cfg.Session.CookieName); err == nil && c.Value != "" {
		if err := a.store.DeleteSession(r.Context(), c.Value); err != nil {
			a.reqLog(r).Warn("delete session", "err", err)
		}
	}
	a.clearSessionCookie(w)
	respond(a, w, r, http.StatusOK, true, nil)
}

func (a *api) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := a.currentUser(r)
	if err != nil {
		// For anonymous users return 200 with null data to avoid noisy 401s on public pages
		respond[*model.User](a, w, r, http.StatusOK, nil, nil)
		return
	}
	respond(a, w, r, http.StatusOK, u, nil)
}
