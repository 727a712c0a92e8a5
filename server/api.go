package main

import (
	"net/http"
	"time"
)

func (a *api) routes(mux *http.ServeMux) {
	// Auth endpoints
	mux.HandleFunc("POST /api/auth/register", a.withRateLimit("auth", 20, time.Minute, a.handleRegister))
	mux.HandleFunc("POST /api/auth/login", a.withRateLimit("auth", 30, time.Minute, a.handleLogin))
	mux.HandleFunc("POST /api/auth/logout", a.handleLogout)
	mux.HandleFunc("GET /api/auth/me", a.handleMe)
	mux.HandleFunc("PATCH /api/me", a.requireAuth(a.handleUpdateMe))

	mux.HandleFunc("GET /api/health", a.handleHealth)

	mux.HandleFunc("GET /api/boards", a.requireAuth(a.handleListBoards))
	mux.HandleFunc("POST /api/boards", a.requireAuth(a.handleCreateBoard))
	mux.HandleFunc("GET /api/boards/{id}", a.requireAuth(a.handleGetBoard))
	mux.HandleFunc("GET /api/boards/{id}/access", a.requireAuth(a.handleBoardAccessLevel))
	mux.HandleFunc("GET /api/boards/{id}/tasks", a.requireAuth(a.handleListTasks))
	mux.HandleFunc("POST /api/boards/{id}/tasks", a.requireAuth(a.handleCreateTask))
	mux.HandleFunc("GET /api/boards/{id}/activity", a.requireAuth(a.handleBoardActivity))
	mux.HandleFunc("GET /api/boards/{id}/events", a.requireAuth(a.handleBoardEvents))

	mux.HandleFunc("GET /api/tasks/{id}", a.requireAuth(a.handleGetTask))
	mux.HandleFunc("PATCH /api/tasks/{id}/status", a.requireAuth(a.handleSetTaskStatus))
	mux.HandleFunc("DELETE /api/tasks/{id}", a.requireAuth(a.handleArchiveTask))
	mux.HandleFunc("GET /api/tasks/{id}/comments", a.requireAuth(a.handleListComments))
	mux.HandleFunc("POST /api/tasks/{id}/comments", a.requireAuth(a.handleAddComment))
	mux.HandleFunc("POST /api/tasks/{id}/view", a.requireAuth(a.handleMarkViewed))

	// Rollups
	mux.HandleFunc("POST /api/rollups", a.requireAuth(a.handleCreateRollup))
	mux.HandleFunc("GET /api/rollups/sources", a.requireAuth(a.handleAvailableSources))
	mux.HandleFunc("GET /api/rollups/{id}/visible", a.requireAuth(a.handleRollupVisible))
	mux.HandleFunc("GET /api/rollups/{id}/tasks", a.requireAuth(a.handleRollupTasks))
	mux.HandleFunc("PUT /api/rollups/{id}/sources", a.requireAuth(a.handleSetRollupSources))
	mux.HandleFunc("POST /api/rollups/{id}/invitations", a.requireAuth(a.handleInviteToRollup))
	mux.HandleFunc("POST /api/invitations/{id}/accept", a.requireAuth(a.handleAcceptInvitation))

	// Admin: users, teams and board ACL
	mux.HandleFunc("GET /api/admin/users", a.requireAdmin(a.handleAdminListUsers))
	mux.HandleFunc("PATCH /api/admin/users/{id}", a.requireAdmin(a.handleAdminUpdateUser))
	mux.HandleFunc("GET /api/admin/teams", a.requireAdmin(a.handleAdminListTeams))
	mux.HandleFunc("POST /api/admin/teams", a.requireAdmin(a.handleAdminCreateTeam))
	mux.HandleFunc("PATCH /api/admin/teams/{id}", a.requireAdmin(a.handleAdminUpdateTeam))
	mux.HandleFunc("POST /api/admin/teams/{id}/members", a.requireAdmin(a.handleAdminAddMember))
	mux.HandleFunc("DELETE /api/admin/teams/{id}/members/{uid}", a.requireAdmin(a.handleAdminRemoveMember))
	mux.HandleFunc("GET /api/admin/boards/{id}/access", a.requireAdmin(a.handleAdminListAccess))
	mux.HandleFunc("POST /api/admin/boards/{id}/access", a.requireAdmin(a.handleAdminGrantAccess))
	mux.HandleFunc("DELETE /api/admin/boards/{id}/access/{entry}", a.requireAdmin(a.handleAdminRevokeAccess))
}
