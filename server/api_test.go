package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/memstore"
	"taskboard/internal/model"
	"taskboard/internal/rollup"
	"taskboard/internal/service"
)

type testServer struct {
	*httptest.Server
	api   *api
	store *memstore.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := defaultConfig()
	cfg.Store = "memory"
	cfg.AdminEmails = []string{"admin@example.com"}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := memstore.New()
	svc := service.New(store, service.Config{Logger: log})
	a := newAPI(store, svc, cfg, log)
	mux := http.NewServeMux()
	a.routes(mux)

	srv := httptest.NewServer(withLogging(log, mux))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, api: a, store: store}
}

type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func (ts *testServer) client(t *testing.T) *client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{t: t, base: ts.URL, http: &http.Client{Jar: jar, Timeout: 5 * time.Second}}
}

// do sends body as JSON and decodes the Result envelope. out may be nil.
func (c *client) do(method, path string, body, out any) (int, service.Result[json.RawMessage]) {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var res service.Result[json.RawMessage]
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&res))
	if out != nil && len(res.Data) > 0 {
		require.NoError(c.t, json.Unmarshal(res.Data, out))
	}
	return resp.StatusCode, res
}

func (c *client) register(email string) model.User {
	c.t.Helper()
	var u model.User
	code, res := c.do(http.MethodPost, "/api/auth/register", credentials{Email: email, Password: "correct horse", Name: email}, &u)
	require.Equal(c.t, http.StatusCreated, code, res.Error)
	return u
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t)
	c := ts.client(t)

	code, _ := c.do(http.MethodPost, "/api/auth/register", credentials{Email: "short@example.com", Password: "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	admin := c.register("admin@example.com")
	assert.Equal(t, model.RoleAdmin, admin.Role)

	var me model.User
	code, _ = c.do(http.MethodGet, "/api/auth/me", nil, &me)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, admin.ID, me.ID)

	code, _ = c.do(http.MethodPatch, "/api/me", map[string]string{"name": "Ada"}, &me)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Ada", me.Name)

	code, _ = c.do(http.MethodPost, "/api/auth/logout", nil, nil)
	assert.Equal(t, http.StatusOK, code)
	code, res := c.do(http.MethodGet, "/api/auth/me", nil, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, len(res.Data) == 0 || string(res.Data) == "null")

	code, _ = c.do(http.MethodPost, "/api/auth/login", credentials{Email: "admin@example.com", Password: "wrong password"}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = c.do(http.MethodPost, "/api/auth/login", credentials{Email: "ADMIN@example.com", Password: "correct horse"}, nil)
	assert.Equal(t, http.StatusOK, code)

	member := ts.client(t).register("member@example.com")
	assert.Equal(t, model.RoleUser, member.Role)
}

func TestDeactivatedUserLosesSession(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.client(t)
	admin.register("admin@example.com")
	member := ts.client(t)
	u := member.register("member@example.com")

	code, _ := member.do(http.MethodGet, "/api/boards", nil, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = admin.do(http.MethodPatch, fmt.Sprintf("/api/admin/users/%d", u.ID), map[string]bool{"deactivated": true}, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = member.do(http.MethodGet, "/api/boards", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = member.do(http.MethodPost, "/api/auth/login", credentials{Email: "member@example.com", Password: "correct horse"}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAnonymousAndNonAdmin(t *testing.T) {
	ts := newTestServer(t)
	anon := ts.client(t)

	for _, path := range []string{"/api/boards", "/api/tasks/1", "/api/rollups/1/tasks", "/api/admin/users"} {
		code, res := anon.do(http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, code, path)
		assert.False(t, res.Success)
	}

	member := ts.client(t)
	member.register("member@example.com")
	code, _ := member.do(http.MethodGet, "/api/admin/teams", nil, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = member.do(http.MethodGet, "/api/boards/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestContractorBoardAccess(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.client(t)
	admin.register("admin@example.com")
	contractor := ts.client(t)
	cu := contractor.register("vendor@example.com")

	var board model.Board
	code, res := admin.do(http.MethodPost, "/api/boards", map[string]string{"title": "Launch"}, &board)
	require.Equal(t, http.StatusCreated, code, res.Error)

	var team model.Team
	code, _ = admin.do(http.MethodPost, "/api/admin/teams", map[string]any{"name": "vendors", "exclude_from_public": true}, &team)
	require.Equal(t, http.StatusCreated, code)
	code, _ = admin.do(http.MethodPost, fmt.Sprintf("/api/admin/teams/%d/members", team.ID), map[string]int64{"user_id": cu.ID}, nil)
	require.Equal(t, http.StatusOK, code)

	boardPath := fmt.Sprintf("/api/boards/%d", board.ID)
	code, res = contractor.do(http.MethodGet, boardPath, nil, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "access denied", res.Error)
	code, res = contractor.do(http.MethodGet, boardPath+"/access", nil, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, len(res.Data) == 0 || string(res.Data) == "null")

	var mine, other model.Task
	code, _ = admin.do(http.MethodPost, boardPath+"/tasks", map[string]any{"title": "mine", "assignees": []int64{cu.ID}}, &mine)
	require.Equal(t, http.StatusCreated, code)
	code, _ = admin.do(http.MethodPost, boardPath+"/tasks", map[string]any{"title": "other"}, &other)
	require.Equal(t, http.StatusCreated, code)

	var entry model.BoardAccess
	code, res = admin.do(http.MethodPost, fmt.Sprintf("/api/admin/boards/%d/access", board.ID),
		map[string]any{"user_id": cu.ID, "access_level": "assigned_only"}, &entry)
	require.Equal(t, http.StatusCreated, code, res.Error)

	var level model.AccessLevel
	code, _ = contractor.do(http.MethodGet, boardPath+"/access", nil, &level)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.AccessAssignedOnly, level)

	var view rollup.View
	code, _ = contractor.do(http.MethodGet, boardPath+"/tasks", nil, &view)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, view.Tasks, 1)
	assert.Equal(t, mine.ID, view.Tasks[0].ID)

	code, _ = contractor.do(http.MethodGet, fmt.Sprintf("/api/tasks/%d", other.ID), nil, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = contractor.do(http.MethodGet, boardPath+"/tasks?sort=priority", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = admin.do(http.MethodDelete, fmt.Sprintf("/api/admin/boards/%d/access/%d", board.ID, entry.ID), nil, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = contractor.do(http.MethodGet, boardPath+"/tasks", nil, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestRollupEndpoints(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.client(t)
	admin.register("admin@example.com")
	owner := ts.client(t)
	owner.register("owner@example.com")

	var b1, b2 model.Board
	for _, b := range []*model.Board{&b1, &b2} {
		code, _ := owner.do(http.MethodPost, "/api/boards", map[string]string{"title": "Board"}, b)
		require.Equal(t, http.StatusCreated, code)
		code, _ = owner.do(http.MethodPost, fmt.Sprintf("/api/boards/%d/tasks", b.ID), map[string]string{"title": "t"}, nil)
		require.Equal(t, http.StatusCreated, code)
	}

	var r model.Board
	code, _ := owner.do(http.MethodPost, "/api/rollups", map[string]string{"title": "Portfolio"}, &r)
	require.Equal(t, http.StatusCreated, code)
	rollupPath := fmt.Sprintf("/api/rollups/%d", r.ID)

	var sources []model.Board
	code, _ = owner.do(http.MethodPut, rollupPath+"/sources", map[string][]int64{"source_board_ids": {b1.ID, b2.ID}}, &sources)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, sources, 2)

	var view rollup.View
	code, _ = owner.do(http.MethodGet, rollupPath+"/tasks", nil, &view)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, view.Tasks, 2)

	var visible bool
	code, _ = admin.do(http.MethodGet, rollupPath+"/visible", nil, &visible)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, visible)
	code, _ = admin.do(http.MethodGet, rollupPath+"/tasks", nil, nil)
	assert.Equal(t, http.StatusForbidden, code, "admin role does not open rollups")

	var inv model.RollupInvitation
	code, _ = owner.do(http.MethodPost, rollupPath+"/invitations", map[string]bool{"all_users": true}, &inv)
	require.Equal(t, http.StatusCreated, code)
	code, _ = admin.do(http.MethodPost, fmt.Sprintf("/api/invitations/%d/accept", inv.ID), nil, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = admin.do(http.MethodGet, rollupPath+"/tasks", nil, &view)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, view.Tasks, 2)
}

func TestStatusChangeDeliversEffects(t *testing.T) {
	ts := newTestServer(t)
	c := ts.client(t)
	c.register("member@example.com")

	var board model.Board
	code, _ := c.do(http.MethodPost, "/api/boards", map[string]string{"title": "Ops"}, &board)
	require.Equal(t, http.StatusCreated, code)
	var task model.Task
	code, _ = c.do(http.MethodPost, fmt.Sprintf("/api/boards/%d/tasks", board.ID),
		map[string]string{"title": "weekly report", "recurrence": "FREQ=WEEKLY"}, &task)
	require.Equal(t, http.StatusCreated, code)

	ts.api.effects.Wait()
	events, cancel := ts.api.bus.Subscribe(board.ID, nil)
	defer cancel()

	code, _ = c.do(http.MethodPatch, fmt.Sprintf("/api/tasks/%d/status", task.ID), map[string]any{"status": "done"}, &task)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "done", task.Status)
	ts.api.effects.Wait()

	jobs := ts.store.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, service.RecurringTaskCompleted{}.Kind(), jobs[0].Kind)
	var payload service.RecurringTaskCompleted
	require.NoError(t, json.Unmarshal(jobs[0].Payload, &payload))
	assert.Equal(t, task.ID, payload.TaskID)

	select {
	case msg := <-events:
		assert.Contains(t, string(msg), `"task.updated"`)
	default:
		t.Fatal("expected a task event")
	}

	var activity []service.ActivityEntry
	code, _ = c.do(http.MethodGet, fmt.Sprintf("/api/boards/%d/activity", board.ID), nil, &activity)
	require.Equal(t, http.StatusOK, code)
	actions := []string{}
	for _, e := range activity {
		actions = append(actions, e.Action)
	}
	assert.ElementsMatch(t, []string{"board.created", "task.created", "task.status_changed"}, actions)
}

func TestHealthAndRequestID(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	const id = "6f1c1a52-1d1e-4a8b-9a5e-0c4a0b0f9e10"
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", id)
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, id, resp2.Header.Get("X-Request-ID"))
}
