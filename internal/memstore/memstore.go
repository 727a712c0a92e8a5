// Package memstore is an in-memory implementation of the task engine's
// store contract. It backs the server's memory mode and the tests.
package memstore

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sort"
	"strings"
	"sync"
	"time"

	"taskboard/internal/apperr"
	"taskboard/internal/model"
	"taskboard/internal/service"
)

type session struct {
	userID  int64
	expires time.Time
}

type userRow struct {
	user model.User
	hash string
}

type Store struct {
	mu  sync.RWMutex
	now func() time.Time
	seq int64

	users       map[int64]userRow
	teams       map[int64]model.Team
	members     map[int64][]int64 // user -> teams, insertion order
	boards      map[int64]model.Board
	tasks       map[int64]model.Task
	access      []model.BoardAccess
	sources     []model.RollupSource
	owners      []model.RollupOwner
	invitations []model.RollupInvitation
	comments    []model.Comment
	attachments map[int64]int
	views       map[[2]int64]time.Time
	sessions    map[string]session
	activity    []service.ActivityEntry
	jobs        []Job

	statusWrites int
}

// Job is an enqueued background job as recorded by EnqueueJob.
type Job struct {
	ID      string
	Kind    string
	Payload []byte
}

func New() *Store {
	return &Store{
		now:         time.Now,
		users:       map[int64]userRow{},
		teams:       map[int64]model.Team{},
		members:     map[int64][]int64{},
		boards:      map[int64]model.Board{},
		tasks:       map[int64]model.Task{},
		attachments: map[int64]int{},
		views:       map[[2]int64]time.Time{},
		sessions:    map[string]session{},
	}
}

// SetClock replaces the time source used for timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

// --- seeding ---

func (s *Store) AddUser(u model.User) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.nextID()
	}
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	s.users[u.ID] = userRow{user: u}
	return u
}

func (s *Store) AddTeam(t model.Team) model.Team {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.nextID()
	}
	s.teams[t.ID] = t
	return t
}

func (s *Store) AddBoard(b model.Board) model.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == 0 {
		b.ID = s.nextID()
	}
	if b.Type == "" {
		b.Type = model.BoardStandard
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now()
	}
	s.boards[b.ID] = b
	return b
}

func (s *Store) AddTask(t model.Task) model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addTaskLocked(t)
}

func (s *Store) addTaskLocked(t model.Task) model.Task {
	if t.ID == 0 {
		t.ID = s.nextID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	if t.Position == 0 {
		t.Position = t.ID * 1000
	}
	t.Assignees = append([]int64(nil), t.Assignees...)
	s.tasks[t.ID] = t
	return t
}

func (s *Store) AddRollupSource(rollupID, sourceID int64) {
	s.mu.Lock()
	s.sources = append(s.sources, model.RollupSource{RollupBoardID: rollupID, SourceBoardID: sourceID})
	s.mu.Unlock()
}

func (s *Store) AddRollupOwner(o model.RollupOwner) {
	s.mu.Lock()
	s.owners = append(s.owners, o)
	s.mu.Unlock()
}

func (s *Store) AddInvitation(inv model.RollupInvitation) model.RollupInvitation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addInvitationLocked(inv)
}

func (s *Store) addInvitationLocked(inv model.RollupInvitation) model.RollupInvitation {
	if inv.ID == 0 {
		inv.ID = s.nextID()
	}
	if inv.Status == "" {
		inv.Status = model.InvitationPending
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = s.now()
	}
	s.invitations = append(s.invitations, inv)
	return inv
}

// AddCommentAt seeds a comment with an explicit timestamp.
func (s *Store) AddCommentAt(taskID, userID int64, body string, at time.Time) model.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	uid := userID
	c := model.Comment{ID: s.nextID(), TaskID: taskID, UserID: &uid, Body: body, CreatedAt: at}
	s.comments = append(s.comments, c)
	return c
}

func (s *Store) AddAttachments(taskID int64, n int) {
	s.mu.Lock()
	s.attachments[taskID] += n
	s.mu.Unlock()
}

// StatusWrites counts SetTaskStatus calls.
func (s *Store) StatusWrites() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statusWrites
}

// --- membership and ACL ---

func (s *Store) Teams(_ context.Context) ([]model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Team, 0, len(s.teams))
	for _, t := range s.teams {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateTeam(_ context.Context, name string, excludeFromPublic bool) (model.Team, error) {
	return s.AddTeam(model.Team{Name: name, ExcludeFromPublic: excludeFromPublic}), nil
}

func (s *Store) AddTeamMember(_ context.Context, teamID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[teamID]; !ok {
		return apperr.ErrNotFound
	}
	for _, id := range s.members[userID] {
		if id == teamID {
			return nil
		}
	}
	s.members[userID] = append(s.members[userID], teamID)
	return nil
}

func (s *Store) RemoveTeamMember(_ context.Context, teamID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.members[userID]
	for i, id := range ids {
		if id == teamID {
			s.members[userID] = append(ids[:i:i], ids[i+1:]...)
			return nil
		}
	}
	return apperr.ErrNotFound
}

func (s *Store) SetTeamExcludeFromPublic(_ context.Context, teamID int64, v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[teamID]
	if !ok {
		return apperr.ErrNotFound
	}
	t.ExcludeFromPublic = v
	s.teams[teamID] = t
	return nil
}

func (s *Store) UserTeams(_ context.Context, userID int64) ([]model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Team{}
	for _, id := range s.members[userID] {
		if t, ok := s.teams[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) BoardAccessEntries(_ context.Context, boardID, userID int64, teamIDs []int64) ([]model.BoardAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	teams := map[int64]bool{}
	for _, id := range teamIDs {
		teams[id] = true
	}
	out := []model.BoardAccess{}
	for _, e := range s.access {
		if e.BoardID != boardID {
			continue
		}
		if (e.UserID != nil && *e.UserID == userID) || (e.TeamID != nil && teams[*e.TeamID]) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) GrantBoardAccess(_ context.Context, e model.BoardAccess) (model.BoardAccess, error) {
	if err := e.Validate(); err != nil {
		return model.BoardAccess{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, have := range s.access {
		if have.BoardID == e.BoardID && samePtr(have.UserID, e.UserID) && samePtr(have.TeamID, e.TeamID) {
			s.access[i].Level = e.Level
			return s.access[i], nil
		}
	}
	e.ID = s.nextID()
	s.access = append(s.access, e)
	return e, nil
}

func (s *Store) RevokeBoardAccess(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.access {
		if e.ID == id {
			s.access = append(s.access[:i:i], s.access[i+1:]...)
			return nil
		}
	}
	return apperr.ErrNotFound
}

func (s *Store) ListBoardAccess(_ context.Context, boardID int64) ([]model.BoardAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.BoardAccess{}
	for _, e := range s.access {
		if e.BoardID == boardID {
			out = append(out, e)
		}
	}
	return out, nil
}

func samePtr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// --- boards and rollups ---

func (s *Store) GetBoard(_ context.Context, id int64) (model.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.boards[id]
	if !ok {
		return model.Board{}, apperr.ErrNotFound
	}
	return b, nil
}

func (s *Store) StandardBoards(_ context.Context) ([]model.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Board{}
	for _, b := range s.boards {
		if b.Type == model.BoardStandard {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateBoard(_ context.Context, b model.Board) (model.Board, error) {
	return s.AddBoard(b), nil
}

func (s *Store) RollupSourceBoards(_ context.Context, rollupID int64) ([]model.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Board{}
	for _, src := range s.sources {
		if src.RollupBoardID != rollupID {
			continue
		}
		if b, ok := s.boards[src.SourceBoardID]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) IsRollupOwner(_ context.Context, rollupID, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.owners {
		if o.RollupBoardID == rollupID && o.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) RollupInvitations(_ context.Context, rollupID int64) ([]model.RollupInvitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.RollupInvitation{}
	for _, inv := range s.invitations {
		if inv.RollupBoardID == rollupID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (s *Store) CreateRollup(_ context.Context, title string, ownerID int64) (model.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := model.Board{ID: s.nextID(), Type: model.BoardRollup, Title: title, CreatedBy: ownerID, CreatedAt: s.now()}
	s.boards[b.ID] = b
	s.owners = append(s.owners, model.RollupOwner{RollupBoardID: b.ID, UserID: ownerID, IsPrimary: true})
	return b, nil
}

func (s *Store) SetRollupSources(_ context.Context, rollupID int64, sourceIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.sources[:0:0]
	for _, src := range s.sources {
		if src.RollupBoardID != rollupID {
			kept = append(kept, src)
		}
	}
	for _, id := range sourceIDs {
		kept = append(kept, model.RollupSource{RollupBoardID: rollupID, SourceBoardID: id})
	}
	s.sources = kept
	return nil
}

func (s *Store) CreateInvitation(_ context.Context, inv model.RollupInvitation) (model.RollupInvitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv.ID = 0
	return s.addInvitationLocked(inv), nil
}

func (s *Store) GetInvitation(_ context.Context, id int64) (model.RollupInvitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inv := range s.invitations {
		if inv.ID == id {
			return inv, nil
		}
	}
	return model.RollupInvitation{}, apperr.ErrNotFound
}

func (s *Store) AcceptInvitation(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.invitations {
		if s.invitations[i].ID == id {
			s.invitations[i].Status = model.InvitationAccepted
			return nil
		}
	}
	return apperr.ErrNotFound
}

// --- tasks ---

func (s *Store) GetTask(_ context.Context, id int64) (model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return model.Task{}, apperr.ErrNotFound
	}
	return t, nil
}

func (s *Store) CreateTask(_ context.Context, t model.Task) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = 0
	return s.addTaskLocked(t), nil
}

// TasksByBoards returns the non-archived top-level tasks of the boards,
// ordered by board then position.
func (s *Store) TasksByBoards(_ context.Context, boardIDs []int64) ([]model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := map[int64]int{}
	for i, id := range boardIDs {
		want[id] = i
	}
	out := []model.Task{}
	for _, t := range s.tasks {
		if _, ok := want[t.BoardID]; ok && !t.Archived && !t.IsSubtask() {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BoardID != out[j].BoardID {
			return want[out[i].BoardID] < want[out[j].BoardID]
		}
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) Subtasks(_ context.Context, parentIDs []int64) ([]model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := map[int64]bool{}
	for _, id := range parentIDs {
		want[id] = true
	}
	out := []model.Task{}
	for _, t := range s.tasks {
		if t.ParentTaskID != nil && want[*t.ParentTaskID] && !t.Archived {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SetTaskStatus updates the task, and its direct subtasks when
// withSubtasks is set, in one step.
func (s *Store) SetTaskStatus(_ context.Context, taskID int64, status string, withSubtasks bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return apperr.ErrNotFound
	}
	s.statusWrites++
	now := s.now()
	t.Status, t.UpdatedAt = status, now
	s.tasks[taskID] = t
	if !withSubtasks {
		return nil
	}
	for id, sub := range s.tasks {
		if sub.ParentTaskID != nil && *sub.ParentTaskID == taskID {
			sub.Status, sub.UpdatedAt = status, now
			s.tasks[id] = sub
		}
	}
	return nil
}

func (s *Store) ArchiveTask(_ context.Context, taskID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return apperr.ErrNotFound
	}
	t.Archived = true
	s.tasks[taskID] = t
	return nil
}

// --- comments, attachments, views ---

func (s *Store) CommentsByTask(_ context.Context, taskID int64) ([]model.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Comment{}
	for _, c := range s.comments {
		if c.TaskID == taskID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) AddComment(_ context.Context, taskID, userID int64, body string) (model.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uid := userID
	c := model.Comment{ID: s.nextID(), TaskID: taskID, UserID: &uid, Body: body, CreatedAt: s.now()}
	s.comments = append(s.comments, c)
	return c, nil
}

func (s *Store) CommentStats(_ context.Context, userID int64, taskIDs []int64) (map[int64]model.CommentStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]model.CommentStats, len(taskIDs))
	for _, id := range taskIDs {
		st := model.CommentStats{}
		if v, ok := s.views[[2]int64{id, userID}]; ok {
			v := v
			st.LastViewed = &v
		}
		out[id] = st
	}
	for _, c := range s.comments {
		st, ok := out[c.TaskID]
		if !ok {
			continue
		}
		st.Count++
		if st.LatestAt == nil || c.CreatedAt.After(*st.LatestAt) {
			at := c.CreatedAt
			st.LatestAt = &at
		}
		out[c.TaskID] = st
	}
	return out, nil
}

func (s *Store) AttachmentCounts(_ context.Context, taskIDs []int64) (map[int64]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]int, len(taskIDs))
	for _, id := range taskIDs {
		if n := s.attachments[id]; n > 0 {
			out[id] = n
		}
	}
	return out, nil
}

func (s *Store) MarkTaskViewed(_ context.Context, taskID, userID int64, at time.Time) error {
	s.mu.Lock()
	s.views[[2]int64{taskID, userID}] = at
	s.mu.Unlock()
	return nil
}

// --- users and sessions ---

func (s *Store) UserSummaries(_ context.Context, ids []int64) (map[int64]model.UserSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]model.UserSummary, len(ids))
	for _, id := range ids {
		if row, ok := s.users[id]; ok {
			out[id] = model.UserSummary{ID: id, Name: row.user.Name, Email: row.user.Email}
		}
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, email, passwordHash, name string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.users {
		if strings.EqualFold(row.user.Email, email) {
			return model.User{}, apperr.Invalid("email", "already registered")
		}
	}
	u := model.User{ID: s.nextID(), Email: email, Name: name, Role: model.RoleUser}
	s.users[u.ID] = userRow{user: u, hash: passwordHash}
	return u, nil
}

func (s *Store) UserCredsByEmail(_ context.Context, email string) (model.User, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, row := range s.users {
		if strings.EqualFold(row.user.Email, email) {
			return row.user, row.hash, nil
		}
	}
	return model.User{}, "", apperr.ErrNotFound
}

func (s *Store) CreateSession(_ context.Context, userID int64, ttl time.Duration) (string, time.Time, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", time.Time{}, err
	}
	token := base64.RawURLEncoding.EncodeToString(b)
	s.mu.Lock()
	defer s.mu.Unlock()
	expires := s.now().Add(ttl)
	s.sessions[token] = session{userID: userID, expires: expires}
	return token, expires, nil
}

func (s *Store) UserBySession(_ context.Context, token string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[token]
	if !ok || !sess.expires.After(s.now()) {
		return model.User{}, apperr.ErrNotFound
	}
	row, ok := s.users[sess.userID]
	if !ok {
		return model.User{}, apperr.ErrNotFound
	}
	return row.user, nil
}

func (s *Store) DeleteSession(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.User, 0, len(s.users))
	for _, row := range s.users {
		out = append(out, row.user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) updateUser(id int64, fn func(*model.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.users[id]
	if !ok {
		return apperr.ErrNotFound
	}
	fn(&row.user)
	s.users[id] = row
	return nil
}

func (s *Store) SetUserRole(_ context.Context, id int64, role model.Role) error {
	return s.updateUser(id, func(u *model.User) { u.Role = role })
}

func (s *Store) SetUserDeactivated(_ context.Context, id int64, v bool) error {
	return s.updateUser(id, func(u *model.User) { u.Deactivated = v })
}

func (s *Store) UpdateUserName(_ context.Context, id int64, name string) error {
	return s.updateUser(id, func(u *model.User) { u.Name = name })
}

func (s *Store) Ping(context.Context) error { return nil }

// --- effect sinks ---

func (s *Store) AppendActivity(_ context.Context, e service.ActivityEntry) error {
	s.mu.Lock()
	s.activity = append(s.activity, e)
	s.mu.Unlock()
	return nil
}

// ActivityByBoard returns the newest entries of a board first.
func (s *Store) ActivityByBoard(_ context.Context, boardID int64, limit int) ([]service.ActivityEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []service.ActivityEntry{}
	for i := len(s.activity) - 1; i >= 0 && len(out) < limit; i-- {
		if s.activity[i].BoardID == boardID {
			out = append(out, s.activity[i])
		}
	}
	return out, nil
}

func (s *Store) EnqueueJob(_ context.Context, id, kind string, payload []byte) error {
	s.mu.Lock()
	s.jobs = append(s.jobs, Job{ID: id, Kind: kind, Payload: append([]byte(nil), payload...)})
	s.mu.Unlock()
	return nil
}

// Jobs returns a copy of the enqueued jobs in order.
func (s *Store) Jobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Job(nil), s.jobs...)
}
