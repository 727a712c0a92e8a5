package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"taskboard/internal/apperr"
	"taskboard/internal/model"
	"taskboard/internal/service"
)

// Store is the Postgres implementation of the service store, the auth
// tables and the effect sinks.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func execOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// --- teams and ACL ---

func (s *Store) Teams(ctx context.Context) ([]model.Team, error) {
	rows, err := s.db.QueryContext(ctx, `select id, name, exclude_from_public from teams order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Team{}
	for rows.Next() {
		var t model.Team
		if err := rows.Scan(&t.ID, &t.Name, &t.ExcludeFromPublic); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) UserTeams(ctx context.Context, userID int64) ([]model.Team, error) {
	rows, err := s.db.QueryContext(ctx, `select t.id, t.name, t.exclude_from_public
		from team_members m join teams t on t.id = m.team_id
		where m.user_id = $1 order by m.created_at, t.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Team{}
	for rows.Next() {
		var t model.Team
		if err := rows.Scan(&t.ID, &t.Name, &t.ExcludeFromPublic); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CreateTeam(ctx context.Context, name string, excludeFromPublic bool) (model.Team, error) {
	var t model.Team
	err := s.db.QueryRowContext(ctx, `insert into teams(name, exclude_from_public) values($1,$2)
		returning id, name, exclude_from_public`, name, excludeFromPublic).
		Scan(&t.ID, &t.Name, &t.ExcludeFromPublic)
	if isUniqueViolation(err) {
		return model.Team{}, apperr.Invalid("name", "team %q already exists", name)
	}
	return t, err
}

func (s *Store) AddTeamMember(ctx context.Context, teamID, userID int64) error {
	res, err := s.db.ExecContext(ctx, `insert into team_members(team_id, user_id)
		select t.id, u.id from teams t, users u where t.id = $1 and u.id = $2
		on conflict do nothing`, teamID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `select exists(select 1 from team_members where team_id=$1 and user_id=$2)`, teamID, userID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return apperr.ErrNotFound
		}
	}
	return nil
}

func (s *Store) RemoveTeamMember(ctx context.Context, teamID, userID int64) error {
	return execOne(s.db.ExecContext(ctx, `delete from team_members where team_id=$1 and user_id=$2`, teamID, userID))
}

func (s *Store) SetTeamExcludeFromPublic(ctx context.Context, teamID int64, v bool) error {
	return execOne(s.db.ExecContext(ctx, `update teams set exclude_from_public=$2 where id=$1`, teamID, v))
}

const boardAccessCols = `id, board_id, user_id, team_id, access_level`

func scanBoardAccess(rows *sql.Rows) ([]model.BoardAccess, error) {
	defer rows.Close()
	out := []model.BoardAccess{}
	for rows.Next() {
		var e model.BoardAccess
		if err := rows.Scan(&e.ID, &e.BoardID, &e.UserID, &e.TeamID, &e.Level); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) BoardAccessEntries(ctx context.Context, boardID, userID int64, teamIDs []int64) ([]model.BoardAccess, error) {
	rows, err := s.db.QueryContext(ctx, `select `+boardAccessCols+` from board_access
		where board_id = $1 and (user_id = $2 or team_id = any($3)) order by id`, boardID, userID, teamIDs)
	if err != nil {
		return nil, err
	}
	return scanBoardAccess(rows)
}

func (s *Store) ListBoardAccess(ctx context.Context, boardID int64) ([]model.BoardAccess, error) {
	rows, err := s.db.QueryContext(ctx, `select `+boardAccessCols+` from board_access where board_id = $1 order by id`, boardID)
	if err != nil {
		return nil, err
	}
	return scanBoardAccess(rows)
}

// GrantBoardAccess upserts the entry for the principal.
func (s *Store) GrantBoardAccess(ctx context.Context, e model.BoardAccess) (model.BoardAccess, error) {
	if err := e.Validate(); err != nil {
		return model.BoardAccess{}, err
	}
	q := `insert into board_access(board_id, user_id, team_id, access_level) values($1,$2,$3,$4)
		on conflict (board_id, user_id) where user_id is not null do update set access_level = excluded.access_level
		returning ` + boardAccessCols
	if e.TeamID != nil {
		q = `insert into board_access(board_id, user_id, team_id, access_level) values($1,$2,$3,$4)
		on conflict (board_id, team_id) where team_id is not null do update set access_level = excluded.access_level
		returning ` + boardAccessCols
	}
	var out model.BoardAccess
	err := s.db.QueryRowContext(ctx, q, e.BoardID, e.UserID, e.TeamID, e.Level).
		Scan(&out.ID, &out.BoardID, &out.UserID, &out.TeamID, &out.Level)
	return out, err
}

func (s *Store) RevokeBoardAccess(ctx context.Context, id int64) error {
	return execOne(s.db.ExecContext(ctx, `delete from board_access where id=$1`, id))
}

// --- boards ---

const boardCols = `id, type, title, client_id, status_options, section_options, coalesce(created_by, 0), created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBoard(row rowScanner) (model.Board, error) {
	var b model.Board
	var status, section []byte
	if err := row.Scan(&b.ID, &b.Type, &b.Title, &b.ClientID, &status, &section, &b.CreatedBy, &b.CreatedAt); err != nil {
		return model.Board{}, err
	}
	if err := decodeOptions(status, &b.StatusOptions); err != nil {
		return model.Board{}, fmt.Errorf("board %d status options: %w", b.ID, err)
	}
	if err := decodeOptions(section, &b.SectionOptions); err != nil {
		return model.Board{}, fmt.Errorf("board %d section options: %w", b.ID, err)
	}
	return b, nil
}

func decodeOptions(raw []byte, dst *[]model.Option) error {
	*dst = []model.Option{}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func encodeOptions(opts []model.Option) (string, error) {
	if opts == nil {
		opts = []model.Option{}
	}
	b, err := json.Marshal(opts)
	return string(b), err
}

func (s *Store) GetBoard(ctx context.Context, id int64) (model.Board, error) {
	b, err := scanBoard(s.db.QueryRowContext(ctx, `select `+boardCols+` from boards where id=$1`, id))
	return b, notFound(err)
}

func (s *Store) queryBoards(ctx context.Context, q string, args ...any) ([]model.Board, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Board{}
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) StandardBoards(ctx context.Context) ([]model.Board, error) {
	return s.queryBoards(ctx, `select `+boardCols+` from boards where type = 'standard' order by id`)
}

func (s *Store) CreateBoard(ctx context.Context, b model.Board) (model.Board, error) {
	status, err := encodeOptions(b.StatusOptions)
	if err != nil {
		return model.Board{}, err
	}
	section, err := encodeOptions(b.SectionOptions)
	if err != nil {
		return model.Board{}, err
	}
	return scanBoard(s.db.QueryRowContext(ctx, `insert into boards(type, title, client_id, status_options, section_options, created_by)
		values($1,$2,$3,$4::jsonb,$5::jsonb,$6) returning `+boardCols,
		b.Type, b.Title, b.ClientID, status, section, b.CreatedBy))
}

// --- rollups ---

func (s *Store) RollupSourceBoards(ctx context.Context, rollupID int64) ([]model.Board, error) {
	return s.queryBoards(ctx, `select b.id, b.type, b.title, b.client_id, b.status_options, b.section_options, coalesce(b.created_by, 0), b.created_at
		from rollup_sources rs join boards b on b.id = rs.source_board_id
		where rs.rollup_board_id = $1 order by rs.position, rs.source_board_id`, rollupID)
}

func (s *Store) IsRollupOwner(ctx context.Context, rollupID, userID int64) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `select exists(select 1 from rollup_owners where rollup_board_id=$1 and user_id=$2)`, rollupID, userID).Scan(&ok)
	return ok, err
}

const invitationCols = `id, rollup_board_id, user_id, team_id, all_users, status, created_at`

func scanInvitation(row rowScanner) (model.RollupInvitation, error) {
	var inv model.RollupInvitation
	err := row.Scan(&inv.ID, &inv.RollupBoardID, &inv.UserID, &inv.TeamID, &inv.AllUsers, &inv.Status, &inv.CreatedAt)
	return inv, err
}

func (s *Store) RollupInvitations(ctx context.Context, rollupID int64) ([]model.RollupInvitation, error) {
	rows, err := s.db.QueryContext(ctx, `select `+invitationCols+` from rollup_invitations where rollup_board_id=$1 order by id`, rollupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.RollupInvitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *Store) CreateRollup(ctx context.Context, title string, ownerID int64) (model.Board, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Board{}, err
	}
	defer func() { _ = tx.Rollback() }()
	b, err := scanBoard(tx.QueryRowContext(ctx, `insert into boards(type, title, status_options, section_options, created_by)
		values('rollup', $1, '[]'::jsonb, '[]'::jsonb, $2) returning `+boardCols, title, ownerID))
	if err != nil {
		return model.Board{}, err
	}
	if _, err := tx.ExecContext(ctx, `insert into rollup_owners(rollup_board_id, user_id, is_primary) values($1,$2,true)`, b.ID, ownerID); err != nil {
		return model.Board{}, err
	}
	return b, tx.Commit()
}

func (s *Store) SetRollupSources(ctx context.Context, rollupID int64, sourceIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `delete from rollup_sources where rollup_board_id=$1`, rollupID); err != nil {
		return err
	}
	for i, id := range sourceIDs {
		if _, err := tx.ExecContext(ctx, `insert into rollup_sources(rollup_board_id, source_board_id, position) values($1,$2,$3)`, rollupID, id, i); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) CreateInvitation(ctx context.Context, inv model.RollupInvitation) (model.RollupInvitation, error) {
	return scanInvitation(s.db.QueryRowContext(ctx, `insert into rollup_invitations(rollup_board_id, user_id, team_id, all_users, status)
		values($1,$2,$3,$4,$5) returning `+invitationCols,
		inv.RollupBoardID, inv.UserID, inv.TeamID, inv.AllUsers, inv.Status))
}

func (s *Store) GetInvitation(ctx context.Context, id int64) (model.RollupInvitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx, `select `+invitationCols+` from rollup_invitations where id=$1`, id))
	return inv, notFound(err)
}

func (s *Store) AcceptInvitation(ctx context.Context, id int64) error {
	return execOne(s.db.ExecContext(ctx, `update rollup_invitations set status='accepted' where id=$1`, id))
}

// --- tasks ---

const taskCols = `id, board_id, title, status, section, parent_task_id, due_date, archived, position, recurrence, created_at, updated_at`

func scanTask(row rowScanner) (model.Task, error) {
	var t model.Task
	err := row.Scan(&t.ID, &t.BoardID, &t.Title, &t.Status, &t.Section, &t.ParentTaskID, &t.DueDate,
		&t.Archived, &t.Position, &t.Recurrence, &t.CreatedAt, &t.UpdatedAt)
	if t.DueDate != nil {
		d := t.DueDate.UTC()
		t.DueDate = &d
	}
	t.Assignees = []int64{}
	return t, err
}

func (s *Store) queryTasks(ctx context.Context, q string, args ...any) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, s.loadAssignees(ctx, out)
}

// loadAssignees fills Assignees for tasks with one query.
func (s *Store) loadAssignees(ctx context.Context, tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	ids := make([]int64, len(tasks))
	idx := make(map[int64]int, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
		idx[t.ID] = i
	}
	rows, err := s.db.QueryContext(ctx, `select task_id, user_id from task_assignees where task_id = any($1) order by task_id, user_id`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var taskID, userID int64
		if err := rows.Scan(&taskID, &userID); err != nil {
			return err
		}
		i := idx[taskID]
		tasks[i].Assignees = append(tasks[i].Assignees, userID)
	}
	return rows.Err()
}

func (s *Store) GetTask(ctx context.Context, id int64) (model.Task, error) {
	tasks, err := s.queryTasks(ctx, `select `+taskCols+` from tasks where id=$1`, id)
	if err != nil {
		return model.Task{}, err
	}
	if len(tasks) == 0 {
		return model.Task{}, apperr.ErrNotFound
	}
	return tasks[0], nil
}

func (s *Store) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Task{}, err
	}
	defer func() { _ = tx.Rollback() }()
	var next int64 = 1000
	if err := tx.QueryRowContext(ctx, `select coalesce(max(position),0)+1000 from tasks where board_id=$1`, t.BoardID).Scan(&next); err != nil {
		return model.Task{}, err
	}
	out, err := scanTask(tx.QueryRowContext(ctx, `insert into tasks(board_id, title, status, section, parent_task_id, due_date, position, recurrence)
		values($1,$2,$3,$4,$5,$6,$7,$8) returning `+taskCols,
		t.BoardID, t.Title, t.Status, t.Section, t.ParentTaskID, t.DueDate, next, t.Recurrence))
	if err != nil {
		return model.Task{}, err
	}
	for _, uid := range t.Assignees {
		if _, err := tx.ExecContext(ctx, `insert into task_assignees(task_id, user_id) values($1,$2) on conflict do nothing`, out.ID, uid); err != nil {
			return model.Task{}, err
		}
		out.Assignees = append(out.Assignees, uid)
	}
	return out, tx.Commit()
}

func (s *Store) TasksByBoards(ctx context.Context, boardIDs []int64) ([]model.Task, error) {
	if len(boardIDs) == 0 {
		return []model.Task{}, nil
	}
	return s.queryTasks(ctx, `select `+taskCols+` from tasks
		where board_id = any($1) and not archived and parent_task_id is null
		order by array_position($1, board_id), position, id`, boardIDs)
}

func (s *Store) Subtasks(ctx context.Context, parentIDs []int64) ([]model.Task, error) {
	if len(parentIDs) == 0 {
		return []model.Task{}, nil
	}
	return s.queryTasks(ctx, `select `+taskCols+` from tasks
		where parent_task_id = any($1) and not archived order by id`, parentIDs)
}

// SetTaskStatus updates the task and, with withSubtasks, its direct
// subtasks in one statement.
func (s *Store) SetTaskStatus(ctx context.Context, taskID int64, status string, withSubtasks bool) error {
	return execOne(s.db.ExecContext(ctx, `update tasks set status=$2, updated_at=now()
		where id=$1 or ($3 and parent_task_id=$1)`, taskID, status, withSubtasks))
}

func (s *Store) ArchiveTask(ctx context.Context, taskID int64) error {
	return execOne(s.db.ExecContext(ctx, `update tasks set archived=true, updated_at=now() where id=$1`, taskID))
}

// --- comments, attachments, views ---

func (s *Store) CommentsByTask(ctx context.Context, taskID int64) ([]model.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `select id, task_id, user_id, body, created_at from comments where task_id=$1 order by created_at, id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Comment{}
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.UserID, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) AddComment(ctx context.Context, taskID, userID int64, body string) (model.Comment, error) {
	var c model.Comment
	err := s.db.QueryRowContext(ctx, `insert into comments(task_id, user_id, body) values($1,$2,$3)
		returning id, task_id, user_id, body, created_at`, taskID, userID, body).
		Scan(&c.ID, &c.TaskID, &c.UserID, &c.Body, &c.CreatedAt)
	return c, err
}

func (s *Store) CommentStats(ctx context.Context, userID int64, taskIDs []int64) (map[int64]model.CommentStats, error) {
	out := make(map[int64]model.CommentStats, len(taskIDs))
	if len(taskIDs) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `select t.id, count(c.id), max(c.created_at), v.last_viewed_at
		from unnest($2::bigint[]) as t(id)
		left join comments c on c.task_id = t.id
		left join task_views v on v.task_id = t.id and v.user_id = $1
		group by t.id, v.last_viewed_at`, userID, taskIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var st model.CommentStats
		if err := rows.Scan(&id, &st.Count, &st.LatestAt, &st.LastViewed); err != nil {
			return nil, err
		}
		out[id] = st
	}
	return out, rows.Err()
}

func (s *Store) AttachmentCounts(ctx context.Context, taskIDs []int64) (map[int64]int, error) {
	out := make(map[int64]int, len(taskIDs))
	if len(taskIDs) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `select task_id, count(*) from attachments where task_id = any($1) group by task_id`, taskIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

func (s *Store) MarkTaskViewed(ctx context.Context, taskID, userID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `insert into task_views(task_id, user_id, last_viewed_at) values($1,$2,$3)
		on conflict (task_id, user_id) do update set last_viewed_at = greatest(task_views.last_viewed_at, excluded.last_viewed_at)`,
		taskID, userID, at)
	return err
}

// --- activity and jobs ---

func (s *Store) AppendActivity(ctx context.Context, e service.ActivityEntry) error {
	_, err := s.db.ExecContext(ctx, `insert into activity_log(user_id, board_id, task_id, action, message, created_at)
		values($1,$2,$3,$4,$5,$6)`, e.UserID, e.BoardID, e.TaskID, e.Action, e.Message, e.At)
	return err
}

func (s *Store) ActivityByBoard(ctx context.Context, boardID int64, limit int) ([]service.ActivityEntry, error) {
	rows, err := s.db.QueryContext(ctx, `select user_id, board_id, task_id, action, message, created_at
		from activity_log where board_id=$1 order by created_at desc, id desc limit $2`, boardID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []service.ActivityEntry{}
	for rows.Next() {
		var e service.ActivityEntry
		if err := rows.Scan(&e.UserID, &e.BoardID, &e.TaskID, &e.Action, &e.Message, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) EnqueueJob(ctx context.Context, id, kind string, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `insert into jobs(id, kind, payload) values($1,$2,$3::jsonb)`, id, kind, string(payload))
	return err
}

// --- users and sessions ---

const userCols = `id, email, name, role, deactivated`

func scanUser(row rowScanner, extra ...any) (model.User, error) {
	var u model.User
	dest := append([]any{&u.ID, &u.Email, &u.Name, &u.Role, &u.Deactivated}, extra...)
	err := row.Scan(dest...)
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, email, passwordHash, name string) (model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `insert into users(email, password_hash, name) values($1,$2,$3)
		returning `+userCols, email, passwordHash, name))
	if isUniqueViolation(err) {
		return model.User{}, apperr.Invalid("email", "already registered")
	}
	return u, err
}

// UserCredsByEmail returns the user and password hash.
func (s *Store) UserCredsByEmail(ctx context.Context, email string) (model.User, string, error) {
	var hash string
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userCols+`, password_hash from users where lower(email)=lower($1)`, email), &hash)
	if err != nil {
		return model.User{}, "", notFound(err)
	}
	return u, hash, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `select `+userCols+` from users order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) UserSummaries(ctx context.Context, ids []int64) (map[int64]model.UserSummary, error) {
	out := make(map[int64]model.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `select id, name, email from users where id = any($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var u model.UserSummary
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, err
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

func (s *Store) SetUserRole(ctx context.Context, id int64, role model.Role) error {
	return execOne(s.db.ExecContext(ctx, `update users set role=$2 where id=$1`, id, role))
}

func (s *Store) SetUserDeactivated(ctx context.Context, id int64, v bool) error {
	if err := execOne(s.db.ExecContext(ctx, `update users set deactivated=$2 where id=$1`, id, v)); err != nil {
		return err
	}
	if v {
		_, err := s.db.ExecContext(ctx, `delete from sessions where user_id=$1`, id)
		return err
	}
	return nil
}

func (s *Store) UpdateUserName(ctx context.Context, id int64, name string) error {
	return execOne(s.db.ExecContext(ctx, `update users set name=$2 where id=$1`, id, name))
}

func (s *Store) CreateSession(ctx context.Context, userID int64, ttl time.Duration) (string, time.Time, error) {
	// 32 random bytes, base64 URL encoded
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", time.Time{}, err
	}
	token := base64.RawURLEncoding.EncodeToString(b)
	expires := time.Now().Add(ttl)
	if _, err := s.db.ExecContext(ctx, `insert into sessions(user_id, token, expires_at) values($1,$2,$3)`, userID, token, expires); err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

func (s *Store) UserBySession(ctx context.Context, token string) (model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `select u.id, u.email, u.name, u.role, u.deactivated
		from sessions s join users u on u.id = s.user_id
		where s.token = $1 and s.expires_at > now()`, token))
	return u, notFound(err)
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `delete from sessions where token=$1`, token)
	return err
}

const schema = `
create table if not exists users(
	id bigserial primary key,
	email text unique not null,
	password_hash text not null default '',
	name text not null default '',
	role text not null default 'user' check (role in ('admin','user')),
	deactivated boolean not null default false,
	created_at timestamptz not null default now()
);
create unique index if not exists users_email_lower_idx on users(lower(email));

create table if not exists sessions(
	id bigserial primary key,
	user_id bigint not null references users(id) on delete cascade,
	token text unique not null,
	created_at timestamptz not null default now(),
	expires_at timestamptz not null
);

create table if not exists teams(
	id bigserial primary key,
	name text unique not null,
	exclude_from_public boolean not null default false,
	created_at timestamptz not null default now()
);
create table if not exists team_members(
	team_id bigint not null references teams(id) on delete cascade,
	user_id bigint not null references users(id) on delete cascade,
	created_at timestamptz not null default now(),
	primary key(team_id, user_id)
);
create index if not exists team_members_user_idx on team_members(user_id);

create table if not exists boards(
	id bigserial primary key,
	type text not null default 'standard' check (type in ('standard','rollup','personal')),
	title text not null check (length(title) > 0),
	client_id bigint,
	status_options jsonb not null default '[]'::jsonb,
	section_options jsonb not null default '[]'::jsonb,
	created_by bigint references users(id) on delete set null,
	created_at timestamptz not null default now()
);

create table if not exists board_access(
	id bigserial primary key,
	board_id bigint not null references boards(id) on delete cascade,
	user_id bigint references users(id) on delete cascade,
	team_id bigint references teams(id) on delete cascade,
	access_level text not null check (access_level in ('full','assigned_only')),
	check ((user_id is null) <> (team_id is null))
);
create unique index if not exists board_access_user_idx on board_access(board_id, user_id) where user_id is not null;
create unique index if not exists board_access_team_idx on board_access(board_id, team_id) where team_id is not null;

create table if not exists tasks(
	id bigserial primary key,
	board_id bigint not null references boards(id) on delete cascade,
	parent_task_id bigint references tasks(id) on delete cascade,
	title text not null check (length(title) > 0),
	status text not null,
	section text,
	due_date date,
	archived boolean not null default false,
	position bigint not null default 1000,
	recurrence text not null default '',
	created_at timestamptz not null default now(),
	updated_at timestamptz not null default now()
);
create index if not exists tasks_board_idx on tasks(board_id, position);
create index if not exists tasks_parent_idx on tasks(parent_task_id);

create table if not exists task_assignees(
	task_id bigint not null references tasks(id) on delete cascade,
	user_id bigint not null references users(id) on delete cascade,
	primary key(task_id, user_id)
);

create table if not exists rollup_sources(
	rollup_board_id bigint not null references boards(id) on delete cascade,
	source_board_id bigint not null references boards(id) on delete cascade,
	position int not null default 0,
	primary key(rollup_board_id, source_board_id)
);
create table if not exists rollup_owners(
	rollup_board_id bigint not null references boards(id) on delete cascade,
	user_id bigint not null references users(id) on delete cascade,
	is_primary boolean not null default false,
	primary key(rollup_board_id, user_id)
);
create table if not exists rollup_invitations(
	id bigserial primary key,
	rollup_board_id bigint not null references boards(id) on delete cascade,
	user_id bigint references users(id) on delete cascade,
	team_id bigint references teams(id) on delete cascade,
	all_users boolean not null default false,
	status text not null default 'pending' check (status in ('pending','accepted')),
	created_at timestamptz not null default now()
);

create table if not exists comments(
	id bigserial primary key,
	task_id bigint not null references tasks(id) on delete cascade,
	user_id bigint references users(id) on delete set null,
	body text not null check (length(body) > 0),
	created_at timestamptz not null default now()
);
create index if not exists comments_task_idx on comments(task_id);

create table if not exists attachments(
	id bigserial primary key,
	task_id bigint not null references tasks(id) on delete cascade,
	name text not null,
	created_at timestamptz not null default now()
);

create table if not exists task_views(
	task_id bigint not null references tasks(id) on delete cascade,
	user_id bigint not null references users(id) on delete cascade,
	last_viewed_at timestamptz not null,
	primary key(task_id, user_id)
);

create table if not exists activity_log(
	id bigserial primary key,
	user_id bigint,
	board_id bigint not null,
	task_id bigint,
	action text not null,
	message text not null,
	created_at timestamptz not null default now()
);
create index if not exists activity_board_idx on activity_log(board_id, created_at desc);

create table if not exists jobs(
	id uuid primary key,
	kind text not null,
	payload jsonb not null,
	status text not null default 'pending',
	created_at timestamptz not null default now()
);
`
