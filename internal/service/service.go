// Package service exposes the board, task, comment and rollup operations.
//
// Every operation takes the resolved caller and goes through the one
// access.Resolver held by the Service; no operation carries its own copy
// of the visibility rules. Mutations return the side effects they imply
// (activity entries, job events) instead of dispatching them, so the
// caller decides how and when to deliver them.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"taskboard/internal/access"
	"taskboard/internal/apperr"
	"taskboard/internal/model"
	"taskboard/internal/rollup"
)

// Store is everything the service reads and writes.
type Store interface {
	access.Store
	rollup.Store

	StandardBoards(ctx context.Context) ([]model.Board, error)
	CreateBoard(ctx context.Context, b model.Board) (model.Board, error)

	GetTask(ctx context.Context, id int64) (model.Task, error)
	CreateTask(ctx context.Context, t model.Task) (model.Task, error)
	// SetTaskStatus writes the task and, with withSubtasks, its direct
	// subtasks in a single statement.
	SetTaskStatus(ctx context.Context, taskID int64, status string, withSubtasks bool) error
	ArchiveTask(ctx context.Context, taskID int64) error

	CommentsByTask(ctx context.Context, taskID int64) ([]model.Comment, error)
	AddComment(ctx context.Context, taskID, userID int64, body string) (model.Comment, error)
	MarkTaskViewed(ctx context.Context, taskID, userID int64, at time.Time) error

	CreateRollup(ctx context.Context, title string, ownerID int64) (model.Board, error)
	SetRollupSources(ctx context.Context, rollupID int64, sourceIDs []int64) error
	CreateInvitation(ctx context.Context, inv model.RollupInvitation) (model.RollupInvitation, error)
	GetInvitation(ctx context.Context, id int64) (model.RollupInvitation, error)
	AcceptInvitation(ctx context.Context, id int64) error

	ActivityByBoard(ctx context.Context, boardID int64, limit int) ([]ActivityEntry, error)

	ListBoardAccess(ctx context.Context, boardID int64) ([]model.BoardAccess, error)
	GrantBoardAccess(ctx context.Context, e model.BoardAccess) (model.BoardAccess, error)
	RevokeBoardAccess(ctx context.Context, id int64) error
	Teams(ctx context.Context) ([]model.Team, error)
	CreateTeam(ctx context.Context, name string, excludeFromPublic bool) (model.Team, error)
	AddTeamMember(ctx context.Context, teamID, userID int64) error
	RemoveTeamMember(ctx context.Context, teamID, userID int64) error
	SetTeamExcludeFromPublic(ctx context.Context, teamID int64, v bool) error
}

type Config struct {
	// Location is the organization timezone used for "today".
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger
}

type Service struct {
	store    Store
	resolver *access.Resolver
	rollups  *rollup.Aggregator
	now      func() time.Time
	log      *slog.Logger
}

func New(store Store, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	resolver := access.NewResolver(store)
	return &Service{
		store:    store,
		resolver: resolver,
		rollups:  rollup.New(store, resolver, rollup.WithClock(cfg.Now), rollup.WithLocation(cfg.Location)),
		now:      cfg.Now,
		log:      cfg.Logger,
	}
}

// Resolver returns the shared access resolver.
func (s *Service) Resolver() *access.Resolver { return s.resolver }

// caller rejects a missing or deactivated user.
func caller(user *model.User) (model.User, error) {
	if user == nil || user.ID == 0 || user.Deactivated {
		return model.User{}, apperr.ErrNotAuthenticated
	}
	return *user, nil
}

// classify turns store misses into AccessDenied and wraps anything else
// that is not already one of our kinds as internal.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperr.ErrNotFound):
		return apperr.ErrAccessDenied
	case errors.Is(err, apperr.ErrAccessDenied), errors.Is(err, apperr.ErrNotAuthenticated), apperr.IsValidation(err):
		return err
	}
	if apperr.IsInternal(err) {
		return err
	}
	return apperr.Internal(op, err)
}

// boardLevel loads a board and resolves the caller's level on it.
func (s *Service) boardLevel(ctx context.Context, user model.User, boardID int64) (model.Board, model.AccessLevel, error) {
	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return model.Board{}, model.AccessNone, classify("load board", err)
	}
	level, err := s.resolver.BoardAccess(ctx, user, board)
	if err != nil {
		return model.Board{}, model.AccessNone, apperr.Internal("resolve board access", err)
	}
	return board, level, nil
}

// visibleTask loads a task the caller may see, with its board and level.
// Subtasks are visible when they or their parent are.
func (s *Service) visibleTask(ctx context.Context, user model.User, taskID int64) (model.Task, model.Board, model.AccessLevel, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return model.Task{}, model.Board{}, model.AccessNone, classify("load task", err)
	}
	board, level, err := s.boardLevel(ctx, user, task.BoardID)
	if err != nil {
		return model.Task{}, model.Board{}, model.AccessNone, err
	}
	if level == model.AccessNone || board.Type == model.BoardRollup {
		return model.Task{}, model.Board{}, model.AccessNone, apperr.ErrAccessDenied
	}
	if access.CanViewTask(user, level, task) {
		return task, board, level, nil
	}
	if task.ParentTaskID != nil {
		parent, err := s.store.GetTask(ctx, *task.ParentTaskID)
		if err != nil {
			return model.Task{}, model.Board{}, model.AccessNone, classify("load parent task", err)
		}
		if access.CanViewTask(user, level, parent) {
			return task, board, level, nil
		}
	}
	return model.Task{}, model.Board{}, model.AccessNone, apperr.ErrAccessDenied
}
