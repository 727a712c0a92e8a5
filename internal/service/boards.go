package service

import (
	"context"
	"errors"
	"strings"

	"taskboard/internal/access"
	"taskboard/internal/apperr"
	"taskboard/internal/model"
	"taskboard/internal/rollup"
	"taskboard/internal/taskquery"
)

// BoardDetail is a board together with the caller's level on it.
type BoardDetail struct {
	model.Board
	AccessLevel model.AccessLevel `json:"access_level"`
}

// ResolveBoardAccess returns the caller's level on a board. A missing
// board resolves to AccessNone, the same answer as a forbidden one.
func (s *Service) ResolveBoardAccess(ctx context.Context, user *model.User, boardID int64) (model.AccessLevel, error) {
	u, err := caller(user)
	if err != nil {
		return model.AccessNone, err
	}
	_, level, err := s.boardLevel(ctx, u, boardID)
	if err != nil {
		if errors.Is(err, apperr.ErrAccessDenied) {
			return model.AccessNone, nil
		}
		return model.AccessNone, err
	}
	return level, nil
}

func (s *Service) GetBoard(ctx context.Context, user *model.User, boardID int64) (BoardDetail, error) {
	u, err := caller(user)
	if err != nil {
		return BoardDetail{}, err
	}
	board, level, err := s.boardLevel(ctx, u, boardID)
	if err != nil {
		return BoardDetail{}, err
	}
	if level == model.AccessNone {
		return BoardDetail{}, apperr.ErrAccessDenied
	}
	board.StatusOptions = rollup.MergeOptions(board.StatusOptions)
	board.SectionOptions = rollup.MergeOptions(board.SectionOptions)
	return BoardDetail{Board: board, AccessLevel: level}, nil
}

// ListTasks lists the visible top-level tasks of a board. Rollup boards
// are served by the rollup aggregator.
func (s *Service) ListTasks(ctx context.Context, user *model.User, boardID int64, filter taskquery.Filter, order taskquery.Sort) (rollup.View, error) {
	u, err := caller(user)
	if err != nil {
		return rollup.View{}, err
	}
	if err := filter.Validate(); err != nil {
		return rollup.View{}, err
	}
	if err := order.Validate(); err != nil {
		return rollup.View{}, err
	}
	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return rollup.View{}, classify("load board", err)
	}
	if board.Type == model.BoardRollup {
		return s.rollups.Tasks(ctx, u, boardID, filter, order)
	}
	level, err := s.resolver.BoardAccess(ctx, u, board)
	if err != nil {
		return rollup.View{}, apperr.Internal("resolve board access", err)
	}
	if level == model.AccessNone {
		return rollup.View{}, apperr.ErrAccessDenied
	}

	all, err := s.store.TasksByBoards(ctx, []int64{board.ID})
	if err != nil {
		return rollup.View{}, apperr.Internal("board tasks", err)
	}
	today := s.rollups.Today()
	matched := make([]model.Task, 0, len(all))
	for _, t := range access.FilterTasks(u, level, all) {
		if filter.Match(t, board.StatusOptions, today) {
			matched = append(matched, t)
		}
	}
	order.Apply(matched)
	tasks, err := rollup.Annotate(ctx, s.store, u, matched, func(int64) []model.Option { return board.StatusOptions })
	if err != nil {
		return rollup.View{}, err
	}
	return rollup.View{
		Tasks:          tasks,
		StatusOptions:  rollup.MergeOptions(board.StatusOptions),
		SectionOptions: rollup.MergeOptions(board.SectionOptions),
	}, nil
}

// AvailableSourceBoards lists the standard boards the caller could add to
// a rollup: those they can see at any level.
func (s *Service) AvailableSourceBoards(ctx context.Context, user *model.User) ([]model.Board, error) {
	u, err := caller(user)
	if err != nil {
		return nil, err
	}
	boards, err := s.store.StandardBoards(ctx)
	if err != nil {
		return nil, apperr.Internal("standard boards", err)
	}
	m, err := s.resolver.Membership(ctx, u)
	if err != nil {
		return nil, apperr.Internal("membership", err)
	}
	out := make([]model.Board, 0, len(boards))
	for _, b := range boards {
		level, err := s.resolver.BoardAccessWith(ctx, u, m, b)
		if err != nil {
			return nil, apperr.Internal("resolve board access", err)
		}
		if level != model.AccessNone {
			out = append(out, b)
		}
	}
	return out, nil
}

// NewBoard is the input of CreateBoard.
type NewBoard struct {
	Type           model.BoardType `json:"type"`
	Title          string          `json:"title"`
	ClientID       *int64          `json:"client_id,omitempty"`
	StatusOptions  []model.Option  `json:"status_options"`
	SectionOptions []model.Option  `json:"section_options"`
}

var defaultStatuses = []model.Option{
	{ID: "todo", Label: "To Do", Position: 0},
	{ID: "in_progress", Label: "In Progress", Position: 1},
	{ID: "done", Label: "Done", Position: 2},
}

// CreateBoard creates a standard or personal board. Contractors may only
// create personal boards. Rollups are created with CreateRollup.
func (s *Service) CreateBoard(ctx context.Context, user *model.User, in NewBoard) (model.Board, []Effect, error) {
	u, err := caller(user)
	if err != nil {
		return model.Board{}, nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return model.Board{}, nil, apperr.Invalid("title", "required")
	}
	if in.Type == "" {
		in.Type = model.BoardStandard
	}
	switch in.Type {
	case model.BoardPersonal:
		in.ClientID = nil
	case model.BoardStandard:
		if !u.IsAdmin() {
			m, err := s.resolver.Membership(ctx, u)
			if err != nil {
				return model.Board{}, nil, apperr.Internal("membership", err)
			}
			if m.Contractor {
				return model.Board{}, nil, apperr.ErrAccessDenied
			}
		}
	default:
		return model.Board{}, nil, apperr.Invalid("type", "must be standard or personal")
	}
	if err := validateOptions("status_options", in.StatusOptions); err != nil {
		return model.Board{}, nil, err
	}
	if err := validateOptions("section_options", in.SectionOptions); err != nil {
		return model.Board{}, nil, err
	}
	if len(in.StatusOptions) == 0 {
		in.StatusOptions = append([]model.Option(nil), defaultStatuses...)
	}
	b, err := s.store.CreateBoard(ctx, model.Board{
		Type:           in.Type,
		Title:          in.Title,
		ClientID:       in.ClientID,
		StatusOptions:  in.StatusOptions,
		SectionOptions: in.SectionOptions,
		CreatedBy:      u.ID,
	})
	if err != nil {
		return model.Board{}, nil, apperr.Internal("create board", err)
	}
	return b, []Effect{ActivityEntry{
		UserID: u.ID, BoardID: b.ID, Action: "board.created",
		Message: u.DisplayName() + " created board " + b.Title, At: s.now(),
	}}, nil
}

func validateOptions(field string, opts []model.Option) error {
	seen := map[string]bool{}
	for _, o := range opts {
		if strings.TrimSpace(o.ID) == "" {
			return apperr.Invalid(field, "option id required")
		}
		if seen[o.ID] {
			return apperr.Invalid(field, "duplicate option id %q", o.ID)
		}
		seen[o.ID] = true
	}
	return nil
}

const maxActivity = 200

// BoardActivity returns the newest activity entries of a board. The feed
// names every task on the board, so it needs full access.
func (s *Service) BoardActivity(ctx context.Context, user *model.User, boardID int64, limit int) ([]ActivityEntry, error) {
	u, err := caller(user)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxActivity {
		limit = maxActivity
	}
	_, level, err := s.boardLevel(ctx, u, boardID)
	if err != nil {
		return nil, err
	}
	if level != model.AccessFull {
		return nil, apperr.ErrAccessDenied
	}
	entries, err := s.store.ActivityByBoard(ctx, boardID, limit)
	if err != nil {
		return nil, apperr.Internal("board activity", err)
	}
	return entries, nil
}
