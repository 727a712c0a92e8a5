package service

import (
	"context"
	"fmt"
	"strings"

	"taskboard/internal/apperr"
	"taskboard/internal/model"
	"taskboard/internal/rollup"
	"taskboard/internal/taskquery"
)

// CanSeeRollup reports whether the caller may see a rollup. A missing
// board, or one that is not a rollup, is simply not visible.
func (s *Service) CanSeeRollup(ctx context.Context, user *model.User, rollupID int64) (bool, error) {
	u, err := caller(user)
	if err != nil {
		return false, err
	}
	board, err := s.store.GetBoard(ctx, rollupID)
	if err != nil {
		if err := classify("load rollup", err); apperr.IsInternal(err) {
			return false, err
		}
		return false, nil
	}
	ok, err := s.resolver.CanSeeRollup(ctx, u, board)
	if err != nil {
		return false, apperr.Internal("rollup visibility", err)
	}
	return ok, nil
}

func (s *Service) GetRollupTasks(ctx context.Context, user *model.User, rollupID int64, filter taskquery.Filter, order taskquery.Sort) (rollup.View, error) {
	u, err := caller(user)
	if err != nil {
		return rollup.View{}, err
	}
	return s.rollups.Tasks(ctx, u, rollupID, filter, order)
}

// CreateRollup creates an empty rollup owned by the caller. Contractors
// cannot own rollups.
func (s *Service) CreateRollup(ctx context.Context, user *model.User, title string) (model.Board, []Effect, error) {
	u, err := caller(user)
	if err != nil {
		return model.Board{}, nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return model.Board{}, nil, apperr.Invalid("title", "required")
	}
	m, err := s.resolver.Membership(ctx, u)
	if err != nil {
		return model.Board{}, nil, apperr.Internal("membership", err)
	}
	if m.Contractor {
		return model.Board{}, nil, apperr.ErrAccessDenied
	}
	b, err := s.store.CreateRollup(ctx, title, u.ID)
	if err != nil {
		return model.Board{}, nil, apperr.Internal("create rollup", err)
	}
	return b, []Effect{ActivityEntry{
		UserID: u.ID, BoardID: b.ID, Action: "rollup.created",
		Message: fmt.Sprintf("%s created rollup %q", u.DisplayName(), b.Title), At: s.now(),
	}}, nil
}

// ownedRollup loads a rollup the caller owns.
func (s *Service) ownedRollup(ctx context.Context, u model.User, rollupID int64) (model.Board, error) {
	board, err := s.store.GetBoard(ctx, rollupID)
	if err != nil {
		return model.Board{}, classify("load rollup", err)
	}
	if board.Type != model.BoardRollup {
		return model.Board{}, apperr.ErrAccessDenied
	}
	owner, err := s.store.IsRollupOwner(ctx, board.ID, u.ID)
	if err != nil {
		return model.Board{}, apperr.Internal("rollup owner", err)
	}
	if !owner {
		return model.Board{}, apperr.ErrAccessDenied
	}
	return board, nil
}

// SetRollupSources replaces the source list of a rollup the caller owns.
// Every source must be a standard board the caller can see. Duplicates
// are collapsed, keeping first-seen order.
func (s *Service) SetRollupSources(ctx context.Context, user *model.User, rollupID int64, sourceIDs []int64) ([]model.Board, []Effect, error) {
	u, err := caller(user)
	if err != nil {
		return nil, nil, err
	}
	board, err := s.ownedRollup(ctx, u, rollupID)
	if err != nil {
		return nil, nil, err
	}
	m, err := s.resolver.Membership(ctx, u)
	if err != nil {
		return nil, nil, apperr.Internal("membership", err)
	}
	seen := make(map[int64]bool, len(sourceIDs))
	ids := make([]int64, 0, len(sourceIDs))
	sources := make([]model.Board, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		src, err := s.store.GetBoard(ctx, id)
		if err != nil {
			return nil, nil, classify("load source board", err)
		}
		if src.Type != model.BoardStandard {
			return nil, nil, apperr.Invalid("source_board_ids", "board %d is not a standard board", id)
		}
		level, err := s.resolver.BoardAccessWith(ctx, u, m, src)
		if err != nil {
			return nil, nil, apperr.Internal("resolve board access", err)
		}
		if level == model.AccessNone {
			return nil, nil, apperr.ErrAccessDenied
		}
		ids = append(ids, id)
		sources = append(sources, src)
	}
	if err := s.store.SetRollupSources(ctx, board.ID, ids); err != nil {
		return nil, nil, apperr.Internal("set rollup sources", err)
	}
	return sources, []Effect{ActivityEntry{
		UserID: u.ID, BoardID: board.ID, Action: "rollup.sources_changed",
		Message: fmt.Sprintf("%s set %d source boards on %q", u.DisplayName(), len(ids), board.Title), At: s.now(),
	}}, nil
}

// InviteTarget names who an invitation is for. Exactly one field is set.
type InviteTarget struct {
	UserID   *int64 `json:"user_id,omitempty"`
	TeamID   *int64 `json:"team_id,omitempty"`
	AllUsers bool   `json:"all_users,omitempty"`
}

func (t InviteTarget) count() int {
	n := 0
	if t.UserID != nil {
		n++
	}
	if t.TeamID != nil {
		n++
	}
	if t.AllUsers {
		n++
	}
	return n
}

// InviteToRollup creates a pending invitation on a rollup the caller owns.
func (s *Service) InviteToRollup(ctx context.Context, user *model.User, rollupID int64, target InviteTarget) (model.RollupInvitation, error) {
	u, err := caller(user)
	if err != nil {
		return model.RollupInvitation{}, err
	}
	if target.count() != 1 {
		return model.RollupInvitation{}, apperr.Invalid("target", "exactly one of user_id, team_id or all_users is required")
	}
	board, err := s.ownedRollup(ctx, u, rollupID)
	if err != nil {
		return model.RollupInvitation{}, err
	}
	inv, err := s.store.CreateInvitation(ctx, model.RollupInvitation{
		RollupBoardID: board.ID,
		UserID:        target.UserID,
		TeamID:        target.TeamID,
		AllUsers:      target.AllUsers,
		Status:        model.InvitationPending,
	})
	if err != nil {
		return model.RollupInvitation{}, apperr.Internal("create invitation", err)
	}
	return inv, nil
}

// AcceptInvitation accepts an invitation addressed to the caller, one of
// their teams, or everyone.
func (s *Service) AcceptInvitation(ctx context.Context, user *model.User, invitationID int64) (model.RollupInvitation, error) {
	u, err := caller(user)
	if err != nil {
		return model.RollupInvitation{}, err
	}
	inv, err := s.store.GetInvitation(ctx, invitationID)
	if err != nil {
		return model.RollupInvitation{}, classify("load invitation", err)
	}
	m, err := s.resolver.Membership(ctx, u)
	if err != nil {
		return model.RollupInvitation{}, apperr.Internal("membership", err)
	}
	if !inv.Matches(u.ID, m.TeamIDs) {
		return model.RollupInvitation{}, apperr.ErrAccessDenied
	}
	if inv.Status == model.InvitationAccepted {
		return inv, nil
	}
	if err := s.store.AcceptInvitation(ctx, inv.ID); err != nil {
		return model.RollupInvitation{}, classify("accept invitation", err)
	}
	inv.Status = model.InvitationAccepted
	return inv, nil
}
