package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskboard/internal/apperr"
	"taskboard/internal/model"
)

func requireAdmin(user *model.User) (model.User, error) {
	u, err := caller(user)
	if err != nil {
		return model.User{}, err
	}
	if !u.IsAdmin() {
		return model.User{}, apperr.ErrAccessDenied
	}
	return u, nil
}

func (s *Service) ListBoardAccess(ctx context.Context, user *model.User, boardID int64) ([]model.BoardAccess, error) {
	if _, err := requireAdmin(user); err != nil {
		return nil, err
	}
	if _, err := s.store.GetBoard(ctx, boardID); err != nil {
		return nil, classify("load board", err)
	}
	entries, err := s.store.ListBoardAccess(ctx, boardID)
	if err != nil {
		return nil, apperr.Internal("list board access", err)
	}
	return entries, nil
}

// GrantBoardAccess adds or updates the ACL entry for one principal on a
// standard board.
func (s *Service) GrantBoardAccess(ctx context.Context, user *model.User, e model.BoardAccess) (model.BoardAccess, []Effect, error) {
	u, err := requireAdmin(user)
	if err != nil {
		return model.BoardAccess{}, nil, err
	}
	if err := e.Validate(); err != nil {
		if errors.Is(err, model.ErrInvalidPrincipal) {
			return model.BoardAccess{}, nil, apperr.Invalid("principal", "%v", err)
		}
		return model.BoardAccess{}, nil, apperr.Invalid("access_level", "must be full or assigned_only")
	}
	board, err := s.store.GetBoard(ctx, e.BoardID)
	if err != nil {
		return model.BoardAccess{}, nil, classify("load board", err)
	}
	if board.Type != model.BoardStandard {
		return model.BoardAccess{}, nil, apperr.Invalid("board_id", "access entries apply to standard boards only")
	}
	granted, err := s.store.GrantBoardAccess(ctx, e)
	if err != nil {
		return model.BoardAccess{}, nil, classify("grant board access", err)
	}
	return granted, []Effect{ActivityEntry{
		UserID: u.ID, BoardID: board.ID, Action: "access.granted",
		Message: fmt.Sprintf("%s granted %s on %q to %s", u.DisplayName(), granted.Level, board.Title, principal(granted)), At: s.now(),
	}}, nil
}

func (s *Service) RevokeBoardAccess(ctx context.Context, user *model.User, boardID, entryID int64) ([]Effect, error) {
	u, err := requireAdmin(user)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListBoardAccess(ctx, boardID)
	if err != nil {
		return nil, apperr.Internal("list board access", err)
	}
	var found *model.BoardAccess
	for i := range entries {
		if entries[i].ID == entryID {
			found = &entries[i]
			break
		}
	}
	if found == nil {
		return nil, apperr.ErrAccessDenied
	}
	if err := s.store.RevokeBoardAccess(ctx, entryID); err != nil {
		return nil, classify("revoke board access", err)
	}
	return []Effect{ActivityEntry{
		UserID: u.ID, BoardID: boardID, Action: "access.revoked",
		Message: fmt.Sprintf("%s revoked access for %s", u.DisplayName(), principal(*found)), At: s.now(),
	}}, nil
}

func principal(e model.BoardAccess) string {
	if e.UserID != nil {
		return fmt.Sprintf("user %d", *e.UserID)
	}
	return fmt.Sprintf("team %d", *e.TeamID)
}

func (s *Service) ListTeams(ctx context.Context, user *model.User) ([]model.Team, error) {
	if _, err := requireAdmin(user); err != nil {
		return nil, err
	}
	teams, err := s.store.Teams(ctx)
	if err != nil {
		return nil, apperr.Internal("list teams", err)
	}
	return teams, nil
}

func (s *Service) CreateTeam(ctx context.Context, user *model.User, name string, excludeFromPublic bool) (model.Team, error) {
	if _, err := requireAdmin(user); err != nil {
		return model.Team{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Team{}, apperr.Invalid("name", "required")
	}
	t, err := s.store.CreateTeam(ctx, name, excludeFromPublic)
	if err != nil {
		return model.Team{}, apperr.Internal("create team", err)
	}
	return t, nil
}

func (s *Service) AddTeamMember(ctx context.Context, user *model.User, teamID, userID int64) error {
	if _, err := requireAdmin(user); err != nil {
		return err
	}
	return classify("add team member", s.store.AddTeamMember(ctx, teamID, userID))
}

func (s *Service) RemoveTeamMember(ctx context.Context, user *model.User, teamID, userID int64) error {
	if _, err := requireAdmin(user); err != nil {
		return err
	}
	return classify("remove team member", s.store.RemoveTeamMember(ctx, teamID, userID))
}

// SetTeamExcludeFromPublic flips a team's contractor flag. Members gain or
// lose public visibility on their next request.
func (s *Service) SetTeamExcludeFromPublic(ctx context.Context, user *model.User, teamID int64, v bool) error {
	if _, err := requireAdmin(user); err != nil {
		return err
	}
	return classify("set team flag", s.store.SetTeamExcludeFromPublic(ctx, teamID, v))
}
