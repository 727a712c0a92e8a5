// Package access decides which access level a user holds on boards and
// whether a user may see a rollup.
//
// Standard boards are public by default: everyone except contractors sees
// them in full. Contractors (members of a team flagged
// ExcludeFromPublic) need an explicit BoardAccess entry. Rollups are the
// opposite: they are private to their owners and accepted invitees, and
// the admin role does not bypass that.
//
// Nothing here is cached. Every call re-reads membership, ACL, ownership
// and invitation state, so revocations apply on the next call. A single
// call issues several independent reads without a transaction; a
// concurrent writer may be observed part-way.
package access

import (
	"context"
	"fmt"

	"taskboard/internal/model"
)

// Store is the read surface the resolver needs.
type Store interface {
	UserTeams(ctx context.Context, userID int64) ([]model.Team, error)
	// BoardAccessEntries returns the entries on boardID whose principal is
	// userID or one of teamIDs, in store order.
	BoardAccessEntries(ctx context.Context, boardID, userID int64, teamIDs []int64) ([]model.BoardAccess, error)
	RollupSourceBoards(ctx context.Context, rollupID int64) ([]model.Board, error)
	IsRollupOwner(ctx context.Context, rollupID, userID int64) (bool, error)
	RollupInvitations(ctx context.Context, rollupID int64) ([]model.RollupInvitation, error)
}

// Resolver is the single implementation of board and rollup access policy.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver { return &Resolver{store: store} }

// Membership is a user's team set as read at one point in time.
type Membership struct {
	TeamIDs    []int64
	Contractor bool
}

func (r *Resolver) Membership(ctx context.Context, user model.User) (Membership, error) {
	teams, err := r.store.UserTeams(ctx, user.ID)
	if err != nil {
		return Membership{}, fmt.Errorf("user teams: %w", err)
	}
	m := Membership{TeamIDs: make([]int64, 0, len(teams))}
	for _, t := range teams {
		m.TeamIDs = append(m.TeamIDs, t.ID)
		if t.ExcludeFromPublic {
			m.Contractor = true
		}
	}
	return m, nil
}

// BoardAccess resolves the user's level on board. AccessNone means no
// access. Rollup boards resolve to full when the rollup is visible.
func (r *Resolver) BoardAccess(ctx context.Context, user model.User, board model.Board) (model.AccessLevel, error) {
	if board.Type == model.BoardRollup {
		ok, err := r.CanSeeRollup(ctx, user, board)
		if err != nil || !ok {
			return model.AccessNone, err
		}
		return model.AccessFull, nil
	}
	if user.IsAdmin() {
		return model.AccessFull, nil
	}
	if board.Type == model.BoardPersonal {
		return personalAccess(user, board), nil
	}
	m, err := r.Membership(ctx, user)
	if err != nil {
		return model.AccessNone, err
	}
	return r.BoardAccessWith(ctx, user, m, board)
}

// BoardAccessWith is BoardAccess for a standard or personal board using
// an already-read membership. Rollup aggregation uses it so one request
// reads membership once for all of its sources.
func (r *Resolver) BoardAccessWith(ctx context.Context, user model.User, m Membership, board model.Board) (model.AccessLevel, error) {
	switch {
	case user.IsAdmin():
		return model.AccessFull, nil
	case board.Type == model.BoardPersonal:
		return personalAccess(user, board), nil
	case board.Type == model.BoardRollup:
		return model.AccessNone, nil
	case !m.Contractor:
		return model.AccessFull, nil
	}
	return r.explicitAccess(ctx, user, m, board.ID)
}

func personalAccess(user model.User, board model.Board) model.AccessLevel {
	if user.ID == board.CreatedBy {
		return model.AccessFull
	}
	return model.AccessNone
}

// explicitAccess looks up the contractor ACL. A direct user entry wins;
// otherwise the first team entry in store order is used. Conflicting team
// entries are not ranked by permissiveness.
func (r *Resolver) explicitAccess(ctx context.Context, user model.User, m Membership, boardID int64) (model.AccessLevel, error) {
	entries, err := r.store.BoardAccessEntries(ctx, boardID, user.ID, m.TeamIDs)
	if err != nil {
		return model.AccessNone, fmt.Errorf("board access entries: %w", err)
	}
	var team *model.BoardAccess
	for i := range entries {
		e := entries[i]
		if e.UserID != nil && *e.UserID == user.ID {
			return e.Level, nil
		}
		if team == nil && e.TeamID != nil && containsID(m.TeamIDs, *e.TeamID) {
			team = &entries[i]
		}
	}
	if team != nil {
		return team.Level, nil
	}
	return model.AccessNone, nil
}

// CanSeeRollup applies the two-track rollup policy. Contractors see a
// rollup only with explicit access to every source board. Everyone else,
// admins included, must own it or hold an accepted invitation.
func (r *Resolver) CanSeeRollup(ctx context.Context, user model.User, rollup model.Board) (bool, error) {
	if rollup.Type != model.BoardRollup {
		return false, nil
	}
	m, err := r.Membership(ctx, user)
	if err != nil {
		return false, err
	}
	return r.CanSeeRollupWith(ctx, user, m, rollup)
}

func (r *Resolver) CanSeeRollupWith(ctx context.Context, user model.User, m Membership, rollup model.Board) (bool, error) {
	if rollup.Type != model.BoardRollup {
		return false, nil
	}
	if m.Contractor {
		sources, err := r.store.RollupSourceBoards(ctx, rollup.ID)
		if err != nil {
			return false, fmt.Errorf("rollup sources: %w", err)
		}
		if len(sources) == 0 {
			return false, nil
		}
		for _, src := range sources {
			level, err := r.explicitAccess(ctx, user, m, src.ID)
			if err != nil {
				return false, err
			}
			if level == model.AccessNone {
				return false, nil
			}
		}
		return true, nil
	}

	owner, err := r.store.IsRollupOwner(ctx, rollup.ID, user.ID)
	if err != nil {
		return false, fmt.Errorf("rollup owner: %w", err)
	}
	if owner {
		return true, nil
	}
	invs, err := r.store.RollupInvitations(ctx, rollup.ID)
	if err != nil {
		return false, fmt.Errorf("rollup invitations: %w", err)
	}
	for _, inv := range invs {
		if inv.Status == model.InvitationAccepted && inv.Matches(user.ID, m.TeamIDs) {
			return true, nil
		}
	}
	return false, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
