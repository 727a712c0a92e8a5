// Package model holds the plain records shared by the access engine, the
// stores and the HTTP layer.
package model

import (
	"errors"
	"time"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

type User struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Role        Role   `json:"role"`
	Deactivated bool   `json:"deactivated,omitempty"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// UserSummary is the identity attached to tasks in listings.
type UserSummary struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Team is a group of users. ExcludeFromPublic marks its members as
// contractors, who only see boards they are explicitly granted.
type Team struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	ExcludeFromPublic bool   `json:"exclude_from_public"`
}

type BoardType string

const (
	BoardStandard BoardType = "standard"
	BoardRollup   BoardType = "rollup"
	BoardPersonal BoardType = "personal"
)

// Option is one entry of a board's status or section vocabulary.
type Option struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Color    string `json:"color,omitempty"`
	Position int    `json:"position"`
}

type Board struct {
	ID             int64     `json:"id"`
	Type           BoardType `json:"type"`
	Title          string    `json:"title"`
	ClientID       *int64    `json:"client_id,omitempty"`
	StatusOptions  []Option  `json:"status_options"`
	SectionOptions []Option  `json:"section_options"`
	CreatedBy      int64     `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
}

type AccessLevel string

const (
	// AccessNone means the user may not see the board at all.
	AccessNone         AccessLevel = ""
	AccessFull         AccessLevel = "full"
	AccessAssignedOnly AccessLevel = "assigned_only"
)

func (l AccessLevel) Valid() bool { return l == AccessFull || l == AccessAssignedOnly }

// BoardAccess is an ACL entry for a board. It governs contractor
// visibility only and names exactly one principal.
type BoardAccess struct {
	ID      int64       `json:"id"`
	BoardID int64       `json:"board_id"`
	UserID  *int64      `json:"user_id,omitempty"`
	TeamID  *int64      `json:"team_id,omitempty"`
	Level   AccessLevel `json:"access_level"`
}

var ErrInvalidPrincipal = errors.New("board access must reference exactly one of user or team")

func (a BoardAccess) Validate() error {
	if (a.UserID == nil) == (a.TeamID == nil) {
		return ErrInvalidPrincipal
	}
	if !a.Level.Valid() {
		return errors.New("invalid access level")
	}
	return nil
}

type Task struct {
	ID           int64      `json:"id"`
	BoardID      int64      `json:"board_id"`
	Title        string     `json:"title"`
	Status       string     `json:"status"`
	Section      *string    `json:"section,omitempty"`
	ParentTaskID *int64     `json:"parent_task_id,omitempty"`
	Assignees    []int64    `json:"assignees"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	Archived     bool       `json:"archived,omitempty"`
	Position     int64      `json:"position"`
	// Recurrence is a non-empty rule string on recurring tasks.
	Recurrence string    `json:"recurrence,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (t Task) IsSubtask() bool { return t.ParentTaskID != nil }

func (t Task) AssignedTo(userID int64) bool {
	for _, id := range t.Assignees {
		if id == userID {
			return true
		}
	}
	return false
}

type RollupSource struct {
	RollupBoardID int64 `json:"rollup_board_id"`
	SourceBoardID int64 `json:"source_board_id"`
}

type RollupOwner struct {
	RollupBoardID int64 `json:"rollup_board_id"`
	UserID        int64 `json:"user_id"`
	IsPrimary     bool  `json:"is_primary"`
}

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
)

type RollupInvitation struct {
	ID            int64            `json:"id"`
	RollupBoardID int64            `json:"rollup_board_id"`
	UserID        *int64           `json:"user_id,omitempty"`
	TeamID        *int64           `json:"team_id,omitempty"`
	AllUsers      bool             `json:"all_users,omitempty"`
	Status        InvitationStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Matches reports whether the invitation targets the user directly, one
// of the given teams, or everyone.
func (inv RollupInvitation) Matches(userID int64, teamIDs []int64) bool {
	if inv.AllUsers {
		return true
	}
	if inv.UserID != nil && *inv.UserID == userID {
		return true
	}
	if inv.TeamID != nil {
		for _, id := range teamIDs {
			if id == *inv.TeamID {
				return true
			}
		}
	}
	return false
}

type Comment struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	UserID    *int64    `json:"user_id,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// CommentStats summarises a task's comments for one viewer.
type CommentStats struct {
	Count      int
	LatestAt   *time.Time
	LastViewed *time.Time
}
