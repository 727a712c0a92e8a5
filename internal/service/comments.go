package service

import (
	"context"
	"fmt"
	"strings"

	"taskboard/internal/apperr"
	"taskboard/internal/model"
)

const maxCommentLen = 10000

func (s *Service) ListComments(ctx context.Context, user *model.User, taskID int64) ([]model.Comment, error) {
	u, err := caller(user)
	if err != nil {
		return nil, err
	}
	task, _, _, err := s.visibleTask(ctx, u, taskID)
	if err != nil {
		return nil, err
	}
	comments, err := s.store.CommentsByTask(ctx, task.ID)
	if err != nil {
		return nil, apperr.Internal("comments", err)
	}
	return comments, nil
}

// AddComment posts a comment on a visible task. The author's own comment
// never counts as unread for them.
func (s *Service) AddComment(ctx context.Context, user *model.User, taskID int64, body string) (model.Comment, []Effect, error) {
	u, err := caller(user)
	if err != nil {
		return model.Comment{}, nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return model.Comment{}, nil, apperr.Invalid("body", "required")
	}
	if len(body) > maxCommentLen {
		return model.Comment{}, nil, apperr.Invalid("body", "longer than %d bytes", maxCommentLen)
	}
	task, board, _, err := s.visibleTask(ctx, u, taskID)
	if err != nil {
		return model.Comment{}, nil, err
	}
	c, err := s.store.AddComment(ctx, task.ID, u.ID, body)
	if err != nil {
		return model.Comment{}, nil, apperr.Internal("add comment", err)
	}
	if err := s.store.MarkTaskViewed(ctx, task.ID, u.ID, c.CreatedAt); err != nil {
		s.log.Warn("mark task viewed", "task_id", task.ID, "user_id", u.ID, "err", err)
	}
	id := task.ID
	return c, []Effect{
		ActivityEntry{UserID: u.ID, BoardID: board.ID, TaskID: &id, Action: "comment.created",
			Message: fmt.Sprintf("%s commented on %q", u.DisplayName(), task.Title), At: c.CreatedAt},
		TaskChanged{Type: "comment.created", BoardID: board.ID, TaskID: task.ID, Assignees: task.Assignees, Payload: c},
	}, nil
}

// MarkTaskViewed records that the caller has read the task's comments.
func (s *Service) MarkTaskViewed(ctx context.Context, user *model.User, taskID int64) error {
	u, err := caller(user)
	if err != nil {
		return err
	}
	task, _, _, err := s.visibleTask(ctx, u, taskID)
	if err != nil {
		return err
	}
	if err := s.store.MarkTaskViewed(ctx, task.ID, u.ID, s.now()); err != nil {
		return apperr.Internal("mark task viewed", err)
	}
	return nil
}
