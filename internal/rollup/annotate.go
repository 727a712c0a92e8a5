package rollup

import (
	"context"

	"taskboard/internal/access"
	"taskboard/internal/apperr"
	"taskboard/internal/model"
)

// AnnotationStore supplies the per-task counts shown in listings.
type AnnotationStore interface {
	Subtasks(ctx context.Context, parentIDs []int64) ([]model.Task, error)
	CommentStats(ctx context.Context, userID int64, taskIDs []int64) (map[int64]model.CommentStats, error)
	AttachmentCounts(ctx context.Context, taskIDs []int64) (map[int64]int, error)
	UserSummaries(ctx context.Context, ids []int64) (map[int64]model.UserSummary, error)
}

// Task is a listed task with its derived metadata.
type Task struct {
	model.Task
	AssigneeUsers         []model.UserSummary `json:"assignee_users"`
	CommentCount          int                 `json:"comment_count"`
	AttachmentCount       int                 `json:"attachment_count"`
	HasUnreadComments     bool                `json:"has_unread_comments"`
	SubtaskCount          int                 `json:"subtask_count"`
	CompletedSubtaskCount int                 `json:"completed_subtask_count"`
}

// Annotate decorates tasks for user. statusOptions returns the vocabulary
// of a task's owning board; subtask completion is judged against it.
func Annotate(ctx context.Context, store AnnotationStore, user model.User, tasks []model.Task, statusOptions func(boardID int64) []model.Option) ([]Task, error) {
	out := make([]Task, 0, len(tasks))
	if len(tasks) == 0 {
		return out, nil
	}
	ids := make([]int64, 0, len(tasks))
	var assignees []int64
	seen := map[int64]bool{}
	parentBoard := make(map[int64]int64, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
		parentBoard[t.ID] = t.BoardID
		for _, uid := range t.Assignees {
			if !seen[uid] {
				seen[uid] = true
				assignees = append(assignees, uid)
			}
		}
	}

	users := map[int64]model.UserSummary{}
	if len(assignees) > 0 {
		var err error
		if users, err = store.UserSummaries(ctx, assignees); err != nil {
			return nil, apperr.Internal("assignees", err)
		}
	}
	comments, err := store.CommentStats(ctx, user.ID, ids)
	if err != nil {
		return nil, apperr.Internal("comment stats", err)
	}
	attachments, err := store.AttachmentCounts(ctx, ids)
	if err != nil {
		return nil, apperr.Internal("attachment counts", err)
	}
	subtasks, err := store.Subtasks(ctx, ids)
	if err != nil {
		return nil, apperr.Internal("subtasks", err)
	}
	type counts struct{ total, done int }
	subs := map[int64]counts{}
	for _, st := range subtasks {
		if st.ParentTaskID == nil {
			continue
		}
		pid := *st.ParentTaskID
		c := subs[pid]
		c.total++
		if access.IsCompleteStatus(st.Status, statusOptions(parentBoard[pid])) {
			c.done++
		}
		subs[pid] = c
	}

	for _, t := range tasks {
		at := Task{Task: t, AssigneeUsers: []model.UserSummary{}}
		for _, uid := range t.Assignees {
			if u, ok := users[uid]; ok {
				at.AssigneeUsers = append(at.AssigneeUsers, u)
			}
		}
		cs := comments[t.ID]
		at.CommentCount = cs.Count
		at.HasUnreadComments = hasUnread(cs)
		at.AttachmentCount = attachments[t.ID]
		at.SubtaskCount = subs[t.ID].total
		at.CompletedSubtaskCount = subs[t.ID].done
		out = append(out, at)
	}
	return out, nil
}

// hasUnread is true when the newest comment is later than the viewer's
// last visit, or when comments exist and the task was never viewed.
func hasUnread(cs model.CommentStats) bool {
	if cs.Count == 0 || cs.LatestAt == nil {
		return false
	}
	if cs.LastViewed == nil {
		return true
	}
	return cs.LatestAt.After(*cs.LastViewed)
}
