package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskboard/internal/access"
	"taskboard/internal/apperr"
	"taskboard/internal/model"
	"taskboard/internal/rollup"
)

// TaskDetail is a single task with its annotations and direct subtasks.
type TaskDetail struct {
	rollup.Task
	Subtasks    []model.Task      `json:"subtasks"`
	AccessLevel model.AccessLevel `json:"access_level"`
}

// GetTask returns a task the caller may see. Missing and forbidden tasks
// both yield ErrAccessDenied.
func (s *Service) GetTask(ctx context.Context, user *model.User, taskID int64) (TaskDetail, error) {
	u, err := caller(user)
	if err != nil {
		return TaskDetail{}, err
	}
	task, board, level, err := s.visibleTask(ctx, u, taskID)
	if err != nil {
		return TaskDetail{}, err
	}
	annotated, err := rollup.Annotate(ctx, s.store, u, []model.Task{task}, func(int64) []model.Option { return board.StatusOptions })
	if err != nil {
		return TaskDetail{}, err
	}
	subtasks := []model.Task{}
	if !task.IsSubtask() {
		if subtasks, err = s.store.Subtasks(ctx, []int64{task.ID}); err != nil {
			return TaskDetail{}, apperr.Internal("subtasks", err)
		}
	}
	return TaskDetail{Task: annotated[0], Subtasks: subtasks, AccessLevel: level}, nil
}

// NewTask is the input of CreateTask.
type NewTask struct {
	Title        string     `json:"title"`
	Status       string     `json:"status"`
	Section      *string    `json:"section,omitempty"`
	ParentTaskID *int64     `json:"parent_task_id,omitempty"`
	Assignees    []int64    `json:"assignees"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	Recurrence   string     `json:"recurrence,omitempty"`
}

// CreateTask adds a task to a board on which the caller has full access.
// Subtasks must hang off a top-level task of the same board.
func (s *Service) CreateTask(ctx context.Context, user *model.User, boardID int64, in NewTask) (model.Task, []Effect, error) {
	u, err := caller(user)
	if err != nil {
		return model.Task{}, nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return model.Task{}, nil, apperr.Invalid("title", "required")
	}
	board, level, err := s.boardLevel(ctx, u, boardID)
	if err != nil {
		return model.Task{}, nil, err
	}
	if level != model.AccessFull || board.Type == model.BoardRollup {
		return model.Task{}, nil, apperr.ErrAccessDenied
	}
	if in.ParentTaskID != nil {
		parent, err := s.store.GetTask(ctx, *in.ParentTaskID)
		if err != nil {
			return model.Task{}, nil, classify("load parent task", err)
		}
		if parent.BoardID != board.ID {
			return model.Task{}, nil, apperr.ErrAccessDenied
		}
		if parent.IsSubtask() {
			return model.Task{}, nil, apperr.Invalid("parent_task_id", "subtasks cannot have subtasks")
		}
	}
	if in.Status == "" {
		in.Status = firstStatus(board.StatusOptions)
	} else if !hasOption(board.StatusOptions, in.Status) {
		return model.Task{}, nil, apperr.Invalid("status", "unknown status %q", in.Status)
	}
	if in.Section != nil && !hasOption(board.SectionOptions, *in.Section) {
		return model.Task{}, nil, apperr.Invalid("section", "unknown section %q", *in.Section)
	}
	var due *time.Time
	if in.DueDate != nil {
		y, m, d := in.DueDate.Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		due = &day
	}
	t, err := s.store.CreateTask(ctx, model.Task{
		BoardID:      board.ID,
		Title:        in.Title,
		Status:       in.Status,
		Section:      in.Section,
		ParentTaskID: in.ParentTaskID,
		Assignees:    in.Assignees,
		DueDate:      due,
		Recurrence:   in.Recurrence,
	})
	if err != nil {
		return model.Task{}, nil, apperr.Internal("create task", err)
	}
	id := t.ID
	return t, []Effect{
		ActivityEntry{UserID: u.ID, BoardID: board.ID, TaskID: &id, Action: "task.created",
			Message: fmt.Sprintf("%s created task %q", u.DisplayName(), t.Title), At: s.now()},
		TaskChanged{Type: "task.created", BoardID: board.ID, TaskID: t.ID, Assignees: t.Assignees, Payload: t},
	}, nil
}

// SetTaskStatus changes a task's status. With completeSubtasks the direct
// subtasks are set to the same status in the same store write. Moving a
// recurring task into a complete status emits RecurringTaskCompleted.
func (s *Service) SetTaskStatus(ctx context.Context, user *model.User, taskID int64, status string, completeSubtasks bool) (model.Task, []Effect, error) {
	u, err := caller(user)
	if err != nil {
		return model.Task{}, nil, err
	}
	status = strings.TrimSpace(status)
	if status == "" {
		return model.Task{}, nil, apperr.Invalid("status", "required")
	}
	task, board, _, err := s.visibleTask(ctx, u, taskID)
	if err != nil {
		return model.Task{}, nil, err
	}
	if len(board.StatusOptions) > 0 && !hasOption(board.StatusOptions, status) {
		return model.Task{}, nil, apperr.Invalid("status", "unknown status %q", status)
	}
	withSubtasks := completeSubtasks && !task.IsSubtask()
	if err := s.store.SetTaskStatus(ctx, task.ID, status, withSubtasks); err != nil {
		return model.Task{}, nil, classify("set task status", err)
	}
	updated, err := s.store.GetTask(ctx, task.ID)
	if err != nil {
		return model.Task{}, nil, classify("reload task", err)
	}

	now := s.now()
	id := task.ID
	effects := []Effect{
		ActivityEntry{UserID: u.ID, BoardID: board.ID, TaskID: &id, Action: "task.status_changed",
			Message: fmt.Sprintf("%s moved %q from %s to %s", u.DisplayName(), task.Title, task.Status, status), At: now},
		TaskChanged{Type: "task.updated", BoardID: board.ID, TaskID: task.ID, Assignees: updated.Assignees, Payload: updated},
	}
	wasComplete := access.IsCompleteStatus(task.Status, board.StatusOptions)
	if updated.Recurrence != "" && !wasComplete && access.IsCompleteStatus(status, board.StatusOptions) {
		effects = append(effects, RecurringTaskCompleted{
			TaskID: task.ID, BoardID: board.ID, Status: status,
			Recurrence: updated.Recurrence, CompletedBy: u.ID, At: now,
		})
	}
	return updated, effects, nil
}

// ArchiveTask hides a task from listings. It needs full access on the
// task's board.
func (s *Service) ArchiveTask(ctx context.Context, user *model.User, taskID int64) ([]Effect, error) {
	u, err := caller(user)
	if err != nil {
		return nil, err
	}
	task, board, level, err := s.visibleTask(ctx, u, taskID)
	if err != nil {
		return nil, err
	}
	if level != model.AccessFull {
		return nil, apperr.ErrAccessDenied
	}
	if err := s.store.ArchiveTask(ctx, task.ID); err != nil {
		return nil, classify("archive task", err)
	}
	id := task.ID
	return []Effect{
		ActivityEntry{UserID: u.ID, BoardID: board.ID, TaskID: &id, Action: "task.archived",
			Message: fmt.Sprintf("%s archived %q", u.DisplayName(), task.Title), At: s.now()},
		TaskChanged{Type: "task.archived", BoardID: board.ID, TaskID: task.ID, Assignees: task.Assignees},
	}, nil
}

func firstStatus(opts []model.Option) string {
	merged := rollup.MergeOptions(opts)
	if len(merged) == 0 {
		return "todo"
	}
	return merged[0].ID
}

func hasOption(opts []model.Option, id string) bool {
	for _, o := range opts {
		if o.ID == id {
			return true
		}
	}
	return false
}
