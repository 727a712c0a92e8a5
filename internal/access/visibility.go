package access

import (
	"strings"

	"golang.org/x/text/cases"

	"taskboard/internal/model"
)

// FilterTasks keeps the tasks of one board that level lets user see.
// Archived tasks and subtasks never pass; subtasks are fetched by parent.
// AccessNone yields nothing, though callers are expected to reject it
// before getting here.
func FilterTasks(user model.User, level model.AccessLevel, tasks []model.Task) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Archived || t.IsSubtask() {
			continue
		}
		if CanViewTask(user, level, t) {
			out = append(out, t)
		}
	}
	return out
}

// CanViewTask is the single-task form of FilterTasks without the
// top-level restriction, for direct task and subtask reads.
func CanViewTask(user model.User, level model.AccessLevel, t model.Task) bool {
	switch level {
	case model.AccessFull:
		return true
	case model.AccessAssignedOnly:
		return t.AssignedTo(user.ID)
	default:
		return false
	}
}

// IsCompleteStatus reports whether statusID counts as complete in the
// given vocabulary: the id is "complete" or "done", or the option's label
// contains either word ignoring case. Every completion check goes
// through here.
func IsCompleteStatus(statusID string, options []model.Option) bool {
	if statusID == "complete" || statusID == "done" {
		return true
	}
	for _, o := range options {
		if o.ID != statusID {
			continue
		}
		label := cases.Fold().String(o.Label)
		return strings.Contains(label, "complete") || strings.Contains(label, "done")
	}
	return false
}
