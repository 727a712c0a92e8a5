package rollup_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/access"
	"taskboard/internal/apperr"
	"taskboard/internal/memstore"
	"taskboard/internal/model"
	"taskboard/internal/rollup"
	"taskboard/internal/taskquery"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type env struct {
	store      *memstore.Store
	agg        *rollup.Aggregator
	contractor model.User
	owner      model.User
	b1, b2     model.Board
	rollup     model.Board
	b2Entry    model.BoardAccess
}

func ptr[T any](v T) *T { return &v }

// newEnv builds a rollup over B1 and B2. The contractor holds full on B1
// and assigned_only on B2, where one of three tasks is theirs.
func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	s := memstore.New()
	s.SetClock(func() time.Time { return now })
	e := &env{store: s}

	e.owner = s.AddUser(model.User{Email: "owner@example.com", Name: "Owner"})
	e.contractor = s.AddUser(model.User{Email: "c@example.com", Name: "Casey"})
	vendors := s.AddTeam(model.Team{Name: "vendors", ExcludeFromPublic: true})
	require.NoError(t, s.AddTeamMember(ctx, vendors.ID, e.contractor.ID))

	e.b1 = s.AddBoard(model.Board{Title: "B1", StatusOptions: []model.Option{
		{ID: "todo", Label: "To Do", Position: 0},
		{ID: "done", Label: "Done", Position: 1},
	}})
	e.b2 = s.AddBoard(model.Board{Title: "B2", StatusOptions: []model.Option{
		{ID: "done", Label: "Complete", Position: 0},
		{ID: "review", Label: "Review", Position: 1},
	}})
	for i := 0; i < 3; i++ {
		s.AddTask(model.Task{BoardID: e.b1.ID, Title: "b1 task", Status: "todo"})
	}
	s.AddTask(model.Task{BoardID: e.b2.ID, Title: "mine", Status: "review", Assignees: []int64{e.contractor.ID}})
	s.AddTask(model.Task{BoardID: e.b2.ID, Title: "theirs", Status: "review", Assignees: []int64{e.owner.ID}})
	s.AddTask(model.Task{BoardID: e.b2.ID, Title: "nobody", Status: "review"})

	_, err := s.GrantBoardAccess(ctx, model.BoardAccess{BoardID: e.b1.ID, UserID: ptr(e.contractor.ID), Level: model.AccessFull})
	require.NoError(t, err)
	e.b2Entry, err = s.GrantBoardAccess(ctx, model.BoardAccess{BoardID: e.b2.ID, UserID: ptr(e.contractor.ID), Level: model.AccessAssignedOnly})
	require.NoError(t, err)

	e.rollup, err = s.CreateRollup(ctx, "Portfolio", e.owner.ID)
	require.NoError(t, err)
	require.NoError(t, s.SetRollupSources(ctx, e.rollup.ID, []int64{e.b1.ID, e.b2.ID}))

	e.agg = rollup.New(s, access.NewResolver(s), rollup.WithClock(func() time.Time { return now }))
	return e
}

func boardCounts(tasks []rollup.Task) map[int64]int {
	out := map[int64]int{}
	for _, t := range tasks {
		out[t.BoardID]++
	}
	return out
}

func TestTasksPerSourceVisibility(t *testing.T) {
	e := newEnv(t)

	view, err := e.agg.Tasks(context.Background(), e.contractor, e.rollup.ID, taskquery.Filter{}, taskquery.Sort{})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{e.b1.ID: 3, e.b2.ID: 1}, boardCounts(view.Tasks))
	for _, task := range view.Tasks {
		if task.BoardID == e.b2.ID {
			assert.Equal(t, "mine", task.Title)
		}
	}

	ids := []string{}
	for _, o := range view.StatusOptions {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"todo", "done", "review"}, ids)
	assert.Equal(t, "Done", view.StatusOptions[1].Label)
}

func TestTasksOwnerSeesEverything(t *testing.T) {
	e := newEnv(t)

	view, err := e.agg.Tasks(context.Background(), e.owner, e.rollup.ID, taskquery.Filter{}, taskquery.Sort{})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{e.b1.ID: 3, e.b2.ID: 3}, boardCounts(view.Tasks))
}

func TestTasksRevokedSourceFailsWholeCall(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.agg.Tasks(ctx, e.contractor, e.rollup.ID, taskquery.Filter{}, taskquery.Sort{})
	require.NoError(t, err)

	require.NoError(t, e.store.RevokeBoardAccess(ctx, e.b2Entry.ID))
	view, err := e.agg.Tasks(ctx, e.contractor, e.rollup.ID, taskquery.Filter{}, taskquery.Sort{})
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)
	assert.Empty(t, view.Tasks)
}

func TestTasksDeniedTargets(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	stranger := e.store.AddUser(model.User{Email: "s@example.com"})
	admin := e.store.AddUser(model.User{Email: "a@example.com", Role: model.RoleAdmin})

	for name, tc := range map[string]struct {
		user model.User
		id   int64
	}{
		"not invited":    {stranger, e.rollup.ID},
		"admin":          {admin, e.rollup.ID},
		"standard board": {e.owner, e.b1.ID},
		"missing rollup": {e.owner, 9999},
	} {
		_, err := e.agg.Tasks(ctx, tc.user, tc.id, taskquery.Filter{}, taskquery.Sort{})
		assert.ErrorIs(t, err, apperr.ErrAccessDenied, name)
	}
}

func TestTasksFilterAndSort(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	view, err := e.agg.Tasks(ctx, e.owner, e.rollup.ID,
		taskquery.Filter{Status: &taskquery.Condition{Op: taskquery.OpIs, Values: []string{"review"}}},
		taskquery.Sort{Field: taskquery.SortTitle})
	require.NoError(t, err)
	titles := []string{}
	for _, task := range view.Tasks {
		titles = append(titles, task.Title)
	}
	assert.Equal(t, []string{"mine", "nobody", "theirs"}, titles)

	_, err = e.agg.Tasks(ctx, e.owner, e.rollup.ID, taskquery.Filter{Status: &taskquery.Condition{Op: "maybe", Values: []string{"x"}}}, taskquery.Sort{})
	assert.True(t, apperr.IsValidation(err))
}

func TestTasksEmptyRollup(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	empty, err := e.store.CreateRollup(ctx, "Empty", e.owner.ID)
	require.NoError(t, err)

	view, err := e.agg.Tasks(ctx, e.owner, empty.ID, taskquery.Filter{}, taskquery.Sort{})
	require.NoError(t, err)
	assert.NotNil(t, view.Tasks)
	assert.Empty(t, view.Tasks)
}

func TestTasksAnnotations(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s := e.store
	parent := s.AddTask(model.Task{BoardID: e.b2.ID, Title: "parent", Status: "review", Assignees: []int64{e.contractor.ID}})
	s.AddTask(model.Task{BoardID: e.b2.ID, Title: "sub done", Status: "done", ParentTaskID: &parent.ID})
	s.AddTask(model.Task{BoardID: e.b2.ID, Title: "sub open", Status: "review", ParentTaskID: &parent.ID})
	s.AddAttachments(parent.ID, 2)
	s.AddCommentAt(parent.ID, e.owner.ID, "first", now.Add(-2*time.Hour))
	require.NoError(t, s.MarkTaskViewed(ctx, parent.ID, e.contractor.ID, now.Add(-time.Hour)))
	s.AddCommentAt(parent.ID, e.owner.ID, "second", now.Add(-30*time.Minute))

	view, err := e.agg.Tasks(ctx, e.contractor, e.rollup.ID, taskquery.Filter{}, taskquery.Sort{})
	require.NoError(t, err)

	var got *rollup.Task
	for i := range view.Tasks {
		if view.Tasks[i].ID == parent.ID {
			got = &view.Tasks[i]
		}
	}
	require.NotNil(t, got, "parent task should be listed, subtasks should not")
	assert.Equal(t, map[int64]int{e.b1.ID: 3, e.b2.ID: 2}, boardCounts(view.Tasks))
	assert.Equal(t, 2, got.SubtaskCount)
	assert.Equal(t, 1, got.CompletedSubtaskCount)
	assert.Equal(t, 2, got.AttachmentCount)
	assert.Equal(t, 2, got.CommentCount)
	assert.True(t, got.HasUnreadComments)
	require.Len(t, got.AssigneeUsers, 1)
	assert.Equal(t, "Casey", got.AssigneeUsers[0].Name)

	require.NoError(t, s.MarkTaskViewed(ctx, parent.ID, e.contractor.ID, now))
	view, err = e.agg.Tasks(ctx, e.contractor, e.rollup.ID, taskquery.Filter{}, taskquery.Sort{})
	require.NoError(t, err)
	for _, task := range view.Tasks {
		if task.ID == parent.ID {
			assert.False(t, task.HasUnreadComments)
		}
	}
}

func TestTasksOverdueUsesBoardVocabulary(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	yesterday := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	late := e.store.AddTask(model.Task{BoardID: e.b1.ID, Title: "late", Status: "todo", DueDate: &yesterday})
	e.store.AddTask(model.Task{BoardID: e.b2.ID, Title: "late but complete", Status: "done", DueDate: &yesterday})

	view, err := e.agg.Tasks(ctx, e.owner, e.rollup.ID, taskquery.Filter{Overdue: true}, taskquery.Sort{})
	require.NoError(t, err)
	require.Len(t, view.Tasks, 1)
	assert.Equal(t, late.ID, view.Tasks[0].ID)
}
