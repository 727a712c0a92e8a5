package taskquery

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/apperr"
	"taskboard/internal/model"
)

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestFilterMatch(t *testing.T) {
	opts := []model.Option{{ID: "todo", Label: "To Do"}, {ID: "shipped", Label: "Shipped (done)"}}
	today := *day(2024, 3, 10)
	design := "design"
	tasks := map[string]model.Task{
		"todo-design": {ID: 1, Status: "todo", Section: &design, Assignees: []int64{1}, DueDate: day(2024, 3, 9)},
		"todo-none":   {ID: 2, Status: "todo", Assignees: []int64{2}, DueDate: day(2024, 3, 10)},
		"shipped":     {ID: 3, Status: "shipped", DueDate: day(2024, 1, 1)},
	}
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"zero matches all", Filter{}, []string{"todo-design", "todo-none", "shipped"}},
		{"status is", Filter{Status: &Condition{Op: OpIs, Values: []string{"shipped"}}}, []string{"shipped"}},
		{"status is not", Filter{Status: &Condition{Op: OpIsNot, Values: []string{"shipped"}}}, []string{"todo-design", "todo-none"}},
		{"no section", Filter{Section: &Condition{Op: OpIs, Values: []string{NoSection}}}, []string{"todo-none", "shipped"}},
		{"section is", Filter{Section: &Condition{Op: OpIs, Values: []string{"design"}}}, []string{"todo-design"}},
		{"assignee is", Filter{Assignee: &AssigneeCondition{Op: OpIs, UserIDs: []int64{2, 9}}}, []string{"todo-none"}},
		{"assignee is not", Filter{Assignee: &AssigneeCondition{Op: OpIsNot, UserIDs: []int64{1}}}, []string{"todo-none", "shipped"}},
		{"overdue skips complete and due today", Filter{Overdue: true}, []string{"todo-design"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, name := range []string{"todo-design", "todo-none", "shipped"} {
				if tt.filter.Match(tasks[name], opts, today) {
					got = append(got, name)
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToday(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	now := time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, *day(2024, 3, 10), Today(now, time.UTC))
	assert.Equal(t, *day(2024, 3, 11), Today(now, tokyo))
	assert.Equal(t, *day(2024, 3, 10), Today(now, nil))
}

func TestParseFilter(t *testing.T) {
	q := url.Values{
		"status":      {"todo,review", "done"},
		"section_op":  {"is_not"},
		"section":     {NoSection},
		"assignee":    {"3, 7"},
		"assignee_op": {"is"},
		"overdue":     {"true"},
	}
	f, err := ParseFilter(q)
	require.NoError(t, err)
	require.NotNil(t, f.Status)
	assert.Equal(t, OpIs, f.Status.Op)
	assert.Equal(t, []string{"todo", "review", "done"}, f.Status.Values)
	require.NotNil(t, f.Section)
	assert.Equal(t, OpIsNot, f.Section.Op)
	require.NotNil(t, f.Assignee)
	assert.Equal(t, []int64{3, 7}, f.Assignee.UserIDs)
	assert.True(t, f.Overdue)

	empty, err := ParseFilter(url.Values{})
	require.NoError(t, err)
	assert.Equal(t, Filter{}, empty)
}

func TestParseFilterErrors(t *testing.T) {
	for name, q := range map[string]url.Values{
		"bad op":       {"status": {"todo"}, "status_op": {"maybe"}},
		"bad assignee": {"assignee": {"bob"}},
		"bad overdue":  {"overdue": {"soon"}},
	} {
		_, err := ParseFilter(q)
		assert.True(t, apperr.IsValidation(err), name)
	}
}

func TestFilterValidate(t *testing.T) {
	assert.NoError(t, Filter{}.Validate())
	assert.Error(t, Filter{Status: &Condition{Op: OpIs}}.Validate())
	assert.Error(t, Filter{Assignee: &AssigneeCondition{Op: "nope", UserIDs: []int64{1}}}.Validate())
}
