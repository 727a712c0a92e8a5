package rollup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"taskboard/internal/model"
)

func TestMergeOptions(t *testing.T) {
	b1 := []model.Option{
		{ID: "todo", Label: "To Do", Position: 0},
		{ID: "done", Label: "Done", Position: 1},
	}
	b2 := []model.Option{
		{ID: "done", Label: "Complete", Position: 0},
		{ID: "review", Label: "Review", Position: 1},
	}

	got := MergeOptions(b1, b2)
	assert.Equal(t, []model.Option{
		{ID: "todo", Label: "To Do", Position: 0},
		{ID: "done", Label: "Done", Position: 1},
		{ID: "review", Label: "Review", Position: 1},
	}, got)
}

func TestMergeOptionsOrdersByPosition(t *testing.T) {
	got := MergeOptions(
		[]model.Option{{ID: "late", Position: 9}},
		[]model.Option{{ID: "early", Position: 1}, {ID: "late", Label: "ignored", Position: 0}},
	)
	assert.Equal(t, []string{"early", "late"}, []string{got[0].ID, got[1].ID})
	assert.Empty(t, got[1].Label)
}

func TestMergeOptionsEmpty(t *testing.T) {
	got := MergeOptions()
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Empty(t, MergeOptions(nil, nil))
}
