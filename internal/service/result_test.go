package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"taskboard/internal/apperr"
)

func TestWrap(t *testing.T) {
	ok := Wrap([]int{1, 2}, nil)
	assert.True(t, ok.Success)
	assert.Equal(t, []int{1, 2}, ok.Data)
	assert.Empty(t, ok.Error)

	denied := Wrap(0, apperr.ErrAccessDenied)
	assert.False(t, denied.Success)
	assert.Equal(t, "access denied", denied.Error)

	internal := Wrap("", apperr.Internal("load board", errors.New("connection reset")))
	assert.Equal(t, "internal error", internal.Error)

	invalid := Wrap("", apperr.Invalid("title", "required"))
	assert.Equal(t, "invalid title: required", invalid.Error)
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify("op", nil))
	assert.ErrorIs(t, classify("op", apperr.ErrNotFound), apperr.ErrAccessDenied)
	assert.True(t, apperr.IsValidation(classify("op", apperr.Invalid("x", "bad"))))

	raw := errors.New("boom")
	err := classify("op", raw)
	assert.True(t, apperr.IsInternal(err))
	assert.ErrorIs(t, err, raw)
}
