package taskquery

import (
	"sort"
	"strings"

	"taskboard/internal/apperr"
	"taskboard/internal/model"
)

type SortField string

const (
	SortPosition  SortField = "position"
	SortTitle     SortField = "title"
	SortDueDate   SortField = "due_date"
	SortCreatedAt SortField = "created_at"
	SortUpdatedAt SortField = "updated_at"
)

// Sort orders a task listing. The zero value sorts by position ascending.
type Sort struct {
	Field SortField `json:"field"`
	Desc  bool      `json:"desc"`
}

// ParseSort accepts "field" or "field:asc|desc". Empty input yields the
// default order.
func ParseSort(s string) (Sort, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Sort{Field: SortPosition}, nil
	}
	field, dir, _ := strings.Cut(s, ":")
	out := Sort{Field: SortField(strings.TrimSpace(field))}
	switch strings.ToLower(strings.TrimSpace(dir)) {
	case "", "asc":
	case "desc":
		out.Desc = true
	default:
		return Sort{}, apperr.Invalid("sort", "unknown direction %q", dir)
	}
	if err := out.Validate(); err != nil {
		return Sort{}, err
	}
	return out, nil
}

func (s Sort) Validate() error {
	switch s.Field {
	case "", SortPosition, SortTitle, SortDueDate, SortCreatedAt, SortUpdatedAt:
		return nil
	}
	return apperr.Invalid("sort", "unknown field %q", s.Field)
}

// Apply sorts tasks in place. Ties fall back to board, position and id so
// the order is deterministic. Tasks without a due date sort last in both
// directions.
func (s Sort) Apply(tasks []model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if c := s.compare(a, b); c != 0 {
			if s.Desc && !(s.Field == SortDueDate && (a.DueDate == nil || b.DueDate == nil)) {
				return c > 0
			}
			return c < 0
		}
		return tiebreak(a, b)
	})
}

func (s Sort) compare(a, b model.Task) int {
	switch s.Field {
	case SortTitle:
		return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	case SortDueDate:
		switch {
		case a.DueDate == nil && b.DueDate == nil:
			return 0
		case a.DueDate == nil:
			return 1
		case b.DueDate == nil:
			return -1
		}
		return a.DueDate.Compare(*b.DueDate)
	case SortCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	case SortUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	default:
		return cmpInt(a.Position, b.Position)
	}
}

func tiebreak(a, b model.Task) bool {
	if a.BoardID != b.BoardID {
		return a.BoardID < b.BoardID
	}
	if a.Position != b.Position {
		return a.Position < b.Position
	}
	return a.ID < b.ID
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
