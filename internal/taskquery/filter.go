// Package taskquery parses and evaluates the filter and sort options of
// task listings.
package taskquery

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"taskboard/internal/access"
	"taskboard/internal/apperr"
	"taskboard/internal/model"
)

// NoSection is the section filter value matching tasks without a section.
const NoSection = "__none__"

type Op string

const (
	OpIs    Op = "is"
	OpIsNot Op = "is_not"
)

func (o Op) valid() bool { return o == OpIs || o == OpIsNot }

// Condition matches a string attribute against a set of values.
type Condition struct {
	Op     Op       `json:"op"`
	Values []string `json:"values"`
}

func (c *Condition) match(v string) bool {
	hit := false
	for _, want := range c.Values {
		if want == v {
			hit = true
			break
		}
	}
	if c.Op == OpIsNot {
		return !hit
	}
	return hit
}

// AssigneeCondition matches tasks by assignee. "is" passes tasks assigned
// to any listed user; "is_not" passes tasks assigned to none of them.
type AssigneeCondition struct {
	Op      Op      `json:"op"`
	UserIDs []int64 `json:"user_ids"`
}

func (c *AssigneeCondition) match(t model.Task) bool {
	hit := false
	for _, id := range c.UserIDs {
		if t.AssignedTo(id) {
			hit = true
			break
		}
	}
	if c.Op == OpIsNot {
		return !hit
	}
	return hit
}

// Filter is a conjunction of optional predicates. The zero value matches
// every task.
type Filter struct {
	Status   *Condition         `json:"status,omitempty"`
	Section  *Condition         `json:"section,omitempty"`
	Assignee *AssigneeCondition `json:"assignee,omitempty"`
	// Overdue keeps tasks due before today that are not complete.
	Overdue bool `json:"overdue,omitempty"`
}

func (f Filter) Validate() error {
	if c := f.Status; c != nil {
		if !c.Op.valid() {
			return apperr.Invalid("status_op", "unknown operator %q", c.Op)
		}
		if len(c.Values) == 0 {
			return apperr.Invalid("status", "at least one value required")
		}
	}
	if c := f.Section; c != nil {
		if !c.Op.valid() {
			return apperr.Invalid("section_op", "unknown operator %q", c.Op)
		}
		if len(c.Values) == 0 {
			return apperr.Invalid("section", "at least one value required")
		}
	}
	if c := f.Assignee; c != nil {
		if !c.Op.valid() {
			return apperr.Invalid("assignee_op", "unknown operator %q", c.Op)
		}
		if len(c.UserIDs) == 0 {
			return apperr.Invalid("assignee", "at least one user id required")
		}
	}
	return nil
}

// Match evaluates the filter against a task. statusOptions must be the
// vocabulary of the task's own board; today is a civil date at UTC
// midnight (see Today).
func (f Filter) Match(t model.Task, statusOptions []model.Option, today time.Time) bool {
	if f.Status != nil && !f.Status.match(t.Status) {
		return false
	}
	if f.Section != nil {
		section := NoSection
		if t.Section != nil && *t.Section != "" {
			section = *t.Section
		}
		if !f.Section.match(section) {
			return false
		}
	}
	if f.Assignee != nil && !f.Assignee.match(t) {
		return false
	}
	if f.Overdue && !IsOverdue(t, statusOptions, today) {
		return false
	}
	return true
}

// IsOverdue reports whether t is due strictly before today and not in a
// complete status.
func IsOverdue(t model.Task, statusOptions []model.Option, today time.Time) bool {
	if t.DueDate == nil {
		return false
	}
	due := civilDate(*t.DueDate)
	return due.Before(today) && !access.IsCompleteStatus(t.Status, statusOptions)
}

// Today is the current civil date in loc, expressed as UTC midnight so it
// compares directly with stored due dates.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return civilDate(now.In(loc))
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseFilter reads a filter from query parameters:
//
//	status=todo,review  status_op=is|is_not
//	section=a,__none__  section_op=is|is_not
//	assignee=3,7        assignee_op=is|is_not
//	overdue=true
//
// Operators default to "is". Repeated parameters are merged.
func ParseFilter(q url.Values) (Filter, error) {
	var f Filter
	if vals := splitList(q["status"]); len(vals) > 0 {
		f.Status = &Condition{Op: opOf(q, "status_op"), Values: vals}
	}
	if vals := splitList(q["section"]); len(vals) > 0 {
		f.Section = &Condition{Op: opOf(q, "section_op"), Values: vals}
	}
	if vals := splitList(q["assignee"]); len(vals) > 0 {
		ids := make([]int64, 0, len(vals))
		for _, v := range vals {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return Filter{}, apperr.Invalid("assignee", "bad user id %q", v)
			}
			ids = append(ids, id)
		}
		f.Assignee = &AssigneeCondition{Op: opOf(q, "assignee_op"), UserIDs: ids}
	}
	if v := q.Get("overdue"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Filter{}, apperr.Invalid("overdue", "expected boolean, got %q", v)
		}
		f.Overdue = b
	}
	if err := f.Validate(); err != nil {
		return Filter{}, err
	}
	return f, nil
}

func opOf(q url.Values, key string) Op {
	if v := strings.TrimSpace(q.Get(key)); v != "" {
		return Op(v)
	}
	return OpIs
}

func splitList(raw []string) []string {
	var out []string
	for _, r := range raw {
		for _, p := range strings.Split(r, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
