// Package rollup assembles the task view of a rollup board from its source
// boards.
//
// A rollup fetch either reflects full enumeration rights over every source
// board or fails. If any source resolves to no access the whole call
// returns apperr.ErrAccessDenied; sources are never dropped silently.
// Reads are issued one after another with no snapshot, so a concurrent
// ACL change may be seen by some sub-queries and not others.
package rollup

import (
	"context"
	"fmt"
	"time"

	"taskboard/internal/access"
	"taskboard/internal/apperr"
	"taskboard/internal/model"
	"taskboard/internal/taskquery"
)

// Store is the read surface of the aggregator.
type Store interface {
	AnnotationStore
	GetBoard(ctx context.Context, id int64) (model.Board, error)
	RollupSourceBoards(ctx context.Context, rollupID int64) ([]model.Board, error)
	// TasksByBoards returns the non-archived top-level tasks of the boards.
	TasksByBoards(ctx context.Context, boardIDs []int64) ([]model.Task, error)
}

// View is the merged result of a rollup or board listing.
type View struct {
	Tasks          []Task         `json:"tasks"`
	StatusOptions  []model.Option `json:"status_options"`
	SectionOptions []model.Option `json:"section_options"`
}

type Aggregator struct {
	store    Store
	resolver *access.Resolver
	now      func() time.Time
	loc      *time.Location
}

type Option func(*Aggregator)

// WithClock sets the time source used for overdue evaluation.
func WithClock(now func() time.Time) Option { return func(a *Aggregator) { a.now = now } }

// WithLocation sets the organization timezone that defines "today".
func WithLocation(loc *time.Location) Option { return func(a *Aggregator) { a.loc = loc } }

func New(store Store, resolver *access.Resolver, opts ...Option) *Aggregator {
	a := &Aggregator{store: store, resolver: resolver, now: time.Now, loc: time.UTC}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Today is the organization's current civil date.
func (a *Aggregator) Today() time.Time { return taskquery.Today(a.now(), a.loc) }

// Tasks returns the visible, filtered and annotated tasks of a rollup
// together with the merged status and section vocabularies.
func (a *Aggregator) Tasks(ctx context.Context, user model.User, rollupID int64, filter taskquery.Filter, order taskquery.Sort) (View, error) {
	if err := filter.Validate(); err != nil {
		return View{}, err
	}
	if err := order.Validate(); err != nil {
		return View{}, err
	}
	rollup, err := a.store.GetBoard(ctx, rollupID)
	if err != nil {
		return View{}, storeErr("load rollup", err)
	}
	if rollup.Type != model.BoardRollup {
		return View{}, apperr.ErrAccessDenied
	}
	m, err := a.resolver.Membership(ctx, user)
	if err != nil {
		return View{}, apperr.Internal("membership", err)
	}
	ok, err := a.resolver.CanSeeRollupWith(ctx, user, m, rollup)
	if err != nil {
		return View{}, apperr.Internal("rollup visibility", err)
	}
	if !ok {
		return View{}, apperr.ErrAccessDenied
	}

	sources, err := a.store.RollupSourceBoards(ctx, rollup.ID)
	if err != nil {
		return View{}, apperr.Internal("rollup sources", err)
	}
	boards := make(map[int64]model.Board, len(sources))
	levels := make(map[int64]model.AccessLevel, len(sources))
	ids := make([]int64, 0, len(sources))
	statusSets := make([][]model.Option, 0, len(sources))
	sectionSets := make([][]model.Option, 0, len(sources))
	for _, src := range sources {
		level, err := a.resolver.BoardAccessWith(ctx, user, m, src)
		if err != nil {
			return View{}, apperr.Internal("source access", err)
		}
		if level == model.AccessNone {
			return View{}, fmt.Errorf("source board %d: %w", src.ID, apperr.ErrAccessDenied)
		}
		if _, dup := boards[src.ID]; dup {
			continue
		}
		boards[src.ID] = src
		levels[src.ID] = level
		ids = append(ids, src.ID)
		statusSets = append(statusSets, src.StatusOptions)
		sectionSets = append(sectionSets, src.SectionOptions)
	}

	view := View{
		Tasks:          []Task{},
		StatusOptions:  MergeOptions(statusSets...),
		SectionOptions: MergeOptions(sectionSets...),
	}
	if len(ids) == 0 {
		return view, nil
	}

	all, err := a.store.TasksByBoards(ctx, ids)
	if err != nil {
		return View{}, apperr.Internal("rollup tasks", err)
	}
	today := a.Today()
	visible := make([]model.Task, 0, len(all))
	for _, t := range all {
		board, ok := boards[t.BoardID]
		if !ok || t.Archived || t.IsSubtask() {
			continue
		}
		if !filter.Match(t, board.StatusOptions, today) {
			continue
		}
		if !access.CanViewTask(user, levels[t.BoardID], t) {
			continue
		}
		visible = append(visible, t)
	}
	order.Apply(visible)

	view.Tasks, err = Annotate(ctx, a.store, user, visible, func(boardID int64) []model.Option {
		return boards[boardID].StatusOptions
	})
	if err != nil {
		return View{}, err
	}
	return view, nil
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if denied := apperr.DenyMissing(err); denied != err {
		return denied
	}
	return apperr.Internal(op, err)
}
