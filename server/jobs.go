package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskboard/internal/service"
)

// effectSink persists the durable effects: the activity log and the job
// outbox consumed by the background processor.
type effectSink interface {
	AppendActivity(ctx context.Context, e service.ActivityEntry) error
	EnqueueJob(ctx context.Context, id, kind string, payload []byte) error
}

const dispatchTimeout = 10 * time.Second

// dispatcher delivers mutation effects off the request path. Failures are
// logged and dropped; the mutation they came from stays committed.
type dispatcher struct {
	sink effectSink
	bus  *EventBus
	log  *slog.Logger
	wg   sync.WaitGroup
}

func newDispatcher(sink effectSink, bus *EventBus, log *slog.Logger) *dispatcher {
	return &dispatcher{sink: sink, bus: bus, log: log}
}

var _ service.Dispatcher = (*dispatcher)(nil)

func (d *dispatcher) Dispatch(ctx context.Context, effects []service.Effect) {
	if len(effects) == 0 {
		return
	}
	reqID := requestID(ctx)
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
		defer cancel()
		for _, e := range effects {
			if err := d.deliver(ctx, e); err != nil {
				d.log.Error("deliver effect", "req_id", reqID, "kind", e.Kind(), "err", err)
			}
		}
	}()
}

func (d *dispatcher) deliver(ctx context.Context, e service.Effect) error {
	switch e := e.(type) {
	case service.ActivityEntry:
		return d.sink.AppendActivity(ctx, e)
	case service.RecurringTaskCompleted:
		payload, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return d.sink.EnqueueJob(ctx, uuid.NewString(), e.Kind(), payload)
	case service.TaskChanged:
		d.bus.Publish(Event{Type: e.Type, BoardID: e.BoardID, TaskID: e.TaskID, Assignees: e.Assignees, Payload: e.Payload})
		return nil
	}
	d.log.Warn("unhandled effect", "kind", e.Kind())
	return nil
}

// Wait blocks until in-flight deliveries finish.
func (d *dispatcher) Wait() { d.wg.Wait() }
