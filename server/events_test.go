package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/memstore"
	"taskboard/internal/service"
)

func drain(ch <-chan []byte) []Event {
	var out []Event
	for {
		select {
		case msg := <-ch:
			var ev Event
			if json.Unmarshal(msg, &ev) == nil {
				out = append(out, ev)
			}
		default:
			return out
		}
	}
}

func TestEventBusFiltersAssignedOnly(t *testing.T) {
	bus := NewEventBus()
	all, cancelAll := bus.Subscribe(1, nil)
	defer cancelAll()
	mine, cancelMine := bus.Subscribe(1, func(ev Event) bool { return ev.visibleTo(7) })
	defer cancelMine()
	other, cancelOther := bus.Subscribe(2, nil)
	defer cancelOther()

	bus.Publish(Event{Type: "task.updated", BoardID: 1, TaskID: 10, Assignees: []int64{7}})
	bus.Publish(Event{Type: "task.updated", BoardID: 1, TaskID: 11, Assignees: []int64{8}})
	bus.Publish(Event{Type: "task.updated", BoardID: 1, TaskID: 12})

	assert.Len(t, drain(all), 3)
	got := drain(mine)
	require.Len(t, got, 1)
	assert.Equal(t, int64(10), got[0].TaskID)
	assert.Empty(t, drain(other))
}

func TestEventOmitsAssignees(t *testing.T) {
	raw, err := json.Marshal(Event{Type: "task.created", BoardID: 1, TaskID: 2, Assignees: []int64{3}})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "assignees")
}

func TestEventBusCancelClosesChannel(t *testing.T) {
	bus := NewEventBus()
	ch, cancel := bus.Subscribe(1, nil)
	cancel()
	_, open := <-ch
	assert.False(t, open)

	// publishing to a board with no subscribers is a no-op
	bus.Publish(Event{Type: "x", BoardID: 1})
}

func TestServeSSEEndsWhenAccessIsRevoked(t *testing.T) {
	prev := heartbeatInterval
	heartbeatInterval = 10 * time.Millisecond
	t.Cleanup(func() { heartbeatInterval = prev })

	bus := NewEventBus()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/boards/1/events", nil)

	checks := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		bus.ServeSSE(rec, req, 1, nil, func() bool {
			checks++
			return checks < 2
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after revocation")
	}
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, ": connected"))
	assert.Contains(t, body, ": ping")
	assert.Contains(t, body, "event: revoked")
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
}

func TestDispatcherDeliversEffects(t *testing.T) {
	store := memstore.New()
	bus := NewEventBus()
	d := newDispatcher(store, bus, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ch, cancel := bus.Subscribe(5, nil)
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	d.Dispatch(ctx, []service.Effect{
		service.ActivityEntry{BoardID: 5, Action: "task.status_changed"},
		service.RecurringTaskCompleted{TaskID: 9, BoardID: 5, Recurrence: "FREQ=DAILY"},
		service.TaskChanged{Type: "task.updated", BoardID: 5, TaskID: 9},
	})
	// delivery outlives the request context
	stop()
	d.Wait()

	entries, err := store.ActivityByBoard(context.Background(), 5, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	jobs := store.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "task.recurring_completed", jobs[0].Kind)
	assert.Len(t, jobs[0].ID, 36)

	got := drain(ch)
	require.Len(t, got, 1)
	assert.Equal(t, "task.updated", got[0].Type)

	d.Dispatch(context.Background(), nil)
	d.Wait()
}
