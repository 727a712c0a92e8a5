package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

type Event struct {
	Type      string  `json:"type"`
	BoardID   int64   `json:"board_id"`
	TaskID    int64   `json:"task_id,omitempty"`
	Assignees []int64 `json:"-"`
	Payload   any     `json:"payload,omitempty"`
}

// visibleTo reports whether an assigned-only subscriber may see the event.
func (ev Event) visibleTo(userID int64) bool {
	for _, id := range ev.Assignees {
		if id == userID {
			return true
		}
	}
	return false
}

type subscriber struct {
	ch chan []byte
	// allow filters events before they are queued; nil passes everything.
	allow func(Event) bool
}

type EventBus struct {
	mu   sync.RWMutex
	subs map[int64]map[*subscriber]struct{}
}

func NewEventBus() *EventBus { return &EventBus{subs: make(map[int64]map[*subscriber]struct{})} }

func (b *EventBus) Subscribe(boardID int64, allow func(Event) bool) (ch <-chan []byte, cancel func()) {
	sub := &subscriber{ch: make(chan []byte, 16), allow: allow}
	b.mu.Lock()
	if b.subs[boardID] == nil {
		b.subs[boardID] = make(map[*subscriber]struct{})
	}
	b.subs[boardID][sub] = struct{}{}
	b.mu.Unlock()
	return sub.ch, func() {
		b.mu.Lock()
		if subs, ok := b.subs[boardID]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(b.subs, boardID)
			}
		}
		b.mu.Unlock()
		close(sub.ch)
	}
}

func (b *EventBus) Publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[ev.BoardID] {
		if sub.allow != nil && !sub.allow(ev) {
			continue
		}
		select {
		case sub.ch <- data:
		default: // drop if slow
		}
	}
}

var heartbeatInterval = 25 * time.Second

// ServeSSE streams a board's events. On every heartbeat stillAllowed is
// consulted and the stream ends once it reports false, so a revoked user
// stops receiving events within one interval.
func (b *EventBus) ServeSSE(w http.ResponseWriter, r *http.Request, boardID int64, allow func(Event) bool, stillAllowed func() bool) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	ch, cancel := b.Subscribe(boardID, allow)
	defer cancel()

	// Initial comment to open the stream
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if !stillAllowed() {
				_, _ = w.Write([]byte("event: revoked\ndata: {}\n\n"))
				flusher.Flush()
				return
			}
			// heartbeat comment to keep connection alive through proxies
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(msg)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
