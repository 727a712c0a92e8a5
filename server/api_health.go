package main

import (
	"context"
	"net/http"
	"time"
)

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.store.Ping(ctx); err != nil {
		a.reqLog(r).Warn("health ping", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "store": a.cfg.Store})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "store": a.cfg.Store, "ts": time.Now().UTC().Format(time.RFC3339)})
}
