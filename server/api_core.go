package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskboard/internal/apperr"
	"taskboard/internal/model"
	"taskboard/internal/service"
)

// appStore is everything the HTTP layer needs from a store: the service
// contract plus auth, user administration and the effect sinks.
type appStore interface {
	service.Store
	effectSink

	CreateUser(ctx context.Context, email, passwordHash, name string) (model.User, error)
	UserCredsByEmail(ctx context.Context, email string) (model.User, string, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	SetUserRole(ctx context.Context, id int64, role model.Role) error
	SetUserDeactivated(ctx context.Context, id int64, v bool) error
	UpdateUserName(ctx context.Context, id int64, name string) error

	CreateSession(ctx context.Context, userID int64, ttl time.Duration) (string, time.Time, error)
	UserBySession(ctx context.Context, token string) (model.User, error)
	DeleteSession(ctx context.Context, token string) error

	Ping(ctx context.Context) error
}

type api struct {
	store   appStore
	svc     *service.Service
	cfg     Config
	log     *slog.Logger
	bus     *EventBus
	effects *dispatcher
	// rate limiting buckets per IP:key
	rlMu sync.Mutex
	rl   map[string]*rateBucket
}

func newAPI(store appStore, svc *service.Service, cfg Config, log *slog.Logger) *api {
	bus := NewEventBus()
	return &api{
		store:   store,
		svc:     svc,
		cfg:     cfg,
		log:     log,
		bus:     bus,
		effects: newDispatcher(store, bus, log),
		rl:      map[string]*rateBucket{},
	}
}

type rateBucket struct {
	count   int
	resetAt time.Time
}

func (a *api) allow(ip, key string, max int, window time.Duration) bool {
	now := time.Now()
	rk := ip + ":" + key
	a.rlMu.Lock()
	defer a.rlMu.Unlock()
	b, ok := a.rl[rk]
	if !ok || now.After(b.resetAt) {
		b = &rateBucket{resetAt: now.Add(window)}
		a.rl[rk] = b
	}
	if b.count >= max {
		return false
	}
	b.count++
	return true
}

func (a *api) withRateLimit(name string, max int, window time.Duration, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.allow(r.RemoteAddr, name, max, window) {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next(w, r)
	}
}

func parseID(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }

// pathID reads a numeric path value, answering 400 when it is malformed.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := parseID(r.PathValue(name))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "bad "+name)
		return 0, false
	}
	return id, true
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, r.Body)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, service.Result[any]{Error: msg})
}

// statusFor maps an engine error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrAccessDenied), errors.Is(err, apperr.ErrNotFound):
		return http.StatusForbidden
	case apperr.IsValidation(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respond writes data or err as a service.Result. Internal errors are
// logged with the request id; the client only sees a generic message.
func respond[T any](a *api, w http.ResponseWriter, r *http.Request, status int, data T, err error) {
	if err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			a.reqLog(r).Error("request failed", "err", err)
		}
		writeJSON(w, code, service.Wrap(data, err))
		return
	}
	writeJSON(w, status, service.Wrap(data, nil))
}

// cookie/session helpers
func (a *api) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cfg.Session.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.cfg.Session.Secure,
		SameSite: a.cfg.SameSite(),
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
	})
}

func (a *api) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cfg.Session.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   a.cfg.Session.Secure,
		SameSite: a.cfg.SameSite(),
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

// currentUser resolves the session cookie. Deactivated users are treated
// as anonymous.
func (a *api) currentUser(r *http.Request) (*model.User, error) {
	c, err := r.Cookie(a.cfg.Session.CookieName)
	if err != nil || c.Value == "" {
		return nil, apperr.ErrNotAuthenticated
	}
	u, err := a.store.UserBySession(r.Context(), c.Value)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.ErrNotAuthenticated
		}
		return nil, err
	}
	if u.Deactivated {
		return nil, apperr.ErrNotAuthenticated
	}
	return &u, nil
}

type userHandler func(w http.ResponseWriter, r *http.Request, u *model.User)

// requireAuth wraps a handler and enforces a valid session
func (a *api) requireAuth(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := a.currentUser(r)
		if err != nil {
			if !errors.Is(err, apperr.ErrNotAuthenticated) {
				a.reqLog(r).Error("session lookup", "err", err)
			}
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		next(w, r, u)
	}
}

func (a *api) requireAdmin(next userHandler) http.HandlerFunc {
	return a.requireAuth(func(w http.ResponseWriter, r *http.Request, u *model.User) {
		if !u.IsAdmin() {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		next(w, r, u)
	})
}

type ctxKey int

const requestIDKey ctxKey = iota

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (a *api) reqLog(r *http.Request) *slog.Logger {
	return a.log.With("req_id", requestID(r.Context()))
}

func withLogging(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, id))

		sw := &statusWriter{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(sw, r)
		log.Info("http", "req_id", id, "method", r.Method, "path", r.URL.Path, "status", sw.status, "dur_ms", time.Since(start).Milliseconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) { w.status = code; w.ResponseWriter.WriteHeader(code) }

// Implement http.Flusher if underlying writer supports it (needed for SSE)
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
