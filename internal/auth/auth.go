// Package auth resolves the acting user of a request. Every mutation in the
// billing services takes that id explicitly.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/diewo77/maritime-billing/httpx"
)

type ctxKey string

const (
	SessionCookieName = "session"
	// ActorHeader carries the user id when requests come through a trusted gateway.
	ActorHeader = "X-Actor-ID"

	actorCtxKey = ctxKey("actorID")
	sessionTTL  = 14 * 24 * time.Hour
)

// Sessions signs and verifies session cookies.
type Sessions struct {
	secret      []byte
	trustHeader bool
}

type Option func(*Sessions)

// TrustHeader accepts ActorHeader when no session cookie is present.
func TrustHeader(on bool) Option {
	return func(s *Sessions) { s.trustHeader = on }
}

func NewSessions(secret string, opts ...Option) *Sessions {
	s := &Sessions{secret: []byte(secret)}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Sessions) sign(uid string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(uid))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Token returns the signed cookie value for userID.
func (s *Sessions) Token(userID uint) string {
	uid := strconv.FormatUint(uint64(userID), 10)
	return uid + "." + s.sign(uid)
}

// CreateSession sets a signed cookie with the user id.
func (s *Sessions) CreateSession(w http.ResponseWriter, userID uint) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    s.Token(userID),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(sessionTTL),
	})
}

// ClearSession deletes the session cookie.
func ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: SessionCookieName, Value: "", Path: "/", Expires: time.Unix(0, 0), HttpOnly: true, SameSite: http.SameSiteLaxMode})
}

// DevLogin: POST /api/dev/session {"user_id": N}. Opens a session for any id;
// only mounted in dev mode.
func (s *Sessions) DevLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID uint `json:"user_id"`
	}
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.UserID == 0 {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"user_id": "required"})
		return
	}
	s.CreateSession(w, req.UserID)
	w.WriteHeader(http.StatusNoContent)
}

// Logout: DELETE /api/session
func Logout(w http.ResponseWriter, r *http.Request) {
	ClearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

// ParseSession validates the cookie and returns the user id.
func (s *Sessions) ParseSession(r *http.Request) (uint, bool) {
	c, err := r.Cookie(SessionCookieName)
	if err != nil || c.Value == "" {
		return 0, false
	}
	uidStr, sig, ok := strings.Cut(c.Value, ".")
	if !ok {
		return 0, false
	}
	if !hmac.Equal([]byte(sig), []byte(s.sign(uidStr))) {
		return 0, false
	}
	return parseID(uidStr)
}

func parseID(v string) (uint, bool) {
	id64, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	if err != nil || id64 == 0 {
		return 0, false
	}
	return uint(id64), true
}

// Actor returns the user id carried by r, cookie first.
func (s *Sessions) Actor(r *http.Request) (uint, bool) {
	if uid, ok := s.ParseSession(r); ok {
		return uid, true
	}
	if s.trustHeader {
		if v := r.Header.Get(ActorHeader); v != "" {
			return parseID(v)
		}
	}
	return 0, false
}

// WithActor stores the acting user id in ctx.
func WithActor(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, actorCtxKey, userID)
}

// ActorFromContext extracts the acting user id.
func ActorFromContext(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(actorCtxKey).(uint)
	return id, ok && id != 0
}

// Middleware attaches the actor to the request context if present.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if uid, ok := s.Actor(r); ok {
			r = r.WithContext(WithActor(r.Context(), uid))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireActor answers 401 JSON when no actor was resolved.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ActorFromContext(r.Context()); !ok {
			httpx.JSONError(w, http.StatusUnauthorized, "unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
