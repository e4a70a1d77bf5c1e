// Package middleware provides HTTP middleware for the gateway
package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/splito-labs/settlement_gateway/internal/apperr"
	"github.com/splito-labs/settlement_gateway/internal/cache"
	"github.com/splito-labs/settlement_gateway/internal/httputil"
	"github.com/splito-labs/settlement_gateway/internal/splito"
	"github.com/splito-labs/settlement_gateway/pkg/logger"
)

type contextKey string

const userKey contextKey = "user"

// UserResolver looks up the user owning the session carried in ctx.
type UserResolver interface {
	Me(ctx context.Context) (splito.User, error)
}

// SessionAuth authenticates requests by forwarding the caller's backend
// session. The session comes from the session cookie or a Bearer header and
// is placed on the request context for every backend call made downstream.
type SessionAuth struct {
	resolver   UserResolver
	cookieName string
	cache      cache.Cache
	ttl        time.Duration
	log        *logger.Logger
	skipPaths  map[string]bool
}

// NewSessionAuth creates the session middleware. Resolved users are cached
// for ttl under a hash of the session; a nil cache or zero ttl disables it.
func NewSessionAuth(resolver UserResolver, cookieName string, c cache.Cache, ttl time.Duration, log *logger.Logger, skipPaths ...string) *SessionAuth {
	if log == nil {
		log = logger.NewDefault("session")
	}
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return &SessionAuth{
		resolver:   resolver,
		cookieName: cookieName,
		cache:      c,
		ttl:        ttl,
		log:        log,
		skipPaths:  skip,
	}
}

// Handler returns the middleware handler
func (m *SessionAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		session := m.sessionToken(r)
		if session == "" {
			httputil.WriteError(w, apperr.New(apperr.CodeUnauthenticated, "missing session"))
			return
		}

		ctx := splito.WithSession(r.Context(), session)
		user, err := m.resolve(ctx, session)
		if err != nil {
			if !apperr.Is(err, apperr.CodeUnauthenticated) {
				m.log.WithError(err).WithField("path", r.URL.Path).Warn("session lookup failed")
			}
			httputil.WriteError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(ctx, user)))
	})
}

func (m *SessionAuth) sessionToken(r *http.Request) string {
	if m.cookieName != "" {
		for _, name := range []string{m.cookieName, "__Secure-" + m.cookieName} {
			if c, err := r.Cookie(name); err == nil && strings.TrimSpace(c.Value) != "" {
				return c.Value
			}
		}
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func (m *SessionAuth) resolve(ctx context.Context, session string) (splito.User, error) {
	if m.cache == nil || m.ttl <= 0 {
		return m.resolver.Me(ctx)
	}
	sum := sha256.Sum256([]byte(session))
	key := cache.Key("sessions", hex.EncodeToString(sum[:]))
	return cache.Remember(ctx, m.cache, key, m.ttl, m.resolver.Me)
}

// WithUser stores the authenticated user in ctx.
func WithUser(ctx context.Context, user splito.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// GetUser returns the authenticated user, if any.
func GetUser(ctx context.Context) (splito.User, bool) {
	user, ok := ctx.Value(userKey).(splito.User)
	return user, ok
}

// GetUserID returns the authenticated user id or "".
func GetUserID(ctx context.Context) string {
	user, _ := GetUser(ctx)
	return user.ID
}

// RequireUserID returns the authenticated user id or an unauthenticated error.
func RequireUserID(ctx context.Context) (string, error) {
	if id := GetUserID(ctx); id != "" {
		return id, nil
	}
	return "", apperr.New(apperr.CodeUnauthenticated, "authentication required")
}
