// Package auth gates the dashboard and discussion-room pages behind a signed-in
// user. Identity comes from an opaque session token carried in a cookie or a
// bearer header.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

const CookieName = "coachroom_session"

var ErrInvalidToken = errors.New("invalid session token")

type User struct {
	ID string `json:"id"`
}

// Authenticator resolves a session token to a user.
type Authenticator interface {
	Verify(ctx context.Context, token string) (User, error)
}

// TokenAuthenticator accepts a fixed token-to-user table.
type TokenAuthenticator struct {
	tokens map[string]string
}

func NewTokenAuthenticator(tokens map[string]string) *TokenAuthenticator {
	cp := make(map[string]string, len(tokens))
	for tok, user := range tokens {
		cp[tok] = user
	}
	return &TokenAuthenticator{tokens: cp}
}

func (a *TokenAuthenticator) Verify(_ context.Context, token string) (User, error) {
	id, ok := a.tokens[strings.TrimSpace(token)]
	if !ok || token == "" {
		return User{}, ErrInvalidToken
	}
	return User{ID: id}, nil
}

type ctxKey struct{}

func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

func UserFrom(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(ctxKey{}).(User)
	return u, ok && u.ID != ""
}

// SessionToken reads the session cookie, falling back to a bearer header.
func SessionToken(r *http.Request) (string, bool) {
	if c, err := r.Cookie(CookieName); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value), true
	}
	return ParseBearer(r)
}

func ParseBearer(r *http.Request) (string, bool) {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authz, prefix))
	return token, token != ""
}

// Gate authenticates requests under the protected path prefixes.
type Gate struct {
	Auth       Authenticator
	Prefixes   []string
	SignInPath string
}

func (g Gate) protects(path string) bool {
	for _, p := range g.Prefixes {
		p = strings.TrimSuffix(p, "/")
		if p == "" {
			continue
		}
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// Middleware lets unprotected paths through untouched. For protected paths a
// valid token puts the User in the request context; otherwise page requests
// are redirected to sign-in and API or websocket requests get a 401.
func (g Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.protects(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if token, ok := SessionToken(r); ok {
			if u, err := g.Auth.Verify(r.Context(), token); err == nil {
				next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
				return
			}
		}

		if wantsPage(r) {
			target := g.SignInPath + "?after=" + url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error": "sign in required",
			"code":  "unauthenticated",
		})
	})
}

func wantsPage(r *http.Request) bool {
	if websocket.IsWebSocketUpgrade(r) {
		return false
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	return !strings.Contains(r.URL.Path, "/api/")
}

// SafeRedirect keeps post-sign-in redirects on this site.
func SafeRedirect(after, fallback string) string {
	if after == "" || !strings.HasPrefix(after, "/") || strings.HasPrefix(after, "//") || strings.Contains(after, "\\") {
		return fallback
	}
	return after
}
