package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func testGate() Gate {
	return Gate{
		Auth:       NewTokenAuthenticator(map[string]string{"tok-1": "alice"}),
		Prefixes:   []string{"/dashboard", "/discussion-room"},
		SignInPath: "/handler/sign-in",
	}
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFrom(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_, _ = w.Write([]byte(u.ID))
	})
}

func TestUnauthenticatedPageRedirectsToSignIn(t *testing.T) {
	h := testGate().Middleware(echoUser())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard?tab=1", nil))

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/handler/sign-in?after=%2Fdashboard%3Ftab%3D1", rec.Header().Get("Location"))
}

func TestUnauthenticatedAPIGets401(t *testing.T) {
	h := testGate().Middleware(echoUser())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/dashboard/api/rooms", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.JSONEq(t, `{"error":"sign in required","code":"unauthenticated"}`, rec.Body.String())
}

func TestWebsocketUpgradeGets401(t *testing.T) {
	h := testGate().Middleware(echoUser())
	req := httptest.NewRequest(http.MethodGet, "/discussion-room/r1/ws", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCookieAndBearerAuthenticate(t *testing.T) {
	h := testGate().Middleware(echoUser())

	req := httptest.NewRequest(http.MethodGet, "/discussion-room/r1", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "tok-1"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "alice", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/dashboard/api/catalog", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "alice", rec.Body.String())
}

func TestInvalidTokenIsRejected(t *testing.T) {
	h := testGate().Middleware(echoUser())
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "forged"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestUnprotectedPathsPassThrough(t *testing.T) {
	h := testGate().Middleware(echoUser())
	for _, path := range []string{"/healthz", "/handler/sign-in", "/dashboards-public"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusTeapot, rec.Code, path)
	}
}

func TestTokenAuthenticator(t *testing.T) {
	a := NewTokenAuthenticator(map[string]string{"t": "bob"})
	u, err := a.Verify(context.Background(), "t")
	require.NoError(t, err)
	require.Equal(t, "bob", u.ID)

	_, err = a.Verify(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestSafeRedirect(t *testing.T) {
	require.Equal(t, "/discussion-room/r1", SafeRedirect("/discussion-room/r1", "/dashboard"))
	require.Equal(t, "/dashboard", SafeRedirect("https://evil.example", "/dashboard"))
	require.Equal(t, "/dashboard", SafeRedirect("//evil.example", "/dashboard"))
	require.Equal(t, "/dashboard", SafeRedirect("", "/dashboard"))
}
