package httpapi

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/antoniostano/coachroom/internal/auth"
)

const afterSignIn = "/dashboard"

func (s *Server) handleSignInPage(w http.ResponseWriter, r *http.Request) {
	if token, ok := auth.SessionToken(r); ok {
		if _, err := s.gate.Auth.Verify(r.Context(), token); err == nil {
			http.Redirect(w, r, auth.SafeRedirect(r.URL.Query().Get("after"), afterSignIn), http.StatusSeeOther)
			return
		}
	}
	s.servePage("signin.html")(w, r)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	after := auth.SafeRedirect(r.PostForm.Get("after"), afterSignIn)
	token := strings.TrimSpace(r.PostForm.Get("token"))

	user, err := s.gate.Auth.Verify(r.Context(), token)
	if err != nil {
		s.logger.Info("sign-in rejected", "request_id", requestIDFrom(r.Context()))
		q := url.Values{"error": {"invalid"}, "after": {after}}
		http.Redirect(w, r, s.cfg.SignInPath+"?"+q.Encode(), http.StatusSeeOther)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	s.logger.Info("signed in", "user", user.ID)
	http.Redirect(w, r, after, http.StatusSeeOther)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.cfg.SignInPath, http.StatusSeeOther)
}
