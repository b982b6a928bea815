package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/coachroom/internal/auth"
	"github.com/antoniostano/coachroom/internal/catalog"
	"github.com/antoniostano/coachroom/internal/config"
	"github.com/antoniostano/coachroom/internal/dialog"
	"github.com/antoniostano/coachroom/internal/observability"
	"github.com/antoniostano/coachroom/internal/reliability"
	"github.com/antoniostano/coachroom/internal/rooms"
	"github.com/antoniostano/coachroom/internal/session"
)

// Deps are the collaborators the HTTP layer is wired to.
type Deps struct {
	Rooms     rooms.Store
	StoreMode string
	Catalog   *catalog.Catalog
	Sessions  *session.Manager
	Metrics   *observability.Metrics
	Auth      auth.Authenticator
	Logger    *slog.Logger
}

type Server struct {
	cfg      config.Config
	rooms    rooms.Store
	mode     string
	catalog  *catalog.Catalog
	sessions *session.Manager
	metrics  *observability.Metrics
	gate     auth.Gate
	dialogs  *dialog.Registry
	logger   *slog.Logger
	upgrader websocket.Upgrader
	static   http.Handler

	mu    sync.Mutex
	pages map[string]*livePage
}

func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	authn := deps.Auth
	if authn == nil {
		authn = auth.NewTokenAuthenticator(cfg.AuthTokens)
	}
	return &Server{
		cfg:      cfg,
		rooms:    deps.Rooms,
		mode:     deps.StoreMode,
		catalog:  deps.Catalog,
		sessions: deps.Sessions,
		metrics:  deps.Metrics,
		gate: auth.Gate{
			Auth:       authn,
			Prefixes:   cfg.ProtectedPrefixes,
			SignInPath: cfg.SignInPath,
		},
		dialogs: dialog.NewRegistry(deps.Rooms, deps.Catalog),
		logger:  logger,
		static:  newStaticHandler(),
		pages:   make(map[string]*livePage),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin pages may drive a user's microphone.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID, recoverer(s.logger), accessLog(s.logger), s.gate.Middleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusTemporaryRedirect)
	})
	r.Handle("/static/*", http.StripPrefix("/static/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get(s.cfg.SignInPath, s.handleSignInPage)
	r.Post(s.cfg.SignInPath, s.handleSignIn)
	r.Get("/handler/sign-out", s.handleSignOut)
	r.Post("/handler/sign-out", s.handleSignOut)

	r.Get("/dashboard", s.servePage("dashboard.html"))
	r.Get("/dashboard/api/catalog", s.handleCatalog)
	r.Post("/dashboard/api/rooms", s.handleCreateRoom)
	r.Get("/dashboard/api/rooms/{id}", s.handleGetRoom)

	r.Get("/discussion-room/{id}", s.servePage("room.html"))
	r.Get("/discussion-room/{id}/ws", s.handleRoomWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"room_store_mode": s.mode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.rooms == nil || s.catalog == nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "room store or catalog not configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"room_store_mode": s.mode,
		"active_pages":    s.sessions.ActiveCount(),
		"experts":         len(s.catalog.Experts),
	})
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code, Retryable: reliability.RetryableStatus(status)})
}

func respondClassified(w http.ResponseWriter, err error) {
	c := reliability.Classify(err)
	respondJSON(w, c.Status, errorResponse{Error: err.Error(), Code: c.Code, Retryable: c.Retryable})
}
