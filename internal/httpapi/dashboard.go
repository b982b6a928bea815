package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/coachroom/internal/auth"
	"github.com/antoniostano/coachroom/internal/discussion"
	"github.com/antoniostano/coachroom/internal/reliability"
	"github.com/antoniostano/coachroom/internal/rooms"
)

type createRoomResponse struct {
	RoomID   string `json:"room_id"`
	Location string `json:"location"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{
		"user":             user,
		"coaching_options": s.catalog.Options,
		"experts":          s.catalog.Experts,
	})
}

// handleCreateRoom submits the user's creation dialog for one coaching option.
// A second submit while the first is still in flight gets 409 and never reaches
// the store.
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	var req rooms.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	option := strings.TrimSpace(req.CoachingOption)
	if _, ok := s.catalog.Option(option); !ok {
		respondError(w, http.StatusBadRequest, "invalid_request", "unknown coaching option")
		return
	}

	d := s.dialogs.Open(user.ID, option)
	roomID, err := d.SubmitWith(r.Context(), req.Topic, req.ExpertName)
	if err != nil {
		if errors.Is(err, rooms.ErrRemoteService) {
			s.metrics.RoomStoreErrors.WithLabelValues("create", reliability.Classify(err).Code).Inc()
			s.logger.Warn("room creation failed", "user", user.ID, "error", err)
		}
		respondClassified(w, err)
		return
	}
	s.dialogs.Close(user.ID, option)
	s.metrics.RoomsCreated.Inc()

	location := "/discussion-room/" + roomID
	w.Header().Set("Location", location)
	respondJSON(w, http.StatusCreated, createRoomResponse{RoomID: roomID, Location: location})
}

// handleGetRoom answers 202 while the room is not resolvable yet, so the page
// keeps showing its loading state.
func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	page, err := discussion.New(discussion.Config{
		RoomID:  strings.TrimSpace(chi.URLParam(r, "id")),
		Rooms:   s.rooms,
		Catalog: s.catalog,
		Logger:  s.logger,
	})
	if err != nil {
		respondClassified(w, err)
		return
	}
	view, err := page.Load(r.Context())
	if err != nil {
		s.metrics.RoomStoreErrors.WithLabelValues("get", reliability.Classify(err).Code).Inc()
		respondClassified(w, err)
		return
	}
	view.ActivePages = len(s.sessions.ActiveForRoom(view.RoomID))
	status := http.StatusOK
	if view.Loading {
		status = http.StatusAccepted
	}
	respondJSON(w, status, view)
}
