package httpapi

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var embeddedStatic embed.FS

func staticFS() fs.FS {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		return embeddedStatic
	}
	return sub
}

func newStaticHandler() http.Handler {
	return http.FileServer(http.FS(staticFS()))
}

// servePage serves one embedded HTML page. The pages read their ids from the
// URL and fetch state through the JSON API and the room websocket.
func (s *Server) servePage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFileFS(w, r, staticFS(), name)
	}
}
