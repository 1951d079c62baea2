package server

import (
	"embed"
	"errors"
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/kordite/voicerelay/internal/models"
	"github.com/kordite/voicerelay/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type indexPage struct {
	UID       string
	Connected bool
	Chats     []models.Chat
	JustSetup bool
}

// indexHandler renders the settings page. With a uid query it shows the
// link state and chat roster for that device; without one it shows setup
// instructions.
func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	page := indexPage{
		UID:       r.URL.Query().Get("uid"),
		JustSetup: r.URL.Query().Get("connected") == "1",
	}

	if page.UID != "" {
		user, err := s.cfg.Users.Get(r.Context(), page.UID)
		switch {
		case err == nil && user.IsAuthenticated():
			page.Connected = true
			page.Chats = user.AvailableChats
		case err != nil && !errors.Is(err, store.ErrUserNotFound):
			log.Error().Err(err).Str("uid", page.UID).Msg("Failed to load user for settings page")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplates.ExecuteTemplate(w, "index.html", page); err != nil {
		log.Error().Err(err).Msg("Failed to render settings page")
	}
}
