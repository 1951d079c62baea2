// Package server wires the webhook, settings pages, and JSON API into a
// single HTTP handler.
package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"filippo.io/csrf"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/kordite/voicerelay/internal/httpmw"
	"github.com/kordite/voicerelay/internal/logger"
	"github.com/kordite/voicerelay/internal/login"
	"github.com/kordite/voicerelay/internal/relay"
	"github.com/kordite/voicerelay/internal/store"
)

// Config carries the assembled dependencies for the HTTP surface.
type Config struct {
	Sessions    store.SessionStore
	Users       store.UserStore
	Accumulator *relay.Accumulator
	Login       *login.RingCentral
	Sink        relay.ActionSink

	// CORSOrigins lists the origins allowed to call the JSON API from a
	// browser. Empty means same-origin only.
	CORSOrigins []string
}

// Server handles the inbound webhook and the account-linking UI.
type Server struct {
	cfg Config
}

// New creates a server from the assembled dependencies.
func New(cfg Config) *Server {
	return &Server{cfg: cfg}
}

// Handler builds the full route table. Webhook and API routes get CORS,
// HTML routes get CSRF protection.
func (s *Server) Handler(log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	clientIP := httpmw.ClientIP()

	mux.Handle("/webhook", clientIP(http.HandlerFunc(s.webhookHandler)))
	mux.HandleFunc("/setup-completed", s.setupCompletedHandler)

	mux.HandleFunc("/auth", s.cfg.Login.LoginHandler)
	mux.HandleFunc("/oauth/callback", s.cfg.Login.CallbackHandler)

	mux.HandleFunc("/refresh-chats", s.refreshChatsHandler)
	mux.HandleFunc("/logout", s.logoutHandler)

	mux.HandleFunc("/api/chats", s.listChatsHandler)
	mux.HandleFunc("/api/send-message", s.sendMessageHandler)

	mux.HandleFunc("/", s.indexHandler)

	// CSRF protection for HTML pages (not applied to webhook or API routes)
	protection := csrf.New()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAPIRoute(r.URL.Path) {
			withCORS(s.cfg.CORSOrigins, mux).ServeHTTP(w, r)
		} else {
			protection.Handler(mux).ServeHTTP(w, r)
		}
	})

	return logger.Requests(log)(handler)
}

// isAPIRoute returns true if the path is a machine endpoint that needs CORS
// instead of CSRF.
func isAPIRoute(path string) bool {
	return path == "/webhook" ||
		path == "/setup-completed" ||
		path == "/health" ||
		strings.HasPrefix(path, "/api/")
}

// withCORS adds CORS support for browser callers of the JSON API.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return middleware.Handler(h)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
