package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/kordite/voicerelay/internal/models"
	"github.com/kordite/voicerelay/internal/store"
)

func (s *Server) authedUser(w http.ResponseWriter, r *http.Request, uid string) (*models.User, bool) {
	if uid == "" {
		writeError(w, http.StatusBadRequest, "Missing uid parameter")
		return nil, false
	}

	user, err := s.cfg.Users.Get(r.Context(), uid)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			writeError(w, http.StatusUnauthorized, "Account not linked")
			return nil, false
		}
		log.Error().Err(err).Str("uid", uid).Msg("Failed to load user")
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	if !user.IsAuthenticated() {
		writeError(w, http.StatusUnauthorized, "Account not linked")
		return nil, false
	}
	return user, true
}

type chatSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func (s *Server) listChatsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authedUser(w, r, r.URL.Query().Get("uid"))
	if !ok {
		return
	}

	chats := make([]chatSummary, 0, len(user.AvailableChats))
	for _, chat := range user.AvailableChats {
		chats = append(chats, chatSummary{ID: chat.ID, Name: chat.BestName(), Type: chat.Type})
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

func (s *Server) refreshChatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	user, ok := s.authedUser(w, r, r.URL.Query().Get("uid"))
	if !ok {
		return
	}

	chats, err := s.cfg.Sink.ListChats(r.Context(), user)
	if err != nil {
		log.Error().Err(err).Str("uid", user.UID).Msg("Failed to refresh chat roster")
		writeError(w, http.StatusBadGateway, "Failed to fetch chats")
		return
	}
	chats = s.cfg.Sink.EnrichChats(r.Context(), user, chats)

	user.AvailableChats = chats
	if err := s.cfg.Users.Save(r.Context(), user); err != nil {
		log.Error().Err(err).Str("uid", user.UID).Msg("Failed to save refreshed roster")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "chats": len(chats)})
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	uid := r.URL.Query().Get("uid")
	if uid == "" {
		writeError(w, http.StatusBadRequest, "Missing uid parameter")
		return
	}

	if err := s.cfg.Users.Delete(r.Context(), uid); err != nil && !errors.Is(err, store.ErrUserNotFound) {
		log.Error().Err(err).Str("uid", uid).Msg("Failed to delete user")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type sendMessageRequest struct {
	UID    string `json:"uid"`
	ChatID string `json:"chatId"`
	Text   string `json:"text"`
}

func (s *Server) sendMessageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if strings.TrimSpace(req.Text) == "" || req.ChatID == "" {
		writeError(w, http.StatusBadRequest, "chatId and text are required")
		return
	}

	user, ok := s.authedUser(w, r, req.UID)
	if !ok {
		return
	}

	if err := s.cfg.Sink.PostMessage(r.Context(), user, req.ChatID, req.Text); err != nil {
		log.Error().Err(err).Str("uid", user.UID).Str("chat_id", req.ChatID).Msg("Failed to post message")
		writeError(w, http.StatusBadGateway, "Failed to send message")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
