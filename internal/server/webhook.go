package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/kordite/voicerelay/internal/httpmw"
	"github.com/kordite/voicerelay/internal/relay"
	"github.com/kordite/voicerelay/internal/store"
)

// webhookPayload accepts both shapes the capture device sends: a bare JSON
// array of segments, or an object wrapping them.
type webhookPayload struct {
	Segments  []relay.Segment `json:"segments"`
	SessionID string          `json:"session_id"`
}

func decodeSegments(body []byte) ([]relay.Segment, string, error) {
	var segments []relay.Segment
	if err := json.Unmarshal(body, &segments); err == nil {
		return segments, "", nil
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, "", err
	}
	return payload.Segments, payload.SessionID, nil
}

func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		// setup probe from the device app
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	uid := r.URL.Query().Get("uid")
	if uid == "" {
		writeError(w, http.StatusBadRequest, "Missing uid parameter")
		return
	}

	user, err := s.cfg.Users.Get(r.Context(), uid)
	if err != nil || !user.IsAuthenticated() {
		if err != nil && !errors.Is(err, store.ErrUserNotFound) {
			log.Error().Err(err).Str("uid", uid).Msg("Failed to load user")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "setup_required"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	segments, bodySessionID, err := decodeSegments(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = bodySessionID
	}
	if sessionID == "" {
		// devices without session support share one session per owner
		sessionID = "omi_session_" + uid
	}

	status, err := s.cfg.Accumulator.Process(r.Context(), sessionID, uid, segments)
	if err != nil {
		log.Error().Err(err).
			Str("session_id", sessionID).
			Str("client_ip", httpmw.ClientIPFromContext(r.Context())).
			Msg("Failed to process segment batch")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if relay.IsResolved(status) {
		// resolved outcomes surface as a device notification
		writeJSON(w, http.StatusOK, map[string]string{"message": status})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) setupCompletedHandler(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("uid")
	if uid == "" {
		writeJSON(w, http.StatusOK, map[string]bool{"is_setup_completed": false})
		return
	}

	user, err := s.cfg.Users.Get(r.Context(), uid)
	completed := err == nil && user.IsAuthenticated()
	writeJSON(w, http.StatusOK, map[string]bool{"is_setup_completed": completed})
}
