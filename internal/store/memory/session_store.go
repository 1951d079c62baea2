package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kordite/voicerelay/internal/models"
	"github.com/kordite/voicerelay/internal/store"
)

// SessionStore implements store.SessionStore using in-memory storage.
// State is lost on restart; sessions rebuild lazily from inbound segments.
type SessionStore struct {
	mu sync.RWMutex

	sessions map[string]*models.VoiceSession // session_id -> VoiceSession

	// processingSince tracks when each session entered processing, for the
	// stuck-episode watchdog.
	processingSince map[string]time.Time

	now func() time.Time
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:        make(map[string]*models.VoiceSession),
		processingSince: make(map[string]time.Time),
		now:             time.Now,
	}
}

// GetOrCreate returns the session for sessionID, creating an idle one on
// first sight.
func (s *SessionStore) GetOrCreate(ctx context.Context, sessionID, ownerID string) (*models.VoiceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		now := s.now()
		session = &models.VoiceSession{
			SessionID:      sessionID,
			OwnerID:        ownerID,
			Mode:           models.ModeIdle,
			LastActivityAt: now,
			CreatedAt:      now,
		}
		s.sessions[sessionID] = session
		log.Debug().Str("session_id", sessionID).Str("owner_id", ownerID).Msg("Created session")
	}

	clone := *session
	return &clone, nil
}

// Get returns the session or store.ErrSessionNotFound.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*models.VoiceSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, store.ErrSessionNotFound
	}

	clone := *session
	return &clone, nil
}

// StartRecording transitions an idle session to recording. Non-idle sessions
// are left untouched.
func (s *SessionStore) StartRecording(ctx context.Context, sessionID string, intent models.IntentType, text string) (*models.VoiceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, store.ErrSessionNotFound
	}

	if session.Mode == models.ModeIdle {
		session.Mode = models.ModeRecording
		session.IntentType = intent
		session.AccumulatedText = text
		session.SegmentCount = 1
		session.LastActivityAt = s.now()
	}

	clone := *session
	return &clone, nil
}

// AppendSegment folds one batch of text into a recording session.
func (s *SessionStore) AppendSegment(ctx context.Context, sessionID, text string) (*models.VoiceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, store.ErrSessionNotFound
	}

	if session.Mode != models.ModeRecording {
		return nil, store.ErrNotRecording
	}

	session.AccumulatedText += " " + text
	session.SegmentCount++
	session.LastActivityAt = s.now()

	clone := *session
	return &clone, nil
}

// BeginProcessing is the compare-and-set on recording -> processing. Only one
// caller wins the transition for a given episode.
func (s *SessionStore) BeginProcessing(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return false, store.ErrSessionNotFound
	}

	if session.Mode != models.ModeRecording {
		return false, nil
	}

	session.Mode = models.ModeProcessing
	s.processingSince[sessionID] = s.now()
	return true, nil
}

// Reset returns the session to idle, clearing episode state atomically.
func (s *SessionStore) Reset(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return store.ErrSessionNotFound
	}

	session.Mode = models.ModeIdle
	session.IntentType = models.IntentUnset
	session.AccumulatedText = ""
	session.SegmentCount = 0
	delete(s.processingSince, sessionID)

	return nil
}

// ListRecording returns every session currently in recording mode.
func (s *SessionStore) ListRecording(ctx context.Context) ([]*models.VoiceSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var recording []*models.VoiceSession
	for _, session := range s.sessions {
		if session.Mode == models.ModeRecording {
			clone := *session
			recording = append(recording, &clone)
		}
	}

	return recording, nil
}

// ListProcessingSince returns sessions stuck in processing since before cutoff.
func (s *SessionStore) ListProcessingSince(ctx context.Context, cutoff time.Time) ([]*models.VoiceSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stuck []*models.VoiceSession
	for id, since := range s.processingSince {
		session, exists := s.sessions[id]
		if !exists || session.Mode != models.ModeProcessing {
			continue
		}
		if since.Before(cutoff) {
			clone := *session
			stuck = append(stuck, &clone)
		}
	}

	return stuck, nil
}
