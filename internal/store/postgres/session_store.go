package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/kordite/voicerelay/internal/models"
	"github.com/kordite/voicerelay/internal/store"
)

const sessionColumns = `
	session_id, owner_id, mode, intent_type,
	accumulated_text, segment_count, last_activity_at, created_at
`

// SessionStore implements store.SessionStore using PostgreSQL. The state
// machine transitions are single UPDATE statements guarded by the current
// mode, so concurrent callers race on row-level locks rather than in
// application code.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a new PostgreSQL-backed session store.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{
		pool: pool,
	}
}

func scanSession(row pgx.Row) (*models.VoiceSession, error) {
	var session models.VoiceSession
	var mode, intent string
	err := row.Scan(
		&session.SessionID,
		&session.OwnerID,
		&mode,
		&intent,
		&session.AccumulatedText,
		&session.SegmentCount,
		&session.LastActivityAt,
		&session.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	session.Mode = models.Mode(mode)
	session.IntentType = models.IntentType(intent)
	return &session, nil
}

// GetOrCreate returns the session for sessionID, creating an idle one on
// first sight.
func (s *SessionStore) GetOrCreate(ctx context.Context, sessionID, ownerID string) (*models.VoiceSession, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO voice_sessions (session_id, owner_id)
		VALUES ($1, $2)
		ON CONFLICT (session_id) DO NOTHING
	`, sessionID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", mapPostgresError(err))
	}

	return s.Get(ctx, sessionID)
}

// Get returns the session or store.ErrSessionNotFound.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*models.VoiceSession, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM voice_sessions
		WHERE session_id = $1
	`, sessionID)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", mapPostgresError(err))
	}

	return session, nil
}

// StartRecording transitions an idle session to recording. Non-idle sessions
// are left untouched and their current state is returned.
func (s *SessionStore) StartRecording(ctx context.Context, sessionID string, intent models.IntentType, text string) (*models.VoiceSession, error) {
	_, err := s.pool.Exec(ctx, `
		UPDATE voice_sessions
		SET mode = 'recording',
			intent_type = $2,
			accumulated_text = $3,
			segment_count = 1,
			last_activity_at = now()
		WHERE session_id = $1 AND mode = 'idle'
	`, sessionID, string(intent), text)
	if err != nil {
		return nil, fmt.Errorf("failed to start recording: %w", mapPostgresError(err))
	}

	return s.Get(ctx, sessionID)
}

// AppendSegment folds one batch of text into a recording session.
func (s *SessionStore) AppendSegment(ctx context.Context, sessionID, text string) (*models.VoiceSession, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE voice_sessions
		SET accumulated_text = accumulated_text || ' ' || $2,
			segment_count = segment_count + 1,
			last_activity_at = now()
		WHERE session_id = $1 AND mode = 'recording'
		RETURNING `+sessionColumns,
		sessionID, text)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// distinguish a missing session from a mode mismatch
			if _, getErr := s.Get(ctx, sessionID); getErr != nil {
				return nil, getErr
			}
			return nil, store.ErrNotRecording
		}
		return nil, fmt.Errorf("failed to append segment: %w", mapPostgresError(err))
	}

	return session, nil
}

// BeginProcessing is the compare-and-set on recording -> processing. Only one
// caller wins the transition for a given episode.
func (s *SessionStore) BeginProcessing(ctx context.Context, sessionID string) (bool, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE voice_sessions
		SET mode = 'processing',
			processing_since = now()
		WHERE session_id = $1 AND mode = 'recording'
	`, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to begin processing: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 1 {
		return true, nil
	}

	if _, err := s.Get(ctx, sessionID); err != nil {
		return false, err
	}
	return false, nil
}

// Reset returns the session to idle, clearing episode state atomically.
func (s *SessionStore) Reset(ctx context.Context, sessionID string) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE voice_sessions
		SET mode = 'idle',
			intent_type = '',
			accumulated_text = '',
			segment_count = 0,
			processing_since = NULL
		WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to reset session: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrSessionNotFound
	}

	log.Debug().Str("session_id", sessionID).Msg("Reset session")
	return nil
}

// ListRecording returns every session currently in recording mode.
func (s *SessionStore) ListRecording(ctx context.Context) ([]*models.VoiceSession, error) {
	return s.list(ctx, `
		SELECT `+sessionColumns+`
		FROM voice_sessions
		WHERE mode = 'recording'
	`)
}

// ListProcessingSince returns sessions stuck in processing since before cutoff.
func (s *SessionStore) ListProcessingSince(ctx context.Context, cutoff time.Time) ([]*models.VoiceSession, error) {
	return s.list(ctx, `
		SELECT `+sessionColumns+`
		FROM voice_sessions
		WHERE mode = 'processing' AND processing_since < $1
	`, cutoff)
}

func (s *SessionStore) list(ctx context.Context, query string, args ...any) ([]*models.VoiceSession, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var sessions []*models.VoiceSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", mapPostgresError(err))
	}

	return sessions, nil
}
