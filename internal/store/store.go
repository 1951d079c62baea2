// Package store defines the storage contracts for voice sessions and linked
// users. All session mutation goes through SessionStore methods that
// read-modify-write a single record keyed by id; no other component holds a
// private copy of session state.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kordite/voicerelay/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrNotRecording    = errors.New("session is not recording")
)

// SessionStore is the durable registry of voice-session state machine
// instances. Implementations must make every method an atomic operation on
// the addressed session record.
type SessionStore interface {
	// GetOrCreate returns the session for sessionID, creating an idle one
	// owned by ownerID on first sight.
	GetOrCreate(ctx context.Context, sessionID, ownerID string) (*models.VoiceSession, error)

	// Get returns the session or ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (*models.VoiceSession, error)

	// StartRecording transitions an idle session to recording, fixing the
	// episode's intent and seeding the accumulated text with one segment.
	// It is a no-op returning the current state if the session is not idle.
	StartRecording(ctx context.Context, sessionID string, intent models.IntentType, text string) (*models.VoiceSession, error)

	// AppendSegment folds one batch of text into a recording session and
	// bumps the segment count and activity timestamp. Returns
	// ErrNotRecording if the session is not in recording mode.
	AppendSegment(ctx context.Context, sessionID, text string) (*models.VoiceSession, error)

	// BeginProcessing is the compare-and-set on the recording -> processing
	// transition. Exactly one caller wins for a given episode; the rest see
	// won == false with no state change.
	BeginProcessing(ctx context.Context, sessionID string) (won bool, err error)

	// Reset returns the session to idle, clearing accumulated text, segment
	// count, and intent together. Resetting an idle session is a no-op.
	Reset(ctx context.Context, sessionID string) error

	// ListRecording returns every session currently in recording mode, for
	// the idle-commit scan.
	ListRecording(ctx context.Context) ([]*models.VoiceSession, error)

	// ListProcessingSince returns sessions that entered processing before
	// the cutoff, for the stuck-episode watchdog.
	ListProcessingSince(ctx context.Context, cutoff time.Time) ([]*models.VoiceSession, error)
}

// UserStore persists linked-account credentials and the cached chat roster.
type UserStore interface {
	// Save upserts the user record.
	Save(ctx context.Context, user *models.User) error

	// Get returns the user or ErrUserNotFound.
	Get(ctx context.Context, uid string) (*models.User, error)

	// Delete removes the user record (logout). Deleting a missing user
	// returns ErrUserNotFound.
	Delete(ctx context.Context, uid string) error
}
