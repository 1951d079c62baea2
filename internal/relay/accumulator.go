package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/kordite/voicerelay/internal/models"
	"github.com/kordite/voicerelay/internal/store"
	"github.com/kordite/voicerelay/internal/trigger"
)

// DefaultSegmentThreshold bounds worst-case latency and memory when the idle
// monitor is delayed. The idle monitor is the primary commit path in
// practice; the count threshold is a backstop.
const DefaultSegmentThreshold = 5

// Status values returned for batches that do not resolve an episode inline.
const (
	StatusListening  = "listening"
	StatusProcessing = "processing"
)

// Accumulator decides, per inbound batch, whether to open a session episode,
// fold into an open one, commit it, or drop the batch.
type Accumulator struct {
	detector  *trigger.Detector
	sessions  store.SessionStore
	committer Committer
	threshold int
}

// NewAccumulator creates the accumulator. A threshold <= 0 uses
// DefaultSegmentThreshold.
func NewAccumulator(detector *trigger.Detector, sessions store.SessionStore, committer Committer, threshold int) *Accumulator {
	if threshold <= 0 {
		threshold = DefaultSegmentThreshold
	}
	return &Accumulator{
		detector:  detector,
		sessions:  sessions,
		committer: committer,
		threshold: threshold,
	}
}

// Process folds one batch of segments into the session's state machine and
// returns a caller-visible status: StatusListening/StatusProcessing,
// "collecting_N" while an episode accumulates, or the commit outcome string
// when the count threshold resolves the episode inline.
func (a *Accumulator) Process(ctx context.Context, sessionID, ownerID string, segments []Segment) (string, error) {
	text := JoinSegments(segments)
	if text == "" {
		return StatusListening, nil
	}

	session, err := a.sessions.GetOrCreate(ctx, sessionID, ownerID)
	if err != nil {
		return "", fmt.Errorf("failed to load session: %w", err)
	}

	log.Debug().
		Str("session_id", sessionID).
		Str("mode", string(session.Mode)).
		Int("segment_count", session.SegmentCount).
		Str("text", text).
		Msg("Processing segment batch")

	switch session.Mode {
	case models.ModeIdle:
		return a.processIdle(ctx, sessionID, text)
	case models.ModeRecording:
		return a.processRecording(ctx, sessionID, text)
	default:
		// processing is terminal for the episode: the batch is dropped
		// without touching accumulated state
		log.Debug().Str("session_id", sessionID).Msg("Session busy, dropping batch")
		return StatusProcessing, nil
	}
}

func (a *Accumulator) processIdle(ctx context.Context, sessionID, text string) (string, error) {
	isTrigger, intent := a.detector.Detect(text)
	if !isTrigger {
		return StatusListening, nil
	}

	// a bare trigger phrase with nothing trailing it still opens the
	// episode, seeded with the full batch text
	content := a.detector.ExtractContent(text)
	if content == "" {
		content = text
	}

	session, err := a.sessions.StartRecording(ctx, sessionID, intent, content)
	if err != nil {
		return "", fmt.Errorf("failed to start recording: %w", err)
	}

	log.Info().
		Str("session_id", sessionID).
		Str("intent", string(intent)).
		Msg("Trigger detected, collecting segments")

	return collectingStatus(session.SegmentCount), nil
}

func (a *Accumulator) processRecording(ctx context.Context, sessionID, text string) (string, error) {
	session, err := a.sessions.AppendSegment(ctx, sessionID, text)
	if err != nil {
		if errors.Is(err, store.ErrNotRecording) {
			// a concurrent commit flipped the session to processing
			// between the snapshot and the fold; the batch is dropped
			return StatusProcessing, nil
		}
		return "", fmt.Errorf("failed to append segment: %w", err)
	}

	if session.SegmentCount < a.threshold {
		log.Debug().
			Str("session_id", sessionID).
			Int("segment_count", session.SegmentCount).
			Int("threshold", a.threshold).
			Msg("Collecting more segments")
		return collectingStatus(session.SegmentCount), nil
	}

	won, err := a.sessions.BeginProcessing(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to begin processing: %w", err)
	}
	if !won {
		// the idle monitor won the transition first
		return StatusProcessing, nil
	}

	log.Info().
		Str("session_id", sessionID).
		Int("segment_count", session.SegmentCount).
		Msg("Segment threshold reached, committing")

	session.Mode = models.ModeProcessing
	return a.committer.Commit(ctx, session), nil
}

func collectingStatus(count int) string {
	return fmt.Sprintf("collecting_%d", count)
}
