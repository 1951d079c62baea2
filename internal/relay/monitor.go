package relay

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kordite/voicerelay/internal/store"
)

const (
	// DefaultIdleTimeout spans natural pauses between sentences while
	// still feeling responsive.
	DefaultIdleTimeout = 5 * time.Second

	// DefaultMaxProcessingAge bounds how long a hung remote call can hold
	// a session in processing before the watchdog force-resets it.
	DefaultMaxProcessingAge = 2 * time.Minute

	monitorTick = time.Second
)

// IdleMonitor force-commits recording sessions that have gone quiet past the
// idle timeout, regardless of segment count. It is the component that
// guarantees every episode eventually resolves.
type IdleMonitor struct {
	sessions  store.SessionStore
	committer Committer

	idleTimeout      time.Duration
	maxProcessingAge time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewIdleMonitor creates the monitor. Zero durations use the defaults.
func NewIdleMonitor(sessions store.SessionStore, committer Committer, idleTimeout, maxProcessingAge time.Duration) *IdleMonitor {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if maxProcessingAge <= 0 {
		maxProcessingAge = DefaultMaxProcessingAge
	}
	return &IdleMonitor{
		sessions:         sessions,
		committer:        committer,
		idleTimeout:      idleTimeout,
		maxProcessingAge: maxProcessingAge,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}
}

// Start begins the background scan loop.
func (m *IdleMonitor) Start(ctx context.Context) {
	go m.run(ctx)
	log.Info().
		Dur("idle_timeout", m.idleTimeout).
		Dur("max_processing_age", m.maxProcessingAge).
		Msg("Idle commit monitor started")
}

// Stop terminates the scan loop and waits for the current tick to finish.
func (m *IdleMonitor) Stop() {
	close(m.stopCh)
	<-m.doneCh
}

func (m *IdleMonitor) run(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(monitorTick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Scan(ctx)
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Scan runs one monitor pass: commit idle recording sessions and reset
// sessions wedged in processing. Exported for deterministic tests.
func (m *IdleMonitor) Scan(ctx context.Context) {
	now := time.Now()

	recording, err := m.sessions.ListRecording(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Idle monitor failed to list recording sessions")
	}

	for _, session := range recording {
		idle := session.IdleFor(now)
		if idle <= m.idleTimeout {
			continue
		}

		// the accumulator's count-threshold path may race this CAS; only
		// the winner commits
		won, err := m.sessions.BeginProcessing(ctx, session.SessionID)
		if err != nil {
			log.Error().Err(err).Str("session_id", session.SessionID).Msg("Idle monitor failed to claim session")
			continue
		}
		if !won {
			continue
		}

		// the listed snapshot predates the claim; a batch folded in during
		// the scan window must be part of the committed text
		claimed, err := m.sessions.Get(ctx, session.SessionID)
		if err != nil {
			log.Error().Err(err).Str("session_id", session.SessionID).Msg("Idle monitor failed to re-read claimed session")
			claimed = session
		}

		log.Info().
			Str("session_id", claimed.SessionID).
			Str("intent", string(claimed.IntentType)).
			Dur("idle", idle).
			Int("segment_count", claimed.SegmentCount).
			Msg("Idle timeout reached, committing")

		// commit outcome cannot be surfaced inline here; the dispatcher
		// logs it as the episode resolution
		m.committer.Commit(ctx, claimed)
	}

	m.resetWedged(ctx, now)
}

// resetWedged force-resets sessions stuck in processing past the maximum
// processing age, reporting the episode as failed.
func (m *IdleMonitor) resetWedged(ctx context.Context, now time.Time) {
	stuck, err := m.sessions.ListProcessingSince(ctx, now.Add(-m.maxProcessingAge))
	if err != nil {
		log.Error().Err(err).Msg("Idle monitor failed to list processing sessions")
		return
	}

	for _, session := range stuck {
		log.Warn().
			Str("session_id", session.SessionID).
			Str("intent", string(session.IntentType)).
			Msg("Session exceeded max processing age, force-resetting")

		if err := m.sessions.Reset(ctx, session.SessionID); err != nil {
			log.Error().Err(err).Str("session_id", session.SessionID).Msg("Failed to reset wedged session")
		}
	}
}
