package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kordite/voicerelay/internal/models"
	"github.com/kordite/voicerelay/internal/store"
	"github.com/kordite/voicerelay/internal/store/memory"
)

// lateBatchStore delivers one extra batch between the monitor's scan and its
// claim, reproducing a webhook arriving mid-tick.
type lateBatchStore struct {
	store.SessionStore
	sessionID string
	text      string
	delivered bool
}

func (s *lateBatchStore) ListRecording(ctx context.Context) ([]*models.VoiceSession, error) {
	listed, err := s.SessionStore.ListRecording(ctx)
	if err == nil && !s.delivered {
		s.delivered = true
		if _, appendErr := s.SessionStore.AppendSegment(ctx, s.sessionID, s.text); appendErr != nil {
			return nil, appendErr
		}
	}
	return listed, err
}

func TestScanCommitsIdleSession(t *testing.T) {
	sessions := memory.NewSessionStore()
	committer := &recordingCommitter{
		outcome: SuccessMarker + " done",
		reset:   sessions.Reset,
	}
	monitor := NewIdleMonitor(sessions, committer, 10*time.Millisecond, 0)
	ctx := context.Background()

	// two batches accumulated, fewer than any count threshold
	_, err := sessions.GetOrCreate(ctx, "s1", "u1")
	require.NoError(t, err)
	_, err = sessions.StartRecording(ctx, "s1", models.IntentMessage, "saying hello")
	require.NoError(t, err)
	_, err = sessions.AppendSegment(ctx, "s1", "everyone")
	require.NoError(t, err)

	// not idle long enough yet
	monitor.Scan(ctx)
	require.Empty(t, committer.committed)

	time.Sleep(25 * time.Millisecond)
	monitor.Scan(ctx)

	require.Len(t, committer.committed, 1)
	require.Equal(t, "saying hello everyone", committer.committed[0].AccumulatedText)
	require.Equal(t, 2, committer.committed[0].SegmentCount)

	session, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, models.ModeIdle, session.Mode)

	// second pass finds nothing left to commit
	monitor.Scan(ctx)
	require.Len(t, committer.committed, 1)
}

func TestScanCommitsBatchFoldedDuringScan(t *testing.T) {
	backing := memory.NewSessionStore()
	sessions := &lateBatchStore{
		SessionStore: backing,
		sessionID:    "s1",
		text:         "and the budget numbers",
	}
	committer := &recordingCommitter{
		outcome: SuccessMarker + " done",
		reset:   backing.Reset,
	}
	monitor := NewIdleMonitor(sessions, committer, 10*time.Millisecond, 0)
	ctx := context.Background()

	_, err := backing.GetOrCreate(ctx, "s1", "u1")
	require.NoError(t, err)
	_, err = backing.StartRecording(ctx, "s1", models.IntentMessage, "saying hello")
	require.NoError(t, err)

	time.Sleep(25 * time.Millisecond)
	monitor.Scan(ctx)

	// the batch that landed between the scan and the claim is committed,
	// not discarded by the post-commit reset
	require.Len(t, committer.committed, 1)
	require.Equal(t, "saying hello and the budget numbers", committer.committed[0].AccumulatedText)
	require.Equal(t, 2, committer.committed[0].SegmentCount)
}

func TestScanLeavesActiveSessionsAlone(t *testing.T) {
	sessions := memory.NewSessionStore()
	committer := &recordingCommitter{outcome: SuccessMarker + " done", reset: sessions.Reset}
	monitor := NewIdleMonitor(sessions, committer, time.Hour, 0)
	ctx := context.Background()

	_, err := sessions.GetOrCreate(ctx, "s1", "u1")
	require.NoError(t, err)
	_, err = sessions.StartRecording(ctx, "s1", models.IntentMessage, "saying hi")
	require.NoError(t, err)

	monitor.Scan(ctx)
	require.Empty(t, committer.committed)

	session, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, models.ModeRecording, session.Mode)
}

func TestScanResetsWedgedProcessingSession(t *testing.T) {
	sessions := memory.NewSessionStore()
	committer := &recordingCommitter{outcome: SuccessMarker + " done"}
	monitor := NewIdleMonitor(sessions, committer, time.Hour, 10*time.Millisecond)
	ctx := context.Background()

	_, err := sessions.GetOrCreate(ctx, "s1", "u1")
	require.NoError(t, err)
	_, err = sessions.StartRecording(ctx, "s1", models.IntentMessage, "saying hi")
	require.NoError(t, err)
	won, err := sessions.BeginProcessing(ctx, "s1")
	require.NoError(t, err)
	require.True(t, won)

	// fresh processing sessions are untouched
	monitor.Scan(ctx)
	session, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, models.ModeProcessing, session.Mode)

	time.Sleep(25 * time.Millisecond)
	monitor.Scan(ctx)

	session, err = sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, models.ModeIdle, session.Mode)
	require.Empty(t, committer.committed)
}

func TestStartStop(t *testing.T) {
	sessions := memory.NewSessionStore()
	monitor := NewIdleMonitor(sessions, &recordingCommitter{outcome: SuccessMarker + " done"}, 0, 0)

	monitor.Start(context.Background())
	monitor.Stop()
}
