package relay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kordite/voicerelay/internal/models"
	"github.com/kordite/voicerelay/internal/store/memory"
	"github.com/kordite/voicerelay/internal/trigger"
)

type recordingCommitter struct {
	outcome   string
	committed []*models.VoiceSession
	reset     func(ctx context.Context, sessionID string) error
}

func (c *recordingCommitter) Commit(ctx context.Context, session *models.VoiceSession) string {
	c.committed = append(c.committed, session)
	if c.reset != nil {
		_ = c.reset(ctx, session.SessionID)
	}
	return c.outcome
}

func segs(texts ...string) []Segment {
	out := make([]Segment, 0, len(texts))
	for _, t := range texts {
		out = append(out, Segment{Text: t})
	}
	return out
}

func newAccumulator(t *testing.T, threshold int) (*Accumulator, *memory.SessionStore, *recordingCommitter) {
	t.Helper()
	sessions := memory.NewSessionStore()
	committer := &recordingCommitter{
		outcome: SuccessMarker + " done",
		reset:   sessions.Reset,
	}
	acc := NewAccumulator(trigger.NewDetector(), sessions, committer, threshold)
	return acc, sessions, committer
}

func TestProcessIgnoresNonTriggerWhenIdle(t *testing.T) {
	acc, sessions, committer := newAccumulator(t, 0)
	ctx := context.Background()

	status, err := acc.Process(ctx, "s1", "u1", segs("talking about lunch plans"))
	require.NoError(t, err)
	require.Equal(t, StatusListening, status)

	session, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, models.ModeIdle, session.Mode)
	require.Empty(t, committer.committed)
}

func TestProcessEmptyBatch(t *testing.T) {
	acc, _, _ := newAccumulator(t, 0)

	status, err := acc.Process(context.Background(), "s1", "u1", segs("", "  "))
	require.NoError(t, err)
	require.Equal(t, StatusListening, status)
}

func TestTriggerSeedsEpisodeWithContent(t *testing.T) {
	acc, sessions, _ := newAccumulator(t, 0)
	ctx := context.Background()

	status, err := acc.Process(ctx, "s1", "u1", segs("send ring message to general saying hello team"))
	require.NoError(t, err)
	require.Equal(t, "collecting_1", status)

	session, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, models.ModeRecording, session.Mode)
	require.Equal(t, models.IntentMessage, session.IntentType)
	require.Equal(t, "to general saying hello team", session.AccumulatedText)
	require.Equal(t, 1, session.SegmentCount)
}

func TestBareTriggerSeedsFullText(t *testing.T) {
	acc, sessions, _ := newAccumulator(t, 0)
	ctx := context.Background()

	_, err := acc.Process(ctx, "s1", "u1", segs("send ring message"))
	require.NoError(t, err)

	session, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "send ring message", session.AccumulatedText)
}

func TestThresholdCommitPreservesOrder(t *testing.T) {
	acc, sessions, committer := newAccumulator(t, 5)
	ctx := context.Background()

	status, err := acc.Process(ctx, "s1", "u1", segs("send ring message alpha"))
	require.NoError(t, err)
	require.Equal(t, "collecting_1", status)

	for i, word := range []string{"bravo", "charlie", "delta"} {
		status, err = acc.Process(ctx, "s1", "u1", segs(word))
		require.NoError(t, err)
		require.Equal(t, collectingStatus(i+2), status)
	}

	// fifth batch crosses the threshold and commits inline
	status, err = acc.Process(ctx, "s1", "u1", segs("echo"))
	require.NoError(t, err)
	require.Equal(t, committer.outcome, status)

	require.Len(t, committer.committed, 1)
	require.Equal(t, "alpha bravo charlie delta echo", committer.committed[0].AccumulatedText)

	// session is idle again for the next episode
	session, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, models.ModeIdle, session.Mode)
}

func TestBatchJoinsMultipleSegments(t *testing.T) {
	acc, sessions, _ := newAccumulator(t, 0)
	ctx := context.Background()

	_, err := acc.Process(ctx, "s1", "u1", segs("create ring task", "review the", "budget numbers"))
	require.NoError(t, err)

	session, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, models.IntentTask, session.IntentType)
	require.Equal(t, "review the budget numbers", session.AccumulatedText)
	require.Equal(t, 1, session.SegmentCount)
}

func TestProcessingSessionDropsBatches(t *testing.T) {
	acc, sessions, committer := newAccumulator(t, 5)
	ctx := context.Background()

	_, err := acc.Process(ctx, "s1", "u1", segs("send ring message saying hi"))
	require.NoError(t, err)

	won, err := sessions.BeginProcessing(ctx, "s1")
	require.NoError(t, err)
	require.True(t, won)

	status, err := acc.Process(ctx, "s1", "u1", segs("dropped words"))
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, status)

	// dropped batches never reach the committer or the accumulated text
	require.Empty(t, committer.committed)
	session, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "saying hi", session.AccumulatedText)
}

func TestTriggerCommitAtMostOnce(t *testing.T) {
	acc, sessions, committer := newAccumulator(t, 2)
	ctx := context.Background()

	_, err := acc.Process(ctx, "s1", "u1", segs("send ring message saying hi"))
	require.NoError(t, err)

	// monitor wins the transition first
	won, err := sessions.BeginProcessing(ctx, "s1")
	require.NoError(t, err)
	require.True(t, won)

	status, err := acc.Process(ctx, "s1", "u1", segs("word"))
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, status)
	require.Empty(t, committer.committed)
}
