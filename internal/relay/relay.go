// Package relay implements the session accumulation state machine: inbound
// transcript batches are buffered per session, debounced, and committed
// exactly once per episode into a single outbound action.
package relay

import (
	"context"
	"strings"

	"github.com/kordite/voicerelay/internal/models"
)

// Segment is one atomic unit of transcribed speech from the capture device.
// Only Text matters to the relay; the remaining fields are carried for
// logging parity with the device payload.
type Segment struct {
	Text      string  `json:"text"`
	Speaker   string  `json:"speaker,omitempty"`
	SpeakerID int     `json:"speakerId,omitempty"`
	IsUser    bool    `json:"is_user,omitempty"`
	Start     float64 `json:"start,omitempty"`
	End       float64 `json:"end,omitempty"`
}

// JoinSegments concatenates a batch's segment texts with single spaces,
// skipping empty segments.
func JoinSegments(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, segment := range segments {
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Committer finalizes an episode: the session has already won the
// recording -> processing transition, Commit extracts the intent, performs
// the remote action, and resets the session. The returned outcome string
// starts with a success or failure marker and is safe to surface to the user.
type Committer interface {
	Commit(ctx context.Context, session *models.VoiceSession) string
}

// ActionSink performs the remote platform actions for a committed episode
// and supplies the rosters the extractor matches against.
type ActionSink interface {
	ListChats(ctx context.Context, user *models.User) ([]models.Chat, error)
	EnrichChats(ctx context.Context, user *models.User, chats []models.Chat) []models.Chat
	ListMembers(ctx context.Context, user *models.User) ([]models.Member, error)
	PostMessage(ctx context.Context, user *models.User, chatID, text string) error
	CreateTask(ctx context.Context, user *models.User, title, assigneeID, dueDate, dueTime string) error
	CreateEvent(ctx context.Context, user *models.User, name, startDate, startTime string, durationMinutes int, notes string) error
}
