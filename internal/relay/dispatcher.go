package relay

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/kordite/voicerelay/internal/extract"
	"github.com/kordite/voicerelay/internal/models"
	"github.com/kordite/voicerelay/internal/store"
)

// Outcome strings begin with one of these markers; they double as the
// user-visible notification payload.
const (
	SuccessMarker = "✅"
	FailureMarker = "❌"
)

// minContentLength is the minimum trimmed length of the required field
// (message text, task title, event name).
const minContentLength = 3

// Dispatcher commits a processing session: it gathers intent-specific
// context, runs the extractor, performs the remote action, and resets the
// session unconditionally so a failed episode never wedges it.
type Dispatcher struct {
	sessions  store.SessionStore
	users     store.UserStore
	extractor extract.Extractor
	sink      ActionSink
}

// NewDispatcher creates the dispatcher.
func NewDispatcher(sessions store.SessionStore, users store.UserStore, extractor extract.Extractor, sink ActionSink) *Dispatcher {
	return &Dispatcher{
		sessions:  sessions,
		users:     users,
		extractor: extractor,
		sink:      sink,
	}
}

// Commit resolves one episode and returns its outcome string. The session
// must already hold the processing transition; Commit resets it to idle on
// every path.
func (d *Dispatcher) Commit(ctx context.Context, session *models.VoiceSession) (outcome string) {
	defer func() {
		if err := d.sessions.Reset(ctx, session.SessionID); err != nil {
			log.Error().Err(err).Str("session_id", session.SessionID).Msg("Failed to reset session after commit")
		}
		log.Info().
			Str("session_id", session.SessionID).
			Str("intent", string(session.IntentType)).
			Str("outcome", outcome).
			Msg("Episode resolved")
	}()

	user, err := d.users.Get(ctx, session.OwnerID)
	if err != nil || !user.IsAuthenticated() {
		return FailureMarker + " User not authenticated"
	}

	switch session.IntentType {
	case models.IntentTask:
		return d.commitTask(ctx, user, session.AccumulatedText)
	case models.IntentEvent:
		return d.commitEvent(ctx, user, session.AccumulatedText)
	default:
		return d.commitMessage(ctx, user, session.AccumulatedText)
	}
}

func (d *Dispatcher) commitMessage(ctx context.Context, user *models.User, text string) string {
	chats, err := d.sink.ListChats(ctx, user)
	if err != nil {
		return fmt.Sprintf("%s Failed to send message: %v", FailureMarker, err)
	}
	chats = d.sink.EnrichChats(ctx, user, chats)

	intent, err := d.extractor.ExtractMessage(ctx, text, chats)
	if err != nil {
		return fmt.Sprintf("%s Failed to send message: %v", FailureMarker, err)
	}

	if intent.ChatID == "" {
		return FailureMarker + " No chat specified and no default chat set"
	}
	if !hasContent(intent.Message) {
		return FailureMarker + " No valid message content"
	}

	if err := d.sink.PostMessage(ctx, user, intent.ChatID, intent.Message); err != nil {
		return fmt.Sprintf("%s Failed: %v", FailureMarker, err)
	}

	return fmt.Sprintf("%s Message sent to %s: %s", SuccessMarker, intent.ChatName, intent.Message)
}

func (d *Dispatcher) commitTask(ctx context.Context, user *models.User, text string) string {
	members, err := d.sink.ListMembers(ctx, user)
	if err != nil {
		return fmt.Sprintf("%s Failed to create task: %v", FailureMarker, err)
	}

	intent, err := d.extractor.ExtractTask(ctx, text, members)
	if err != nil {
		return fmt.Sprintf("%s Failed to create task: %v", FailureMarker, err)
	}

	if !hasContent(intent.Title) {
		return FailureMarker + " No valid task title found"
	}

	if err := d.sink.CreateTask(ctx, user, intent.Title, intent.AssigneeID, intent.DueDate, intent.DueTime); err != nil {
		return fmt.Sprintf("%s Failed to create task: %v", FailureMarker, err)
	}

	outcome := SuccessMarker + " Task created: " + intent.Title
	if intent.AssigneeName != "" {
		outcome += " for " + intent.AssigneeName
	}
	if intent.DueDate != "" {
		outcome += " (due " + intent.DueDate
		if intent.DueTime != "" {
			outcome += " at " + intent.DueTime
		}
		outcome += ")"
	}
	return outcome
}

func (d *Dispatcher) commitEvent(ctx context.Context, user *models.User, text string) string {
	intent, err := d.extractor.ExtractEvent(ctx, text)
	if err != nil {
		return fmt.Sprintf("%s Failed to create event: %v", FailureMarker, err)
	}

	if !hasContent(intent.Name) {
		return FailureMarker + " No valid event name found"
	}

	err = d.sink.CreateEvent(ctx, user, intent.Name, intent.StartDate, intent.StartTime, intent.DurationMinutes, intent.Notes)
	if err != nil {
		return fmt.Sprintf("%s Failed to create event: %v", FailureMarker, err)
	}

	outcome := SuccessMarker + " Event created: " + intent.Name
	if intent.StartDate != "" {
		outcome += " on " + intent.StartDate
		if intent.StartTime != "" {
			outcome += " at " + intent.StartTime
		}
	}
	return outcome
}

func hasContent(s string) bool {
	return len(strings.TrimSpace(s)) >= minContentLength
}

// IsResolved reports whether a status string is a terminal episode outcome
// rather than an in-progress marker.
func IsResolved(status string) bool {
	return strings.HasPrefix(status, SuccessMarker) || strings.HasPrefix(status, FailureMarker)
}
