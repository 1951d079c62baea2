// Package extract turns accumulated free-form speech into structured intent
// payloads using a language model.
package extract

import (
	"context"

	"github.com/kordite/voicerelay/internal/models"
)

// MessageIntent is the parsed form of a "send message" command.
type MessageIntent struct {
	ChatID   string // empty when no roster chat could be matched
	ChatName string
	Message  string
}

// TaskIntent is the parsed form of a "create task" command.
type TaskIntent struct {
	Title        string
	AssigneeID   string // empty when unassigned
	AssigneeName string
	DueDate      string // YYYY-MM-DD, empty when unset
	DueTime      string // HH:MM 24-hour, empty when unset
}

// EventIntent is the parsed form of a "create event" command.
type EventIntent struct {
	Name            string
	StartDate       string // YYYY-MM-DD, empty when unset
	StartTime       string // HH:MM 24-hour, empty when unset
	DurationMinutes int
	Notes           string
}

// Extractor parses accumulated transcript text into structured intent
// payloads, fuzzy-matching names against the supplied rosters.
type Extractor interface {
	ExtractMessage(ctx context.Context, text string, chats []models.Chat) (*MessageIntent, error)
	ExtractTask(ctx context.Context, text string, members []models.Member) (*TaskIntent, error)
	ExtractEvent(ctx context.Context, text string) (*EventIntent, error)
}
