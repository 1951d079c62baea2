// Package trigger classifies raw transcript text against the fixed table of
// wake phrases that start a voice command, and extracts the spoken content
// that follows the phrase. Detection is pure string matching, no I/O.
package trigger

import (
	"strings"

	"github.com/kordite/voicerelay/internal/models"
)

// Detector matches text against a phrase table. The zero value is not usable;
// construct with NewDetector or NewDetectorFromTable.
type Detector struct {
	// ordered highest priority first: event > task > message, so a text
	// containing phrases from multiple categories resolves to the
	// highest-priority one found
	categories []phraseCategory
}

type phraseCategory struct {
	intent  models.IntentType
	phrases []string
}

// Table is the configurable phrase table, one list of lowercase phrase
// variants per intent.
type Table struct {
	Message []string `yaml:"message"`
	Task    []string `yaml:"task"`
	Event   []string `yaml:"event"`
}

// DefaultTable returns the built-in phrase variants.
func DefaultTable() Table {
	return Table{
		Message: []string{
			"send ring message",
			"send ringcentral message",
			"post ring message",
			"post ringcentral message",
		},
		Task: []string{
			"create ring task",
			"create ringcentral task",
			"add ring task",
			"add ringcentral task",
			"make ring task",
			"make ringcentral task",
		},
		Event: []string{
			"create ring event",
			"create ringcentral event",
			"add ring event",
			"add ringcentral event",
			"schedule ring event",
			"schedule ringcentral event",
			"add ring calendar event",
			"add ringcentral calendar event",
		},
	}
}

// NewDetector returns a detector using the built-in phrase table.
func NewDetector() *Detector {
	return NewDetectorFromTable(DefaultTable())
}

// NewDetectorFromTable builds a detector from a phrase table. Empty intent
// lists fall back to the built-in variants for that intent, phrases are
// normalized to lowercase.
func NewDetectorFromTable(table Table) *Detector {
	def := DefaultTable()
	if len(table.Message) == 0 {
		table.Message = def.Message
	}
	if len(table.Task) == 0 {
		table.Task = def.Task
	}
	if len(table.Event) == 0 {
		table.Event = def.Event
	}

	return &Detector{
		categories: []phraseCategory{
			{intent: models.IntentEvent, phrases: lowered(table.Event)},
			{intent: models.IntentTask, phrases: lowered(table.Task)},
			{intent: models.IntentMessage, phrases: lowered(table.Message)},
		},
	}
}

func lowered(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Detect reports whether the text contains a trigger phrase and which intent
// it signals. Matching is case-insensitive and substring based.
func (d *Detector) Detect(text string) (bool, models.IntentType) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, cat := range d.categories {
		for _, phrase := range cat.phrases {
			if strings.Contains(normalized, phrase) {
				return true, cat.intent
			}
		}
	}
	return false, models.IntentUnset
}

// ExtractContent returns the original-cased remainder after the first
// matching phrase, trimmed of whitespace. Returns "" if no phrase matches or
// nothing usable trails the phrase.
func (d *Detector) ExtractContent(text string) string {
	normalized := strings.ToLower(text)

	matchIdx := -1
	matchLen := 0
	for _, cat := range d.categories {
		for _, phrase := range cat.phrases {
			idx := strings.Index(normalized, phrase)
			if idx == -1 {
				continue
			}
			// earliest match wins; on a tie prefer the longer phrase so
			// "add ring calendar event" beats "add ring event" at the
			// same offset
			if matchIdx == -1 || idx < matchIdx || (idx == matchIdx && len(phrase) > matchLen) {
				matchIdx = idx
				matchLen = len(phrase)
			}
		}
	}

	if matchIdx == -1 {
		return ""
	}

	return strings.TrimSpace(text[matchIdx+matchLen:])
}
