package extract

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/kordite/voicerelay/internal/models"
)

const (
	defaultModel      = "gemini-2.0-flash"
	maxResponseTokens = 300
)

// GeminiExtractor implements Extractor using Google's Gemini API. The model
// is asked for a rigid line-oriented response (KEY: value per line) which is
// parsed without any JSON-mode dependency.
type GeminiExtractor struct {
	client *genai.Client
	model  string
}

// NewGeminiExtractor creates a Gemini-backed extractor.
func NewGeminiExtractor(ctx context.Context, apiKey, model string) (*GeminiExtractor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiExtractor{client: client, model: model}, nil
}

func (g *GeminiExtractor) generate(ctx context.Context, system, user string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(user, genai.RoleUser),
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.3),
		MaxOutputTokens:   maxResponseTokens,
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}

	return strings.TrimSpace(result.Text()), nil
}

const messageSystemPrompt = `You are a RingCentral message parser. Extract the chat/channel name and message content from voice commands.

Available chats: %s

The user said something like "send message to [chat] saying [message]" or "message [person] that [message]"

Your job:
1. Identify which chat/channel/person name the user mentioned (fuzzy match from available chats)
2. Extract the message content they want to send
3. Clean up the message (remove filler words, fix grammar)

Important:
- Chat names might be said imperfectly (e.g., "general" for "General")
- Match to the CLOSEST available chat name
- If no clear chat mentioned, return "UNKNOWN" for chat
- Message should be clean and natural

Respond in this EXACT format:
CHAT: <chat_name or UNKNOWN>
MESSAGE: <cleaned message content>`

// ExtractMessage parses a message command and resolves the chat against the
// supplied roster.
func (g *GeminiExtractor) ExtractMessage(ctx context.Context, text string, chats []models.Chat) (*MessageIntent, error) {
	names := make([]string, 0, len(chats))
	for _, chat := range chats {
		names = append(names, chat.BestName())
	}

	system := fmt.Sprintf(messageSystemPrompt, strings.Join(names, ", "))
	user := fmt.Sprintf("Voice command after trigger: %s\n\nExtract chat and message:", text)

	raw, err := g.generate(ctx, system, user)
	if err != nil {
		return nil, err
	}

	intent := parseMessageResponse(raw)
	resolveChat(intent, chats)

	log.Debug().
		Str("chat_name", intent.ChatName).
		Str("chat_id", intent.ChatID).
		Msg("Extracted message intent")

	return intent, nil
}

const taskSystemPrompt = `You are a RingCentral task parser. Extract task details from voice commands.

Available team members: %s

The user said something like "create task for [person] due [date/time] [task description]"

Your job:
1. Extract the task title/description (REQUIRED)
2. Identify assignee if mentioned (fuzzy match from available members, or NONE)
3. Extract due date if mentioned (YYYY-MM-DD, or RELATIVE:<word> like RELATIVE:tomorrow)
4. Extract due time if mentioned (HH:MM in 24-hour format)

Respond in this EXACT format:
TITLE: <task title>
ASSIGNEE: <person name or NONE>
DUE_DATE: <YYYY-MM-DD or RELATIVE:<word> or NONE>
DUE_TIME: <HH:MM or NONE>`

// ExtractTask parses a task command and resolves the assignee against the
// member directory.
func (g *GeminiExtractor) ExtractTask(ctx context.Context, text string, members []models.Member) (*TaskIntent, error) {
	names := make([]string, 0, len(members))
	for _, member := range members {
		if name := member.BestName(); name != "" {
			names = append(names, name)
		}
	}
	roster := "None"
	if len(names) > 0 {
		roster = strings.Join(names, ", ")
	}

	system := fmt.Sprintf(taskSystemPrompt, roster)
	user := fmt.Sprintf("Voice command after trigger: %s\n\nExtract task details:", text)

	raw, err := g.generate(ctx, system, user)
	if err != nil {
		return nil, err
	}

	intent := parseTaskResponse(raw)
	resolveAssignee(intent, members)
	intent.DueDate = resolveRelativeDate(intent.DueDate)

	log.Debug().
		Str("title", intent.Title).
		Str("assignee", intent.AssigneeName).
		Str("due_date", intent.DueDate).
		Msg("Extracted task intent")

	return intent, nil
}

const eventSystemPrompt = `You are a RingCentral calendar event parser. Extract event details from voice commands.

The user said something like "add event [event name] on [date] at [time] for [duration]"

Your job:
1. Extract the event name/title (REQUIRED)
2. Extract the start date (YYYY-MM-DD, or RELATIVE:<word> like RELATIVE:tomorrow)
3. Extract the start time (HH:MM in 24-hour format)
4. Extract the duration in minutes (default: 60 if not specified)
5. Extract any notes/description (optional)

Respond in this EXACT format:
NAME: <event name>
START_DATE: <YYYY-MM-DD or RELATIVE:<word> or NONE>
START_TIME: <HH:MM or NONE>
DURATION: <minutes as number or 60>
NOTES: <any additional notes or NONE>`

// ExtractEvent parses a calendar event command.
func (g *GeminiExtractor) ExtractEvent(ctx context.Context, text string) (*EventIntent, error) {
	user := fmt.Sprintf("Voice command after trigger: %s\n\nExtract event details:", text)

	raw, err := g.generate(ctx, eventSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	intent := parseEventResponse(raw)
	intent.StartDate = resolveRelativeDate(intent.StartDate)

	log.Debug().
		Str("name", intent.Name).
		Str("start_date", intent.StartDate).
		Int("duration_minutes", intent.DurationMinutes).
		Msg("Extracted event intent")

	return intent, nil
}

// responseField pulls the value of a "KEY: value" line out of a model
// response, or "" when the key is missing or the value is the NONE marker.
func responseField(raw, key string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		value, found := strings.CutPrefix(line, key+":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		if strings.EqualFold(value, "NONE") {
			return ""
		}
		return value
	}
	return ""
}

func parseMessageResponse(raw string) *MessageIntent {
	intent := &MessageIntent{
		ChatName: responseField(raw, "CHAT"),
		Message:  responseField(raw, "MESSAGE"),
	}
	if strings.EqualFold(intent.ChatName, "UNKNOWN") {
		intent.ChatName = ""
	}
	return intent
}

func parseTaskResponse(raw string) *TaskIntent {
	return &TaskIntent{
		Title:        responseField(raw, "TITLE"),
		AssigneeName: responseField(raw, "ASSIGNEE"),
		DueDate:      responseField(raw, "DUE_DATE"),
		DueTime:      responseField(raw, "DUE_TIME"),
	}
}

func parseEventResponse(raw string) *EventIntent {
	intent := &EventIntent{
		Name:            responseField(raw, "NAME"),
		StartDate:       responseField(raw, "START_DATE"),
		StartTime:       responseField(raw, "START_TIME"),
		Notes:           responseField(raw, "NOTES"),
		DurationMinutes: 60,
	}
	if duration := responseField(raw, "DURATION"); duration != "" {
		if minutes, err := strconv.Atoi(duration); err == nil && minutes > 0 {
			intent.DurationMinutes = minutes
		}
	}
	return intent
}

// resolveChat maps the model's chat name onto a roster entry, exact match
// first then substring fuzzy match. A miss leaves ChatID empty.
func resolveChat(intent *MessageIntent, chats []models.Chat) {
	if intent.ChatName == "" {
		return
	}

	want := strings.ToLower(intent.ChatName)
	for _, chat := range chats {
		if strings.ToLower(chat.BestName()) == want {
			intent.ChatID = chat.ID
			intent.ChatName = chat.BestName()
			return
		}
	}

	for _, chat := range chats {
		name := strings.ToLower(chat.BestName())
		if strings.Contains(want, name) || strings.Contains(name, want) {
			log.Debug().Str("spoken", intent.ChatName).Str("matched", chat.BestName()).Msg("Fuzzy matched chat")
			intent.ChatID = chat.ID
			intent.ChatName = chat.BestName()
			return
		}
	}
}

// resolveAssignee maps the model's assignee name onto the member directory.
// A miss leaves AssigneeID empty (unassigned task).
func resolveAssignee(intent *TaskIntent, members []models.Member) {
	if intent.AssigneeName == "" {
		return
	}

	want := strings.ToLower(intent.AssigneeName)
	for _, member := range members {
		if strings.ToLower(member.BestName()) == want {
			intent.AssigneeID = member.ID
			intent.AssigneeName = member.BestName()
			return
		}
	}

	for _, member := range members {
		name := strings.ToLower(member.BestName())
		if name == "" {
			continue
		}
		if strings.Contains(want, name) || strings.Contains(name, want) {
			log.Debug().Str("spoken", intent.AssigneeName).Str("matched", member.BestName()).Msg("Fuzzy matched assignee")
			intent.AssigneeID = member.ID
			intent.AssigneeName = member.BestName()
			return
		}
	}
}
