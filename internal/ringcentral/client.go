// Package ringcentral is a minimal REST client for the RingCentral
// team-messaging and task APIs, scoped to the calls the relay makes on a
// user's behalf.
package ringcentral

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/kordite/voicerelay/internal/models"
)

const (
	// DefaultServerURL is the RingCentral production API origin.
	DefaultServerURL = "https://platform.ringcentral.com"

	requestTimeout = 30 * time.Second
	maxRetries     = 3
)

// Client calls the RingCentral REST API. Per-user authorization comes from
// the oauth2 config's token source, which refreshes tokens transparently.
type Client struct {
	serverURL string
	oauth     *oauth2.Config

	// httpClient is the base transport handed to oauth2; replaced in tests.
	httpClient *http.Client
}

// NewClient creates a RingCentral API client.
func NewClient(serverURL string, oauthConfig *oauth2.Config) *Client {
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	return &Client{
		serverURL:  strings.TrimRight(serverURL, "/"),
		oauth:      oauthConfig,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// apiError is a non-2xx platform response. 4xx responses are permanent,
// 5xx are retried.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("ringcentral API error: status %d: %s", e.Status, e.Body)
}

func (c *Client) do(ctx context.Context, user *models.User, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	authClient := oauth2.NewClient(ctx, c.oauth.TokenSource(ctx, user.Token))

	operation := func() ([]byte, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, reader)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := authClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode >= 400 {
			apiErr := &apiError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return nil, backoff.Permanent(apiErr)
			}
			return nil, apiErr
		}

		return data, nil
	}

	data, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxRetries),
	)
	if err != nil {
		return err
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
		}
	}

	return nil
}

type chatRecord struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Members     []struct {
		ID string `json:"id"`
	} `json:"members"`
}

func (r chatRecord) toModel() models.Chat {
	chat := models.Chat{
		ID:          r.ID,
		Type:        r.Type,
		Name:        r.Name,
		Description: r.Description,
	}
	for _, m := range r.Members {
		chat.MemberIDs = append(chat.MemberIDs, m.ID)
	}
	return chat
}

// ListChats returns the user's chat roster, unenriched.
func (c *Client) ListChats(ctx context.Context, user *models.User) ([]models.Chat, error) {
	return c.listChats(ctx, user, "")
}

func (c *Client) listChats(ctx context.Context, user *models.User, chatType string) ([]models.Chat, error) {
	path := "/team-messaging/v1/chats"
	if chatType != "" {
		path += "?type=" + url.QueryEscape(chatType)
	}

	var result struct {
		Records []chatRecord `json:"records"`
	}
	if err := c.do(ctx, user, http.MethodGet, path, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}

	chats := make([]models.Chat, 0, len(result.Records))
	for _, record := range result.Records {
		chats = append(chats, record.toModel())
	}
	return chats, nil
}

// ListMembers returns the account member directory for assignee resolution.
func (c *Client) ListMembers(ctx context.Context, user *models.User) ([]models.Member, error) {
	var result struct {
		Records []struct {
			ID        string `json:"id"`
			FirstName string `json:"firstName"`
			LastName  string `json:"lastName"`
			Email     string `json:"email"`
		} `json:"records"`
	}
	if err := c.do(ctx, user, http.MethodGet, "/restapi/v1.0/account/~/directory/entries?type=User", nil, &result); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	members := make([]models.Member, 0, len(result.Records))
	for _, record := range result.Records {
		members = append(members, models.Member{
			ID:    record.ID,
			Name:  strings.TrimSpace(record.FirstName + " " + record.LastName),
			Email: record.Email,
		})
	}
	return members, nil
}

// PostMessage posts a text message to the given chat.
func (c *Client) PostMessage(ctx context.Context, user *models.User, chatID, text string) error {
	body := map[string]string{"text": text}
	path := fmt.Sprintf("/team-messaging/v1/chats/%s/posts", chatID)
	if err := c.do(ctx, user, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("failed to post message: %w", err)
	}
	return nil
}

// CreateTask creates a task in the chat shared with the assignee: an
// existing or new DM when the task is assigned, the user's personal chat
// otherwise.
func (c *Client) CreateTask(ctx context.Context, user *models.User, title, assigneeID, dueDate, dueTime string) error {
	chatID, err := c.taskChat(ctx, user, assigneeID)
	if err != nil {
		return err
	}

	body := map[string]any{"subject": title}
	if assigneeID != "" {
		body["assignees"] = []map[string]string{{"id": assigneeID}}
	}
	if dueDate != "" {
		if dueTime != "" {
			body["dueDate"] = fmt.Sprintf("%sT%s:00Z", dueDate, dueTime)
		} else {
			body["dueDate"] = dueDate + "T23:59:59Z"
		}
	}

	path := fmt.Sprintf("/restapi/v1.0/glip/chats/%s/tasks", chatID)
	if err := c.do(ctx, user, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// taskChat finds a chat to hold the task: a Direct chat with the assignee
// (created on demand), or the personal chat for unassigned tasks.
func (c *Client) taskChat(ctx context.Context, user *models.User, assigneeID string) (string, error) {
	if assigneeID == "" {
		return c.personalChat(ctx, user)
	}

	directs, err := c.listChats(ctx, user, "Direct")
	if err != nil {
		return "", err
	}
	for _, chat := range directs {
		for _, memberID := range chat.MemberIDs {
			if memberID == assigneeID {
				return chat.ID, nil
			}
		}
	}

	var created chatRecord
	body := map[string]any{
		"type":    "Direct",
		"members": []map[string]string{{"id": assigneeID}},
	}
	if err := c.do(ctx, user, http.MethodPost, "/team-messaging/v1/chats", body, &created); err != nil {
		return "", fmt.Errorf("failed to create direct chat: %w", err)
	}
	log.Debug().Str("chat_id", created.ID).Str("assignee_id", assigneeID).Msg("Created direct chat for task")
	return created.ID, nil
}

func (c *Client) personalChat(ctx context.Context, user *models.User) (string, error) {
	personals, err := c.listChats(ctx, user, "Personal")
	if err != nil {
		return "", err
	}
	if len(personals) > 0 {
		return personals[0].ID, nil
	}

	var created chatRecord
	if err := c.do(ctx, user, http.MethodPost, "/team-messaging/v1/chats", map[string]string{"type": "Personal"}, &created); err != nil {
		return "", fmt.Errorf("failed to create personal chat: %w", err)
	}
	return created.ID, nil
}

// CreateEvent creates a calendar event in the user's personal chat.
func (c *Client) CreateEvent(ctx context.Context, user *models.User, name, startDate, startTime string, durationMinutes int, notes string) error {
	chatID, err := c.personalChat(ctx, user)
	if err != nil {
		return err
	}

	start, err := eventStart(startDate, startTime)
	if err != nil {
		return err
	}
	if durationMinutes <= 0 {
		durationMinutes = 60
	}
	end := start.Add(time.Duration(durationMinutes) * time.Minute)

	body := map[string]any{
		"title":     name,
		"startTime": start.Format(time.RFC3339),
		"endTime":   end.Format(time.RFC3339),
	}
	if notes != "" {
		body["description"] = notes
	}

	path := fmt.Sprintf("/team-messaging/v1/chats/%s/events", chatID)
	if err := c.do(ctx, user, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

// eventStart combines the extracted date and time fields. A missing date
// means today, a missing time means the top of the next hour.
func eventStart(startDate, startTime string) (time.Time, error) {
	now := time.Now()

	if startDate == "" {
		startDate = now.Format(time.DateOnly)
	}
	if startTime == "" {
		next := now.Add(time.Hour).Truncate(time.Hour)
		startTime = next.Format("15:04")
	}

	start, err := time.ParseInLocation("2006-01-02 15:04", startDate+" "+startTime, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid event start %q %q: %w", startDate, startTime, err)
	}
	return start, nil
}
