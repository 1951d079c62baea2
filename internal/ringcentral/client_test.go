package ringcentral

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/kordite/voicerelay/internal/models"
)

func testUser() *models.User {
	return &models.User{
		UID:   "u1",
		Token: &oauth2.Token{AccessToken: "test-token", TokenType: "bearer"},
	}
}

func newTestClient(server *httptest.Server) *Client {
	return NewClient(server.URL, &oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:  server.URL + "/restapi/oauth/authorize",
			TokenURL: server.URL + "/restapi/oauth/token",
		},
	})
}

func TestListChats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/team-messaging/v1/chats", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"records": []map[string]any{
				{"id": "1", "type": "Team", "name": "general"},
				{"id": "2", "type": "Direct", "members": []map[string]string{{"id": "77"}, {"id": "88"}}},
			},
		})
	}))
	defer server.Close()

	chats, err := newTestClient(server).ListChats(context.Background(), testUser())
	require.NoError(t, err)
	require.Len(t, chats, 2)
	require.Equal(t, "general", chats[0].Name)
	require.Equal(t, []string{"77", "88"}, chats[1].MemberIDs)
}

func TestRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"records": []any{}})
	}))
	defer server.Close()

	_, err := newTestClient(server).ListChats(context.Background(), testUser())
	require.NoError(t, err)
	require.Equal(t, int32(3), attempts.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"insufficient scope"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server).ListChats(context.Background(), testUser())
	require.Error(t, err)
	require.Contains(t, err.Error(), "403")
	require.Equal(t, int32(1), attempts.Load())
}

func TestPostMessage(t *testing.T) {
	var body map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/team-messaging/v1/chats/123/posts", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	err := newTestClient(server).PostMessage(context.Background(), testUser(), "123", "hello team")
	require.NoError(t, err)
	require.Equal(t, "hello team", body["text"])
}

func TestListMembers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/restapi/v1.0/account/~/directory/entries", r.URL.Path)
		require.Equal(t, "User", r.URL.Query().Get("type"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"records": []map[string]string{
				{"id": "77", "firstName": "Jamie", "lastName": "Park", "email": "jamie@example.com"},
			},
		})
	}))
	defer server.Close()

	members, err := newTestClient(server).ListMembers(context.Background(), testUser())
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, "Jamie Park", members[0].Name)
}

func TestCreateTaskAssignedUsesDirectChat(t *testing.T) {
	var taskBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/team-messaging/v1/chats" && r.Method == http.MethodGet:
			require.Equal(t, "Direct", r.URL.Query().Get("type"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"records": []map[string]any{
					{"id": "dm-1", "type": "Direct", "members": []map[string]string{{"id": "me"}, {"id": "77"}}},
				},
			})
		case r.URL.Path == "/restapi/v1.0/glip/chats/dm-1/tasks":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&taskBody))
			w.WriteHeader(http.StatusCreated)
		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	err := newTestClient(server).CreateTask(context.Background(), testUser(), "Review budget", "77", "2026-09-04", "15:00")
	require.NoError(t, err)
	require.Equal(t, "Review budget", taskBody["subject"])
	require.Equal(t, "2026-09-04T15:00:00Z", taskBody["dueDate"])
}

func TestCreateTaskCreatesDirectChatWhenMissing(t *testing.T) {
	var created bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/team-messaging/v1/chats" && r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{"records": []any{}})
		case r.URL.Path == "/team-messaging/v1/chats" && r.Method == http.MethodPost:
			created = true
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "dm-new", "type": "Direct"})
		case r.URL.Path == "/restapi/v1.0/glip/chats/dm-new/tasks":
			w.WriteHeader(http.StatusCreated)
		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	err := newTestClient(server).CreateTask(context.Background(), testUser(), "Quick thing", "77", "", "")
	require.NoError(t, err)
	require.True(t, created)
}

func TestCreateTaskUnassignedUsesPersonalChat(t *testing.T) {
	var taskBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/team-messaging/v1/chats" && r.Method == http.MethodGet:
			require.Equal(t, "Personal", r.URL.Query().Get("type"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"records": []map[string]any{{"id": "personal-1", "type": "Personal"}},
			})
		case r.URL.Path == "/restapi/v1.0/glip/chats/personal-1/tasks":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&taskBody))
			w.WriteHeader(http.StatusCreated)
		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	err := newTestClient(server).CreateTask(context.Background(), testUser(), "Note to self", "", "2026-09-04", "")
	require.NoError(t, err)
	require.Equal(t, "2026-09-04T23:59:59Z", taskBody["dueDate"])
	_, hasAssignees := taskBody["assignees"]
	require.False(t, hasAssignees)
}

func TestCreateEvent(t *testing.T) {
	var eventBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/team-messaging/v1/chats" && r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"records": []map[string]any{{"id": "personal-1", "type": "Personal"}},
			})
		case r.URL.Path == "/team-messaging/v1/chats/personal-1/events":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&eventBody))
			w.WriteHeader(http.StatusCreated)
		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	err := newTestClient(server).CreateEvent(context.Background(), testUser(), "Sprint review", "2026-09-04", "10:00", 30, "bring demos")
	require.NoError(t, err)
	require.Equal(t, "Sprint review", eventBody["title"])
	require.Equal(t, "bring demos", eventBody["description"])

	start, ok := eventBody["startTime"].(string)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(start, "2026-09-04T10:00:00"))
	end, ok := eventBody["endTime"].(string)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(end, "2026-09-04T10:30:00"))
}

func TestEnrichChats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/restapi/v1.0/account/~/extension/~":
			_ = json.NewEncoder(w).Encode(map[string]any{"id": 100})
		case "/team-messaging/v1/persons/100":
			_ = json.NewEncoder(w).Encode(map[string]string{"firstName": "Me", "lastName": "Myself"})
		case "/team-messaging/v1/persons/77":
			_ = json.NewEncoder(w).Encode(map[string]string{"firstName": "Jamie", "lastName": "Park"})
		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	chats := []models.Chat{
		{ID: "1", Type: "Team", Name: "general"},
		{ID: "2", Type: "Team", Description: "ops planning"},
		{ID: "3", Type: "Direct", MemberIDs: []string{"100", "glip-bot", "77"}},
		{ID: "4", Type: "Personal"},
	}

	enriched := newTestClient(server).EnrichChats(context.Background(), testUser(), chats)
	require.Len(t, enriched, 4)
	require.Equal(t, "general", enriched[0].DisplayName)
	require.Equal(t, "ops planning", enriched[1].DisplayName)
	// the counterpart, not the current user, names the DM
	require.Equal(t, "Jamie Park", enriched[2].DisplayName)
	require.Equal(t, "Personal Notes", enriched[3].DisplayName)
}
