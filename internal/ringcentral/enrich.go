package ringcentral

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/kordite/voicerelay/internal/models"
)

// systemAccountPrefix marks bot/system members that never have a person record.
const systemAccountPrefix = "glip-"

// CurrentUserID returns the extension id of the authenticated user, used to
// pick the counterpart in direct chats.
func (c *Client) CurrentUserID(ctx context.Context, user *models.User) (string, error) {
	var result struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, user, http.MethodGet, "/restapi/v1.0/account/~/extension/~", nil, &result); err != nil {
		return "", fmt.Errorf("failed to get current user: %w", err)
	}
	return fmt.Sprintf("%d", result.ID), nil
}

// EnrichChats fills DisplayName on each chat. Direct chats get the
// counterpart person's name, which requires one person lookup per real
// member; lookup failures degrade to a generic label rather than failing the
// whole roster.
func (c *Client) EnrichChats(ctx context.Context, user *models.User, chats []models.Chat) []models.Chat {
	currentUserID, err := c.CurrentUserID(ctx, user)
	if err != nil {
		log.Warn().Err(err).Msg("Could not resolve current user id for DM enrichment")
	}

	enriched := make([]models.Chat, 0, len(chats))
	for _, chat := range chats {
		switch chat.Type {
		case "Direct":
			chat.DisplayName = c.directChatName(ctx, user, chat, currentUserID)
		case "Team":
			if chat.Name != "" {
				chat.DisplayName = chat.Name
			} else if chat.Description != "" {
				chat.DisplayName = chat.Description
			} else {
				chat.DisplayName = "Team Chat " + chat.ID
			}
		case "Personal":
			chat.DisplayName = "Personal Notes"
		default:
			chat.DisplayName = chat.BestName()
		}
		enriched = append(enriched, chat)
	}

	return enriched
}

func (c *Client) directChatName(ctx context.Context, user *models.User, chat models.Chat, currentUserID string) string {
	type personName struct {
		id   string
		name string
	}

	var people []personName
	for _, memberID := range chat.MemberIDs {
		if strings.HasPrefix(memberID, systemAccountPrefix) {
			continue
		}

		name, err := c.personName(ctx, user, memberID)
		if err != nil {
			// likely a bot or deleted user, skip it
			log.Debug().Err(err).Str("member_id", memberID).Msg("Could not fetch chat member")
			continue
		}
		if name != "" {
			people = append(people, personName{id: memberID, name: name})
		}
	}

	for _, person := range people {
		if person.id != currentUserID {
			return person.name
		}
	}
	if len(people) > 0 {
		return people[0].name
	}
	return "DM " + chat.ID
}

func (c *Client) personName(ctx context.Context, user *models.User, personID string) (string, error) {
	var result struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
	}
	path := "/team-messaging/v1/persons/" + personID
	if err := c.do(ctx, user, http.MethodGet, path, nil, &result); err != nil {
		return "", err
	}

	name := strings.TrimSpace(result.FirstName + " " + result.LastName)
	if name == "" {
		name = result.Email
	}
	return name, nil
}
