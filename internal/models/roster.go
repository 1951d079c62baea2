package models

// Chat is one entry of a user's chat roster on the remote platform.
type Chat struct {
	ID          string `json:"id"`
	Type        string `json:"type"` // Team, Direct, Personal, ...
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`

	// DisplayName is filled during enrichment: for DMs it is the counterpart
	// person's name, for teams the team name.
	DisplayName string   `json:"displayName,omitempty"`
	MemberIDs   []string `json:"memberIds,omitempty"`
}

// BestName returns the most human-friendly label for the chat.
func (c Chat) BestName() string {
	switch {
	case c.DisplayName != "":
		return c.DisplayName
	case c.Name != "":
		return c.Name
	case c.Description != "":
		return c.Description
	default:
		return "Chat " + c.ID
	}
}

// Member is one entry of the account's member directory, used to resolve
// task assignees.
type Member struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// BestName returns the label used for fuzzy assignee matching.
func (m Member) BestName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.Email
}
