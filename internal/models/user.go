package models

import (
	"time"

	"golang.org/x/oauth2"
)

// User represents a wearable-device owner who has linked a RingCentral
// account. One record per uid; the store is the sole system of record for
// credentials and the cached chat roster.
type User struct {
	UID   string
	Token *oauth2.Token // RingCentral OAuth token set (access/refresh/expiry)

	// AvailableChats is the roster cached at login time and refreshed on
	// demand; used for display only, commits always fetch a fresh roster.
	AvailableChats []Chat

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAuthenticated returns true if the user holds a usable token set.
func (u *User) IsAuthenticated() bool {
	return u != nil && u.Token != nil && u.Token.AccessToken != ""
}
