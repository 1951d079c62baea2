// Package login implements the RingCentral three-legged OAuth flow that
// links a device owner's uid to a RingCentral account.
package login

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/kordite/voicerelay/internal/models"
	"github.com/kordite/voicerelay/internal/store"
)

var (
	ErrInvalidState = errors.New("invalid oauth state")
)

// stateTTL bounds how long a pending authorize redirect stays valid.
const stateTTL = 10 * time.Minute

// ChatLister fetches the initial chat roster after a successful login.
type ChatLister interface {
	ListChats(ctx context.Context, user *models.User) ([]models.Chat, error)
}

// RingCentral drives the authorize/callback exchange and persists the
// resulting token set.
type RingCentral struct {
	config *oauth2.Config
	users  store.UserStore
	chats  ChatLister

	mu     sync.Mutex
	states map[string]stateEntry // state nonce -> pending uid
}

type stateEntry struct {
	uid       string
	expiresAt time.Time
}

// NewConfig builds the oauth2 config for a RingCentral app. The same config
// backs both the login flow and API token refresh.
func NewConfig(clientID, clientSecret, redirectURL, serverURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  serverURL + "/restapi/oauth/authorize",
			TokenURL: serverURL + "/restapi/oauth/token",
		},
	}
}

// NewRingCentral creates the login flow handler.
func NewRingCentral(config *oauth2.Config, users store.UserStore, chats ChatLister) (*RingCentral, error) {
	if config.ClientID == "" || config.ClientSecret == "" || config.RedirectURL == "" {
		return nil, fmt.Errorf("client ID, client secret, and redirect URL are required")
	}

	return &RingCentral{
		config: config,
		users:  users,
		chats:  chats,
		states: make(map[string]stateEntry),
	}, nil
}

// AuthURL records a pending state nonce for uid and returns the authorize
// redirect target.
func (r *RingCentral) AuthURL(uid string) string {
	state := uuid.NewString()

	r.mu.Lock()
	r.pruneLocked()
	r.states[state] = stateEntry{uid: uid, expiresAt: time.Now().Add(stateTTL)}
	r.mu.Unlock()

	return r.config.AuthCodeURL(state)
}

// pruneLocked drops expired pending states. Caller holds the mutex.
func (r *RingCentral) pruneLocked() {
	now := time.Now()
	for state, entry := range r.states {
		if now.After(entry.expiresAt) {
			delete(r.states, state)
		}
	}
}

// consumeState resolves and invalidates a state nonce.
func (r *RingCentral) consumeState(state string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.states[state]
	if !exists || time.Now().After(entry.expiresAt) {
		return "", ErrInvalidState
	}
	delete(r.states, state)
	return entry.uid, nil
}

// HandleCallback exchanges the authorization code, fetches the initial chat
// roster, and persists the linked user. Returns the uid and roster size.
func (r *RingCentral) HandleCallback(ctx context.Context, code, state string) (string, int, error) {
	uid, err := r.consumeState(state)
	if err != nil {
		return "", 0, err
	}

	token, err := r.config.Exchange(ctx, code)
	if err != nil {
		return "", 0, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	user := &models.User{
		UID:   uid,
		Token: token,
	}

	// roster fetch is best-effort: a failure here should not lose the link
	chats, err := r.chats.ListChats(ctx, user)
	if err != nil {
		log.Warn().Err(err).Str("uid", uid).Msg("Could not fetch initial chat roster")
	} else {
		user.AvailableChats = chats
	}

	if err := r.users.Save(ctx, user); err != nil {
		return "", 0, fmt.Errorf("failed to save user: %w", err)
	}

	log.Info().Str("uid", uid).Int("chats", len(user.AvailableChats)).Msg("Linked RingCentral account")
	return uid, len(user.AvailableChats), nil
}

// LoginHandler redirects the browser to the RingCentral authorize page.
func (r *RingCentral) LoginHandler(w http.ResponseWriter, req *http.Request) {
	uid := req.URL.Query().Get("uid")
	if uid == "" {
		http.Error(w, "Missing uid parameter", http.StatusBadRequest)
		return
	}

	http.Redirect(w, req, r.AuthURL(uid), http.StatusFound)
}

// CallbackHandler completes the OAuth exchange and sends the browser back to
// the settings page.
func (r *RingCentral) CallbackHandler(w http.ResponseWriter, req *http.Request) {
	code := req.URL.Query().Get("code")
	state := req.URL.Query().Get("state")
	if code == "" || state == "" {
		http.Error(w, "Missing code or state parameter", http.StatusBadRequest)
		return
	}

	uid, _, err := r.HandleCallback(req.Context(), code, state)
	if err != nil {
		if errors.Is(err, ErrInvalidState) {
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			return
		}
		log.Error().Err(err).Msg("OAuth callback failed")
		http.Error(w, "Authentication failed", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, req, "/?uid="+uid+"&connected=1", http.StatusFound)
}
