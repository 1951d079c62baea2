package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/kordite/voicerelay/internal/models"
	"github.com/kordite/voicerelay/internal/store"
)

// UserStore implements store.UserStore using PostgreSQL. Token and chat
// roster are stored as JSONB documents.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new PostgreSQL-backed user store.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{
		pool: pool,
	}
}

// Save upserts the user record, preserving created_at on conflict.
func (s *UserStore) Save(ctx context.Context, user *models.User) error {
	var token []byte
	if user.Token != nil {
		var err error
		token, err = json.Marshal(user.Token)
		if err != nil {
			return fmt.Errorf("failed to marshal token: %w", err)
		}
	}

	chats, err := json.Marshal(user.AvailableChats)
	if err != nil {
		return fmt.Errorf("failed to marshal chats: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (uid, token, available_chats, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (uid) DO UPDATE
		SET token = EXCLUDED.token,
			available_chats = EXCLUDED.available_chats,
			updated_at = now()
	`, user.UID, token, chats)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", mapPostgresError(err))
	}

	log.Debug().Str("uid", user.UID).Msg("Saved user")
	return nil
}

// Get returns the user or store.ErrUserNotFound.
func (s *UserStore) Get(ctx context.Context, uid string) (*models.User, error) {
	var token, chats []byte
	user := &models.User{UID: uid}

	err := s.pool.QueryRow(ctx, `
		SELECT token, available_chats, created_at, updated_at
		FROM users
		WHERE uid = $1
	`, uid).Scan(&token, &chats, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", mapPostgresError(err))
	}

	if len(token) > 0 {
		user.Token = &oauth2.Token{}
		if err := json.Unmarshal(token, user.Token); err != nil {
			return nil, fmt.Errorf("failed to unmarshal token: %w", err)
		}
	}
	if len(chats) > 0 {
		if err := json.Unmarshal(chats, &user.AvailableChats); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chats: %w", err)
		}
	}

	return user, nil
}

// Delete removes the user record.
func (s *UserStore) Delete(ctx context.Context, uid string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM users WHERE uid = $1`, uid)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrUserNotFound
	}

	log.Debug().Str("uid", uid).Msg("Deleted user")
	return nil
}
