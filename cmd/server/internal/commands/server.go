package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kordite/voicerelay/internal/extract"
	"github.com/kordite/voicerelay/internal/logger"
	"github.com/kordite/voicerelay/internal/login"
	"github.com/kordite/voicerelay/internal/models"
	"github.com/kordite/voicerelay/internal/relay"
	"github.com/kordite/voicerelay/internal/ringcentral"
	"github.com/kordite/voicerelay/internal/server"
	"github.com/kordite/voicerelay/internal/store"
	memorystore "github.com/kordite/voicerelay/internal/store/memory"
	postgresstore "github.com/kordite/voicerelay/internal/store/postgres"
	"github.com/kordite/voicerelay/internal/trigger"
)

type ServerCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"VOICERELAY_LISTEN"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"*" env:"VOICERELAY_CORS_ORIGINS"`

	// RingCentral OAuth configuration
	ClientID     string `help:"RingCentral client ID" default:"" env:"VOICERELAY_RC_CLIENT_ID"`
	ClientSecret string `help:"RingCentral client secret" default:"" env:"VOICERELAY_RC_CLIENT_SECRET"`
	RedirectURL  string `help:"RingCentral OAuth redirect URL" default:"" env:"VOICERELAY_RC_REDIRECT_URL"`
	RCServerURL  string `help:"RingCentral API server URL" default:"https://platform.ringcentral.com" env:"VOICERELAY_RC_SERVER_URL"`

	// Extraction configuration
	GeminiAPIKey string `help:"Gemini API key for intent extraction" default:"" env:"VOICERELAY_GEMINI_API_KEY"`
	GeminiModel  string `help:"Gemini model for intent extraction" default:"" env:"VOICERELAY_GEMINI_MODEL"`

	// Relay tuning
	SegmentThreshold int           `help:"segment count that forces a commit" default:"5" env:"VOICERELAY_SEGMENT_THRESHOLD"`
	IdleTimeout      time.Duration `help:"silence duration that commits an episode" default:"5s" env:"VOICERELAY_IDLE_TIMEOUT"`
	TriggersFile     string        `help:"path to a YAML file overriding trigger phrases" default:"" env:"VOICERELAY_TRIGGERS_FILE"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"VOICERELAY_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"VOICERELAY_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

// rosterFetcher fetches and enriches the full chat roster for a freshly
// linked account.
type rosterFetcher struct {
	client *ringcentral.Client
}

func (f rosterFetcher) ListChats(ctx context.Context, user *models.User) ([]models.Chat, error) {
	chats, err := f.client.ListChats(ctx, user)
	if err != nil {
		return nil, err
	}
	return f.client.EnrichChats(ctx, user, chats), nil
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx := context.Background()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.GeminiAPIKey == "" {
		return errors.New("Gemini API key is required (--gemini-api-key or VOICERELAY_GEMINI_API_KEY)")
	}

	// Create stores based on store type
	var (
		sessionStore store.SessionStore
		userStore    store.UserStore
	)

	switch c.StoreType {
	case "postgres":
		if err := c.PostgresStore.Validate(); err != nil {
			return fmt.Errorf("failed to validate postgres flags: %w", err)
		}

		pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
			ConnString:      c.PostgresStore.ConnString,
			MaxConns:        c.PostgresStore.MaxConns,
			MinConns:        c.PostgresStore.MinConns,
			MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
			MaxConnIdleTime: c.PostgresStore.MaxConnIdleTime,
		})
		if err != nil {
			return fmt.Errorf("failed to create connection pool: %w", err)
		}
		defer pool.Close()

		if c.PostgresStore.AutoMigrate {
			if err := postgresstore.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		}

		sessionStore = postgresstore.NewSessionStore(pool)
		userStore = postgresstore.NewUserStore(pool)
		log.Info().Msg("Using PostgreSQL stores")

	default:
		sessionStore = memorystore.NewSessionStore()
		userStore = memorystore.NewUserStore()
		log.Info().Msg("Using in-memory stores")
	}

	// Trigger phrase table, optionally overridden from YAML
	detector := trigger.NewDetector()
	if c.TriggersFile != "" {
		table, err := trigger.LoadTable(c.TriggersFile)
		if err != nil {
			return fmt.Errorf("failed to load trigger table: %w", err)
		}
		detector = trigger.NewDetectorFromTable(table)
		log.Info().Str("path", c.TriggersFile).Msg("Loaded trigger phrase overrides")
	}

	extractor, err := extract.NewGeminiExtractor(ctx, c.GeminiAPIKey, c.GeminiModel)
	if err != nil {
		return fmt.Errorf("failed to create extractor: %w", err)
	}

	oauthConfig := login.NewConfig(c.ClientID, c.ClientSecret, c.RedirectURL, c.RCServerURL)
	rcClient := ringcentral.NewClient(c.RCServerURL, oauthConfig)

	rcLogin, err := login.NewRingCentral(oauthConfig, userStore, rosterFetcher{client: rcClient})
	if err != nil {
		return fmt.Errorf("failed to initialize RingCentral OAuth: %w", err)
	}

	dispatcher := relay.NewDispatcher(sessionStore, userStore, extractor, rcClient)
	accumulator := relay.NewAccumulator(detector, sessionStore, dispatcher, c.SegmentThreshold)

	monitor := relay.NewIdleMonitor(sessionStore, dispatcher, c.IdleTimeout, relay.DefaultMaxProcessingAge)
	monitor.Start(ctx)
	defer monitor.Stop()

	srv := server.New(server.Config{
		Sessions:    sessionStore,
		Users:       userStore,
		Accumulator: accumulator,
		Login:       rcLogin,
		Sink:        rcClient,
		CORSOrigins: c.CORSOrigins,
	})

	log.Info().Str("addr", c.Listen).Msg("Starting HTTP server")
	return configureHTTPServer(c.Listen, srv.Handler(log)).ListenAndServe()
}
