package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"plantatlas/pkg/domain"
	"plantatlas/pkg/queue"
	"plantatlas/pkg/store"
)

// DeletionQueue accepts account-deletion jobs. The api service consumes
// them and performs the cascade over the user's records and images.
type DeletionQueue interface {
	Enqueue(ctx context.Context, userID string) (queue.JobStatus, error)
	GetJob(ctx context.Context, jobID string) (queue.JobStatus, bool, error)
}

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL         string
	RedisAddr           string
	RedisPassword       string
	SessionTTL          time.Duration
	JWTPrivateKeyPath   string
	JWTKeyID            string
	JWTVerifyPublicKeys map[string]string
	JWTIssuer           string
	JWTAudience         string
	JWTLeeway           time.Duration
	Identity            IdentityVerifier
	Store               store.Store
	Sessions            store.SessionStore
	Deletions           DeletionQueue
}

// App wires together storage, session issuance, and identity verification.
type App struct {
	store     store.Store
	sessions  store.SessionStore
	identity  IdentityVerifier
	deletions DeletionQueue
}

// New constructs the application with database storage and session management.
func New(cfg Config) (*App, error) {
	if cfg.Identity == nil {
		return nil, fmt.Errorf("identity verifier required")
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 30 * 24 * time.Hour
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		if strings.TrimSpace(cfg.JWTPrivateKeyPath) == "" {
			return nil, fmt.Errorf("jwtPrivateKeyPath is required")
		}
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("redisAddr is required for jwt+redis session strategy")
		}
		revoker := store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
		jwtStore, err := store.NewJWTSessionStore(
			cfg.JWTPrivateKeyPath,
			cfg.JWTKeyID,
			cfg.JWTVerifyPublicKeys,
			cfg.SessionTTL,
			revoker,
			store.JWTOptions{
				Issuer:   cfg.JWTIssuer,
				Audience: cfg.JWTAudience,
				Leeway:   cfg.JWTLeeway,
			},
		)
		if err != nil {
			return nil, fmt.Errorf("init rs256 jwt session store: %w", err)
		}
		sessionStore = jwtStore
	}

	deletions := cfg.Deletions
	if deletions == nil {
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("redisAddr is required for the deletion queue")
		}
		q, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("init deletion queue: %w", err)
		}
		deletions = q
	}

	return &App{
		store:     dataStore,
		sessions:  sessionStore,
		identity:  cfg.Identity,
		deletions: deletions,
	}, nil
}

// SignIn exchanges an external identity token for a session. The account is
// created on first sign-in; returning users are matched by provider and
// subject.
func (a *App) SignIn(provider, identityToken, nickname string) (domain.User, string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	identityToken = strings.TrimSpace(identityToken)
	if provider == "" || identityToken == "" {
		return domain.User{}, "", ErrProviderAndTokenRequired
	}
	subject, err := a.identity.Verify(provider, identityToken)
	if err != nil {
		return domain.User{}, "", err
	}
	user, found, err := a.store.GetUserByIdentity(provider, subject)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !found {
		user, err = a.createUser(provider, subject, nickname)
		if err != nil {
			return domain.User{}, "", err
		}
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session token: %w", err)
	}
	return user, token, nil
}

// UserFromToken resolves a user from a session token.
func (a *App) UserFromToken(token string) (domain.User, bool) {
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false
	}
	user, found, err := a.store.GetUserByID(uid)
	if err != nil || !found {
		return domain.User{}, false
	}
	return user, true
}

// Logout invalidates the session token.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// RequestAccountDeletion enqueues the deletion cascade for user and revokes
// every session the account still holds. The record and image cleanup runs
// asynchronously in the api service's worker.
func (a *App) RequestAccountDeletion(ctx context.Context, user domain.User, token string) (queue.JobStatus, error) {
	job, err := a.deletions.Enqueue(ctx, user.ID)
	if err != nil {
		return queue.JobStatus{}, fmt.Errorf("enqueue deletion: %w", err)
	}
	if revoker, ok := a.sessions.(store.UserSessionRevoker); ok {
		if err := revoker.RevokeUserSessions(user.ID, time.Now().UTC()); err != nil {
			return queue.JobStatus{}, fmt.Errorf("revoke sessions: %w", err)
		}
	} else if err := a.sessions.DeleteSession(token); err != nil {
		return queue.JobStatus{}, fmt.Errorf("delete session: %w", err)
	}
	return job, nil
}

// DeletionStatus reports the state of a previously requested deletion job.
func (a *App) DeletionStatus(ctx context.Context, jobID string) (queue.JobStatus, bool, error) {
	return a.deletions.GetJob(ctx, jobID)
}

// JWKS returns public signing keys when the session store supports it.
func (a *App) JWKS() []store.JWK {
	provider, ok := a.sessions.(store.JWKSProvider)
	if !ok {
		return nil
	}
	return provider.JWKS()
}

func (a *App) createUser(provider, subject, nickname string) (domain.User, error) {
	now := time.Now().UTC()
	user := domain.User{
		ID:        store.NewID(),
		Provider:  provider,
		Subject:   subject,
		Nickname:  strings.TrimSpace(nickname),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}
