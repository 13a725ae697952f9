package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/habit-rewards/internal/auth"
	"github.com/sakif/habit-rewards/internal/model"
	"github.com/sakif/habit-rewards/internal/repository"
)

// AuthService orchestrates the OAuth callback:
//
//	AuthHandler (HTTP) -> AuthService -> IdentityResolver (store)
//	                                  -> TokenService (JWT)
//
// It does not set cookies or read requests; that is the handler's job.
type AuthService struct {
	resolver *IdentityResolver
	tokens   *auth.TokenService
	store    repository.Store
	logger   *slog.Logger
}

// NewAuthService wires the dependencies. Call this from the server's
// composition root.
func NewAuthService(
	resolver *IdentityResolver,
	tokens *auth.TokenService,
	store repository.Store,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		resolver: resolver,
		tokens:   tokens,
		store:    store,
		logger:   logger,
	}
}

// AuthResult bundles the canonical profile and the signed session token so
// the handler can set the cookie and respond in one step.
type AuthResult struct {
	User  *model.UserProfile
	Token string
}

// LoginOrRegisterGoogle resolves a Google identity and issues a session.
// The token subject is the canonical profile id, which may differ from the
// subject Google sent this time.
func (s *AuthService) LoginOrRegisterGoogle(ctx context.Context, ext *model.ExternalIdentity) (*AuthResult, error) {
	if ext == nil {
		return nil, fmt.Errorf("service/auth: external identity must not be nil")
	}

	user, err := s.resolver.Resolve(ctx, *ext)
	if err != nil {
		return nil, fmt.Errorf("service/auth: resolving identity: %w", err)
	}

	token, err := s.tokens.Generate(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	s.logger.Info("user authenticated via Google",
		slog.String("userID", user.ID),
		slog.String("role", string(user.Role)),
	)
	return &AuthResult{User: user, Token: token}, nil
}

// CurrentUser returns the stored profile for the session's user id.
func (s *AuthService) CurrentUser(ctx context.Context, id string) (*model.UserProfile, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}
	user, err := requireProfile(ctx, s.store, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}
