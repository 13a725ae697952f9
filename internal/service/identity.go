// Package service holds the business logic between the HTTP handlers and
// the key-value store:
//
//	handler (HTTP) -> service (rules) -> repository.Store (GET/SET/DEL/SCAN)
//
// Services never see HTTP types. They return apperror values that the
// handler layer maps to status codes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/habit-rewards/internal/apperror"
	"github.com/sakif/habit-rewards/internal/keys"
	"github.com/sakif/habit-rewards/internal/model"
	"github.com/sakif/habit-rewards/internal/repository"
)

// IdentityResolver maps an external OAuth identity to a stable internal
// profile and keeps the email pointer consistent with it.
//
// The email is the natural key. The first subject id seen for an email
// becomes the profile id; later logins with a different subject for the same
// email resolve to that original id.
type IdentityResolver struct {
	store      repository.Store
	adminEmail string
	logger     *slog.Logger
}

// NewIdentityResolver creates a resolver. Profiles created for adminEmail get
// the admin role.
func NewIdentityResolver(store repository.Store, adminEmail string, logger *slog.Logger) *IdentityResolver {
	return &IdentityResolver{
		store:      store,
		adminEmail: model.NormalizeEmail(adminEmail),
		logger:     logger,
	}
}

// Resolve runs once per login and returns the canonical profile.
func (r *IdentityResolver) Resolve(ctx context.Context, ext model.ExternalIdentity) (*model.UserProfile, error) {
	email := model.NormalizeEmail(ext.Email)
	if email == "" {
		return nil, apperror.Unauthorized("identity provider returned no email address")
	}
	subject := strings.TrimSpace(ext.Subject)
	if subject == "" {
		return nil, apperror.Unauthorized("identity provider returned no subject id")
	}
	ext.Subject = subject

	ownerID, err := lookupPointer(ctx, r.store, email)
	if err != nil {
		return nil, fmt.Errorf("service/identity: %w", err)
	}
	if ownerID == "" {
		return r.register(ctx, ext, email)
	}

	profile, err := loadProfile(ctx, r.store, ownerID)
	if err != nil {
		return nil, fmt.Errorf("service/identity: loading profile %s: %w", ownerID, err)
	}
	if profile == nil {
		r.logger.Warn("orphaned email pointer, recreating profile",
			slog.String("email", email),
			slog.String("staleID", ownerID),
			slog.String("subject", subject),
		)
		return r.recreate(ctx, ext, email)
	}

	if profile.ID != subject {
		r.logger.Info("login with new subject for known email",
			slog.String("userID", profile.ID),
			slog.String("subject", subject),
		)
	}
	return r.refresh(ctx, profile, ext)
}

// register handles a first login. The profile is written before the pointer,
// and the pointer is written with SetNX, so when two first logins race the
// first pointer write wins and the loser adopts the winner's profile.
func (r *IdentityResolver) register(ctx context.Context, ext model.ExternalIdentity, email string) (*model.UserProfile, error) {
	existing, err := loadProfile(ctx, r.store, ext.Subject)
	if err != nil {
		return nil, fmt.Errorf("service/identity: %w", err)
	}

	profile := r.newProfile(ext, email)
	if existing != nil {
		// Same subject, no pointer: the pointer was lost or the email changed
		// at the provider. Keep the stored role.
		profile.Role = existing.Role
		if profile.Email == r.adminEmail {
			profile.Role = model.RoleAdmin
		}
	}
	if err := putJSON(ctx, r.store, keys.Profile(profile.ID), profile); err != nil {
		return nil, fmt.Errorf("service/identity: %w", err)
	}

	won, err := r.store.SetNX(ctx, keys.EmailPointer(email), profile.ID)
	if err != nil {
		return nil, fmt.Errorf("service/identity: writing email pointer: %w", err)
	}
	if won {
		r.logger.Info("user registered",
			slog.String("userID", profile.ID),
			slog.String("email", email),
			slog.String("role", string(profile.Role)),
		)
		return profile, nil
	}

	winnerID, err := lookupPointer(ctx, r.store, email)
	if err != nil {
		return nil, fmt.Errorf("service/identity: %w", err)
	}
	if winnerID == profile.ID {
		return profile, nil
	}
	if existing == nil {
		if _, err := r.store.Del(ctx, keys.Profile(profile.ID)); err != nil {
			return nil, fmt.Errorf("service/identity: removing losing profile: %w", err)
		}
	}
	r.logger.Warn("concurrent first login, adopting existing profile",
		slog.String("email", email),
		slog.String("userID", winnerID),
		slog.String("subject", ext.Subject),
	)

	winner, err := loadProfile(ctx, r.store, winnerID)
	if err != nil {
		return nil, fmt.Errorf("service/identity: %w", err)
	}
	if winner == nil {
		return r.recreate(ctx, ext, email)
	}
	return winner, nil
}

// recreate repairs an orphaned pointer: the profile is rebuilt under the
// current subject and the pointer is overwritten to match.
func (r *IdentityResolver) recreate(ctx context.Context, ext model.ExternalIdentity, email string) (*model.UserProfile, error) {
	profile := r.newProfile(ext, email)
	if err := putJSON(ctx, r.store, keys.Profile(profile.ID), profile); err != nil {
		return nil, fmt.Errorf("service/identity: %w", err)
	}
	if err := r.store.Set(ctx, keys.EmailPointer(email), profile.ID); err != nil {
		return nil, fmt.Errorf("service/identity: repointing %s: %w", email, err)
	}
	return profile, nil
}

// refresh updates display fields the provider reports differently from what
// is stored. The id and role never change here.
func (r *IdentityResolver) refresh(ctx context.Context, profile *model.UserProfile, ext model.ExternalIdentity) (*model.UserProfile, error) {
	changed := false
	if ext.Name != "" && ext.Name != profile.Name {
		profile.Name = ext.Name
		changed = true
	}
	if ext.Picture != "" && ext.Picture != profile.Image {
		profile.Image = ext.Picture
		changed = true
	}
	if !profile.Role.Valid() {
		profile.Role = model.RoleUser
		changed = true
	}
	if !changed {
		return profile, nil
	}
	if err := putJSON(ctx, r.store, keys.Profile(profile.ID), profile); err != nil {
		return nil, fmt.Errorf("service/identity: %w", err)
	}
	return profile, nil
}

func (r *IdentityResolver) newProfile(ext model.ExternalIdentity, email string) *model.UserProfile {
	role := model.RoleUser
	if r.adminEmail != "" && email == r.adminEmail {
		role = model.RoleAdmin
	}
	name := ext.Name
	if name == "" {
		name = email
	}
	return &model.UserProfile{
		ID:    ext.Subject,
		Name:  name,
		Email: email,
		Image: ext.Picture,
		Role:  role,
	}
}
