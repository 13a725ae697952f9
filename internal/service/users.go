package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"sort"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/habit-rewards/internal/apperror"
	"github.com/sakif/habit-rewards/internal/keys"
	"github.com/sakif/habit-rewards/internal/model"
	"github.com/sakif/habit-rewards/internal/repository"
)

// LegacyUserID names the pre-login single-tenant aggregate in admin calls.
const LegacyUserID = "legacy"

// UserAdminService implements the admin user operations.
type UserAdminService struct {
	store  repository.Store
	data   *UserDataService
	logger *slog.Logger
}

func NewUserAdminService(store repository.Store, data *UserDataService, logger *slog.Logger) *UserAdminService {
	return &UserAdminService{store: store, data: data, logger: logger}
}

// List returns every profile ordered by id. When the legacy aggregate
// exists a virtual "legacy" entry is appended so admins can inspect it.
func (s *UserAdminService) List(ctx context.Context) ([]model.UserProfile, error) {
	found, err := s.store.Scan(ctx, keys.ProfilePrefix)
	if err != nil {
		return nil, fmt.Errorf("service/users: scanning profiles: %w", err)
	}

	users := []model.UserProfile{}
	for _, key := range found {
		kind, id := keys.Classify(key)
		if kind != keys.KindProfile {
			continue
		}
		p, err := loadProfile(ctx, s.store, id)
		if err != nil {
			s.logger.Warn("skipping unreadable profile", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}
		if p != nil {
			users = append(users, *p)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })

	if _, err := s.store.Get(ctx, keys.LegacyData); err == nil {
		users = append(users, model.UserProfile{ID: LegacyUserID, Name: "Legacy data", Role: model.RoleUser})
	} else if !errors.Is(err, repository.ErrKeyNotFound) {
		return nil, fmt.Errorf("service/users: %w", err)
	}
	return users, nil
}

// GetUserData returns a user's aggregate, or the legacy aggregate for
// LegacyUserID.
func (s *UserAdminService) GetUserData(ctx context.Context, id string) (*model.UserData, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("userId", "user id is required")
	}
	if id == LegacyUserID {
		var data model.UserData
		found, err := getJSON(ctx, s.store, keys.LegacyData, &data)
		if err != nil {
			return nil, fmt.Errorf("service/users: %w", err)
		}
		if !found {
			return nil, apperror.NotFound("user data", LegacyUserID)
		}
		data.Normalize()
		return &data, nil
	}
	if _, err := requireProfile(ctx, s.store, id); err != nil {
		return nil, err
	}
	return s.data.Get(ctx, id)
}

// CreateUserInput is the admin's request to create a user.
type CreateUserInput struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	SourceUserID string `json:"sourceUserId,omitempty"`
}

// CreateUser creates a profile with a fresh user-<xid> id. With a source,
// the new user's aggregate is a verbatim copy of the source's; otherwise it
// starts empty. Registering an email that already has a pointer is a
// conflict.
func (s *UserAdminService) CreateUser(ctx context.Context, in CreateUserInput) (*model.UserProfile, error) {
	name := strings.TrimSpace(in.Name)
	email := model.NormalizeEmail(in.Email)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperror.ValidationFailed("email", "email is not a valid address")
	}

	if owner, err := lookupPointer(ctx, s.store, email); err != nil {
		return nil, fmt.Errorf("service/users: %w", err)
	} else if owner != "" {
		return nil, apperror.Conflict("user", email)
	}

	seed, err := s.seedFor(ctx, in.SourceUserID)
	if err != nil {
		return nil, err
	}

	profile := &model.UserProfile{
		ID:    "user-" + xid.New().String(),
		Name:  name,
		Email: email,
		Role:  model.RoleUser,
	}
	if err := putJSON(ctx, s.store, keys.Profile(profile.ID), profile); err != nil {
		return nil, fmt.Errorf("service/users: %w", err)
	}
	won, err := s.store.SetNX(ctx, keys.EmailPointer(email), profile.ID)
	if err != nil {
		return nil, fmt.Errorf("service/users: writing email pointer: %w", err)
	}
	if !won {
		// A login registered the email after our check.
		if _, err := s.store.Del(ctx, keys.Profile(profile.ID)); err != nil {
			return nil, fmt.Errorf("service/users: removing unused profile: %w", err)
		}
		return nil, apperror.Conflict("user", email)
	}

	if err := s.store.Set(ctx, keys.Data(profile.ID), seed); err != nil {
		return nil, fmt.Errorf("service/users: seeding data: %w", err)
	}

	s.logger.Info("user created by admin",
		slog.String("userID", profile.ID),
		slog.String("email", email),
		slog.String("source", in.SourceUserID),
	)
	return profile, nil
}

// seedFor returns the raw aggregate a new account starts with.
func (s *UserAdminService) seedFor(ctx context.Context, source string) (string, error) {
	if source == "" {
		return marshalEmpty()
	}
	key := keys.Data(source)
	if source == LegacyUserID {
		key = keys.LegacyData
	}
	raw, err := s.store.Get(ctx, key)
	if errors.Is(err, repository.ErrKeyNotFound) {
		return "", apperror.NotFound("user data", source)
	}
	if err != nil {
		return "", fmt.Errorf("service/users: reading source data: %w", err)
	}
	return raw, nil
}

// UpdateUserData replaces a user's aggregate after schema validation.
func (s *UserAdminService) UpdateUserData(ctx context.Context, id string, raw []byte) (*model.UserData, error) {
	if id == LegacyUserID {
		data, err := DecodeUserData(raw)
		if err != nil {
			return nil, err
		}
		if err := putJSON(ctx, s.store, keys.LegacyData, data); err != nil {
			return nil, fmt.Errorf("service/users: %w", err)
		}
		return data, nil
	}
	if _, err := requireProfile(ctx, s.store, id); err != nil {
		return nil, err
	}
	return s.data.Replace(ctx, id, raw)
}

// DeleteUser removes the profile, its data, and the email pointer when it
// still points at this user.
func (s *UserAdminService) DeleteUser(ctx context.Context, id string) error {
	if id == "" {
		return apperror.ValidationFailed("userId", "user id is required")
	}
	if id == LegacyUserID {
		return apperror.ValidationFailed("userId", "the legacy aggregate is not a user; delete its key instead")
	}
	profile, err := requireProfile(ctx, s.store, id)
	if err != nil {
		return err
	}

	toDelete := []string{keys.Profile(id), keys.Data(id)}
	if profile.Email != "" {
		owner, err := lookupPointer(ctx, s.store, profile.Email)
		if err != nil {
			return fmt.Errorf("service/users: %w", err)
		}
		if owner == id {
			toDelete = append(toDelete, keys.EmailPointer(profile.Email))
		}
	}
	if _, err := s.store.Del(ctx, toDelete...); err != nil {
		return fmt.Errorf("service/users: deleting user %s: %w", id, err)
	}

	s.logger.Info("user deleted by admin", slog.String("userID", id), slog.String("email", profile.Email))
	return nil
}

func marshalEmpty() (string, error) {
	raw, err := json.Marshal(model.EmptyUserData())
	if err != nil {
		return "", fmt.Errorf("service/users: %w", err)
	}
	return string(raw), nil
}
