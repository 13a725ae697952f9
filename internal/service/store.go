package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sakif/habit-rewards/internal/apperror"
	"github.com/sakif/habit-rewards/internal/keys"
	"github.com/sakif/habit-rewards/internal/model"
	"github.com/sakif/habit-rewards/internal/repository"
)

// getJSON decodes the value at key into v. It reports false, with no error,
// when the key does not exist.
func getJSON(ctx context.Context, store repository.Store, key string, v any) (bool, error) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, repository.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

func putJSON(ctx context.Context, store repository.Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := store.Set(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// loadProfile returns the profile stored under id, or (nil, nil) when absent.
func loadProfile(ctx context.Context, store repository.Store, id string) (*model.UserProfile, error) {
	var p model.UserProfile
	found, err := getJSON(ctx, store, keys.Profile(id), &p)
	if err != nil || !found {
		return nil, err
	}
	if p.ID == "" {
		p.ID = id
	}
	return &p, nil
}

// requireProfile is loadProfile with a NotFound error for missing users.
func requireProfile(ctx context.Context, store repository.Store, id string) (*model.UserProfile, error) {
	p, err := loadProfile(ctx, store, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperror.NotFound("user", id)
	}
	return p, nil
}

// lookupPointer returns the id an email pointer refers to, or "" when absent.
func lookupPointer(ctx context.Context, store repository.Store, email string) (string, error) {
	id, err := store.Get(ctx, keys.EmailPointer(email))
	if errors.Is(err, repository.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading email pointer: %w", err)
	}
	return id, nil
}
