package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/habit-rewards/internal/apperror"
	"github.com/sakif/habit-rewards/internal/keys"
	"github.com/sakif/habit-rewards/internal/model"
	"github.com/sakif/habit-rewards/internal/repository"
)

const maxRewardNameLength = 100

// RewardInput is the admin's request to add a catalog reward.
type RewardInput struct {
	Name        string `json:"name"`
	Credits     int    `json:"credits"`
	ImgURL      string `json:"imgUrl,omitempty"`
	ExternalURL string `json:"amazonUrl,omitempty"`
}

// RewardCatalogService manages the global reward catalog stored as a single
// JSON array. Users copy rewards from it onto their own list.
type RewardCatalogService struct {
	store  repository.Store
	logger *slog.Logger
}

func NewRewardCatalogService(store repository.Store, logger *slog.Logger) *RewardCatalogService {
	return &RewardCatalogService{store: store, logger: logger}
}

// List returns the catalog, empty when none has been written yet.
func (s *RewardCatalogService) List(ctx context.Context) ([]model.Reward, error) {
	var rewards []model.Reward
	if _, err := getJSON(ctx, s.store, keys.RewardCatalog, &rewards); err != nil {
		return nil, fmt.Errorf("service/rewards: %w", err)
	}
	if rewards == nil {
		rewards = []model.Reward{}
	}
	return rewards, nil
}

// Lookup returns the catalog reward with id.
func (s *RewardCatalogService) Lookup(ctx context.Context, id string) (*model.Reward, error) {
	rewards, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range rewards {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, apperror.NotFound("reward", id)
}

// Add validates in and appends a new reward with a fresh reward-<xid> id.
func (s *RewardCatalogService) Add(ctx context.Context, in RewardInput) (*model.Reward, error) {
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		return nil, apperror.ValidationFailed("name", "name is required")
	case len(name) > maxRewardNameLength:
		return nil, apperror.ValidationFailed("name", fmt.Sprintf("name must be %d characters or fewer", maxRewardNameLength))
	case in.Credits <= 0:
		return nil, apperror.ValidationFailed("credits", "credits must be a positive integer")
	}
	for field, raw := range map[string]string{"imgUrl": in.ImgURL, "amazonUrl": in.ExternalURL} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Host == "" {
			return nil, apperror.ValidationFailed(field, "must be an absolute URL")
		}
	}

	rewards, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	reward := model.Reward{
		ID:          "reward-" + xid.New().String(),
		Name:        name,
		Credits:     in.Credits,
		ImgURL:      in.ImgURL,
		ExternalURL: in.ExternalURL,
	}
	rewards = append(rewards, reward)
	if err := putJSON(ctx, s.store, keys.RewardCatalog, rewards); err != nil {
		return nil, fmt.Errorf("service/rewards: %w", err)
	}

	s.logger.Info("catalog reward added", slog.String("rewardID", reward.ID), slog.String("name", name))
	return &reward, nil
}

// Delete removes a catalog reward. Copies already on user lists are kept.
func (s *RewardCatalogService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return apperror.ValidationFailed("id", "reward id is required")
	}
	rewards, err := s.List(ctx)
	if err != nil {
		return err
	}
	kept := rewards[:0]
	for _, r := range rewards {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(rewards) {
		return apperror.NotFound("reward", id)
	}
	if err := putJSON(ctx, s.store, keys.RewardCatalog, kept); err != nil {
		return fmt.Errorf("service/rewards: %w", err)
	}
	s.logger.Info("catalog reward deleted", slog.String("rewardID", id))
	return nil
}
