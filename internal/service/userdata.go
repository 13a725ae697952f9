package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sakif/habit-rewards/internal/apperror"
	"github.com/sakif/habit-rewards/internal/keys"
	"github.com/sakif/habit-rewards/internal/model"
	"github.com/sakif/habit-rewards/internal/repository"
)

// LedgerResult is returned by every claim and unclaim. Applied is false when
// the call was a no-op (daily cap reached, nothing to unclaim, reward already
// in the requested state); Data is the aggregate after the call either way.
type LedgerResult struct {
	Data    *model.UserData `json:"data"`
	Applied bool            `json:"applied"`
}

// UserDataService is the read-modify-write layer over one user's aggregate
// at userData:{id}. Every call re-reads the store; concurrent writes for the
// same user are last-write-wins.
type UserDataService struct {
	store   repository.Store
	catalog *RewardCatalogService
	logger  *slog.Logger
	now     func() time.Time
}

func NewUserDataService(store repository.Store, catalog *RewardCatalogService, logger *slog.Logger) *UserDataService {
	return &UserDataService{
		store:   store,
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
	}
}

// Get returns the user's aggregate, creating an empty one on first access.
// Only users with a profile get one created; an unknown id is NotFound. The
// create uses SetNX so it never clobbers a concurrent first write.
func (s *UserDataService) Get(ctx context.Context, userID string) (*model.UserData, error) {
	if userID == "" {
		return nil, apperror.ValidationFailed("userId", "user id is required")
	}
	key := keys.Data(userID)

	var data model.UserData
	found, err := getJSON(ctx, s.store, key, &data)
	if err != nil {
		return nil, fmt.Errorf("service/userdata: %w", err)
	}
	if found {
		data.Normalize()
		return &data, nil
	}

	if _, err := requireProfile(ctx, s.store, userID); err != nil {
		return nil, err
	}

	empty := model.EmptyUserData()
	raw, _ := json.Marshal(empty)
	created, err := s.store.SetNX(ctx, key, string(raw))
	if err != nil {
		return nil, fmt.Errorf("service/userdata: creating %s: %w", key, err)
	}
	if created {
		s.logger.Debug("user data initialized", slog.String("userID", userID))
		return empty, nil
	}
	// Lost the race to a concurrent writer: read what it wrote.
	if _, err := getJSON(ctx, s.store, key, &data); err != nil {
		return nil, fmt.Errorf("service/userdata: %w", err)
	}
	data.Normalize()
	return &data, nil
}

// Replace overwrites the whole aggregate after schema validation.
func (s *UserDataService) Replace(ctx context.Context, userID string, raw []byte) (*model.UserData, error) {
	if userID == "" {
		return nil, apperror.ValidationFailed("userId", "user id is required")
	}
	data, err := DecodeUserData(raw)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, userID, data); err != nil {
		return nil, err
	}
	return data, nil
}

// ReplaceRewards overwrites only the user's reward list.
func (s *UserDataService) ReplaceRewards(ctx context.Context, userID string, rewards []model.Reward) (*model.UserData, error) {
	for i, r := range rewards {
		if r.ID == "" || r.Name == "" {
			return nil, apperror.ValidationFailed("rewards", fmt.Sprintf("reward %d needs an id and a name", i))
		}
		if r.Credits <= 0 {
			return nil, apperror.ValidationFailed("rewards", fmt.Sprintf("reward %q must cost a positive number of credits", r.ID))
		}
	}
	return s.mutate(ctx, userID, func(d *model.UserData) (bool, error) {
		d.Rewards = append([]model.Reward{}, rewards...)
		return true, nil
	})
}

// ClaimHabit records an earn entry for habit on date. A claim at the habit's
// daily cap is a no-op.
func (s *UserDataService) ClaimHabit(ctx context.Context, userID string, habit model.HabitType, date string) (*LedgerResult, error) {
	def, err := s.checkHabitDay(habit, date)
	if err != nil {
		return nil, err
	}
	return s.ledger(ctx, userID, func(d *model.UserData) (bool, error) {
		if d.CountEarned(habit, date) >= def.MaxPerDay {
			s.logger.Info("habit already at daily cap",
				slog.String("userID", userID),
				slog.String("habit", string(habit)),
				slog.String("date", date),
			)
			return false, nil
		}
		d.Habits = append(d.Habits, model.HabitRecord{
			Date:    date,
			Habit:   habit,
			Action:  model.ActionEarn,
			Credits: def.Credits,
		})
		d.TotalCredits += def.Credits
		return true, nil
	})
}

// UnclaimHabit removes the most recent earn entry for habit on date and takes
// its credits back, never below zero.
func (s *UserDataService) UnclaimHabit(ctx context.Context, userID string, habit model.HabitType, date string) (*LedgerResult, error) {
	if _, err := s.checkHabitDay(habit, date); err != nil {
		return nil, err
	}
	return s.ledger(ctx, userID, func(d *model.UserData) (bool, error) {
		idx := -1
		for i := len(d.Habits) - 1; i >= 0; i-- {
			rec := d.Habits[i]
			if rec.Habit == habit && rec.Date == date && rec.Action == model.ActionEarn {
				idx = i
				break
			}
		}
		if idx < 0 {
			s.logger.Warn("unclaim without a matching earn record",
				slog.String("userID", userID),
				slog.String("habit", string(habit)),
				slog.String("date", date),
			)
			return false, nil
		}
		credits := d.Habits[idx].Credits
		d.Habits = append(d.Habits[:idx], d.Habits[idx+1:]...)
		d.TotalCredits = max(d.TotalCredits-credits, 0)
		return true, nil
	})
}

// ClaimReward spends credits on a reward from the user's list.
func (s *UserDataService) ClaimReward(ctx context.Context, userID, rewardID string) (*LedgerResult, error) {
	return s.ledger(ctx, userID, func(d *model.UserData) (bool, error) {
		idx := d.FindReward(rewardID)
		if idx < 0 {
			return false, apperror.NotFound("reward", rewardID)
		}
		r := &d.Rewards[idx]
		if r.Claimed {
			return false, nil
		}
		if d.TotalCredits < r.Credits {
			return false, apperror.ValidationFailed("credits",
				fmt.Sprintf("insufficient credits: have %d, need %d", d.TotalCredits, r.Credits))
		}
		r.Claimed = true
		d.TotalCredits -= r.Credits
		return true, nil
	})
}

// UnclaimReward refunds a claimed reward.
func (s *UserDataService) UnclaimReward(ctx context.Context, userID, rewardID string) (*LedgerResult, error) {
	return s.ledger(ctx, userID, func(d *model.UserData) (bool, error) {
		idx := d.FindReward(rewardID)
		if idx < 0 {
			return false, apperror.NotFound("reward", rewardID)
		}
		r := &d.Rewards[idx]
		if !r.Claimed {
			return false, nil
		}
		r.Claimed = false
		d.TotalCredits += r.Credits
		return true, nil
	})
}

// AddReward copies a catalog reward onto the user's list, unclaimed.
func (s *UserDataService) AddReward(ctx context.Context, userID, rewardID string) (*model.UserData, error) {
	reward, err := s.catalog.Lookup(ctx, rewardID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, userID, func(d *model.UserData) (bool, error) {
		if d.FindReward(rewardID) >= 0 {
			return false, apperror.Conflict("reward", rewardID)
		}
		copied := *reward
		copied.Claimed = false
		d.Rewards = append(d.Rewards, copied)
		return true, nil
	})
}

// RemoveReward drops a reward from the user's list without a refund.
func (s *UserDataService) RemoveReward(ctx context.Context, userID, rewardID string) (*model.UserData, error) {
	return s.mutate(ctx, userID, func(d *model.UserData) (bool, error) {
		idx := d.FindReward(rewardID)
		if idx < 0 {
			return false, apperror.NotFound("reward", rewardID)
		}
		d.Rewards = append(d.Rewards[:idx], d.Rewards[idx+1:]...)
		return true, nil
	})
}

// ResetCredits sets the balance to zero and leaves the logs alone.
func (s *UserDataService) ResetCredits(ctx context.Context, userID string) (*model.UserData, error) {
	data, err := s.mutate(ctx, userID, func(d *model.UserData) (bool, error) {
		d.TotalCredits = 0
		return true, nil
	})
	if err == nil {
		s.logger.Info("credits reset", slog.String("userID", userID))
	}
	return data, err
}

// ResetData deletes the user's aggregate; the next Get starts from empty.
func (s *UserDataService) ResetData(ctx context.Context, userID string) error {
	if userID == "" {
		return apperror.ValidationFailed("userId", "user id is required")
	}
	if _, err := s.store.Del(ctx, keys.Data(userID)); err != nil {
		return fmt.Errorf("service/userdata: deleting data for %s: %w", userID, err)
	}
	s.logger.Info("user data reset", slog.String("userID", userID))
	return nil
}

// Stats totals the earn log by category (highest credits first) and by
// calendar month.
func (s *UserDataService) Stats(ctx context.Context, userID string) (*model.Stats, error) {
	data, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ComputeStats(data), nil
}

// ComputeStats is the pure part of Stats.
func ComputeStats(data *model.UserData) *model.Stats {
	byCategory := map[model.HabitType]*model.CategoryTotal{}
	byMonth := map[string]map[model.HabitType]int{}

	for _, rec := range data.Habits {
		if rec.Action != model.ActionEarn {
			continue
		}
		ct, ok := byCategory[rec.Habit]
		if !ok {
			ct = &model.CategoryTotal{Category: rec.Habit}
			byCategory[rec.Habit] = ct
		}
		ct.TotalCredits += rec.Credits
		ct.Count++

		if len(rec.Date) >= 7 {
			month := rec.Date[:7]
			if byMonth[month] == nil {
				byMonth[month] = map[model.HabitType]int{}
			}
			byMonth[month][rec.Habit] += rec.Credits
		}
	}

	stats := &model.Stats{
		TotalCredits: data.TotalCredits,
		Categories:   make([]model.CategoryTotal, 0, len(byCategory)),
		Monthly:      make([]model.MonthlyTotal, 0, len(byMonth)),
	}
	for _, ct := range byCategory {
		stats.Categories = append(stats.Categories, *ct)
	}
	sort.Slice(stats.Categories, func(i, j int) bool {
		a, b := stats.Categories[i], stats.Categories[j]
		if a.TotalCredits != b.TotalCredits {
			return a.TotalCredits > b.TotalCredits
		}
		return a.Category < b.Category
	})
	for month, credits := range byMonth {
		stats.Monthly = append(stats.Monthly, model.MonthlyTotal{Month: month, Credits: credits})
	}
	sort.Slice(stats.Monthly, func(i, j int) bool { return stats.Monthly[i].Month < stats.Monthly[j].Month })
	return stats
}

func (s *UserDataService) checkHabitDay(habit model.HabitType, date string) (model.HabitDefinition, error) {
	def, ok := model.LookupHabit(habit)
	if !ok {
		return def, apperror.ValidationFailed("habit", fmt.Sprintf("unknown habit %q", habit))
	}
	if _, err := model.ParseDay(date); err != nil {
		return def, apperror.ValidationFailed("date", err.Error())
	}
	// Layout is zero-padded, so string order is date order.
	if date > s.now().Format(model.DateLayout) {
		return def, apperror.ValidationFailed("date", "cannot claim habits for future dates")
	}
	return def, nil
}

// ledger runs fn against the current aggregate and saves it when fn applied.
func (s *UserDataService) ledger(ctx context.Context, userID string, fn func(*model.UserData) (bool, error)) (*LedgerResult, error) {
	data, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	applied, err := fn(data)
	if err != nil {
		return nil, err
	}
	if applied {
		if err := s.save(ctx, userID, data); err != nil {
			return nil, err
		}
	}
	return &LedgerResult{Data: data, Applied: applied}, nil
}

func (s *UserDataService) mutate(ctx context.Context, userID string, fn func(*model.UserData) (bool, error)) (*model.UserData, error) {
	res, err := s.ledger(ctx, userID, fn)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

func (s *UserDataService) save(ctx context.Context, userID string, data *model.UserData) error {
	data.Normalize()
	if err := putJSON(ctx, s.store, keys.Data(userID), data); err != nil {
		return fmt.Errorf("service/userdata: %w", err)
	}
	return nil
}
