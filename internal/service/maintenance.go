package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/sakif/habit-rewards/internal/apperror"
	"github.com/sakif/habit-rewards/internal/keys"
	"github.com/sakif/habit-rewards/internal/model"
	"github.com/sakif/habit-rewards/internal/repository"
)

// KeepPolicy picks the profile to keep from a set of two or more profiles
// sharing one email. It must return one of its arguments.
type KeepPolicy func(candidates []model.UserProfile) model.UserProfile

// PreferProviderIDs keeps a profile whose id was issued by the OAuth provider
// over one created by an admin (user-<xid>). Among equals the smallest id
// wins, since ids are time-ordered by construction.
func PreferProviderIDs(candidates []model.UserProfile) model.UserProfile {
	best := candidates[0]
	for _, c := range candidates[1:] {
		cp, bp := IsProviderID(c.ID), IsProviderID(best.ID)
		if (cp && !bp) || (cp == bp && c.ID < best.ID) {
			best = c
		}
	}
	return best
}

// IsProviderID reports whether id looks like it came from an identity
// provider: a bare numeric subject, or a "<provider>-oauth2-..." /
// "<provider>-oauth2|..." id.
func IsProviderID(id string) bool {
	if id == "" || strings.HasPrefix(id, "user-") {
		return false
	}
	if strings.Contains(id, "-oauth2-") || strings.Contains(id, "-oauth2|") {
		return true
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// EmailKey is a stored key that embeds an email. Key is the key exactly as
// scanned; Email is the normalized form.
type EmailKey struct {
	Key    string `json:"key"`
	Email  string `json:"email"`
	Target string `json:"target,omitempty"`
}

// Inventory is a classified snapshot of every key in the store.
//
// Pointers holds only keys in canonical (normalized) form. A pointer whose
// key is not canonical, such as user:email:A@X.com, lands in StrayPointers.
type Inventory struct {
	Profiles        []model.UserProfile `json:"profiles"`
	Pointers        map[string]string   `json:"pointers"`
	StrayPointers   []EmailKey          `json:"strayPointers"`
	DataIDs         []string            `json:"dataIds"`
	LegacyEmailData []EmailKey          `json:"legacyEmailData"`
	HasLegacyData   bool                `json:"hasLegacyData"`
	HasCatalog      bool                `json:"hasCatalog"`
	Malformed       []string            `json:"malformed"`
	Other           []string            `json:"other"`
	Counts          map[keys.Kind]int   `json:"counts"`
}

func (inv *Inventory) hasProfile(id string) bool {
	for _, p := range inv.Profiles {
		if p.ID == id {
			return true
		}
	}
	return false
}

// owner returns the id that email resolves to. The canonical pointer wins;
// a stray pointer for the same email is the fallback.
func (inv *Inventory) owner(email string) string {
	if id := inv.Pointers[email]; id != "" {
		return id
	}
	for _, sp := range inv.StrayPointers {
		if sp.Email == email && sp.Target != "" {
			return sp.Target
		}
	}
	return ""
}

func (inv *Inventory) hasData(id string) bool {
	i := sort.SearchStrings(inv.DataIDs, id)
	return i < len(inv.DataIDs) && inv.DataIDs[i] == id
}

// DuplicateSet is a group of profiles sharing one normalized email.
type DuplicateSet struct {
	Email    string              `json:"email"`
	Profiles []model.UserProfile `json:"profiles"`
}

// DuplicateResolution is the plan for one DuplicateSet.
type DuplicateResolution struct {
	Email         string   `json:"email"`
	Keep          string   `json:"keep"`
	Remove        []string `json:"remove"`
	SkippedAdmins []string `json:"skippedAdmins,omitempty"`
}

// PointerFix is one email pointer write or delete. Key is set only for
// pointers stored under a non-canonical key.
type PointerFix struct {
	Email string `json:"email"`
	Key   string `json:"key,omitempty"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
}

func (f PointerFix) storeKey() string {
	if f.Key != "" {
		return f.Key
	}
	return keys.EmailPointer(f.Email)
}

// CleanupPlan lists every change a cleanup pass would make.
type CleanupPlan struct {
	Duplicates       []DuplicateResolution `json:"duplicates"`
	Repointed        []PointerFix          `json:"repointed"`
	CreatedPointers  []PointerFix          `json:"createdPointers"`
	OrphanedPointers []PointerFix          `json:"orphanedPointers"`
}

// Changes is the number of store operations the plan performs.
func (p *CleanupPlan) Changes() int {
	n := len(p.Repointed) + len(p.CreatedPointers) + len(p.OrphanedPointers)
	for _, d := range p.Duplicates {
		n += len(d.Remove)
	}
	return n
}

// CleanupReport is what CleanupDuplicates did (or, in a dry run, would do).
type CleanupReport struct {
	CleanupPlan
	DryRun      bool `json:"dryRun"`
	KeysDeleted int  `json:"keysDeleted"`
	KeysWritten int  `json:"keysWritten"`
}

// KeyMove is one legacy blob and its id-keyed destination.
type KeyMove struct {
	Email string `json:"email"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// MigrationReport is what MigrateEmailKeys did. Conflicts are blobs left in
// place because the owner already has different, non-empty data; they need
// a manual decision.
type MigrationReport struct {
	DryRun    bool      `json:"dryRun"`
	Migrated  []KeyMove `json:"migrated"`
	Conflicts []KeyMove `json:"conflicts"`
	Orphaned  []string  `json:"orphaned"`
}

// KeyInfo is one row of a key listing.
type KeyInfo struct {
	Key  string    `json:"key"`
	Kind keys.Kind `json:"kind"`
}

// MaintenanceService detects and repairs pointer/profile inconsistencies and
// migrates legacy keys. Every operation is operator-triggered and safe to
// re-run: a second pass after a successful one changes nothing.
//
// Operations hold no lock against application traffic, so a scan can see a
// half-finished login.
type MaintenanceService struct {
	store  repository.Store
	policy KeepPolicy
	logger *slog.Logger
}

// NewMaintenanceService uses PreferProviderIDs when policy is nil.
func NewMaintenanceService(store repository.Store, policy KeepPolicy, logger *slog.Logger) *MaintenanceService {
	if policy == nil {
		policy = PreferProviderIDs
	}
	return &MaintenanceService{store: store, policy: policy, logger: logger}
}

// Inventory scans the whole store and classifies every key.
func (s *MaintenanceService) Inventory(ctx context.Context) (*Inventory, error) {
	all, err := s.store.Scan(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("service/maintenance: scanning store: %w", err)
	}

	inv := &Inventory{
		Profiles:        []model.UserProfile{},
		Pointers:        map[string]string{},
		StrayPointers:   []EmailKey{},
		DataIDs:         []string{},
		LegacyEmailData: []EmailKey{},
		Malformed:       []string{},
		Other:           []string{},
		Counts:          map[keys.Kind]int{},
	}
	for _, key := range all {
		kind, ref := keys.Classify(key)
		inv.Counts[kind]++

		switch kind {
		case keys.KindProfile:
			raw, err := s.store.Get(ctx, key)
			if errors.Is(err, repository.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("service/maintenance: reading %s: %w", key, err)
			}
			var p model.UserProfile
			if err := json.Unmarshal([]byte(raw), &p); err != nil {
				inv.Malformed = append(inv.Malformed, key)
				continue
			}
			// The key is authoritative for the id.
			p.ID = ref
			inv.Profiles = append(inv.Profiles, p)
		case keys.KindEmailPointer:
			id, err := s.store.Get(ctx, key)
			if errors.Is(err, repository.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("service/maintenance: reading %s: %w", key, err)
			}
			if key == keys.EmailPointer(ref) {
				inv.Pointers[ref] = id
			} else {
				inv.StrayPointers = append(inv.StrayPointers, EmailKey{Key: key, Email: model.NormalizeEmail(ref), Target: id})
			}
		case keys.KindData:
			inv.DataIDs = append(inv.DataIDs, ref)
		case keys.KindLegacyEmailData:
			inv.LegacyEmailData = append(inv.LegacyEmailData, EmailKey{Key: key, Email: model.NormalizeEmail(ref)})
		case keys.KindLegacyData:
			inv.HasLegacyData = true
		case keys.KindRewardCatalog:
			inv.HasCatalog = true
		default:
			inv.Other = append(inv.Other, key)
		}
	}
	sort.Strings(inv.DataIDs)
	sort.Slice(inv.StrayPointers, func(i, j int) bool { return inv.StrayPointers[i].Key < inv.StrayPointers[j].Key })
	sort.Slice(inv.LegacyEmailData, func(i, j int) bool { return inv.LegacyEmailData[i].Key < inv.LegacyEmailData[j].Key })
	return inv, nil
}

// FindDuplicates groups profiles by normalized email and returns the groups
// with more than one member, ordered by email.
func FindDuplicates(inv *Inventory) []DuplicateSet {
	byEmail := map[string][]model.UserProfile{}
	for _, p := range inv.Profiles {
		email := model.NormalizeEmail(p.Email)
		if email == "" {
			continue
		}
		byEmail[email] = append(byEmail[email], p)
	}

	var sets []DuplicateSet
	for email, profiles := range byEmail {
		if len(profiles) < 2 {
			continue
		}
		sort.Slice(profiles, func(i, j int) bool { return profiles[i].ID < profiles[j].ID })
		sets = append(sets, DuplicateSet{Email: email, Profiles: profiles})
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].Email < sets[j].Email })
	return sets
}

// PlanCleanup decides, without touching the store, which duplicate profiles
// to delete and how to bring every email pointer back in line: each email
// with a surviving profile points at its kept profile, and pointers for
// emails with no surviving profile are deleted. Pointers stored under a
// non-canonical key are always deleted; the canonical pointer replaces them.
func PlanCleanup(inv *Inventory, policy KeepPolicy) *CleanupPlan {
	if policy == nil {
		policy = PreferProviderIDs
	}
	plan := &CleanupPlan{
		Duplicates:       []DuplicateResolution{},
		Repointed:        []PointerFix{},
		CreatedPointers:  []PointerFix{},
		OrphanedPointers: []PointerFix{},
	}

	// desired maps each email to the id its pointer should hold.
	desired := map[string]string{}
	for _, p := range inv.Profiles {
		if email := model.NormalizeEmail(p.Email); email != "" {
			desired[email] = p.ID
		}
	}

	for _, set := range FindDuplicates(inv) {
		keep := policy(set.Profiles)
		res := DuplicateResolution{Email: set.Email, Keep: keep.ID, Remove: []string{}}
		for _, p := range set.Profiles {
			switch {
			case p.ID == keep.ID:
			case p.IsAdmin():
				res.SkippedAdmins = append(res.SkippedAdmins, p.ID)
			default:
				res.Remove = append(res.Remove, p.ID)
			}
		}
		desired[set.Email] = keep.ID
		plan.Duplicates = append(plan.Duplicates, res)
	}

	emails := make([]string, 0, len(desired))
	for email := range desired {
		emails = append(emails, email)
	}
	sort.Strings(emails)
	for _, email := range emails {
		want := desired[email]
		current, ok := inv.Pointers[email]
		switch {
		case !ok:
			plan.CreatedPointers = append(plan.CreatedPointers, PointerFix{Email: email, To: want})
		case current != want:
			plan.Repointed = append(plan.Repointed, PointerFix{Email: email, From: current, To: want})
		}
	}

	orphans := make([]string, 0)
	for email := range inv.Pointers {
		if _, ok := desired[email]; !ok {
			orphans = append(orphans, email)
		}
	}
	sort.Strings(orphans)
	for _, email := range orphans {
		plan.OrphanedPointers = append(plan.OrphanedPointers, PointerFix{Email: email, From: inv.Pointers[email]})
	}
	for _, sp := range inv.StrayPointers {
		plan.OrphanedPointers = append(plan.OrphanedPointers, PointerFix{Email: sp.Email, Key: sp.Key, From: sp.Target})
	}
	return plan
}

// CleanupDuplicates plans and, unless dryRun, applies a cleanup. Deleting a
// duplicate removes its profile and its data key; admins are never deleted.
// A failure partway leaves earlier changes in place; re-running finishes the job.
func (s *MaintenanceService) CleanupDuplicates(ctx context.Context, dryRun bool) (*CleanupReport, error) {
	inv, err := s.Inventory(ctx)
	if err != nil {
		return nil, err
	}
	plan := PlanCleanup(inv, s.policy)
	report := &CleanupReport{CleanupPlan: *plan, DryRun: dryRun}
	if dryRun {
		return report, nil
	}

	for _, d := range plan.Duplicates {
		for _, id := range d.Remove {
			n, err := s.store.Del(ctx, keys.Profile(id), keys.Data(id))
			if err != nil {
				return report, fmt.Errorf("service/maintenance: deleting duplicate %s: %w", id, err)
			}
			report.KeysDeleted += n
			s.logger.Info("duplicate user removed",
				slog.String("email", d.Email),
				slog.String("removed", id),
				slog.String("kept", d.Keep),
			)
		}
		for _, id := range d.SkippedAdmins {
			s.logger.Warn("duplicate admin kept", slog.String("email", d.Email), slog.String("userID", id))
		}
	}

	for _, fix := range append(append([]PointerFix{}, plan.Repointed...), plan.CreatedPointers...) {
		if err := s.store.Set(ctx, fix.storeKey(), fix.To); err != nil {
			return report, fmt.Errorf("service/maintenance: pointing %s at %s: %w", fix.Email, fix.To, err)
		}
		report.KeysWritten++
		s.logger.Info("email pointer set",
			slog.String("email", fix.Email),
			slog.String("from", fix.From),
			slog.String("to", fix.To),
		)
	}

	// Deletes run last so a stray pointer is only removed once the
	// canonical one is in place.
	for _, fix := range plan.OrphanedPointers {
		key := fix.storeKey()
		n, err := s.store.Del(ctx, key)
		if err != nil {
			return report, fmt.Errorf("service/maintenance: deleting orphaned pointer %s: %w", key, err)
		}
		report.KeysDeleted += n
		s.logger.Warn("orphaned email pointer deleted", slog.String("key", key), slog.String("target", fix.From))
	}

	return report, nil
}

// MigrateEmailKeys moves every userData:email:{email} blob to its owner's
// userData:{id}. The owner is the pointer target, and it must still have a
// profile; a blob with no owner is deleted.
//
// The blob is copied when the owner has no data yet, or only the empty
// aggregate a first read creates, or the same bytes. Otherwise the two
// histories differ and the blob is reported as a conflict and left alone.
// A blob is never deleted before it has been copied.
func (s *MaintenanceService) MigrateEmailKeys(ctx context.Context, dryRun bool) (*MigrationReport, error) {
	inv, err := s.Inventory(ctx)
	if err != nil {
		return nil, err
	}

	report := &MigrationReport{
		DryRun:    dryRun,
		Migrated:  []KeyMove{},
		Conflicts: []KeyMove{},
		Orphaned:  []string{},
	}
	for _, legacy := range inv.LegacyEmailData {
		from := legacy.Key
		owner := inv.owner(legacy.Email)

		if owner == "" || !inv.hasProfile(owner) {
			report.Orphaned = append(report.Orphaned, from)
			if dryRun {
				continue
			}
			if _, err := s.store.Del(ctx, from); err != nil {
				return report, fmt.Errorf("service/maintenance: deleting %s: %w", from, err)
			}
			s.logger.Info("orphaned legacy data key dropped", slog.String("key", from))
			continue
		}

		raw, err := s.store.Get(ctx, from)
		if errors.Is(err, repository.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return report, fmt.Errorf("service/maintenance: reading %s: %w", from, err)
		}

		to := keys.Data(owner)
		move := KeyMove{Email: legacy.Email, From: from, To: to}
		if inv.hasData(owner) {
			current, err := s.store.Get(ctx, to)
			switch {
			case errors.Is(err, repository.ErrKeyNotFound):
			case err != nil:
				return report, fmt.Errorf("service/maintenance: reading %s: %w", to, err)
			case current != raw && !isEmptyAggregate(current):
				report.Conflicts = append(report.Conflicts, move)
				s.logger.Warn("legacy data key conflicts with existing data",
					slog.String("from", from),
					slog.String("to", to),
				)
				continue
			}
		}

		if !dryRun {
			if err := s.store.Set(ctx, to, raw); err != nil {
				return report, fmt.Errorf("service/maintenance: writing %s: %w", to, err)
			}
			if _, err := s.store.Del(ctx, from); err != nil {
				return report, fmt.Errorf("service/maintenance: deleting %s: %w", from, err)
			}
			s.logger.Info("legacy data key migrated", slog.String("from", from), slog.String("to", to))
		}
		report.Migrated = append(report.Migrated, move)
	}
	return report, nil
}

// isEmptyAggregate reports whether raw decodes to an aggregate with no
// credits, habits or rewards. Undecodable data is never empty.
func isEmptyAggregate(raw string) bool {
	var d model.UserData
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return false
	}
	return d.TotalCredits == 0 && len(d.Habits) == 0 && len(d.Rewards) == 0
}

// ListKeys returns every key with prefix, classified.
func (s *MaintenanceService) ListKeys(ctx context.Context, prefix string) ([]KeyInfo, error) {
	found, err := s.store.Scan(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("service/maintenance: scanning %q: %w", prefix, err)
	}
	out := make([]KeyInfo, 0, len(found))
	for _, k := range found {
		kind, _ := keys.Classify(k)
		out = append(out, KeyInfo{Key: k, Kind: kind})
	}
	return out, nil
}

// GetKey returns the raw value of key.
func (s *MaintenanceService) GetKey(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", apperror.ValidationFailed("key", "key is required")
	}
	v, err := s.store.Get(ctx, key)
	if errors.Is(err, repository.ErrKeyNotFound) {
		return "", apperror.NotFound("key", key)
	}
	if err != nil {
		return "", fmt.Errorf("service/maintenance: reading %s: %w", key, err)
	}
	return v, nil
}

// SetKey writes value to key as is. No naming convention is enforced.
func (s *MaintenanceService) SetKey(ctx context.Context, key, value string) error {
	if key == "" {
		return apperror.ValidationFailed("key", "key is required")
	}
	if err := s.store.Set(ctx, key, value); err != nil {
		return fmt.Errorf("service/maintenance: writing %s: %w", key, err)
	}
	s.logger.Info("key set manually", slog.String("key", key))
	return nil
}

// DeleteKey removes key, or returns NotFound when it does not exist.
func (s *MaintenanceService) DeleteKey(ctx context.Context, key string) error {
	if key == "" {
		return apperror.ValidationFailed("key", "key is required")
	}
	n, err := s.store.Del(ctx, key)
	if err != nil {
		return fmt.Errorf("service/maintenance: deleting %s: %w", key, err)
	}
	if n == 0 {
		return apperror.NotFound("key", key)
	}
	s.logger.Info("key deleted manually", slog.String("key", key))
	return nil
}
