package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/habit-rewards/internal/apperror"
	"github.com/sakif/habit-rewards/internal/keys"
	"github.com/sakif/habit-rewards/internal/model"
)

func profileJSON(id, email, role string) string {
	return `{"id":"` + id + `","name":"n","email":"` + email + `","role":"` + role + `"}`
}

func TestIsProviderID(t *testing.T) {
	tests := map[string]bool{
		"google-oauth2-1":           true,
		"google-oauth2|1098":        true,
		"109876543210":              true,
		"user-1000":                 false,
		"user-cv37rs3pp9olc6atsptg": false,
		"abc":                       false,
		"":                          false,
	}
	for id, want := range tests {
		assert.Equal(t, want, IsProviderID(id), id)
	}
}

func TestPreferProviderIDs(t *testing.T) {
	p := func(id string) model.UserProfile { return model.UserProfile{ID: id} }

	assert.Equal(t, "google-oauth2-1", PreferProviderIDs([]model.UserProfile{p("user-1000"), p("google-oauth2-1")}).ID)
	assert.Equal(t, "google-oauth2-1", PreferProviderIDs([]model.UserProfile{p("google-oauth2-2"), p("google-oauth2-1")}).ID)
	assert.Equal(t, "user-0001", PreferProviderIDs([]model.UserProfile{p("user-0002"), p("user-0001")}).ID)
}

func TestInventory_ClassifiesKeys(t *testing.T) {
	s := newTestServices(t)
	seed(t, s.store, map[string]string{
		"user:1":                   profileJSON("1", "a@x.com", "user"),
		"user:broken":              "{not json",
		"user:email:a@x.com":       "1",
		"user:email:A@X.com":       "1",
		"userData:1":               "{}",
		"userData:email:old@x.com": "{}",
		"userData":                 "{}",
		"rewards:catalog":          "[]",
		"session:abc":              "x",
	})

	inv, err := s.maintenance.Inventory(context.Background())
	require.NoError(t, err)

	require.Len(t, inv.Profiles, 1)
	assert.Equal(t, "1", inv.Profiles[0].ID)
	assert.Equal(t, map[string]string{"a@x.com": "1"}, inv.Pointers)
	assert.Equal(t, []string{"1"}, inv.DataIDs)
	assert.Equal(t, []EmailKey{{Key: "user:email:A@X.com", Email: "a@x.com", Target: "1"}}, inv.StrayPointers)
	assert.Equal(t, []EmailKey{{Key: "userData:email:old@x.com", Email: "old@x.com"}}, inv.LegacyEmailData)
	assert.True(t, inv.HasLegacyData)
	assert.True(t, inv.HasCatalog)
	assert.Equal(t, []string{"user:broken"}, inv.Malformed)
	assert.Equal(t, []string{"session:abc"}, inv.Other)
	assert.Equal(t, 2, inv.Counts[keys.KindProfile])
}

func TestCleanup_PrefersProviderIDAndRepoints(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	seed(t, s.store, map[string]string{
		"user:google-oauth2-1":     profileJSON("google-oauth2-1", "a@x.com", "user"),
		"user:user-1000":           profileJSON("user-1000", "a@x.com", "user"),
		"userData:user-1000":       `{"totalCredits":3}`,
		"userData:google-oauth2-1": `{"totalCredits":8}`,
		"user:email:a@x.com":       "user-1000",
	})

	report, err := s.maintenance.CleanupDuplicates(ctx, false)
	require.NoError(t, err)

	require.Len(t, report.Duplicates, 1)
	assert.Equal(t, "google-oauth2-1", report.Duplicates[0].Keep)
	assert.Equal(t, []string{"user-1000"}, report.Duplicates[0].Remove)
	assert.Equal(t, []PointerFix{{Email: "a@x.com", From: "user-1000", To: "google-oauth2-1"}}, report.Repointed)
	assert.Equal(t, 2, report.KeysDeleted)

	assertMissing(t, s.store, "user:user-1000")
	assertMissing(t, s.store, "userData:user-1000")
	assert.Equal(t, "google-oauth2-1", mustGet(t, s.store, "user:email:a@x.com"))
	assert.Equal(t, `{"totalCredits":8}`, mustGet(t, s.store, "userData:google-oauth2-1"))
}

func TestCleanup_IsIdempotent(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	seed(t, s.store, map[string]string{
		"user:google-oauth2-1": profileJSON("google-oauth2-1", "a@x.com", "user"),
		"user:user-1000":       profileJSON("user-1000", "A@X.com", "user"),
		"user:user-2000":       profileJSON("user-2000", "b@x.com", "user"),
		"user:email:c@x.com":   "user-3000",
		"user:email:a@x.com":   "user-1000",
	})

	first, err := s.maintenance.CleanupDuplicates(ctx, false)
	require.NoError(t, err)
	assert.Positive(t, first.Changes())

	second, err := s.maintenance.CleanupDuplicates(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, second.Changes())
	assert.Zero(t, second.KeysDeleted)
	assert.Zero(t, second.KeysWritten)
}

func TestCleanup_RepairsPointers(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	seed(t, s.store, map[string]string{
		"user:1":                profileJSON("1", "a@x.com", "user"),
		"user:email:gone@x.com": "99",
	})

	report, err := s.maintenance.CleanupDuplicates(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, []PointerFix{{Email: "a@x.com", To: "1"}}, report.CreatedPointers)
	assert.Equal(t, []PointerFix{{Email: "gone@x.com", From: "99"}}, report.OrphanedPointers)
	assert.Equal(t, "1", mustGet(t, s.store, "user:email:a@x.com"))
	assertMissing(t, s.store, "user:email:gone@x.com")
}

func TestCleanup_NeverDeletesAdmins(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	seed(t, s.store, map[string]string{
		"user:google-oauth2-1": profileJSON("google-oauth2-1", "a@x.com", "user"),
		"user:user-1000":       profileJSON("user-1000", "a@x.com", "admin"),
		"user:email:a@x.com":   "google-oauth2-1",
	})

	report, err := s.maintenance.CleanupDuplicates(ctx, false)
	require.NoError(t, err)

	assert.Empty(t, report.Duplicates[0].Remove)
	assert.Equal(t, []string{"user-1000"}, report.Duplicates[0].SkippedAdmins)
	mustGet(t, s.store, "user:user-1000")
}

func TestCleanup_DryRunWritesNothing(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	seed(t, s.store, map[string]string{
		"user:google-oauth2-1": profileJSON("google-oauth2-1", "a@x.com", "user"),
		"user:user-1000":       profileJSON("user-1000", "a@x.com", "user"),
	})
	before, _ := s.store.Scan(ctx, "")

	report, err := s.maintenance.CleanupDuplicates(ctx, true)
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 2, report.Changes())

	after, _ := s.store.Scan(ctx, "")
	assert.Equal(t, before, after)
}

func TestCleanup_CustomPolicy(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	seed(t, s.store, map[string]string{
		"user:google-oauth2-1": profileJSON("google-oauth2-1", "a@x.com", "user"),
		"user:user-1000":       profileJSON("user-1000", "a@x.com", "user"),
	})
	keepLocal := func(c []model.UserProfile) model.UserProfile {
		for _, p := range c {
			if !IsProviderID(p.ID) {
				return p
			}
		}
		return c[0]
	}

	m := NewMaintenanceService(s.store, keepLocal, newTestLogger())
	_, err := m.CleanupDuplicates(ctx, false)
	require.NoError(t, err)

	assertMissing(t, s.store, "user:google-oauth2-1")
	assert.Equal(t, "user-1000", mustGet(t, s.store, "user:email:a@x.com"))
}

func TestCleanup_ScanFailure(t *testing.T) {
	s := newTestServices(t)
	m := NewMaintenanceService(newFailingStore(s.store, "Scan"), nil, newTestLogger())

	_, err := m.CleanupDuplicates(context.Background(), false)
	assert.ErrorIs(t, err, errStoreDown)
}

func TestMigrateEmailKeys(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	seed(t, s.store, map[string]string{
		// owned, no id-keyed data yet: copied
		"user:1":                 profileJSON("1", "a@x.com", "user"),
		"user:email:a@x.com":     "1",
		"userData:email:a@x.com": `{"totalCredits":5}`,
		// owned, different id-keyed data exists: a conflict, left in place
		"user:2":                 profileJSON("2", "b@x.com", "user"),
		"user:email:b@x.com":     "2",
		"userData:2":             `{"totalCredits":7}`,
		"userData:email:b@x.com": `{"totalCredits":1}`,
		// no owner
		"userData:email:c@x.com": `{"totalCredits":2}`,
		// pointer to a deleted profile
		"user:email:d@x.com":     "404",
		"userData:email:d@x.com": `{"totalCredits":3}`,
	})

	report, err := s.maintenance.MigrateEmailKeys(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, []KeyMove{{Email: "a@x.com", From: "userData:email:a@x.com", To: "userData:1"}}, report.Migrated)
	assert.Equal(t, []KeyMove{{Email: "b@x.com", From: "userData:email:b@x.com", To: "userData:2"}}, report.Conflicts)
	assert.Equal(t, []string{"userData:email:c@x.com", "userData:email:d@x.com"}, report.Orphaned)

	assert.Equal(t, `{"totalCredits":5}`, mustGet(t, s.store, "userData:1"))
	assert.Equal(t, `{"totalCredits":7}`, mustGet(t, s.store, "userData:2"))
	left, err := s.store.Scan(ctx, keys.LegacyEmailDataPrefix)
	require.NoError(t, err)
	assert.Equal(t, []string{"userData:email:b@x.com"}, left)

	again, err := s.maintenance.MigrateEmailKeys(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, again.Migrated)
	assert.Len(t, again.Conflicts, 1)
	assert.Empty(t, again.Orphaned)
}

func TestMigrateEmailKeys_AfterFirstRead(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	history := `{"totalCredits":50,"habits":[{"date":"2025-01-02","habit":"sleep","action":"earn","credits":2}],"rewards":[]}`
	seed(t, s.store, map[string]string{
		"user:1":                 profileJSON("1", "a@x.com", "user"),
		"user:email:a@x.com":     "1",
		"userData:email:a@x.com": history,
	})

	// The user logs in before the migration runs.
	d, err := s.data.Get(ctx, "1")
	require.NoError(t, err)
	require.Zero(t, d.TotalCredits)

	report, err := s.maintenance.MigrateEmailKeys(ctx, false)
	require.NoError(t, err)
	assert.Len(t, report.Migrated, 1)
	assert.Empty(t, report.Conflicts)

	d, err = s.data.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 50, d.TotalCredits)
	assertMissing(t, s.store, "userData:email:a@x.com")
}

func TestMigrateEmailKeys_IdenticalCopy(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	seed(t, s.store, map[string]string{
		"user:1":                 profileJSON("1", "a@x.com", "user"),
		"user:email:a@x.com":     "1",
		"userData:1":             `{"totalCredits":4}`,
		"userData:email:a@x.com": `{"totalCredits":4}`,
	})

	report, err := s.maintenance.MigrateEmailKeys(ctx, false)
	require.NoError(t, err)
	assert.Len(t, report.Migrated, 1)
	assertMissing(t, s.store, "userData:email:a@x.com")
	assert.Equal(t, `{"totalCredits":4}`, mustGet(t, s.store, "userData:1"))
}

func TestMigrateEmailKeys_MalformedTargetIsConflict(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	seed(t, s.store, map[string]string{
		"user:1":                 profileJSON("1", "a@x.com", "user"),
		"user:email:a@x.com":     "1",
		"userData:1":             "{not json",
		"userData:email:a@x.com": `{"totalCredits":4}`,
	})

	report, err := s.maintenance.MigrateEmailKeys(ctx, false)
	require.NoError(t, err)
	assert.Len(t, report.Conflicts, 1)
	assert.Equal(t, "{not json", mustGet(t, s.store, "userData:1"))
	mustGet(t, s.store, "userData:email:a@x.com")
}

func TestMaintenance_MixedCaseKeysConverge(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	seed(t, s.store, map[string]string{
		"user:1":                 profileJSON("1", "a@x.com", "user"),
		"user:email:A@X.com":     "1",
		"userData:email:B@X.com": `{"totalCredits":3}`,
	})

	first, err := s.maintenance.CleanupDuplicates(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []PointerFix{{Email: "a@x.com", To: "1"}}, first.CreatedPointers)
	assert.Equal(t, []PointerFix{{Email: "a@x.com", Key: "user:email:A@X.com", From: "1"}}, first.OrphanedPointers)
	assert.Equal(t, "1", mustGet(t, s.store, "user:email:a@x.com"))
	assertMissing(t, s.store, "user:email:A@X.com")

	second, err := s.maintenance.CleanupDuplicates(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, second.Changes())

	report, err := s.maintenance.MigrateEmailKeys(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"userData:email:B@X.com"}, report.Orphaned)
	assertMissing(t, s.store, "userData:email:B@X.com")

	again, err := s.maintenance.MigrateEmailKeys(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, again.Orphaned)
}

func TestMigrateEmailKeys_MixedCaseOwner(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	seed(t, s.store, map[string]string{
		"user:1":                 profileJSON("1", "a@x.com", "user"),
		"user:email:A@X.com":     "1",
		"userData:email:A@X.com": `{"totalCredits":6}`,
	})

	report, err := s.maintenance.MigrateEmailKeys(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []KeyMove{{Email: "a@x.com", From: "userData:email:A@X.com", To: "userData:1"}}, report.Migrated)
	assert.Equal(t, `{"totalCredits":6}`, mustGet(t, s.store, "userData:1"))
	assertMissing(t, s.store, "userData:email:A@X.com")
}

func TestMigrateEmailKeys_DryRun(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	seed(t, s.store, map[string]string{
		"user:1":                 profileJSON("1", "a@x.com", "user"),
		"user:email:a@x.com":     "1",
		"userData:email:a@x.com": `{"totalCredits":5}`,
	})

	report, err := s.maintenance.MigrateEmailKeys(ctx, true)
	require.NoError(t, err)
	assert.Len(t, report.Migrated, 1)
	mustGet(t, s.store, "userData:email:a@x.com")
	assertMissing(t, s.store, "userData:1")
}

func TestManualKeyEdits(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	m := s.maintenance

	require.NoError(t, m.SetKey(ctx, "anything goes", "v1"))
	v, err := m.GetKey(ctx, "anything goes")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	list, err := m.ListKeys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []KeyInfo{{Key: "anything goes", Kind: keys.KindOther}}, list)

	require.NoError(t, m.DeleteKey(ctx, "anything goes"))
	assert.ErrorIs(t, m.DeleteKey(ctx, "anything goes"), apperror.ErrNotFound)
	_, err = m.GetKey(ctx, "anything goes")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	assert.ErrorIs(t, m.SetKey(ctx, "", "v"), apperror.ErrValidation)
}
