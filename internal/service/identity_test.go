package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/habit-rewards/internal/apperror"
	"github.com/sakif/habit-rewards/internal/keys"
	"github.com/sakif/habit-rewards/internal/model"
)

func alice(subject string) model.ExternalIdentity {
	return model.ExternalIdentity{Subject: subject, Email: " Alice@Example.com ", Name: "Alice", Picture: "https://img/a.png"}
}

func TestResolve_FirstLoginCreatesProfileAndPointer(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	p, err := s.resolver.Resolve(ctx, alice("1001"))
	require.NoError(t, err)

	assert.Equal(t, "1001", p.ID)
	assert.Equal(t, "alice@example.com", p.Email)
	assert.Equal(t, model.RoleUser, p.Role)
	assert.Equal(t, "1001", mustGet(t, s.store, "user:email:alice@example.com"))

	var stored model.UserProfile
	require.NoError(t, json.Unmarshal([]byte(mustGet(t, s.store, "user:1001")), &stored))
	assert.Equal(t, *p, stored)
}

func TestResolve_AdminEmailGetsAdminRole(t *testing.T) {
	s := newTestServices(t)

	p, err := s.resolver.Resolve(context.Background(), model.ExternalIdentity{Subject: "7", Email: "boss@example.COM"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, p.Role)
	assert.Equal(t, "boss@example.com", p.Name, "name falls back to the email")
}

func TestResolve_IdempotentForSameSubject(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	first, err := s.resolver.Resolve(ctx, alice("1001"))
	require.NoError(t, err)
	second, err := s.resolver.Resolve(ctx, alice("1001"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	profiles, err := s.store.Scan(ctx, keys.ProfilePrefix)
	require.NoError(t, err)
	assert.Equal(t, []string{"user:1001", "user:email:alice@example.com"}, profiles)
}

func TestResolve_NewSubjectForKnownEmailKeepsOriginalID(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	_, err := s.resolver.Resolve(ctx, alice("1001"))
	require.NoError(t, err)

	p, err := s.resolver.Resolve(ctx, alice("2002"))
	require.NoError(t, err)

	assert.Equal(t, "1001", p.ID)
	assertMissing(t, s.store, "user:2002")
}

func TestResolve_KeepsStoredRole(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	seed(t, s.store, map[string]string{
		"user:1001":                    `{"id":"1001","name":"Alice","email":"alice@example.com","role":"admin"}`,
		"user:email:alice@example.com": "1001",
	})

	p, err := s.resolver.Resolve(ctx, alice("1001"))
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, p.Role)
}

func TestResolve_RefreshesDisplayFields(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	_, err := s.resolver.Resolve(ctx, alice("1001"))
	require.NoError(t, err)

	renamed := alice("1001")
	renamed.Name = "Alice B."
	renamed.Picture = "https://img/b.png"
	p, err := s.resolver.Resolve(ctx, renamed)
	require.NoError(t, err)

	assert.Equal(t, "Alice B.", p.Name)
	assert.Equal(t, "https://img/b.png", p.Image)
	assert.Contains(t, mustGet(t, s.store, "user:1001"), "Alice B.")
}

func TestResolve_OrphanedPointerRecreatesUnderCurrentSubject(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	seed(t, s.store, map[string]string{"user:email:alice@example.com": "gone-id"})

	p, err := s.resolver.Resolve(ctx, alice("3003"))
	require.NoError(t, err)

	assert.Equal(t, "3003", p.ID)
	assert.Equal(t, "3003", mustGet(t, s.store, "user:email:alice@example.com"))
	mustGet(t, s.store, "user:3003")
}

func TestResolve_ProfileWithoutPointerIsReused(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	seed(t, s.store, map[string]string{
		"user:1001": `{"id":"1001","name":"Alice","email":"alice@example.com","role":"admin"}`,
	})

	p, err := s.resolver.Resolve(ctx, alice("1001"))
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, p.Role)
	assert.Equal(t, "1001", mustGet(t, s.store, "user:email:alice@example.com"))
}

func TestResolve_RejectsMissingEmailOrSubject(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	_, err := s.resolver.Resolve(ctx, model.ExternalIdentity{Subject: "1", Email: "  "})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = s.resolver.Resolve(ctx, model.ExternalIdentity{Subject: "", Email: "a@x.com"})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	keysLeft, err := s.store.Scan(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keysLeft)
}

func TestResolve_ConcurrentFirstLoginsConvergeOnOneProfile(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := s.resolver.Resolve(ctx, alice(string(rune('a'+i))+"-oauth2-1"))
			if err == nil {
				ids[i] = p.ID
			}
		}()
	}
	wg.Wait()

	owner := mustGet(t, s.store, "user:email:alice@example.com")
	for i, id := range ids {
		assert.Equal(t, owner, id, "login %d", i)
	}
	profiles, err := s.maintenance.Inventory(ctx)
	require.NoError(t, err)
	require.Len(t, profiles.Profiles, 1)
	assert.Equal(t, owner, profiles.Profiles[0].ID)
}

func TestResolve_StoreFailuresSurface(t *testing.T) {
	s := newTestServices(t)

	for _, op := range []string{"Get", "Set", "SetNX"} {
		t.Run(op, func(t *testing.T) {
			r := NewIdentityResolver(newFailingStore(s.store, op), "", newTestLogger())
			_, err := r.Resolve(context.Background(), alice("1001"))
			assert.ErrorIs(t, err, errStoreDown)
		})
	}
}
