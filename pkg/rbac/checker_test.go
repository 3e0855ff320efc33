package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/authapi/pkg/models"
	"github.com/platinummonkey/authapi/pkg/observability"
	"github.com/platinummonkey/authapi/pkg/storage/memory"
	"github.com/platinummonkey/authapi/pkg/storage/storagetest"
)

func TestChecker_EffectivePermissions(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	org := storagetest.MustOrganization(t, store, "acme")
	billing := storagetest.MustTeam(t, store, org.ID, "billing")
	archived := storagetest.MustTeam(t, store, org.ID, "legacy")
	other := storagetest.MustTeam(t, store, org.ID, "other")
	alice := storagetest.MustUser(t, store, "alice")

	view := storagetest.MustPermission(t, store, billing.ID, "billing.view", "invoice-1")
	storagetest.MustPermission(t, store, archived.ID, "billing.edit", "invoice-1")
	storagetest.MustPermission(t, store, other.ID, "ops.deploy", "svc-1")
	edit := storagetest.MustPermission(t, store, billing.ID, "billing.edit", "invoice-2")

	require.NoError(t, store.ArchiveTeam(ctx, archived.ID))
	require.NoError(t, store.AddTeamMember(ctx, billing.ID, alice.ID))
	require.NoError(t, store.AddTeamMember(ctx, archived.ID, alice.ID))

	checker := NewChecker(store, nil, nil)

	perms, err := checker.EffectivePermissions(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, perms, 2)
	assert.Equal(t, view.ID, perms[0].ID)
	assert.Equal(t, edit.ID, perms[1].ID)

	ok, err := checker.HasPermission(ctx, alice.ID, "billing.view", "invoice-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = checker.HasPermission(ctx, alice.ID, "billing.edit", "invoice-1")
	require.NoError(t, err)
	assert.False(t, ok, "archived team grants nothing")

	ok, err = checker.HasPermission(ctx, alice.ID, "ops.deploy", "svc-1")
	require.NoError(t, err)
	assert.False(t, ok, "not a member")
}

func TestChecker_InactiveUserHoldsNothing(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	org := storagetest.MustOrganization(t, store, "acme")
	team := storagetest.MustTeam(t, store, org.ID, "billing")
	bob := storagetest.MustUser(t, store, "bob")
	storagetest.MustPermission(t, store, team.ID, "billing.view", "invoice-1")
	require.NoError(t, store.AddTeamMember(ctx, team.ID, bob.ID))

	require.NoError(t, store.DeactivateUser(ctx, bob.ID))

	perms, err := NewChecker(store, nil, nil).EffectivePermissions(ctx, bob.ID)
	require.NoError(t, err)
	assert.NotNil(t, perms)
	assert.Empty(t, perms)
}

func TestChecker_MissingUser(t *testing.T) {
	_, err := NewChecker(memory.New(), nil, nil).HasPermission(context.Background(), 9999, "a", "b")
	assert.True(t, models.IsNotFound(err))
}

func TestChecker_UsesCacheUntilInvalidated(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	org := storagetest.MustOrganization(t, store, "acme")
	team := storagetest.MustTeam(t, store, org.ID, "billing")
	alice := storagetest.MustUser(t, store, "alice")
	require.NoError(t, store.AddTeamMember(ctx, team.ID, alice.ID))

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	cache := NewMemoryCache(10, time.Minute, metrics)
	checker := NewChecker(store, cache, metrics)
	svc := NewService(store, cache, nil, metrics)

	ok, err := checker.HasPermission(ctx, alice.ID, "billing.view", "invoice-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Len())

	// a write that bypasses the service is not seen while cached
	storagetest.MustPermission(t, store, team.ID, "billing.view", "invoice-1")
	ok, err = checker.HasPermission(ctx, alice.ID, "billing.view", "invoice-1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.GrantPermission(ctx, team.ID, "billing.edit", "invoice-1")
	require.NoError(t, err)
	assert.Equal(t, 0, cache.Len())

	ok, err = checker.HasPermission(ctx, alice.ID, "billing.view", "invoice-1")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues("l1")))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.CacheMissesTotal.WithLabelValues("l1")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheInvalidationsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PermissionChecksTotal.WithLabelValues("allowed")))
}

type failingCache struct{}

func (failingCache) Get(context.Context, int64) ([]models.Permission, error) {
	return nil, errors.New("redis down")
}
func (failingCache) Generation(context.Context) (Generation, error) {
	return Generation{}, errors.New("redis down")
}
func (failingCache) Set(context.Context, int64, Generation, []models.Permission) error {
	return errors.New("redis down")
}
func (failingCache) Invalidate(context.Context) error { return errors.New("redis down") }

func TestChecker_CacheErrorsFallBackToStore(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	org := storagetest.MustOrganization(t, store, "acme")
	team := storagetest.MustTeam(t, store, org.ID, "billing")
	alice := storagetest.MustUser(t, store, "alice")
	require.NoError(t, store.AddTeamMember(ctx, team.ID, alice.ID))
	storagetest.MustPermission(t, store, team.ID, "billing.view", "invoice-1")

	ok, err := NewChecker(store, failingCache{}, nil).HasPermission(ctx, alice.ID, "billing.view", "invoice-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// and mutations still succeed when invalidation fails
	_, err = NewService(store, failingCache{}, nil, nil).GrantPermission(ctx, team.ID, "billing.edit", "x")
	assert.NoError(t, err)
}

// interleavedStore runs during once inside the first ListUserTeams call,
// after the user's teams have been read
type interleavedStore struct {
	CheckerStore
	during func()
	done   bool
}

func (s *interleavedStore) ListUserTeams(ctx context.Context, userID int64) ([]*models.Team, error) {
	teams, err := s.CheckerStore.ListUserTeams(ctx, userID)
	if !s.done {
		s.done = true
		s.during()
	}
	return teams, err
}

func TestChecker_RevokeDuringResolve(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	org := storagetest.MustOrganization(t, store, "acme")
	team := storagetest.MustTeam(t, store, org.ID, "billing")
	alice := storagetest.MustUser(t, store, "alice")
	require.NoError(t, store.AddTeamMember(ctx, team.ID, alice.ID))
	perm := storagetest.MustPermission(t, store, team.ID, "billing.view", "invoice-1")

	_, client := setupRedis(t)
	caches := map[string]func() PermissionCache{
		"memory": func() PermissionCache { return NewMemoryCache(10, time.Minute, nil) },
		"redis":  func() PermissionCache { return NewRedisCache(client, time.Minute, nil) },
		"tiered": func() PermissionCache {
			return NewTieredCache(NewMemoryCache(10, time.Minute, nil), NewRedisCache(client, time.Minute, nil))
		},
	}

	for name, newCache := range caches {
		t.Run(name, func(t *testing.T) {
			perm := storagetest.MustPermission(t, store, team.ID, perm.Type, perm.ObjectID)
			cache := newCache()
			svc := NewService(store, cache, nil, nil)
			wrapped := &interleavedStore{CheckerStore: store, during: func() {
				require.NoError(t, svc.RevokePermission(ctx, team.ID, perm.ID))
			}}
			checker := NewChecker(wrapped, cache, nil)

			// the first resolve still sees the grant it read before the revoke
			perms, err := checker.EffectivePermissions(ctx, alice.ID)
			require.NoError(t, err)
			ids := make([]int64, 0, len(perms))
			for _, p := range perms {
				ids = append(ids, p.ID)
			}
			assert.Contains(t, ids, perm.ID)

			perms, err = checker.EffectivePermissions(ctx, alice.ID)
			require.NoError(t, err)
			for _, p := range perms {
				assert.NotEqual(t, perm.ID, p.ID, "revoked grant served from cache")
			}
		})
	}
}
