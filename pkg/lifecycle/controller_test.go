package lifecycle

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/authapi/pkg/audit"
	"github.com/platinummonkey/authapi/pkg/audit/audittest"
	"github.com/platinummonkey/authapi/pkg/models"
	"github.com/platinummonkey/authapi/pkg/storage"
	"github.com/platinummonkey/authapi/pkg/storage/memory"
	"github.com/platinummonkey/authapi/pkg/storage/storagetest"
)

type countingInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil
}

func setup(t *testing.T) (*Controller, *memory.Store, *countingInvalidator, *audittest.Recorder) {
	t.Helper()
	store := memory.New()
	inv := &countingInvalidator{}
	rec := audittest.NewRecorder()
	return NewController(store, inv, rec, nil), store, inv, rec
}

func TestArchiveOrganization(t *testing.T) {
	c, store, inv, rec := setup(t)
	ctx := context.Background()
	org := storagetest.MustOrganization(t, store, "acme")
	team := storagetest.MustTeam(t, store, org.ID, "billing")

	got, err := c.ArchiveOrganization(ctx, org.ID)
	require.NoError(t, err)
	assert.True(t, got.Archived)

	stored, err := store.GetOrganization(ctx, org.ID)
	require.NoError(t, err)
	assert.True(t, stored.Archived)

	// no cascade
	storedTeam, err := store.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	assert.False(t, storedTeam.Archived)

	assert.Equal(t, 1, inv.calls)
	require.NotNil(t, rec.Last())
	assert.Equal(t, audit.EventTypeOrgArchive, rec.Last().EventType)
	assert.Equal(t, audit.EventStatusSuccess, rec.Last().Status)

	// hidden from the default listing, visible with archived=true
	f := false
	listed, err := store.ListOrganizations(ctx, storage.OrganizationFilter{Archived: &f})
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestArchiveOrganization_Idempotent(t *testing.T) {
	c, store, inv, rec := setup(t)
	ctx := context.Background()
	org := storagetest.MustOrganization(t, store, "acme")

	_, err := c.ArchiveOrganization(ctx, org.ID)
	require.NoError(t, err)
	got, err := c.ArchiveOrganization(ctx, org.ID)
	require.NoError(t, err)
	assert.True(t, got.Archived)

	assert.Equal(t, 1, inv.calls)
	assert.Equal(t, audit.EventStatusNoop, rec.Last().Status)
}

func TestArchiveTeam(t *testing.T) {
	c, store, _, rec := setup(t)
	ctx := context.Background()
	org := storagetest.MustOrganization(t, store, "acme")
	team := storagetest.MustTeam(t, store, org.ID, "billing")
	perm := storagetest.MustPermission(t, store, team.ID, "billing.view", "invoice-1")

	got, err := c.ArchiveTeam(ctx, team.ID)
	require.NoError(t, err)
	assert.True(t, got.Archived)

	stored, err := store.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	assert.True(t, stored.Archived)
	require.Len(t, stored.Permissions, 1)
	assert.Equal(t, perm.ID, stored.Permissions[0].ID)

	assert.Equal(t, audit.EventTypeTeamArchive, rec.Last().EventType)
	assert.Equal(t, models.KindTeam, rec.Last().ResourceType)
}

func TestDeactivateUser(t *testing.T) {
	c, store, _, rec := setup(t)
	ctx := context.Background()
	org := storagetest.MustOrganization(t, store, "acme")
	user := storagetest.MustUser(t, store, "alice")
	require.NoError(t, store.AddOrganizationMember(ctx, org.ID, user.ID))

	got, err := c.DeactivateUser(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	stored, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)

	member, err := store.HasOrganizationMember(ctx, org.ID, user.ID)
	require.NoError(t, err)
	assert.True(t, member, "membership survives deactivation")

	_, err = c.DeactivateUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, audit.EventTypeUserDeactivate, rec.Last().EventType)
	assert.Equal(t, audit.EventStatusNoop, rec.Last().Status)
}

func TestRetire_NotFound(t *testing.T) {
	c, _, inv, rec := setup(t)
	ctx := context.Background()

	tests := []struct {
		name string
		kind models.Kind
		call func() error
	}{
		{"organization", models.KindOrganization, func() error { _, err := c.ArchiveOrganization(ctx, 9999); return err }},
		{"team", models.KindTeam, func() error { _, err := c.ArchiveTeam(ctx, 9999); return err }},
		{"user", models.KindUser, func() error { _, err := c.DeactivateUser(ctx, 9999); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var nf *models.NotFoundError
			require.ErrorAs(t, tt.call(), &nf)
			assert.Equal(t, tt.kind, nf.Kind)
			assert.Equal(t, int64(9999), nf.ID)
		})
	}

	assert.Zero(t, inv.calls)
	assert.Empty(t, rec.Events())
}

func TestArchive_Concurrent(t *testing.T) {
	c, store, _, _ := setup(t)
	ctx := context.Background()
	org := storagetest.MustOrganization(t, store, "acme")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.ArchiveOrganization(ctx, org.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := store.GetOrganization(ctx, org.ID)
	require.NoError(t, err)
	assert.True(t, stored.Archived)
}

func TestRetire_SurvivesStaleUpdate(t *testing.T) {
	c, store, _, _ := setup(t)
	ctx := context.Background()
	org := storagetest.MustOrganization(t, store, "acme")
	team := storagetest.MustTeam(t, store, org.ID, "billing")
	user := storagetest.MustUser(t, store, "alice")

	// copies read before the retirement commits
	staleOrg, err := store.GetOrganization(ctx, org.ID)
	require.NoError(t, err)
	staleTeam, err := store.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	staleUser, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)

	_, err = c.ArchiveOrganization(ctx, org.ID)
	require.NoError(t, err)
	_, err = c.ArchiveTeam(ctx, team.ID)
	require.NoError(t, err)
	_, err = c.DeactivateUser(ctx, user.ID)
	require.NoError(t, err)

	staleOrg.Name = "acme-renamed"
	require.NoError(t, store.UpdateOrganization(ctx, staleOrg))
	assert.True(t, staleOrg.Archived, "update reports the stored flag")
	staleTeam.Name = "billing-renamed"
	require.NoError(t, store.UpdateTeam(ctx, staleTeam))
	staleUser.Email = "alice@example.com"
	require.NoError(t, store.UpdateUser(ctx, staleUser))

	gotOrg, err := store.GetOrganization(ctx, org.ID)
	require.NoError(t, err)
	assert.True(t, gotOrg.Archived)
	assert.Equal(t, "acme-renamed", gotOrg.Name)

	gotTeam, err := store.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	assert.True(t, gotTeam.Archived)

	gotUser, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, gotUser.Active)
	assert.Equal(t, "alice@example.com", gotUser.Email)
}

func TestArchive_ConcurrentWithUpdate(t *testing.T) {
	c, store, _, _ := setup(t)
	ctx := context.Background()
	org := storagetest.MustOrganization(t, store, "acme")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := c.ArchiveOrganization(ctx, org.ID)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			current, err := store.GetOrganization(ctx, org.ID)
			if !assert.NoError(t, err) {
				return
			}
			current.Archived = false
			assert.NoError(t, store.UpdateOrganization(ctx, current))
		}()
	}
	wg.Wait()

	stored, err := store.GetOrganization(ctx, org.ID)
	require.NoError(t, err)
	assert.True(t, stored.Archived)
}
