// Package storagetest holds behavioural tests shared by every storage.Store
// implementation.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/authapi/pkg/models"
	"github.com/platinummonkey/authapi/pkg/storage"
)

// Factory returns a fresh, empty store for a single subtest
type Factory func(t *testing.T) storage.Store

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }

// Run executes the shared store suite against stores built by newStore
func Run(t *testing.T, newStore Factory) {
	t.Run("organizations", func(t *testing.T) { testOrganizations(t, newStore(t)) })
	t.Run("teams", func(t *testing.T) { testTeams(t, newStore(t)) })
	t.Run("team filters", func(t *testing.T) { testTeamFilters(t, newStore(t)) })
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("permissions", func(t *testing.T) { testPermissions(t, newStore(t)) })
	t.Run("memberships", func(t *testing.T) { testMemberships(t, newStore(t)) })
	t.Run("counts", func(t *testing.T) { testCounts(t, newStore(t)) })
}

// MustOrganization creates an organization or fails the test
func MustOrganization(t *testing.T, s storage.Store, name string) *models.Organization {
	t.Helper()
	org := models.NewOrganization(name)
	require.NoError(t, s.CreateOrganization(context.Background(), org))
	return org
}

// MustTeam creates a team or fails the test
func MustTeam(t *testing.T, s storage.Store, orgID int64, name string) *models.Team {
	t.Helper()
	team := models.NewTeam(orgID, name)
	require.NoError(t, s.CreateTeam(context.Background(), team))
	return team
}

// MustUser creates a user or fails the test
func MustUser(t *testing.T, s storage.Store, username string) *models.User {
	t.Helper()
	user := models.NewUser(username)
	require.NoError(t, s.CreateUser(context.Background(), user))
	return user
}

// MustPermission creates a permission or fails the test
func MustPermission(t *testing.T, s storage.Store, teamID int64, permType, objectID string) *models.Permission {
	t.Helper()
	perm := &models.Permission{TeamID: teamID, Type: permType, ObjectID: objectID}
	require.NoError(t, s.CreatePermission(context.Background(), perm))
	return perm
}

func testOrganizations(t *testing.T, s storage.Store) {
	ctx := context.Background()

	a := MustOrganization(t, s, "acme")
	b := MustOrganization(t, s, "globex")
	assert.NotZero(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.CreatedAt.IsZero())

	got, err := s.GetOrganization(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Name)
	assert.False(t, got.Archived)

	require.NoError(t, s.ArchiveOrganization(ctx, b.ID))
	require.NoError(t, s.ArchiveOrganization(ctx, b.ID))

	// updates never clear the flag, even from a copy read before archiving
	b.Name = "globex-renamed"
	b.Archived = false
	require.NoError(t, s.UpdateOrganization(ctx, b))
	assert.True(t, b.Archived)

	all, err := s.ListOrganizations(ctx, storage.OrganizationFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID)

	live, err := s.ListOrganizations(ctx, storage.OrganizationFilter{Archived: boolPtr(false)})
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "acme", live[0].Name)

	archived, err := s.ListOrganizations(ctx, storage.OrganizationFilter{Archived: boolPtr(true)})
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, "globex-renamed", archived[0].Name)

	_, err = s.GetOrganization(ctx, 9999)
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = s.UpdateOrganization(ctx, &models.Organization{ID: 9999, Name: "ghost"})
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, s.ArchiveOrganization(ctx, 9999), models.ErrNotFound)
}

func testTeams(t *testing.T, s storage.Store) {
	ctx := context.Background()
	org := MustOrganization(t, s, "acme")

	team := MustTeam(t, s, org.ID, "billing")
	assert.NotZero(t, team.ID)

	got, err := s.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, org.ID, got.OrganizationID)
	assert.NotNil(t, got.Permissions)
	assert.Empty(t, got.Permissions)

	MustPermission(t, s, team.ID, "billing.view", "42")
	got, err = s.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	require.Len(t, got.Permissions, 1)
	assert.Equal(t, "billing.view", got.Permissions[0].Type)

	got.Name = "finance"
	got.Archived = true
	require.NoError(t, s.UpdateTeam(ctx, got))
	assert.False(t, got.Archived, "update does not archive")

	require.NoError(t, s.ArchiveTeam(ctx, team.ID))
	got.Archived = false
	require.NoError(t, s.UpdateTeam(ctx, got))
	assert.True(t, got.Archived)

	got, err = s.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, "finance", got.Name)
	assert.True(t, got.Archived)
	assert.ErrorIs(t, s.ArchiveTeam(ctx, 9999), models.ErrNotFound)

	_, err = s.GetTeam(ctx, 9999)
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = s.CreateTeam(ctx, models.NewTeam(9999, "orphan"))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func testTeamFilters(t *testing.T, s storage.Store) {
	ctx := context.Background()
	org := MustOrganization(t, s, "acme")

	// t1 holds both predicates on different rows
	t1 := MustTeam(t, s, org.ID, "split")
	MustPermission(t, s, t1.ID, "billing.view", "7")
	MustPermission(t, s, t1.ID, "reports.view", "42")

	// t2 holds both predicates on the same row, twice
	t2 := MustTeam(t, s, org.ID, "same-row")
	MustPermission(t, s, t2.ID, "billing.view", "42")
	MustPermission(t, s, t2.ID, "billing.edit", "42")

	// t3 matches object only
	t3 := MustTeam(t, s, org.ID, "object-only")
	MustPermission(t, s, t3.ID, "reports.view", "42")

	// t4 matches both but is archived
	t4 := MustTeam(t, s, org.ID, "archived")
	MustPermission(t, s, t4.ID, "billing.view", "42")
	require.NoError(t, s.ArchiveTeam(ctx, t4.ID))

	ids := func(teams []*models.Team) []int64 {
		out := make([]int64, 0, len(teams))
		for _, team := range teams {
			out = append(out, team.ID)
		}
		return out
	}

	got, err := s.ListTeams(ctx, storage.TeamFilter{
		Archived:           boolPtr(false),
		PermissionContains: strPtr("billing"),
		ObjectID:           strPtr("42"),
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{t1.ID, t2.ID}, ids(got))

	got, err = s.ListTeams(ctx, storage.TeamFilter{ObjectID: strPtr("42")})
	require.NoError(t, err)
	assert.Equal(t, []int64{t1.ID, t2.ID, t3.ID, t4.ID}, ids(got))

	got, err = s.ListTeams(ctx, storage.TeamFilter{PermissionContains: strPtr("Billing")})
	require.NoError(t, err)
	assert.Empty(t, got, "substring match is case-sensitive")

	// an empty substring matches any team with at least one permission
	empty := MustTeam(t, s, org.ID, "no-perms")
	got, err = s.ListTeams(ctx, storage.TeamFilter{PermissionContains: strPtr("")})
	require.NoError(t, err)
	assert.NotContains(t, ids(got), empty.ID)
	assert.Len(t, got, 4)

	// an empty object id matches only permissions with an empty object id
	got, err = s.ListTeams(ctx, storage.TeamFilter{ObjectID: strPtr("")})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.ListTeams(ctx, storage.TeamFilter{Archived: boolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, []int64{t4.ID}, ids(got))
}

func testUsers(t *testing.T, s storage.Store) {
	ctx := context.Background()

	alice := MustUser(t, s, "alice")
	bob := MustUser(t, s, "bob")
	assert.True(t, alice.Active)

	err := s.CreateUser(ctx, models.NewUser("alice"))
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))

	bob.Active = false
	require.NoError(t, s.UpdateUser(ctx, bob))
	assert.True(t, bob.Active, "update does not deactivate")

	require.NoError(t, s.DeactivateUser(ctx, bob.ID))
	bob.Active = true
	bob.Email = "bob@example.com"
	require.NoError(t, s.UpdateUser(ctx, bob))
	assert.False(t, bob.Active)

	got, err := s.GetUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, "bob@example.com", got.Email)

	active, err := s.ListUsers(ctx, storage.UserFilter{Active: boolPtr(true)})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, alice.ID, active[0].ID)

	all, err := s.ListUsers(ctx, storage.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = s.GetUser(ctx, 9999)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, s.DeactivateUser(ctx, 9999), models.ErrNotFound)
}

func testPermissions(t *testing.T, s storage.Store) {
	ctx := context.Background()
	org := MustOrganization(t, s, "acme")
	team := MustTeam(t, s, org.ID, "billing")

	p1 := MustPermission(t, s, team.ID, "billing.view", "42")
	p2 := MustPermission(t, s, team.ID, "billing.view", "42")
	assert.NotEqual(t, p1.ID, p2.ID, "duplicates are allowed")

	got, err := s.GetPermission(ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, team.ID, got.TeamID)
	assert.Equal(t, "42", got.ObjectID)

	perms, err := s.ListTeamPermissions(ctx, team.ID)
	require.NoError(t, err)
	assert.Len(t, perms, 2)

	require.NoError(t, s.DeletePermission(ctx, p1.ID))
	_, err = s.GetPermission(ctx, p1.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, s.DeletePermission(ctx, p1.ID), models.ErrNotFound)

	_, err = s.ListTeamPermissions(ctx, 9999)
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = s.CreatePermission(ctx, &models.Permission{TeamID: 9999, Type: "x", ObjectID: "y"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func testMemberships(t *testing.T, s storage.Store) {
	ctx := context.Background()
	org := MustOrganization(t, s, "acme")
	team := MustTeam(t, s, org.ID, "billing")
	alice := MustUser(t, s, "alice")
	bob := MustUser(t, s, "bob")

	require.NoError(t, s.AddOrganizationMember(ctx, org.ID, bob.ID))
	require.NoError(t, s.AddOrganizationMember(ctx, org.ID, alice.ID))
	require.NoError(t, s.AddOrganizationMember(ctx, org.ID, alice.ID), "add is idempotent")

	ok, err := s.HasOrganizationMember(ctx, org.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	members, err := s.ListOrganizationMembers(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, alice.ID, members[0].ID)

	require.NoError(t, s.RemoveOrganizationMember(ctx, org.ID, alice.ID))
	require.NoError(t, s.RemoveOrganizationMember(ctx, org.ID, alice.ID), "remove is idempotent")
	ok, err = s.HasOrganizationMember(ctx, org.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.AddTeamMember(ctx, team.ID, alice.ID))
	require.NoError(t, s.AddTeamMember(ctx, team.ID, alice.ID))
	ok, err = s.HasTeamMember(ctx, team.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	members, err = s.ListTeamMembers(ctx, team.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)

	teams, err := s.ListUserTeams(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, team.ID, teams[0].ID)

	teams, err = s.ListUserTeams(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, teams)

	require.NoError(t, s.RemoveTeamMember(ctx, team.ID, alice.ID))
	ok, err = s.HasTeamMember(ctx, team.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, s.AddOrganizationMember(ctx, 9999, alice.ID), models.ErrNotFound)
	assert.ErrorIs(t, s.AddTeamMember(ctx, team.ID, 9999), models.ErrNotFound)
	_, err = s.ListTeamMembers(ctx, 9999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func testCounts(t *testing.T, s storage.Store) {
	ctx := context.Background()
	org := MustOrganization(t, s, "acme")
	MustTeam(t, s, org.ID, "a")
	MustTeam(t, s, org.ID, "b")
	MustUser(t, s, "alice")

	n, err := s.CountOrganizations(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.CountTeams(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.NoError(t, s.HealthCheck(ctx))
}
