package listing

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/authapi/pkg/models"
	"github.com/platinummonkey/authapi/pkg/storage/memory"
	"github.com/platinummonkey/authapi/pkg/storage/storagetest"
)

func TestParseTriState(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		def     TriState
		want    TriState
		wantErr bool
	}{
		{name: "missing uses default", query: "", def: False, want: False},
		{name: "missing uses true default", query: "", def: True, want: True},
		{name: "true", query: "archived=true", def: False, want: True},
		{name: "mixed case", query: "archived=FaLsE", def: True, want: False},
		{name: "both", query: "archived=BOTH", def: False, want: Both},
		{name: "last value wins", query: "archived=false&archived=both", def: False, want: Both},
		{name: "empty is invalid", query: "archived=", def: False, wantErr: true},
		{name: "yes is invalid", query: "archived=yes", def: False, wantErr: true},
		{name: "numeric is invalid", query: "archived=1", def: False, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := url.ParseQuery(tt.query)
			require.NoError(t, err)

			got, err := ParseTriState(params, "archived", tt.def)
			if tt.wantErr {
				var verr *models.ValidationError
				require.True(t, errors.As(err, &verr))
				assert.Equal(t, []string{InvalidTriStateMessage}, verr.Fields["archived"])
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTriStateBool(t *testing.T) {
	require.NotNil(t, True.Bool())
	assert.True(t, *True.Bool())
	require.NotNil(t, False.Bool())
	assert.False(t, *False.Bool())
	assert.Nil(t, Both.Bool())
	assert.Equal(t, "both", Both.String())
}

func TestOptionalParam(t *testing.T) {
	params := url.Values{"type": {"billing.edit", "billing.view"}, "object_id": {""}}

	got := OptionalParam(params, "type")
	require.NotNil(t, got)
	assert.Equal(t, "billing.view", *got, "last value wins")

	got = OptionalParam(params, "object_id")
	require.NotNil(t, got)
	assert.Empty(t, *got)

	assert.Nil(t, OptionalParam(params, "missing"))
}

func TestTeamFilter_PresentEmptyParamsApply(t *testing.T) {
	params, err := url.ParseQuery("permission_contains=&object_id=")
	require.NoError(t, err)

	filter, err := TeamFilter(params)
	require.NoError(t, err)
	require.NotNil(t, filter.PermissionContains)
	require.NotNil(t, filter.ObjectID)
	assert.Equal(t, "", *filter.PermissionContains)
	assert.Equal(t, "", *filter.ObjectID)
}

func TestTeamFilter_AbsentParamsDoNotApply(t *testing.T) {
	filter, err := TeamFilter(url.Values{})
	require.NoError(t, err)
	assert.Nil(t, filter.PermissionContains)
	assert.Nil(t, filter.ObjectID)
	require.NotNil(t, filter.Archived)
	assert.False(t, *filter.Archived)
}

func TestUserFilter_DefaultsToActive(t *testing.T) {
	filter, err := UserFilter(url.Values{})
	require.NoError(t, err)
	require.NotNil(t, filter.Active)
	assert.True(t, *filter.Active)

	_, err = UserFilter(url.Values{"active": {"nope"}})
	assert.True(t, models.IsValidation(err))
}

func TestEngine_Teams(t *testing.T) {
	store := memory.New()
	engine := NewEngine(store)
	ctx := context.Background()

	org := storagetest.MustOrganization(t, store, "acme")

	// predicates satisfied by different permissions of the same team
	split := storagetest.MustTeam(t, store, org.ID, "split")
	storagetest.MustPermission(t, store, split.ID, "billing.view", "7")
	storagetest.MustPermission(t, store, split.ID, "reports.view", "42")

	// two permissions both match; the team is listed once
	dup := storagetest.MustTeam(t, store, org.ID, "dup")
	storagetest.MustPermission(t, store, dup.ID, "billing.view", "42")
	storagetest.MustPermission(t, store, dup.ID, "billing.edit", "42")

	other := storagetest.MustTeam(t, store, org.ID, "other")
	storagetest.MustPermission(t, store, other.ID, "reports.view", "1")

	teams, err := engine.Teams(ctx, url.Values{
		"permission_contains": {"billing"},
		"object_id":           {"42"},
	})
	require.NoError(t, err)
	require.Len(t, teams, 2)
	assert.Equal(t, split.ID, teams[0].ID)
	assert.Equal(t, dup.ID, teams[1].ID)
	assert.Len(t, teams[1].Permissions, 2)

	_, err = engine.Teams(ctx, url.Values{"archived": {"maybe"}})
	assert.True(t, models.IsValidation(err))
}

func TestEngine_OrganizationsAndUsers(t *testing.T) {
	store := memory.New()
	engine := NewEngine(store)
	ctx := context.Background()

	live := storagetest.MustOrganization(t, store, "live")
	gone := storagetest.MustOrganization(t, store, "gone")
	require.NoError(t, store.ArchiveOrganization(ctx, gone.ID))

	orgs, err := engine.Organizations(ctx, url.Values{})
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, live.ID, orgs[0].ID)

	orgs, err = engine.Organizations(ctx, url.Values{"archived": {"Both"}})
	require.NoError(t, err)
	assert.Len(t, orgs, 2)

	alice := storagetest.MustUser(t, store, "alice")
	bob := storagetest.MustUser(t, store, "bob")
	require.NoError(t, store.DeactivateUser(ctx, bob.ID))

	users, err := engine.Users(ctx, url.Values{})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, alice.ID, users[0].ID)

	users, err = engine.Users(ctx, url.Values{"active": {"false"}})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, bob.ID, users[0].ID)
}
