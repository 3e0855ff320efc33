package membership

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/authapi/pkg/audit"
	"github.com/platinummonkey/authapi/pkg/audit/audittest"
	"github.com/platinummonkey/authapi/pkg/models"
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

type fixture struct {
	svc   *Service
	store *memory.Store
	inv   *countingInvalidator
	rec   *audittest.Recorder
	org   *models.Organization
	team  *models.Team
	user  *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	inv := &countingInvalidator{}
	rec := audittest.NewRecorder()
	org := storagetest.MustOrganization(t, store, "acme")
	return &fixture{
		svc:   NewService(store, inv, rec, nil),
		store: store,
		inv:   inv,
		rec:   rec,
		org:   org,
		team:  storagetest.MustTeam(t, store, org.ID, "billing"),
		user:  storagetest.MustUser(t, store, "alice"),
	}
}

// ops exercises both relations through the same table
type ops struct {
	name   string
	kind   models.Kind
	parent func(f *fixture) int64
	add    func(f *fixture, parentID, userID int64) error
	remove func(f *fixture, parentID, userID int64) error
	list   func(f *fixture, parentID int64) ([]*models.User, error)
	events [2]audit.EventType
}

var relations = []ops{
	{
		name:   "organization",
		kind:   models.KindOrganization,
		parent: func(f *fixture) int64 { return f.org.ID },
		add: func(f *fixture, p, u int64) error {
			return f.svc.AddOrgMember(context.Background(), p, u)
		},
		remove: func(f *fixture, p, u int64) error {
			return f.svc.RemoveOrgMember(context.Background(), p, u)
		},
		list: func(f *fixture, p int64) ([]*models.User, error) {
			return f.svc.ListOrgMembers(context.Background(), p)
		},
		events: [2]audit.EventType{audit.EventTypeOrgMemberAdd, audit.EventTypeOrgMemberRemove},
	},
	{
		name:   "team",
		kind:   models.KindTeam,
		parent: func(f *fixture) int64 { return f.team.ID },
		add: func(f *fixture, p, u int64) error {
			return f.svc.AddTeamMember(context.Background(), p, u)
		},
		remove: func(f *fixture, p, u int64) error {
			return f.svc.RemoveTeamMember(context.Background(), p, u)
		},
		list: func(f *fixture, p int64) ([]*models.User, error) {
			return f.svc.ListTeamMembers(context.Background(), p)
		},
		events: [2]audit.EventType{audit.EventTypeTeamMemberAdd, audit.EventTypeTeamMemberRemove},
	},
}

func TestAddMember(t *testing.T) {
	for _, rel := range relations {
		t.Run(rel.name, func(t *testing.T) {
			f := newFixture(t)
			parentID := rel.parent(f)

			require.NoError(t, rel.add(f, parentID, f.user.ID))
			members, err := rel.list(f, parentID)
			require.NoError(t, err)
			require.Len(t, members, 1)
			assert.Equal(t, f.user.ID, members[0].ID)

			assert.Equal(t, 1, f.inv.calls)
			last := f.rec.Last()
			assert.Equal(t, rel.events[0], last.EventType)
			assert.Equal(t, audit.EventStatusSuccess, last.Status)
			assert.Equal(t, f.user.ID, last.SubjectID)

			// adding again is a no-op
			require.NoError(t, rel.add(f, parentID, f.user.ID))
			members, err = rel.list(f, parentID)
			require.NoError(t, err)
			assert.Len(t, members, 1)
			assert.Equal(t, 1, f.inv.calls)
			assert.Equal(t, audit.EventStatusNoop, f.rec.Last().Status)
		})
	}
}

func TestAddMember_Errors(t *testing.T) {
	for _, rel := range relations {
		t.Run(rel.name, func(t *testing.T) {
			f := newFixture(t)
			parentID := rel.parent(f)

			for _, bad := range []int64{0, -3} {
				err := rel.add(f, parentID, bad)
				var verr *models.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Contains(t, verr.Fields, "user_id")
			}

			var nf *models.NotFoundError
			require.ErrorAs(t, rel.add(f, 9999, f.user.ID), &nf)
			assert.Equal(t, rel.kind, nf.Kind)

			require.ErrorAs(t, rel.add(f, parentID, 9999), &nf)
			assert.Equal(t, models.KindUser, nf.Kind)

			// missing parent is reported before missing user
			require.ErrorAs(t, rel.add(f, 9999, 9999), &nf)
			assert.Equal(t, rel.kind, nf.Kind)

			assert.Zero(t, f.inv.calls)
		})
	}
}

func TestAddMember_IgnoresRetiredState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.ArchiveOrganization(ctx, f.org.ID))
	require.NoError(t, f.store.ArchiveTeam(ctx, f.team.ID))
	require.NoError(t, f.store.DeactivateUser(ctx, f.user.ID))

	assert.NoError(t, f.svc.AddOrgMember(ctx, f.org.ID, f.user.ID))
	assert.NoError(t, f.svc.AddTeamMember(ctx, f.team.ID, f.user.ID))
}

func TestRemoveMember(t *testing.T) {
	for _, rel := range relations {
		t.Run(rel.name, func(t *testing.T) {
			f := newFixture(t)
			parentID := rel.parent(f)
			bob := storagetest.MustUser(t, f.store, "bob")

			require.NoError(t, rel.add(f, parentID, f.user.ID))
			require.NoError(t, rel.add(f, parentID, bob.ID))

			require.NoError(t, rel.remove(f, parentID, f.user.ID))
			members, err := rel.list(f, parentID)
			require.NoError(t, err)
			require.Len(t, members, 1)
			assert.Equal(t, bob.ID, members[0].ID)
			assert.Equal(t, rel.events[1], f.rec.Last().EventType)
			assert.Equal(t, audit.EventStatusSuccess, f.rec.Last().Status)

			// removing a non-member succeeds
			calls := f.inv.calls
			require.NoError(t, rel.remove(f, parentID, f.user.ID))
			assert.Equal(t, calls, f.inv.calls)
			assert.Equal(t, audit.EventStatusNoop, f.rec.Last().Status)

			assert.True(t, models.IsNotFound(rel.remove(f, 9999, bob.ID)))
			assert.True(t, models.IsNotFound(rel.remove(f, parentID, 9999)))
		})
	}
}

func TestListMembers_MissingParent(t *testing.T) {
	for _, rel := range relations {
		t.Run(rel.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := rel.list(f, 9999)
			assert.True(t, models.IsNotFound(err))
		})
	}
}

func TestAddMember_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.svc.AddTeamMember(ctx, f.team.ID, f.user.ID))
		}()
	}
	wg.Wait()

	members, err := f.svc.ListTeamMembers(ctx, f.team.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestMembershipIndependentOfOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// a team member need not belong to the team's organization
	require.NoError(t, f.svc.AddTeamMember(ctx, f.team.ID, f.user.ID))
	orgMembers, err := f.svc.ListOrgMembers(ctx, f.org.ID)
	require.NoError(t, err)
	assert.Empty(t, orgMembers)
}
