// Package lifecycle retires organizations, teams and users. Retirement is a
// soft delete: organizations and teams are archived, users are deactivated.
// Nothing is ever physically removed and retirement cannot be undone
// through this package.
package lifecycle

import (
	"context"
	"time"

	"github.com/platinummonkey/authapi/pkg/audit"
	"github.com/platinummonkey/authapi/pkg/models"
	"github.com/platinummonkey/authapi/pkg/observability"
	"github.com/platinummonkey/authapi/pkg/rbac"
	"github.com/platinummonkey/authapi/pkg/storage"
)

// Store is the subset of the record store the controller needs
type Store interface {
	storage.OrganizationStore
	storage.TeamStore
	storage.UserStore
}

// Controller performs the soft-delete transitions
type Controller struct {
	store   Store
	cache   rbac.Invalidator
	audit   audit.Logger
	metrics *observability.Metrics
}

// NewController creates a lifecycle controller. cache, auditLogger and
// metrics may be nil.
func NewController(store Store, cache rbac.Invalidator, auditLogger audit.Logger, metrics *observability.Metrics) *Controller {
	if auditLogger == nil {
		auditLogger = audit.NewNoOpLogger()
	}
	return &Controller{
		store:   store,
		cache:   cache,
		audit:   auditLogger,
		metrics: metrics,
	}
}

// transition describes how one kind of entity is retired
type transition[T models.SoftDeletable] struct {
	kind      models.Kind
	operation string
	event     audit.EventType
	load      func(ctx context.Context, id int64) (T, error)
	save      func(ctx context.Context, id int64) error
}

// retire loads id and persists its flag through the store's dedicated
// archive call, which writes nothing else. An already retired entity is left
// untouched and the call still succeeds.
func retire[T models.SoftDeletable](ctx context.Context, c *Controller, tr transition[T], id int64) (entity T, err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveOperation(tr.operation, start, err) }()

	entity, err = tr.load(ctx, id)
	if err != nil {
		return entity, err
	}

	if !entity.Retire() {
		audit.Record(ctx, c.audit, audit.NewEvent(ctx, tr.event, audit.EventStatusNoop, tr.kind, id))
		return entity, nil
	}

	if err = tr.save(ctx, id); err != nil {
		return entity, err
	}

	rbac.InvalidateAfterMutation(ctx, c.cache, c.metrics)
	audit.Record(ctx, c.audit, audit.NewEvent(ctx, tr.event, audit.EventStatusSuccess, tr.kind, id))
	observability.FromContext(ctx).
		WithField("kind", string(tr.kind)).
		WithField("id", id).
		Info("entity retired")
	return entity, nil
}

// ArchiveOrganization archives an organization. Its teams and members are
// not affected.
func (c *Controller) ArchiveOrganization(ctx context.Context, id int64) (*models.Organization, error) {
	return retire(ctx, c, transition[*models.Organization]{
		kind:      models.KindOrganization,
		operation: "lifecycle.archive_organization",
		event:     audit.EventTypeOrgArchive,
		load:      c.store.GetOrganization,
		save:      c.store.ArchiveOrganization,
	}, id)
}

// ArchiveTeam archives a team. Its permissions are kept.
func (c *Controller) ArchiveTeam(ctx context.Context, id int64) (*models.Team, error) {
	return retire(ctx, c, transition[*models.Team]{
		kind:      models.KindTeam,
		operation: "lifecycle.archive_team",
		event:     audit.EventTypeTeamArchive,
		load:      c.store.GetTeam,
		save:      c.store.ArchiveTeam,
	}, id)
}

// DeactivateUser deactivates a user. Memberships are kept.
func (c *Controller) DeactivateUser(ctx context.Context, id int64) (*models.User, error) {
	return retire(ctx, c, transition[*models.User]{
		kind:      models.KindUser,
		operation: "lifecycle.deactivate_user",
		event:     audit.EventTypeUserDeactivate,
		load:      c.store.GetUser,
		save:      c.store.DeactivateUser,
	}, id)
}
