package rbac

import (
	"context"
	"strings"
	"time"

	"github.com/platinummonkey/authapi/pkg/audit"
	"github.com/platinummonkey/authapi/pkg/models"
	"github.com/platinummonkey/authapi/pkg/observability"
	"github.com/platinummonkey/authapi/pkg/storage"
)

// Store is the subset of the record store used by the permission service
type Store interface {
	GetTeam(ctx context.Context, id int64) (*models.Team, error)
	storage.PermissionStore
}

// Service grants and revokes the permissions owned by teams
type Service struct {
	store   Store
	cache   Invalidator
	audit   audit.Logger
	metrics *observability.Metrics
}

// NewService creates a permission service. cache, auditLogger and metrics
// may be nil.
func NewService(store Store, cache Invalidator, auditLogger audit.Logger, metrics *observability.Metrics) *Service {
	if auditLogger == nil {
		auditLogger = audit.NewNoOpLogger()
	}
	return &Service{
		store:   store,
		cache:   cache,
		audit:   auditLogger,
		metrics: metrics,
	}
}

// GrantPermission creates a permission of permType on objectID owned by
// teamID. The team may be archived. Both fields are required and every
// missing one is reported.
func (s *Service) GrantPermission(ctx context.Context, teamID int64, permType, objectID string) (perm *models.Permission, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("rbac.grant", start, err) }()

	if _, err := s.store.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}

	verr := &models.ValidationError{}
	if strings.TrimSpace(permType) == "" {
		verr.Add("type", models.RequiredMessage)
	}
	if strings.TrimSpace(objectID) == "" {
		verr.Add("object_id", models.RequiredMessage)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	perm = &models.Permission{TeamID: teamID, Type: permType, ObjectID: objectID}
	if err := s.store.CreatePermission(ctx, perm); err != nil {
		return nil, err
	}

	InvalidateAfterMutation(ctx, s.cache, s.metrics)
	audit.Record(ctx, s.audit, audit.NewEvent(ctx, audit.EventTypePermissionGrant, audit.EventStatusSuccess, models.KindPermission, perm.ID).
		WithSubject(models.KindTeam, teamID).
		WithMetadata("type", permType).
		WithMetadata("object_id", objectID))

	return perm, nil
}

// RevokePermission deletes permissionID. It is NotFound unless the
// permission exists and belongs to teamID.
func (s *Service) RevokePermission(ctx context.Context, teamID, permissionID int64) (err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("rbac.revoke", start, err) }()

	perm, err := s.GetPermission(ctx, teamID, permissionID)
	if err != nil {
		return err
	}
	if err := s.store.DeletePermission(ctx, perm.ID); err != nil {
		return err
	}

	InvalidateAfterMutation(ctx, s.cache, s.metrics)
	audit.Record(ctx, s.audit, audit.NewEvent(ctx, audit.EventTypePermissionRevoke, audit.EventStatusSuccess, models.KindPermission, perm.ID).
		WithSubject(models.KindTeam, teamID).
		WithMetadata("type", perm.Type).
		WithMetadata("object_id", perm.ObjectID))

	return nil
}

// GetPermission returns permissionID when it belongs to teamID
func (s *Service) GetPermission(ctx context.Context, teamID, permissionID int64) (*models.Permission, error) {
	if _, err := s.store.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	perm, err := s.store.GetPermission(ctx, permissionID)
	if err != nil {
		return nil, err
	}
	if perm.TeamID != teamID {
		return nil, models.NewNotFound(models.KindPermission, permissionID)
	}
	return perm, nil
}

// ListPermissions returns the permissions of teamID ordered by id
func (s *Service) ListPermissions(ctx context.Context, teamID int64) ([]models.Permission, error) {
	if _, err := s.store.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	return s.store.ListTeamPermissions(ctx, teamID)
}
