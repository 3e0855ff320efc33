// Package membership adds and removes users from organizations and teams.
//
// Both relations share one contract: the parent and the user must exist,
// adding an existing member and removing a non-member are successful no-ops,
// and the archived or active state of either side is ignored.
package membership

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/authapi/pkg/audit"
	"github.com/platinummonkey/authapi/pkg/models"
	"github.com/platinummonkey/authapi/pkg/observability"
	"github.com/platinummonkey/authapi/pkg/rbac"
	"github.com/platinummonkey/authapi/pkg/storage"
)

// Store is the subset of the record store the service needs
type Store interface {
	GetOrganization(ctx context.Context, id int64) (*models.Organization, error)
	GetTeam(ctx context.Context, id int64) (*models.Team, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	storage.MembershipStore
}

// Service mutates the organization and team member sets
type Service struct {
	store   Store
	cache   rbac.Invalidator
	audit   audit.Logger
	metrics *observability.Metrics

	org  relation
	team relation
}

// relation binds the generic membership steps to one parent kind
type relation struct {
	kind      models.Kind
	addEvent  audit.EventType
	delEvent  audit.EventType
	getParent func(ctx context.Context, id int64) error
	has       func(ctx context.Context, parentID, userID int64) (bool, error)
	add       func(ctx context.Context, parentID, userID int64) error
	remove    func(ctx context.Context, parentID, userID int64) error
	list      func(ctx context.Context, parentID int64) ([]*models.User, error)
}

// NewService creates a membership service. cache, auditLogger and metrics
// may be nil.
func NewService(store Store, cache rbac.Invalidator, auditLogger audit.Logger, metrics *observability.Metrics) *Service {
	if auditLogger == nil {
		auditLogger = audit.NewNoOpLogger()
	}
	s := &Service{
		store:   store,
		cache:   cache,
		audit:   auditLogger,
		metrics: metrics,
	}
	s.org = relation{
		kind:     models.KindOrganization,
		addEvent: audit.EventTypeOrgMemberAdd,
		delEvent: audit.EventTypeOrgMemberRemove,
		getParent: func(ctx context.Context, id int64) error {
			_, err := store.GetOrganization(ctx, id)
			return err
		},
		has:    store.HasOrganizationMember,
		add:    store.AddOrganizationMember,
		remove: store.RemoveOrganizationMember,
		list:   store.ListOrganizationMembers,
	}
	s.team = relation{
		kind:     models.KindTeam,
		addEvent: audit.EventTypeTeamMemberAdd,
		delEvent: audit.EventTypeTeamMemberRemove,
		getParent: func(ctx context.Context, id int64) error {
			_, err := store.GetTeam(ctx, id)
			return err
		},
		has:    store.HasTeamMember,
		add:    store.AddTeamMember,
		remove: store.RemoveTeamMember,
		list:   store.ListTeamMembers,
	}
	return s
}

// AddOrgMember makes userID a member of orgID
func (s *Service) AddOrgMember(ctx context.Context, orgID, userID int64) error {
	return s.addMember(ctx, s.org, orgID, userID)
}

// RemoveOrgMember removes userID from orgID
func (s *Service) RemoveOrgMember(ctx context.Context, orgID, userID int64) error {
	return s.removeMember(ctx, s.org, orgID, userID)
}

// ListOrgMembers returns the members of orgID ordered by id
func (s *Service) ListOrgMembers(ctx context.Context, orgID int64) ([]*models.User, error) {
	return s.listMembers(ctx, s.org, orgID)
}

// AddTeamMember makes userID a member of teamID
func (s *Service) AddTeamMember(ctx context.Context, teamID, userID int64) error {
	return s.addMember(ctx, s.team, teamID, userID)
}

// RemoveTeamMember removes userID from teamID
func (s *Service) RemoveTeamMember(ctx context.Context, teamID, userID int64) error {
	return s.removeMember(ctx, s.team, teamID, userID)
}

// ListTeamMembers returns the members of teamID ordered by id
func (s *Service) ListTeamMembers(ctx context.Context, teamID int64) ([]*models.User, error) {
	return s.listMembers(ctx, s.team, teamID)
}

// resolve checks that both ends of the edge exist, parent first
func (s *Service) resolve(ctx context.Context, rel relation, parentID, userID int64) error {
	if err := rel.getParent(ctx, parentID); err != nil {
		return err
	}
	_, err := s.store.GetUser(ctx, userID)
	return err
}

func (s *Service) addMember(ctx context.Context, rel relation, parentID, userID int64) (err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("membership."+string(rel.kind)+"_add", start, err) }()

	if userID <= 0 {
		return models.NewValidationError("user_id", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", userID))
	}
	if err := s.resolve(ctx, rel, parentID, userID); err != nil {
		return err
	}

	member, err := rel.has(ctx, parentID, userID)
	if err != nil {
		return err
	}
	event := audit.NewEvent(ctx, rel.addEvent, audit.EventStatusNoop, rel.kind, parentID).
		WithSubject(models.KindUser, userID)
	if member {
		audit.Record(ctx, s.audit, event)
		return nil
	}

	// the store add is idempotent, so a concurrent add of the same edge is
	// not an error
	if err := rel.add(ctx, parentID, userID); err != nil {
		return err
	}

	rbac.InvalidateAfterMutation(ctx, s.cache, s.metrics)
	event.Status = audit.EventStatusSuccess
	audit.Record(ctx, s.audit, event)
	return nil
}

func (s *Service) removeMember(ctx context.Context, rel relation, parentID, userID int64) (err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("membership."+string(rel.kind)+"_remove", start, err) }()

	if err := s.resolve(ctx, rel, parentID, userID); err != nil {
		return err
	}

	member, err := rel.has(ctx, parentID, userID)
	if err != nil {
		return err
	}
	event := audit.NewEvent(ctx, rel.delEvent, audit.EventStatusNoop, rel.kind, parentID).
		WithSubject(models.KindUser, userID)
	if !member {
		audit.Record(ctx, s.audit, event)
		return nil
	}

	if err := rel.remove(ctx, parentID, userID); err != nil {
		return err
	}

	rbac.InvalidateAfterMutation(ctx, s.cache, s.metrics)
	event.Status = audit.EventStatusSuccess
	audit.Record(ctx, s.audit, event)
	return nil
}

func (s *Service) listMembers(ctx context.Context, rel relation, parentID int64) ([]*models.User, error) {
	if err := rel.getParent(ctx, parentID); err != nil {
		return nil, err
	}
	return rel.list(ctx, parentID)
}
