// Package memory provides an in-process implementation of storage.Store.
//
// Every returned entity is a copy; mutating it has no effect on the store
// until it is passed back through an Update method. Update methods keep the
// stored archived and active flags.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/authapi/pkg/models"
	"github.com/platinummonkey/authapi/pkg/storage"
)

type edge struct {
	parent int64
	user   int64
}

// Store is a mutex-guarded map-backed record store
type Store struct {
	mu sync.RWMutex

	nextID map[models.Kind]int64

	orgs  map[int64]*models.Organization
	teams map[int64]*models.Team
	users map[int64]*models.User
	perms map[int64]*models.Permission

	orgMembers  map[edge]struct{}
	teamMembers map[edge]struct{}

	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		nextID:      make(map[models.Kind]int64),
		orgs:        make(map[int64]*models.Organization),
		teams:       make(map[int64]*models.Team),
		users:       make(map[int64]*models.User),
		perms:       make(map[int64]*models.Permission),
		orgMembers:  make(map[edge]struct{}),
		teamMembers: make(map[edge]struct{}),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) allocID(kind models.Kind) int64 {
	s.nextID[kind]++
	return s.nextID[kind]
}

// HealthCheck always succeeds
func (s *Store) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

// Organizations

func (s *Store) CreateOrganization(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	org.ID = s.allocID(models.KindOrganization)
	org.CreatedAt, org.UpdatedAt = now, now
	cp := *org
	s.orgs[org.ID] = &cp
	return nil
}

func (s *Store) GetOrganization(ctx context.Context, id int64) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, ok := s.orgs[id]
	if !ok {
		return nil, models.NewNotFound(models.KindOrganization, id)
	}
	cp := *org
	return &cp, nil
}

func (s *Store) ListOrganizations(ctx context.Context, filter storage.OrganizationFilter) ([]*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Organization, 0, len(s.orgs))
	for _, org := range s.orgs {
		if filter.Archived != nil && org.Archived != *filter.Archived {
			continue
		}
		cp := *org
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateOrganization(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.orgs[org.ID]
	if !ok {
		return models.NewNotFound(models.KindOrganization, org.ID)
	}
	org.Archived = existing.Archived
	org.CreatedAt = existing.CreatedAt
	org.UpdatedAt = s.now()
	cp := *org
	s.orgs[org.ID] = &cp
	return nil
}

func (s *Store) ArchiveOrganization(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	org, ok := s.orgs[id]
	if !ok {
		return models.NewNotFound(models.KindOrganization, id)
	}
	org.Archived = true
	org.UpdatedAt = s.now()
	return nil
}

func (s *Store) CountOrganizations(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.orgs)), nil
}

// Teams

func (s *Store) CreateTeam(ctx context.Context, team *models.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orgs[team.OrganizationID]; !ok {
		return models.NewNotFound(models.KindOrganization, team.OrganizationID)
	}

	now := s.now()
	team.ID = s.allocID(models.KindTeam)
	team.CreatedAt, team.UpdatedAt = now, now
	team.Permissions = []models.Permission{}
	cp := *team
	cp.Permissions = nil
	s.teams[team.ID] = &cp
	return nil
}

// teamCopy returns a detached team with its permissions attached. Caller
// holds the lock.
func (s *Store) teamCopy(t *models.Team) *models.Team {
	cp := *t
	cp.Permissions = s.teamPermissions(t.ID)
	return &cp
}

func (s *Store) teamPermissions(teamID int64) []models.Permission {
	out := []models.Permission{}
	for _, p := range s.perms {
		if p.TeamID == teamID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) GetTeam(ctx context.Context, id int64) (*models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	team, ok := s.teams[id]
	if !ok {
		return nil, models.NewNotFound(models.KindTeam, id)
	}
	return s.teamCopy(team), nil
}

func (s *Store) ListTeams(ctx context.Context, filter storage.TeamFilter) ([]*models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Team, 0, len(s.teams))
	for _, team := range s.teams {
		if filter.Archived != nil && team.Archived != *filter.Archived {
			continue
		}
		t := s.teamCopy(team)
		// Each permission filter is an independent existence test, so the two
		// may be satisfied by different permissions of the same team.
		if filter.PermissionContains != nil && !anyPermission(t.Permissions, func(p models.Permission) bool {
			return strings.Contains(p.Type, *filter.PermissionContains)
		}) {
			continue
		}
		if filter.ObjectID != nil && !anyPermission(t.Permissions, func(p models.Permission) bool {
			return p.ObjectID == *filter.ObjectID
		}) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func anyPermission(perms []models.Permission, pred func(models.Permission) bool) bool {
	for _, p := range perms {
		if pred(p) {
			return true
		}
	}
	return false
}

func (s *Store) UpdateTeam(ctx context.Context, team *models.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.teams[team.ID]
	if !ok {
		return models.NewNotFound(models.KindTeam, team.ID)
	}
	if _, ok := s.orgs[team.OrganizationID]; !ok {
		return models.NewNotFound(models.KindOrganization, team.OrganizationID)
	}
	team.Archived = existing.Archived
	team.CreatedAt = existing.CreatedAt
	team.UpdatedAt = s.now()
	cp := *team
	cp.Permissions = nil
	s.teams[team.ID] = &cp
	return nil
}

func (s *Store) ArchiveTeam(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	team, ok := s.teams[id]
	if !ok {
		return models.NewNotFound(models.KindTeam, id)
	}
	team.Archived = true
	team.UpdatedAt = s.now()
	return nil
}

func (s *Store) CountTeams(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.teams)), nil
}

// Users

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.usernameTaken(user.Username, 0) {
		return models.NewValidationError("username", "A user with that username already exists.")
	}

	now := s.now()
	user.ID = s.allocID(models.KindUser)
	user.CreatedAt, user.UpdatedAt = now, now
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *Store) usernameTaken(username string, exceptID int64) bool {
	for id, u := range s.users {
		if id != exceptID && u.Username == username {
			return true
		}
	}
	return false
}

func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, models.NewNotFound(models.KindUser, id)
	}
	cp := *user
	return &cp, nil
}

func (s *Store) ListUsers(ctx context.Context, filter storage.UserFilter) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.User, 0, len(s.users))
	for _, user := range s.users {
		if filter.Active != nil && user.Active != *filter.Active {
			continue
		}
		cp := *user
		out = append(out, &cp)
	}
	sortUsers(out)
	return out, nil
}

func sortUsers(users []*models.User) {
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
}

func (s *Store) UpdateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return models.NewNotFound(models.KindUser, user.ID)
	}
	if s.usernameTaken(user.Username, user.ID) {
		return models.NewValidationError("username", "A user with that username already exists.")
	}
	user.Active = existing.Active
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = s.now()
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *Store) DeactivateUser(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return models.NewNotFound(models.KindUser, id)
	}
	user.Active = false
	user.UpdatedAt = s.now()
	return nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

// Permissions

func (s *Store) CreatePermission(ctx context.Context, perm *models.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.teams[perm.TeamID]; !ok {
		return models.NewNotFound(models.KindTeam, perm.TeamID)
	}
	perm.ID = s.allocID(models.KindPermission)
	perm.CreatedAt = s.now()
	cp := *perm
	s.perms[perm.ID] = &cp
	return nil
}

func (s *Store) GetPermission(ctx context.Context, id int64) (*models.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perm, ok := s.perms[id]
	if !ok {
		return nil, models.NewNotFound(models.KindPermission, id)
	}
	cp := *perm
	return &cp, nil
}

func (s *Store) ListTeamPermissions(ctx context.Context, teamID int64) ([]models.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.teams[teamID]; !ok {
		return nil, models.NewNotFound(models.KindTeam, teamID)
	}
	return s.teamPermissions(teamID), nil
}

func (s *Store) DeletePermission(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.perms[id]; !ok {
		return models.NewNotFound(models.KindPermission, id)
	}
	delete(s.perms, id)
	return nil
}

// Memberships

func (s *Store) AddOrganizationMember(ctx context.Context, orgID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkEdge(models.KindOrganization, orgID, userID); err != nil {
		return err
	}
	s.orgMembers[edge{orgID, userID}] = struct{}{}
	return nil
}

func (s *Store) RemoveOrganizationMember(ctx context.Context, orgID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.orgMembers, edge{orgID, userID})
	return nil
}

func (s *Store) HasOrganizationMember(ctx context.Context, orgID, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.orgMembers[edge{orgID, userID}]
	return ok, nil
}

func (s *Store) ListOrganizationMembers(ctx context.Context, orgID int64) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.orgs[orgID]; !ok {
		return nil, models.NewNotFound(models.KindOrganization, orgID)
	}
	return s.members(s.orgMembers, orgID), nil
}

func (s *Store) AddTeamMember(ctx context.Context, teamID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkEdge(models.KindTeam, teamID, userID); err != nil {
		return err
	}
	s.teamMembers[edge{teamID, userID}] = struct{}{}
	return nil
}

func (s *Store) RemoveTeamMember(ctx context.Context, teamID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.teamMembers, edge{teamID, userID})
	return nil
}

func (s *Store) HasTeamMember(ctx context.Context, teamID, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.teamMembers[edge{teamID, userID}]
	return ok, nil
}

func (s *Store) ListTeamMembers(ctx context.Context, teamID int64) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.teams[teamID]; !ok {
		return nil, models.NewNotFound(models.KindTeam, teamID)
	}
	return s.members(s.teamMembers, teamID), nil
}

func (s *Store) ListUserTeams(ctx context.Context, userID int64) ([]*models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*models.Team{}
	for e := range s.teamMembers {
		if e.user != userID {
			continue
		}
		if team, ok := s.teams[e.parent]; ok {
			out = append(out, s.teamCopy(team))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// checkEdge verifies both ends of a membership edge exist. Caller holds the
// lock.
func (s *Store) checkEdge(kind models.Kind, parentID, userID int64) error {
	var ok bool
	switch kind {
	case models.KindOrganization:
		_, ok = s.orgs[parentID]
	case models.KindTeam:
		_, ok = s.teams[parentID]
	}
	if !ok {
		return models.NewNotFound(kind, parentID)
	}
	if _, ok := s.users[userID]; !ok {
		return models.NewNotFound(models.KindUser, userID)
	}
	return nil
}

func (s *Store) members(edges map[edge]struct{}, parentID int64) []*models.User {
	out := []*models.User{}
	for e := range edges {
		if e.parent != parentID {
			continue
		}
		if u, ok := s.users[e.user]; ok {
			cp := *u
			out = append(out, &cp)
		}
	}
	sortUsers(out)
	return out
}
