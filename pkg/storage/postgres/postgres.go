// Package postgres implements storage.Store on database/sql. The same code
// serves PostgreSQL (lib/pq) and SQLite (mattn/go-sqlite3); the differences
// are isolated in Dialect.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/authapi/pkg/models"
	"github.com/platinummonkey/authapi/pkg/observability"
	"github.com/platinummonkey/authapi/pkg/storage"
)

const (
	organizationColumns = "o.id, o.name, o.archived, o.created_at, o.updated_at"
	teamColumns         = "t.id, t.organization_id, t.name, t.archived, t.created_at, t.updated_at"
	userColumns         = "u.id, u.username, u.email, u.first_name, u.last_name, u.active, u.created_at, u.updated_at"
	permissionColumns   = "p.id, p.team_id, p.type, p.object_id, p.created_at"
)

// Store implements storage.Store on a SQL database
type Store struct {
	conns   *ConnectionManager
	dialect Dialect
	now     func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New opens the database described by config and, when AutoMigrate is set,
// brings its schema up to date.
func New(ctx context.Context, config storage.Config, logger *observability.Logger) (*Store, error) {
	dialect, ok := DialectFor(config.Type)
	if !ok {
		return nil, fmt.Errorf("unsupported sql storage type %q", config.Type)
	}

	connConfig := ConnectionConfig{
		Dialect:     dialect,
		PrimaryURL:  config.PostgresURL,
		ReplicaURLs: config.PostgresReplicaURLs,
		MaxConns:    config.PostgresMaxConns,
		MinConns:    config.PostgresMinConns,
		Timeout:     config.PostgresTimeout,
		MaxLifetime: 1 * time.Hour,
		MaxIdleTime: 10 * time.Minute,
	}
	if dialect.Name == SQLiteDialect.Name {
		connConfig.PrimaryURL = config.SQLitePath
		connConfig.ReplicaURLs = nil
	}

	conns, err := NewConnectionManager(connConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", dialect.Name, err)
	}

	if config.AutoMigrate {
		if err := RunMigrations(ctx, conns.Primary(), dialect); err != nil {
			conns.Close()
			return nil, err
		}
	}

	return NewWithConnections(conns), nil
}

// NewWithConnections builds a store over an existing connection manager
func NewWithConnections(conns *ConnectionManager) *Store {
	return &Store{
		conns:   conns,
		dialect: conns.config.Dialect,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// NewWithDB builds a store over a single database handle
func NewWithDB(db *sql.DB, d Dialect) *Store {
	return NewWithConnections(NewConnectionManagerFromDB(db, d))
}

// Connections exposes the underlying connection manager
func (s *Store) Connections() *ConnectionManager {
	return s.conns
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.conns.HealthCheck(ctx)
}

func (s *Store) Close() error {
	return s.conns.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// queryArgs collects positional arguments and hands out their placeholders
type queryArgs struct {
	values []interface{}
}

func (q *queryArgs) add(v interface{}) string {
	q.values = append(q.values, v)
	return fmt.Sprintf("$%d", len(q.values))
}

func where(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

func (s *Store) exists(ctx context.Context, table string, id int64) (bool, error) {
	var ok bool
	err := s.conns.Primary().QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM "+table+" WHERE id = $1)", id,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check %s existence: %w", table, err)
	}
	return ok, nil
}

func (s *Store) mustExist(ctx context.Context, kind models.Kind, table string, id int64) error {
	ok, err := s.exists(ctx, table, id)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewNotFound(kind, id)
	}
	return nil
}

func (s *Store) count(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := s.conns.Replica().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

func affected(result sql.Result, kind models.Kind, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return models.NewNotFound(kind, id)
	}
	return nil
}

// retire writes only the soft delete flag of one row
func (s *Store) retire(ctx context.Context, kind models.Kind, stmt string, flag bool, id int64) error {
	result, err := s.conns.Primary().ExecContext(ctx, stmt, flag, s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to retire %s: %w", kind, err)
	}
	return affected(result, kind, id)
}

// Organizations

func scanOrganization(row scanner) (*models.Organization, error) {
	org := &models.Organization{}
	if err := row.Scan(&org.ID, &org.Name, &org.Archived, &org.CreatedAt, &org.UpdatedAt); err != nil {
		return nil, err
	}
	return org, nil
}

func (s *Store) CreateOrganization(ctx context.Context, org *models.Organization) error {
	now := s.now()
	err := s.conns.Primary().QueryRowContext(ctx, `
		INSERT INTO organizations (name, archived, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, org.Name, org.Archived, now, now).Scan(&org.ID)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	org.CreatedAt, org.UpdatedAt = now, now
	return nil
}

func (s *Store) GetOrganization(ctx context.Context, id int64) (*models.Organization, error) {
	row := s.conns.Primary().QueryRowContext(ctx,
		"SELECT "+organizationColumns+" FROM organizations o WHERE o.id = $1", id)
	org, err := scanOrganization(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFound(models.KindOrganization, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

func (s *Store) ListOrganizations(ctx context.Context, filter storage.OrganizationFilter) ([]*models.Organization, error) {
	var args queryArgs
	var conditions []string
	if filter.Archived != nil {
		conditions = append(conditions, "o.archived = "+args.add(*filter.Archived))
	}

	rows, err := s.conns.Replica().QueryContext(ctx,
		"SELECT "+organizationColumns+" FROM organizations o"+where(conditions)+" ORDER BY o.id", args.values...)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	orgs := []*models.Organization{}
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

func (s *Store) UpdateOrganization(ctx context.Context, org *models.Organization) error {
	now := s.now()
	err := s.conns.Primary().QueryRowContext(ctx, `
		UPDATE organizations SET name = $1, updated_at = $2
		WHERE id = $3
		RETURNING archived
	`, org.Name, now, org.ID).Scan(&org.Archived)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NewNotFound(models.KindOrganization, org.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}
	org.UpdatedAt = now
	return nil
}

func (s *Store) ArchiveOrganization(ctx context.Context, id int64) error {
	return s.retire(ctx, models.KindOrganization, "UPDATE organizations SET archived = $1, updated_at = $2 WHERE id = $3", true, id)
}

func (s *Store) CountOrganizations(ctx context.Context) (int64, error) {
	return s.count(ctx, "organizations")
}

// Teams

func scanTeam(row scanner) (*models.Team, error) {
	team := &models.Team{Permissions: []models.Permission{}}
	if err := row.Scan(&team.ID, &team.OrganizationID, &team.Name, &team.Archived, &team.CreatedAt, &team.UpdatedAt); err != nil {
		return nil, err
	}
	return team, nil
}

func scanPermission(row scanner) (models.Permission, error) {
	var p models.Permission
	err := row.Scan(&p.ID, &p.TeamID, &p.Type, &p.ObjectID, &p.CreatedAt)
	return p, err
}

// queryTeams runs a team query and attaches permissions selected by
// permQuery, which must use the same arguments.
func (s *Store) queryTeams(ctx context.Context, db *sql.DB, teamQuery, permQuery string, args []interface{}) ([]*models.Team, error) {
	teams, err := s.scanTeams(ctx, db, teamQuery, args)
	if err != nil {
		return nil, err
	}
	if len(teams) == 0 {
		return teams, nil
	}

	byID := make(map[int64]*models.Team, len(teams))
	for _, team := range teams {
		byID[team.ID] = team
	}

	perms, err := s.scanPermissions(ctx, db, permQuery, args)
	if err != nil {
		return nil, err
	}
	for _, p := range perms {
		if team, ok := byID[p.TeamID]; ok {
			team.Permissions = append(team.Permissions, p)
		}
	}
	return teams, nil
}

func (s *Store) scanTeams(ctx context.Context, db *sql.DB, query string, args []interface{}) ([]*models.Team, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query teams: %w", err)
	}
	defer rows.Close()

	teams := []*models.Team{}
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, team)
	}
	return teams, rows.Err()
}

func (s *Store) scanPermissions(ctx context.Context, db *sql.DB, query string, args []interface{}) ([]models.Permission, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query permissions: %w", err)
	}
	defer rows.Close()

	perms := []models.Permission{}
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *Store) CreateTeam(ctx context.Context, team *models.Team) error {
	if err := s.mustExist(ctx, models.KindOrganization, "organizations", team.OrganizationID); err != nil {
		return err
	}

	now := s.now()
	err := s.conns.Primary().QueryRowContext(ctx, `
		INSERT INTO teams (organization_id, name, archived, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, team.OrganizationID, team.Name, team.Archived, now, now).Scan(&team.ID)
	if err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}
	team.CreatedAt, team.UpdatedAt = now, now
	team.Permissions = []models.Permission{}
	return nil
}

func (s *Store) GetTeam(ctx context.Context, id int64) (*models.Team, error) {
	teams, err := s.queryTeams(ctx, s.conns.Primary(),
		"SELECT "+teamColumns+" FROM teams t WHERE t.id = $1",
		"SELECT "+permissionColumns+" FROM permissions p WHERE p.team_id = $1 ORDER BY p.id",
		[]interface{}{id})
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	if len(teams) == 0 {
		return nil, models.NewNotFound(models.KindTeam, id)
	}
	return teams[0], nil
}

// ListTeams applies each permission predicate as its own EXISTS clause, so a
// team matches when any of its permissions satisfies each predicate, not
// necessarily the same one.
func (s *Store) ListTeams(ctx context.Context, filter storage.TeamFilter) ([]*models.Team, error) {
	var args queryArgs
	var conditions []string
	if filter.Archived != nil {
		conditions = append(conditions, "t.archived = "+args.add(*filter.Archived))
	}
	if filter.PermissionContains != nil {
		conditions = append(conditions, "EXISTS (SELECT 1 FROM permissions pc WHERE pc.team_id = t.id AND "+
			s.dialect.contains("pc.type", args.add(*filter.PermissionContains))+")")
	}
	if filter.ObjectID != nil {
		conditions = append(conditions, "EXISTS (SELECT 1 FROM permissions po WHERE po.team_id = t.id AND po.object_id = "+
			args.add(*filter.ObjectID)+")")
	}

	teamWhere := where(conditions)
	teams, err := s.queryTeams(ctx, s.conns.Replica(),
		"SELECT "+teamColumns+" FROM teams t"+teamWhere+" ORDER BY t.id",
		"SELECT "+permissionColumns+" FROM permissions p WHERE p.team_id IN (SELECT t.id FROM teams t"+teamWhere+") ORDER BY p.id",
		args.values)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	return teams, nil
}

func (s *Store) UpdateTeam(ctx context.Context, team *models.Team) error {
	if err := s.mustExist(ctx, models.KindOrganization, "organizations", team.OrganizationID); err != nil {
		return err
	}

	now := s.now()
	err := s.conns.Primary().QueryRowContext(ctx, `
		UPDATE teams SET organization_id = $1, name = $2, updated_at = $3
		WHERE id = $4
		RETURNING archived
	`, team.OrganizationID, team.Name, now, team.ID).Scan(&team.Archived)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NewNotFound(models.KindTeam, team.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update team: %w", err)
	}
	team.UpdatedAt = now
	return nil
}

func (s *Store) ArchiveTeam(ctx context.Context, id int64) error {
	return s.retire(ctx, models.KindTeam, "UPDATE teams SET archived = $1, updated_at = $2 WHERE id = $3", true, id)
}

func (s *Store) CountTeams(ctx context.Context) (int64, error) {
	return s.count(ctx, "teams")
}

// Users

func scanUser(row scanner) (*models.User, error) {
	u := &models.User{}
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) scanUsers(ctx context.Context, db *sql.DB, query string, args ...interface{}) ([]*models.User, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) duplicateUsername(err error) error {
	if s.dialect.uniqueViolation(err) {
		return models.NewValidationError("username", "A user with that username already exists.")
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	now := s.now()
	err := s.conns.Primary().QueryRowContext(ctx, `
		INSERT INTO users (username, email, first_name, last_name, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, user.Username, user.Email, user.FirstName, user.LastName, user.Active, now, now).Scan(&user.ID)
	if err != nil {
		if verr := s.duplicateUsername(err); verr != nil {
			return verr
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.CreatedAt, user.UpdatedAt = now, now
	return nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	row := s.conns.Primary().QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users u WHERE u.id = $1", id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFound(models.KindUser, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context, filter storage.UserFilter) ([]*models.User, error) {
	var args queryArgs
	var conditions []string
	if filter.Active != nil {
		conditions = append(conditions, "u.active = "+args.add(*filter.Active))
	}
	users, err := s.scanUsers(ctx, s.conns.Replica(),
		"SELECT "+userColumns+" FROM users u"+where(conditions)+" ORDER BY u.id", args.values...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (s *Store) UpdateUser(ctx context.Context, user *models.User) error {
	now := s.now()
	err := s.conns.Primary().QueryRowContext(ctx, `
		UPDATE users SET username = $1, email = $2, first_name = $3, last_name = $4, updated_at = $5
		WHERE id = $6
		RETURNING active
	`, user.Username, user.Email, user.FirstName, user.LastName, now, user.ID).Scan(&user.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NewNotFound(models.KindUser, user.ID)
	}
	if err != nil {
		if verr := s.duplicateUsername(err); verr != nil {
			return verr
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	user.UpdatedAt = now
	return nil
}

func (s *Store) DeactivateUser(ctx context.Context, id int64) error {
	return s.retire(ctx, models.KindUser, "UPDATE users SET active = $1, updated_at = $2 WHERE id = $3", false, id)
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	return s.count(ctx, "users")
}

// Permissions

func (s *Store) CreatePermission(ctx context.Context, perm *models.Permission) error {
	if err := s.mustExist(ctx, models.KindTeam, "teams", perm.TeamID); err != nil {
		return err
	}

	now := s.now()
	err := s.conns.Primary().QueryRowContext(ctx, `
		INSERT INTO permissions (team_id, type, object_id, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, perm.TeamID, perm.Type, perm.ObjectID, now).Scan(&perm.ID)
	if err != nil {
		return fmt.Errorf("failed to create permission: %w", err)
	}
	perm.CreatedAt = now
	return nil
}

func (s *Store) GetPermission(ctx context.Context, id int64) (*models.Permission, error) {
	row := s.conns.Primary().QueryRowContext(ctx,
		"SELECT "+permissionColumns+" FROM permissions p WHERE p.id = $1", id)
	p, err := scanPermission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFound(models.KindPermission, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return &p, nil
}

func (s *Store) ListTeamPermissions(ctx context.Context, teamID int64) ([]models.Permission, error) {
	if err := s.mustExist(ctx, models.KindTeam, "teams", teamID); err != nil {
		return nil, err
	}
	return s.scanPermissions(ctx, s.conns.Primary(),
		"SELECT "+permissionColumns+" FROM permissions p WHERE p.team_id = $1 ORDER BY p.id",
		[]interface{}{teamID})
}

func (s *Store) DeletePermission(ctx context.Context, id int64) error {
	result, err := s.conns.Primary().ExecContext(ctx, "DELETE FROM permissions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}
	return affected(result, models.KindPermission, id)
}

// Memberships

// relation describes one membership join table
type relation struct {
	kind         models.Kind
	parentTable  string
	table        string
	parentColumn string
}

var (
	organizationMembers = relation{models.KindOrganization, "organizations", "organization_members", "organization_id"}
	teamMembers         = relation{models.KindTeam, "teams", "team_members", "team_id"}
)

func (s *Store) addMember(ctx context.Context, rel relation, parentID, userID int64) error {
	if err := s.mustExist(ctx, rel.kind, rel.parentTable, parentID); err != nil {
		return err
	}
	if err := s.mustExist(ctx, models.KindUser, "users", userID); err != nil {
		return err
	}

	_, err := s.conns.Primary().ExecContext(ctx,
		"INSERT INTO "+rel.table+" ("+rel.parentColumn+", user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		parentID, userID)
	if err != nil {
		return fmt.Errorf("failed to add %s member: %w", rel.kind, err)
	}
	return nil
}

func (s *Store) removeMember(ctx context.Context, rel relation, parentID, userID int64) error {
	_, err := s.conns.Primary().ExecContext(ctx,
		"DELETE FROM "+rel.table+" WHERE "+rel.parentColumn+" = $1 AND user_id = $2",
		parentID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove %s member: %w", rel.kind, err)
	}
	return nil
}

func (s *Store) hasMember(ctx context.Context, rel relation, parentID, userID int64) (bool, error) {
	var ok bool
	err := s.conns.Primary().QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM "+rel.table+" WHERE "+rel.parentColumn+" = $1 AND user_id = $2)",
		parentID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check %s membership: %w", rel.kind, err)
	}
	return ok, nil
}

func (s *Store) listMembers(ctx context.Context, rel relation, parentID int64) ([]*models.User, error) {
	if err := s.mustExist(ctx, rel.kind, rel.parentTable, parentID); err != nil {
		return nil, err
	}
	users, err := s.scanUsers(ctx, s.conns.Replica(),
		"SELECT "+userColumns+" FROM users u JOIN "+rel.table+" m ON m.user_id = u.id WHERE m."+rel.parentColumn+" = $1 ORDER BY u.id",
		parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s members: %w", rel.kind, err)
	}
	return users, nil
}

func (s *Store) AddOrganizationMember(ctx context.Context, orgID, userID int64) error {
	return s.addMember(ctx, organizationMembers, orgID, userID)
}

func (s *Store) RemoveOrganizationMember(ctx context.Context, orgID, userID int64) error {
	return s.removeMember(ctx, organizationMembers, orgID, userID)
}

func (s *Store) HasOrganizationMember(ctx context.Context, orgID, userID int64) (bool, error) {
	return s.hasMember(ctx, organizationMembers, orgID, userID)
}

func (s *Store) ListOrganizationMembers(ctx context.Context, orgID int64) ([]*models.User, error) {
	return s.listMembers(ctx, organizationMembers, orgID)
}

func (s *Store) AddTeamMember(ctx context.Context, teamID, userID int64) error {
	return s.addMember(ctx, teamMembers, teamID, userID)
}

func (s *Store) RemoveTeamMember(ctx context.Context, teamID, userID int64) error {
	return s.removeMember(ctx, teamMembers, teamID, userID)
}

func (s *Store) HasTeamMember(ctx context.Context, teamID, userID int64) (bool, error) {
	return s.hasMember(ctx, teamMembers, teamID, userID)
}

func (s *Store) ListTeamMembers(ctx context.Context, teamID int64) ([]*models.User, error) {
	return s.listMembers(ctx, teamMembers, teamID)
}

func (s *Store) ListUserTeams(ctx context.Context, userID int64) ([]*models.Team, error) {
	teams, err := s.queryTeams(ctx, s.conns.Primary(),
		"SELECT "+teamColumns+" FROM teams t JOIN team_members m ON m.team_id = t.id WHERE m.user_id = $1 ORDER BY t.id",
		"SELECT "+permissionColumns+" FROM permissions p WHERE p.team_id IN (SELECT team_id FROM team_members WHERE user_id = $1) ORDER BY p.id",
		[]interface{}{userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list user teams: %w", err)
	}
	return teams, nil
}
