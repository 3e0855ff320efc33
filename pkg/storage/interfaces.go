package storage

import (
	"context"
	"time"

	"github.com/platinummonkey/authapi/pkg/models"
)

// OrganizationFilter narrows an organization listing. A nil field applies no
// constraint.
type OrganizationFilter struct {
	Archived *bool
}

// TeamFilter narrows a team listing. PermissionContains and ObjectID are each
// matched against any permission the team owns; when both are set they may be
// satisfied by different permissions.
type TeamFilter struct {
	Archived           *bool
	PermissionContains *string
	ObjectID           *string
}

// UserFilter narrows a user listing
type UserFilter struct {
	Active *bool
}

// OrganizationStore persists organizations. Organizations are never removed.
// UpdateOrganization never writes the archived flag; it reports the stored
// one back on org. ArchiveOrganization is the only way to set it.
type OrganizationStore interface {
	CreateOrganization(ctx context.Context, org *models.Organization) error
	GetOrganization(ctx context.Context, id int64) (*models.Organization, error)
	ListOrganizations(ctx context.Context, filter OrganizationFilter) ([]*models.Organization, error)
	UpdateOrganization(ctx context.Context, org *models.Organization) error
	ArchiveOrganization(ctx context.Context, id int64) error
	CountOrganizations(ctx context.Context) (int64, error)
}

// TeamStore persists teams. Returned teams carry their permissions. The
// archived flag follows the same rules as for organizations.
type TeamStore interface {
	CreateTeam(ctx context.Context, team *models.Team) error
	GetTeam(ctx context.Context, id int64) (*models.Team, error)
	ListTeams(ctx context.Context, filter TeamFilter) ([]*models.Team, error)
	UpdateTeam(ctx context.Context, team *models.Team) error
	ArchiveTeam(ctx context.Context, id int64) error
	CountTeams(ctx context.Context) (int64, error)
}

// UserStore persists users. Users are never removed. UpdateUser never writes
// the active flag; DeactivateUser is the only way to clear it.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	DeactivateUser(ctx context.Context, id int64) error
	CountUsers(ctx context.Context) (int64, error)
}

// PermissionStore persists permissions. DeletePermission is the only hard
// delete of the whole store.
type PermissionStore interface {
	CreatePermission(ctx context.Context, perm *models.Permission) error
	GetPermission(ctx context.Context, id int64) (*models.Permission, error)
	ListTeamPermissions(ctx context.Context, teamID int64) ([]models.Permission, error)
	DeletePermission(ctx context.Context, id int64) error
}

// MembershipStore persists the two membership relations. Add and Remove are
// idempotent: adding an existing edge or removing a missing one succeeds.
type MembershipStore interface {
	AddOrganizationMember(ctx context.Context, orgID, userID int64) error
	RemoveOrganizationMember(ctx context.Context, orgID, userID int64) error
	HasOrganizationMember(ctx context.Context, orgID, userID int64) (bool, error)
	ListOrganizationMembers(ctx context.Context, orgID int64) ([]*models.User, error)

	AddTeamMember(ctx context.Context, teamID, userID int64) error
	RemoveTeamMember(ctx context.Context, teamID, userID int64) error
	HasTeamMember(ctx context.Context, teamID, userID int64) (bool, error)
	ListTeamMembers(ctx context.Context, teamID int64) ([]*models.User, error)

	// ListUserTeams returns every team the user belongs to, archived or not
	ListUserTeams(ctx context.Context, userID int64) ([]*models.Team, error)
}

// Store is the full record store consumed by the services
type Store interface {
	OrganizationStore
	TeamStore
	UserStore
	PermissionStore
	MembershipStore

	// HealthCheck verifies the backend is reachable
	HealthCheck(ctx context.Context) error

	// Close releases backend resources
	Close() error
}

// Config for storage backend
type Config struct {
	Type string `yaml:"type"` // "memory", "postgres", "sqlite"

	// PostgreSQL config
	PostgresURL         string        `yaml:"postgres_url"`
	PostgresReplicaURLs []string      `yaml:"postgres_replica_urls"`
	PostgresMaxConns    int           `yaml:"postgres_max_conns"`
	PostgresMinConns    int           `yaml:"postgres_min_conns"`
	PostgresTimeout     time.Duration `yaml:"postgres_timeout"`
	AutoMigrate         bool          `yaml:"auto_migrate"`

	// SQLite config
	SQLitePath string `yaml:"sqlite_path"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:             "memory",
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		AutoMigrate:      true,
		SQLitePath:       "file:authapi.db?_foreign_keys=on",
	}
}
