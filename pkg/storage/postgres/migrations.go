package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all schema migrations rendered for d
func GetMigrations(d Dialect) []Migration {
	migrations := []Migration{
		{
			Version:     1,
			Description: "Create organizations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id {{serial}},
					name VARCHAR(255) NOT NULL,
					archived BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT {{now}},
					updated_at TIMESTAMP NOT NULL DEFAULT {{now}}
				);

				CREATE INDEX IF NOT EXISTS idx_organizations_archived ON organizations(archived);
			`,
		},
		{
			Version:     2,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id {{serial}},
					username VARCHAR(150) NOT NULL UNIQUE,
					email VARCHAR(254) NOT NULL DEFAULT '',
					first_name VARCHAR(150) NOT NULL DEFAULT '',
					last_name VARCHAR(150) NOT NULL DEFAULT '',
					active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT {{now}},
					updated_at TIMESTAMP NOT NULL DEFAULT {{now}}
				);

				CREATE INDEX IF NOT EXISTS idx_users_active ON users(active);
			`,
		},
		{
			Version:     3,
			Description: "Create teams table",
			SQL: `
				CREATE TABLE IF NOT EXISTS teams (
					id {{serial}},
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					archived BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT {{now}},
					updated_at TIMESTAMP NOT NULL DEFAULT {{now}}
				);

				CREATE INDEX IF NOT EXISTS idx_teams_organization_id ON teams(organization_id);
				CREATE INDEX IF NOT EXISTS idx_teams_archived ON teams(archived);
			`,
		},
		{
			Version:     4,
			Description: "Create permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					id {{serial}},
					team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					type VARCHAR(255) NOT NULL,
					object_id VARCHAR(255) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT {{now}}
				);

				CREATE INDEX IF NOT EXISTS idx_permissions_team_id ON permissions(team_id);
				CREATE INDEX IF NOT EXISTS idx_permissions_object_id ON permissions(object_id);
			`,
		},
		{
			Version:     5,
			Description: "Create membership tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS organization_members (
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					PRIMARY KEY (organization_id, user_id)
				);

				CREATE TABLE IF NOT EXISTS team_members (
					team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					PRIMARY KEY (team_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_organization_members_user_id ON organization_members(user_id);
				CREATE INDEX IF NOT EXISTS idx_team_members_user_id ON team_members(user_id);
			`,
		},
	}

	for i := range migrations {
		migrations[i].SQL = d.render(migrations[i].SQL)
	}
	return migrations
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB, d Dialect) error {
	// Create migration tracking table
	_, err := db.ExecContext(ctx, d.render(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT {{now}}
		)
	`))
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get applied migrations
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations(d) {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
