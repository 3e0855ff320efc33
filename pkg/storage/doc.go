// Package storage defines the record store consumed by the authapi services.
//
// # Overview
//
// The store is split into focused interfaces that compose into Store:
//
//   - OrganizationStore: create/get/list/update organizations
//   - TeamStore: create/get/list/update teams (teams carry their permissions)
//   - UserStore: create/get/list/update users
//   - PermissionStore: create/get/list/delete permissions
//   - MembershipStore: the User↔Organization and User↔Team relation edges
//
// Organizations, teams and users have no delete method: retiring them is an
// Update with the archived/active flag flipped (see pkg/lifecycle).
//
// # Errors
//
// Get, Update and Delete return a *models.NotFoundError for unknown ids, so
// callers can test with errors.Is(err, models.ErrNotFound).
//
// # Implementations
//
//   - pkg/storage/memory: mutex-guarded maps, used in tests and the "memory"
//     backend.
//   - pkg/storage/postgres: database/sql implementation for PostgreSQL
//     (lib/pq) and SQLite (mattn/go-sqlite3).
package storage
