// Package models defines the entities of the access-control hierarchy and the
// errors shared by every layer that handles them.
//
// # Entities
//
//   - Organization: tenant boundary, soft-deleted by archiving.
//   - Team: owned by exactly one Organization, soft-deleted by archiving,
//     owns its Permissions.
//   - User: soft-deleted by deactivation (Active=false).
//   - Permission: a (type, object_id) grant owned by a Team. Revoking a
//     Permission removes it.
//
// Memberships (User↔Organization and User↔Team) are plain relation edges and
// do not depend on a user's Active flag.
//
// # Errors
//
//	if errors.Is(err, models.ErrNotFound) { ... }
//
//	var verr *models.ValidationError
//	if errors.As(err, &verr) { ... verr.Fields ... }
package models
