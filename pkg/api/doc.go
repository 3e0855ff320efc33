// Package api provides the HTTP interface for organizations, teams, users and
// the permissions teams hold.
//
// # Routes
//
//	GET    /organizations/?archived=true|false|both
//	POST   /organizations/
//	GET    /organizations/{id}/
//	PUT    /organizations/{id}/       (PATCH for partial updates)
//	DELETE /organizations/{id}/       archive
//	GET    /organizations/{organization_id}/users/
//	POST   /organizations/{organization_id}/users/        {"user_id": 7}
//	DELETE /organizations/{organization_id}/users/{id}/
//
//	GET    /teams/?archived=&permission_contains=&object_id=
//	POST   /teams/
//	GET    /teams/{id}/
//	PUT    /teams/{id}/
//	DELETE /teams/{id}/               archive
//	GET    /teams/{team_id}/users/
//	POST   /teams/{team_id}/users/
//	DELETE /teams/{team_id}/users/{id}/
//	GET    /teams/{team_id}/permissions/
//	POST   /teams/{team_id}/permissions/                  {"type": "billing.view", "object_id": "42"}
//	GET    /teams/{team_id}/permissions/{id}/
//	DELETE /teams/{team_id}/permissions/{id}/             revoke
//
//	GET    /users/?active=true|false|both
//	POST   /users/
//	GET    /users/{id}/
//	PUT    /users/{id}/
//	DELETE /users/{id}/               deactivate
//	GET    /users/{id}/permissions/
//	GET    /users/{id}/permissions/check/?type=&object_id=
//
// Trailing slashes are optional. Archived and deactivated entities are hidden
// from default listings only; they stay readable and writable by id.
//
// # Errors
//
// Validation failures answer 400 with a body mapping each field to its
// messages:
//
//	{"name": ["This field is required."]}
//
// Missing entities answer 404 with {"detail": "team not found"}. Any other
// failure answers 500 with a generic detail and is logged with the request id.
package api
