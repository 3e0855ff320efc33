// Package rbac manages the permissions teams hold on protected objects and
// answers what a user may do through their team memberships.
//
// # Permissions
//
// A permission pairs a namespaced capability ("billing.view") with the id of
// one protected object. Permissions belong to exactly one team and are
// removed on revoke; teams, organizations and users are only ever archived.
//
//	svc := rbac.NewService(store, cache, auditLogger, metrics)
//	perm, err := svc.GrantPermission(ctx, teamID, "billing.view", "invoice-42")
//	err = svc.RevokePermission(ctx, teamID, perm.ID)
//
// Granting on an archived team is allowed. Revoking a permission through a
// team that does not own it is a not-found error.
//
// # Effective Permissions
//
//	checker := rbac.NewChecker(store, cache, metrics)
//	ok, err := checker.HasPermission(ctx, userID, "billing.view", "invoice-42")
//
// A user holds the union of the permissions of every non-archived team they
// belong to. Deactivated users hold nothing.
//
// # Caching
//
// Resolved sets are cached per user in an expirable LRU and, when Redis is
// configured, in Redis under a generation counter. Every membership,
// permission or lifecycle mutation invalidates the whole cache; invalidation
// failures are logged and never fail the mutation. A set resolved while an
// invalidation commits is not cached.
package rbac
