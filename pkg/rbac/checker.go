package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/platinummonkey/authapi/pkg/models"
	"github.com/platinummonkey/authapi/pkg/observability"
)

// CheckerStore is the subset of the record store used by Checker
type CheckerStore interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	ListUserTeams(ctx context.Context, userID int64) ([]*models.Team, error)
}

// Checker answers what a user may do through the teams they belong to
type Checker struct {
	store   CheckerStore
	cache   PermissionCache
	metrics *observability.Metrics
}

// NewChecker creates a permission checker. cache may be nil.
func NewChecker(store CheckerStore, cache PermissionCache, metrics *observability.Metrics) *Checker {
	return &Checker{store: store, cache: cache, metrics: metrics}
}

// EffectivePermissions returns the permissions held by userID through every
// non-archived team it belongs to, ordered by id. Inactive users hold none.
func (c *Checker) EffectivePermissions(ctx context.Context, userID int64) ([]models.Permission, error) {
	var (
		gen       Generation
		cacheable bool
	)
	if c.cache != nil {
		perms, err := c.cache.Get(ctx, userID)
		if err == nil {
			return perms, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			observability.FromContext(ctx).WithError(err).Warn("permission cache read failed")
		}
		// read before resolving so a concurrent invalidation discards the result
		if gen, err = c.cache.Generation(ctx); err == nil {
			cacheable = true
		}
	}

	perms, err := c.resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	if cacheable {
		if err := c.cache.Set(ctx, userID, gen, perms); err != nil {
			observability.FromContext(ctx).WithError(err).Warn("permission cache write failed")
		}
	}
	return perms, nil
}

func (c *Checker) resolve(ctx context.Context, userID int64) ([]models.Permission, error) {
	ctx, span := observability.StartSpan(ctx, "rbac.resolve")
	defer span.End()

	user, err := c.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	perms := []models.Permission{}
	if !user.Active {
		return perms, nil
	}

	teams, err := c.store.ListUserTeams(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve permissions: %w", err)
	}
	for _, team := range teams {
		if team.Archived {
			continue
		}
		perms = append(perms, team.Permissions...)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].ID < perms[j].ID })
	return perms, nil
}

// HasPermission reports whether userID holds permType on objectID
func (c *Checker) HasPermission(ctx context.Context, userID int64, permType, objectID string) (bool, error) {
	perms, err := c.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	allowed := false
	for _, p := range perms {
		if p.Matches(permType, objectID) {
			allowed = true
			break
		}
	}
	c.metrics.ObservePermissionCheck(allowed)
	return allowed, nil
}
