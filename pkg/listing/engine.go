package listing

import (
	"context"
	"net/url"

	"github.com/platinummonkey/authapi/pkg/models"
	"github.com/platinummonkey/authapi/pkg/storage"
)

// Query parameter names
const (
	ParamArchived           = "archived"
	ParamActive             = "active"
	ParamPermissionContains = "permission_contains"
	ParamObjectID           = "object_id"
)

// OrganizationFilter builds the filter of an organization listing
func OrganizationFilter(params url.Values) (storage.OrganizationFilter, error) {
	archived, err := ParseTriState(params, ParamArchived, False)
	if err != nil {
		return storage.OrganizationFilter{}, err
	}
	return storage.OrganizationFilter{Archived: archived.Bool()}, nil
}

// UserFilter builds the filter of a user listing
func UserFilter(params url.Values) (storage.UserFilter, error) {
	active, err := ParseTriState(params, ParamActive, True)
	if err != nil {
		return storage.UserFilter{}, err
	}
	return storage.UserFilter{Active: active.Bool()}, nil
}

// TeamFilter builds the filter of a team listing. The permission parameters
// apply whenever present, including when empty.
func TeamFilter(params url.Values) (storage.TeamFilter, error) {
	archived, err := ParseTriState(params, ParamArchived, False)
	if err != nil {
		return storage.TeamFilter{}, err
	}
	return storage.TeamFilter{
		Archived:           archived.Bool(),
		PermissionContains: OptionalParam(params, ParamPermissionContains),
		ObjectID:           OptionalParam(params, ParamObjectID),
	}, nil
}

// Engine runs filtered listings against the record store
type Engine struct {
	store storage.Store
}

// NewEngine creates a listing engine
func NewEngine(store storage.Store) *Engine {
	return &Engine{store: store}
}

// Organizations lists organizations matching params
func (e *Engine) Organizations(ctx context.Context, params url.Values) ([]*models.Organization, error) {
	filter, err := OrganizationFilter(params)
	if err != nil {
		return nil, err
	}
	return e.store.ListOrganizations(ctx, filter)
}

// Teams lists teams matching params, each with its permissions
func (e *Engine) Teams(ctx context.Context, params url.Values) ([]*models.Team, error) {
	filter, err := TeamFilter(params)
	if err != nil {
		return nil, err
	}
	return e.store.ListTeams(ctx, filter)
}

// Users lists users matching params
func (e *Engine) Users(ctx context.Context, params url.Values) ([]*models.User, error) {
	filter, err := UserFilter(params)
	if err != nil {
		return nil, err
	}
	return e.store.ListUsers(ctx, filter)
}
