package models

import (
	"time"
)

// Kind names an entity collection. It is used in errors, audit events and
// metric labels.
type Kind string

const (
	KindOrganization Kind = "organization"
	KindTeam         Kind = "team"
	KindUser         Kind = "user"
	KindPermission   Kind = "permission"
)

// Organization is a tenant. Archived organizations are hidden from default
// listings but remain readable and writable by id.
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Team is a group of users scoped to one organization
type Team struct {
	ID             int64        `json:"id"`
	OrganizationID int64        `json:"organization_id"`
	Name           string       `json:"name"`
	Archived       bool         `json:"archived"`
	Permissions    []Permission `json:"permissions"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// User is an already-authenticated principal. Credentials live elsewhere.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Permission grants a capability (Type, e.g. "billing.view") on one protected
// object (ObjectID) to the members of the owning team.
type Permission struct {
	ID        int64     `json:"id"`
	TeamID    int64     `json:"team_id"`
	Type      string    `json:"type"`
	ObjectID  string    `json:"object_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Matches reports whether the permission grants permType on objectID
func (p Permission) Matches(permType, objectID string) bool {
	return p.Type == permType && p.ObjectID == objectID
}

// SoftDeletable is implemented by the entities that are retired by flipping a
// flag instead of being removed. Retire flips the flag and reports whether
// anything changed; calling it on an already retired entity is a no-op.
type SoftDeletable interface {
	Retire() bool
	Retired() bool
}

// Retire archives the organization
func (o *Organization) Retire() bool {
	if o.Archived {
		return false
	}
	o.Archived = true
	return true
}

// Retired reports whether the organization is archived
func (o *Organization) Retired() bool { return o.Archived }

// Retire archives the team
func (t *Team) Retire() bool {
	if t.Archived {
		return false
	}
	t.Archived = true
	return true
}

// Retired reports whether the team is archived
func (t *Team) Retired() bool { return t.Archived }

// Retire deactivates the user. Note the inverted polarity: a retired user has
// Active=false.
func (u *User) Retire() bool {
	if !u.Active {
		return false
	}
	u.Active = false
	return true
}

// Retired reports whether the user is deactivated
func (u *User) Retired() bool { return !u.Active }

// NewOrganization returns an organization with its default flags
func NewOrganization(name string) *Organization {
	return &Organization{Name: name}
}

// NewTeam returns a team with its default flags
func NewTeam(organizationID int64, name string) *Team {
	return &Team{OrganizationID: organizationID, Name: name, Permissions: []Permission{}}
}

// NewUser returns an active user
func NewUser(username string) *User {
	return &User{Username: username, Active: true}
}
