package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/authapi/pkg/audit"
	"github.com/platinummonkey/authapi/pkg/models"
	"github.com/platinummonkey/authapi/pkg/storage/storagetest"
)

func TestCreateUser(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/users/", map[string]interface{}{
		"username": "alice",
		"email":    "alice@example.com",
		"active":   false,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var user models.User
	decodeBody(t, w, &user)
	assert.NotZero(t, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.True(t, user.Active, "active is read-only")

	fields := fieldErrors(t, h.do(t, http.MethodPost, "/users/", map[string]string{"username": "alice"}))
	assert.Contains(t, fields, "username")

	fields = fieldErrors(t, h.do(t, http.MethodPost, "/users/", map[string]string{"email": "x@example.com"}))
	assert.Equal(t, []string{models.RequiredMessage}, fields["username"])
}

func TestUpdateUser(t *testing.T) {
	h := newHarness(t)
	alice := storagetest.MustUser(t, h.store, "alice")
	storagetest.MustUser(t, h.store, "bob")
	path := fmt.Sprintf("/users/%d/", alice.ID)

	w := h.do(t, http.MethodPatch, path, map[string]string{"first_name": "Alice"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got models.User
	decodeBody(t, w, &got)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "Alice", got.FirstName)

	w = h.do(t, http.MethodPut, path, map[string]string{"username": "alice2"})
	require.Equal(t, http.StatusOK, w.Code)
	got = models.User{}
	decodeBody(t, w, &got)
	assert.Equal(t, "alice2", got.Username)
	assert.Empty(t, got.FirstName, "full update clears omitted fields")

	fields := fieldErrors(t, h.do(t, http.MethodPatch, path, map[string]string{"username": "bob"}))
	assert.Contains(t, fields, "username")
}

func TestUpdateUser_KeepsDeactivated(t *testing.T) {
	h := newHarness(t)
	alice := storagetest.MustUser(t, h.store, "alice")
	path := fmt.Sprintf("/users/%d/", alice.ID)

	require.Equal(t, http.StatusNoContent, h.do(t, http.MethodDelete, path, nil).Code)

	w := h.do(t, http.MethodPatch, path, map[string]interface{}{"first_name": "Alice", "active": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got models.User
	decodeBody(t, w, &got)
	assert.False(t, got.Active)

	stored, err := h.store.GetUser(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
	assert.Equal(t, "Alice", stored.FirstName)
}

func TestDeactivateUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	org := storagetest.MustOrganization(t, h.store, "acme")
	alice := storagetest.MustUser(t, h.store, "alice")
	storagetest.MustUser(t, h.store, "bob")
	require.NoError(t, h.store.AddOrganizationMember(ctx, org.ID, alice.ID))

	w := h.do(t, http.MethodDelete, fmt.Sprintf("/users/%d/", alice.ID), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, audit.EventTypeUserDeactivate, h.audit.Last().EventType)

	// membership survives deactivation
	member, err := h.store.HasOrganizationMember(ctx, org.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, member)

	tests := []struct {
		query string
		names []string
	}{
		{"", []string{"bob"}},
		{"?active=false", []string{"alice"}},
		{"?active=both", []string{"alice", "bob"}},
	}
	for _, tt := range tests {
		t.Run("list"+tt.query, func(t *testing.T) {
			w := h.do(t, http.MethodGet, "/users/"+tt.query, nil)
			require.Equal(t, http.StatusOK, w.Code)
			var users []models.User
			decodeBody(t, w, &users)
			names := []string{}
			for _, u := range users {
				names = append(names, u.Username)
			}
			assert.Equal(t, tt.names, names)
		})
	}

	w = h.do(t, http.MethodDelete, "/users/9999/", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "user not found", detail(t, w))
}

func TestUserPermissions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	org := storagetest.MustOrganization(t, h.store, "acme")
	billing := storagetest.MustTeam(t, h.store, org.ID, "billing")
	alice := storagetest.MustUser(t, h.store, "alice")
	require.NoError(t, h.store.AddTeamMember(ctx, billing.ID, alice.ID))
	storagetest.MustPermission(t, h.store, billing.ID, "billing.view", "invoice-1")

	w := h.do(t, http.MethodGet, fmt.Sprintf("/users/%d/permissions/", alice.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var perms []models.Permission
	decodeBody(t, w, &perms)
	require.Len(t, perms, 1)
	assert.Equal(t, "billing.view", perms[0].Type)

	check := func(query string) permissionCheck {
		t.Helper()
		w := h.do(t, http.MethodGet, fmt.Sprintf("/users/%d/permissions/check/?%s", alice.ID, query), nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var out permissionCheck
		decodeBody(t, w, &out)
		return out
	}
	assert.True(t, check("type=billing.view&object_id=invoice-1").Allowed)
	assert.False(t, check("type=billing.view&object_id=invoice-2").Allowed)
	assert.True(t, check("type=billing.edit&type=billing.view&object_id=invoice-1").Allowed)

	fields := fieldErrors(t, h.do(t, http.MethodGet, fmt.Sprintf("/users/%d/permissions/check/", alice.ID), nil))
	assert.Contains(t, fields, "type")
	assert.Contains(t, fields, "object_id")

	w = h.do(t, http.MethodGet, "/users/9999/permissions/", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
