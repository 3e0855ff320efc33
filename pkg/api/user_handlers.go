package api

import (
	"net/http"

	"github.com/platinummonkey/authapi/pkg/httputil"
	"github.com/platinummonkey/authapi/pkg/listing"
	"github.com/platinummonkey/authapi/pkg/models"
)

// userRequest is the writable part of a user. The active flag is read-only.
type userRequest struct {
	Username  *string `json:"username"`
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

func (req *userRequest) validate(partial bool) error {
	errs := &models.ValidationError{}
	requireString("username", req.Username, partial, errs)
	return errs.OrNil()
}

// apply copies the sent fields onto user. A full update clears the optional
// fields that were left out.
func (req *userRequest) apply(user *models.User, partial bool) {
	set := func(dst *string, src *string) {
		switch {
		case src != nil:
			*dst = *src
		case !partial:
			*dst = ""
		}
	}
	if req.Username != nil {
		user.Username = *req.Username
	}
	set(&user.Email, req.Email)
	set(&user.FirstName, req.FirstName)
	set(&user.LastName, req.LastName)
}

// permissionCheck answers the permission check endpoint
type permissionCheck struct {
	UserID   int64  `json:"user_id"`
	Type     string `json:"type"`
	ObjectID string `json:"object_id"`
	Allowed  bool   `json:"allowed"`
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.listing.Users(r.Context(), r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, users)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.validate(false); err != nil {
		writeError(w, r, err)
		return
	}

	user := models.NewUser(*req.Username)
	req.apply(user, false)
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteCreated(w, user)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrNotFound(w, r, "id")
	if !ok {
		return
	}
	user, err := s.store.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, user)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrNotFound(w, r, "id")
	if !ok {
		return
	}
	user, err := s.store.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req userRequest
	if !decode(w, r, &req) {
		return
	}
	partial := r.Method == http.MethodPatch
	if err := req.validate(partial); err != nil {
		writeError(w, r, err)
		return
	}
	req.apply(user, partial)

	if err := s.store.UpdateUser(r.Context(), user); err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, user)
}

func (s *Server) deactivateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrNotFound(w, r, "id")
	if !ok {
		return
	}
	if _, err := s.lifecycle.DeactivateUser(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// userPermissions lists the permissions the user holds through their teams
func (s *Server) userPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrNotFound(w, r, "id")
	if !ok {
		return
	}
	perms, err := s.checker.EffectivePermissions(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, perms)
}

// checkUserPermission answers whether the user holds type on object_id
func (s *Server) checkUserPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrNotFound(w, r, "id")
	if !ok {
		return
	}
	query := r.URL.Query()
	permType := listing.OptionalParam(query, "type")
	objectID := listing.OptionalParam(query, "object_id")

	errs := &models.ValidationError{}
	if permType == nil || *permType == "" {
		errs.Add("type", models.RequiredMessage)
	}
	if objectID == nil {
		errs.Add("object_id", models.RequiredMessage)
	}
	if err := errs.OrNil(); err != nil {
		writeError(w, r, err)
		return
	}

	check := permissionCheck{UserID: id, Type: *permType, ObjectID: *objectID}
	allowed, err := s.checker.HasPermission(r.Context(), id, check.Type, check.ObjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	check.Allowed = allowed
	_ = httputil.WriteSuccess(w, check)
}
