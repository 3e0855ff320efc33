package api

import (
	"net/http"

	"github.com/platinummonkey/authapi/pkg/httputil"
	"github.com/platinummonkey/authapi/pkg/models"
)

// organizationRequest is the writable part of an organization. The archived
// flag is read-only and ignored when sent.
type organizationRequest struct {
	Name *string `json:"name"`
}

func (req *organizationRequest) validate(partial bool) error {
	errs := &models.ValidationError{}
	requireString("name", req.Name, partial, errs)
	return errs.OrNil()
}

// memberRequest is the body of the add-member endpoints
type memberRequest struct {
	UserID primaryKey `json:"user_id"`
}

func (req *memberRequest) validate() error {
	errs := &models.ValidationError{}
	req.UserID.check("user_id", errs)
	return errs.OrNil()
}

func (s *Server) listOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := s.listing.Organizations(r.Context(), r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, orgs)
}

func (s *Server) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req organizationRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.validate(false); err != nil {
		writeError(w, r, err)
		return
	}

	org := models.NewOrganization(*req.Name)
	if err := s.store.CreateOrganization(r.Context(), org); err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteCreated(w, org)
}

func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrNotFound(w, r, "id")
	if !ok {
		return
	}
	org, err := s.store.GetOrganization(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, org)
}

// updateOrganization handles PUT (every writable field) and PATCH (only the
// fields sent)
func (s *Server) updateOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrNotFound(w, r, "id")
	if !ok {
		return
	}
	org, err := s.store.GetOrganization(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req organizationRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.validate(r.Method == http.MethodPatch); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Name != nil {
		org.Name = *req.Name
	}

	if err := s.store.UpdateOrganization(r.Context(), org); err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, org)
}

func (s *Server) archiveOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrNotFound(w, r, "id")
	if !ok {
		return
	}
	if _, err := s.lifecycle.ArchiveOrganization(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) listOrganizationMembers(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrNotFound(w, r, "organization_id")
	if !ok {
		return
	}
	users, err := s.membership.ListOrgMembers(r.Context(), orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, users)
}

func (s *Server) addOrganizationMember(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrNotFound(w, r, "organization_id")
	if !ok {
		return
	}
	var req memberRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.membership.AddOrgMember(r.Context(), orgID, req.UserID.Value); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) removeOrganizationMember(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrNotFound(w, r, "organization_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrNotFound(w, r, "id")
	if !ok {
		return
	}
	if err := s.membership.RemoveOrgMember(r.Context(), orgID, userID); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
