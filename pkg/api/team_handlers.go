package api

import (
	"context"
	"net/http"

	"github.com/platinummonkey/authapi/pkg/httputil"
	"github.com/platinummonkey/authapi/pkg/models"
)

type teamRequest struct {
	Name           *string    `json:"name"`
	OrganizationID primaryKey `json:"organization_id"`
}

// validate checks the fields and that the referenced organization exists
func (s *Server) validateTeam(ctx context.Context, req *teamRequest, partial bool) error {
	errs := &models.ValidationError{}
	requireString("name", req.Name, partial, errs)

	if req.OrganizationID.Set || !partial {
		req.OrganizationID.check("organization_id", errs)
	}
	if req.OrganizationID.Valid {
		if _, err := s.store.GetOrganization(ctx, req.OrganizationID.Value); err != nil {
			if !models.IsNotFound(err) {
				return err
			}
			errs.Add("organization_id", invalidPK(req.OrganizationID.Value))
		}
	}
	return errs.OrNil()
}

type permissionRequest struct {
	Type     string `json:"type"`
	ObjectID string `json:"object_id"`
}

func (s *Server) listTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := s.listing.Teams(r.Context(), r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, teams)
}

func (s *Server) createTeam(w http.ResponseWriter, r *http.Request) {
	var req teamRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.validateTeam(r.Context(), &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	team := models.NewTeam(req.OrganizationID.Value, *req.Name)
	if err := s.store.CreateTeam(r.Context(), team); err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteCreated(w, team)
}

func (s *Server) getTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrNotFound(w, r, "id")
	if !ok {
		return
	}
	team, err := s.store.GetTeam(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, team)
}

func (s *Server) updateTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrNotFound(w, r, "id")
	if !ok {
		return
	}
	team, err := s.store.GetTeam(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req teamRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.validateTeam(r.Context(), &req, r.Method == http.MethodPatch); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Name != nil {
		team.Name = *req.Name
	}
	if req.OrganizationID.Valid {
		team.OrganizationID = req.OrganizationID.Value
	}

	if err := s.store.UpdateTeam(r.Context(), team); err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, team)
}

func (s *Server) archiveTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrNotFound(w, r, "id")
	if !ok {
		return
	}
	if _, err := s.lifecycle.ArchiveTeam(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) listTeamMembers(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathInt64OrNotFound(w, r, "team_id")
	if !ok {
		return
	}
	users, err := s.membership.ListTeamMembers(r.Context(), teamID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, users)
}

func (s *Server) addTeamMember(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathInt64OrNotFound(w, r, "team_id")
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
	if err := s.membership.AddTeamMember(r.Context(), teamID, req.UserID.Value); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) removeTeamMember(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathInt64OrNotFound(w, r, "team_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrNotFound(w, r, "id")
	if !ok {
		return
	}
	if err := s.membership.RemoveTeamMember(r.Context(), teamID, userID); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) listPermissions(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathInt64OrNotFound(w, r, "team_id")
	if !ok {
		return
	}
	perms, err := s.permissions.ListPermissions(r.Context(), teamID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, perms)
}

func (s *Server) grantPermission(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathInt64OrNotFound(w, r, "team_id")
	if !ok {
		return
	}
	var req permissionRequest
	if !decode(w, r, &req) {
		return
	}
	perm, err := s.permissions.GrantPermission(r.Context(), teamID, req.Type, req.ObjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteCreated(w, perm)
}

func (s *Server) getPermission(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathInt64OrNotFound(w, r, "team_id")
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrNotFound(w, r, "id")
	if !ok {
		return
	}
	perm, err := s.permissions.GetPermission(r.Context(), teamID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, perm)
}

func (s *Server) revokePermission(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathInt64OrNotFound(w, r, "team_id")
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrNotFound(w, r, "id")
	if !ok {
		return
	}
	if err := s.permissions.RevokePermission(r.Context(), teamID, id); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
