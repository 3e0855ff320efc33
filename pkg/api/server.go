package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/authapi/pkg/audit"
	"github.com/platinummonkey/authapi/pkg/httputil"
	"github.com/platinummonkey/authapi/pkg/lifecycle"
	"github.com/platinummonkey/authapi/pkg/listing"
	"github.com/platinummonkey/authapi/pkg/membership"
	"github.com/platinummonkey/authapi/pkg/observability"
	"github.com/platinummonkey/authapi/pkg/rbac"
	"github.com/platinummonkey/authapi/pkg/storage"
)

// maxBodyBytes bounds every request body
const maxBodyBytes = 1 << 20

// Dependencies are the collaborators of the API server. Cache, Audit and
// Metrics are optional.
type Dependencies struct {
	Store   storage.Store
	Cache   rbac.PermissionCache
	Audit   audit.Logger
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Server exposes the organization, team, user and permission resources
type Server struct {
	store       storage.Store
	listing     *listing.Engine
	lifecycle   *lifecycle.Controller
	membership  *membership.Service
	permissions *rbac.Service
	checker     *rbac.Checker
	logger      *observability.Logger
	router      *mux.Router
}

// NewServer wires the services over deps.Store and registers every route
func NewServer(deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	s := &Server{
		store:       deps.Store,
		listing:     listing.NewEngine(deps.Store),
		lifecycle:   lifecycle.NewController(deps.Store, deps.Cache, deps.Audit, deps.Metrics),
		membership:  membership.NewService(deps.Store, deps.Cache, deps.Audit, deps.Metrics),
		permissions: rbac.NewService(deps.Store, deps.Cache, deps.Audit, deps.Metrics),
		checker:     rbac.NewChecker(deps.Store, deps.Cache, deps.Metrics),
		logger:      logger,
		router:      mux.NewRouter(),
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, "Not found.")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteMethodNotAllowed(w, r.Method)
	})

	s.router.Use(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware,
		httputil.ContentTypeMiddleware,
		httputil.MaxBytesMiddleware(maxBodyBytes),
	)
	if deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(deps.Metrics, routeTemplate))
	}

	s.setupRoutes()
	return s
}

// Handler returns the router wrapped with OpenTelemetry instrumentation
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "authapi",
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handle registers path both with and without its trailing slash
func (s *Server) handle(path string, h http.HandlerFunc, methods ...string) {
	trimmed := strings.TrimSuffix(path, "/")
	s.router.HandleFunc(trimmed, h).Methods(methods...)
	s.router.HandleFunc(trimmed+"/", h).Methods(methods...)
}

// routeTemplate names the matched route for metrics, ignoring the trailing
// slash variant
func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(tpl, "/") + "/"
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	// Organizations
	s.handle("/organizations/", s.listOrganizations, http.MethodGet)
	s.handle("/organizations/", s.createOrganization, http.MethodPost)
	s.handle("/organizations/{id:[0-9]+}/", s.getOrganization, http.MethodGet)
	s.handle("/organizations/{id:[0-9]+}/", s.updateOrganization, http.MethodPut, http.MethodPatch)
	s.handle("/organizations/{id:[0-9]+}/", s.archiveOrganization, http.MethodDelete)
	s.handle("/organizations/{organization_id:[0-9]+}/users/", s.listOrganizationMembers, http.MethodGet)
	s.handle("/organizations/{organization_id:[0-9]+}/users/", s.addOrganizationMember, http.MethodPost)
	s.handle("/organizations/{organization_id:[0-9]+}/users/{id:[0-9]+}/", s.removeOrganizationMember, http.MethodDelete)

	// Teams
	s.handle("/teams/", s.listTeams, http.MethodGet)
	s.handle("/teams/", s.createTeam, http.MethodPost)
	s.handle("/teams/{id:[0-9]+}/", s.getTeam, http.MethodGet)
	s.handle("/teams/{id:[0-9]+}/", s.updateTeam, http.MethodPut, http.MethodPatch)
	s.handle("/teams/{id:[0-9]+}/", s.archiveTeam, http.MethodDelete)
	s.handle("/teams/{team_id:[0-9]+}/users/", s.listTeamMembers, http.MethodGet)
	s.handle("/teams/{team_id:[0-9]+}/users/", s.addTeamMember, http.MethodPost)
	s.handle("/teams/{team_id:[0-9]+}/users/{id:[0-9]+}/", s.removeTeamMember, http.MethodDelete)
	s.handle("/teams/{team_id:[0-9]+}/permissions/", s.listPermissions, http.MethodGet)
	s.handle("/teams/{team_id:[0-9]+}/permissions/", s.grantPermission, http.MethodPost)
	s.handle("/teams/{team_id:[0-9]+}/permissions/{id:[0-9]+}/", s.getPermission, http.MethodGet)
	s.handle("/teams/{team_id:[0-9]+}/permissions/{id:[0-9]+}/", s.revokePermission, http.MethodDelete)

	// Users
	s.handle("/users/", s.listUsers, http.MethodGet)
	s.handle("/users/", s.createUser, http.MethodPost)
	s.handle("/users/{id:[0-9]+}/", s.getUser, http.MethodGet)
	s.handle("/users/{id:[0-9]+}/", s.updateUser, http.MethodPut, http.MethodPatch)
	s.handle("/users/{id:[0-9]+}/", s.deactivateUser, http.MethodDelete)
	s.handle("/users/{id:[0-9]+}/permissions/", s.userPermissions, http.MethodGet)
	s.handle("/users/{id:[0-9]+}/permissions/check/", s.checkUserPermission, http.MethodGet)
}
