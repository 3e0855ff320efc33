// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteSuccess(w, team)
//	httputil.WriteCreated(w, permission)
//	httputil.WriteNoContent(w)
//
// Error bodies follow two shapes: validation failures map each field to its
// messages, everything else is {"detail": "..."}.
//
//	httputil.WriteFieldErrors(w, map[string][]string{"name": {"This field is required."}})
//	httputil.WriteNotFound(w, "team not found")
//	httputil.WriteInternalError(w)
//
// # Request Parsing
//
//	var req createTeamRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
//	teamID, ok := httputil.ParsePathInt64OrNotFound(w, r, "team_id")
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)
package httputil
