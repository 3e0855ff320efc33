// Package audit records the mutations made through the authapi services.
//
// # Event Types
//
// Lifecycle: org_archive, team_archive, user_deactivate
// Membership: org_member_add, org_member_remove, team_member_add, team_member_remove
// Authorization: permission_grant, permission_revoke
//
// Idempotent calls that change nothing are recorded with EventStatusNoop.
//
// # Usage Example
//
//	logger, err := audit.NewFileLogger("/var/log/authapi/audit.log")
//	if err != nil {
//		return err
//	}
//	defer logger.Close()
//
//	audit.Record(ctx, logger, audit.NewEvent(ctx, audit.EventTypeTeamMemberAdd,
//		audit.EventStatusSuccess, models.KindTeam, teamID).
//		WithSubject(models.KindUser, userID))
//
// LogrusLogger writes one JSON object per event through sirupsen/logrus.
// Record never fails the caller; write errors are reported through the
// request logger instead.
package audit
