package services

import (
	"context"

	"github.com/charlesng35/labmgr/internal/auditctx"
)

// Audit results.
const (
	auditSuccess = "success"
	auditFailure = "failure"
	auditDenied  = "denied"
)

// recordAudit logs the supplied entry while tolerating audit failures. Actor fields left
// empty are filled from the request context.
func recordAudit(audit *AuditService, ctx context.Context, entry AuditEntry) {
	if audit == nil {
		return
	}
	if actor, ok := auditctx.FromContext(ctx); ok {
		if entry.ActorID == "" {
			entry.ActorID = actor.AccountID
		}
		if entry.ActorName == "" {
			entry.ActorName = actor.Name
		}
		if entry.IPAddress == "" {
			entry.IPAddress = actor.IPAddress
		}
		if entry.UserAgent == "" {
			entry.UserAgent = actor.UserAgent
		}
	}
	_ = audit.Log(ctx, entry)
}
