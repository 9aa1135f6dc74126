package moderation

import (
	"context"
	"fmt"
	"strings"

	"incident-moderation/internal/audit"
)

// AuditEntry is the record appended once per committed moderation action.
type AuditEntry = audit.Entry

// AuditLogger is the append-only audit sink. *audit.Service satisfies it.
type AuditLogger interface {
	Append(ctx context.Context, e AuditEntry) error
}

func incidentAction(d Decision) audit.ActionType {
	switch d {
	case DecisionApprove:
		return audit.ActionIncidentApprove
	case DecisionReject:
		return audit.ActionIncidentReject
	case DecisionRetract:
		return audit.ActionIncidentRetract
	default:
		return "incident_unknown"
	}
}

func appealAction(d AppealDecision) audit.ActionType {
	switch d {
	case AppealDecisionApprove:
		return audit.ActionAppealApprove
	case AppealDecisionReject:
		return audit.ActionAppealReject
	default:
		return "appeal_unknown"
	}
}

func incidentEntry(action audit.ActionType, r IncidentReport, actorID int64) AuditEntry {
	verb := map[audit.ActionType]string{
		audit.ActionIncidentApprove: "approved",
		audit.ActionIncidentReject:  "rejected",
		audit.ActionIncidentRetract: "retracted",
	}[action]

	detail := fmt.Sprintf("decision=%s tags=[%s]", strings.TrimPrefix(string(action), "incident_"), strings.Join(r.Tags, ","))
	if r.RejectionReason != nil {
		detail += fmt.Sprintf(" reason=%q", *r.RejectionReason)
	}
	return AuditEntry{
		ActionType:       action,
		Description:      fmt.Sprintf("incident %d %s", r.ID, verb),
		Detail:           detail,
		TargetUserID:     ptr(r.SubmitterUserID),
		TargetIncidentID: ptr(r.ID),
		ActorID:          actorID,
	}
}

func appealEntry(action audit.ActionType, a Appeal, actorID int64) AuditEntry {
	var desc string
	switch {
	case action == audit.ActionAppealReject:
		desc = fmt.Sprintf("%s %d rejected", a.Kind, a.ID)
	case a.Kind == AppealKindBan:
		desc = fmt.Sprintf("%s %d approved, account %d reactivated", a.Kind, a.ID, a.SubjectUserID)
	default:
		desc = fmt.Sprintf("%s %d approved, incident %d approved", a.Kind, a.ID, derefOr(a.IncidentID, 0))
	}

	detail := fmt.Sprintf("decision=%s kind=%s", strings.TrimPrefix(string(action), "appeal_"), a.Kind)
	if a.Response != nil && *a.Response != "" {
		detail += fmt.Sprintf(" response=%q", *a.Response)
	}
	return AuditEntry{
		ActionType:       action,
		Description:      desc,
		Detail:           detail,
		TargetUserID:     ptr(a.SubjectUserID),
		TargetIncidentID: a.IncidentID,
		TargetAppealID:   ptr(a.ID),
		ActorID:          actorID,
	}
}

func submitEntry(a Appeal) AuditEntry {
	desc := fmt.Sprintf("%s %d submitted by user %d", a.Kind, a.ID, a.SubjectUserID)
	if a.IncidentID != nil {
		desc += fmt.Sprintf(" for incident %d", *a.IncidentID)
	}
	return AuditEntry{
		ActionType:       audit.ActionAppealSubmit,
		Description:      desc,
		Detail:           fmt.Sprintf("kind=%s message_len=%d", a.Kind, len(a.Message)),
		TargetUserID:     ptr(a.SubjectUserID),
		TargetIncidentID: a.IncidentID,
		TargetAppealID:   ptr(a.ID),
		ActorID:          a.SubjectUserID,
	}
}

func derefOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
