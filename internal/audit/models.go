package audit

import "time"

// Entry is an immutable, append-only record of one moderation action.
//
// Invariants:
// - Entries are never updated or deleted.
// - Exactly one entry is appended per successful mutating action.
// - A failed append never rolls back the action it describes.
//
// Storage recommendation (Postgres):
// - Table moderation_audit with an INSERT-only policy.
// - Optional: partition by time for retention.
type Entry struct {
	ID string `json:"id" db:"id"`

	// ActionType indicates the business category of the audit record.
	ActionType ActionType `json:"action_type" db:"action_type"`

	// Description is a short human-readable summary for internal ops.
	Description string `json:"description" db:"description"`
	// Detail carries the decision inputs (decision, reason, tags, response).
	Detail string `json:"detail,omitempty" db:"detail"`

	// Target identifiers (optional, depending on the action type).
	TargetUserID     *int64 `json:"target_user_id,omitempty" db:"target_user_id"`
	TargetIncidentID *int64 `json:"target_incident_id,omitempty" db:"target_incident_id"`
	TargetAppealID   *int64 `json:"target_appeal_id,omitempty" db:"target_appeal_id"`

	// ActorID is the authenticated user who caused the action.
	ActorID int64 `json:"actor_id" db:"actor_id"`

	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

type ActionType string

const (
	ActionIncidentApprove ActionType = "incident_approve"
	ActionIncidentReject  ActionType = "incident_reject"
	ActionIncidentRetract ActionType = "incident_retract"
	ActionAppealApprove   ActionType = "appeal_approve"
	ActionAppealReject    ActionType = "appeal_reject"
	ActionAppealSubmit    ActionType = "appeal_submit"
)
