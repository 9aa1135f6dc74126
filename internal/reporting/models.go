package reporting

import (
	"time"

	"incident-moderation/internal/moderation"
)

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// QueueSummary is the admin dashboard view of outstanding moderation work.
type QueueSummary struct {
	PendingIncidents int `json:"pending_incidents"`

	// PendingAppeals is keyed by appeal kind; every known kind is present.
	PendingAppeals map[moderation.AppealKind]int `json:"pending_appeals"`

	OldestPendingIncidentAt *time.Time `json:"oldest_pending_incident_at,omitempty"`
	OldestPendingAppealAt   *time.Time `json:"oldest_pending_appeal_at,omitempty"`
}

// ResolutionSummaryRequest requests appeal outcomes for a time range.
// Appeals are attributed to the range by their last update.
type ResolutionSummaryRequest struct {
	Range TimeRange             `json:"range"`
	Kind  moderation.AppealKind `json:"kind,omitempty"`
}

type ResolutionSummary struct {
	Kind moderation.AppealKind `json:"kind,omitempty"`

	Approved int `json:"approved"`
	Rejected int `json:"rejected"`

	ApprovalRate float64 `json:"approval_rate"`
}
