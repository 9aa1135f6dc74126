package moderation

import "time"

// IncidentReport is a user-submitted incident.
//
// Invariants:
// - Reports are never deleted.
// - Status changes only through Engine.ResolveIncident or an approved incident_rejection_appeal.
// - RejectionReason is set only while Status is rejected.
type IncidentReport struct {
	ID              int64          `json:"id" db:"id"`
	SubmitterUserID int64          `json:"submitter_user_id" db:"submitter_user_id"`
	Status          IncidentStatus `json:"status" db:"status"`

	// Tags is an ordered set of labels.
	Tags            []string `json:"tags" db:"tags"`
	RejectionReason *string  `json:"rejection_reason,omitempty" db:"rejection_reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type IncidentStatus string

const (
	IncidentStatusPending  IncidentStatus = "pending"
	IncidentStatusApproved IncidentStatus = "approved"
	IncidentStatusRejected IncidentStatus = "rejected"
)

// Decision is an admin decision on an incident report.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	DecisionRetract Decision = "retract"
)

// Appeal contests either an account ban or the rejection of an incident report.
//
// An appeal is created once by SubmitAppeal and resolved at most once.
// It is never re-opened.
type Appeal struct {
	ID            int64 `json:"id" db:"id"`
	SubjectUserID int64 `json:"subject_user_id" db:"subject_user_id"`

	// IncidentID is nil for ban appeals.
	IncidentID *int64 `json:"incident_id,omitempty" db:"incident_id"`

	Kind    AppealKind   `json:"kind" db:"kind"`
	Status  AppealStatus `json:"status" db:"status"`
	Message string       `json:"message" db:"message"`

	RespondedBy *int64  `json:"responded_by,omitempty" db:"responded_by"`
	Response    *string `json:"response,omitempty" db:"response"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type AppealKind string

const (
	AppealKindBan               AppealKind = "ban_appeal"
	AppealKindIncidentRejection AppealKind = "incident_rejection_appeal"
)

func (k AppealKind) Valid() bool {
	return k == AppealKindBan || k == AppealKindIncidentRejection
}

type AppealStatus string

const (
	AppealStatusPending  AppealStatus = "pending"
	AppealStatusApproved AppealStatus = "approved"
	AppealStatusRejected AppealStatus = "rejected"
)

// AppealDecision is an admin decision on an appeal.
type AppealDecision string

const (
	AppealDecisionApprove AppealDecision = "approve"
	AppealDecisionReject  AppealDecision = "reject"
)

// Account is the moderation view of a user account.
// It is mutated only when a ban appeal is approved.
type Account struct {
	ID        int64         `json:"id" db:"id"`
	Status    AccountStatus `json:"status" db:"status"`
	BanReason *string       `json:"ban_reason,omitempty" db:"ban_reason"`
}

type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusBanned AccountStatus = "banned"
)

// newer reports whether a sorts after b in creation order.
// createdAt may collide, so the auto-incrementing id breaks ties.
func newer(a, b Appeal) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// EffectiveAppeal returns the latest appeal of the given kind in appeals.
func EffectiveAppeal(appeals []Appeal, kind AppealKind) (Appeal, bool) {
	var (
		out   Appeal
		found bool
	)
	for _, a := range appeals {
		if a.Kind != kind {
			continue
		}
		if !found || newer(a, out) {
			out = a
			found = true
		}
	}
	return out, found
}

func ptr[T any](v T) *T { return &v }
