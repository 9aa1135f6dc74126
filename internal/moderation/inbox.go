package moderation

import (
	"cmp"
	"context"
	"slices"
)

// ListInboxItems returns the submitter's rejected incidents that still need their attention,
// newest first.
//
// An incident is listed when it has no incident rejection appeal, or when its effective
// appeal was rejected too. A pending or approved effective appeal hides it.
//
// The result is derived from committed state on every call and has no side effects.
func (e *Engine) ListInboxItems(ctx context.Context, submitterUserID int64) ([]IncidentReport, error) {
	if submitterUserID <= 0 {
		return nil, validationf("submitter user id required")
	}

	rejected, err := e.Store.ListIncidentsBySubmitter(ctx, submitterUserID, IncidentStatusRejected)
	if err != nil {
		return nil, storageErr("list incidents", err)
	}
	if len(rejected) == 0 {
		e.Metrics.observeInbox(0)
		return []IncidentReport{}, nil
	}

	ids := make([]int64, len(rejected))
	for i, r := range rejected {
		ids[i] = r.ID
	}
	appeals, err := e.Store.ListAppealsByIncidentIDs(ctx, ids)
	if err != nil {
		return nil, storageErr("list appeals", err)
	}

	out := InboxItems(rejected, appeals)
	e.Metrics.observeInbox(len(out))
	return out, nil
}

// InboxItems applies the inbox rule to a fixed set of rejected incidents and their appeals.
func InboxItems(rejected []IncidentReport, appeals []Appeal) []IncidentReport {
	effective := effectiveByIncident(appeals)

	out := make([]IncidentReport, 0, len(rejected))
	for _, r := range rejected {
		if r.Status != IncidentStatusRejected {
			continue
		}
		eff, ok := effective[r.ID]
		if ok && eff.Status != AppealStatusRejected {
			continue
		}
		out = append(out, r)
	}

	slices.SortFunc(out, func(a, b IncidentReport) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

// effectiveByIncident reduces incident rejection appeals to the latest one per incident.
func effectiveByIncident(appeals []Appeal) map[int64]Appeal {
	out := make(map[int64]Appeal)
	for _, a := range appeals {
		if a.Kind != AppealKindIncidentRejection || a.IncidentID == nil {
			continue
		}
		cur, ok := out[*a.IncidentID]
		if !ok || newer(a, cur) {
			out[*a.IncidentID] = a
		}
	}
	return out
}

// PendingIncidents lists incidents awaiting a decision, oldest first.
func (e *Engine) PendingIncidents(ctx context.Context) ([]IncidentReport, error) {
	rows, err := e.Store.ListIncidentsByStatus(ctx, IncidentStatusPending)
	if err != nil {
		return nil, storageErr("list pending incidents", err)
	}
	slices.SortFunc(rows, func(a, b IncidentReport) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return rows, nil
}

// PendingAppeals lists appeals awaiting a decision in creation order.
// An empty kind lists every kind.
func (e *Engine) PendingAppeals(ctx context.Context, kind AppealKind) ([]Appeal, error) {
	if kind != "" && !kind.Valid() {
		return nil, validationf("unknown appeal kind %q", kind)
	}
	rows, err := e.Store.ListAppealsByStatus(ctx, AppealStatusPending)
	if err != nil {
		return nil, storageErr("list pending appeals", err)
	}
	out := rows[:0]
	for _, a := range rows {
		if kind == "" || a.Kind == kind {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b Appeal) int {
		switch {
		case newer(b, a):
			return -1
		case newer(a, b):
			return 1
		default:
			return 0
		}
	})
	return out, nil
}
