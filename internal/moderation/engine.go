package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"incident-moderation/pkg/logger"
)

// Engine validates and applies moderation decisions.
//
// Rules:
//   - Validation, not-found, conflict and finality errors are returned before any write.
//   - Two-entity transitions (account+appeal, incident+appeal) run in one store transaction.
//   - Preconditions are re-checked inside the transaction, never against an earlier read.
//   - Every committed action appends exactly one audit entry; a failed append is reported
//     as ErrAuditWriteFailed alongside the committed result and never undoes the action.
//   - Store write errors are not retried here.
type Engine struct {
	Store   Store
	Audit   AuditLogger
	Locker  Locker
	Metrics *Metrics
	Now     func() time.Time
}

func NewEngine(store Store, audit AuditLogger) *Engine {
	return &Engine{Store: store, Audit: audit, Locker: NewLocalLocker(), Now: time.Now}
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}

// ResolveIncidentInput describes an admin decision on an incident report.
type ResolveIncidentInput struct {
	IncidentID int64
	Decision   Decision

	// Tags replaces the incident's tags. nil keeps the current tags.
	Tags []string
	// Reason is required for reject and ignored otherwise.
	Reason *string

	ActorID int64
}

// ResolveIncident approves, rejects or retracts an incident report.
//
//	approve -> status=approved, reason cleared
//	reject  -> status=rejected, reason stored
//	retract -> status=pending, reason cleared, whatever the prior status
func (e *Engine) ResolveIncident(ctx context.Context, in ResolveIncidentInput) (out IncidentReport, err error) {
	action := incidentAction(in.Decision)
	defer func() { e.Metrics.observeAction(string(action), err) }()
	ctx, _ = logger.WithAttrs(ctx, "incident_id", in.IncidentID, "decision", in.Decision)

	reason, err := validateResolveIncident(in)
	if err != nil {
		return IncidentReport{}, err
	}

	unlock, err := lockAll(ctx, e.Locker, incidentKey(in.IncidentID))
	if err != nil {
		return IncidentReport{}, storageErr("lock incident", err)
	}
	defer unlock()

	err = e.Store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		cur, err := tx.GetIncident(ctx, in.IncidentID)
		if err != nil {
			return err
		}

		tags := cur.Tags
		if in.Tags != nil {
			tags = normalizeTags(in.Tags)
		}

		status := IncidentStatusPending
		switch in.Decision {
		case DecisionApprove:
			status = IncidentStatusApproved
		case DecisionReject:
			status = IncidentStatusRejected
		}

		updated, err := tx.UpdateIncident(ctx, in.IncidentID, status, tags, reason)
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		err = storageErr("resolve incident", err)
		logFailure(ctx, "resolve incident failed", err)
		return IncidentReport{}, err
	}

	entry := incidentEntry(action, out, in.ActorID)
	return out, e.appendAudit(ctx, entry)
}

func validateResolveIncident(in ResolveIncidentInput) (*string, error) {
	if in.IncidentID <= 0 {
		return nil, validationf("incident id required")
	}
	if in.ActorID <= 0 {
		return nil, validationf("actor id required")
	}
	switch in.Decision {
	case DecisionApprove, DecisionRetract:
		return nil, nil
	case DecisionReject:
		if in.Reason == nil || strings.TrimSpace(*in.Reason) == "" {
			return nil, validationf("reason required to reject an incident")
		}
		return ptr(strings.TrimSpace(*in.Reason)), nil
	default:
		return nil, validationf("unknown incident decision %q", in.Decision)
	}
}

// normalizeTags trims labels, drops empty ones and keeps the first of duplicates.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// ResolveAppealInput describes an admin decision on an appeal.
type ResolveAppealInput struct {
	AppealID int64
	Decision AppealDecision
	Response string
	ActorID  int64
}

// ResolveAppeal approves or rejects a pending appeal.
//
// Approving a ban appeal reactivates the account; approving an incident rejection appeal
// approves the incident. Either way the second write and the appeal update commit together.
// Rejecting touches only the appeal.
func (e *Engine) ResolveAppeal(ctx context.Context, in ResolveAppealInput) (out Appeal, err error) {
	action := appealAction(in.Decision)
	defer func() { e.Metrics.observeAction(string(action), err) }()
	ctx, _ = logger.WithAttrs(ctx, "appeal_id", in.AppealID, "decision", in.Decision)

	if in.AppealID <= 0 {
		return Appeal{}, validationf("appeal id required")
	}
	if in.ActorID <= 0 {
		return Appeal{}, validationf("actor id required")
	}
	if in.Decision != AppealDecisionApprove && in.Decision != AppealDecisionReject {
		return Appeal{}, validationf("unknown appeal decision %q", in.Decision)
	}
	response := strings.TrimSpace(in.Response)

	unlock, err := lockAll(ctx, e.Locker, appealKey(in.AppealID))
	if err != nil {
		return Appeal{}, storageErr("lock appeal", err)
	}
	defer unlock()

	// Fail fast without opening a transaction; the transaction re-checks.
	cur, err := e.Store.GetAppeal(ctx, in.AppealID)
	if err != nil {
		return Appeal{}, storageErr("get appeal", err)
	}
	if cur.Status != AppealStatusPending {
		return Appeal{}, conflictf("appeal %d already %s", cur.ID, cur.Status)
	}

	if in.Decision == AppealDecisionApprove && cur.Kind == AppealKindIncidentRejection && cur.IncidentID != nil {
		unlockIncident, err := lockAll(ctx, e.Locker, incidentKey(*cur.IncidentID))
		if err != nil {
			return Appeal{}, storageErr("lock incident", err)
		}
		defer unlockIncident()
	}

	now := e.now()
	err = e.Store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		a, err := tx.GetAppeal(ctx, in.AppealID)
		if err != nil {
			return err
		}
		if a.Status != AppealStatusPending {
			return conflictf("appeal %d already %s", a.ID, a.Status)
		}

		if in.Decision == AppealDecisionReject {
			updated, err := tx.UpdateAppeal(ctx, a.ID, AppealStatusPending, AppealStatusRejected, in.ActorID, response, now)
			if err != nil {
				return err
			}
			out = updated
			return nil
		}

		if err := applyApprovalSideEffect(ctx, tx, a); err != nil {
			return err
		}
		updated, err := tx.UpdateAppeal(ctx, a.ID, AppealStatusPending, AppealStatusApproved, in.ActorID, response, now)
		if err != nil {
			return partialFailure("approve appeal", err)
		}
		out = updated
		return nil
	})
	if err != nil {
		err = storageErr("resolve appeal", err)
		logFailure(ctx, "resolve appeal failed", err)
		return Appeal{}, err
	}

	return out, e.appendAudit(ctx, appealEntry(action, out, in.ActorID))
}

// applyApprovalSideEffect performs the non-appeal half of a two-entity transition.
func applyApprovalSideEffect(ctx context.Context, tx Tx, a Appeal) error {
	switch a.Kind {
	case AppealKindBan:
		if _, err := tx.UpdateAccount(ctx, a.SubjectUserID, AccountStatusActive, nil); err != nil {
			return partialFailure(fmt.Sprintf("reactivate account %d", a.SubjectUserID), err)
		}
		return nil
	case AppealKindIncidentRejection:
		if a.IncidentID == nil {
			return partialFailure("approve incident", fmt.Errorf("appeal %d has no incident", a.ID))
		}
		inc, err := tx.GetIncident(ctx, *a.IncidentID)
		if err != nil {
			return partialFailure(fmt.Sprintf("approve incident %d", *a.IncidentID), err)
		}
		if _, err := tx.UpdateIncident(ctx, inc.ID, IncidentStatusApproved, inc.Tags, nil); err != nil {
			return partialFailure(fmt.Sprintf("approve incident %d", inc.ID), err)
		}
		return nil
	default:
		return partialFailure("approve appeal", fmt.Errorf("unknown appeal kind %q", a.Kind))
	}
}

// appendAudit writes entry and converts a failure into the ErrAuditWriteFailed warning.
func (e *Engine) appendAudit(ctx context.Context, entry AuditEntry) error {
	if e.Audit == nil {
		return fmt.Errorf("%w: audit logger not configured", ErrAuditWriteFailed)
	}
	if err := e.Audit.Append(ctx, entry); err != nil {
		logger.From(ctx).Warn("audit write failed",
			"action_type", entry.ActionType,
			"actor_id", entry.ActorID,
			"target_user_id", entry.TargetUserID,
			"target_incident_id", entry.TargetIncidentID,
			"target_appeal_id", entry.TargetAppealID,
			"err", err,
		)
		return fmt.Errorf("%w: %s: %w", ErrAuditWriteFailed, entry.ActionType, err)
	}
	return nil
}

func logFailure(ctx context.Context, msg string, err error) {
	l := logger.From(ctx)
	switch {
	case errors.Is(err, ErrPartialFailure), errors.Is(err, ErrStorage):
		l.Error(msg, "err", err)
	default:
		l.Debug(msg, "err", err)
	}
}
