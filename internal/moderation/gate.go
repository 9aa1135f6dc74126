package moderation

import (
	"context"
	"strings"

	"incident-moderation/pkg/logger"
)

// SubmitAppealInput opens a new appeal.
type SubmitAppealInput struct {
	SubjectUserID int64
	Kind          AppealKind

	// IncidentID is required for incident rejection appeals and must be nil for ban appeals.
	IncidentID *int64
	Message    string
}

// SubmitAppeal is the only path that creates an Appeal.
//
// The effective (latest) appeal for the same subject decides admission:
//   - rejected -> ErrFinality, the subject is closed for good
//   - pending  -> ErrConflict, one open appeal at a time
//   - approved or none -> a new pending appeal is inserted
//
// For incident rejection appeals the subject is the incident, and only its submitter may appeal.
// Any other caller gets ErrNotFound.
func (e *Engine) SubmitAppeal(ctx context.Context, in SubmitAppealInput) (out Appeal, err error) {
	defer func() { e.Metrics.observeAction("appeal_submit", err) }()
	ctx, _ = logger.WithAttrs(ctx, "subject_user_id", in.SubjectUserID, "appeal_kind", in.Kind)

	msg := strings.TrimSpace(in.Message)
	if err := validateSubmitAppeal(in, msg); err != nil {
		return Appeal{}, err
	}

	unlock, err := lockAll(ctx, e.Locker, appealSubjectKey(in.Kind, in.SubjectUserID, in.IncidentID))
	if err != nil {
		return Appeal{}, storageErr("lock appeal subject", err)
	}
	defer unlock()

	now := e.now()
	err = e.Store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		prior, err := priorAppeals(ctx, tx, in)
		if err != nil {
			return err
		}
		if eff, ok := EffectiveAppeal(prior, in.Kind); ok {
			switch eff.Status {
			case AppealStatusRejected:
				return finalityf("appeal %d was rejected", eff.ID)
			case AppealStatusPending:
				return conflictf("appeal %d is still pending", eff.ID)
			}
		}

		created, err := tx.InsertAppeal(ctx, Appeal{
			SubjectUserID: in.SubjectUserID,
			IncidentID:    in.IncidentID,
			Kind:          in.Kind,
			Status:        AppealStatusPending,
			Message:       msg,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		err = storageErr("submit appeal", err)
		logFailure(ctx, "submit appeal failed", err)
		return Appeal{}, err
	}

	return out, e.appendAudit(ctx, submitEntry(out))
}

func validateSubmitAppeal(in SubmitAppealInput, msg string) error {
	if in.SubjectUserID <= 0 {
		return validationf("subject user id required")
	}
	if msg == "" {
		return validationf("message required")
	}
	switch in.Kind {
	case AppealKindBan:
		if in.IncidentID != nil {
			return validationf("ban appeals do not reference an incident")
		}
	case AppealKindIncidentRejection:
		if in.IncidentID == nil || *in.IncidentID <= 0 {
			return validationf("incident id required for %s", in.Kind)
		}
	default:
		return validationf("unknown appeal kind %q", in.Kind)
	}
	return nil
}

// priorAppeals checks the subject's precondition and returns the appeals it already has.
func priorAppeals(ctx context.Context, tx Tx, in SubmitAppealInput) ([]Appeal, error) {
	if in.Kind == AppealKindBan {
		acc, err := tx.GetAccount(ctx, in.SubjectUserID)
		if err != nil {
			return nil, err
		}
		if acc.Status != AccountStatusBanned {
			return nil, validationf("account %d is not banned", acc.ID)
		}
		return tx.ListAppealsBySubject(ctx, in.SubjectUserID)
	}

	inc, err := tx.GetIncident(ctx, *in.IncidentID)
	if err != nil {
		return nil, err
	}
	// Only the submitter may appeal; other callers must not learn the incident exists.
	if inc.SubmitterUserID != in.SubjectUserID {
		return nil, notFoundf("incident %d", inc.ID)
	}
	if inc.Status != IncidentStatusRejected {
		return nil, validationf("incident %d is %s, only rejected incidents can be appealed", inc.ID, inc.Status)
	}
	return tx.ListAppealsByIncidentIDs(ctx, []int64{inc.ID})
}
