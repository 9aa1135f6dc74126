package reporting

import (
	"context"
	"errors"

	"incident-moderation/internal/moderation"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository is the read side of the moderation store. moderation.Store satisfies it.
//
// Reporting never writes and never takes entity locks.
type Repository interface {
	ListIncidentsByStatus(ctx context.Context, status moderation.IncidentStatus) ([]moderation.IncidentReport, error)
	ListAppealsByStatus(ctx context.Context, status moderation.AppealStatus) ([]moderation.Appeal, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) QueueSummary(ctx context.Context) (QueueSummary, error) {
	if s.repo == nil {
		return QueueSummary{}, errors.New("reporting: repository not configured")
	}

	incidents, err := s.repo.ListIncidentsByStatus(ctx, moderation.IncidentStatusPending)
	if err != nil {
		return QueueSummary{}, err
	}
	appeals, err := s.repo.ListAppealsByStatus(ctx, moderation.AppealStatusPending)
	if err != nil {
		return QueueSummary{}, err
	}

	out := QueueSummary{
		PendingIncidents: len(incidents),
		PendingAppeals: map[moderation.AppealKind]int{
			moderation.AppealKindBan:               0,
			moderation.AppealKindIncidentRejection: 0,
		},
	}
	for _, r := range incidents {
		if out.OldestPendingIncidentAt == nil || r.CreatedAt.Before(*out.OldestPendingIncidentAt) {
			at := r.CreatedAt
			out.OldestPendingIncidentAt = &at
		}
	}
	for _, a := range appeals {
		out.PendingAppeals[a.Kind]++
		if out.OldestPendingAppealAt == nil || a.CreatedAt.Before(*out.OldestPendingAppealAt) {
			at := a.CreatedAt
			out.OldestPendingAppealAt = &at
		}
	}
	return out, nil
}

func (s *Service) ResolutionSummary(ctx context.Context, req ResolutionSummaryRequest) (ResolutionSummary, error) {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return ResolutionSummary{}, ErrInvalidRequest
	}
	if req.Kind != "" && !req.Kind.Valid() {
		return ResolutionSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return ResolutionSummary{}, errors.New("reporting: repository not configured")
	}

	out := ResolutionSummary{Kind: req.Kind}
	for _, st := range []moderation.AppealStatus{moderation.AppealStatusApproved, moderation.AppealStatusRejected} {
		rows, err := s.repo.ListAppealsByStatus(ctx, st)
		if err != nil {
			return ResolutionSummary{}, err
		}
		for _, a := range rows {
			if req.Kind != "" && a.Kind != req.Kind {
				continue
			}
			// [From, To)
			if a.UpdatedAt.Before(req.Range.From) || !a.UpdatedAt.Before(req.Range.To) {
				continue
			}
			if st == moderation.AppealStatusApproved {
				out.Approved++
			} else {
				out.Rejected++
			}
		}
	}
	if total := out.Approved + out.Rejected; total > 0 {
		out.ApprovalRate = float64(out.Approved) / float64(total)
	}
	return out, nil
}
