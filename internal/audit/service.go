package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit entries.
//
// It MUST be append-only.
// No Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, e Entry) error
}

// Service stamps and appends audit entries.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to submitters.
// - Callers treat a failed append as a warning, never as a reason to undo the action.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var (
	ErrInvalidEntry      = errors.New("audit: invalid entry")
	ErrRepoNotConfigured = errors.New("audit: repository not configured")
)

func (s *Service) Append(ctx context.Context, e Entry) error {
	if s == nil || s.repo == nil {
		return ErrRepoNotConfigured
	}
	if e.ActionType == "" || e.ActorID == 0 {
		return ErrInvalidEntry
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}
