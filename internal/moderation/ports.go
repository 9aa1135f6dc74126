package moderation

import (
	"context"
	"time"
)

// Reader is the read side of the moderation stores.
//
// Get* methods return ErrNotFound when the row is absent.
// List* methods return rows in no particular order.
type Reader interface {
	GetIncident(ctx context.Context, id int64) (IncidentReport, error)
	GetAppeal(ctx context.Context, id int64) (Appeal, error)
	GetAccount(ctx context.Context, id int64) (Account, error)

	ListIncidentsBySubmitter(ctx context.Context, userID int64, status IncidentStatus) ([]IncidentReport, error)
	ListIncidentsByStatus(ctx context.Context, status IncidentStatus) ([]IncidentReport, error)

	ListAppealsByIncidentIDs(ctx context.Context, ids []int64) ([]Appeal, error)
	ListAppealsBySubject(ctx context.Context, userID int64) ([]Appeal, error)
	ListAppealsByStatus(ctx context.Context, status AppealStatus) ([]Appeal, error)
}

// Tx is a unit of work. Writes become visible only when the enclosing RunInTx commits.
type Tx interface {
	Reader

	UpdateIncident(ctx context.Context, id int64, status IncidentStatus, tags []string, reason *string) (IncidentReport, error)

	// InsertAppeal assigns ID from a monotonically increasing sequence.
	InsertAppeal(ctx context.Context, a Appeal) (Appeal, error)

	// UpdateAppeal is a compare-and-set on status: it returns ErrConflict
	// when the committed status is no longer expect.
	UpdateAppeal(ctx context.Context, id int64, expect, status AppealStatus, respondedBy int64, response string, now time.Time) (Appeal, error)

	UpdateAccount(ctx context.Context, id int64, status AccountStatus, banReason *string) (Account, error)
}

// Store is the persistence contract consumed by the engine.
type Store interface {
	Reader

	// RunInTx commits every write made through tx, or none of them when fn returns an error.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Locker serializes mutations per target entity.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}
