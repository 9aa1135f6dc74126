package audit

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func TestService_AppendRequiresActionAndActor(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Entry{ActorID: 1}); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
	if err := svc.Append(context.Background(), Entry{ActionType: ActionAppealReject}); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
	if len(repo.Entries()) != 0 {
		t.Fatalf("expected nothing appended")
	}
}

func TestService_StampsIDAndTimestamp(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	now := time.Unix(1700000000, 0).UTC()
	svc.clock = func() time.Time { return now }

	incident := int64(42)
	if err := svc.Append(context.Background(), Entry{ActionType: ActionIncidentReject, ActorID: 1, TargetIncidentID: &incident, Description: "incident rejected"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	got := repo.Entries()
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[0].ID == "" {
		t.Fatalf("expected generated id")
	}
	if !got[0].Timestamp.Equal(now) {
		t.Fatalf("expected timestamp %v, got %v", now, got[0].Timestamp)
	}
	if got[0].TargetIncidentID == nil || *got[0].TargetIncidentID != 42 {
		t.Fatalf("expected incident target captured")
	}
}

func TestService_NilRepo(t *testing.T) {
	var svc *Service
	if err := svc.Append(context.Background(), Entry{ActionType: ActionAppealApprove, ActorID: 1}); !errors.Is(err, ErrRepoNotConfigured) {
		t.Fatalf("expected ErrRepoNotConfigured, got %v", err)
	}
}

func TestMemoryRepo_InjectedFailure(t *testing.T) {
	repo := NewMemoryRepo()
	repo.SetErr(errors.New("disk full"))
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Entry{ActionType: ActionAppealApprove, ActorID: 1}); err == nil {
		t.Fatalf("expected error")
	}
	if len(repo.Entries()) != 0 {
		t.Fatalf("expected nothing stored")
	}
}

func TestSQLRepo_AppendAndListByAppeal(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	repo := NewSQLRepo(db)
	ctx := context.Background()
	if err := repo.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	svc := NewService(repo)
	appealID, userID := int64(7), int64(5)
	if err := svc.Append(ctx, Entry{ActionType: ActionAppealApprove, ActorID: 1, TargetAppealID: &appealID, TargetUserID: &userID, Description: "appeal approved"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	other := int64(8)
	if err := svc.Append(ctx, Entry{ActionType: ActionAppealReject, ActorID: 1, TargetAppealID: &other}); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := repo.ListByAppeal(ctx, 7)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[0].ActionType != ActionAppealApprove {
		t.Fatalf("expected appeal_approve, got %q", got[0].ActionType)
	}
	if got[0].TargetUserID == nil || *got[0].TargetUserID != 5 {
		t.Fatalf("expected target user 5")
	}
	if got[0].TargetIncidentID != nil {
		t.Fatalf("expected no incident target")
	}
}
