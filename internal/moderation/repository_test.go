package moderation

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"incident-moderation/internal/audit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// One connection keeps the in-memory database shared.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	s := NewSQLStore(db, DialectSQLite)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLStore_IncidentRoundTrip(t *testing.T) {
	s := newSQLStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertIncident(ctx, IncidentReport{ID: 42, SubmitterUserID: 3, Status: IncidentStatusPending, Tags: []string{"pothole"}, CreatedAt: t0}))

	got, err := s.GetIncident(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, []string{"pothole"}, got.Tags)
	assert.Nil(t, got.RejectionReason)
	assert.True(t, got.CreatedAt.Equal(t0))

	err = s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.UpdateIncident(ctx, 42, IncidentStatusRejected, nil, ptr("blurry photo"))
		return err
	})
	require.NoError(t, err)

	got, err = s.GetIncident(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, IncidentStatusRejected, got.Status)
	assert.Empty(t, got.Tags)
	require.NotNil(t, got.RejectionReason)
	assert.Equal(t, "blurry photo", *got.RejectionReason)

	_, err = s.GetIncident(ctx, 7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStore_AppealCompareAndSet(t *testing.T) {
	s := newSQLStore(t)
	ctx := context.Background()

	var created Appeal
	err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		created, err = tx.InsertAppeal(ctx, Appeal{SubjectUserID: 5, Kind: AppealKindBan, Status: AppealStatusPending, Message: "m", CreatedAt: t0, UpdatedAt: t0})
		return err
	})
	require.NoError(t, err)
	assert.Positive(t, created.ID)
	assert.Nil(t, created.IncidentID)

	update := func(expect AppealStatus) error {
		return s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			_, err := tx.UpdateAppeal(ctx, created.ID, expect, AppealStatusRejected, 1, "no", t0.Add(time.Minute))
			return err
		})
	}
	require.NoError(t, update(AppealStatusPending))
	assert.ErrorIs(t, update(AppealStatusPending), ErrConflict)

	err = s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.UpdateAppeal(ctx, 999, AppealStatusPending, AppealStatusRejected, 1, "", t0)
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.GetAppeal(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, AppealStatusRejected, got.Status)
	assert.Equal(t, int64(1), *got.RespondedBy)
	assert.True(t, got.UpdatedAt.Equal(t0.Add(time.Minute)))
}

func TestSQLStore_RollbackOnError(t *testing.T) {
	s := newSQLStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertAccount(ctx, Account{ID: 5, Status: AccountStatusBanned, BanReason: ptr("spam")}))

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.UpdateAccount(ctx, 5, AccountStatusActive, nil); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	acc, err := s.GetAccount(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, AccountStatusBanned, acc.Status)
	assert.Equal(t, "spam", *acc.BanReason)
}

func TestSQLStore_EngineFlow(t *testing.T) {
	s := newSQLStore(t)
	repo := audit.NewMemoryRepo()
	eng := NewEngine(s, audit.NewService(repo))
	eng.Now = func() time.Time { return t0 }
	ctx := context.Background()

	require.NoError(t, s.InsertIncident(ctx, IncidentReport{ID: 9, SubmitterUserID: 4, Status: IncidentStatusPending, Tags: []string{"a"}, CreatedAt: t0}))
	require.NoError(t, s.UpsertAccount(ctx, Account{ID: 4, Status: AccountStatusBanned, BanReason: ptr("spam")}))

	_, err := eng.ResolveIncident(ctx, ResolveIncidentInput{IncidentID: 9, Decision: DecisionReject, Reason: ptr("blurry"), ActorID: 1})
	require.NoError(t, err)

	inbox, err := eng.ListInboxItems(ctx, 4)
	require.NoError(t, err)
	require.Len(t, inbox, 1)

	incAppeal, err := eng.SubmitAppeal(ctx, SubmitAppealInput{SubjectUserID: 4, Kind: AppealKindIncidentRejection, IncidentID: ptr(int64(9)), Message: "please"})
	require.NoError(t, err)
	banAppeal, err := eng.SubmitAppeal(ctx, SubmitAppealInput{SubjectUserID: 4, Kind: AppealKindBan, Message: "sorry"})
	require.NoError(t, err)

	// Incident appeals and ban appeals of the same user do not interfere.
	_, err = eng.SubmitAppeal(ctx, SubmitAppealInput{SubjectUserID: 4, Kind: AppealKindBan, Message: "again"})
	assert.ErrorIs(t, err, ErrConflict)

	inbox, err = eng.ListInboxItems(ctx, 4)
	require.NoError(t, err)
	assert.Empty(t, inbox)

	_, err = eng.ResolveAppeal(ctx, ResolveAppealInput{AppealID: incAppeal.ID, Decision: AppealDecisionApprove, ActorID: 1})
	require.NoError(t, err)
	inc, err := s.GetIncident(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, IncidentStatusApproved, inc.Status)
	assert.Nil(t, inc.RejectionReason)
	assert.Equal(t, []string{"a"}, inc.Tags)

	_, err = eng.ResolveAppeal(ctx, ResolveAppealInput{AppealID: banAppeal.ID, Decision: AppealDecisionApprove, Response: "ok", ActorID: 1})
	require.NoError(t, err)
	acc, err := s.GetAccount(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, AccountStatusActive, acc.Status)
	assert.Nil(t, acc.BanReason)

	_, err = eng.ResolveAppeal(ctx, ResolveAppealInput{AppealID: banAppeal.ID, Decision: AppealDecisionReject, ActorID: 2})
	assert.ErrorIs(t, err, ErrConflict)

	pending, err := eng.PendingAppeals(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Len(t, repo.Entries(), 5)
}
