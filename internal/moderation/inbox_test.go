package moderation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func incidentIDs(rs []IncidentReport) []int64 {
	out := make([]int64, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestInboxItems_Rules(t *testing.T) {
	rejected := []IncidentReport{
		{ID: 1, Status: IncidentStatusRejected, CreatedAt: t0},
		{ID: 2, Status: IncidentStatusRejected, CreatedAt: t0.Add(time.Minute)},
		{ID: 3, Status: IncidentStatusRejected, CreatedAt: t0.Add(2 * time.Minute)},
		{ID: 4, Status: IncidentStatusRejected, CreatedAt: t0.Add(3 * time.Minute)},
		{ID: 5, Status: IncidentStatusRejected, CreatedAt: t0.Add(4 * time.Minute)},
	}
	appeals := []Appeal{
		{ID: 10, Kind: AppealKindIncidentRejection, IncidentID: ptr(int64(2)), Status: AppealStatusPending, CreatedAt: t0},
		{ID: 11, Kind: AppealKindIncidentRejection, IncidentID: ptr(int64(3)), Status: AppealStatusRejected, CreatedAt: t0},
		// 4: an older rejection superseded by an approval.
		{ID: 12, Kind: AppealKindIncidentRejection, IncidentID: ptr(int64(4)), Status: AppealStatusRejected, CreatedAt: t0},
		{ID: 13, Kind: AppealKindIncidentRejection, IncidentID: ptr(int64(4)), Status: AppealStatusApproved, CreatedAt: t0.Add(time.Second)},
		// 5: ban appeals never count.
		{ID: 14, Kind: AppealKindBan, Status: AppealStatusPending, CreatedAt: t0},
	}

	got := InboxItems(rejected, appeals)
	assert.Equal(t, []int64{5, 3, 1}, incidentIDs(got))
}

func TestInboxItems_TieBreakByID(t *testing.T) {
	rejected := []IncidentReport{
		{ID: 7, Status: IncidentStatusRejected, CreatedAt: t0},
		{ID: 8, Status: IncidentStatusRejected, CreatedAt: t0},
		{ID: 6, Status: IncidentStatusRejected, CreatedAt: t0},
	}
	assert.Equal(t, []int64{8, 7, 6}, incidentIDs(InboxItems(rejected, nil)))
}

func TestInboxItems_EffectiveAppealTieBreak(t *testing.T) {
	rejected := []IncidentReport{{ID: 1, Status: IncidentStatusRejected, CreatedAt: t0}}
	appeals := []Appeal{
		{ID: 21, Kind: AppealKindIncidentRejection, IncidentID: ptr(int64(1)), Status: AppealStatusRejected, CreatedAt: t0},
		{ID: 20, Kind: AppealKindIncidentRejection, IncidentID: ptr(int64(1)), Status: AppealStatusPending, CreatedAt: t0},
	}
	assert.Equal(t, []int64{1}, incidentIDs(InboxItems(rejected, appeals)), "id 21 is the effective appeal")
}

func TestListInboxItems(t *testing.T) {
	f := newFixture(t)
	f.store.PutIncident(IncidentReport{ID: 1, SubmitterUserID: 4, Status: IncidentStatusRejected, CreatedAt: t0})
	f.store.PutIncident(IncidentReport{ID: 2, SubmitterUserID: 4, Status: IncidentStatusApproved, CreatedAt: t0})
	f.store.PutIncident(IncidentReport{ID: 3, SubmitterUserID: 5, Status: IncidentStatusRejected, CreatedAt: t0})
	f.store.PutIncident(IncidentReport{ID: 4, SubmitterUserID: 4, Status: IncidentStatusRejected, CreatedAt: t0.Add(time.Hour)})
	ctx := context.Background()

	got, err := f.eng.ListInboxItems(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 1}, incidentIDs(got))

	// Appealing removes the incident from the inbox; a rejected appeal brings it back.
	appeal, err := f.eng.SubmitAppeal(ctx, SubmitAppealInput{SubjectUserID: 4, Kind: AppealKindIncidentRejection, IncidentID: ptr(int64(1)), Message: "look again"})
	require.NoError(t, err)
	got, err = f.eng.ListInboxItems(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, []int64{4}, incidentIDs(got))

	_, err = f.eng.ResolveAppeal(ctx, ResolveAppealInput{AppealID: appeal.ID, Decision: AppealDecisionReject, ActorID: 1})
	require.NoError(t, err)
	got, err = f.eng.ListInboxItems(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 1}, incidentIDs(got))

	got, err = f.eng.ListInboxItems(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestListInboxItems_Errors(t *testing.T) {
	f := newFixture(t)
	_, err := f.eng.ListInboxItems(context.Background(), 0)
	assert.ErrorIs(t, err, ErrValidation)

	f.store.Fail(FaultRead, errors.New("timeout"))
	_, err = f.eng.ListInboxItems(context.Background(), 4)
	assert.ErrorIs(t, err, ErrStorage)
}

func TestPendingQueues(t *testing.T) {
	f := newFixture(t)
	f.store.PutIncident(IncidentReport{ID: 2, Status: IncidentStatusPending, CreatedAt: t0})
	f.store.PutIncident(IncidentReport{ID: 1, Status: IncidentStatusPending, CreatedAt: t0})
	f.store.PutIncident(IncidentReport{ID: 3, Status: IncidentStatusPending, CreatedAt: t0.Add(-time.Minute)})
	f.store.PutIncident(IncidentReport{ID: 4, Status: IncidentStatusRejected, CreatedAt: t0})
	f.store.PutAppeal(Appeal{ID: 5, Kind: AppealKindBan, Status: AppealStatusPending, CreatedAt: t0.Add(time.Minute)})
	f.store.PutAppeal(Appeal{ID: 6, Kind: AppealKindIncidentRejection, IncidentID: ptr(int64(4)), Status: AppealStatusPending, CreatedAt: t0})
	f.store.PutAppeal(Appeal{ID: 7, Kind: AppealKindBan, Status: AppealStatusPending, CreatedAt: t0})
	f.store.PutAppeal(Appeal{ID: 8, Kind: AppealKindBan, Status: AppealStatusRejected, CreatedAt: t0})
	ctx := context.Background()

	incidents, err := f.eng.PendingIncidents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1, 2}, incidentIDs(incidents))

	all, err := f.eng.PendingAppeals(ctx, "")
	require.NoError(t, err)
	var ids []int64
	for _, a := range all {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []int64{6, 7, 5}, ids)

	bans, err := f.eng.PendingAppeals(ctx, AppealKindBan)
	require.NoError(t, err)
	require.Len(t, bans, 2)
	assert.Equal(t, int64(7), bans[0].ID)

	_, err = f.eng.PendingAppeals(ctx, "nope")
	assert.ErrorIs(t, err, ErrValidation)
}
