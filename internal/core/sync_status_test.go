package core

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/deploytrack/internal/model"
)

func TestSyncStatusService_Get_NeverSynced(t *testing.T) {
	ctx := context.Background()
	db := &mockDB{}
	svc := NewSyncStatusService(db)

	db.On("QueryRow", mock.Anything, sqlContains("FROM sync_statuses"), []any{"app1", "m1"}).
		Return(&mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}).Once()

	st, err := svc.Get(ctx, "app1", "m1")
	require.NoError(t, err)
	assert.Nil(t, st)
	db.AssertExpectations(t)
}

func TestSyncStatusService_UpdateSuccess(t *testing.T) {
	ctx := context.Background()
	db := &mockDB{}
	svc := NewSyncStatusService(db)

	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	db.On("Exec", mock.Anything, sqlContains("ON CONFLICT (app_id, service_id, env_id, infra_mapping_id)"),
		mock.MatchedBy(func(args []any) bool {
			successAt, ok := args[7].(*time.Time)
			return ok && successAt != nil && successAt.Equal(at) && args[8] == ""
		})).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil).Once()

	mapping := &model.InfraMapping{ID: "m1", AppID: "app1", ServiceID: "svc1", EnvID: "env1"}
	require.NoError(t, svc.UpdateSuccess(ctx, mapping, at))
	db.AssertExpectations(t)
}

func TestSyncStatusService_UpdateFailure_KeepsLastSuccess(t *testing.T) {
	ctx := context.Background()
	db := &mockDB{}
	svc := NewSyncStatusService(db)

	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	db.On("Exec", mock.Anything, sqlContains("COALESCE(EXCLUDED.last_successfully_synced_at"),
		mock.MatchedBy(func(args []any) bool {
			successAt, ok := args[7].(*time.Time)
			return ok && successAt == nil && args[8] == "asg not reachable"
		})).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil).Once()

	mapping := &model.InfraMapping{ID: "m1", AppID: "app1", ServiceID: "svc1", EnvID: "env1"}
	require.NoError(t, svc.UpdateFailure(ctx, mapping, "asg not reachable", at))
	db.AssertExpectations(t)
}

func TestSyncStatusService_ListByApp(t *testing.T) {
	ctx := context.Background()
	db := &mockDB{}
	svc := NewSyncStatusService(db)

	rows := newMockRows(
		func(dest ...any) error {
			*(dest[0].(*string)) = "st1"
			*(dest[4].(*string)) = "m1"
			return nil
		},
		func(dest ...any) error {
			*(dest[0].(*string)) = "st2"
			*(dest[4].(*string)) = "m2"
			return nil
		},
	)
	db.On("Query", mock.Anything, sqlContains("FROM sync_statuses"), []any{"app1"}).
		Return(rows, nil).Once()

	statuses, err := svc.ListByApp(ctx, "app1")
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "m2", statuses[1].InfraMappingID)
	db.AssertExpectations(t)
}
