package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/deploytrack/internal/model"
)

func sqlContains(sub string) any {
	return mock.MatchedBy(func(sql string) bool { return strings.Contains(sql, sub) })
}

func expectKeyLock(db *mockDB) {
	db.On("Exec", mock.Anything, sqlContains("INSERT INTO advisory_locks"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil).Once()
	db.On("Exec", mock.Anything, sqlContains("DELETE FROM advisory_locks"), mock.Anything).
		Return(pgconn.NewCommandTag("DELETE 1"), nil).Once()
}

func TestInstanceService_SaveOrUpdate_InsertNew(t *testing.T) {
	ctx := context.Background()
	db := &mockDB{}
	svc := NewInstanceService(db, NewLockService(db))

	fixed := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	expectKeyLock(db)
	db.On("QueryRow", mock.Anything, sqlContains("instance_key_text"), mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}).Once()
	db.On("Exec", mock.Anything, sqlContains("INSERT INTO instances"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil).Once()

	inst := &model.Instance{
		AppID:          "app1",
		InfraMappingID: "m1",
		Key:            model.InstanceKey{Kind: model.KeyHost, InfraMappingID: "m1", HostName: "h1"},
	}
	require.NoError(t, svc.SaveOrUpdate(ctx, inst))
	require.NotEmpty(t, inst.ID)
	require.Equal(t, fixed, inst.CreatedAt)
	db.AssertExpectations(t)
}

func TestInstanceService_SaveOrUpdate_ReplaceExisting(t *testing.T) {
	ctx := context.Background()
	db := &mockDB{}
	svc := NewInstanceService(db, NewLockService(db))

	fixed := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	expectKeyLock(db)
	db.On("QueryRow", mock.Anything, sqlContains("instance_key_text"), mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error {
			*(dest[0].(*string)) = "old-1"
			return nil
		}}).Once()
	db.On("Exec", mock.Anything, sqlContains("SET is_deleted = true"),
		mock.MatchedBy(func(args []any) bool {
			at, ok := args[0].(time.Time)
			ids, ok2 := args[1].([]string)
			return ok && ok2 && at.Equal(fixed) && len(ids) == 1 && ids[0] == "old-1"
		})).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil).Once()
	db.On("Exec", mock.Anything, sqlContains("INSERT INTO instances"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil).Once()

	inst := &model.Instance{
		AppID:          "app1",
		InfraMappingID: "m1",
		Key:            model.InstanceKey{Kind: model.KeyHost, InfraMappingID: "m1", HostName: "h1"},
	}
	require.NoError(t, svc.SaveOrUpdate(ctx, inst))
	require.NotEqual(t, "old-1", inst.ID)
	require.Equal(t, fixed.Add(time.Millisecond), inst.CreatedAt)
	db.AssertExpectations(t)
}

func TestInstanceService_Delete_Empty(t *testing.T) {
	db := &mockDB{}
	svc := NewInstanceService(db, NewLockService(db))

	require.NoError(t, svc.Delete(context.Background(), nil))
	db.AssertExpectations(t)
}

func TestInstanceService_DeleteByInfraMapping(t *testing.T) {
	ctx := context.Background()
	db := &mockDB{}
	svc := NewInstanceService(db, NewLockService(db))

	db.On("Exec", mock.Anything, sqlContains("DELETE FROM instances"), []any{"m1"}).
		Return(pgconn.NewCommandTag("DELETE 3"), nil).Once()

	n, err := svc.DeleteByInfraMapping(ctx, "m1")
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
	db.AssertExpectations(t)
}

func TestInstanceService_ListByInfraMapping(t *testing.T) {
	ctx := context.Background()
	db := &mockDB{}
	svc := NewInstanceService(db, NewLockService(db))

	rows := newMockRows(func(dest ...any) error {
		*(dest[0].(*string)) = "i1"
		*(dest[8].(*string)) = "m1"
		return nil
	})
	db.On("Query", mock.Anything, sqlContains("NOT is_deleted"), []any{"app1", "m1"}).
		Return(rows, nil).Once()

	instances, err := svc.ListByInfraMapping(ctx, "app1", "m1")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	require.Equal(t, "i1", instances[0].ID)
	db.AssertExpectations(t)
}

func TestInstanceService_Newest_NoRows(t *testing.T) {
	ctx := context.Background()
	db := &mockDB{}
	svc := NewInstanceService(db, NewLockService(db))

	db.On("QueryRow", mock.Anything, sqlContains("ORDER BY created_at DESC LIMIT 1"), []any{"m1"}).
		Return(&mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}).Once()

	inst, err := svc.Newest(ctx, "m1")
	require.NoError(t, err)
	require.Nil(t, inst)
	db.AssertExpectations(t)
}
