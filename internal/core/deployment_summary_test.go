package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/deploytrack/internal/model"
)

func TestDeploymentSummaryService_SaveIfAbsent_Creates(t *testing.T) {
	ctx := context.Background()
	db := &mockDB{}
	svc := NewDeploymentSummaryService(db, NewLockService(db))

	expectKeyLock(db)
	db.On("QueryRow", mock.Anything, sqlContains("deployment_key_text"), mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}).Once()
	db.On("Exec", mock.Anything, sqlContains("INSERT INTO deployment_summaries"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil).Once()

	summary := &model.DeploymentSummary{
		AccountID:      "acct1",
		AppID:          "app1",
		InfraMappingID: "m1",
		Key:            model.DeploymentKey{Kind: model.DeployKeyAsg, AutoScalingGroupName: "svc__env__1"},
		DeployedAt:     time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	created, err := svc.SaveIfAbsent(ctx, summary)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, summary.ID)
	assert.False(t, summary.CreatedAt.IsZero())
	db.AssertExpectations(t)
}

func TestDeploymentSummaryService_SaveIfAbsent_Duplicate(t *testing.T) {
	ctx := context.Background()
	db := &mockDB{}
	svc := NewDeploymentSummaryService(db, NewLockService(db))

	expectKeyLock(db)
	db.On("QueryRow", mock.Anything, sqlContains("deployment_key_text"), mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error {
			*(dest[0].(*string)) = "existing-1"
			*(dest[4].(*string)) = "wf-exec-9"
			return nil
		}}).Once()

	summary := &model.DeploymentSummary{
		AccountID:      "acct1",
		AppID:          "app1",
		InfraMappingID: "m1",
		Key:            model.DeploymentKey{Kind: model.DeployKeyAsg, AutoScalingGroupName: "svc__env__1"},
	}
	created, err := svc.SaveIfAbsent(ctx, summary)
	require.NoError(t, err)
	assert.False(t, created)

	// The caller's summary is replaced with the stored row.
	assert.Equal(t, "existing-1", summary.ID)
	assert.Equal(t, "wf-exec-9", summary.WorkflowExecutionID)
	db.AssertExpectations(t)
}

func TestDeploymentSummaryService_SaveIfAbsent_LockScopedToMapping(t *testing.T) {
	ctx := context.Background()
	db := &mockDB{}
	svc := NewDeploymentSummaryService(db, NewLockService(db))

	// Identically named backend services under different mappings take
	// different locks.
	db.On("Exec", mock.Anything, sqlContains("INSERT INTO advisory_locks"),
		mock.MatchedBy(func(args []any) bool {
			key, ok := args[0].(string)
			return ok && strings.HasPrefix(key, "deploysummary:m1:asg:")
		})).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil).Once()
	db.On("Exec", mock.Anything, sqlContains("DELETE FROM advisory_locks"), mock.Anything).
		Return(pgconn.NewCommandTag("DELETE 1"), nil).Once()
	db.On("QueryRow", mock.Anything, sqlContains("deployment_key_text"), mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}).Once()
	db.On("Exec", mock.Anything, sqlContains("INSERT INTO deployment_summaries"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil).Once()

	summary := &model.DeploymentSummary{
		AccountID:      "acct1",
		AppID:          "app1",
		InfraMappingID: "m1",
		Key:            model.DeploymentKey{Kind: model.DeployKeyAsg, AutoScalingGroupName: "svc__env__1"},
	}
	created, err := svc.SaveIfAbsent(ctx, summary)
	require.NoError(t, err)
	assert.True(t, created)
	db.AssertExpectations(t)
}

func TestDeploymentSummaryService_GetByKey_Absent(t *testing.T) {
	ctx := context.Background()
	db := &mockDB{}
	svc := NewDeploymentSummaryService(db, NewLockService(db))

	db.On("QueryRow", mock.Anything, sqlContains("deployment_key_text"), mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}).Once()

	summary, err := svc.GetByKey(ctx, "m1", model.DeploymentKey{Kind: model.DeployKeyAsg, AutoScalingGroupName: "gone"})
	require.NoError(t, err)
	assert.Nil(t, summary)
	db.AssertExpectations(t)
}

func TestDeploymentSummaryService_Last_Absent(t *testing.T) {
	ctx := context.Background()
	db := &mockDB{}
	svc := NewDeploymentSummaryService(db, NewLockService(db))

	db.On("QueryRow", mock.Anything, sqlContains("ORDER BY deployed_at DESC LIMIT 1"), []any{"m1"}).
		Return(&mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}).Once()

	summary, err := svc.Last(ctx, "m1")
	require.NoError(t, err)
	assert.Nil(t, summary)
	db.AssertExpectations(t)
}
