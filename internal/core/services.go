package core

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	temporalclient "go.temporal.io/sdk/client"
)

// TaskQueue is the Temporal task queue all deploytrack workflows run on.
const TaskQueue = "deploytrack-tasks"

// DB is the narrow slice of pgxpool.Pool the services need. It exists so
// tests can substitute a mock.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
}

type Services struct {
	InfraMapping      *InfraMappingService
	Instance          *InstanceService
	DeploymentSummary *DeploymentSummaryService
	SyncStatus        *SyncStatusService
	PerpetualTask     *PerpetualTaskService
	Lock              *LockService
	Events            *DeploymentEventQueue
}

func NewServices(db DB, tc temporalclient.Client, syncCron string) *Services {
	locks := NewLockService(db)
	return &Services{
		InfraMapping:      NewInfraMappingService(db),
		Instance:          NewInstanceService(db, locks),
		DeploymentSummary: NewDeploymentSummaryService(db, locks),
		SyncStatus:        NewSyncStatusService(db),
		PerpetualTask:     NewPerpetualTaskService(db, tc, syncCron),
		Lock:              locks,
		Events:            NewDeploymentEventQueue(tc),
	}
}
