package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/deploytrack/internal/activity"
)

// InstanceSyncWorkflow is the body of one perpetual poll task. It runs on a
// cron schedule per infra mapping; the workflow ID is the task ID the
// registry books. A run that loses the per-mapping lock reports success,
// the next tick covers it.
func InstanceSyncWorkflow(ctx workflow.Context, params activity.SyncInstancesParams) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	return workflow.ExecuteActivity(ctx, "SyncInstances", params).Get(ctx, nil)
}
