package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// PurgeInstancesWorkflow runs daily and removes soft-deleted instance rows
// older than the retention window.
func PurgeInstancesWorkflow(ctx workflow.Context) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var purged int64
	if err := workflow.ExecuteActivity(ctx, "PurgeDeletedInstances").Get(ctx, &purged); err != nil {
		return err
	}
	if purged > 0 {
		workflow.GetLogger(ctx).Info("purged soft-deleted instances", "count", purged)
	}
	return nil
}
