package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/deploytrack/internal/model"
)

// DeploymentEventWorkflow delivers one deployment event to the
// reconciliation engine. The activity timeout covers the full lock wait the
// consumer may sit through.
func DeploymentEventWorkflow(ctx workflow.Context, event model.DeploymentEvent) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 6 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    3,
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	return workflow.ExecuteActivity(ctx, "HandleDeploymentEvent", event).Get(ctx, nil)
}
